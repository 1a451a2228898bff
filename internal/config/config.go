package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"ecommerce-backend/pkg/logger"
)

// Config holds the whole application configuration.
// Populated from environment variables.
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Coupon   CouponConfig
}

type AppConfig struct {
	Name        string
	Environment string // development, staging, production
	Port        string
	Version     string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MinConns int
}

type RedisConfig struct {
	Host     string
	Password string
	DB       int
}

// =====================================================
// COUPON ISSUANCE CONFIGURATION
// =====================================================

// IssueStrategy selects the reservation engine at startup.
// A deployment decision, never a per-request one.
type IssueStrategy string

const (
	// StrategyRedis is the two-phase atomic-script strategy (default).
	StrategyRedis IssueStrategy = "redis"
	// StrategyLock serializes issuance behind a distributed mutex and
	// commits directly to PostgreSQL.
	StrategyLock IssueStrategy = "lock"
)

// CouponConfig controls the coupon issuance engine.
//
// Timeout relationships:
//
//	PendingTimeout < CleanupTimeout <= CleanupInterval (recommended)
//
// PendingTimeout blocks duplicate requests from the same user while a
// reservation is in flight; CleanupTimeout is when the sweep job treats a
// pending entry as abandoned and returns its unit to stock.
type CouponConfig struct {
	Strategy IssueStrategy

	// Two-phase reservation timings
	PendingTimeout  time.Duration // duplicate requests blocked within this window (default 30s)
	CleanupTimeout  time.Duration // pending entries older than this are swept (default 60s)
	CleanupInterval time.Duration // sweep job period (default 60s)

	// Lazy fast-tier initialization
	InitLockTTL      time.Duration // init lock lease (default 10s)
	InitPollInterval time.Duration // losers poll the completion marker at this rate (default 100ms)
	InitMaxPolls     int           // bounded wait for the completion marker (default 50)

	// Distributed mutex (lock strategy)
	LockWaitTime  time.Duration // bounded wait to acquire (default 10s)
	LockLeaseTime time.Duration // auto-expiry, must exceed the critical section (default 5s)

	// Circuit breaker around the script strategy
	BreakerWindowSize    int           // minimum calls before the failure rate can trip (default 10)
	BreakerInterval      time.Duration // CLOSED-state counts reset on this cycle (default 60s)
	BreakerFailureRate   float64       // open once this ratio fails (default 0.5)
	BreakerOpenDuration  time.Duration // fail-fast period before HALF_OPEN (default 30s)
	BreakerHalfOpenCalls int           // trial calls allowed in HALF_OPEN (default 3)

	// Rollback recovery
	RecoveryBatchSize  int           // PENDING records per sweep (default 100)
	RecoveryMaxRetries int           // retry cap before manual handling (default 3)
	RecoveryRetention  time.Duration // RESOLVED/IGNORED records kept this long (default 30d)
	RecoveryInterval   time.Duration // recovery sweep period (default 5m)

	UserCouponValidity time.Duration // issued coupons expire after this (default 30d)
	KeyTTL             time.Duration // TTL for fast-tier keys (default 31d)
}

// Load reads configuration from environment variables with sane defaults.
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "ecommerce-backend"),
			Environment: getEnv("APP_ENV", "development"),
			Port:        getEnv("APP_PORT", "8080"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnvInt("PG_PORT", 5432),
			User:     getEnv("PG_USERNAME", "postgres"),
			Password: getEnv("PG_PASSWORD", "postgres"),
			Database: getEnv("PG_DBNAME", "ecommerce"),
			SSLMode:  getEnv("PG_SSLMODE", "disable"),
			MaxConns: getEnvInt("PG_MAX_CONNS", 25),
			MinConns: getEnvInt("PG_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Coupon: LoadCouponConfig(),
	}

	if err := cfg.Coupon.Validate(); err != nil {
		return nil, fmt.Errorf("invalid coupon config: %w", err)
	}

	return cfg, nil
}

// LoadCouponConfig reads the coupon engine settings from environment variables.
func LoadCouponConfig() CouponConfig {
	return CouponConfig{
		Strategy: IssueStrategy(getEnv("COUPON_ISSUE_STRATEGY", string(StrategyRedis))),

		PendingTimeout:  getEnvDurationMs("COUPON_PENDING_TIMEOUT_MS", 30_000),
		CleanupTimeout:  getEnvDurationMs("COUPON_CLEANUP_TIMEOUT_MS", 60_000),
		CleanupInterval: getEnvDurationMs("COUPON_CLEANUP_INTERVAL_MS", 60_000),

		InitLockTTL:      getEnvDurationMs("COUPON_INIT_LOCK_TTL_MS", 10_000),
		InitPollInterval: getEnvDurationMs("COUPON_INIT_POLL_INTERVAL_MS", 100),
		InitMaxPolls:     getEnvInt("COUPON_INIT_MAX_POLLS", 50),

		LockWaitTime:  getEnvDurationMs("COUPON_LOCK_WAIT_MS", 10_000),
		LockLeaseTime: getEnvDurationMs("COUPON_LOCK_LEASE_MS", 5_000),

		BreakerWindowSize:    getEnvInt("COUPON_BREAKER_WINDOW", 10),
		BreakerInterval:      getEnvDurationMs("COUPON_BREAKER_INTERVAL_MS", 60_000),
		BreakerFailureRate:   getEnvFloat("COUPON_BREAKER_FAILURE_RATE", 0.5),
		BreakerOpenDuration:  getEnvDurationMs("COUPON_BREAKER_OPEN_DURATION_MS", 30_000),
		BreakerHalfOpenCalls: getEnvInt("COUPON_BREAKER_HALF_OPEN_CALLS", 3),

		RecoveryBatchSize:  getEnvInt("COUPON_RECOVERY_BATCH_SIZE", 100),
		RecoveryMaxRetries: getEnvInt("COUPON_RECOVERY_MAX_RETRIES", 3),
		RecoveryRetention:  time.Duration(getEnvInt("COUPON_RECOVERY_RETENTION_DAYS", 30)) * 24 * time.Hour,
		RecoveryInterval:   getEnvDurationMs("COUPON_RECOVERY_INTERVAL_MS", 300_000),

		UserCouponValidity: time.Duration(getEnvInt("COUPON_VALIDITY_DAYS", 30)) * 24 * time.Hour,
		KeyTTL:             time.Duration(getEnvInt("COUPON_KEY_TTL_DAYS", 31)) * 24 * time.Hour,
	}
}

// Validate checks inter-field constraints. A cleanup timeout at or below the
// pending timeout would let the sweep reclaim reservations whose transactions
// are still running.
func (c CouponConfig) Validate() error {
	if c.Strategy != StrategyRedis && c.Strategy != StrategyLock {
		return fmt.Errorf("unknown issue strategy %q", c.Strategy)
	}

	for name, d := range map[string]time.Duration{
		"pending timeout":    c.PendingTimeout,
		"cleanup timeout":    c.CleanupTimeout,
		"cleanup interval":   c.CleanupInterval,
		"init lock ttl":      c.InitLockTTL,
		"init poll interval": c.InitPollInterval,
		"breaker interval":   c.BreakerInterval,
		"lock wait":          c.LockWaitTime,
		"lock lease":         c.LockLeaseTime,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, d)
		}
	}

	if c.InitMaxPolls <= 0 {
		return fmt.Errorf("init max polls must be positive, got %d", c.InitMaxPolls)
	}

	if c.CleanupTimeout <= c.PendingTimeout {
		return fmt.Errorf("cleanup timeout (%v) must exceed pending timeout (%v)",
			c.CleanupTimeout, c.PendingTimeout)
	}

	if c.BreakerFailureRate <= 0 || c.BreakerFailureRate > 1 {
		return fmt.Errorf("breaker failure rate must be in (0,1], got %v", c.BreakerFailureRate)
	}

	if c.CleanupTimeout < 2*c.PendingTimeout {
		logger.Warn("cleanup timeout is under 2x pending timeout; slow transactions may be swept", map[string]interface{}{
			"pending_timeout": c.PendingTimeout.String(),
			"cleanup_timeout": c.CleanupTimeout.String(),
		})
	}

	return nil
}

// ---------------------------------------------------------------
// env helpers
// ---------------------------------------------------------------

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDurationMs(key string, defaultMs int) time.Duration {
	return time.Duration(getEnvInt(key, defaultMs)) * time.Millisecond
}
