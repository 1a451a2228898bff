package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCouponConfig() CouponConfig {
	return CouponConfig{
		Strategy:             StrategyRedis,
		PendingTimeout:       30 * time.Second,
		CleanupTimeout:       60 * time.Second,
		CleanupInterval:      60 * time.Second,
		InitLockTTL:          10 * time.Second,
		InitPollInterval:     100 * time.Millisecond,
		InitMaxPolls:         50,
		LockWaitTime:         10 * time.Second,
		LockLeaseTime:        5 * time.Second,
		BreakerWindowSize:    10,
		BreakerInterval:      time.Minute,
		BreakerFailureRate:   0.5,
		BreakerOpenDuration:  30 * time.Second,
		BreakerHalfOpenCalls: 3,
		RecoveryBatchSize:    100,
		RecoveryMaxRetries:   3,
		RecoveryRetention:    30 * 24 * time.Hour,
		RecoveryInterval:     5 * time.Minute,
		UserCouponValidity:   30 * 24 * time.Hour,
		KeyTTL:               31 * 24 * time.Hour,
	}
}

func TestCouponConfigValidate(t *testing.T) {
	assert.NoError(t, validCouponConfig().Validate())
}

func TestCouponConfigValidateRejectsUnknownStrategy(t *testing.T) {
	cfg := validCouponConfig()
	cfg.Strategy = "optimistic"
	assert.Error(t, cfg.Validate())
}

func TestCouponConfigValidateCleanupMustExceedPending(t *testing.T) {
	cfg := validCouponConfig()
	cfg.CleanupTimeout = cfg.PendingTimeout
	assert.Error(t, cfg.Validate())
}

func TestCouponConfigValidateInitPolling(t *testing.T) {
	cfg := validCouponConfig()
	cfg.InitPollInterval = 0
	assert.Error(t, cfg.Validate())

	cfg = validCouponConfig()
	cfg.InitMaxPolls = 0
	assert.Error(t, cfg.Validate())
}

func TestCouponConfigValidateBreakerRate(t *testing.T) {
	cfg := validCouponConfig()
	cfg.BreakerFailureRate = 0
	assert.Error(t, cfg.Validate())

	cfg.BreakerFailureRate = 1.5
	assert.Error(t, cfg.Validate())

	cfg.BreakerFailureRate = 1
	assert.NoError(t, cfg.Validate())
}

func TestLoadCouponConfigDefaults(t *testing.T) {
	cfg := LoadCouponConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, StrategyRedis, cfg.Strategy)
	assert.Equal(t, 30*time.Second, cfg.PendingTimeout)
	assert.Equal(t, 60*time.Second, cfg.CleanupTimeout)
	assert.Equal(t, time.Minute, cfg.BreakerInterval)
	assert.Equal(t, 100, cfg.RecoveryBatchSize)
	assert.Equal(t, 3, cfg.RecoveryMaxRetries)
	assert.Equal(t, 5*time.Minute, cfg.RecoveryInterval)
}

func TestLoadCouponConfigOverrides(t *testing.T) {
	t.Setenv("COUPON_ISSUE_STRATEGY", "lock")
	t.Setenv("COUPON_PENDING_TIMEOUT_MS", "10000")
	t.Setenv("COUPON_CLEANUP_TIMEOUT_MS", "25000")

	cfg := LoadCouponConfig()
	assert.Equal(t, StrategyLock, cfg.Strategy)
	assert.Equal(t, 10*time.Second, cfg.PendingTimeout)
	assert.Equal(t, 25*time.Second, cfg.CleanupTimeout)
}
