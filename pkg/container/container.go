package container

import (
	"context"
	"fmt"
	"time"

	"ecommerce-backend/internal/config"
	"ecommerce-backend/internal/infrastructure/cache"
	"ecommerce-backend/internal/infrastructure/database"
	"ecommerce-backend/pkg/logger"

	couponHandler "ecommerce-backend/internal/domains/coupon/handler"
	couponIssuer "ecommerce-backend/internal/domains/coupon/issuer"
	couponRepo "ecommerce-backend/internal/domains/coupon/repository"
	couponService "ecommerce-backend/internal/domains/coupon/service"
)

// ========================================
// CONTAINER STRUCT
// ========================================

// Container is the root of the dependency graph. Everything in it is a
// singleton built once at startup.
type Container struct {
	Config *config.Config
	DB     *database.PostgresDB
	Cache  *cache.RedisClient

	CouponRepo         couponRepo.CouponRepository
	UserCouponRepo     couponRepo.UserCouponRepository
	FailedRollbackRepo couponRepo.FailedRollbackRepository

	// RedisIssuer is the bare two-phase engine. Nil under the lock
	// strategy. Kept separately because the recovery and sweep jobs must
	// not go through the circuit breaker.
	RedisIssuer *couponIssuer.RedisIssuer

	// IssueManager is the strategy behind the service: the breaker-wrapped
	// two-phase engine, or the mutex engine.
	IssueManager couponIssuer.IssueManager

	CouponService   couponService.CouponService
	RecoveryService couponService.RecoveryService
	CouponHandler   *couponHandler.Handler
}

// NewContainer builds the dependency graph in order: config, then
// infrastructure, then repositories, services, handlers.
func NewContainer(ctx context.Context) (*Container, error) {
	c := &Container{}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	c.Config = cfg
	logger.Info("config loaded", map[string]interface{}{
		"environment": cfg.App.Environment,
		"strategy":    string(cfg.Coupon.Strategy),
	})

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	c.DB = database.NewPostgresDB(cfg.Database)
	if err := c.DB.Connect(connectCtx); err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	c.Cache = cache.NewRedisClient(cfg.Redis)
	if err := c.Cache.Connect(connectCtx); err != nil {
		c.DB.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	c.CouponRepo = couponRepo.NewPostgresCouponRepository(c.DB.Pool)
	c.UserCouponRepo = couponRepo.NewPostgresUserCouponRepository(c.DB.Pool)
	c.FailedRollbackRepo = couponRepo.NewPostgresFailedRollbackRepository(c.DB.Pool)

	c.buildIssuer()

	finalizer := couponService.NewReservationFinalizer(c.IssueManager, c.FailedRollbackRepo)
	c.CouponService = couponService.NewCouponService(c.CouponRepo, c.UserCouponRepo, c.IssueManager, finalizer, cfg.Coupon)
	c.RecoveryService = couponService.NewRecoveryService(c.FailedRollbackRepo, c.UserCouponRepo, c.recoveryIssuer(), cfg.Coupon)
	c.CouponHandler = couponHandler.NewHandler(c.CouponService)

	logger.Info("container initialized", nil)
	return c, nil
}

func (c *Container) buildIssuer() {
	cfg := c.Config.Coupon

	switch cfg.Strategy {
	case config.StrategyLock:
		c.IssueManager = couponIssuer.NewLockIssuer(c.Cache.Client, c.CouponRepo, c.UserCouponRepo, cfg)
	default:
		c.RedisIssuer = couponIssuer.NewRedisIssuer(c.Cache.Client, c.CouponRepo, c.UserCouponRepo, cfg)
		c.IssueManager = couponIssuer.NewResilientIssuer(c.RedisIssuer, cfg)
	}
}

// recoveryIssuer returns the engine the recovery scheduler should replay
// rollbacks against: the unwrapped one, so failures are visible.
func (c *Container) recoveryIssuer() couponIssuer.IssueManager {
	if c.RedisIssuer != nil {
		return c.RedisIssuer
	}
	return c.IssueManager
}

// Close tears the infrastructure down in reverse order.
func (c *Container) Close() {
	if c.Cache != nil {
		if err := c.Cache.Close(); err != nil {
			logger.Error("failed to close redis client", err)
		}
	}
	if c.DB != nil {
		c.DB.Close()
	}
	logger.Info("container closed", nil)
}

// HealthCheck pings both stores.
func (c *Container) HealthCheck(ctx context.Context) error {
	if err := c.DB.HealthCheck(ctx); err != nil {
		return fmt.Errorf("postgres health check failed: %w", err)
	}
	if err := c.Cache.HealthCheck(ctx); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}
