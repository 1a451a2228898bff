package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"ecommerce-backend/internal/config"
	"ecommerce-backend/internal/domains/coupon/issuer"
	"ecommerce-backend/pkg/logger"
	"ecommerce-backend/pkg/redislock"
)

// ================================================
// CLEANUP STALE PENDING RESERVATIONS JOB HANDLER
// ================================================

// CleanupStalePendingHandler sweeps reservations whose owner never confirmed
// or rolled back (crashed worker, dropped rollback while the breaker was
// open) and returns their units to the pool.
type CleanupStalePendingHandler struct {
	client      *redis.Client
	redisIssuer *issuer.RedisIssuer
	cfg         config.CouponConfig
}

func NewCleanupStalePendingHandler(
	client *redis.Client,
	redisIssuer *issuer.RedisIssuer,
	cfg config.CouponConfig,
) *CleanupStalePendingHandler {
	return &CleanupStalePendingHandler{
		client:      client,
		redisIssuer: redisIssuer,
		cfg:         cfg,
	}
}

func (h *CleanupStalePendingHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	// one sweeper at a time across all workers
	lock, err := redislock.TryAcquire(ctx, h.client, issuer.CleanupLockKey, h.cfg.CleanupTimeout)
	if err != nil {
		if errors.Is(err, redislock.ErrNotAcquired) {
			logger.Debug("stale pending sweep already running elsewhere")
			return nil
		}
		return fmt.Errorf("acquire cleanup lock: %w", err)
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Error("failed to release cleanup lock", err)
		}
	}()

	logger.Info("Starting CleanupStalePending job", nil)

	now := time.Now()
	var scanned, reclaimed int

	iter := h.client.Scan(ctx, 0, issuer.PendingKeyPattern, 100).Iterator()
	for iter.Next(ctx) {
		couponID, err := issuer.CouponIDFromPendingKey(iter.Val())
		if err != nil {
			continue
		}

		entries, err := h.redisIssuer.PendingEntries(ctx, couponID)
		if err != nil {
			logger.ErrorWithFields("failed to read pending map during sweep", err, map[string]interface{}{
				"coupon_id": couponID,
			})
			continue
		}

		for userID, reservedAt := range entries {
			scanned++
			if now.Sub(reservedAt) < h.cfg.CleanupTimeout {
				continue
			}

			// timestamp-guarded, so a reservation refreshed since the
			// HGETALL is left alone
			ok, err := h.redisIssuer.ReclaimPending(ctx, couponID, userID, reservedAt)
			if err != nil {
				logger.ErrorWithFields("failed to reclaim stale reservation", err, map[string]interface{}{
					"coupon_id": couponID,
					"user_id":   userID,
				})
				continue
			}
			if ok {
				reclaimed++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan pending keys: %w", err)
	}

	logger.Info("Completed CleanupStalePending job", map[string]interface{}{
		"scanned_entries": scanned,
		"reclaimed":       reclaimed,
	})
	return nil
}
