package issuer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"ecommerce-backend/internal/config"
	"ecommerce-backend/internal/domains/coupon/model"
	"ecommerce-backend/internal/domains/coupon/repository"
	"ecommerce-backend/pkg/logger"
	"ecommerce-backend/pkg/redislock"
)

// LockIssuer gates issuance on the durable store alone. A distributed mutex
// per (coupon, user) serializes a user racing itself, and the row lock taken
// inside the transaction serializes cross-user stock updates.
type LockIssuer struct {
	client      *redis.Client
	coupons     repository.CouponRepository
	userCoupons repository.UserCouponRepository
	cfg         config.CouponConfig
}

func NewLockIssuer(
	client *redis.Client,
	coupons repository.CouponRepository,
	userCoupons repository.UserCouponRepository,
	cfg config.CouponConfig,
) *LockIssuer {
	return &LockIssuer{
		client:      client,
		coupons:     coupons,
		userCoupons: userCoupons,
		cfg:         cfg,
	}
}

// ShouldUpdateCouponStock is false: the critical section below already
// increments the durable counter and writes the user coupon row.
func (m *LockIssuer) ShouldUpdateCouponStock() bool {
	return false
}

func (m *LockIssuer) TryIssue(ctx context.Context, couponID, userID uuid.UUID) (Outcome, error) {
	// cheap duplicate pre-check before taking any lock
	exists, err := m.userCoupons.Exists(ctx, userID, couponID)
	if err != nil {
		return Outcome{}, err
	}
	if exists {
		return Outcome{Result: model.IssueAlreadyIssued, RemainingStock: -1}, nil
	}

	lock, err := redislock.Acquire(ctx, m.client, IssueLockKey(couponID, userID), m.cfg.LockWaitTime, m.cfg.LockLeaseTime)
	if err != nil {
		if errors.Is(err, redislock.ErrNotAcquired) {
			return Outcome{Result: model.IssueLockOrIssueFailed, RemainingStock: -1}, nil
		}
		return Outcome{}, fmt.Errorf("failed to acquire issue lock: %w", err)
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Error("failed to release issue lock", err)
		}
	}()

	var remaining int64 = -1
	now := time.Now()

	err = m.coupons.WithCouponTx(ctx, couponID, true, func(ctx context.Context, coupon *model.Coupon, tx repository.CouponTx) error {
		// re-check inside the critical section
		dup, err := tx.UserCouponExists(ctx, userID, couponID)
		if err != nil {
			return err
		}
		if dup {
			return model.ErrAlreadyIssued
		}

		if !coupon.IsWithinWindow(now) {
			return model.ErrCouponNotAvailable
		}
		if !coupon.HasStock() {
			return model.ErrCouponOutOfStock
		}

		if err := tx.IncrementIssued(ctx, couponID); err != nil {
			return err
		}

		uc := model.NewUserCoupon(userID, couponID, now, m.cfg.UserCouponValidity)
		if err := tx.InsertUserCoupon(ctx, uc); err != nil {
			return err
		}

		remaining = int64(coupon.Remaining() - 1)
		return nil
	})

	switch {
	case err == nil:
		return Outcome{Result: model.IssueSuccess, RemainingStock: remaining}, nil
	case errors.Is(err, model.ErrAlreadyIssued):
		return Outcome{Result: model.IssueAlreadyIssued, RemainingStock: -1}, nil
	case errors.Is(err, model.ErrCouponOutOfStock):
		return Outcome{Result: model.IssueOutOfStock, RemainingStock: -1}, nil
	case errors.Is(err, model.ErrCouponNotAvailable):
		return Outcome{Result: model.IssueNotAvailable, RemainingStock: -1}, nil
	case errors.Is(err, model.ErrCouponNotFound):
		return Outcome{Result: model.IssueCouponNotFound, RemainingStock: -1}, nil
	default:
		return Outcome{}, err
	}
}

func (m *LockIssuer) HasAlreadyIssued(ctx context.Context, couponID, userID uuid.UUID) (bool, error) {
	return m.userCoupons.Exists(ctx, userID, couponID)
}

// Confirm is a no-op: the durable transaction inside TryIssue was already
// the final word.
func (m *LockIssuer) Confirm(ctx context.Context, couponID, userID uuid.UUID) error {
	return nil
}

// Rollback is a no-op for the same reason.
func (m *LockIssuer) Rollback(ctx context.Context, couponID, userID uuid.UUID) error {
	return nil
}
