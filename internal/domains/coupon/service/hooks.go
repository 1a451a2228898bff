package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ecommerce-backend/internal/domains/coupon/issuer"
	"ecommerce-backend/internal/domains/coupon/model"
	"ecommerce-backend/internal/domains/coupon/repository"
	"ecommerce-backend/pkg/logger"
)

// TxHooks is an explicit post-transaction callback registry. The code that
// owns the business transaction registers callbacks before committing, then
// fires exactly one of the two sides based on the outcome.
type TxHooks struct {
	commit []func(ctx context.Context)
	abort  []func(ctx context.Context, cause error)
}

func NewTxHooks() *TxHooks {
	return &TxHooks{}
}

func (h *TxHooks) OnCommit(fn func(ctx context.Context)) {
	h.commit = append(h.commit, fn)
}

func (h *TxHooks) OnAbort(fn func(ctx context.Context, cause error)) {
	h.abort = append(h.abort, fn)
}

// FireCommit runs the commit callbacks in registration order.
func (h *TxHooks) FireCommit(ctx context.Context) {
	for _, fn := range h.commit {
		fn(ctx)
	}
}

// FireAbort runs the abort callbacks in registration order, passing the
// error that made the transaction abort.
func (h *TxHooks) FireAbort(ctx context.Context, cause error) {
	for _, fn := range h.abort {
		fn(ctx, cause)
	}
}

const (
	finalizeMaxAttempts   = 3
	finalizeRetryInterval = 100 * time.Millisecond
)

// ReservationFinalizer turns transaction outcomes into cache reconciliation
// calls. Confirm and rollback both get a bounded local retry; a rollback
// that still fails is escalated into a durable recovery record, because an
// unreverted reservation permanently removes a unit from the pool.
type ReservationFinalizer struct {
	issuer    issuer.IssueManager
	rollbacks repository.FailedRollbackRepository
}

func NewReservationFinalizer(mgr issuer.IssueManager, rollbacks repository.FailedRollbackRepository) *ReservationFinalizer {
	return &ReservationFinalizer{
		issuer:    mgr,
		rollbacks: rollbacks,
	}
}

// Register attaches the confirm/rollback callbacks for one reservation.
func (f *ReservationFinalizer) Register(hooks *TxHooks, couponID, userID uuid.UUID) {
	hooks.OnCommit(func(ctx context.Context) {
		f.confirm(ctx, couponID, userID)
	})
	hooks.OnAbort(func(ctx context.Context, cause error) {
		f.rollback(ctx, couponID, userID, cause)
	})
}

func (f *ReservationFinalizer) confirm(ctx context.Context, couponID, userID uuid.UUID) {
	err := f.withRetry(ctx, func(ctx context.Context) error {
		return f.issuer.Confirm(ctx, couponID, userID)
	})
	if err != nil {
		// The user keeps the coupon: the durable row committed. The stale
		// entry is reclaimed by the pending sweep, then re-blocked by the
		// issued set on the next lazy sync.
		logger.ErrorWithFields("failed to confirm coupon reservation", err, map[string]interface{}{
			"coupon_id": couponID,
			"user_id":   userID,
		})
	}
}

func (f *ReservationFinalizer) rollback(ctx context.Context, couponID, userID uuid.UUID, cause error) {
	err := f.withRetry(ctx, func(ctx context.Context) error {
		return f.issuer.Rollback(ctx, couponID, userID)
	})
	if err == nil {
		return
	}

	logger.ErrorWithFields("failed to roll back coupon reservation, recording for recovery", err, map[string]interface{}{
		"coupon_id": couponID,
		"user_id":   userID,
	})

	causeMsg := ""
	if cause != nil {
		causeMsg = cause.Error()
	}
	record := model.NewFailedRollback(couponID, userID, causeMsg, err.Error(), time.Now())
	if insertErr := f.rollbacks.Insert(ctx, record); insertErr != nil {
		logger.ErrorWithFields("failed to persist rollback recovery record", insertErr, map[string]interface{}{
			"coupon_id": couponID,
			"user_id":   userID,
		})
	}
}

func (f *ReservationFinalizer) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= finalizeMaxAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt < finalizeMaxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(finalizeRetryInterval):
			}
		}
	}
	return err
}
