package issuer

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"

	"ecommerce-backend/internal/config"
	"ecommerce-backend/internal/domains/coupon/model"
	"ecommerce-backend/pkg/logger"
)

// ResilientIssuer wraps an IssueManager behind a circuit breaker. While the
// breaker is open, TryIssue fails fast with LOCK_OR_ISSUE_FAILED and
// Confirm/Rollback are dropped, leaving reconciliation to the recovery
// scheduler.
type ResilientIssuer struct {
	inner   IssueManager
	breaker *gobreaker.CircuitBreaker[Outcome]
}

func NewResilientIssuer(inner IssueManager, cfg config.CouponConfig) *ResilientIssuer {
	settings := gobreaker.Settings{
		Name:        "coupon-issue",
		MaxRequests: uint32(cfg.BreakerHalfOpenCalls),
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerOpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < uint32(cfg.BreakerWindowSize) {
				return false
			}
			failureRate := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRate >= cfg.BreakerFailureRate
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("coupon issue breaker state change", map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	}

	return &ResilientIssuer{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker[Outcome](settings),
	}
}

func (m *ResilientIssuer) ShouldUpdateCouponStock() bool {
	return m.inner.ShouldUpdateCouponStock()
}

func (m *ResilientIssuer) TryIssue(ctx context.Context, couponID, userID uuid.UUID) (Outcome, error) {
	outcome, err := m.breaker.Execute(func() (Outcome, error) {
		return m.inner.TryIssue(ctx, couponID, userID)
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Outcome{Result: model.IssueLockOrIssueFailed, RemainingStock: -1}, nil
		}
		return Outcome{}, err
	}

	return outcome, nil
}

func (m *ResilientIssuer) HasAlreadyIssued(ctx context.Context, couponID, userID uuid.UUID) (bool, error) {
	if m.breaker.State() == gobreaker.StateOpen {
		return false, nil
	}
	return m.inner.HasAlreadyIssued(ctx, couponID, userID)
}

func (m *ResilientIssuer) Confirm(ctx context.Context, couponID, userID uuid.UUID) error {
	if m.breaker.State() == gobreaker.StateOpen {
		logger.Warn("breaker open, dropping confirm", map[string]interface{}{
			"coupon_id": couponID,
			"user_id":   userID,
		})
		return nil
	}
	return m.inner.Confirm(ctx, couponID, userID)
}

func (m *ResilientIssuer) Rollback(ctx context.Context, couponID, userID uuid.UUID) error {
	if m.breaker.State() == gobreaker.StateOpen {
		logger.Warn("breaker open, dropping rollback", map[string]interface{}{
			"coupon_id": couponID,
			"user_id":   userID,
		})
		return nil
	}
	return m.inner.Rollback(ctx, couponID, userID)
}

// State exposes the breaker state for health reporting and tests.
func (m *ResilientIssuer) State() gobreaker.State {
	return m.breaker.State()
}
