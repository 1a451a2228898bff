package issuer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecommerce-backend/internal/config"
	"ecommerce-backend/internal/domains/coupon/model"
)

// stubIssuer is a scriptable IssueManager for breaker tests.
type stubIssuer struct {
	tryErr       error
	tryResult    model.IssueResult
	tryCalls     atomic.Int64
	confirmCalls atomic.Int64
	rollbakCalls atomic.Int64
}

func (s *stubIssuer) TryIssue(ctx context.Context, couponID, userID uuid.UUID) (Outcome, error) {
	s.tryCalls.Add(1)
	if s.tryErr != nil {
		return Outcome{}, s.tryErr
	}
	return Outcome{Result: s.tryResult, RemainingStock: -1}, nil
}

func (s *stubIssuer) HasAlreadyIssued(ctx context.Context, couponID, userID uuid.UUID) (bool, error) {
	return false, nil
}

func (s *stubIssuer) Confirm(ctx context.Context, couponID, userID uuid.UUID) error {
	s.confirmCalls.Add(1)
	return nil
}

func (s *stubIssuer) Rollback(ctx context.Context, couponID, userID uuid.UUID) error {
	s.rollbakCalls.Add(1)
	return nil
}

func (s *stubIssuer) ShouldUpdateCouponStock() bool { return true }

func breakerConfig() config.CouponConfig {
	cfg := testCouponConfig()
	cfg.BreakerWindowSize = 4
	cfg.BreakerFailureRate = 0.5
	cfg.BreakerOpenDuration = 100 * time.Millisecond
	cfg.BreakerHalfOpenCalls = 2
	return cfg
}

func tripBreaker(t *testing.T, res *ResilientIssuer, stub *stubIssuer, cfg config.CouponConfig) {
	t.Helper()
	ctx := context.Background()
	stub.tryErr = errors.New("connection refused")
	for i := 0; i < cfg.BreakerWindowSize; i++ {
		_, err := res.TryIssue(ctx, uuid.New(), uuid.New())
		require.Error(t, err)
	}
	require.Equal(t, gobreaker.StateOpen, res.State())
}

func TestResilientIssuerPassThrough(t *testing.T) {
	stub := &stubIssuer{tryResult: model.IssueSuccess}
	res := NewResilientIssuer(stub, breakerConfig())
	ctx := context.Background()

	outcome, err := res.TryIssue(ctx, uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, model.IssueSuccess, outcome.Result)
	assert.Equal(t, gobreaker.StateClosed, res.State())

	// business rejections are not failures
	stub.tryResult = model.IssueOutOfStock
	for i := 0; i < 10; i++ {
		outcome, err := res.TryIssue(ctx, uuid.New(), uuid.New())
		require.NoError(t, err)
		assert.Equal(t, model.IssueOutOfStock, outcome.Result)
	}
	assert.Equal(t, gobreaker.StateClosed, res.State())
}

func TestResilientIssuerOpensOnFailures(t *testing.T) {
	stub := &stubIssuer{}
	cfg := breakerConfig()
	res := NewResilientIssuer(stub, cfg)
	ctx := context.Background()

	tripBreaker(t, res, stub, cfg)

	// while open, calls fail fast without reaching the engine
	calls := stub.tryCalls.Load()
	outcome, err := res.TryIssue(ctx, uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, model.IssueLockOrIssueFailed, outcome.Result)
	assert.Equal(t, calls, stub.tryCalls.Load())
}

func TestResilientIssuerDropsFinalizationWhileOpen(t *testing.T) {
	stub := &stubIssuer{}
	cfg := breakerConfig()
	res := NewResilientIssuer(stub, cfg)
	ctx := context.Background()

	tripBreaker(t, res, stub, cfg)

	assert.NoError(t, res.Confirm(ctx, uuid.New(), uuid.New()))
	assert.NoError(t, res.Rollback(ctx, uuid.New(), uuid.New()))
	assert.Equal(t, int64(0), stub.confirmCalls.Load())
	assert.Equal(t, int64(0), stub.rollbakCalls.Load())
}

func TestResilientIssuerCountsResetEachInterval(t *testing.T) {
	stub := &stubIssuer{tryErr: errors.New("connection refused")}
	cfg := breakerConfig()
	cfg.BreakerInterval = 150 * time.Millisecond
	res := NewResilientIssuer(stub, cfg)
	ctx := context.Background()

	// fewer failures than the trip window in each cycle
	for i := 0; i < cfg.BreakerWindowSize-1; i++ {
		_, err := res.TryIssue(ctx, uuid.New(), uuid.New())
		require.Error(t, err)
	}

	time.Sleep(cfg.BreakerInterval + 50*time.Millisecond)

	for i := 0; i < cfg.BreakerWindowSize-1; i++ {
		_, err := res.TryIssue(ctx, uuid.New(), uuid.New())
		require.Error(t, err)
	}

	assert.Equal(t, gobreaker.StateClosed, res.State())
}

func TestResilientIssuerRecoversThroughHalfOpen(t *testing.T) {
	stub := &stubIssuer{}
	cfg := breakerConfig()
	res := NewResilientIssuer(stub, cfg)
	ctx := context.Background()

	tripBreaker(t, res, stub, cfg)

	time.Sleep(cfg.BreakerOpenDuration + 20*time.Millisecond)

	stub.tryErr = nil
	stub.tryResult = model.IssueSuccess
	for i := 0; i < cfg.BreakerHalfOpenCalls; i++ {
		outcome, err := res.TryIssue(ctx, uuid.New(), uuid.New())
		require.NoError(t, err)
		assert.Equal(t, model.IssueSuccess, outcome.Result)
	}
	assert.Equal(t, gobreaker.StateClosed, res.State())
}
