package service

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecommerce-backend/internal/domains/coupon/issuer"
	"ecommerce-backend/internal/domains/coupon/model"
	"ecommerce-backend/internal/domains/coupon/repository"
)

// stubIssueManager is a scriptable IssueManager shared by the service tests.
type stubIssueManager struct {
	tryOutcome   issuer.Outcome
	tryErr       error
	confirmErr   error
	rollbackErr  error
	shouldUpdate bool

	// when > 0, only the first N rollback calls fail
	rollbackFailFirst int64

	confirmCalls  atomic.Int64
	rollbackCalls atomic.Int64
}

func (s *stubIssueManager) TryIssue(ctx context.Context, couponID, userID uuid.UUID) (issuer.Outcome, error) {
	return s.tryOutcome, s.tryErr
}

func (s *stubIssueManager) HasAlreadyIssued(ctx context.Context, couponID, userID uuid.UUID) (bool, error) {
	return false, nil
}

func (s *stubIssueManager) Confirm(ctx context.Context, couponID, userID uuid.UUID) error {
	s.confirmCalls.Add(1)
	return s.confirmErr
}

func (s *stubIssueManager) Rollback(ctx context.Context, couponID, userID uuid.UUID) error {
	n := s.rollbackCalls.Add(1)
	if s.rollbackErr != nil && (s.rollbackFailFirst == 0 || n <= s.rollbackFailFirst) {
		return s.rollbackErr
	}
	return nil
}

func (s *stubIssueManager) ShouldUpdateCouponStock() bool { return s.shouldUpdate }

func TestTxHooksFireInOrder(t *testing.T) {
	hooks := NewTxHooks()
	var order []string

	hooks.OnCommit(func(ctx context.Context) { order = append(order, "confirm-a") })
	hooks.OnCommit(func(ctx context.Context) { order = append(order, "confirm-b") })
	hooks.OnAbort(func(ctx context.Context, cause error) { order = append(order, "rollback:"+cause.Error()) })

	hooks.FireCommit(context.Background())
	assert.Equal(t, []string{"confirm-a", "confirm-b"}, order)

	order = nil
	hooks.FireAbort(context.Background(), assert.AnError)
	assert.Equal(t, []string{"rollback:" + assert.AnError.Error()}, order)
}

func TestFinalizerConfirmOnCommit(t *testing.T) {
	stub := &stubIssueManager{shouldUpdate: true}
	_, _, rollbacks := repository.NewMemoryStores()
	fin := NewReservationFinalizer(stub, rollbacks)

	hooks := NewTxHooks()
	fin.Register(hooks, uuid.New(), uuid.New())

	hooks.FireCommit(context.Background())
	assert.Equal(t, int64(1), stub.confirmCalls.Load())
	assert.Equal(t, int64(0), stub.rollbackCalls.Load())
}

func TestFinalizerRollbackRetries(t *testing.T) {
	stub := &stubIssueManager{shouldUpdate: true, rollbackErr: assert.AnError}
	_, _, rollbacks := repository.NewMemoryStores()
	fin := NewReservationFinalizer(stub, rollbacks)

	couponID, userID := uuid.New(), uuid.New()
	hooks := NewTxHooks()
	fin.Register(hooks, couponID, userID)

	hooks.FireAbort(context.Background(), model.ErrAlreadyIssued)

	assert.Equal(t, int64(finalizeMaxAttempts), stub.rollbackCalls.Load())

	// the exhausted rollback became a durable recovery record
	pending, err := rollbacks.ListPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, couponID, pending[0].CouponID)
	assert.Equal(t, userID, pending[0].UserID)
	assert.Equal(t, model.FailedRollbackPending, pending[0].Status)
	assert.Equal(t, model.ErrAlreadyIssued.Error(), pending[0].OriginalError)
	assert.Contains(t, pending[0].RollbackError, assert.AnError.Error())
}

func TestFinalizerRollbackSucceedsWithoutRecord(t *testing.T) {
	stub := &stubIssueManager{shouldUpdate: true}
	_, _, rollbacks := repository.NewMemoryStores()
	fin := NewReservationFinalizer(stub, rollbacks)

	hooks := NewTxHooks()
	fin.Register(hooks, uuid.New(), uuid.New())

	hooks.FireAbort(context.Background(), assert.AnError)

	assert.Equal(t, int64(1), stub.rollbackCalls.Load())
	pending, err := rollbacks.ListPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestFinalizerRetryRecoversMidway(t *testing.T) {
	// first attempt fails, the retry succeeds
	stub := &stubIssueManager{shouldUpdate: true, rollbackErr: assert.AnError, rollbackFailFirst: 1}
	_, _, rollbacks := repository.NewMemoryStores()
	fin := NewReservationFinalizer(stub, rollbacks)

	hooks := NewTxHooks()
	fin.Register(hooks, uuid.New(), uuid.New())
	hooks.FireAbort(context.Background(), assert.AnError)

	assert.Equal(t, int64(2), stub.rollbackCalls.Load())
	pending, err := rollbacks.ListPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "a recovered retry leaves no record")
}
