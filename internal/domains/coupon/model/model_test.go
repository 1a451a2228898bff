package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCoupon(total, issued int, start, end time.Time) *Coupon {
	return &Coupon{
		ID:             uuid.New(),
		Name:           "launch promo",
		DiscountType:   DiscountFixed,
		TotalQuantity:  total,
		IssuedQuantity: issued,
		StartsAt:       start,
		EndsAt:         end,
	}
}

func TestCouponIsWithinWindow(t *testing.T) {
	now := time.Now()
	c := testCoupon(10, 0, now.Add(-time.Hour), now.Add(time.Hour))

	assert.True(t, c.IsWithinWindow(now))
	assert.True(t, c.IsWithinWindow(c.StartsAt), "window start is inclusive")
	assert.False(t, c.IsWithinWindow(c.EndsAt), "window end is exclusive")
	assert.False(t, c.IsWithinWindow(now.Add(-2*time.Hour)))
	assert.False(t, c.IsWithinWindow(now.Add(2*time.Hour)))
}

func TestCouponIssue(t *testing.T) {
	now := time.Now()

	t.Run("decrements remaining", func(t *testing.T) {
		c := testCoupon(2, 0, now.Add(-time.Hour), now.Add(time.Hour))

		require.NoError(t, c.Issue(now))
		assert.Equal(t, 1, c.IssuedQuantity)
		assert.Equal(t, 1, c.Remaining())
	})

	t.Run("out of stock", func(t *testing.T) {
		c := testCoupon(1, 1, now.Add(-time.Hour), now.Add(time.Hour))

		err := c.Issue(now)
		assert.ErrorIs(t, err, ErrCouponOutOfStock)
	})

	t.Run("outside window", func(t *testing.T) {
		c := testCoupon(10, 0, now.Add(time.Hour), now.Add(2*time.Hour))

		err := c.Issue(now)
		assert.ErrorIs(t, err, ErrCouponNotAvailable)
	})
}

func TestUserCouponUse(t *testing.T) {
	now := time.Now()
	uc := NewUserCoupon(uuid.New(), uuid.New(), now, 30*24*time.Hour)

	require.Equal(t, UserCouponAvailable, uc.Status)

	require.NoError(t, uc.Use(now.Add(time.Hour)))
	assert.Equal(t, UserCouponUsed, uc.Status)
	require.NotNil(t, uc.UsedAt)

	assert.ErrorIs(t, uc.Use(now.Add(2*time.Hour)), ErrUserCouponNotAvailable)
}

func TestUserCouponUseExpired(t *testing.T) {
	now := time.Now()
	uc := NewUserCoupon(uuid.New(), uuid.New(), now, time.Hour)

	assert.ErrorIs(t, uc.Use(now.Add(2*time.Hour)), ErrUserCouponExpired)
}

func TestFailedRollbackLifecycle(t *testing.T) {
	now := time.Now()
	fr := NewFailedRollback(uuid.New(), uuid.New(), "unique violation", "connection refused", now)

	assert.Equal(t, FailedRollbackPending, fr.Status)
	assert.True(t, fr.CanRetry(3))
	assert.False(t, fr.IsFinished())

	fr.IncrementRetryCount("connection refused", now)
	fr.IncrementRetryCount("connection refused", now)
	fr.IncrementRetryCount("i/o timeout", now)
	assert.False(t, fr.CanRetry(3), "retry cap reached")
	assert.Equal(t, "i/o timeout", fr.RollbackError, "latest failure kept")

	fr.Resolve(now, "recovery-scheduler")
	assert.Equal(t, FailedRollbackResolved, fr.Status)
	assert.Equal(t, "recovery-scheduler", fr.ResolvedBy)
	assert.True(t, fr.IsFinished())
	assert.False(t, fr.CanRetry(3))
}

func TestFailedRollbackIgnore(t *testing.T) {
	now := time.Now()
	fr := NewFailedRollback(uuid.New(), uuid.New(), "unique violation", "timeout", now)

	fr.Ignore(now, "recovery-scheduler")
	assert.Equal(t, FailedRollbackIgnored, fr.Status)
	assert.True(t, fr.IsFinished())
	require.NotNil(t, fr.ResolvedAt)
}

func TestFailedRollbackTruncatesErrorMessages(t *testing.T) {
	long := make([]byte, 2*ErrorMessageMaxLen)
	for i := range long {
		long[i] = 'x'
	}

	fr := NewFailedRollback(uuid.New(), uuid.New(), string(long), string(long), time.Now())
	assert.Len(t, fr.OriginalError, ErrorMessageMaxLen)
	assert.Len(t, fr.RollbackError, ErrorMessageMaxLen)
}

func TestIssueResultCodes(t *testing.T) {
	assert.Equal(t, "", IssueSuccess.Code())
	assert.Equal(t, "COUPON_001", IssueCouponNotFound.Code())
	assert.Equal(t, "COUPON_002", IssueAlreadyIssued.Code())
	assert.Equal(t, "COUPON_003", IssueOutOfStock.Code())
	assert.Equal(t, "COUPON_004", IssueNotAvailable.Code())
	assert.Equal(t, "COUPON_005", IssueReservationInProgress.Code())
	assert.Equal(t, "COUPON_006", IssueLockOrIssueFailed.Code())
}

func TestIssueResultRetryable(t *testing.T) {
	assert.True(t, IssueReservationInProgress.IsRetryable())
	assert.True(t, IssueLockOrIssueFailed.IsRetryable())
	assert.False(t, IssueAlreadyIssued.IsRetryable())
	assert.False(t, IssueOutOfStock.IsRetryable())
	assert.False(t, IssueSuccess.IsRetryable())
}

func validCreateRequest() CreateCouponRequest {
	now := time.Now()
	return CreateCouponRequest{
		Name:          "launch promo",
		DiscountType:  DiscountFixed,
		DiscountValue: decimal.NewFromInt(1000),
		TotalQuantity: 100,
		StartsAt:      now,
		EndsAt:        now.Add(24 * time.Hour),
	}
}

func TestCreateCouponRequestValidate(t *testing.T) {
	require.NoError(t, validCreateRequest().Validate())

	t.Run("quantity must be positive", func(t *testing.T) {
		r := validCreateRequest()
		r.TotalQuantity = -5
		assert.Error(t, r.Validate())
	})

	t.Run("unknown discount type", func(t *testing.T) {
		r := validCreateRequest()
		r.DiscountType = "BOGUS"
		assert.Error(t, r.Validate())
	})

	t.Run("window must end after it starts", func(t *testing.T) {
		r := validCreateRequest()
		r.EndsAt = r.StartsAt.Add(-time.Hour)
		assert.Error(t, r.Validate())
	})

	t.Run("rate capped at 100", func(t *testing.T) {
		r := validCreateRequest()
		r.DiscountType = DiscountRate
		r.DiscountValue = decimal.NewFromInt(150)
		assert.Error(t, r.Validate())

		r.DiscountValue = decimal.NewFromInt(15)
		assert.NoError(t, r.Validate())
	})

	t.Run("max discount must be positive when set", func(t *testing.T) {
		r := validCreateRequest()
		zero := decimal.Zero
		r.MaxDiscountAmount = &zero
		assert.Error(t, r.Validate())
	})
}

func TestCreateCouponRequestToCoupon(t *testing.T) {
	r := validCreateRequest()
	c := r.ToCoupon()

	assert.NotEqual(t, uuid.Nil, c.ID)
	assert.Equal(t, r.Name, c.Name)
	assert.Equal(t, r.TotalQuantity, c.TotalQuantity)
	assert.Equal(t, 0, c.IssuedQuantity)
	assert.True(t, c.EndsAt.After(c.StartsAt))
}
