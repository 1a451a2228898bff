package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecommerce-backend/internal/config"
	"ecommerce-backend/internal/domains/coupon/issuer"
	"ecommerce-backend/internal/domains/coupon/model"
	"ecommerce-backend/internal/domains/coupon/repository"
)

func serviceCouponConfig() config.CouponConfig {
	return config.CouponConfig{
		Strategy:           config.StrategyRedis,
		PendingTimeout:     30 * time.Second,
		CleanupTimeout:     60 * time.Second,
		InitLockTTL:        10 * time.Second,
		InitPollInterval:   10 * time.Millisecond,
		InitMaxPolls:       50,
		UserCouponValidity: 30 * 24 * time.Hour,
		KeyTTL:             31 * 24 * time.Hour,
	}
}

type serviceFixture struct {
	svc         CouponService
	redisIssuer *issuer.RedisIssuer
	coupons     *repository.MemoryCouponRepository
	userCoupons *repository.MemoryUserCouponRepository
	rollbacks   *repository.MemoryFailedRollbackRepository
	couponID    uuid.UUID
}

// newServiceFixture wires the full two-phase pipeline over miniredis and
// in-memory durable stores.
func newServiceFixture(t *testing.T, total int) *serviceFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	coupons, userCoupons, rollbacks := repository.NewMemoryStores()

	now := time.Now()
	coupon := &model.Coupon{
		ID:            uuid.New(),
		Name:          "grand opening",
		DiscountType:  model.DiscountFixed,
		TotalQuantity: total,
		StartsAt:      now.Add(-time.Hour),
		EndsAt:        now.Add(time.Hour),
	}
	require.NoError(t, coupons.Create(context.Background(), coupon))

	cfg := serviceCouponConfig()
	redisIssuer := issuer.NewRedisIssuer(client, coupons, userCoupons, cfg)
	finalizer := NewReservationFinalizer(redisIssuer, rollbacks)
	svc := NewCouponService(coupons, userCoupons, redisIssuer, finalizer, cfg)

	return &serviceFixture{
		svc:         svc,
		redisIssuer: redisIssuer,
		coupons:     coupons,
		userCoupons: userCoupons,
		rollbacks:   rollbacks,
		couponID:    coupon.ID,
	}
}

func TestIssueCouponEndToEnd(t *testing.T) {
	f := newServiceFixture(t, 10)
	ctx := context.Background()
	userID := uuid.New()

	result, res, err := f.svc.IssueCoupon(ctx, f.couponID, userID)
	require.NoError(t, err)
	require.Equal(t, model.IssueSuccess, result)
	require.NotNil(t, res)
	assert.Equal(t, userID, res.UserID)
	assert.Equal(t, f.couponID, res.CouponID)
	assert.True(t, res.ExpiresAt.After(res.IssuedAt))

	// durable side
	coupon, err := f.coupons.FindByID(ctx, f.couponID)
	require.NoError(t, err)
	assert.Equal(t, 1, coupon.IssuedQuantity)

	exists, err := f.userCoupons.Exists(ctx, userID, f.couponID)
	require.NoError(t, err)
	assert.True(t, exists)

	// cache side converged: confirmed, nothing pending
	issued, err := f.redisIssuer.HasAlreadyIssued(ctx, f.couponID, userID)
	require.NoError(t, err)
	assert.True(t, issued)

	pending, err := f.redisIssuer.PendingEntries(ctx, f.couponID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestIssueCouponDuplicate(t *testing.T) {
	f := newServiceFixture(t, 10)
	ctx := context.Background()
	userID := uuid.New()

	result, _, err := f.svc.IssueCoupon(ctx, f.couponID, userID)
	require.NoError(t, err)
	require.Equal(t, model.IssueSuccess, result)

	result, res, err := f.svc.IssueCoupon(ctx, f.couponID, userID)
	require.NoError(t, err)
	assert.Equal(t, model.IssueAlreadyIssued, result)
	assert.Nil(t, res)

	coupon, err := f.coupons.FindByID(ctx, f.couponID)
	require.NoError(t, err)
	assert.Equal(t, 1, coupon.IssuedQuantity)
}

func TestIssueCouponNotFound(t *testing.T) {
	f := newServiceFixture(t, 10)

	result, res, err := f.svc.IssueCoupon(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, model.IssueCouponNotFound, result)
	assert.Nil(t, res)
}

func TestIssueCouponOutsideWindow(t *testing.T) {
	f := newServiceFixture(t, 10)
	ctx := context.Background()

	future := &model.Coupon{
		ID:            uuid.New(),
		Name:          "not yet",
		DiscountType:  model.DiscountFixed,
		TotalQuantity: 10,
		StartsAt:      time.Now().Add(time.Hour),
		EndsAt:        time.Now().Add(2 * time.Hour),
	}
	require.NoError(t, f.coupons.Create(ctx, future))

	result, _, err := f.svc.IssueCoupon(ctx, future.ID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, model.IssueNotAvailable, result)
}

func TestIssueCouponDurableConflictRollsBack(t *testing.T) {
	f := newServiceFixture(t, 10)
	ctx := context.Background()
	userID := uuid.New()

	// seed the cache first, then write the durable row behind its back so
	// the reservation succeeds and the durable insert conflicts
	_, _, err := f.svc.IssueCoupon(ctx, f.couponID, uuid.New())
	require.NoError(t, err)

	uc := model.NewUserCoupon(userID, f.couponID, time.Now(), 30*24*time.Hour)
	require.NoError(t, f.userCoupons.Insert(ctx, uc))

	stockBefore, err := f.redisIssuer.RemainingStock(ctx, f.couponID)
	require.NoError(t, err)

	result, res, err := f.svc.IssueCoupon(ctx, f.couponID, userID)
	require.NoError(t, err)
	assert.Equal(t, model.IssueAlreadyIssued, result)
	assert.Nil(t, res)

	// the aborted reservation returned its unit
	stockAfter, err := f.redisIssuer.RemainingStock(ctx, f.couponID)
	require.NoError(t, err)
	assert.Equal(t, stockBefore, stockAfter)
}

func TestIssueCouponCapacityThroughService(t *testing.T) {
	f := newServiceFixture(t, 3)
	ctx := context.Background()

	var success, outOfStock int
	for i := 0; i < 8; i++ {
		result, _, err := f.svc.IssueCoupon(ctx, f.couponID, uuid.New())
		require.NoError(t, err)
		switch result {
		case model.IssueSuccess:
			success++
		case model.IssueOutOfStock:
			outOfStock++
		default:
			t.Fatalf("unexpected result %s", result)
		}
	}

	assert.Equal(t, 3, success)
	assert.Equal(t, 5, outOfStock)

	coupon, err := f.coupons.FindByID(ctx, f.couponID)
	require.NoError(t, err)
	assert.Equal(t, 3, coupon.IssuedQuantity)
}

func TestGetAndCreateCoupon(t *testing.T) {
	f := newServiceFixture(t, 10)
	ctx := context.Background()

	coupon, err := f.svc.GetCoupon(ctx, f.couponID)
	require.NoError(t, err)
	assert.Equal(t, f.couponID, coupon.ID)

	newCoupon := &model.Coupon{
		Name:          "autumn",
		DiscountType:  model.DiscountRate,
		TotalQuantity: 5,
		StartsAt:      time.Now(),
		EndsAt:        time.Now().Add(time.Hour),
	}
	require.NoError(t, f.svc.CreateCoupon(ctx, newCoupon))
	assert.NotEqual(t, uuid.Nil, newCoupon.ID, "id assigned when absent")
}
