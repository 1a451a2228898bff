package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ecommerce-backend/internal/domains/coupon/model"
)

// CouponTx exposes the durable writes allowed inside a coupon issuance
// transaction. The row was loaded FOR UPDATE before the callback runs, so
// implementations may assume exclusive access to the coupon row.
type CouponTx interface {
	// IncrementIssued bumps issued_quantity, guarded by the stock limit.
	// Returns model.ErrCouponOutOfStock when the guard rejects the update.
	IncrementIssued(ctx context.Context, couponID uuid.UUID) error

	// InsertUserCoupon persists an issued unit. Returns
	// model.ErrAlreadyIssued on the (user_id, coupon_id) unique violation.
	InsertUserCoupon(ctx context.Context, uc *model.UserCoupon) error

	// UserCouponExists checks for an existing issuance inside the tx.
	UserCouponExists(ctx context.Context, userID, couponID uuid.UUID) (bool, error)
}

// CouponTxFunc runs with the locked coupon snapshot and the tx handle.
type CouponTxFunc func(ctx context.Context, coupon *model.Coupon, tx CouponTx) error

type CouponRepository interface {
	FindByID(ctx context.Context, couponID uuid.UUID) (*model.Coupon, error)
	Create(ctx context.Context, coupon *model.Coupon) error

	// WithCouponTx loads the coupon (FOR UPDATE when lock is true) and runs
	// fn in a transaction. fn returning an error rolls everything back.
	WithCouponTx(ctx context.Context, couponID uuid.UUID, lock bool, fn CouponTxFunc) error
}

type UserCouponRepository interface {
	Exists(ctx context.Context, userID, couponID uuid.UUID) (bool, error)
	FindByUserAndCoupon(ctx context.Context, userID, couponID uuid.UUID) (*model.UserCoupon, error)
	Insert(ctx context.Context, uc *model.UserCoupon) error

	// ListUserIDs returns every user holding the coupon. Used to rebuild
	// the cache issued set during lazy synchronization.
	ListUserIDs(ctx context.Context, couponID uuid.UUID) ([]uuid.UUID, error)
}

type FailedRollbackRepository interface {
	Insert(ctx context.Context, fr *model.FailedRollback) error
	Update(ctx context.Context, fr *model.FailedRollback) error

	// ListPending returns the oldest PENDING records first, capped at limit.
	ListPending(ctx context.Context, limit int) ([]*model.FailedRollback, error)

	// DeleteFinishedBefore removes RESOLVED and IGNORED records whose
	// resolution predates the cutoff. Returns the number deleted.
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
