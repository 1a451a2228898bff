package service

import (
	"context"

	"github.com/google/uuid"

	"ecommerce-backend/internal/domains/coupon/model"
)

type CouponService interface {
	// IssueCoupon runs one issuance attempt end to end. The response is
	// non-nil only when the result is SUCCESS. A non-nil error always comes
	// with LOCK_OR_ISSUE_FAILED and is safe to retry.
	IssueCoupon(ctx context.Context, couponID, userID uuid.UUID) (model.IssueResult, *model.IssueCouponResponse, error)

	GetCoupon(ctx context.Context, couponID uuid.UUID) (*model.Coupon, error)
	CreateCoupon(ctx context.Context, coupon *model.Coupon) error
}

type RecoveryService interface {
	// ProcessPending works through one batch of PENDING recovery records.
	// batchSize <= 0 falls back to the configured default.
	ProcessPending(ctx context.Context, batchSize int) (model.RecoveryStats, error)

	// CleanupOldRecords purges terminal records past the retention window.
	CleanupOldRecords(ctx context.Context) (int64, error)
}
