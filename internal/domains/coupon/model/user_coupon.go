package model

import (
	"time"

	"github.com/google/uuid"
)

// UserCouponStatus is the lifecycle state of an issued coupon unit.
type UserCouponStatus string

const (
	UserCouponAvailable UserCouponStatus = "AVAILABLE"
	UserCouponUsed      UserCouponStatus = "USED"
)

// UserCoupon records a single issuance of a coupon to a user. The unique
// (user_id, coupon_id) constraint on its table is the last line of defense
// against duplicate issuance.
type UserCoupon struct {
	ID        uuid.UUID        `json:"id"`
	UserID    uuid.UUID        `json:"user_id"`
	CouponID  uuid.UUID        `json:"coupon_id"`
	Status    UserCouponStatus `json:"status"`
	IssuedAt  time.Time        `json:"issued_at"`
	ExpiresAt time.Time        `json:"expires_at"`
	UsedAt    *time.Time       `json:"used_at,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// NewUserCoupon builds an AVAILABLE user coupon issued at the given time
// with the given validity duration.
func NewUserCoupon(userID, couponID uuid.UUID, now time.Time, validity time.Duration) *UserCoupon {
	return &UserCoupon{
		ID:        uuid.New(),
		UserID:    userID,
		CouponID:  couponID,
		Status:    UserCouponAvailable,
		IssuedAt:  now,
		ExpiresAt: now.Add(validity),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsExpired reports whether the coupon unit can no longer be redeemed.
func (uc *UserCoupon) IsExpired(now time.Time) bool {
	return !now.Before(uc.ExpiresAt)
}

// Use marks the coupon unit as redeemed.
func (uc *UserCoupon) Use(now time.Time) error {
	if uc.Status != UserCouponAvailable {
		return ErrUserCouponNotAvailable
	}
	if uc.IsExpired(now) {
		return ErrUserCouponExpired
	}
	uc.Status = UserCouponUsed
	uc.UsedAt = &now
	uc.UpdatedAt = now
	return nil
}
