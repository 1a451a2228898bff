package model

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// IssueCouponRequest is the transport payload for an issuance attempt.
type IssueCouponRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

// IssueCouponResponse is returned on a successful issuance.
type IssueCouponResponse struct {
	CouponID  uuid.UUID `json:"coupon_id"`
	UserID    uuid.UUID `json:"user_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateCouponRequest is the admin payload for registering a new campaign.
type CreateCouponRequest struct {
	Name              string           `json:"name"`
	DiscountType      DiscountType     `json:"discount_type"`
	DiscountValue     decimal.Decimal  `json:"discount_value"`
	MaxDiscountAmount *decimal.Decimal `json:"max_discount_amount"`
	MinOrderAmount    decimal.Decimal  `json:"min_order_amount"`
	TotalQuantity     int              `json:"total_quantity"`
	StartsAt          time.Time        `json:"starts_at"`
	EndsAt            time.Time        `json:"ends_at"`
}

// Validate validates CreateCouponRequest
func (r CreateCouponRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name,
			validation.Required.Error("name is required"),
			validation.Length(1, 200).Error("name must be 1-200 characters"),
		),
		validation.Field(&r.DiscountType,
			validation.Required.Error("discount type is required"),
			validation.In(DiscountFixed, DiscountRate).Error("discount type must be FIXED or RATE"),
		),
		validation.Field(&r.DiscountValue,
			validation.By(r.validateDiscountValue),
		),
		validation.Field(&r.MaxDiscountAmount,
			validation.By(r.validateMaxDiscount),
		),
		validation.Field(&r.MinOrderAmount,
			validation.By(nonNegativeDecimal),
		),
		validation.Field(&r.TotalQuantity,
			validation.Required.Error("total quantity is required"),
			validation.Min(1).Error("total quantity must be at least 1"),
		),
		validation.Field(&r.StartsAt,
			validation.Required.Error("starts_at is required"),
		),
		validation.Field(&r.EndsAt,
			validation.Required.Error("ends_at is required"),
			validation.By(r.validateWindow),
		),
	)
}

func (r CreateCouponRequest) validateDiscountValue(_ interface{}) error {
	if r.DiscountValue.LessThanOrEqual(decimal.Zero) {
		return errors.New("must be greater than zero")
	}
	if r.DiscountType == DiscountRate && r.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
		return errors.New("rate must not exceed 100")
	}
	return nil
}

func (r CreateCouponRequest) validateMaxDiscount(_ interface{}) error {
	if r.MaxDiscountAmount == nil {
		return nil
	}
	if r.MaxDiscountAmount.LessThanOrEqual(decimal.Zero) {
		return errors.New("must be greater than zero")
	}
	return nil
}

func (r CreateCouponRequest) validateWindow(_ interface{}) error {
	if !r.EndsAt.After(r.StartsAt) {
		return errors.New("must be after starts_at")
	}
	return nil
}

func nonNegativeDecimal(value interface{}) error {
	d, ok := value.(decimal.Decimal)
	if !ok {
		return errors.New("must be a decimal amount")
	}
	if d.IsNegative() {
		return errors.New("must not be negative")
	}
	return nil
}

// ToCoupon builds the aggregate persisted by the service.
func (r CreateCouponRequest) ToCoupon() *Coupon {
	return &Coupon{
		ID:                uuid.New(),
		Name:              r.Name,
		DiscountType:      r.DiscountType,
		DiscountValue:     r.DiscountValue,
		MaxDiscountAmount: r.MaxDiscountAmount,
		MinOrderAmount:    r.MinOrderAmount,
		TotalQuantity:     r.TotalQuantity,
		StartsAt:          r.StartsAt,
		EndsAt:            r.EndsAt,
	}
}

// RecoveryStats summarizes one recovery batch run.
type RecoveryStats struct {
	Processed int `json:"processed"`
	Resolved  int `json:"resolved"`
	Ignored   int `json:"ignored"`
	Retried   int `json:"retried"`
	Failed    int `json:"failed"`
}
