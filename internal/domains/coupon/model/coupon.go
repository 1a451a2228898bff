package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DiscountType determines how a coupon's value is applied at checkout.
type DiscountType string

const (
	DiscountFixed DiscountType = "FIXED" // flat amount off
	DiscountRate  DiscountType = "RATE"  // percentage off, capped by MaxDiscountAmount
)

// Coupon is the durable aggregate for a limited issuance campaign.
// issued_quantity is the source of truth for how many units left the pool;
// it only ever grows (administrative corrections aside).
type Coupon struct {
	ID                uuid.UUID        `json:"id"`
	Name              string           `json:"name"`
	DiscountType      DiscountType     `json:"discount_type"`
	DiscountValue     decimal.Decimal  `json:"discount_value"`
	MaxDiscountAmount *decimal.Decimal `json:"max_discount_amount,omitempty"` // only for RATE coupons
	MinOrderAmount    decimal.Decimal  `json:"min_order_amount"`
	TotalQuantity     int              `json:"total_quantity"`
	IssuedQuantity    int              `json:"issued_quantity"`
	StartsAt          time.Time        `json:"starts_at"`
	EndsAt            time.Time        `json:"ends_at"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// IsWithinWindow reports whether the coupon can be issued at the given time.
// The validity window is [StartsAt, EndsAt).
func (c *Coupon) IsWithinWindow(now time.Time) bool {
	return !now.Before(c.StartsAt) && now.Before(c.EndsAt)
}

// HasStock reports whether unissued units remain.
func (c *Coupon) HasStock() bool {
	return c.IssuedQuantity < c.TotalQuantity
}

// CanIssue combines the window and stock checks.
func (c *Coupon) CanIssue(now time.Time) bool {
	return c.IsWithinWindow(now) && c.HasStock()
}

// Remaining returns the number of units not yet issued.
func (c *Coupon) Remaining() int {
	return c.TotalQuantity - c.IssuedQuantity
}

// Issue increments the issued counter. Callers must have verified CanIssue
// under a lock that excludes concurrent writers.
func (c *Coupon) Issue(now time.Time) error {
	if !c.CanIssue(now) {
		if !c.IsWithinWindow(now) {
			return ErrCouponNotAvailable
		}
		return ErrCouponOutOfStock
	}
	c.IssuedQuantity++
	c.UpdatedAt = now
	return nil
}
