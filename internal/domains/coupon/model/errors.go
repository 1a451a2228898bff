package model

import "errors"

var (
	ErrCouponNotFound         = errors.New("coupon not found")
	ErrCouponNotAvailable     = errors.New("coupon not available for issuance")
	ErrCouponOutOfStock       = errors.New("coupon out of stock")
	ErrAlreadyIssued          = errors.New("coupon already issued to user")
	ErrUserCouponNotFound     = errors.New("user coupon not found")
	ErrUserCouponNotAvailable = errors.New("user coupon not available")
	ErrUserCouponExpired      = errors.New("user coupon expired")
	ErrFailedRollbackNotFound = errors.New("failed rollback record not found")
	ErrStockNotInitialized    = errors.New("coupon stock not initialized in cache")
)
