package issuer

import (
	"strings"

	"github.com/google/uuid"
)

// Cache key layout. Every per-coupon key carries the coupon id as its last
// segment so the sweep job can recover it from a scanned key.
const (
	stockKeyPrefix        = "coupon:stock:"
	issuedKeyPrefix       = "coupon:issued:"
	pendingKeyPrefix      = "coupon:pending:"
	initLockKeyPrefix     = "coupon:init:lock:"
	initCompleteKeyPrefix = "coupon:init:complete:"
	issueLockKeyPrefix    = "coupon:issue:"

	// PendingKeyPattern matches every per-coupon pending map.
	PendingKeyPattern = pendingKeyPrefix + "*"

	// CleanupLockKey guards the stale-reservation sweep so only one worker
	// runs it at a time.
	CleanupLockKey = "coupon:cleanup:pending:lock"
)

func StockKey(couponID uuid.UUID) string {
	return stockKeyPrefix + couponID.String()
}

func IssuedKey(couponID uuid.UUID) string {
	return issuedKeyPrefix + couponID.String()
}

func PendingKey(couponID uuid.UUID) string {
	return pendingKeyPrefix + couponID.String()
}

func InitLockKey(couponID uuid.UUID) string {
	return initLockKeyPrefix + couponID.String()
}

func InitCompleteKey(couponID uuid.UUID) string {
	return initCompleteKeyPrefix + couponID.String()
}

func IssueLockKey(couponID, userID uuid.UUID) string {
	return issueLockKeyPrefix + couponID.String() + ":" + userID.String()
}

// CouponIDFromPendingKey extracts the coupon id from a scanned pending key.
func CouponIDFromPendingKey(key string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimPrefix(key, pendingKeyPrefix))
}
