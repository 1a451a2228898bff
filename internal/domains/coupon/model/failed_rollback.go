package model

import (
	"time"

	"github.com/google/uuid"
)

// FailedRollbackStatus is the lifecycle state of a recovery record.
type FailedRollbackStatus string

const (
	FailedRollbackPending  FailedRollbackStatus = "PENDING"
	FailedRollbackResolved FailedRollbackStatus = "RESOLVED"
	FailedRollbackIgnored  FailedRollbackStatus = "IGNORED"
)

// ErrorMessageMaxLen caps the stored error text so a pathological driver
// error cannot bloat the recovery table.
const ErrorMessageMaxLen = 500

// FailedRollback is a durable record of a cache rollback that could not be
// completed after the durable issuance aborted. The recovery scheduler picks
// these up and either replays the rollback or marks the record terminal.
type FailedRollback struct {
	ID       uuid.UUID            `json:"id"`
	CouponID uuid.UUID            `json:"coupon_id"`
	UserID   uuid.UUID            `json:"user_id"`
	Status   FailedRollbackStatus `json:"status"`

	// OriginalError is why the durable issuance aborted; RollbackError is
	// why the subsequent cache rollback could not be completed.
	OriginalError string `json:"original_error"`
	RollbackError string `json:"rollback_error"`

	RetryCount int        `json:"retry_count"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy string     `json:"resolved_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// NewFailedRollback builds a PENDING record for the given reservation. Both
// error texts are truncated to ErrorMessageMaxLen.
func NewFailedRollback(couponID, userID uuid.UUID, originalErr, rollbackErr string, now time.Time) *FailedRollback {
	return &FailedRollback{
		ID:            uuid.New(),
		CouponID:      couponID,
		UserID:        userID,
		Status:        FailedRollbackPending,
		OriginalError: truncateError(originalErr),
		RollbackError: truncateError(rollbackErr),
		RetryCount:    0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func truncateError(msg string) string {
	if len(msg) > ErrorMessageMaxLen {
		return msg[:ErrorMessageMaxLen]
	}
	return msg
}

// CanRetry reports whether the record is still eligible for another rollback
// attempt given the configured cap.
func (fr *FailedRollback) CanRetry(maxRetries int) bool {
	return fr.Status == FailedRollbackPending && fr.RetryCount < maxRetries
}

// Resolve marks the record terminal after a successful replayed rollback.
func (fr *FailedRollback) Resolve(now time.Time, by string) {
	fr.Status = FailedRollbackResolved
	fr.ResolvedAt = &now
	fr.ResolvedBy = by
	fr.UpdatedAt = now
}

// Ignore marks the record terminal without acting on it, used when the
// durable issuance turned out to have succeeded after all.
func (fr *FailedRollback) Ignore(now time.Time, by string) {
	fr.Status = FailedRollbackIgnored
	fr.ResolvedAt = &now
	fr.ResolvedBy = by
	fr.UpdatedAt = now
}

// IncrementRetryCount records one more failed rollback attempt and the
// latest failure text.
func (fr *FailedRollback) IncrementRetryCount(rollbackErr string, now time.Time) {
	fr.RetryCount++
	fr.RollbackError = truncateError(rollbackErr)
	fr.UpdatedAt = now
}

// IsFinished reports whether the record is in a terminal state.
func (fr *FailedRollback) IsFinished() bool {
	return fr.Status == FailedRollbackResolved || fr.Status == FailedRollbackIgnored
}
