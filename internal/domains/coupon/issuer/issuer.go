package issuer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ecommerce-backend/internal/domains/coupon/model"
)

// Outcome carries the result of one issuance attempt plus the observability
// extras each result can have.
type Outcome struct {
	Result model.IssueResult

	// RemainingStock is the post-reservation counter value. Only meaningful
	// on SUCCESS from the cache strategy; -1 when unknown.
	RemainingStock int64

	// PendingElapsed is the age of the blocking reservation on
	// RESERVATION_IN_PROGRESS.
	PendingElapsed time.Duration
}

// IssueManager is the admission-control contract shared by both issuance
// strategies. TryIssue returns a non-nil error only for infrastructure
// failures; business outcomes always arrive as an Outcome with a nil error.
type IssueManager interface {
	TryIssue(ctx context.Context, couponID, userID uuid.UUID) (Outcome, error)

	// HasAlreadyIssued is a best-effort membership check against the
	// fastest source the strategy has.
	HasAlreadyIssued(ctx context.Context, couponID, userID uuid.UUID) (bool, error)

	// Confirm finalizes a prior successful reservation. Idempotent.
	// Precondition: the durable issuance transaction has committed.
	Confirm(ctx context.Context, couponID, userID uuid.UUID) error

	// Rollback reverts a prior successful reservation. Idempotent, a no-op
	// when no pending entry exists.
	Rollback(ctx context.Context, couponID, userID uuid.UUID) error

	// ShouldUpdateCouponStock reports whether the caller still needs to run
	// the durable issuance transaction after a SUCCESS from TryIssue.
	ShouldUpdateCouponStock() bool
}
