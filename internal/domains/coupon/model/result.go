package model

// IssueResult is the outcome of a single issuance attempt. Every attempt
// resolves to exactly one result; callers map it to a transport status.
type IssueResult string

const (
	IssueSuccess IssueResult = "SUCCESS"
	// IssueAlreadyIssued means the user already holds this coupon.
	IssueAlreadyIssued IssueResult = "ALREADY_ISSUED"
	// IssueOutOfStock means the pool is exhausted.
	IssueOutOfStock IssueResult = "OUT_OF_STOCK"
	// IssueCouponNotFound means no such coupon exists in the durable store.
	IssueCouponNotFound IssueResult = "COUPON_NOT_FOUND"
	// IssueNotAvailable means the attempt fell outside the validity window.
	IssueNotAvailable IssueResult = "NOT_AVAILABLE"
	// IssueReservationInProgress means the same user has a live pending
	// reservation for this coupon. Retryable after the pending timeout.
	IssueReservationInProgress IssueResult = "RESERVATION_IN_PROGRESS"
	// IssueLockOrIssueFailed means an infrastructure failure (mutex wait
	// timeout, open circuit breaker, backend error). Retryable.
	IssueLockOrIssueFailed IssueResult = "LOCK_OR_ISSUE_FAILED"
)

// Code returns the stable machine-readable error code for non-success
// results, and an empty string for SUCCESS.
func (r IssueResult) Code() string {
	switch r {
	case IssueCouponNotFound:
		return "COUPON_001"
	case IssueAlreadyIssued:
		return "COUPON_002"
	case IssueOutOfStock:
		return "COUPON_003"
	case IssueNotAvailable:
		return "COUPON_004"
	case IssueReservationInProgress:
		return "COUPON_005"
	case IssueLockOrIssueFailed:
		return "COUPON_006"
	default:
		return ""
	}
}

// Message returns the human-readable description of the result.
func (r IssueResult) Message() string {
	switch r {
	case IssueSuccess:
		return "coupon issued"
	case IssueAlreadyIssued:
		return "coupon already issued to this user"
	case IssueOutOfStock:
		return "coupon is out of stock"
	case IssueCouponNotFound:
		return "coupon not found"
	case IssueNotAvailable:
		return "coupon is not available for issuance"
	case IssueReservationInProgress:
		return "a previous issuance attempt is still in progress"
	case IssueLockOrIssueFailed:
		return "issuance temporarily unavailable, please retry"
	default:
		return "unknown result"
	}
}

// IsRetryable reports whether callers may safely retry the attempt.
func (r IssueResult) IsRetryable() bool {
	return r == IssueReservationInProgress || r == IssueLockOrIssueFailed
}
