package shared

// Asynq task types for the coupon recovery pipeline.
const (
	TypeRecoverFailedRollbacks = "coupon:recover_failed_rollbacks"
	TypeCleanupRecoveryRecords = "coupon:cleanup_recovery_records"
	TypeCleanupStalePending    = "coupon:cleanup_stale_pending"
)

// Queue names
const (
	QueueCoupon  = "coupon"
	QueueDefault = "default"
)

// RecoverFailedRollbacksPayload carries overrides for the recovery batch job.
type RecoverFailedRollbacksPayload struct {
	BatchSize int `json:"batchSize,omitempty"`
}

// CleanupRecoveryRecordsPayload is empty; retention comes from config.
type CleanupRecoveryRecordsPayload struct{}

// CleanupStalePendingPayload is empty; timeouts come from config.
type CleanupStalePendingPayload struct{}
