package job

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"ecommerce-backend/internal/domains/coupon/service"
	"ecommerce-backend/pkg/logger"
)

// ================================================
// CLEANUP RECOVERY RECORDS JOB HANDLER
// ================================================

type CleanupRecoveryRecordsHandler struct {
	recoveryService service.RecoveryService
}

func NewCleanupRecoveryRecordsHandler(
	recoveryService service.RecoveryService,
) *CleanupRecoveryRecordsHandler {
	return &CleanupRecoveryRecordsHandler{
		recoveryService: recoveryService,
	}
}

func (h *CleanupRecoveryRecordsHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logger.Info("Starting CleanupRecoveryRecords job", nil)
	deleted, err := h.recoveryService.CleanupOldRecords(ctx)
	if err != nil {
		return fmt.Errorf("cleanup recovery records: %w", err)
	}
	logger.Info("Completed CleanupRecoveryRecords job", map[string]interface{}{
		"deleted_count": deleted,
	})
	return nil
}
