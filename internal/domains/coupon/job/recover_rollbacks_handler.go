package job

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"ecommerce-backend/internal/domains/coupon/service"
	"ecommerce-backend/internal/shared"
	"ecommerce-backend/internal/shared/utils"
	"ecommerce-backend/pkg/logger"
)

// ================================================
// RECOVER FAILED ROLLBACKS JOB HANDLER
// ================================================

type RecoverFailedRollbacksHandler struct {
	recoveryService service.RecoveryService
}

func NewRecoverFailedRollbacksHandler(
	recoveryService service.RecoveryService,
) *RecoverFailedRollbacksHandler {
	return &RecoverFailedRollbacksHandler{
		recoveryService: recoveryService,
	}
}

func (h *RecoverFailedRollbacksHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload shared.RecoverFailedRollbacksPayload
	if err := utils.UnmarshalTask(t, &payload); err != nil {
		logger.Error("Failed to unmarshal recover_failed_rollbacks payload, using default batch size", err)
	}

	logger.Info("Starting RecoverFailedRollbacks job", map[string]interface{}{
		"batch_size_override": payload.BatchSize,
	})
	stats, err := h.recoveryService.ProcessPending(ctx, payload.BatchSize)
	if err != nil {
		return fmt.Errorf("recover failed rollbacks: %w", err)
	}
	logger.Info("Completed RecoverFailedRollbacks job", map[string]interface{}{
		"processed": stats.Processed,
		"resolved":  stats.Resolved,
		"ignored":   stats.Ignored,
		"retried":   stats.Retried,
		"failed":    stats.Failed,
	})
	return nil
}
