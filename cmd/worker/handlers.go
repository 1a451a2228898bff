package main

import (
	"github.com/hibiken/asynq"

	couponJob "ecommerce-backend/internal/domains/coupon/job"
	"ecommerce-backend/internal/shared"
	"ecommerce-backend/pkg/container"
)

// HandlerRegistry holds all job handlers
type HandlerRegistry struct {
	recoverRollbacks *couponJob.RecoverFailedRollbacksHandler
	cleanupRecovery  *couponJob.CleanupRecoveryRecordsHandler

	// nil under the lock strategy
	cleanupPending *couponJob.CleanupStalePendingHandler
}

// initializeHandlers creates all job handlers with their dependencies
func initializeHandlers(c *container.Container) *HandlerRegistry {
	registry := &HandlerRegistry{
		recoverRollbacks: couponJob.NewRecoverFailedRollbacksHandler(c.RecoveryService),
		cleanupRecovery:  couponJob.NewCleanupRecoveryRecordsHandler(c.RecoveryService),
	}

	if c.RedisIssuer != nil {
		registry.cleanupPending = couponJob.NewCleanupStalePendingHandler(
			c.Cache.Client,
			c.RedisIssuer,
			c.Config.Coupon,
		)
	}

	return registry
}

// RegisterHandlers registers all handlers with the mux
func (h *HandlerRegistry) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(shared.TypeRecoverFailedRollbacks, h.recoverRollbacks.ProcessTask)
	mux.HandleFunc(shared.TypeCleanupRecoveryRecords, h.cleanupRecovery.ProcessTask)

	if h.cleanupPending != nil {
		mux.HandleFunc(shared.TypeCleanupStalePending, h.cleanupPending.ProcessTask)
	}
}
