package service

import (
	"context"
	"time"

	"ecommerce-backend/internal/config"
	"ecommerce-backend/internal/domains/coupon/issuer"
	"ecommerce-backend/internal/domains/coupon/model"
	"ecommerce-backend/internal/domains/coupon/repository"
	"ecommerce-backend/pkg/logger"
)

// recoveryActor is recorded as resolved_by on records the scheduler closes,
// distinguishing them from manually handled ones.
const recoveryActor = "recovery-scheduler"

// recoveryService replays failed cache rollbacks. It is wired with the bare
// cache issuer, not the circuit-breaker wrapper: a recovery pass must see
// real failures so retry counts stay honest.
type recoveryService struct {
	rollbacks   repository.FailedRollbackRepository
	userCoupons repository.UserCouponRepository
	issuer      issuer.IssueManager
	cfg         config.CouponConfig
}

func NewRecoveryService(
	rollbacks repository.FailedRollbackRepository,
	userCoupons repository.UserCouponRepository,
	mgr issuer.IssueManager,
	cfg config.CouponConfig,
) RecoveryService {
	return &recoveryService{
		rollbacks:   rollbacks,
		userCoupons: userCoupons,
		issuer:      mgr,
		cfg:         cfg,
	}
}

func (s *recoveryService) ProcessPending(ctx context.Context, batchSize int) (model.RecoveryStats, error) {
	var stats model.RecoveryStats

	if batchSize <= 0 {
		batchSize = s.cfg.RecoveryBatchSize
	}

	records, err := s.rollbacks.ListPending(ctx, batchSize)
	if err != nil {
		return stats, err
	}

	for _, fr := range records {
		// one bad record must not sink the batch
		if err := s.processRecord(ctx, fr, &stats); err != nil {
			stats.Failed++
			logger.ErrorWithFields("failed to process rollback recovery record", err, map[string]interface{}{
				"record_id": fr.ID,
				"coupon_id": fr.CouponID,
				"user_id":   fr.UserID,
			})
		}
		stats.Processed++
	}

	if stats.Processed > 0 {
		logger.Info("rollback recovery batch finished", map[string]interface{}{
			"processed": stats.Processed,
			"resolved":  stats.Resolved,
			"ignored":   stats.Ignored,
			"retried":   stats.Retried,
			"failed":    stats.Failed,
		})
	}
	return stats, nil
}

func (s *recoveryService) processRecord(ctx context.Context, fr *model.FailedRollback, stats *model.RecoveryStats) error {
	now := time.Now()

	// the issuance may actually have committed, in which case the
	// reservation must NOT be reverted
	exists, err := s.userCoupons.Exists(ctx, fr.UserID, fr.CouponID)
	if err != nil {
		return err
	}
	if exists {
		fr.Ignore(now, recoveryActor)
		if err := s.rollbacks.Update(ctx, fr); err != nil {
			return err
		}
		stats.Ignored++
		return nil
	}

	if !fr.CanRetry(s.cfg.RecoveryMaxRetries) {
		// left PENDING on purpose, flagged for manual handling
		logger.Warn("rollback recovery record exhausted retries", map[string]interface{}{
			"record_id":   fr.ID,
			"coupon_id":   fr.CouponID,
			"user_id":     fr.UserID,
			"retry_count": fr.RetryCount,
		})
		return nil
	}

	if err := s.issuer.Rollback(ctx, fr.CouponID, fr.UserID); err != nil {
		fr.IncrementRetryCount(err.Error(), now)
		if updateErr := s.rollbacks.Update(ctx, fr); updateErr != nil {
			return updateErr
		}
		stats.Retried++
		return nil
	}

	fr.Resolve(now, recoveryActor)
	if err := s.rollbacks.Update(ctx, fr); err != nil {
		return err
	}
	stats.Resolved++
	return nil
}

func (s *recoveryService) CleanupOldRecords(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.cfg.RecoveryRetention)

	deleted, err := s.rollbacks.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		logger.Info("purged finished rollback recovery records", map[string]interface{}{
			"deleted": deleted,
			"cutoff":  cutoff,
		})
	}
	return deleted, nil
}
