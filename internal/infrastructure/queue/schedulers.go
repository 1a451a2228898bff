package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"ecommerce-backend/internal/config"
	"ecommerce-backend/internal/shared"
	"ecommerce-backend/pkg/logger"
)

type Scheduler struct {
	scheduler *asynq.Scheduler
	couponCfg config.CouponConfig
}

func NewScheduler(redisCfg config.RedisConfig, couponCfg config.CouponConfig) *Scheduler {
	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{
			Addr:     redisCfg.Host,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		},
		&asynq.SchedulerOpts{
			Location: time.UTC,
			LogLevel: asynq.InfoLevel,
		},
	)

	return &Scheduler{
		scheduler: scheduler,
		couponCfg: couponCfg,
	}
}

func (s *Scheduler) RegisterCouponJobs() error {
	if err := s.registerRecoverFailedRollbacksJob(); err != nil {
		return err
	}

	if err := s.registerCleanupRecoveryRecordsJob(); err != nil {
		return err
	}

	// the pending sweep only matters for the two-phase strategy
	if s.couponCfg.Strategy == config.StrategyRedis {
		if err := s.registerCleanupStalePendingJob(); err != nil {
			return err
		}
	}

	return nil
}

// ================================================
// JOB 1: Recover Failed Rollbacks (every 5 minutes)
// ================================================
func (s *Scheduler) registerRecoverFailedRollbacksJob() error {
	payload, err := json.Marshal(shared.RecoverFailedRollbacksPayload{})
	if err != nil {
		return err
	}

	task := asynq.NewTask(shared.TypeRecoverFailedRollbacks, payload)

	_, err = s.scheduler.Register(
		fmt.Sprintf("@every %s", s.couponCfg.RecoveryInterval),
		task,
		asynq.Queue(shared.QueueCoupon),
		asynq.MaxRetry(1),
		asynq.Timeout(2*time.Minute),
	)

	if err != nil {
		logger.Error("Failed to register RecoverFailedRollbacks job", err)
		return err
	}

	logger.Info("✓ Registered RecoverFailedRollbacks", map[string]interface{}{
		"interval": s.couponCfg.RecoveryInterval.String(),
	})
	return nil
}

// ================================================
// JOB 2: Cleanup Recovery Records (daily at 3 AM)
// ================================================
func (s *Scheduler) registerCleanupRecoveryRecordsJob() error {
	payload, err := json.Marshal(shared.CleanupRecoveryRecordsPayload{})
	if err != nil {
		return err
	}

	task := asynq.NewTask(shared.TypeCleanupRecoveryRecords, payload)

	_, err = s.scheduler.Register(
		"0 3 * * *", // low-traffic window
		task,
		asynq.Queue(shared.QueueCoupon),
		asynq.MaxRetry(2),
		asynq.Timeout(10*time.Minute),
	)

	if err != nil {
		logger.Error("Failed to register CleanupRecoveryRecords job", err)
		return err
	}

	logger.Info("✓ Registered CleanupRecoveryRecords: daily at 3 AM", map[string]interface{}{})
	return nil
}

// ================================================
// JOB 3: Cleanup Stale Pending Reservations
// ================================================
func (s *Scheduler) registerCleanupStalePendingJob() error {
	payload, err := json.Marshal(shared.CleanupStalePendingPayload{})
	if err != nil {
		return err
	}

	task := asynq.NewTask(shared.TypeCleanupStalePending, payload)

	_, err = s.scheduler.Register(
		fmt.Sprintf("@every %s", s.couponCfg.CleanupInterval),
		task,
		asynq.Queue(shared.QueueCoupon),
		asynq.MaxRetry(1),
		asynq.Timeout(time.Minute),
	)

	if err != nil {
		logger.Error("Failed to register CleanupStalePending job", err)
		return err
	}

	logger.Info("✓ Registered CleanupStalePending", map[string]interface{}{
		"interval": s.couponCfg.CleanupInterval.String(),
	})
	return nil
}

func (s *Scheduler) Start() error {
	return s.scheduler.Run()
}

func (s *Scheduler) Shutdown() {
	s.scheduler.Shutdown()
}
