package issuer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"ecommerce-backend/internal/config"
	"ecommerce-backend/internal/domains/coupon/model"
	"ecommerce-backend/internal/domains/coupon/repository"
	"ecommerce-backend/pkg/logger"
)

// Script result codes. The issue script returns {code, extra} where extra is
// the post-decrement stock on success and the pending age in ms on an
// in-progress reservation.
const (
	scriptSuccess        = 1
	scriptAlreadyIssued  = -1
	scriptOutOfStock     = -2
	scriptNotInitialized = -3
	scriptInProgress     = -4
)

// issueScript performs the whole admission decision in one atomic round
// trip: issued-set check, pending check with stale reclaim, stock check and
// decrement, pending registration.
//
// KEYS[1] stock counter, KEYS[2] issued set, KEYS[3] pending map
// ARGV[1] user id, ARGV[2] now (ms), ARGV[3] pending timeout (ms),
// ARGV[4] key TTL (s)
var issueScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[2], ARGV[1]) == 1 then
	return {-1, 0}
end
local pendingAt = redis.call('HGET', KEYS[3], ARGV[1])
if pendingAt then
	local elapsed = tonumber(ARGV[2]) - tonumber(pendingAt)
	if elapsed < tonumber(ARGV[3]) then
		return {-4, elapsed}
	end
	redis.call('HDEL', KEYS[3], ARGV[1])
	if redis.call('EXISTS', KEYS[1]) == 1 then
		redis.call('INCR', KEYS[1])
	end
end
if redis.call('EXISTS', KEYS[1]) == 0 then
	return {-3, 0}
end
local stock = tonumber(redis.call('GET', KEYS[1]))
if stock <= 0 then
	return {-2, 0}
end
local newStock = redis.call('DECR', KEYS[1])
if newStock < 0 then
	redis.call('INCR', KEYS[1])
	return {-2, 0}
end
redis.call('HSET', KEYS[3], ARGV[1], ARGV[2])
redis.call('EXPIRE', KEYS[1], ARGV[4])
redis.call('EXPIRE', KEYS[3], ARGV[4])
return {1, newStock}
`)

// confirmScript moves a reservation into the issued set. The add is
// unconditional: confirm only runs after the durable write committed, so
// the cache is forced into agreement even when the pending entry is gone.
//
// KEYS[1] pending map, KEYS[2] issued set
// ARGV[1] user id, ARGV[2] key TTL (s)
var confirmScript = redis.NewScript(`
redis.call('HDEL', KEYS[1], ARGV[1])
local added = redis.call('SADD', KEYS[2], ARGV[1])
redis.call('EXPIRE', KEYS[2], ARGV[2])
return added
`)

// rollbackScript returns a reserved unit to the pool. The increment only
// happens when a pending entry was actually removed, so a double rollback
// cannot inflate stock.
//
// KEYS[1] stock counter, KEYS[2] pending map
// ARGV[1] user id, ARGV[2] key TTL (s)
var rollbackScript = redis.NewScript(`
if redis.call('HDEL', KEYS[2], ARGV[1]) == 1 then
	redis.call('INCR', KEYS[1])
	redis.call('EXPIRE', KEYS[1], ARGV[2])
	return 1
end
return 0
`)

// reclaimScript is the sweep variant of rollback: it only reclaims the
// entry when the timestamp still matches what the sweeper observed, so a
// reservation refreshed between scan and reclaim survives.
//
// KEYS[1] pending map, KEYS[2] stock counter
// ARGV[1] user id, ARGV[2] observed timestamp (ms), ARGV[3] key TTL (s)
var reclaimScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], ARGV[1])
if cur and cur == ARGV[2] then
	redis.call('HDEL', KEYS[1], ARGV[1])
	redis.call('INCR', KEYS[2])
	redis.call('EXPIRE', KEYS[2], ARGV[3])
	return 1
end
return 0
`)

const initSeedBatchSize = 500

// RedisIssuer is the two-phase reservation strategy. The cache is the
// admission gate; the durable store is reconciled afterwards through the
// confirm/rollback protocol.
type RedisIssuer struct {
	client      *redis.Client
	coupons     repository.CouponRepository
	userCoupons repository.UserCouponRepository
	cfg         config.CouponConfig
}

func NewRedisIssuer(
	client *redis.Client,
	coupons repository.CouponRepository,
	userCoupons repository.UserCouponRepository,
	cfg config.CouponConfig,
) *RedisIssuer {
	return &RedisIssuer{
		client:      client,
		coupons:     coupons,
		userCoupons: userCoupons,
		cfg:         cfg,
	}
}

func (m *RedisIssuer) ShouldUpdateCouponStock() bool {
	return true
}

func (m *RedisIssuer) TryIssue(ctx context.Context, couponID, userID uuid.UUID) (Outcome, error) {
	code, extra, err := m.runIssueScript(ctx, couponID, userID)
	if err != nil {
		return Outcome{}, err
	}

	if code == scriptNotInitialized {
		if err := m.ensureInitialized(ctx, couponID); err != nil {
			if errors.Is(err, model.ErrCouponNotFound) || errors.Is(err, model.ErrStockNotInitialized) {
				return Outcome{Result: model.IssueCouponNotFound, RemainingStock: -1}, nil
			}
			return Outcome{}, err
		}

		// one retry after lazy sync, never a loop
		code, extra, err = m.runIssueScript(ctx, couponID, userID)
		if err != nil {
			return Outcome{}, err
		}
		if code == scriptNotInitialized {
			return Outcome{Result: model.IssueCouponNotFound, RemainingStock: -1}, nil
		}
	}

	switch code {
	case scriptSuccess:
		return Outcome{Result: model.IssueSuccess, RemainingStock: extra}, nil
	case scriptAlreadyIssued:
		return Outcome{Result: model.IssueAlreadyIssued, RemainingStock: -1}, nil
	case scriptOutOfStock:
		return Outcome{Result: model.IssueOutOfStock, RemainingStock: -1}, nil
	case scriptInProgress:
		return Outcome{
			Result:         model.IssueReservationInProgress,
			RemainingStock: -1,
			PendingElapsed: time.Duration(extra) * time.Millisecond,
		}, nil
	default:
		return Outcome{}, fmt.Errorf("unexpected issue script code %d", code)
	}
}

func (m *RedisIssuer) runIssueScript(ctx context.Context, couponID, userID uuid.UUID) (int64, int64, error) {
	res, err := issueScript.Run(ctx, m.client,
		[]string{StockKey(couponID), IssuedKey(couponID), PendingKey(couponID)},
		userID.String(),
		time.Now().UnixMilli(),
		m.cfg.PendingTimeout.Milliseconds(),
		int(m.cfg.KeyTTL.Seconds()),
	).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to run issue script: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return 0, 0, fmt.Errorf("malformed issue script reply: %v", res)
	}
	code, _ := vals[0].(int64)
	extra, _ := vals[1].(int64)
	return code, extra, nil
}

func (m *RedisIssuer) HasAlreadyIssued(ctx context.Context, couponID, userID uuid.UUID) (bool, error) {
	issued, err := m.client.SIsMember(ctx, IssuedKey(couponID), userID.String()).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check issued set: %w", err)
	}
	return issued, nil
}

func (m *RedisIssuer) Confirm(ctx context.Context, couponID, userID uuid.UUID) error {
	err := confirmScript.Run(ctx, m.client,
		[]string{PendingKey(couponID), IssuedKey(couponID)},
		userID.String(),
		int(m.cfg.KeyTTL.Seconds()),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to confirm reservation: %w", err)
	}
	return nil
}

func (m *RedisIssuer) Rollback(ctx context.Context, couponID, userID uuid.UUID) error {
	err := rollbackScript.Run(ctx, m.client,
		[]string{StockKey(couponID), PendingKey(couponID)},
		userID.String(),
		int(m.cfg.KeyTTL.Seconds()),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to roll back reservation: %w", err)
	}
	return nil
}

// ensureInitialized performs lazy synchronization of the cache from the
// durable store. The winner of the init lock seeds stock and the issued
// set; losers poll for the completion marker with a bounded retry count.
func (m *RedisIssuer) ensureInitialized(ctx context.Context, couponID uuid.UUID) error {
	acquired, err := m.client.SetNX(ctx, InitLockKey(couponID), "1", m.cfg.InitLockTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire init lock: %w", err)
	}

	if !acquired {
		return m.waitForInit(ctx, couponID)
	}

	defer func() {
		if err := m.client.Del(context.WithoutCancel(ctx), InitLockKey(couponID)).Err(); err != nil {
			logger.Error("failed to release coupon init lock", err)
		}
	}()

	// another winner may have finished between our script run and the lock
	done, err := m.client.Exists(ctx, InitCompleteKey(couponID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check init marker: %w", err)
	}
	if done == 1 {
		return nil
	}

	return m.seed(ctx, couponID)
}

func (m *RedisIssuer) seed(ctx context.Context, couponID uuid.UUID) error {
	coupon, err := m.coupons.FindByID(ctx, couponID)
	if err != nil {
		return err
	}

	userIDs, err := m.userCoupons.ListUserIDs(ctx, couponID)
	if err != nil {
		return fmt.Errorf("failed to list issued users for seeding: %w", err)
	}

	ttl := m.cfg.KeyTTL
	issuedKey := IssuedKey(couponID)

	for start := 0; start < len(userIDs); start += initSeedBatchSize {
		end := start + initSeedBatchSize
		if end > len(userIDs) {
			end = len(userIDs)
		}
		members := make([]interface{}, 0, end-start)
		for _, id := range userIDs[start:end] {
			members = append(members, id.String())
		}
		if err := m.client.SAdd(ctx, issuedKey, members...).Err(); err != nil {
			return fmt.Errorf("failed to seed issued set: %w", err)
		}
	}
	if len(userIDs) > 0 {
		if err := m.client.Expire(ctx, issuedKey, ttl).Err(); err != nil {
			return fmt.Errorf("failed to expire issued set: %w", err)
		}
	}

	remaining := coupon.Remaining()
	if remaining < 0 {
		remaining = 0
	}

	pipe := m.client.TxPipeline()
	pipe.Set(ctx, StockKey(couponID), remaining, ttl)
	pipe.Set(ctx, InitCompleteKey(couponID), "1", ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to seed stock counter: %w", err)
	}

	logger.Info("coupon cache seeded", map[string]interface{}{
		"coupon_id":    couponID,
		"stock":        remaining,
		"issued_users": len(userIDs),
	})
	return nil
}

func (m *RedisIssuer) waitForInit(ctx context.Context, couponID uuid.UUID) error {
	ticker := time.NewTicker(m.cfg.InitPollInterval)
	defer ticker.Stop()

	for i := 0; i < m.cfg.InitMaxPolls; i++ {
		done, err := m.client.Exists(ctx, InitCompleteKey(couponID)).Result()
		if err != nil {
			return fmt.Errorf("failed to poll init marker: %w", err)
		}
		if done == 1 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	return model.ErrStockNotInitialized
}

// =====================================================
// INTROSPECTION & MAINTENANCE
// =====================================================

// InitializeStock seeds the cache for a coupon ahead of traffic, e.g. right
// before a campaign opens. Overwrites whatever is there.
func (m *RedisIssuer) InitializeStock(ctx context.Context, couponID uuid.UUID) error {
	return m.seed(ctx, couponID)
}

// RemainingStock reads the live counter. Returns ErrStockNotInitialized
// when the coupon has not been seeded.
func (m *RedisIssuer) RemainingStock(ctx context.Context, couponID uuid.UUID) (int64, error) {
	val, err := m.client.Get(ctx, StockKey(couponID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, model.ErrStockNotInitialized
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read stock counter: %w", err)
	}

	stock, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed stock counter %q: %w", val, err)
	}
	return stock, nil
}

// IssuedCount returns the size of the cached issued set.
func (m *RedisIssuer) IssuedCount(ctx context.Context, couponID uuid.UUID) (int64, error) {
	count, err := m.client.SCard(ctx, IssuedKey(couponID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read issued set size: %w", err)
	}
	return count, nil
}

// PendingEntries returns the live reservations for a coupon keyed by user
// id, with the time each was taken.
func (m *RedisIssuer) PendingEntries(ctx context.Context, couponID uuid.UUID) (map[string]time.Time, error) {
	raw, err := m.client.HGetAll(ctx, PendingKey(couponID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read pending map: %w", err)
	}

	entries := make(map[string]time.Time, len(raw))
	for userID, tsStr := range raw {
		ms, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed pending timestamp %q: %w", tsStr, err)
		}
		entries[userID] = time.UnixMilli(ms)
	}
	return entries, nil
}

// ReclaimPending returns a stale reservation's unit to the pool, but only
// if its timestamp still equals observedAt. Used by the sweep job.
func (m *RedisIssuer) ReclaimPending(ctx context.Context, couponID uuid.UUID, userID string, observedAt time.Time) (bool, error) {
	res, err := reclaimScript.Run(ctx, m.client,
		[]string{PendingKey(couponID), StockKey(couponID)},
		userID,
		observedAt.UnixMilli(),
		int(m.cfg.KeyTTL.Seconds()),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to reclaim pending reservation: %w", err)
	}
	return res == 1, nil
}
