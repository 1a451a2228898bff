package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ecommerce-backend/internal/domains/coupon/model"
	"ecommerce-backend/pkg/database"
)

const uniqueViolationCode = "23505"

// =====================================================
// COUPON REPOSITORY
// =====================================================

type postgresCouponRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresCouponRepository(pool *pgxpool.Pool) CouponRepository {
	return &postgresCouponRepository{pool: pool}
}

const couponColumns = `
	id, name, discount_type, discount_value, max_discount_amount,
	min_order_amount, total_quantity, issued_quantity,
	starts_at, ends_at, created_at, updated_at
`

func scanCoupon(row pgx.Row) (*model.Coupon, error) {
	var c model.Coupon
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.DiscountType,
		&c.DiscountValue,
		&c.MaxDiscountAmount,
		&c.MinOrderAmount,
		&c.TotalQuantity,
		&c.IssuedQuantity,
		&c.StartsAt,
		&c.EndsAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrCouponNotFound
		}
		return nil, fmt.Errorf("failed to scan coupon: %w", err)
	}
	return &c, nil
}

func (r *postgresCouponRepository) FindByID(ctx context.Context, couponID uuid.UUID) (*model.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`
	return scanCoupon(r.pool.QueryRow(ctx, query, couponID))
}

func (r *postgresCouponRepository) Create(ctx context.Context, coupon *model.Coupon) error {
	query := `
		INSERT INTO coupons (
			id, name, discount_type, discount_value, max_discount_amount,
			min_order_amount, total_quantity, issued_quantity, starts_at, ends_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		coupon.ID,
		coupon.Name,
		coupon.DiscountType,
		coupon.DiscountValue,
		coupon.MaxDiscountAmount,
		coupon.MinOrderAmount,
		coupon.TotalQuantity,
		coupon.IssuedQuantity,
		coupon.StartsAt,
		coupon.EndsAt,
	).Scan(&coupon.CreatedAt, &coupon.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create coupon: %w", err)
	}

	return nil
}

func (r *postgresCouponRepository) WithCouponTx(ctx context.Context, couponID uuid.UUID, lock bool, fn CouponTxFunc) error {
	return database.WithTransaction(ctx, r.pool, func(tx pgx.Tx) error {
		query := `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`
		if lock {
			query += ` FOR UPDATE`
		}

		coupon, err := scanCoupon(tx.QueryRow(ctx, query, couponID))
		if err != nil {
			return err
		}

		return fn(ctx, coupon, &pgxCouponTx{tx: tx})
	})
}

// pgxCouponTx adapts a pgx transaction to the CouponTx interface.
type pgxCouponTx struct {
	tx pgx.Tx
}

func (t *pgxCouponTx) IncrementIssued(ctx context.Context, couponID uuid.UUID) error {
	query := `
		UPDATE coupons
		SET issued_quantity = issued_quantity + 1, updated_at = NOW()
		WHERE id = $1 AND issued_quantity < total_quantity
	`

	result, err := t.tx.Exec(ctx, query, couponID)
	if err != nil {
		return fmt.Errorf("failed to increment issued quantity: %w", err)
	}

	if result.RowsAffected() == 0 {
		return model.ErrCouponOutOfStock
	}

	return nil
}

func (t *pgxCouponTx) InsertUserCoupon(ctx context.Context, uc *model.UserCoupon) error {
	query := `
		INSERT INTO user_coupons (
			id, user_id, coupon_id, status, issued_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	err := t.tx.QueryRow(ctx, query,
		uc.ID,
		uc.UserID,
		uc.CouponID,
		uc.Status,
		uc.IssuedAt,
		uc.ExpiresAt,
	).Scan(&uc.CreatedAt, &uc.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return model.ErrAlreadyIssued
		}
		return fmt.Errorf("failed to insert user coupon: %w", err)
	}

	return nil
}

func (t *pgxCouponTx) UserCouponExists(ctx context.Context, userID, couponID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM user_coupons WHERE user_id = $1 AND coupon_id = $2)`

	var exists bool
	if err := t.tx.QueryRow(ctx, query, userID, couponID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check user coupon in tx: %w", err)
	}

	return exists, nil
}

// =====================================================
// USER COUPON REPOSITORY
// =====================================================

type postgresUserCouponRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresUserCouponRepository(pool *pgxpool.Pool) UserCouponRepository {
	return &postgresUserCouponRepository{pool: pool}
}

func (r *postgresUserCouponRepository) Exists(ctx context.Context, userID, couponID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM user_coupons WHERE user_id = $1 AND coupon_id = $2)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, userID, couponID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check user coupon: %w", err)
	}

	return exists, nil
}

func (r *postgresUserCouponRepository) FindByUserAndCoupon(ctx context.Context, userID, couponID uuid.UUID) (*model.UserCoupon, error) {
	query := `
		SELECT
			id, user_id, coupon_id, status, issued_at, expires_at,
			used_at, created_at, updated_at
		FROM user_coupons
		WHERE user_id = $1 AND coupon_id = $2
	`

	var uc model.UserCoupon
	err := r.pool.QueryRow(ctx, query, userID, couponID).Scan(
		&uc.ID,
		&uc.UserID,
		&uc.CouponID,
		&uc.Status,
		&uc.IssuedAt,
		&uc.ExpiresAt,
		&uc.UsedAt,
		&uc.CreatedAt,
		&uc.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrUserCouponNotFound
		}
		return nil, fmt.Errorf("failed to get user coupon: %w", err)
	}

	return &uc, nil
}

func (r *postgresUserCouponRepository) Insert(ctx context.Context, uc *model.UserCoupon) error {
	query := `
		INSERT INTO user_coupons (
			id, user_id, coupon_id, status, issued_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		uc.ID,
		uc.UserID,
		uc.CouponID,
		uc.Status,
		uc.IssuedAt,
		uc.ExpiresAt,
	).Scan(&uc.CreatedAt, &uc.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return model.ErrAlreadyIssued
		}
		return fmt.Errorf("failed to insert user coupon: %w", err)
	}

	return nil
}

func (r *postgresUserCouponRepository) ListUserIDs(ctx context.Context, couponID uuid.UUID) ([]uuid.UUID, error) {
	query := `SELECT user_id FROM user_coupons WHERE coupon_id = $1`

	rows, err := r.pool.Query(ctx, query, couponID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user coupon holders: %w", err)
	}
	defer rows.Close()

	var userIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		userIDs = append(userIDs, id)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("error iterating user coupon holders: %w", rows.Err())
	}

	return userIDs, nil
}

// =====================================================
// FAILED ROLLBACK REPOSITORY
// =====================================================

type postgresFailedRollbackRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresFailedRollbackRepository(pool *pgxpool.Pool) FailedRollbackRepository {
	return &postgresFailedRollbackRepository{pool: pool}
}

func (r *postgresFailedRollbackRepository) Insert(ctx context.Context, fr *model.FailedRollback) error {
	query := `
		INSERT INTO failed_coupon_rollbacks (
			id, coupon_id, user_id, status, retry_count,
			original_error, rollback_error, resolved_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		fr.ID,
		fr.CouponID,
		fr.UserID,
		fr.Status,
		fr.RetryCount,
		fr.OriginalError,
		fr.RollbackError,
		fr.ResolvedBy,
	).Scan(&fr.CreatedAt, &fr.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert failed rollback record: %w", err)
	}

	return nil
}

func (r *postgresFailedRollbackRepository) Update(ctx context.Context, fr *model.FailedRollback) error {
	query := `
		UPDATE failed_coupon_rollbacks
		SET status = $1, retry_count = $2, rollback_error = $3,
			resolved_at = $4, resolved_by = $5, updated_at = NOW()
		WHERE id = $6
	`

	result, err := r.pool.Exec(ctx, query,
		fr.Status, fr.RetryCount, fr.RollbackError, fr.ResolvedAt, fr.ResolvedBy, fr.ID)
	if err != nil {
		return fmt.Errorf("failed to update failed rollback record: %w", err)
	}

	if result.RowsAffected() == 0 {
		return model.ErrFailedRollbackNotFound
	}

	return nil
}

func (r *postgresFailedRollbackRepository) ListPending(ctx context.Context, limit int) ([]*model.FailedRollback, error) {
	query := `
		SELECT
			id, coupon_id, user_id, status, retry_count,
			original_error, rollback_error,
			resolved_at, resolved_by, created_at, updated_at
		FROM failed_coupon_rollbacks
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, model.FailedRollbackPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending rollback records: %w", err)
	}
	defer rows.Close()

	var records []*model.FailedRollback
	for rows.Next() {
		var fr model.FailedRollback
		err := rows.Scan(
			&fr.ID,
			&fr.CouponID,
			&fr.UserID,
			&fr.Status,
			&fr.RetryCount,
			&fr.OriginalError,
			&fr.RollbackError,
			&fr.ResolvedAt,
			&fr.ResolvedBy,
			&fr.CreatedAt,
			&fr.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan failed rollback record: %w", err)
		}
		records = append(records, &fr)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("error iterating failed rollback records: %w", rows.Err())
	}

	return records, nil
}

func (r *postgresFailedRollbackRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM failed_coupon_rollbacks
		WHERE status IN ($1, $2) AND resolved_at < $3
	`

	result, err := r.pool.Exec(ctx, query, model.FailedRollbackResolved, model.FailedRollbackIgnored, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete finished rollback records: %w", err)
	}

	return result.RowsAffected(), nil
}
