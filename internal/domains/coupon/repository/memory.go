package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ecommerce-backend/internal/domains/coupon/model"
)

// In-memory implementations used by tests and local development. They hold
// a coarse mutex per repository, which is enough to make the concurrency
// tests meaningful without a live database.

// =====================================================
// COUPON REPOSITORY
// =====================================================

type MemoryCouponRepository struct {
	mu      sync.Mutex
	coupons map[uuid.UUID]*model.Coupon

	// userCoupons shares storage with MemoryUserCouponRepository when both
	// sides are built through NewMemoryStores.
	userCoupons *MemoryUserCouponRepository
}

type MemoryUserCouponRepository struct {
	mu      sync.Mutex
	byKey   map[string]*model.UserCoupon
	ordered []*model.UserCoupon
}

type MemoryFailedRollbackRepository struct {
	mu      sync.Mutex
	records map[uuid.UUID]*model.FailedRollback
}

// NewMemoryStores wires the coupon and user coupon repositories over shared
// state so WithCouponTx can enforce the unique issuance constraint.
func NewMemoryStores() (*MemoryCouponRepository, *MemoryUserCouponRepository, *MemoryFailedRollbackRepository) {
	ucRepo := &MemoryUserCouponRepository{
		byKey: make(map[string]*model.UserCoupon),
	}
	cRepo := &MemoryCouponRepository{
		coupons:     make(map[uuid.UUID]*model.Coupon),
		userCoupons: ucRepo,
	}
	frRepo := &MemoryFailedRollbackRepository{
		records: make(map[uuid.UUID]*model.FailedRollback),
	}
	return cRepo, ucRepo, frRepo
}

func userCouponKey(userID, couponID uuid.UUID) string {
	return userID.String() + ":" + couponID.String()
}

func (r *MemoryCouponRepository) FindByID(ctx context.Context, couponID uuid.UUID) (*model.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.coupons[couponID]
	if !ok {
		return nil, model.ErrCouponNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryCouponRepository) Create(ctx context.Context, coupon *model.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *coupon
	r.coupons[coupon.ID] = &cp
	return nil
}

func (r *MemoryCouponRepository) WithCouponTx(ctx context.Context, couponID uuid.UUID, lock bool, fn CouponTxFunc) error {
	// The repository mutex stands in for FOR UPDATE row locking, so the
	// whole callback runs in the critical section regardless of lock.
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.coupons[couponID]
	if !ok {
		return model.ErrCouponNotFound
	}

	snapshot := *c
	tx := &memoryCouponTx{repo: r}

	if err := fn(ctx, &snapshot, tx); err != nil {
		tx.rollback()
		return err
	}

	tx.commit()
	return nil
}

// memoryCouponTx buffers writes so a failing callback leaves no trace, the
// same way a real transaction rolls back.
type memoryCouponTx struct {
	repo       *MemoryCouponRepository
	increments []uuid.UUID
	inserted   []*model.UserCoupon
}

func (t *memoryCouponTx) IncrementIssued(ctx context.Context, couponID uuid.UUID) error {
	c, ok := t.repo.coupons[couponID]
	if !ok {
		return model.ErrCouponNotFound
	}
	if c.IssuedQuantity+t.pendingIncrements(couponID) >= c.TotalQuantity {
		return model.ErrCouponOutOfStock
	}
	t.increments = append(t.increments, couponID)
	return nil
}

func (t *memoryCouponTx) pendingIncrements(couponID uuid.UUID) int {
	n := 0
	for _, id := range t.increments {
		if id == couponID {
			n++
		}
	}
	return n
}

func (t *memoryCouponTx) InsertUserCoupon(ctx context.Context, uc *model.UserCoupon) error {
	key := userCouponKey(uc.UserID, uc.CouponID)

	t.repo.userCoupons.mu.Lock()
	_, exists := t.repo.userCoupons.byKey[key]
	t.repo.userCoupons.mu.Unlock()

	if exists {
		return model.ErrAlreadyIssued
	}
	for _, pending := range t.inserted {
		if userCouponKey(pending.UserID, pending.CouponID) == key {
			return model.ErrAlreadyIssued
		}
	}

	cp := *uc
	t.inserted = append(t.inserted, &cp)
	return nil
}

func (t *memoryCouponTx) UserCouponExists(ctx context.Context, userID, couponID uuid.UUID) (bool, error) {
	key := userCouponKey(userID, couponID)

	t.repo.userCoupons.mu.Lock()
	_, exists := t.repo.userCoupons.byKey[key]
	t.repo.userCoupons.mu.Unlock()

	if exists {
		return true, nil
	}
	for _, pending := range t.inserted {
		if userCouponKey(pending.UserID, pending.CouponID) == key {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryCouponTx) commit() {
	now := time.Now()
	for _, id := range t.increments {
		if c, ok := t.repo.coupons[id]; ok {
			c.IssuedQuantity++
			c.UpdatedAt = now
		}
	}

	t.repo.userCoupons.mu.Lock()
	defer t.repo.userCoupons.mu.Unlock()
	for _, uc := range t.inserted {
		t.repo.userCoupons.byKey[userCouponKey(uc.UserID, uc.CouponID)] = uc
		t.repo.userCoupons.ordered = append(t.repo.userCoupons.ordered, uc)
	}
}

func (t *memoryCouponTx) rollback() {
	t.increments = nil
	t.inserted = nil
}

// =====================================================
// USER COUPON REPOSITORY
// =====================================================

func (r *MemoryUserCouponRepository) Exists(ctx context.Context, userID, couponID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.byKey[userCouponKey(userID, couponID)]
	return ok, nil
}

func (r *MemoryUserCouponRepository) FindByUserAndCoupon(ctx context.Context, userID, couponID uuid.UUID) (*model.UserCoupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	uc, ok := r.byKey[userCouponKey(userID, couponID)]
	if !ok {
		return nil, model.ErrUserCouponNotFound
	}
	cp := *uc
	return &cp, nil
}

func (r *MemoryUserCouponRepository) Insert(ctx context.Context, uc *model.UserCoupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := userCouponKey(uc.UserID, uc.CouponID)
	if _, ok := r.byKey[key]; ok {
		return model.ErrAlreadyIssued
	}

	cp := *uc
	r.byKey[key] = &cp
	r.ordered = append(r.ordered, &cp)
	return nil
}

func (r *MemoryUserCouponRepository) ListUserIDs(ctx context.Context, couponID uuid.UUID) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []uuid.UUID
	for _, uc := range r.ordered {
		if uc.CouponID == couponID {
			ids = append(ids, uc.UserID)
		}
	}
	return ids, nil
}

// =====================================================
// FAILED ROLLBACK REPOSITORY
// =====================================================

func (r *MemoryFailedRollbackRepository) Insert(ctx context.Context, fr *model.FailedRollback) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *fr
	r.records[fr.ID] = &cp
	return nil
}

func (r *MemoryFailedRollbackRepository) Update(ctx context.Context, fr *model.FailedRollback) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[fr.ID]; !ok {
		return model.ErrFailedRollbackNotFound
	}
	cp := *fr
	r.records[fr.ID] = &cp
	return nil
}

func (r *MemoryFailedRollbackRepository) ListPending(ctx context.Context, limit int) ([]*model.FailedRollback, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pending []*model.FailedRollback
	for _, fr := range r.records {
		if fr.Status == model.FailedRollbackPending {
			cp := *fr
			pending = append(pending, &cp)
		}
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (r *MemoryFailedRollbackRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, fr := range r.records {
		if fr.IsFinished() && fr.ResolvedAt != nil && fr.ResolvedAt.Before(cutoff) {
			delete(r.records, id)
			deleted++
		}
	}
	return deleted, nil
}

// Get returns a stored record by id, for test assertions.
func (r *MemoryFailedRollbackRepository) Get(id uuid.UUID) (*model.FailedRollback, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fr, ok := r.records[id]
	if !ok {
		return nil, false
	}
	cp := *fr
	return &cp, true
}
