package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"ecommerce-backend/internal/config"
	"ecommerce-backend/internal/domains/coupon/issuer"
	"ecommerce-backend/internal/domains/coupon/model"
	"ecommerce-backend/internal/domains/coupon/repository"
	"ecommerce-backend/pkg/logger"
)

type couponService struct {
	coupons     repository.CouponRepository
	userCoupons repository.UserCouponRepository
	issuer      issuer.IssueManager
	finalizer   *ReservationFinalizer
	cfg         config.CouponConfig
}

func NewCouponService(
	coupons repository.CouponRepository,
	userCoupons repository.UserCouponRepository,
	mgr issuer.IssueManager,
	finalizer *ReservationFinalizer,
	cfg config.CouponConfig,
) CouponService {
	return &couponService{
		coupons:     coupons,
		userCoupons: userCoupons,
		issuer:      mgr,
		finalizer:   finalizer,
		cfg:         cfg,
	}
}

func (s *couponService) GetCoupon(ctx context.Context, couponID uuid.UUID) (*model.Coupon, error) {
	return s.coupons.FindByID(ctx, couponID)
}

func (s *couponService) CreateCoupon(ctx context.Context, coupon *model.Coupon) error {
	if coupon.ID == uuid.Nil {
		coupon.ID = uuid.New()
	}
	return s.coupons.Create(ctx, coupon)
}

func (s *couponService) IssueCoupon(ctx context.Context, couponID, userID uuid.UUID) (model.IssueResult, *model.IssueCouponResponse, error) {
	now := time.Now()

	coupon, err := s.coupons.FindByID(ctx, couponID)
	if err != nil {
		if errors.Is(err, model.ErrCouponNotFound) {
			return model.IssueCouponNotFound, nil, nil
		}
		return model.IssueLockOrIssueFailed, nil, err
	}
	if !coupon.IsWithinWindow(now) {
		return model.IssueNotAvailable, nil, nil
	}

	outcome, err := s.issuer.TryIssue(ctx, couponID, userID)
	if err != nil {
		logger.ErrorWithFields("coupon reservation failed", err, map[string]interface{}{
			"coupon_id": couponID,
			"user_id":   userID,
		})
		return model.IssueLockOrIssueFailed, nil, err
	}
	if outcome.Result != model.IssueSuccess {
		return outcome.Result, nil, nil
	}

	if !s.issuer.ShouldUpdateCouponStock() {
		// the strategy already wrote the durable state inside TryIssue
		uc, err := s.userCoupons.FindByUserAndCoupon(ctx, userID, couponID)
		if err != nil {
			return model.IssueLockOrIssueFailed, nil, err
		}
		return model.IssueSuccess, issueResponse(uc), nil
	}

	return s.finalizeReservation(ctx, couponID, userID, now, outcome)
}

// finalizeReservation runs the durable half of a cache reservation: the
// issued-counter increment and the user coupon row in one transaction, then
// the commit or abort hooks depending on how it went.
func (s *couponService) finalizeReservation(ctx context.Context, couponID, userID uuid.UUID, now time.Time, outcome issuer.Outcome) (model.IssueResult, *model.IssueCouponResponse, error) {
	hooks := NewTxHooks()
	s.finalizer.Register(hooks, couponID, userID)

	uc := model.NewUserCoupon(userID, couponID, now, s.cfg.UserCouponValidity)

	err := s.coupons.WithCouponTx(ctx, couponID, false, func(ctx context.Context, _ *model.Coupon, tx repository.CouponTx) error {
		if err := tx.IncrementIssued(ctx, couponID); err != nil {
			return err
		}
		return tx.InsertUserCoupon(ctx, uc)
	})

	if err != nil {
		hooks.FireAbort(context.WithoutCancel(ctx), err)

		switch {
		case errors.Is(err, model.ErrAlreadyIssued):
			return model.IssueAlreadyIssued, nil, nil
		case errors.Is(err, model.ErrCouponOutOfStock):
			// cache admitted more than the durable counter allows; the
			// aborted reservation returns its unit
			return model.IssueOutOfStock, nil, nil
		case errors.Is(err, model.ErrCouponNotFound):
			return model.IssueCouponNotFound, nil, nil
		default:
			logger.ErrorWithFields("durable coupon issuance failed", err, map[string]interface{}{
				"coupon_id": couponID,
				"user_id":   userID,
			})
			return model.IssueLockOrIssueFailed, nil, err
		}
	}

	hooks.FireCommit(context.WithoutCancel(ctx))

	logger.Info("coupon issued", map[string]interface{}{
		"coupon_id":       couponID,
		"user_id":         userID,
		"remaining_stock": outcome.RemainingStock,
	})
	return model.IssueSuccess, issueResponse(uc), nil
}

func issueResponse(uc *model.UserCoupon) *model.IssueCouponResponse {
	return &model.IssueCouponResponse{
		CouponID:  uc.CouponID,
		UserID:    uc.UserID,
		IssuedAt:  uc.IssuedAt,
		ExpiresAt: uc.ExpiresAt,
	}
}
