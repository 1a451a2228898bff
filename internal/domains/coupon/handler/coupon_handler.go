package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ecommerce-backend/internal/domains/coupon/model"
	"ecommerce-backend/internal/domains/coupon/service"
	"ecommerce-backend/internal/shared/response"
	"ecommerce-backend/pkg/logger"
)

type Handler struct {
	service service.CouponService
}

// NewHandler creates a new coupon handler
func NewHandler(service service.CouponService) *Handler {
	return &Handler{
		service: service,
	}
}

// IssueCoupon handles POST /api/v1/coupons/:coupon_id/issue
func (h *Handler) IssueCoupon(c *gin.Context) {
	couponID, err := uuid.Parse(c.Param("coupon_id"))
	if err != nil {
		response.ErrorResponse(c, http.StatusBadRequest, "COUPON_007", "invalid coupon id format")
		return
	}

	var req model.IssueCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorResponse(c, http.StatusBadRequest, "COUPON_007", "invalid request payload")
		return
	}

	result, res, err := h.service.IssueCoupon(c.Request.Context(), couponID, req.UserID)
	if err != nil {
		logger.ErrorWithFields("coupon issuance failed", err, map[string]interface{}{
			"coupon_id": couponID.String(),
			"user_id":   req.UserID.String(),
			"result":    result.Code(),
		})
	}
	if result == model.IssueSuccess {
		response.Success(c, http.StatusCreated, res)
		return
	}

	response.ErrorResponse(c, statusForResult(result), result.Code(), result.Message())
}

// GetCoupon handles GET /api/v1/coupons/:coupon_id
func (h *Handler) GetCoupon(c *gin.Context) {
	couponID, err := uuid.Parse(c.Param("coupon_id"))
	if err != nil {
		response.ErrorResponse(c, http.StatusBadRequest, "COUPON_007", "invalid coupon id format")
		return
	}

	coupon, err := h.service.GetCoupon(c.Request.Context(), couponID)
	if err != nil {
		if errors.Is(err, model.ErrCouponNotFound) {
			response.ErrorResponse(c, http.StatusNotFound, model.IssueCouponNotFound.Code(), model.IssueCouponNotFound.Message())
			return
		}
		response.ErrorResponse(c, http.StatusInternalServerError, "COUPON_008", "failed to get coupon")
		return
	}

	response.Success(c, http.StatusOK, coupon)
}

// CreateCoupon handles POST /api/v1/coupons
func (h *Handler) CreateCoupon(c *gin.Context) {
	var req model.CreateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorResponse(c, http.StatusBadRequest, "COUPON_007", "invalid request payload")
		return
	}

	if err := req.Validate(); err != nil {
		response.ErrorResponse(c, http.StatusBadRequest, "COUPON_007", err.Error())
		return
	}

	coupon := req.ToCoupon()
	if err := h.service.CreateCoupon(c.Request.Context(), coupon); err != nil {
		logger.Error("failed to create coupon", err)
		response.ErrorResponse(c, http.StatusInternalServerError, "COUPON_008", "failed to create coupon")
		return
	}

	response.Success(c, http.StatusCreated, coupon)
}

func statusForResult(result model.IssueResult) int {
	switch result {
	case model.IssueAlreadyIssued, model.IssueOutOfStock:
		return http.StatusConflict
	case model.IssueCouponNotFound:
		return http.StatusNotFound
	case model.IssueNotAvailable:
		return http.StatusBadRequest
	case model.IssueReservationInProgress:
		return http.StatusTooManyRequests
	case model.IssueLockOrIssueFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
