package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ecommerce-backend/internal/shared/middleware"
	"ecommerce-backend/internal/shared/response"
	"ecommerce-backend/pkg/container"
)

func SetupRouter(c *container.Container) *gin.Engine {
	router := gin.New()

	router.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
	)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", healthCheckHandler(c))

		setupCouponRoutes(v1, c)
	}

	return router
}

// ========================================
// COUPON ROUTES
// ========================================
func setupCouponRoutes(v1 *gin.RouterGroup, c *container.Container) {
	coupons := v1.Group("/coupons")
	{
		coupons.POST("", c.CouponHandler.CreateCoupon)
		coupons.GET("/:coupon_id", c.CouponHandler.GetCoupon)
		coupons.POST("/:coupon_id/issue", c.CouponHandler.IssueCoupon)
	}
}

func healthCheckHandler(c *container.Container) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		checkCtx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
		defer cancel()

		if err := c.HealthCheck(checkCtx); err != nil {
			response.ErrorResponse(ctx, http.StatusServiceUnavailable, "HEALTH_001", err.Error())
			return
		}

		response.Success(ctx, http.StatusOK, gin.H{
			"status":  "ok",
			"version": c.Config.App.Version,
		})
	}
}
