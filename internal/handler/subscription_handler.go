package handler

import (
	"net/http"

	"github.com/damoang/angple-billing/internal/common"
	"github.com/damoang/angple-billing/internal/domain"
	"github.com/damoang/angple-billing/internal/middleware"
	"github.com/damoang/angple-billing/internal/service"
	"github.com/gin-gonic/gin"
)

// SubscriptionHandler handles subscription purchase, listing and cancellation
type SubscriptionHandler struct {
	checkout      *service.CheckoutService
	subscriptions *service.SubscriptionService
}

// NewSubscriptionHandler creates a new SubscriptionHandler
func NewSubscriptionHandler(checkout *service.CheckoutService, subscriptions *service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{checkout: checkout, subscriptions: subscriptions}
}

// Create opens a provider checkout for a subscription
// @Summary 구독 결제 생성
// @Tags subscriptions
// @Accept json
// @Produce json
// @Param body body domain.CreateSubscriptionRequest true "subscription request"
// @Success 200 {object} common.APIResponse{data=domain.CheckoutResponse}
// @Router /api/v1/subscriptions [post]
func (h *SubscriptionHandler) Create(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		common.ErrorResponse(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	var req domain.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.WriteError(c, common.NewValidationError(err.Error()))
		return
	}

	resp, err := h.checkout.CreateSubscriptionCheckout(c.Request.Context(), userID, &req)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.SuccessResponse(c, resp, nil)
}

// List returns the caller's subscriptions
// @Summary 내 구독 목록
// @Tags subscriptions
// @Produce json
// @Param type query string false "active, expired or all"
// @Success 200 {object} common.APIResponse{data=[]domain.SubscriptionSummary}
// @Router /api/v1/subscriptions [get]
func (h *SubscriptionHandler) List(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		common.ErrorResponse(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	items, err := h.subscriptions.List(c.Request.Context(), userID, c.Query("type"))
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.SuccessResponse(c, items, &common.Meta{Total: int64(len(items))})
}

// Cancel stops renewal of one of the caller's subscriptions
// @Summary 구독 해지
// @Tags subscriptions
// @Produce json
// @Param id query string true "subscription id"
// @Success 200 {object} common.APIResponse{data=domain.SubscriptionSummary}
// @Router /api/v1/subscriptions [delete]
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		common.ErrorResponse(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	id := c.Query("id")
	if id == "" {
		common.WriteError(c, common.NewValidationError("id is required"))
		return
	}

	summary, err := h.subscriptions.Cancel(c.Request.Context(), userID, id)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.SuccessResponse(c, summary, nil)
}
