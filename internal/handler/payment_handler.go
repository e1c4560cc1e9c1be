package handler

import (
	"net/http"

	"github.com/damoang/angple-billing/internal/common"
	"github.com/damoang/angple-billing/internal/domain"
	"github.com/damoang/angple-billing/internal/middleware"
	"github.com/damoang/angple-billing/internal/service"
	"github.com/gin-gonic/gin"
)

// PaymentHandler handles one-time payments: tips and pay-per-view unlocks
type PaymentHandler struct {
	checkout *service.CheckoutService
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(checkout *service.CheckoutService) *PaymentHandler {
	return &PaymentHandler{checkout: checkout}
}

// Tip creates a checkout for a tip
// @Summary 후원 결제 생성
// @Tags payments
// @Accept json
// @Produce json
// @Param body body domain.TipRequest true "tip"
// @Success 200 {object} common.APIResponse{data=domain.CheckoutResponse}
// @Router /api/v1/tips [post]
func (h *PaymentHandler) Tip(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		common.ErrorResponse(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	var req domain.TipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.WriteError(c, common.NewValidationError(err.Error()))
		return
	}

	resp, err := h.checkout.CreateTipCheckout(c.Request.Context(), userID, &req)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.SuccessResponse(c, resp, nil)
}

// PPV creates a checkout unlocking a single post
// @Summary 유료 게시물 결제 생성
// @Tags payments
// @Accept json
// @Produce json
// @Param body body domain.PPVRequest true "post unlock"
// @Success 200 {object} common.APIResponse{data=domain.CheckoutResponse}
// @Router /api/v1/ppv [post]
func (h *PaymentHandler) PPV(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		common.ErrorResponse(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	var req domain.PPVRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.WriteError(c, common.NewValidationError(err.Error()))
		return
	}

	resp, err := h.checkout.CreatePPVCheckout(c.Request.Context(), userID, &req)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.SuccessResponse(c, resp, nil)
}
