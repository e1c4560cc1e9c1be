package handler

import (
	"io"
	"net/http"

	"github.com/damoang/angple-billing/internal/common"
	"github.com/damoang/angple-billing/internal/service"
	"github.com/gin-gonic/gin"
)

// maxWebhookBody caps provider payloads
const maxWebhookBody = 1 << 20

// WebhookHandler receives payment provider events
type WebhookHandler struct {
	webhooks *service.WebhookService
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(webhooks *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// Receive verifies and applies a provider event. Any non-2xx answer makes the provider retry.
// @Summary 결제사 웹훅 수신
// @Tags webhooks
// @Accept json
// @Produce json
// @Param Stripe-Signature header string true "signature"
// @Success 200 {object} service.WebhookResult
// @Router /webhooks/provider [post]
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		common.WriteError(c, common.NewValidationError("unreadable body"))
		return
	}

	result, err := h.webhooks.Handle(c.Request.Context(), body, c.GetHeader("Stripe-Signature"))
	if err != nil {
		common.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true, "outcome": result.Outcome, "eventId": result.EventID})
}

// Stats returns journal counts by status
// @Summary 웹훅 처리 현황
// @Tags admin
// @Produce json
// @Success 200 {object} common.APIResponse
// @Router /api/v1/admin/webhooks/stats [get]
func (h *WebhookHandler) Stats(c *gin.Context) {
	stats, err := h.webhooks.JournalStats(c.Request.Context())
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.SuccessResponse(c, stats, nil)
}
