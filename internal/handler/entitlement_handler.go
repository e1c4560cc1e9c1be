package handler

import (
	"net/http"

	"github.com/damoang/angple-billing/internal/common"
	"github.com/damoang/angple-billing/internal/domain"
	"github.com/damoang/angple-billing/internal/middleware"
	"github.com/damoang/angple-billing/internal/service"
	"github.com/gin-gonic/gin"
)

// EntitlementHandler answers access checks and sells chat message packs
type EntitlementHandler struct {
	entitlements *service.EntitlementService
}

// NewEntitlementHandler creates a new EntitlementHandler
func NewEntitlementHandler(entitlements *service.EntitlementService) *EntitlementHandler {
	return &EntitlementHandler{entitlements: entitlements}
}

func viewerFrom(c *gin.Context) service.Viewer {
	return service.Viewer{UserID: middleware.GetUserID(c), IsAdmin: middleware.IsAdmin(c)}
}

// Get returns what the caller may do with a creator's content or chat
// @Summary 이용 권한 조회
// @Tags entitlements
// @Produce json
// @Param creatorId path string true "creator id"
// @Param resource query string false "content (default) or chat"
// @Success 200 {object} common.APIResponse{data=domain.Entitlement}
// @Router /api/v1/entitlements/{creatorId} [get]
func (h *EntitlementHandler) Get(c *gin.Context) {
	resource := domain.ResourceType(c.DefaultQuery("resource", string(domain.ResourceContent)))
	ent, err := h.entitlements.Get(c.Request.Context(), viewerFrom(c), c.Param("creatorId"), resource)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.SuccessResponse(c, ent, nil)
}

// BuySession spends wallet tokens on a message pack
// @Summary 메시지 이용권 구매
// @Tags chat
// @Produce json
// @Param creatorId path string true "creator id"
// @Success 200 {object} common.APIResponse{data=domain.BuySessionResponse}
// @Router /api/v1/chat/{creatorId}/sessions [post]
func (h *EntitlementHandler) BuySession(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		common.ErrorResponse(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	resp, err := h.entitlements.BuySession(c.Request.Context(), userID, c.Param("creatorId"))
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.SuccessResponse(c, resp, nil)
}

// SendMessage gates one chat message
// @Summary 메시지 전송 권한 차감
// @Tags chat
// @Produce json
// @Param creatorId path string true "creator id"
// @Success 200 {object} common.APIResponse{data=domain.Entitlement}
// @Failure 402 {object} common.ErrorInfo
// @Router /api/v1/chat/{creatorId}/messages [post]
func (h *EntitlementHandler) SendMessage(c *gin.Context) {
	if middleware.GetUserID(c) == "" {
		common.ErrorResponse(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	ent, err := h.entitlements.ConsumeMessage(c.Request.Context(), viewerFrom(c), c.Param("creatorId"))
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.SuccessResponse(c, ent, nil)
}

// Wallet returns the caller's token balance
// @Summary 토큰 잔액
// @Tags wallet
// @Produce json
// @Success 200 {object} common.APIResponse{data=domain.Wallet}
// @Router /api/v1/wallet [get]
func (h *EntitlementHandler) Wallet(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		common.ErrorResponse(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	wallet, err := h.entitlements.Wallet(c.Request.Context(), userID)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.SuccessResponse(c, wallet, nil)
}
