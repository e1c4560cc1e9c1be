package handler

import (
	"net/http"

	"github.com/damoang/angple-billing/internal/common"
	"github.com/damoang/angple-billing/internal/middleware"
	"github.com/damoang/angple-billing/internal/service"
	"github.com/damoang/angple-billing/pkg/ginutil"
	"github.com/gin-gonic/gin"
)

// LedgerHandler exposes a creator's earnings
type LedgerHandler struct {
	ledger *service.LedgerService
}

// NewLedgerHandler creates a new LedgerHandler
func NewLedgerHandler(ledger *service.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

// List returns a page of the caller's ledger; admins may pass creator_id
// @Summary 정산 내역
// @Tags ledger
// @Produce json
// @Param creator_id query string false "creator id (admin only)"
// @Param page query int false "page"
// @Param per_page query int false "page size"
// @Success 200 {object} common.APIResponse{data=service.LedgerPage}
// @Router /api/v1/ledger [get]
func (h *LedgerHandler) List(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		common.ErrorResponse(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	creatorID := userID
	if requested := c.Query("creator_id"); requested != "" && requested != userID {
		if !middleware.IsAdmin(c) {
			common.ErrorResponse(c, http.StatusForbidden, "Not allowed to view this ledger", nil)
			return
		}
		creatorID = requested
	}

	page, perPage := ginutil.Pagination(c)
	result, err := h.ledger.List(c.Request.Context(), creatorID, page, perPage)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.SuccessResponse(c, result, &common.Meta{Page: page, Limit: perPage, Total: result.Total})
}
