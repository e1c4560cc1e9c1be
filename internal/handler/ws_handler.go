package handler

import (
	"net/http"
	"strings"

	"github.com/damoang/angple-billing/internal/common"
	"github.com/damoang/angple-billing/internal/middleware"
	"github.com/damoang/angple-billing/internal/ws"
	"github.com/damoang/angple-billing/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WSHandler upgrades signed-in users to the billing event stream
type WSHandler struct {
	hub      *ws.Hub
	origins  map[string]struct{}
	upgrader websocket.Upgrader
}

// NewWSHandler creates a WSHandler. allowedOrigins is the comma separated CORS list; empty allows any origin.
func NewWSHandler(hub *ws.Hub, allowedOrigins string) *WSHandler {
	h := &WSHandler{hub: hub, origins: make(map[string]struct{})}
	for _, origin := range strings.Split(allowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			h.origins[origin] = struct{}{}
		}
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  256,
		WriteBufferSize: 1024,
		CheckOrigin:     h.allowOrigin,
	}
	return h
}

func (h *WSHandler) allowOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.origins) == 0 {
		return true
	}
	_, ok := h.origins[origin]
	return ok
}

// Connect streams subscription, entitlement and payment events to the caller
// @Summary 결제 이벤트 WebSocket
// @Tags billing
// @Router /ws/billing [get]
func (h *WSHandler) Connect(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		common.ErrorResponse(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.GetLogger().Debug().Err(err).Str("user_id", userID).Msg("websocket upgrade failed")
		return
	}
	go ws.NewClient(h.hub, conn, userID).Serve()
}
