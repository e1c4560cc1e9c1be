package handler_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/damoang/angple-billing/internal/handler"
	"github.com/damoang/angple-billing/internal/middleware"
	"github.com/damoang/angple-billing/internal/ws"
	"github.com/damoang/angple-billing/pkg/jwt"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func billingSocketServer(t *testing.T, origins string) (*httptest.Server, *ws.Hub, *jwt.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := ws.NewHub(nil)
	go hub.Run()
	t.Cleanup(hub.Stop)

	manager := jwt.NewManager("ws-secret", 300)
	r := gin.New()
	r.GET("/ws/billing", middleware.JWTAuth(manager), handler.NewWSHandler(hub, origins).Connect)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, hub, manager
}

func dial(t *testing.T, srv *httptest.Server, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/billing"
	return websocket.DefaultDialer.Dial(url, header)
}

func TestWSHandler_StreamsEventsToOwner(t *testing.T) {
	srv, hub, manager := billingSocketServer(t, "")
	token, err := manager.GenerateAccessToken("fan1", "Fan", 1)
	require.NoError(t, err)

	conn, _, err := dial(t, srv, http.Header{"Authorization": {"Bearer " + token}})
	require.NoError(t, err)
	defer conn.Close()

	var hello ws.Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, ws.EventConnected, hello.Type)

	require.Eventually(t, func() bool { return hub.Connected("fan1") == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Push("fan1", &ws.Event{Type: ws.EventPaymentReceived, Payload: map[string]int64{"amount": 999}})

	var ev ws.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, ws.EventPaymentReceived, ev.Type)
}

func TestWSHandler_RequiresToken(t *testing.T) {
	srv, _, _ := billingSocketServer(t, "")

	_, resp, err := dial(t, srv, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWSHandler_RejectsUnknownOrigin(t *testing.T) {
	srv, hub, manager := billingSocketServer(t, "https://damoang.net, https://app.damoang.net")
	token, err := manager.GenerateAccessToken("fan1", "Fan", 1)
	require.NoError(t, err)

	_, resp, err := dial(t, srv, http.Header{
		"Authorization": {"Bearer " + token},
		"Origin":        {"https://evil.example"},
	})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, hub.Connected("fan1"))

	conn, _, err := dial(t, srv, http.Header{
		"Authorization": {"Bearer " + token},
		"Origin":        {"https://app.damoang.net"},
	})
	require.NoError(t, err)
	conn.Close()
}
