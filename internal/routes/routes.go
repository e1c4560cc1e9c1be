package routes

import (
	"github.com/damoang/angple-billing/internal/handler"
	"github.com/damoang/angple-billing/internal/middleware"
	"github.com/damoang/angple-billing/pkg/jwt"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Handlers groups every HTTP handler the billing API serves
type Handlers struct {
	Subscription *handler.SubscriptionHandler
	Payment      *handler.PaymentHandler
	Entitlement  *handler.EntitlementHandler
	Ledger       *handler.LedgerHandler
	Webhook      *handler.WebhookHandler
	WS           *handler.WSHandler
}

// Setup configures all billing routes
func Setup(router *gin.Engine, h Handlers, jwtManager *jwt.Manager, redisClient *redis.Client, checkoutPerMinute int) {
	auth := middleware.JWTAuth(jwtManager)
	checkoutLimit := middleware.RateLimitPerUser(redisClient, checkoutPerMinute)

	// provider callbacks authenticate by signature
	router.POST("/webhooks/provider", h.Webhook.Receive)

	api := router.Group("/api/v1")

	subs := api.Group("/subscriptions", auth)
	subs.POST("", checkoutLimit, h.Subscription.Create)
	subs.GET("", h.Subscription.List)
	subs.DELETE("", h.Subscription.Cancel)

	api.POST("/tips", auth, checkoutLimit, h.Payment.Tip)
	api.POST("/ppv", auth, checkoutLimit, h.Payment.PPV)

	api.GET("/entitlements/:creatorId", middleware.OptionalJWTAuth(jwtManager), h.Entitlement.Get)

	chat := api.Group("/chat/:creatorId", auth)
	chat.POST("/sessions", h.Entitlement.BuySession)
	chat.POST("/messages", h.Entitlement.SendMessage)

	api.GET("/wallet", auth, h.Entitlement.Wallet)
	api.GET("/ledger", auth, h.Ledger.List)

	admin := api.Group("/admin", auth, middleware.RequireAdmin())
	admin.GET("/webhooks/stats", h.Webhook.Stats)

	if h.WS != nil {
		router.GET("/ws/billing", auth, h.WS.Connect)
	}
}
