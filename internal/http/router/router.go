package router

import (
	"github.com/gin-gonic/gin"

	"github.com/shinequote/detailer-backend/internal/config"
	"github.com/shinequote/detailer-backend/internal/http/handlers"
	"github.com/shinequote/detailer-backend/internal/http/middleware"
)

func SetupRouter(
	cfg *config.Config,
	quoteHandler *handlers.QuoteHandler,
	publicQuoteHandler *handlers.PublicQuoteHandler,
	changeOrderHandler *handlers.ChangeOrderHandler,
	checkoutHandler *handlers.CheckoutHandler,
	refundHandler *handlers.RefundHandler,
	shopHandler *handlers.ShopHandler,
	webhookHandler *handlers.WebhookHandler,
	healthHandler *handlers.HealthHandler,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)

	api := r.Group("/api")

	// The processor's deliveries are authenticated by signature, never by
	// bearer token, and never rate limited: dropping a delivery delays
	// reconciliation.
	api.POST("/webhooks/stripe", webhookHandler.HandleStripe)

	// Money-moving endpoints share a tighter per-IP budget.
	moneyRateLimit := middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod)

	// Customer-facing, capability-token addressed.
	api.GET("/q/:shareLink", publicQuoteHandler.Get)
	api.POST("/q/:shareLink/decline", publicQuoteHandler.Decline)
	api.POST("/q/:shareLink/checkout", moneyRateLimit, checkoutHandler.QuoteCheckout)

	api.GET("/change-orders/:token", changeOrderHandler.GetByToken)
	api.POST("/change-orders/:token/decline", changeOrderHandler.Decline)
	api.POST("/change-orders/:token/checkout", moneyRateLimit, checkoutHandler.ChangeOrderCheckout)

	api.GET("/shop/products", shopHandler.ListProducts)
	api.GET("/shop/orders/:id", shopHandler.GetOrder)
	api.POST("/shop/checkout", moneyRateLimit, checkoutHandler.ShopCheckout)

	// Detailer-authenticated.
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	{
		protected.POST("/quotes", quoteHandler.Create)
		protected.GET("/quotes", quoteHandler.List)
		protected.GET("/quotes/:id", quoteHandler.Get)
		protected.POST("/quotes/:id/send", quoteHandler.Send)
		protected.POST("/quotes/:id/schedule", quoteHandler.Schedule)
		protected.POST("/quotes/:id/start", quoteHandler.Start)
		protected.POST("/quotes/:id/complete", quoteHandler.Complete)
		protected.POST("/quotes/:id/refund", moneyRateLimit, refundHandler.Refund)

		protected.POST("/quotes/:id/change-orders", changeOrderHandler.Propose)
		protected.GET("/quotes/:id/change-orders", changeOrderHandler.ListByQuote)

		protected.POST("/billing/subscription/checkout", moneyRateLimit, checkoutHandler.SubscriptionCheckout)
	}

	return r
}
