package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/shinequote/detailer-backend/internal/config"
	"github.com/shinequote/detailer-backend/internal/db"
	"github.com/shinequote/detailer-backend/internal/goroutine"
	httpHandlers "github.com/shinequote/detailer-backend/internal/http/handlers"
	httpRouter "github.com/shinequote/detailer-backend/internal/http/router"
	"github.com/shinequote/detailer-backend/internal/logger"
	"github.com/shinequote/detailer-backend/internal/money"
	"github.com/shinequote/detailer-backend/internal/payments"
	"github.com/shinequote/detailer-backend/internal/repository"
	"github.com/shinequote/detailer-backend/internal/service"
)

func main() {
	// Context for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: configuration error: %v", err)
	}

	logLevel := "info"
	if cfg.Env == "development" {
		logLevel = "debug"
		logger.Init(logLevel)
		logger.SetTextFormatter()
	} else {
		logger.Init(logLevel)
	}

	// Database connection and migrations.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: database connection error: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: migration error: %v", err)
	}

	// Payment processor client.
	stripeClient := payments.NewStripeClient(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.ProcessorTimeout)

	// Repositories.
	quoteRepo := repository.NewQuoteRepository(dbConn, cfg.DBTimeout)
	changeOrderRepo := repository.NewChangeOrderRepository(dbConn, cfg.DBTimeout)
	detailerRepo := repository.NewDetailerRepository(dbConn, cfg.DBTimeout)
	shopRepo := repository.NewShopRepository(dbConn, cfg.DBTimeout)
	webhookEventRepo := repository.NewWebhookEventRepository(dbConn, cfg.DBTimeout)

	// Services.
	notifier := service.NewLogNotifier()
	feeSchedule := money.DefaultSchedule()

	quoteService := service.NewQuoteService(quoteRepo, notifier, service.DefaultQuoteValidity)
	changeOrderService := service.NewChangeOrderService(changeOrderRepo, quoteRepo, notifier)
	refundService := service.NewRefundService(quoteRepo, stripeClient, notifier)
	checkoutService := service.NewCheckoutService(
		stripeClient, quoteRepo, changeOrderRepo, detailerRepo, shopRepo,
		feeSchedule, cfg.PlanPriceIDs, cfg.PublicBaseURL)
	webhookService := service.NewWebhookService(
		stripeClient, webhookEventRepo, quoteService, changeOrderService,
		shopRepo, refundService, detailerRepo, cfg.PlanPriceIDs)

	// HTTP handlers.
	quoteHandler := httpHandlers.NewQuoteHandler(quoteService)
	publicQuoteHandler := httpHandlers.NewPublicQuoteHandler(quoteService, detailerRepo)
	changeOrderHandler := httpHandlers.NewChangeOrderHandler(changeOrderService)
	checkoutHandler := httpHandlers.NewCheckoutHandler(checkoutService)
	refundHandler := httpHandlers.NewRefundHandler(refundService)
	shopHandler := httpHandlers.NewShopHandler(shopRepo)
	webhookHandler := httpHandlers.NewWebhookHandler(webhookService)
	healthHandler := httpHandlers.NewHealthHandler(dbConn)

	engine := httpRouter.SetupRouter(cfg,
		quoteHandler, publicQuoteHandler, changeOrderHandler, checkoutHandler,
		refundHandler, shopHandler, webhookHandler, healthHandler)

	// Periodic expiry sweep for unpaid quotes past their validity window.
	goroutine.SafeGoWithContext(ctx, func(ctx context.Context) {
		ticker := time.NewTicker(cfg.ExpirySweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweepCtx, cancel := context.WithTimeout(ctx, cfg.DBTimeout)
				if n, err := quoteService.ExpireDue(sweepCtx); err != nil {
					log.Printf("main: expiry sweep error: %v", err)
				} else if n > 0 {
					log.Printf("main: expired %d overdue quotes", n)
				}
				cancel()
			}
		}
	})

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: http server shutdown error: %v", err)
		}
	}()

	log.Printf("main: HTTP server listening on port %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: server terminated with error: %v", err)
	}
}

// safeClose closes the database connection.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: database close error: %v", err)
	}
}
