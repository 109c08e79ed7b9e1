package router

import (
	"net/http"

	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/config"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/handler"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/middleware"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/pricing"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/repository"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/service"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/pkg/mq"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/pkg/provider"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func Setup(cfg *config.Config, db *gorm.DB, providers *provider.Registry, pub *mq.Publisher, rates pricing.RateSource) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	// Repositories
	bookingRepo := repository.NewBookingRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	refundRepo := repository.NewRefundRepository(db)
	eventRepo := repository.NewWebhookEventRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Services
	notifSvc := service.NewNotificationService(pub)
	paymentSvc := service.NewPaymentService(paymentRepo, bookingRepo, refundRepo, providers, notifSvc, cfg.Payment.ProviderTimeout, cfg.Payment.OrderExpiry)
	refundProc := service.NewRefundProcessor(paymentRepo, refundRepo, bookingRepo, providers, notifSvc, cfg.Payment.ProviderTimeout)
	reconciler := service.NewReconciler(paymentRepo, bookingRepo, eventRepo, notifSvc)

	// Handlers
	paymentHandler := handler.NewPaymentHandler(paymentSvc, refundProc, auditRepo)
	bookingHandler := handler.NewBookingHandler(bookingRepo, paymentSvc)
	pricingHandler := handler.NewPricingHandler(rates)
	webhookHandler := handler.NewWebhookHandler(reconciler, &cfg.Payment)

	authMw := middleware.AuthRequired(&cfg.JWT)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	{
		// Webhooks are signature-verified, not token-authenticated.
		api.POST("/webhooks/payments", webhookHandler.Handle)

		api.GET("/pricing/breakdown", pricingHandler.Breakdown)

		secured := api.Group("")
		secured.Use(authMw)
		{
			secured.POST("/bookings", bookingHandler.Create)
			secured.GET("/bookings/:id", bookingHandler.Get)
			secured.GET("/bookings/:id/payments", bookingHandler.Payments)

			secured.POST("/payments", paymentHandler.Create)
			secured.POST("/payments/capture", paymentHandler.Capture)
			secured.POST("/payments/tokens", paymentHandler.SetupToken)
			secured.POST("/payments/:id/refunds", paymentHandler.Refund)
			secured.GET("/payments/:id/audit", paymentHandler.AuditTrail)
		}
	}
	return r
}
