package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"deposit-reconciliation-backend/internal/config"
	"deposit-reconciliation-backend/internal/events"
	handler "deposit-reconciliation-backend/internal/handlers"
	"deposit-reconciliation-backend/internal/metrics"
	"deposit-reconciliation-backend/internal/repository"
	service "deposit-reconciliation-backend/internal/services/reconciliation"
	"deposit-reconciliation-backend/internal/services/webhook"
)

type Dependencies struct {
	DB        *gorm.DB
	Config    config.Config
	Rules     service.RulesSource
	Publisher events.Publisher
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Log       *zap.Logger
}

func RegisterRoutes(r *gin.Engine, deps Dependencies) {
	audit := repository.NewAuditRepository(deps.DB)

	reconService := service.NewService(service.Params{
		DB:         deps.DB,
		Deposits:   repository.NewDepositRepository(deps.DB),
		Orders:     repository.NewOrderRepository(deps.DB),
		Matches:    repository.NewMatchRepository(deps.DB),
		Audit:      audit,
		AuditTrail: audit,
		Publisher:  deps.Publisher,
		Rules:      deps.Rules,
		Metrics:    deps.Metrics,
		Log:        deps.Log,
		Timeout:    deps.Config.StorageTimeout,
	})

	ingestor := webhook.NewIngestor(webhook.Params{
		Registry: webhook.DefaultRegistry(),
		Secrets:  deps.Config.WebhookSecrets,
		Service:  reconService,
		Metrics:  deps.Metrics,
		Log:      deps.Log,
	})

	reconHandler := handler.NewReconciliationHandler(reconService, deps.Log)
	webhookHandler := handler.NewWebhookHandler(ingestor, deps.Log)

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		sqlDB, err := deps.DB.DB()
		if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	payments := api.Group("/payments")
	payments.POST("/webhook", webhookHandler.Receive)
	payments.POST("/import", reconHandler.Import)
	payments.GET("/stats", reconHandler.Stats)
	payments.GET("", reconHandler.List)
	payments.GET("/:id", reconHandler.Get)
	payments.GET("/:id/candidates", reconHandler.Candidates)
	payments.POST("/:id/match", reconHandler.Match)
	payments.POST("/:id/unmatch", reconHandler.Unmatch)
}
