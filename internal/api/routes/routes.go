package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jetstore/store-service/internal/api/handlers"
	"github.com/jetstore/store-service/internal/api/middleware"
	"github.com/jetstore/store-service/internal/infrastructure/config"
	"github.com/jetstore/store-service/pkg/logger"
	"github.com/jetstore/store-service/pkg/metrics"
)

// Dependencies carries everything the route tree needs.
type Dependencies struct {
	Config   *config.Config
	Logger   *logger.Logger
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry

	Orders   *handlers.OrderHandler
	Webhooks *handlers.WebhookHandler
	Configs  *handlers.ConfigHandler
	Referral *handlers.ReferralHandler
	Admin    *handlers.AdminHandler
	Health   *handlers.HealthHandler
}

// SetupRoutes configures all application routes
func SetupRoutes(deps Dependencies) *gin.Engine {
	if deps.Config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.RequestSizeLimit())
	router.Use(middleware.Logger(deps.Logger, deps.Metrics))
	router.Use(middleware.Recovery(deps.Logger))
	router.Use(middleware.CORS(deps.Config.Server.AllowedOrigins))
	router.Use(middleware.RateLimit(deps.Config.Server.RateLimitPerMin))

	router.NoRoute(handlers.NotFound)

	router.GET("/health", deps.Health.Health)
	router.GET("/health/ready", deps.Health.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))

	api := router.Group("/api")
	{
		api.GET("/config", deps.Configs.GetConfig)
		api.GET("/ton-rate", deps.Configs.GetTONRate)

		api.POST("/orders", deps.Orders.CreateOrder)
		api.POST("/payment/check", deps.Orders.CheckPayment)

		referral := api.Group("/referral")
		{
			referral.POST("/attach", deps.Referral.Attach)
			referral.GET("/stats/:userID", deps.Referral.Stats)
			referral.GET("/link/:userID", deps.Referral.Link)
			referral.POST("/withdraw", deps.Referral.Withdraw)
		}
	}

	webhooks := router.Group("/webhooks")
	{
		webhooks.POST("/cryptopay", deps.Webhooks.HandleCryptoPay)
		webhooks.POST("/platega", deps.Webhooks.HandlePlatega)
		webhooks.POST("/freekassa", deps.Webhooks.HandleFreeKassa)
	}

	admin := router.Group("/admin")
	admin.Use(middleware.AdminAuth(deps.Config.Admin.JWTSecret, deps.Config.Admin.Issuer, deps.Logger))
	{
		admin.GET("/rates", deps.Admin.GetRates)
		admin.PUT("/rates", deps.Admin.SetRate)
	}

	return router
}
