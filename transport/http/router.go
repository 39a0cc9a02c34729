package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/agora/internal/logger"
	"github.com/layer-3/agora/internal/metrics"
	"github.com/layer-3/agora/service"
	"go.uber.org/zap"
)

// RouterConfig carries what the router serves.
type RouterConfig struct {
	Auth           *service.AuthService
	Market         *service.MarketService
	UploadDir      string
	DeploymentFile string
	Metrics        metrics.Recorder
	MetricsHandler http.Handler // served at /metrics when set
	Log            *zap.Logger
}

// SetupRouter sets up the Gin router
func SetupRouter(cfg RouterConfig) *gin.Engine {
	log := logger.OrNop(cfg.Log)

	router := gin.New()
	router.Use(gin.Recovery(), logger.RequestLogger(log), MetricsMiddleware(cfg.Metrics))

	authHandlers := NewAuthHandlers(cfg.Auth)
	marketHandlers := NewMarketHandlers(cfg.Market, cfg.DeploymentFile, log)
	requireAuth := AuthMiddleware(cfg.Auth)

	// Auth routes
	auth := router.Group("/auth")
	{
		auth.POST("/challenge", authHandlers.Challenge)
		auth.POST("/login", authHandlers.Login)
		auth.POST("/refresh", authHandlers.Refresh)
		auth.POST("/logout", authHandlers.Logout)
	}

	// Marketplace routes
	router.GET("/buy", marketHandlers.Available)
	router.POST("/sell/offer", marketHandlers.Offer)
	router.GET("/get_seller/:id", marketHandlers.Seller)
	router.POST("/buy/offer/:id", marketHandlers.Buy)
	router.GET("/static/deployedAddress.json", marketHandlers.Deployment)
	if cfg.UploadDir != "" {
		router.Static("/uploads", cfg.UploadDir)
	}

	api := router.Group("/api")
	{
		api.POST("/profile", marketHandlers.Profile)
		api.POST("/transactions", marketHandlers.Transactions)
	}

	// Protected API routes
	protected := api.Group("")
	protected.Use(requireAuth)
	{
		protected.GET("/me", authHandlers.Me)
		protected.GET("/authorize", authHandlers.Authorize)
		protected.POST("/item/:id/update", marketHandlers.UpdateItem)
		protected.DELETE("/item/:id/delete", marketHandlers.DeleteItem)
	}

	if cfg.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}

	return router
}
