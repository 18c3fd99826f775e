// Package api exposes the dashboard session over HTTP and WebSocket.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gridwatch/internal/api/handlers"
	"gridwatch/internal/api/middleware"
	"gridwatch/internal/api/stream"
	"gridwatch/internal/logger"
	"gridwatch/internal/metrics"
)

// Upstream is what the API needs from the market data client.
type Upstream interface {
	handlers.VenueCatalog
	handlers.LoadFetcher
}

// Dependencies wires the router.
type Dependencies struct {
	Session        handlers.Session
	Upstream       Upstream
	Hub            *stream.Hub
	Metrics        *metrics.Metrics
	Logger         *logger.Log
	AllowedOrigins []string
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()

	// Apply middleware
	router.Use(middleware.CORS(deps.AllowedOrigins))
	router.Use(middleware.Logger(deps.Logger))
	router.Use(middleware.ErrorHandler(deps.Logger))

	dashboard := handlers.NewDashboardHandler(deps.Session, deps.Upstream)
	load := handlers.NewLoadHandler(deps.Upstream)

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "state": deps.Session.State()})
	})
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	if deps.Hub != nil {
		router.GET("/ws", gin.WrapF(deps.Hub.ServeWS))
	}

	// API routes
	v1 := router.Group("/api/v1")
	{
		v1.GET("/state", dashboard.GetState)
		v1.GET("/venues", dashboard.ListVenues)
		v1.PUT("/scope", dashboard.SetScope)
		v1.POST("/refresh", dashboard.Refresh)

		v1.GET("/grid", dashboard.GetGrid)
		v1.GET("/grid.csv", dashboard.GetGridCSV)
		v1.GET("/grid/intervals", dashboard.GetIntervals)

		v1.GET("/ledger", dashboard.GetLedger)

		v1.GET("/constraints", dashboard.GetConstraints)
		v1.PUT("/constraints/scope", dashboard.ToggleConstraintInterval)
		v1.DELETE("/constraints/scope", dashboard.ResetConstraintScope)

		v1.GET("/load", load.GetLoad)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": gin.H{
				"code":    "NOT_FOUND",
				"message": "Not found",
			},
		})
	})
	return router
}
