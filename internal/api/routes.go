package api

import (
	"github.com/gin-gonic/gin"

	"github.com/irfndi/funding-collector/internal/api/handlers"
)

// Dependencies are the collector components the status routes read from.
type Dependencies struct {
	Exchange  string
	Version   string
	Collector handlers.CycleSource
	Scheduler handlers.RunState
	State     handlers.StateSource
	Checks    map[string]handlers.HealthChecker
}

// SetupRoutes registers the status endpoints on router.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler(deps.Exchange, deps.Version, deps.Collector, deps.Scheduler, deps.Checks)
	stateHandler := handlers.NewStateHandler(deps.Exchange, deps.State)

	router.GET("/health", healthHandler.HealthCheck)

	state := router.Group("/state")
	{
		state.GET("", stateHandler.GetState)
		state.GET("/:asset", stateHandler.GetAssetState)
	}
}
