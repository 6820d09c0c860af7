package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/funding-collector/internal/middleware"
	"github.com/irfndi/funding-collector/internal/services"
)

const healthCheckTimeout = 2 * time.Second

// HealthChecker is any backend that can report its own health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// CycleSource exposes the most recent collection cycle.
type CycleSource interface {
	LastCycle() (services.CycleReport, int64, bool)
}

// RunState reports whether a cycle is in flight.
type RunState interface {
	Running() bool
}

type HealthHandler struct {
	exchange  string
	version   string
	cycles    CycleSource
	scheduler RunState
	checks    map[string]HealthChecker
	startTime time.Time
	now       func() time.Time
}

type HealthResponse struct {
	Status    string                `json:"status"`
	Exchange  string                `json:"exchange"`
	Version   string                `json:"version"`
	Running   bool                  `json:"running"`
	Cycles    int64                 `json:"cycles"`
	LastCycle *services.CycleReport `json:"last_cycle"`
	Services  map[string]string     `json:"services,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
	Uptime    string                `json:"uptime"`
}

func NewHealthHandler(exchange, version string, cycles CycleSource, scheduler RunState, checks map[string]HealthChecker) *HealthHandler {
	return &HealthHandler{
		exchange:  exchange,
		version:   version,
		cycles:    cycles,
		scheduler: scheduler,
		checks:    checks,
		startTime: time.Now(),
		now:       time.Now,
	}
}

// HealthCheck reports collector progress and backend health. Any failing
// backend turns the status to "degraded" with a 503.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	now := h.now()
	response := HealthResponse{
		Status:    "ok",
		Exchange:  h.exchange,
		Version:   h.version,
		Timestamp: now,
		Uptime:    now.Sub(h.startTime).Round(time.Second).String(),
	}
	if h.scheduler != nil {
		response.Running = h.scheduler.Running()
	}
	if h.cycles != nil {
		report, cycles, ok := h.cycles.LastCycle()
		response.Cycles = cycles
		if ok {
			response.LastCycle = &report
		}
	}

	if len(h.checks) > 0 {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()

		names := make([]string, 0, len(h.checks))
		for name := range h.checks {
			names = append(names, name)
		}
		sort.Strings(names)

		response.Services = make(map[string]string, len(names))
		for _, name := range names {
			if err := h.checks[name].HealthCheck(ctx); err != nil {
				response.Services[name] = "unhealthy: " + err.Error()
				response.Status = "degraded"
				middleware.RecordError(c, err, fmt.Sprintf("%s unhealthy", name))
				continue
			}
			response.Services[name] = "healthy"
		}
	}

	statusCode := http.StatusOK
	if response.Status != "ok" {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, response)
}
