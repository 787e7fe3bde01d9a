package server

import (
	"context"
	"net/http"
	"time"

	"github.com/lotchurch/congregate/core/monitoring"

	"github.com/pocketbase/pocketbase/core"
)

const (
	healthTimeout      = 3 * time.Second
	healthBusiestPaths = 5
)

// HealthResponse represents health check response data
type HealthResponse struct {
	Status        string                    `json:"status"`
	ServerStats   StatsSnapshot             `json:"server_stats"`
	Requests      monitoring.RequestSummary `json:"requests"`
	SystemStats   *monitoring.SystemStats   `json:"system_stats,omitempty"`
	LastCheckTime time.Time                 `json:"last_check_time"`
}

// RegisterHealthRoute mounts GET /health
func (s *Server) RegisterHealthRoute(e *core.ServeEvent) {
	e.Router.GET("/health", s.handleHealth)
}

// handleHealth reports "ok", or "degraded" when a system probe failed. It
// always answers 200 so load balancers only act on a dead process.
func (s *Server) handleHealth(c *core.RequestEvent) error {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	response := HealthResponse{
		Status:        "ok",
		ServerStats:   s.stats.Snapshot(),
		Requests:      s.requests.Summary(healthBusiestPaths),
		LastCheckTime: time.Now(),
	}

	sysStats, err := monitoring.CollectSystemStats(ctx, s.stats.StartTime, s.app.DataDir())
	if err != nil {
		response.Status = "degraded"
		s.app.Logger().Warn("Health check probe failed",
			"event", "health_check",
			"error", err,
		)
	}
	response.SystemStats = sysStats

	return c.JSON(http.StatusOK, response)
}
