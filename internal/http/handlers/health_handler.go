// Health HTTP handler.
//
// GET /health always answers 200 so that orchestrators can tell the process
// is alive; each dependency is reported as "healthy" or "unhealthy: <reason>".
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// healthCheckTimeout bounds each dependency check.
const healthCheckTimeout = 2 * time.Second

// HealthCheck checks one dependency.
type HealthCheck struct {
	// Name is the key under "dependencies" (e.g. "database").
	Name string
	// Ping returns nil when the dependency is usable.
	Ping func(ctx context.Context) error
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status       string            `json:"status"       example:"healthy"`
	Service      string            `json:"service"      example:"user-service"`
	Timestamp    time.Time         `json:"timestamp"`
	Dependencies map[string]string `json:"dependencies"`
}

// Health godoc
// @ID          health
// @Summary     Liveness and dependency status
// @Tags        Health
// @Produce     json
// @Success     200  {object} handlers.HealthResponse
// @Router      /health [get]
func (h *Handlers) Health(c *gin.Context) {
	deps := make(map[string]string, len(h.checks))
	for _, chk := range h.checks {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		err := chk.Ping(ctx)
		cancel()
		if err != nil {
			deps[chk.Name] = "unhealthy: " + err.Error()
			continue
		}
		deps[chk.Name] = "healthy"
	}
	c.JSON(http.StatusOK, HealthResponse{
		Status:       "healthy",
		Service:      "user-service",
		Timestamp:    time.Now().UTC(),
		Dependencies: deps,
	})
}
