package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/shashiranjanraj/filebot/pkg/logger"
	"github.com/shashiranjanraj/filebot/pkg/response"
)

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

type HealthController struct {
	checks  map[string]Check
	timeout time.Duration
}

// NewHealthController builds the probes. checks are run by Ready.
func NewHealthController(checks map[string]Check) *HealthController {
	return &HealthController{checks: checks, timeout: 2 * time.Second}
}

// Live answers as long as the process is serving.
func (c *HealthController) Live(w http.ResponseWriter, _ *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready pings every dependency and answers 503 if any is down.
func (c *HealthController) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
	defer cancel()

	status, code := "ok", http.StatusOK
	results := make(map[string]string, len(c.checks))
	for name, check := range c.checks {
		if err := check(ctx); err != nil {
			logger.WithCtx(ctx).Warn("readiness check failed", "check", name, "error", err)
			results[name] = err.Error()
			status, code = "unavailable", http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	response.JSON(w, code, map[string]any{"status": status, "checks": results})
}
