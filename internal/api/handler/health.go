package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/kiranshivaraju/finsight/internal/api/response"
)

const healthCheckTimeout = 2 * time.Second

// Pinger is anything whose reachability /health reports.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHealthHandler returns an http.HandlerFunc for GET /health. Each entry in
// checks is reported as "ok" or "degraded".
func NewHealthHandler(checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		services := make(map[string]string, len(checks))
		degraded := false
		for name, p := range checks {
			services[name] = "ok"
			if err := p.Ping(ctx); err != nil {
				slog.Warn("health check failed", "service", name, "error", err)
				services[name] = "degraded"
				degraded = true
			}
		}

		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", services)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": services,
		})
	}
}
