package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/authgate/authgate/utils"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	version string
	pingers map[string]Pinger
	logger  *zap.Logger
}

// NewHealthHandler creates a HealthHandler. pingers maps a dependency name to
// its readiness check; nil entries are skipped.
func NewHealthHandler(version string, pingers map[string]Pinger, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{version: version, pingers: pingers, logger: logger}
}

// Healthz handles GET /healthz: process is up.
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, map[string]interface{}{
		"status":    "ok",
		"version":   h.version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Readyz handles GET /readyz: all registered dependencies answer.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.pingers))
	healthy := true

	for name, pinger := range h.pingers {
		if pinger == nil {
			continue
		}
		if err := pinger.Ping(r.Context()); err != nil {
			h.logger.Warn("readiness check failed",
				zap.String("dependency", name), zap.Error(err))
			checks[name] = "unavailable"
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	status := "ready"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	_ = utils.WriteJSON(w, code, map[string]interface{}{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
