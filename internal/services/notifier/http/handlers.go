// Package http exposes the notifier's operational surface
package http

import (
	"context"
	"net/http"
	"time"

	"chime/internal/modkit/httpkit"
	"chime/internal/services/notifier/service"
)

// Probe reports the liveness of a backing dependency
type Probe func(ctx context.Context) error

// Handlers wraps the notifier for the health, stats and reset endpoints
type Handlers struct {
	notifier *service.Notifier
	busPing  Probe
	mode     string
}

// NewHandlers builds the handler set; mode is reported in health
func NewHandlers(n *service.Notifier, busPing Probe, mode string) *Handlers {
	return &Handlers{notifier: n, busPing: busPing, mode: mode}
}

// Health handles GET /health
func (h *Handlers) Health(r *http.Request) httpkit.Response {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	busStatus := "disabled"
	if h.busPing != nil {
		busStatus = "ok"
		if err := h.busPing(ctx); err != nil {
			busStatus = err.Error()
		}
	}
	status := "ok"
	if busStatus != "ok" && busStatus != "disabled" {
		status = "degraded"
	}
	return httpkit.OK(map[string]any{
		"status": status,
		"mode":   h.mode,
		"bus":    busStatus,
	})
}

// Stats handles GET /stats
func (h *Handlers) Stats(*http.Request) httpkit.Response {
	return httpkit.OK(h.notifier.Stats())
}

// Reset handles POST /reset
func (h *Handlers) Reset(*http.Request) httpkit.Response {
	h.notifier.Reset()
	return httpkit.OK(map[string]string{"status": "reset"})
}

// Register mounts the notifier routes on r
func Register(r httpkit.Router, h *Handlers) {
	r.Get("/health", httpkit.Handle(h.Health))
	r.Get("/stats", httpkit.Handle(h.Stats))
	r.Post("/reset", httpkit.Handle(h.Reset))
}
