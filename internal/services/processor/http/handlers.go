// Package http exposes the processor's small operational surface
package http

import (
	"context"
	"net/http"
	"time"

	"chime/internal/modkit/httpkit"
	"chime/internal/services/processor/service"
)

// Probe reports the liveness of a backing dependency
type Probe func(ctx context.Context) error

// Handlers wraps the processor for the health, stats and reset endpoints
type Handlers struct {
	proc      *service.Processor
	storePing Probe
	busPing   Probe
}

// NewHandlers builds the handler set. Nil probes report "disabled"
func NewHandlers(proc *service.Processor, storePing, busPing Probe) *Handlers {
	return &Handlers{proc: proc, storePing: storePing, busPing: busPing}
}

// Health handles GET /health
func (h *Handlers) Health(r *http.Request) httpkit.Response {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	body := map[string]any{
		"status": "ok",
		"store":  probeStatus(ctx, h.storePing),
		"bus":    probeStatus(ctx, h.busPing),
	}
	if body["store"] != "ok" && body["store"] != "disabled" {
		body["status"] = "degraded"
	}
	if body["bus"] != "ok" && body["bus"] != "disabled" {
		body["status"] = "degraded"
	}
	return httpkit.OK(body)
}

// Stats handles GET /stats
func (h *Handlers) Stats(*http.Request) httpkit.Response {
	return httpkit.OK(h.proc.Stats())
}

// Reset handles POST /reset
func (h *Handlers) Reset(*http.Request) httpkit.Response {
	h.proc.Reset()
	return httpkit.OK(map[string]string{"status": "reset"})
}

// Register mounts the processor routes on r
func Register(r httpkit.Router, h *Handlers) {
	r.Get("/health", httpkit.Handle(h.Health))
	r.Get("/stats", httpkit.Handle(h.Stats))
	r.Post("/reset", httpkit.Handle(h.Reset))
}

func probeStatus(ctx context.Context, p Probe) string {
	if p == nil {
		return "disabled"
	}
	if err := p(ctx); err != nil {
		return err.Error()
	}
	return "ok"
}
