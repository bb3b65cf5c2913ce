// Package http contains the admin HTTP handlers for the alarms service
package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chime/internal/modkit/httpkit"
	perr "chime/internal/platform/errors"
	"chime/internal/platform/net/http/bind"
	"chime/internal/services/alarms/domain"
)

// Probe reports the liveness of a backing dependency
type Probe func(ctx context.Context) error

// Handlers carries the scheduler port plus the store and bus probes for health
type Handlers struct {
	port      domain.SchedulerPort
	storePing Probe
	busPing   Probe
}

// NewHandlers builds the handler set. Nil probes report "disabled"
func NewHandlers(port domain.SchedulerPort, storePing, busPing Probe) *Handlers {
	return &Handlers{port: port, storePing: storePing, busPing: busPing}
}

// ScheduleAlarm handles POST /alarms/
func (h *Handlers) ScheduleAlarm(r *http.Request) httpkit.Response {
	req, err := bind.ParseJSON[domain.ScheduleRequest](r)
	if err != nil {
		return httpkit.Error(err)
	}
	a, err := h.port.Schedule(r.Context(), req)
	if err != nil {
		return httpkit.Error(err)
	}
	return httpkit.OK(a)
}

// UpdateAlarm handles PUT /alarms/, rewriting an existing alarm
func (h *Handlers) UpdateAlarm(r *http.Request) httpkit.Response {
	req, err := bind.ParseJSON[domain.ScheduleRequest](r)
	if err != nil {
		return httpkit.Error(err)
	}
	a, err := h.port.Update(r.Context(), req)
	if err != nil {
		return httpkit.Error(err)
	}
	return httpkit.OK(a)
}

// ListAlarms handles GET /alarms/ with limit and offset query params
func (h *Handlers) ListAlarms(r *http.Request) httpkit.Response {
	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)
	out, err := h.port.List(r.Context(), limit, offset)
	if err != nil {
		return httpkit.Error(err)
	}
	if out == nil {
		out = []domain.Alarm{}
	}
	return httpkit.OK(map[string]any{"alarms": out, "count": len(out)})
}

// CountAlarms handles GET /alarms/count
func (h *Handlers) CountAlarms(r *http.Request) httpkit.Response {
	return httpkit.OK(map[string]int{"count": h.port.Count()})
}

// DeleteAlarm handles DELETE /alarms/ identified by query params.
// Deleting an absent alarm still succeeds with deleted=false
func (h *Handlers) DeleteAlarm(r *http.Request) httpkit.Response {
	q := r.URL.Query()
	codeID := strings.TrimSpace(q.Get("code_id"))
	email := strings.TrimSpace(q.Get("email"))
	localTime := strings.TrimSpace(q.Get("time"))
	if codeID == "" || email == "" || localTime == "" {
		return httpkit.Error(perr.Validationf("code_id, email and time query params are required"))
	}
	found, err := h.port.Unschedule(r.Context(), codeID, email, localTime)
	if err != nil {
		return httpkit.Error(err)
	}
	return httpkit.OK(map[string]any{
		"deleted":  found,
		"alarm_id": domain.AlarmID(codeID, email, localTime),
	})
}

// Reload handles POST /reload
func (h *Handlers) Reload(r *http.Request) httpkit.Response {
	loaded, err := h.port.Reload(r.Context())
	if err != nil {
		return httpkit.Error(err)
	}
	return httpkit.OK(map[string]int{"loaded": loaded})
}

// Jobs handles GET /jobs/
func (h *Handlers) Jobs(r *http.Request) httpkit.Response {
	jobs := h.port.Jobs()
	if jobs == nil {
		jobs = []domain.Alarm{}
	}
	return httpkit.OK(map[string]any{
		"jobs":  jobs,
		"count": len(jobs),
		"stats": h.port.Stats(),
	})
}

// ClearJobs handles DELETE /jobs/clear; memory only, the store is untouched
func (h *Handlers) ClearJobs(*http.Request) httpkit.Response {
	h.port.Clear()
	return httpkit.OK(map[string]string{"status": "cleared"})
}

// descriptionRequest is the upsert payload for a code description
type descriptionRequest struct {
	CodeID      string `json:"code_id" validate:"required"`
	Description string `json:"description" validate:"required"`
}

// SetDescription handles PUT /descriptions/
func (h *Handlers) SetDescription(r *http.Request) httpkit.Response {
	req, err := bind.ParseJSON[descriptionRequest](r)
	if err != nil {
		return httpkit.Error(err)
	}
	if err := h.port.SetDescription(r.Context(), req.CodeID, req.Description); err != nil {
		return httpkit.Error(err)
	}
	return httpkit.OK(map[string]string{"code_id": req.CodeID, "status": "stored"})
}

// ListDescriptions handles GET /descriptions/
func (h *Handlers) ListDescriptions(r *http.Request) httpkit.Response {
	all, err := h.port.Descriptions(r.Context())
	if err != nil {
		return httpkit.Error(err)
	}
	if all == nil {
		all = map[string]string{}
	}
	return httpkit.OK(map[string]any{"descriptions": all, "count": len(all)})
}

// SchedulerStats handles GET /debug/scheduler-stats
func (h *Handlers) SchedulerStats(*http.Request) httpkit.Response {
	return httpkit.OK(h.port.Stats())
}

// Health handles GET /health, probing store and bus with a short deadline
func (h *Handlers) Health(r *http.Request) httpkit.Response {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	body := map[string]any{
		"status":    "ok",
		"scheduler": h.port.State().String(),
		"alarms":    h.port.Count(),
		"store":     probeStatus(ctx, h.storePing),
		"bus":       probeStatus(ctx, h.busPing),
	}
	if body["store"] != "ok" && body["store"] != "disabled" {
		body["status"] = "degraded"
	}
	if body["bus"] != "ok" && body["bus"] != "disabled" {
		body["status"] = "degraded"
	}
	return httpkit.OK(body)
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

func queryInt(r *http.Request, key string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
