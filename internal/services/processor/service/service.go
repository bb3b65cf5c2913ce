// Package service implements the alarm event processor: it consumes trigger
// events, resolves the human description for the code, and emits email requests
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"chime/internal/platform/bus"
	perr "chime/internal/platform/errors"
	"chime/internal/platform/logger"
	"chime/internal/services/alarms/domain"
	"chime/internal/services/alarms/repo"
)

// Config for the processor
type Config struct {
	// DescriptionTimeout bounds the store lookup per event, default 5s
	DescriptionTimeout time.Duration
}

func (c *Config) defaults() {
	if c.DescriptionTimeout <= 0 {
		c.DescriptionTimeout = 5 * time.Second
	}
}

// Stats is the processor counter snapshot
type Stats struct {
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

// Processor consumes alarm_events and publishes email_requests.
// Handling is idempotent so replayed events are safe
type Processor struct {
	cfg   Config
	log   logger.Logger
	store repo.Storage
	bus   bus.Bus

	processed atomic.Int64
	failed    atomic.Int64
}

// New constructs a processor
func New(store repo.Storage, b bus.Bus, log logger.Logger, cfg Config) *Processor {
	cfg.defaults()
	return &Processor{cfg: cfg, log: log, store: store, bus: b}
}

// Run consumes the alarm_events topic until ctx is cancelled
func (p *Processor) Run(ctx context.Context) error {
	return p.bus.Subscribe(ctx, bus.TopicAlarmEvents, p.Handle)
}

// Handle processes a single alarm event payload
func (p *Processor) Handle(ctx context.Context, payload []byte) {
	var ev domain.AlarmEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		p.failed.Add(1)
		p.log.Error().Err(err).Msg("bad alarm event payload")
		return
	}

	req := domain.EmailRequest{
		ToEmail:     ev.Email,
		CodeID:      ev.CodeID,
		Description: p.description(ctx, ev.CodeID),
		AlarmTime:   ev.LocalTime,
		Timezone:    ev.Timezone,
	}
	out, err := json.Marshal(req)
	if err != nil {
		p.failed.Add(1)
		p.log.Error().Err(err).Str("event_id", ev.EventID).Msg("email request marshal failed")
		return
	}
	if err := p.bus.Publish(ctx, bus.TopicEmailRequests, out); err != nil {
		p.failed.Add(1)
		p.log.Error().Err(err).Str("event_id", ev.EventID).Msg("email request publish failed")
		return
	}

	// one-shots are retired from the durable mirror after their single fire;
	// a missing row means another replica got there first
	if !ev.IsRecurring {
		if _, err := p.store.Delete(ctx, ev.CodeID, ev.Email, ev.LocalTime); err != nil {
			p.log.Warn().Err(err).Str("alarm_id", ev.AlarmID).Msg("one-shot retire failed")
		}
	}

	p.processed.Add(1)
	p.log.Info().
		Str("event_id", ev.EventID).
		Str("alarm_id", ev.AlarmID).
		Str("to", ev.Email).
		Msg("alarm event processed")
}

// description resolves the code description with a bounded lookup, falling
// back to a generic line when the code is unknown or the store is slow
func (p *Processor) description(ctx context.Context, codeID string) string {
	dctx, cancel := context.WithTimeout(ctx, p.cfg.DescriptionTimeout)
	defer cancel()

	desc, err := p.store.GetDescription(dctx, codeID)
	if err != nil {
		if !perr.IsCode(err, perr.ErrorCodeNotFound) {
			p.log.Warn().Err(err).Str("code_id", codeID).Msg("description lookup failed")
		}
		return fmt.Sprintf("Alarm code %s has been triggered", codeID)
	}
	return desc
}

// Stats returns the current counters
func (p *Processor) Stats() Stats {
	return Stats{Processed: p.processed.Load(), Failed: p.failed.Load()}
}

// Reset zeroes the counters
func (p *Processor) Reset() {
	p.processed.Store(0)
	p.failed.Store(0)
}
