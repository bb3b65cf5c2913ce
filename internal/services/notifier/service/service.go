// Package service implements the email notifier consuming email_requests
package service

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"chime/internal/platform/bus"
	"chime/internal/platform/logger"
	"chime/internal/services/alarms/domain"
)

// Stats is the notifier counter snapshot
type Stats struct {
	Sent   int64 `json:"sent"`
	Failed int64 `json:"failed"`
}

// Notifier consumes email_requests and hands each to its Sender
type Notifier struct {
	log    logger.Logger
	bus    bus.Bus
	sender Sender

	sent   atomic.Int64
	failed atomic.Int64
}

// New constructs a notifier over the given sender
func New(sender Sender, b bus.Bus, log logger.Logger) *Notifier {
	return &Notifier{log: log, bus: b, sender: sender}
}

// Run consumes the email_requests topic until ctx is cancelled
func (n *Notifier) Run(ctx context.Context) error {
	return n.bus.Subscribe(ctx, bus.TopicEmailRequests, n.Handle)
}

// Handle delivers a single email request payload
func (n *Notifier) Handle(ctx context.Context, payload []byte) {
	var req domain.EmailRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		n.failed.Add(1)
		n.log.Error().Err(err).Msg("bad email request payload")
		return
	}
	if err := n.sender.Send(ctx, req); err != nil {
		n.failed.Add(1)
		n.log.Error().Err(err).Str("to", req.ToEmail).Str("code_id", req.CodeID).Msg("email delivery failed")
		return
	}
	n.sent.Add(1)
	n.log.Info().Str("to", req.ToEmail).Str("code_id", req.CodeID).Msg("email sent")
}

// Stats returns the current counters
func (n *Notifier) Stats() Stats {
	return Stats{Sent: n.sent.Load(), Failed: n.failed.Load()}
}

// Reset zeroes the counters
func (n *Notifier) Reset() {
	n.sent.Store(0)
	n.failed.Store(0)
}
