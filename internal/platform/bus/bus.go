// Package bus provides a small publish/subscribe seam used to decouple the
// trigger pipeline. Payloads are opaque JSON bytes; topic fan-out is
// at-most-once within a process and best-effort across processes
package bus

import (
	"context"
	"errors"
)

// ErrClosed is returned when publishing on a closed bus
var ErrClosed = errors.New("bus: closed")

// Topic names carried on the bus
const (
	// TopicAlarmEvents carries fired alarm events from the scheduler to processors
	TopicAlarmEvents = "alarm_events"

	// TopicEmailRequests carries formatted notification requests to the notifier
	TopicEmailRequests = "email_requests"
)

// Handler consumes one message payload. Handlers must not retain the slice
type Handler func(ctx context.Context, payload []byte)

// Bus is the transport seam for the trigger pipeline
type Bus interface {
	// Publish sends payload to every current subscriber of topic
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe blocks consuming topic until ctx is cancelled, invoking h
	// for each message. Returns the ctx error on cancellation, or a
	// transport error if the subscription fails
	Subscribe(ctx context.Context, topic string, h Handler) error

	// Ping reports transport readiness
	Ping(ctx context.Context) error

	// Close releases transport resources
	Close() error
}

// Config configures the redis-backed bus
type Config struct {
	Addr     string
	Password string
	DB       int
}
