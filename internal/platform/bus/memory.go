package bus

import (
	"context"
	"sync"
)

// Memory is an in-process Bus used by tests and single-binary deployments.
// Fan-out matches redis pub/sub semantics: no subscriber, no delivery
type Memory struct {
	mu     sync.Mutex
	subs   map[string][]chan []byte
	closed bool
}

// NewMemory returns an empty in-process bus
func NewMemory() *Memory {
	return &Memory{subs: make(map[string][]chan []byte)}
}

// Publish copies payload to every current subscriber of topic.
// A subscriber with a full buffer drops the message rather than blocking the publisher
func (m *Memory) Publish(_ context.Context, topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for _, ch := range m.subs[topic] {
		cp := make([]byte, len(payload))
		copy(cp, payload)
		select {
		case ch <- cp:
		default:
		}
	}
	return nil
}

// Subscribe consumes topic until ctx is cancelled
func (m *Memory) Subscribe(ctx context.Context, topic string, h Handler) error {
	ch := make(chan []byte, 256)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.subs[topic] = append(m.subs[topic], ch)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		list := m.subs[topic]
		for i := range list {
			if list[i] == ch {
				m.subs[topic] = append(list[:i], list[i+1:]...)
				break
			}
		}
		m.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload := <-ch:
			h(ctx, payload)
		}
	}
}

// Ping always succeeds while the bus is open
func (m *Memory) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// Close marks the bus closed; subsequent publishes fail
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
