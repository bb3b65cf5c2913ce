package bus

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryPublishReachesSubscriber(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 1)
	ready := make(chan struct{})
	go func() {
		close(ready)
		_ = m.Subscribe(ctx, TopicAlarmEvents, func(_ context.Context, p []byte) {
			got <- string(p)
		})
	}()
	<-ready
	// Allow the subscriber goroutine to register
	waitForSubscriber(t, m, TopicAlarmEvents)

	if err := m.Publish(ctx, TopicAlarmEvents, []byte(`{"alarm_id":"a1"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case p := <-got:
		if p != `{"alarm_id":"a1"}` {
			t.Fatalf("payload = %q", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("subscriber did not receive message")
	}
}

func TestMemoryTopicsAreIsolated(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var alarmMsgs, emailMsgs int

	go func() {
		_ = m.Subscribe(ctx, TopicAlarmEvents, func(context.Context, []byte) {
			mu.Lock()
			alarmMsgs++
			mu.Unlock()
		})
	}()
	go func() {
		_ = m.Subscribe(ctx, TopicEmailRequests, func(context.Context, []byte) {
			mu.Lock()
			emailMsgs++
			mu.Unlock()
		})
	}()
	waitForSubscriber(t, m, TopicAlarmEvents)
	waitForSubscriber(t, m, TopicEmailRequests)

	_ = m.Publish(ctx, TopicAlarmEvents, []byte("x"))
	_ = m.Publish(ctx, TopicAlarmEvents, []byte("y"))
	_ = m.Publish(ctx, TopicEmailRequests, []byte("z"))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		a, e := alarmMsgs, emailMsgs
		mu.Unlock()
		if a == 2 && e == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	t.Fatalf("fan-out wrong: alarm=%d email=%d, want 2/1", alarmMsgs, emailMsgs)
}

func TestMemoryPublishWithoutSubscriberDrops(t *testing.T) {
	m := NewMemory()
	// No subscriber registered: publish succeeds, message is dropped
	if err := m.Publish(context.Background(), TopicAlarmEvents, []byte("gone")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func TestMemoryClosedBus(t *testing.T) {
	m := NewMemory()
	_ = m.Close()
	if err := m.Publish(context.Background(), TopicAlarmEvents, []byte("x")); err != ErrClosed {
		t.Fatalf("Publish on closed bus = %v, want ErrClosed", err)
	}
	if err := m.Ping(context.Background()); err != ErrClosed {
		t.Fatalf("Ping on closed bus = %v, want ErrClosed", err)
	}
}

func TestMemorySubscribeStopsOnCancel(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- m.Subscribe(ctx, TopicAlarmEvents, func(context.Context, []byte) {})
	}()
	waitForSubscriber(t, m, TopicAlarmEvents)

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Subscribe returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Subscribe did not return after cancel")
	}
}

// waitForSubscriber polls until the topic has at least one registered channel
func waitForSubscriber(t *testing.T, m *Memory, topic string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		m.mu.Lock()
		n := len(m.subs[topic])
		m.mu.Unlock()
		if n > 0 {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("subscriber never registered on %s", topic)
}
