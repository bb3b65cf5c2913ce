package bus

import (
	"context"
	"time"

	"chime/internal/platform/logger"

	"github.com/redis/go-redis/v9"
)

// Redis implements Bus over redis pub/sub
type Redis struct {
	rdb *redis.Client
	log logger.Logger
}

// OpenRedis connects to redis and verifies the connection with retry/backoff,
// mirroring the postgres opener guardrails
func OpenRedis(ctx context.Context, cfg Config, log logger.Logger) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	const (
		maxAttempts    = 20
		pingTimeout    = 3 * time.Second
		backoffStart   = 150 * time.Millisecond
		backoffCeiling = 2 * time.Second
	)

	var lastErr error
	backoff := backoffStart
	for i := 0; i < maxAttempts; i++ {
		toCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		lastErr = rdb.Ping(toCtx).Err()
		cancel()

		if lastErr == nil {
			return &Redis{rdb: rdb, log: log}, nil
		}
		if ctx.Err() != nil {
			_ = rdb.Close()
			return nil, ctx.Err()
		}
		time.Sleep(backoff)
		if backoff < backoffCeiling {
			backoff *= 2
			if backoff > backoffCeiling {
				backoff = backoffCeiling
			}
		}
	}

	_ = rdb.Close()
	return nil, lastErr
}

// Client exposes the underlying redis client for callers that need raw access
func (r *Redis) Client() *redis.Client { return r.rdb }

// Publish sends payload on topic. Delivery is fire-and-forget: redis pub/sub
// drops messages with no subscriber
func (r *Redis) Publish(ctx context.Context, topic string, payload []byte) error {
	return r.rdb.Publish(ctx, topic, payload).Err()
}

// Subscribe consumes topic until ctx is cancelled
func (r *Redis) Subscribe(ctx context.Context, topic string, h Handler) error {
	sub := r.rdb.Subscribe(ctx, topic)
	defer func() { _ = sub.Close() }()

	// Force the subscription to be established before we report ready
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	ch := sub.Channel()
	r.log.Info().Str("topic", topic).Msg("subscribed")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return ctx.Err()
			}
			h(ctx, []byte(msg.Payload))
		}
	}
}

// Ping reports redis readiness
func (r *Redis) Ping(ctx context.Context) error { return r.rdb.Ping(ctx).Err() }

// Close closes the underlying client
func (r *Redis) Close() error { return r.rdb.Close() }
