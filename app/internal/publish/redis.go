// Package publish announces finished collection runs on a Redis channel so
// other instances (or dashboards) can refresh without polling.
package publish

import (
	"context"
	"fmt"
	"time"

	"mcnetwork/app/internal/logging"
	"mcnetwork/app/internal/metrics"
	"mcnetwork/app/internal/models"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"
)

// Publisher sends run results to a channel. A Publisher without a client is
// a no-op so callers never need to check configuration.
type Publisher struct {
	client  redis.UniversalClient
	channel string
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker[any]
}

// BreakerConfig tunes the circuit breaker in front of Redis
type BreakerConfig struct {
	FailureThreshold uint32
	Timeout          time.Duration
}

// DefaultBreaker opens after 3 consecutive failures and probes again after 30s
var DefaultBreaker = BreakerConfig{FailureThreshold: 3, Timeout: 30 * time.Second}

// New returns a publisher on channel. client may be nil.
func New(client redis.UniversalClient, channel string, bc BreakerConfig) *Publisher {
	if bc.FailureThreshold == 0 {
		bc = DefaultBreaker
	}
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "redis-publish",
		MaxRequests: 1,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= bc.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})
	return &Publisher{client: client, channel: channel, timeout: 2 * time.Second, cb: cb}
}

// Enabled reports whether a Redis client is configured
func (p *Publisher) Enabled() bool {
	return p != nil && p.client != nil
}

// PublishRun sends res as JSON. While the breaker is open events are dropped.
func (p *Publisher) PublishRun(ctx context.Context, res models.RunResult) error {
	if !p.Enabled() {
		return nil
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode run result: %w", err)
	}

	_, err = p.cb.Execute(func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		return nil, p.client.Publish(ctx, p.channel, payload).Err()
	})
	switch {
	case err == nil:
		metrics.EventsPublished.WithLabelValues("ok").Inc()
	case err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests:
		metrics.EventsPublished.WithLabelValues("dropped").Inc()
		return fmt.Errorf("publish %s: %w", p.channel, err)
	default:
		metrics.EventsPublished.WithLabelValues("failed").Inc()
		return fmt.Errorf("publish %s: %w", p.channel, err)
	}
	return nil
}

// Connect parses a redis:// URL and pings the server
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
