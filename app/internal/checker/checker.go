// Package checker asks a game server for its current status.
//
// Two wire variants are supported: the modern Server List Ping and the
// pre-1.7 legacy ping. Chain tries them in order.
package checker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultTimeout bounds a single probe
const DefaultTimeout = 5 * time.Second

// ErrMalformedResponse is returned when the server answers with bytes we cannot parse
var ErrMalformedResponse = errors.New("malformed status response")

// Status is a successful probe reading
type Status struct {
	PlayerCount int
	MaxPlayers  int
	// Latency in milliseconds, nil when the protocol cannot measure it
	Latency *int
	Version string
	Motd    string
}

// Prober queries one server. Any error means the server is treated as offline.
type Prober interface {
	Probe(ctx context.Context, host string, port int) (Status, error)
}

// ProberFunc adapts a function to Prober
type ProberFunc func(ctx context.Context, host string, port int) (Status, error)

func (f ProberFunc) Probe(ctx context.Context, host string, port int) (Status, error) {
	return f(ctx, host, port)
}

// Chain tries each prober in order and returns the first success
type Chain []Prober

func (c Chain) Probe(ctx context.Context, host string, port int) (Status, error) {
	var errs []error
	for _, p := range c {
		st, err := p.Probe(ctx, host, port)
		if err == nil {
			return st, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return Status{}, errors.New("no probers configured")
	}
	return Status{}, &ChainError{Errs: errs}
}

// ChainError collects the failure of every prober in a Chain
type ChainError struct {
	Errs []error
}

func (e *ChainError) Error() string {
	parts := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		parts[i] = err.Error()
	}
	return strings.Join(parts, "; ")
}

func (e *ChainError) Unwrap() []error { return e.Errs }

// WithTimeout gives every call to p its own deadline
func WithTimeout(p Prober, d time.Duration) Prober {
	if d <= 0 {
		d = DefaultTimeout
	}
	return ProberFunc(func(ctx context.Context, host string, port int) (Status, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return p.Probe(ctx, host, port)
	})
}

// WithRateLimit makes every call to p wait for a token from lim. A probe whose
// context ends while waiting fails without touching the network. Wrap the
// result in WithTimeout so the wait is bounded.
func WithRateLimit(p Prober, lim *rate.Limiter) Prober {
	return ProberFunc(func(ctx context.Context, host string, port int) (Status, error) {
		if err := lim.Wait(ctx); err != nil {
			return Status{}, fmt.Errorf("probe rate limit: %w", err)
		}
		return p.Probe(ctx, host, port)
	})
}

// New returns the default modern-then-legacy chain
func New(srv bool) Prober {
	return Chain{
		&ModernProber{SRV: srv},
		&LegacyProber{SRV: srv},
	}
}

// dial connects to host:port, honouring SRV records when asked, and binds
// the connection's lifetime to ctx.
func dial(ctx context.Context, resolver *net.Resolver, srv bool, host string, port int) (net.Conn, func(), error) {
	if srv && net.ParseIP(host) == nil {
		host, port = lookupSRV(ctx, resolver, host, port)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	return conn, func() {
		stop()
		conn.Close()
	}, nil
}

// lookupSRV resolves _minecraft._tcp.<host>; on any failure the original
// address is kept.
func lookupSRV(ctx context.Context, resolver *net.Resolver, host string, port int) (string, int) {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	_, addrs, err := resolver.LookupSRV(ctx, "minecraft", "tcp", host)
	if err != nil || len(addrs) == 0 {
		return host, port
	}
	return strings.TrimSuffix(addrs[0].Target, "."), int(addrs[0].Port)
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...))
}
