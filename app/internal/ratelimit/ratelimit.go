// Package ratelimit provides per-client token buckets for the public API.
package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// Limiter implements a token bucket rate limiter keyed by client
type Limiter struct {
	mu           sync.Mutex
	buckets      map[string]*bucket
	tokensPerMin int
	maxTokens    int
	errorMessage string
	stopOnce     sync.Once
	stopCleanup  chan struct{}
	now          func() time.Time
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// Config for creating a new rate limiter
type Config struct {
	TokensPerMinute int    // Number of tokens added per minute
	MaxTokens       int    // Burst size; defaults to TokensPerMinute
	ErrorMessage    string // Message returned with 429
}

// New creates a limiter and starts its stale-bucket sweeper
func New(cfg Config) *Limiter {
	if cfg.TokensPerMinute <= 0 {
		cfg.TokensPerMinute = 60
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = cfg.TokensPerMinute
	}
	if cfg.ErrorMessage == "" {
		cfg.ErrorMessage = "Too many requests. Please slow down."
	}

	l := &Limiter{
		buckets:      make(map[string]*bucket),
		tokensPerMin: cfg.TokensPerMinute,
		maxTokens:    cfg.MaxTokens,
		errorMessage: cfg.ErrorMessage,
		stopCleanup:  make(chan struct{}),
		now:          time.Now,
	}
	go l.cleanup(time.NewTicker(5 * time.Minute))
	return l
}

// cleanup drops buckets idle for more than 10 minutes
func (l *Limiter) cleanup(t *time.Ticker) {
	defer t.Stop()
	for {
		select {
		case <-t.C:
			l.sweep(10 * time.Minute)
		case <-l.stopCleanup:
			return
		}
	}
}

func (l *Limiter) sweep(idle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, b := range l.buckets {
		if now.Sub(b.lastCheck) > idle {
			delete(l.buckets, key)
		}
	}
}

// Stop ends the sweeper. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCleanup) })
}

// refill must be called with mu held
func (l *Limiter) refill(key string) *bucket {
	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.maxTokens), lastCheck: now}
		l.buckets[key] = b
		return b
	}
	elapsed := now.Sub(b.lastCheck).Minutes()
	b.tokens = math.Min(b.tokens+elapsed*float64(l.tokensPerMin), float64(l.maxTokens))
	b.lastCheck = now
	return b
}

// Allow takes one token for key
func (l *Limiter) Allow(key string) bool {
	return l.AllowN(key, 1)
}

// AllowN takes n tokens for key if they are all available
func (l *Limiter) AllowN(key string, n int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.refill(key)
	if b.tokens >= float64(n) {
		b.tokens -= float64(n)
		return true
	}
	return false
}

// Remaining returns whole tokens left for key
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.buckets[key]; !ok {
		return l.maxTokens
	}
	return int(l.refill(key).tokens)
}

// RetryAfter is how long until key has one token again
func (l *Limiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		return 0
	}
	missing := 1 - b.tokens
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing * float64(time.Minute) / float64(l.tokensPerMin))
}

// Reset forgets key
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// ErrorMessage returns the message sent with 429 responses
func (l *Limiter) ErrorMessage() string {
	return l.errorMessage
}

// Middleware rejects requests over the limit with 429 and a JSON body
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)
		if !l.Allow(ip) {
			secs := int(math.Ceil(l.RetryAfter(ip).Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": l.errorMessage})
			return
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(l.Remaining(ip)))
		next.ServeHTTP(w, r)
	})
}

// ClientIP extracts the client IP, preferring the first X-Forwarded-For hop
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
