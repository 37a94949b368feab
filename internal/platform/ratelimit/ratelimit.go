// Package ratelimit provides per-caller request limiting for the API
// surface. The limiter fails open: an errored store never blocks traffic.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"eligibility/internal/platform/redis"
	"eligibility/pkg/requestcontext"
)

// Result reports one limiting decision.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Store answers whether a keyed request fits inside the window.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

// MemoryStore is a sliding-window store for single-process deployments and
// tests.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string][]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string][]time.Time)}
}

func (s *MemoryStore) Allow(_ context.Context, key string, limit int, window time.Duration) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	kept := s.buckets[key][:0]
	for _, ts := range s.buckets[key] {
		if now.Sub(ts) < window {
			kept = append(kept, ts)
		}
	}

	res := &Result{Limit: limit, ResetAt: now.Add(window)}
	if len(kept) >= limit {
		s.buckets[key] = kept
		res.ResetAt = kept[0].Add(window)
		return res, nil
	}

	s.buckets[key] = append(kept, now)
	res.Allowed = true
	res.Remaining = limit - len(s.buckets[key])
	if len(kept) > 0 {
		res.ResetAt = kept[0].Add(window)
	}
	return res, nil
}

// RedisStore counts requests in fixed windows so limits hold across
// replicas.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	bucket := fmt.Sprintf("ratelimit:%s:%d", key, time.Now().UnixNano()/int64(window))

	count, err := s.client.Incr(ctx, bucket).Result()
	if err != nil {
		return nil, fmt.Errorf("increment rate limit bucket: %w", err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, bucket, window).Err(); err != nil {
			return nil, fmt.Errorf("expire rate limit bucket: %w", err)
		}
	}

	res := &Result{
		Allowed: count <= int64(limit),
		Limit:   limit,
		ResetAt: time.Now().Truncate(window).Add(window),
	}
	if res.Allowed {
		res.Remaining = limit - int(count)
	}
	return res, nil
}

// Middleware applies a per-caller limit to every wrapped route. Callers are
// keyed by authenticated user id, falling back to remote address.
type Middleware struct {
	store    Store
	limit    int
	window   time.Duration
	logger   *slog.Logger
	disabled bool
}

type Option func(*Middleware)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Middleware) { m.logger = logger }
}

// WithDisabled turns limiting off entirely, for local development.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) { m.disabled = disabled }
}

func New(store Store, limit int, window time.Duration, opts ...Option) *Middleware {
	m := &Middleware{
		store:  store,
		limit:  limit,
		window: window,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.disabled {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		key := strconv.FormatInt(requestcontext.UserID(ctx), 10)
		if key == "0" {
			key = r.RemoteAddr
		}

		res, err := m.store.Allow(ctx, key, m.limit, m.window)
		if err != nil {
			m.logger.ErrorContext(ctx, "rate limit check failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			retryAfter := max(int(time.Until(res.ResetAt).Seconds()), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limited","error_description":"too many requests"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}
