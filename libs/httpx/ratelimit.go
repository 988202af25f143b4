package httpx

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Decision is the outcome of one rate limiter hit.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter counts hits per key within a window.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// FixedWindow is an in-process fixed-window limiter. Use RedisFixedWindow
// when several replicas must share one budget.
type FixedWindow struct {
	limit    int
	window   time.Duration
	now      func() time.Time
	mu       sync.Mutex
	visitors map[string]*visitor
	sweepAt  time.Time
}

type visitor struct {
	count     int
	resetTime time.Time
}

func NewFixedWindow(limit int, window time.Duration) *FixedWindow {
	if limit <= 0 {
		limit = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	return &FixedWindow{
		limit:    limit,
		window:   window,
		now:      time.Now,
		visitors: map[string]*visitor{},
	}
}

func (rl *FixedWindow) Allow(_ context.Context, key string) (Decision, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	v := rl.visitors[key]
	if v == nil || !now.Before(v.resetTime) {
		v = &visitor{count: 1, resetTime: now.Add(rl.window)}
		rl.visitors[key] = v
		return Decision{Allowed: true, Limit: rl.limit, Remaining: rl.limit - 1, ResetAt: v.resetTime}, nil
	}

	if v.count >= rl.limit {
		return Decision{Allowed: false, Limit: rl.limit, Remaining: 0, ResetAt: v.resetTime}, nil
	}
	v.count++
	return Decision{Allowed: true, Limit: rl.limit, Remaining: rl.limit - v.count, ResetAt: v.resetTime}, nil
}

// sweep drops expired visitors at most once per window.
func (rl *FixedWindow) sweep(now time.Time) {
	if now.Before(rl.sweepAt) {
		return
	}
	for key, v := range rl.visitors {
		if !now.Before(v.resetTime) {
			delete(rl.visitors, key)
		}
	}
	rl.sweepAt = now.Add(rl.window)
}

// RateLimit rejects requests over the limiter budget with 429 and always
// reports the X-RateLimit-* headers. When the limiter itself fails the
// request is let through if failOpen is set, otherwise answered with 503.
func RateLimit(l Limiter, logger *slog.Logger, failOpen bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := l.Allow(r.Context(), ClientKey(r))
			if err != nil {
				if logger != nil {
					logger.Warn("rate limiter error", "err", err)
				}
				if failOpen {
					next.ServeHTTP(w, r)
					return
				}
				WriteError(w, http.StatusServiceUnavailable, "rate_limiter_unavailable", "rate limiter unavailable")
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(max(d.Remaining, 0)))
			h.Set("X-RateLimit-Reset", d.ResetAt.UTC().Format(time.RFC3339))
			if !d.Allowed {
				retry := retryAfterSeconds(d.ResetAt, time.Now())
				h.Set("Retry-After", strconv.Itoa(retry))
				WriteJSON(w, http.StatusTooManyRequests, struct {
					ErrorBody
					RetryAfter int `json:"retryAfter"`
				}{
					ErrorBody:  ErrorBody{Error: "rate_limited", Message: "Rate limit exceeded. Please try again later."},
					RetryAfter: retry,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfterSeconds(resetAt, now time.Time) int {
	secs := int(math.Ceil(resetAt.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// ClientKey identifies the caller, preferring proxy headers over the socket address.
func ClientKey(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		first, _, _ := strings.Cut(ip, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
