package httpmiddleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// counter approximates a sliding window from two fixed windows: the
// previous window's count is weighted by how much of it still overlaps.
type counter struct {
	start time.Time
	curr  int
	prev  int
}

// Limiter is a sliding-window rate limiter keyed by client.
type Limiter struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	counters map[string]*counter
}

// NewLimiter creates a Limiter allowing max events per window. A max of
// zero or less disables limiting.
func NewLimiter(max int, window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		max:      max,
		window:   window,
		now:      time.Now,
		counters: make(map[string]*counter),
	}
}

// Allow records an event for key and reports whether it is within the
// limit, along with the remaining budget and the current window end.
func (l *Limiter) Allow(key string) (ok bool, remaining int, reset time.Time) {
	now := l.now()
	start := now.Truncate(l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	c := l.counters[key]
	switch {
	case c == nil:
		c = &counter{start: start}
		l.counters[key] = c
	case start.Sub(c.start) == l.window:
		c.prev, c.curr, c.start = c.curr, 0, start
	case start.Sub(c.start) > l.window:
		c.prev, c.curr, c.start = 0, 0, start
	}

	overlap := 1 - float64(now.Sub(c.start))/float64(l.window)
	used := int(float64(c.prev)*overlap) + c.curr
	reset = c.start.Add(l.window)
	if used >= l.max {
		return false, 0, reset
	}
	c.curr++
	return true, l.max - used - 1, reset
}

// Run evicts idle clients every other window until ctx is done.
func (l *Limiter) Run(ctx context.Context) {
	t := time.NewTicker(2 * l.window)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			cutoff := l.now().Add(-2 * l.window)
			l.mu.Lock()
			for k, c := range l.counters {
				if c.start.Before(cutoff) {
					delete(l.counters, k)
				}
			}
			l.mu.Unlock()
		}
	}
}

// RateLimit rejects clients above the limit with 429 and reports the budget
// in X-RateLimit-* headers. key defaults to ClientIP.
func RateLimit(l *Limiter, key func(*http.Request) string) Middleware {
	if key == nil {
		key = ClientIP
	}
	limit := strconv.Itoa(l.max)
	return func(next http.Handler) http.Handler {
		if l.max <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, remaining, reset := l.Allow(key(r))

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

			if !ok {
				wait := reset.Sub(l.now())
				h.Set("Retry-After", strconv.Itoa(int((wait+time.Second-1)/time.Second)))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP or the remote
// address host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
