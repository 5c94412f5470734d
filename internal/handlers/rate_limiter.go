package handlers

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/atelierhq/quoting/internal/platform/httpx"
)

type rateLimiter interface {
	Allow(key string) (bool, time.Time)
}

type windowRateLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time
	mu     sync.Mutex
	store  map[string]rateEntry
}

type rateEntry struct {
	count int
	reset time.Time
}

func newWindowRateLimiter(limit int, window time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &windowRateLimiter{
		limit:  limit,
		window: window,
		clock:  clock,
		store:  make(map[string]rateEntry),
	}
}

// Allow counts a request against key and reports whether it fits the current window
// together with the time the window resets.
func (l *windowRateLimiter) Allow(key string) (bool, time.Time) {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.store[key]
	if !ok || now.After(entry.reset) {
		entry = rateEntry{count: 1, reset: now.Add(l.window)}
		l.store[key] = entry
		l.pruneExpiredLocked(now)
		return true, entry.reset
	}

	if entry.count >= l.limit {
		return false, entry.reset
	}
	entry.count++
	l.store[key] = entry
	return true, entry.reset
}

func (l *windowRateLimiter) pruneExpiredLocked(now time.Time) {
	for key, entry := range l.store {
		if now.After(entry.reset) {
			delete(l.store, key)
		}
	}
}

// QuoteRateLimitMiddleware throttles quoting requests per client address. A non-positive
// perMinute returns a pass-through middleware.
func QuoteRateLimitMiddleware(perMinute int, clock func() time.Time) func(http.Handler) http.Handler {
	limiter := newWindowRateLimiter(perMinute, time.Minute, clock)
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, reset := limiter.Allow(clientKey(r))
			if !allowed {
				retry := time.Until(reset)
				if clock != nil {
					retry = reset.Sub(clock())
				}
				seconds := int(retry.Round(time.Second) / time.Second)
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many quote requests", http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
