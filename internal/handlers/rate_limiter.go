package handlers

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	rateLimiterClients = 4096
	rateLimiterIdleTTL = 10 * time.Minute
)

type rateLimiter interface {
	// Allow consumes one token for key. When the request is rejected the
	// second value is how long the caller should wait.
	Allow(key string) (bool, time.Duration)
}

// clientRateLimiter keeps a token bucket per client. Idle buckets are evicted.
type clientRateLimiter struct {
	limit   rate.Limit
	burst   int
	clock   func() time.Time
	mu      sync.Mutex
	clients *expirable.LRU[string, *rate.Limiter]
}

func newClientRateLimiter(perMinute, burst int, clock func() time.Time) rateLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	if clock == nil {
		clock = time.Now
	}
	return &clientRateLimiter{
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   burst,
		clock:   clock,
		clients: expirable.NewLRU[string, *rate.Limiter](rateLimiterClients, nil, rateLimiterIdleTTL),
	}
}

func (l *clientRateLimiter) Allow(key string) (bool, time.Duration) {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()

	l.mu.Lock()
	limiter, ok := l.clients.Get(key)
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
	}
	// Re-adding refreshes the idle expiry.
	l.clients.Add(key, limiter)
	l.mu.Unlock()

	reservation := limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, time.Minute
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// clientKey identifies the caller. RealIP middleware has already rewritten RemoteAddr.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
