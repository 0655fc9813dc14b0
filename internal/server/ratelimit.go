package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/perfect-api/apiserver/config"
	"github.com/perfect-api/apiserver/internal/apperr"
	"github.com/perfect-api/apiserver/internal/handlers"
	"golang.org/x/time/rate"
)

const (
	bucketTTL     = 5 * time.Minute
	sweepInterval = time.Minute
)

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter is a token bucket per client IP. A non-positive rate disables it.
type RateLimiter struct {
	perSecond  rate.Limit
	burst      int
	trustProxy bool
	now        func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		perSecond:  rate.Limit(cfg.PerSecond),
		burst:      burst,
		trustProxy: cfg.TrustProxy,
		now:        time.Now,
		buckets:    make(map[string]*bucket),
	}
}

// Allow reports whether the client may make another request now.
func (l *RateLimiter) Allow(client string) bool {
	if l.perSecond <= 0 {
		return true
	}
	now := l.now()

	l.mu.Lock()
	b, ok := l.buckets[client]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.perSecond, l.burst)}
		l.buckets[client] = b
	}
	b.seen = now
	l.mu.Unlock()

	return b.lim.AllowN(now, 1)
}

type peerAddrKey struct{}

// CapturePeer records the connection's peer address before
// middleware.RealIP rewrites RemoteAddr from request headers.
func (l *RateLimiter) CapturePeer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), peerAddrKey{}, r.RemoteAddr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Middleware rejects requests over the limit with 429.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(l.clientKey(r)) {
			w.Header().Set("Retry-After", "1")
			handlers.WriteError(w, apperr.ErrTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey is the peer IP, or the forwarded client IP when the proxy in
// front is trusted.
func (l *RateLimiter) clientKey(r *http.Request) string {
	if !l.trustProxy {
		if peer, ok := r.Context().Value(peerAddrKey{}).(string); ok {
			return clientIP(peer)
		}
	}
	return clientIP(r.RemoteAddr)
}

// Sweep drops idle buckets until ctx is done.
func (l *RateLimiter) Sweep(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.evictIdle()
		}
	}
}

func (l *RateLimiter) evictIdle() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if now.Sub(b.seen) > bucketTTL {
			delete(l.buckets, key)
		}
	}
}

func clientIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		if addr == "" {
			return "unknown"
		}
		return addr
	}
	return host
}
