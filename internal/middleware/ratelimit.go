package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/nikhil/teamhub/internal/auth"
	"github.com/nikhil/teamhub/internal/logger"
	"github.com/nikhil/teamhub/internal/metrics"
)

// idleTTL is the minimum time a caller's bucket survives without requests.
const idleTTL = 10 * time.Minute

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per caller. Authenticated callers are
// keyed by user id, anonymous ones by remote address. Idle buckets are
// dropped once they would have refilled anyway.
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastPrune time.Time
	now       func() time.Time
	log       *logger.Logger
}

// NewRateLimiter allows perSecond requests per caller with the given burst.
// A non-positive rate disables limiting.
func NewRateLimiter(perSecond float64, burst int, log *logger.Logger) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	idle := idleTTL
	if perSecond > 0 {
		if refill := time.Duration(float64(burst) / perSecond * float64(time.Second)); refill > idle {
			idle = refill
		}
	}
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idle:    idle,
		now:     time.Now,
		log:     log,
	}
}

func (l *RateLimiter) allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	if now.Sub(l.lastPrune) >= l.idle {
		l.prune(now)
	}
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()
	return b.limiter.AllowN(now, 1)
}

// prune drops buckets idle for longer than l.idle. l.mu must be held.
func (l *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.idle)
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
	l.lastPrune = now
}

// Middleware rejects callers over their budget with 429.
func (l *RateLimiter) Middleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			key := r.RemoteAddr
			if identity, ok := auth.FromContext(r.Context()); ok {
				key = "user:" + strconv.FormatInt(identity.UserID, 10)
			}
			if !l.allow(key) {
				route := r.URL.Path
				if current := mux.CurrentRoute(r); current != nil {
					if tmpl, err := current.GetPathTemplate(); err == nil {
						route = tmpl
					}
				}
				metrics.RateLimited.WithLabelValues(route).Inc()
				l.log.WithContext(r.Context()).Warn("Rate limit exceeded", "key", key, "path", r.URL.Path)
				writeError(w, http.StatusTooManyRequests, "Too many requests, please try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
