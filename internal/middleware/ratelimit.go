package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/zhouzirui/car-advisor/backend/internal/service/session"
	"github.com/zhouzirui/car-advisor/backend/pkg/utils"
)

// Limiter holds one token bucket per caller. It is shared by the HTTP pass
// routes and the live socket so both draw from the same budget.
type Limiter struct {
	set   *limiterSet
	store *session.Store
}

// NewLimiter builds a limiter allowing rps passes per second with the given
// burst. rps <= 0 disables limiting. When store is set, sessions minted by a
// rejected request are dropped again.
func NewLimiter(rps float64, burst int, store *session.Store) *Limiter {
	l := &Limiter{store: store}
	if rps > 0 {
		l.set = newLimiterSet(rate.Limit(rps), burst)
	}
	return l
}

// Allow takes one token from key's bucket.
func (l *Limiter) Allow(key string) bool {
	if l == nil || l.set == nil {
		return true
	}
	return l.set.get(key).Allow()
}

// Middleware throttles requests. It must run after Identity.
// Rejected requests never reach a pass, so no user turn is half recorded.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	if l == nil || l.set == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(RateKey(r)) {
			if sid := SessionIDFromContext(r.Context()); sid != "" && SessionCreatedFromContext(r.Context()) && l.store != nil {
				l.store.Delete(sid)
			}
			w.Header().Set("Retry-After", "1")
			utils.RespondError(w, http.StatusTooManyRequests, "too many requests, slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimit throttles requests per session id without a shared Limiter.
func RateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	return NewLimiter(rps, burst, nil).Middleware
}

// RateKey is the bucket a request draws from. Established sessions have their
// own bucket; requests that arrive without a usable session share the bucket
// of their client address, so dropping the cookie does not buy a fresh burst.
func RateKey(r *http.Request) string {
	sid := SessionIDFromContext(r.Context())
	if sid == "" || SessionCreatedFromContext(r.Context()) {
		return "addr:" + clientHost(r.RemoteAddr)
	}
	return "session:" + sid
}

// clientHost strips the port. RemoteAddr is already the forwarded address when
// chi's RealIP runs first.
func clientHost(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

type limiterSet struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*limiterEntry
	lastGC   time.Time
}

type limiterEntry struct {
	limiter *rate.Limiter
	seen    time.Time
}

// idle limiters are dropped after this long
const limiterIdle = 10 * time.Minute

func newLimiterSet(limit rate.Limit, burst int) *limiterSet {
	if burst < 1 {
		burst = 1
	}
	return &limiterSet{
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*limiterEntry),
		lastGC:   time.Now(),
	}
}

func (s *limiterSet) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if now.Sub(s.lastGC) > limiterIdle {
		for k, e := range s.limiters {
			if now.Sub(e.seen) > limiterIdle {
				delete(s.limiters, k)
			}
		}
		s.lastGC = now
	}

	e, ok := s.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[key] = e
	}
	e.seen = now
	return e.limiter
}
