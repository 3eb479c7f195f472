package ratelim

import (
	"net/http"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"jimgabang/apperr"
	"jimgabang/utils"
)

const idleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	now      func() time.Time
	log      *zap.Logger
}

// NewRateLimiter allows perMinute requests per IP with bursts of up to burst.
func NewRateLimiter(perMinute, burst int, log *zap.Logger) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    burst,
		now:      time.Now,
		log:      log,
	}
}

// Get or create a rate limiter for an IP, dropping idle visitors.
func (rl *RateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for k, v := range rl.visitors {
		if now.Sub(v.lastSeen) > idleTTL {
			delete(rl.visitors, k)
		}
	}

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

// Allow consumes one token for ip.
func (rl *RateLimiter) Allow(ip string) bool {
	return rl.getLimiter(ip).AllowN(rl.now(), 1)
}

// Limit rejects requests over the per-IP budget with 429.
func (rl *RateLimiter) Limit(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ip := utils.ClientIP(r)
		if !rl.Allow(ip) {
			rl.log.Warn("rate limited", zap.String("ip", ip), zap.String("path", r.URL.Path))
			w.Header().Set("Retry-After", "60")
			apperr.Write(w, apperr.New(apperr.TooManyRequests, "too many requests, try again later"))
			return
		}
		next(w, r, ps)
	}
}
