package api

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"
)

// TenantLimiter throttles voucher scans with one token bucket per tenant,
// so a misbehaving till cannot brute force codes.
type TenantLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewTenantLimiter allows perSecond scans per tenant with the given burst.
func NewTenantLimiter(perSecond float64, burst int) *TenantLimiter {
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &TenantLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *TenantLimiter) limiter(tenantID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[tenantID]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[tenantID] = lim
	}
	return lim
}

// Allow consumes one token from the tenant's bucket.
func (l *TenantLimiter) Allow(tenantID string) bool {
	return l.limiter(tenantID).Allow()
}

// Middleware keys the bucket on the {tenantID} route parameter.
func (l *TenantLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(chi.URLParam(r, "tenantID")) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "Too many scans", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
