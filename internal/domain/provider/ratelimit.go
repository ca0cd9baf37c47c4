package provider

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter enforces the profile's minimum spacing between outbound calls.
// Buckets are keyed per (vendor, tenant) so two tenants at the same vendor
// are throttled independently while concurrent jobs within one tenant share
// a single ceiling.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{buckets: make(map[string]*rate.Limiter)}
}

func (l *RateLimiter) bucket(p *Profile, tenantID string) *rate.Limiter {
	key := string(p.Vendor) + "/" + tenantID

	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(rate.Every(p.CallDelay), 1)
		l.buckets[key] = b
	}
	return b
}

// Wait blocks until the profile's delay since the previous call under the
// same (vendor, tenant) key has elapsed, or the context is cancelled.
func (l *RateLimiter) Wait(ctx context.Context, p *Profile, tenantID string) error {
	return l.bucket(p, tenantID).Wait(ctx)
}
