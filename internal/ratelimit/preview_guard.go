package ratelimit

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// PreviewGuard is a coarse-grained, IP-keyed limiter for the
// unauthenticated routing-preview endpoint. Unlike the per-API-key
// Limiter above, this is not part of the gateway's admission contract; it
// only exists to keep an unauthenticated endpoint from being hammered, and
// uses golang.org/x/time/rate rather than a hand-rolled bucket because its
// exact refill arithmetic is not a tested invariant.
type PreviewGuard struct {
	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	lastAccess map[string]time.Time
	r          rate.Limit
	burst      int
}

// NewPreviewGuard creates a guard admitting ratePerSecond requests per
// source IP, bursting up to burst.
func NewPreviewGuard(ratePerSecond float64, burst int) *PreviewGuard {
	return &PreviewGuard{
		limiters:   make(map[string]*rate.Limiter),
		lastAccess: make(map[string]time.Time),
		r:          rate.Limit(ratePerSecond),
		burst:      burst,
	}
}

// Allow reports whether a request from remoteAddr is admitted.
func (g *PreviewGuard) Allow(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}

	g.mu.Lock()
	limiter, ok := g.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(g.r, g.burst)
		g.limiters[host] = limiter
	}
	g.lastAccess[host] = time.Now()
	g.mu.Unlock()

	return limiter.Allow()
}
