package checker

import (
	"context"
	"math"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter spaces out requests to the same host. A nil or zero-rate
// HostLimiter never waits.
type HostLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHostLimiter allows rps requests per second to each host, with a burst of
// the rate rounded up.
func NewHostLimiter(rps float64) *HostLimiter {
	if rps <= 0 {
		return nil
	}
	return &HostLimiter{
		limit:    rate.Limit(rps),
		burst:    int(math.Max(1, math.Ceil(rps))),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until a request to host is allowed.
func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	if h == nil {
		return nil
	}
	return h.limiter(host).Wait(ctx)
}

func (h *HostLimiter) limiter(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.limiters[host]
	if !ok {
		l = rate.NewLimiter(h.limit, h.burst)
		h.limiters[host] = l
	}
	return l
}
