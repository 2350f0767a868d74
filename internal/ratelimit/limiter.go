package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/Dipuraj1New/careerireland-portals/internal/config"
	"github.com/Dipuraj1New/careerireland-portals/internal/domain"
)

// PortalLimiter throttles automation attempts per portal so a burst of
// retries cannot hammer a government site.
type PortalLimiter struct {
	mu       sync.Mutex
	limiters map[domain.PortalType]*rate.Limiter
	portals  config.PortalsConfig
}

func NewPortalLimiter(portals config.PortalsConfig) *PortalLimiter {
	return &PortalLimiter{
		limiters: make(map[domain.PortalType]*rate.Limiter),
		portals:  portals,
	}
}

func (p *PortalLimiter) limiter(t domain.PortalType) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if l, ok := p.limiters[t]; ok {
		return l
	}
	perMinute := 6
	if pc, err := p.portals.ByType(t); err == nil && pc.RatePerMinute > 0 {
		perMinute = pc.RatePerMinute
	}
	l := rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1)
	p.limiters[t] = l
	return l
}

// Wait blocks until an attempt against the portal may proceed, or the
// context is cancelled.
func (p *PortalLimiter) Wait(ctx context.Context, t domain.PortalType) error {
	return p.limiter(t).Wait(ctx)
}
