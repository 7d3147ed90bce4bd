package api

import (
	"sync"

	"rentals/internal/config"

	"golang.org/x/time/rate"
)

// clientLimiters hands out one token bucket per client key.
type clientLimiters struct {
	limiters sync.Map // map[string]*rate.Limiter
	cfg      config.APIRateLimitConfig
}

func newClientLimiters(cfg config.APIRateLimitConfig) *clientLimiters {
	return &clientLimiters{cfg: cfg}
}

// allow reports whether key may make another request now. A zero RPS disables limiting.
func (l *clientLimiters) allow(key string) bool {
	if l == nil || l.cfg.RPS <= 0 {
		return true
	}
	return l.get(key).Allow()
}

func (l *clientLimiters) get(key string) *rate.Limiter {
	if v, ok := l.limiters.Load(key); ok {
		if lim, ok := v.(*rate.Limiter); ok {
			return lim
		}
	}

	burst := l.cfg.Burst
	if burst <= 0 {
		burst = 5
	}

	lim := rate.NewLimiter(rate.Limit(l.cfg.RPS), burst)
	actual, loaded := l.limiters.LoadOrStore(key, lim)
	if loaded {
		if actualLim, ok := actual.(*rate.Limiter); ok {
			return actualLim
		}
	}
	return lim
}
