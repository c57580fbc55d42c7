package mesh

import (
	"context"
	"time"

	"github.com/agentkernel/core/internal/ratelimit"
)

// ProducerThrottle turns the Warning/Critical backpressure signal of
// spec §4.6 into an actual self-throttle a producer can apply before
// calling Send/Publish again, rather than just observing the signal.
// Normal never throttles; Warning and Critical each draw from their own
// per-key token bucket, so one saturated mailbox does not starve a
// producer sending to an unrelated, healthy one.
type ProducerThrottle struct {
	thresholds BackpressureThresholds
	warning    *ratelimit.Limiter
	critical   *ratelimit.Limiter
}

// NewProducerThrottle builds a throttle keyed by thresholds, rate-limiting
// producers to warningRPS once depth reaches WarningDepth and to the
// stricter criticalRPS once depth reaches CriticalDepth.
func NewProducerThrottle(thresholds BackpressureThresholds, warningRPS, criticalRPS float64) *ProducerThrottle {
	return &ProducerThrottle{
		thresholds: thresholds,
		// BurstSize 1: a backpressure throttle should smooth to the
		// configured rate immediately, not grant a free burst first.
		warning:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerSecond: warningRPS, BurstSize: 1, Enabled: true}),
		critical: ratelimit.NewLimiter(ratelimit.Config{RequestsPerSecond: criticalRPS, BurstSize: 1, Enabled: true}),
	}
}

func (p *ProducerThrottle) limiterFor(level BackpressureLevel) *ratelimit.Limiter {
	switch level {
	case Critical:
		return p.critical
	case Warning:
		return p.warning
	default:
		return nil
	}
}

// Allow reports whether a producer targeting key (an agent mailbox or
// topic name) may send right now, given the current depth observed for
// that key. Normal depth always allows; Warning/Critical consult the
// matching token bucket so a burst beyond the configured rate is denied
// without blocking the caller, who is expected to buffer locally per
// spec §4.6.
func (p *ProducerThrottle) Allow(key string, depth int) bool {
	limiter := p.limiterFor(p.thresholds.Level(depth))
	if limiter == nil {
		return true
	}
	return limiter.Allow(key)
}

// Wait blocks until a send to key would be allowed at depth, or ctx is
// done. Used by producers that would rather pace themselves than buffer
// locally when Allow reports saturation.
func (p *ProducerThrottle) Wait(ctx context.Context, key string, depth int) error {
	limiter := p.limiterFor(p.thresholds.Level(depth))
	if limiter == nil {
		return nil
	}
	for {
		if limiter.Allow(key) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(limiter.WaitTime(key)):
		}
	}
}
