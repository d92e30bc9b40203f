package store

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// HealthPinger is implemented by drivers that expose a direct connectivity
// probe. HealthPing must return nil when the database is reachable.
type HealthPinger interface {
	HealthPing(ctx context.Context) error
}

// HealthChecker monitors store health with periodic probes. The long-running
// service loop uses it to surface a wedged database in the logs instead of
// failing silently on every cycle.
type HealthChecker struct {
	store        Store
	healthy      atomic.Int32
	log          zerolog.Logger
	probeTimeout time.Duration
}

// NewHealthChecker creates a checker. It starts unhealthy until the first
// successful probe.
func NewHealthChecker(store Store, log zerolog.Logger, probeTimeout time.Duration) *HealthChecker {
	hc := &HealthChecker{
		store:        store,
		log:          log,
		probeTimeout: probeTimeout,
	}
	hc.healthy.Store(0)
	return hc
}

// IsHealthy returns the cached health status (non-blocking).
func (hc *HealthChecker) IsHealthy() bool {
	return hc.healthy.Load() == 1
}

// Start begins periodic health checking and blocks until ctx is done.
func (hc *HealthChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	check := func() {
		to := hc.probeTimeout
		if to <= 0 {
			to = 2 * time.Second
		}
		checkCtx, cancel := context.WithTimeout(ctx, to)
		defer cancel()

		was := hc.IsHealthy()
		ok := hc.probe(checkCtx)
		if ok {
			hc.healthy.Store(1)
		} else {
			hc.healthy.Store(0)
		}
		if ok != was {
			hc.log.Info().Bool("healthy", ok).Msg("store health changed")
		}
	}

	check()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

func (hc *HealthChecker) probe(ctx context.Context) bool {
	if p, ok := hc.store.(HealthPinger); ok {
		if err := p.HealthPing(ctx); err != nil {
			hc.log.Error().Stack().Err(err).Msg("store health check failed")
			return false
		}
		return true
	}

	// Fallback: any responsive read means the store is up.
	if _, err := hc.store.MealTypes().List(ctx); err != nil {
		hc.log.Error().Stack().Err(err).Msg("store health check failed")
		return false
	}
	return true
}
