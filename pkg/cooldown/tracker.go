package cooldown

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for cooldown tracking.
var (
	fastpurgeCooldownBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fastpurge_cooldown_blocks_total",
		Help: "Total number of Retry-After deadlines recorded",
	})

	fastpurgeCooldownWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fastpurge_cooldown_waits_total",
		Help: "Total number of requests delayed by an active cooldown",
	})

	fastpurgeCooldownSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fastpurge_cooldown_seconds",
		Help:    "Time requests spent waiting for a cooldown to end",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
	})
)

// Tracker gates requests on the deadline held in a Store.
type Tracker struct {
	store  Store
	logger zerolog.Logger
	now    func() time.Time
}

// NewTracker creates a tracker backed by store.
func NewTracker(store Store, logger zerolog.Logger) *Tracker {
	return &Tracker{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Block records that no request should be sent for the next d.
func (t *Tracker) Block(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}

	until := t.now().Add(d)
	if err := t.store.Extend(ctx, until); err != nil {
		t.logger.Warn().Err(err).Msg("Failed to record cooldown")
		return
	}

	fastpurgeCooldownBlocksTotal.Inc()
	t.logger.Warn().
		Dur("retry_after", d).
		Time("until", until).
		Msg("Fast Purge asked clients to back off")
}

// Remaining returns how long requests must still wait. Store errors count
// as no cooldown.
func (t *Tracker) Remaining(ctx context.Context) time.Duration {
	until, err := t.store.BlockedUntil(ctx)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Failed to read cooldown, proceeding")
		return 0
	}
	if until.IsZero() {
		return 0
	}
	if d := until.Sub(t.now()); d > 0 {
		return d
	}
	return 0
}

// Wait blocks until any active cooldown has passed or ctx is done.
func (t *Tracker) Wait(ctx context.Context) error {
	d := t.Remaining(ctx)
	if d == 0 {
		return nil
	}

	fastpurgeCooldownWaitsTotal.Inc()
	t.logger.Debug().Dur("wait", d).Msg("Waiting for cooldown")

	start := time.Now()
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		fastpurgeCooldownSeconds.Observe(time.Since(start).Seconds())
		return nil
	}
}
