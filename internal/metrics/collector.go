package metrics

import (
	"context"
	"time"

	"go.uber.org/zap"

	"gdelt-article-cache/internal/usagemeter"
)

// UsageGaugeCollector periodically snapshots the UsageMeter and pushes
// its percent-of-budget and warning-level into gauges, so the warning
// ladder in spec §4.2 is visible to dashboards between requests, not
// only in the API response. Grounded on the teacher's
// BusinessMetricsCollector ticker+ctx.Done() shape, narrowed to the one
// thing this service has to report periodically.
type UsageGaugeCollector struct {
	meter    *usagemeter.Meter
	metrics  *Metrics
	log      *zap.Logger
	interval time.Duration
	now      func() time.Time
	stopCh   chan struct{}
}

// NewUsageGaugeCollector builds a collector polling meter every
// interval.
func NewUsageGaugeCollector(meter *usagemeter.Meter, log *zap.Logger, interval time.Duration) *UsageGaugeCollector {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &UsageGaugeCollector{
		meter:    meter,
		metrics:  Get(),
		log:      log,
		interval: interval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic collection loop. It runs until ctx is
// canceled or Stop is called.
func (c *UsageGaugeCollector) Start(ctx context.Context) {
	go func() {
		c.collect(ctx)

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.collect(ctx)
			case <-c.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the collection loop.
func (c *UsageGaugeCollector) Stop() {
	close(c.stopCh)
}

func (c *UsageGaugeCollector) collect(ctx context.Context) {
	stats, err := c.meter.Snapshot(ctx, c.now())
	if err != nil {
		c.log.Warn("usage gauge collection failed", zap.Error(err))
		return
	}

	c.metrics.UsagePercent.Set(stats.Percent)

	rank := map[usagemeter.WarningLevel]int{
		usagemeter.WarningNone:      0,
		usagemeter.WarningElevated:  1,
		usagemeter.WarningHigh:      2,
		usagemeter.WarningCritical:  3,
		usagemeter.WarningExhausted: 4,
	}
	current := rank[stats.WarningLevel]

	for _, lvl := range []usagemeter.WarningLevel{
		usagemeter.WarningElevated,
		usagemeter.WarningHigh,
		usagemeter.WarningCritical,
		usagemeter.WarningExhausted,
	} {
		val := 0.0
		if current >= rank[lvl] {
			val = 1.0
		}
		c.metrics.UsageWarningLevel.WithLabelValues(string(lvl)).Set(val)
	}
}
