// Package coordinator implements the FetchCoordinator, the orchestration
// algorithm from spec §4.6: partition the requested window into
// historical days plus today, fill coverage/freshness gaps through the
// single-flight registry with bounded fanout, then read the union
// window back out of the store. Grounded on the teacher's handler
// orchestration style (internal/handlers) of composing smaller
// collaborators behind one public entrypoint, generalized to this
// domain's double-checked-locking fetch path.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"gdelt-article-cache/internal/articles"
	"gdelt-article-cache/internal/coverage"
	"gdelt-article-cache/internal/freshness"
	"gdelt-article-cache/internal/gdeltclock"
	"gdelt-article-cache/internal/singleflight"
	"gdelt-article-cache/internal/store"
	"gdelt-article-cache/internal/usagemeter"
	"gdelt-article-cache/internal/warehouse"
)

const (
	kindHistorical = "historical_day"
	kindCurrentDay = "current_day"
)

// Config holds the tunables the coordinator needs beyond its
// collaborators, mirroring spec §6's configuration table.
type Config struct {
	ExpectedPerDay   int           // E
	HistoricalFanout int           // worker pool size for historical days, default 4
	FetchDeadline    time.Duration // per-request deadline, 0 = none
}

// Coordinator wires the Clock, Store, WarehouseClient, CoverageEvaluator,
// FreshnessEvaluator, SingleFlightRegistry and UsageMeter into the
// get_articles operation.
type Coordinator struct {
	clock      gdeltclock.Clock
	store      store.Store
	warehouse  warehouse.Client
	coverage   *coverage.Evaluator
	freshness  *freshness.Evaluator
	flight     *singleflight.Registry
	usage      *usagemeter.Meter
	log        *zap.Logger
	cfg        Config
}

// New returns a Coordinator. cfg.HistoricalFanout defaults to 4 when <= 0.
func New(
	clock gdeltclock.Clock,
	st store.Store,
	wh warehouse.Client,
	cov *coverage.Evaluator,
	fr *freshness.Evaluator,
	flight *singleflight.Registry,
	usage *usagemeter.Meter,
	log *zap.Logger,
	cfg Config,
) *Coordinator {
	if cfg.HistoricalFanout <= 0 {
		cfg.HistoricalFanout = 4
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		clock:     clock,
		store:     st,
		warehouse: wh,
		coverage:  cov,
		freshness: fr,
		flight:    flight,
		usage:     usage,
		log:       log,
		cfg:       cfg,
	}
}

// GetArticles is the public get_articles(country_code, days_back)
// operation. The returned partial flag is set (spec §7 UpstreamFailure
// policy) when a historical day or today's refresh could not be filled
// from the warehouse — the request still succeeds with whatever the
// store already has, rather than failing the whole call.
func (c *Coordinator) GetArticles(ctx context.Context, country string, daysBack int) (rows []store.Row, partial bool, err error) {
	if c.cfg.FetchDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.FetchDeadline)
		defer cancel()
	}

	historicalDays := gdeltclock.RecentDays(c.clock, daysBack)

	historicalPartial := c.fillHistorical(ctx, country, historicalDays)

	todayPartial, err := c.refreshToday(ctx, country)
	if err != nil {
		return nil, false, err
	}

	rows, err = c.readOut(ctx, country, historicalDays)
	if err != nil {
		return nil, false, err
	}
	return rows, historicalPartial || todayPartial, nil
}

// fillHistorical runs step 2 of §4.6: for each historical day concurrently
// (bounded fanout), check coverage and fetch on a miss. A single day's
// failure does not abort the others (P7, partial-failure isolation) — it
// is logged and reported back as partial so the caller can flag the
// response, while the read-out still returns whatever the store has.
func (c *Coordinator) fillHistorical(ctx context.Context, country string, days []time.Time) (partial bool) {
	if len(days) == 0 {
		return false
	}

	sem := make(chan struct{}, c.cfg.HistoricalFanout)
	var wg sync.WaitGroup
	var mu sync.Mutex
	loc := c.clock.Location()

	for _, date := range days {
		date := date
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			if err := c.fillDay(ctx, country, date, loc); err != nil {
				c.log.Warn("historical day fill failed",
					zap.String("country", country),
					zap.Time("date", date),
					zap.Error(err),
				)
				mu.Lock()
				partial = true
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	return partial
}

func (c *Coordinator) fillDay(ctx context.Context, country string, date time.Time, loc *time.Location) error {
	v, err := c.coverage.Coverage(ctx, country, date, loc)
	if err != nil {
		return fmt.Errorf("coordinator: coverage check: %w", err)
	}
	if v.Sufficient {
		return nil
	}

	key := fmt.Sprintf("day|%s|%s", country, date.Format("2006-01-02"))
	_, err, _ = c.flight.Do(ctx, key, func(ctx context.Context) (interface{}, error) {
		return nil, c.fetchDay(ctx, country, date, loc)
	})
	if err == singleflight.ErrTimeout {
		return fmt.Errorf("coordinator: timed out waiting on fetch for %s: %w", key, err)
	}
	return err
}

// fetchDay re-checks coverage inside the single-flight critical section
// (double-checked locking, spec §4.6 step 2d) before calling the
// warehouse.
func (c *Coordinator) fetchDay(ctx context.Context, country string, date time.Time, loc *time.Location) error {
	v, err := c.coverage.Coverage(ctx, country, date, loc)
	if err != nil {
		return fmt.Errorf("coordinator: re-check coverage: %w", err)
	}
	if v.Sufficient {
		return nil
	}

	rows, bytesScanned, err := c.warehouse.FetchDay(ctx, country, date, c.cfg.ExpectedPerDay)
	if err != nil {
		return fmt.Errorf("coordinator: warehouse fetch_day: %w", err)
	}

	if _, err := c.store.UpsertMany(ctx, rows); err != nil {
		return fmt.Errorf("coordinator: upsert fetched rows: %w", err)
	}

	if c.usage != nil {
		if err := c.usage.Record(ctx, c.clock.Now(), kindHistorical, bytesScanned); err != nil {
			c.log.Warn("usage meter record failed", zap.Error(err))
		}
	}

	return nil
}

// refreshToday runs step 3 of §4.6. A warehouse or single-flight-timeout
// failure is recovered locally and reported as partial (spec §7
// UpstreamFailure/Timeout policy); a freshness-check (store) failure
// aborts the whole request, since the final read-out needs the store
// too.
func (c *Coordinator) refreshToday(ctx context.Context, country string) (partial bool, err error) {
	f, err := c.freshness.Freshness(ctx, country)
	if err != nil {
		return false, fmt.Errorf("coordinator: freshness check: %w", err)
	}
	if f.Status == freshness.Fresh {
		return false, nil
	}

	key := fmt.Sprintf("today|%s", country)
	_, ferr, _ := c.flight.Do(ctx, key, func(ctx context.Context) (interface{}, error) {
		return nil, c.fetchToday(ctx, country)
	})
	if ferr == nil {
		return false, nil
	}
	if ferr == singleflight.ErrTimeout {
		c.log.Warn("today's fetch timed out", zap.String("country", country))
		return true, nil
	}
	if upErr, ok := ferr.(upstreamError); ok {
		c.log.Warn("today's fetch failed upstream", zap.String("country", country), zap.Error(upErr.err))
		return true, nil
	}
	return false, ferr
}

// upstreamError marks a failure as recoverable (warehouse-side), as
// opposed to a store error that should abort the request.
type upstreamError struct{ err error }

func (u upstreamError) Error() string { return u.err.Error() }

func (c *Coordinator) fetchToday(ctx context.Context, country string) error {
	f, err := c.freshness.Freshness(ctx, country)
	if err != nil {
		return fmt.Errorf("coordinator: re-check freshness: %w", err)
	}
	if f.Status == freshness.Fresh {
		return nil
	}

	rows, bytesScanned, err := c.warehouse.FetchRange(ctx, country, f.WindowLo, f.WindowHi, c.cfg.ExpectedPerDay)
	if err != nil {
		return upstreamError{fmt.Errorf("coordinator: warehouse fetch_range: %w", err)}
	}

	if _, err := c.store.UpsertMany(ctx, rows); err != nil {
		return fmt.Errorf("coordinator: upsert fetched rows: %w", err)
	}

	if c.usage != nil {
		if err := c.usage.Record(ctx, c.clock.Now(), kindCurrentDay, bytesScanned); err != nil {
			c.log.Warn("usage meter record failed", zap.Error(err))
		}
	}

	return nil
}

// readOut runs step 4 of §4.6: query the union window of the historical
// days plus [start_of(today), now], ordered by date_added descending.
func (c *Coordinator) readOut(ctx context.Context, country string, historicalDays []time.Time) ([]store.Row, error) {
	loc := c.clock.Location()
	now := c.clock.Now()
	todayStart := gdeltclock.Today(c.clock)

	var lo int64
	if len(historicalDays) > 0 {
		_, _, loInt, _ := gdeltclock.DayWindow(historicalDays[0], loc)
		lo = loInt
	} else {
		lo = gdeltclock.EncodeInt(todayStart)
	}
	hi := gdeltclock.EncodeInt(now)

	rows, err := c.store.SelectRange(ctx, country, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("coordinator: read-out: %w", err)
	}
	return rows, nil
}

// Views is a convenience wrapper returning the public projection of
// GetArticles's result, alongside the same partial flag.
func (c *Coordinator) Views(ctx context.Context, country string, daysBack int) (views []articles.View, partial bool, err error) {
	rows, partial, err := c.GetArticles(ctx, country, daysBack)
	if err != nil {
		return nil, false, err
	}
	loc := c.clock.Location()
	return articles.Project(rows, func(v int64) string {
		t, err := gdeltclock.DecodeInt(v, loc)
		if err != nil {
			return ""
		}
		return t.Format(time.RFC3339)
	}), partial, nil
}
