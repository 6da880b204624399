// Package coverage implements the CoverageEvaluator contract from spec
// §4.3: is a day's worth of rows for a country "enough" to skip a
// warehouse re-fetch. It is the read-side counterpart to the teacher's
// budget.BudgetEnforcer — a threshold check over a persisted counter —
// adapted from USD-vs-cap to rows-vs-expected-count.
package coverage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gdelt-article-cache/internal/gdeltclock"
)

// Verdict is the outcome of a coverage check for a single DayKey.
type Verdict struct {
	Sufficient bool
	Count      int
}

// Store is the subset of store.Store the evaluator needs.
type Store interface {
	CountInDay(ctx context.Context, country string, lo, hi int64) (int, error)
}

// Evaluator checks store row counts against an expected-per-day count
// and ratio threshold.
type Evaluator struct {
	store Store
	log   *zap.Logger

	ExpectedPerDay int
	Ratio          float64
}

// New returns an Evaluator with the given expected-per-day count and
// ratio (spec defaults: E=100, r=0.8).
func New(s Store, log *zap.Logger, expectedPerDay int, ratio float64) *Evaluator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Evaluator{store: s, log: log, ExpectedPerDay: expectedPerDay, Ratio: ratio}
}

// Threshold returns floor(E * r), the minimum row count considered
// Sufficient.
func (e *Evaluator) Threshold() int {
	return int(float64(e.ExpectedPerDay) * e.Ratio)
}

// Coverage computes the CoverageVerdict for (country, date) in loc's
// zone. An Insufficient(count) with 0 < count < threshold is logged at
// WARN but treated identically to count = 0 by the caller — the day is
// re-fetched in whole, since the warehouse upsert is idempotent on
// gkg_record_id and cannot duplicate rows (spec §4.3 edge policy).
func (e *Evaluator) Coverage(ctx context.Context, country string, date time.Time, loc *time.Location) (Verdict, error) {
	lo, hi, loInt, hiInt := gdeltclock.DayWindow(date, loc)
	_, _ = lo, hi
	return e.CoverageForWindow(ctx, country, loInt, hiInt)
}

// CoverageForWindow computes the CoverageVerdict for the day whose
// integer bounds are [lo, hi] (see gdeltclock.DayWindow).
func (e *Evaluator) CoverageForWindow(ctx context.Context, country string, lo, hi int64) (Verdict, error) {
	count, err := e.store.CountInDay(ctx, country, lo, hi)
	if err != nil {
		return Verdict{}, fmt.Errorf("coverage: count rows: %w", err)
	}

	threshold := e.Threshold()
	sufficient := count >= threshold

	if !sufficient && count > 0 {
		e.log.Warn("partial day coverage, re-fetching in whole",
			zap.String("country", country),
			zap.Int64("lo", lo),
			zap.Int64("hi", hi),
			zap.Int("count", count),
			zap.Int("threshold", threshold),
		)
	}

	return Verdict{Sufficient: sufficient, Count: count}, nil
}
