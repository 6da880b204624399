// Package freshness implements the FreshnessEvaluator contract from spec
// §4.4: whether today's rows for a country are recent enough to skip a
// warehouse re-fetch. Unlike CoverageEvaluator (a count threshold),
// freshness is a TTL against the latest observed date_added — the same
// "how old is the newest record" shape the teacher's spend tracker uses
// for its cached-vs-recompute decision (internal/usage/tracker.go's
// localCacheTTL), generalized from wall-clock cache age to data age.
package freshness

import (
	"context"
	"fmt"
	"time"

	"gdelt-article-cache/internal/gdeltclock"
)

// Status classifies how fresh today's data is for a country.
type Status int

const (
	Empty Status = iota
	Stale
	Fresh
)

func (s Status) String() string {
	switch s {
	case Empty:
		return "empty"
	case Stale:
		return "stale"
	case Fresh:
		return "fresh"
	default:
		return "unknown"
	}
}

// Verdict is the outcome of a freshness check, carrying the window a
// re-fetch should cover when Status is Empty or Stale.
type Verdict struct {
	Status     Status
	LastSeen   time.Time // zero for Empty
	WindowLo   time.Time
	WindowHi   time.Time
}

// Store is the subset of store.Store the evaluator needs.
type Store interface {
	MaxDateAdded(ctx context.Context, country string, lo, hi int64) (int64, bool, error)
}

// Evaluator checks the age of today's newest row against a TTL.
type Evaluator struct {
	store Store
	clock gdeltclock.Clock
	ttl   time.Duration
}

// New returns an Evaluator with the given current-day TTL (spec default
// 15 minutes).
func New(s Store, clock gdeltclock.Clock, ttl time.Duration) *Evaluator {
	return &Evaluator{store: s, clock: clock, ttl: ttl}
}

// Freshness computes the FreshnessVerdict for country as of the clock's
// current time.
func (e *Evaluator) Freshness(ctx context.Context, country string) (Verdict, error) {
	now := e.clock.Now()
	loc := e.clock.Location()
	dayStart := gdeltclock.Today(e.clock)
	nowInt := gdeltclock.EncodeInt(now)
	dayStartInt := gdeltclock.EncodeInt(dayStart)

	latestInt, ok, err := e.store.MaxDateAdded(ctx, country, dayStartInt, nowInt)
	if err != nil {
		return Verdict{}, fmt.Errorf("freshness: max date_added: %w", err)
	}
	if !ok {
		return Verdict{Status: Empty, WindowLo: dayStart, WindowHi: now}, nil
	}

	last, err := gdeltclock.DecodeInt(latestInt, loc)
	if err != nil {
		return Verdict{}, fmt.Errorf("freshness: decode latest date_added: %w", err)
	}

	if now.Sub(last) >= e.ttl {
		return Verdict{Status: Stale, LastSeen: last, WindowLo: last, WindowHi: now}, nil
	}

	return Verdict{Status: Fresh, LastSeen: last}, nil
}
