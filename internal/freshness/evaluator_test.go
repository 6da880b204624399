package freshness

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gdelt-article-cache/internal/gdeltclock"
	"gdelt-article-cache/internal/store"
)

func fixedClock(at time.Time) gdeltclock.Clock {
	return gdeltclock.Fixed{At: at, Loc: at.Location()}
}

func TestFreshness_Empty(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	now := time.Date(2026, 1, 22, 15, 30, 0, 0, time.UTC)

	e := New(s, fixedClock(now), 15*time.Minute)
	v, err := e.Freshness(ctx, "US")
	require.NoError(t, err)
	assert.Equal(t, Empty, v.Status)
	assert.Equal(t, now, v.WindowHi)
}

func TestFreshness_Fresh(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	now := time.Date(2026, 1, 22, 15, 30, 0, 0, time.UTC)

	s.Seed(store.Row{GKGRecordID: "a", CountryCode: "US", DateAdded: 20260122152000}) // 10 min ago
	e := New(s, fixedClock(now), 15*time.Minute)
	v, err := e.Freshness(ctx, "US")
	require.NoError(t, err)
	assert.Equal(t, Fresh, v.Status)
}

func TestFreshness_Stale(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	now := time.Date(2026, 1, 22, 15, 30, 0, 0, time.UTC)

	s.Seed(store.Row{GKGRecordID: "a", CountryCode: "US", DateAdded: 20260122151000}) // 20 min ago
	e := New(s, fixedClock(now), 15*time.Minute)
	v, err := e.Freshness(ctx, "US")
	require.NoError(t, err)
	assert.Equal(t, Stale, v.Status)
	assert.Equal(t, time.Date(2026, 1, 22, 15, 10, 0, 0, time.UTC), v.WindowLo)
	assert.Equal(t, now, v.WindowHi)
}

// P3: exactly at T (now - last == ttl) counts as Stale, not Fresh.
func TestFreshness_ExactBoundaryIsStale(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	now := time.Date(2026, 1, 22, 15, 30, 0, 0, time.UTC)

	s.Seed(store.Row{GKGRecordID: "a", CountryCode: "US", DateAdded: 20260122151500}) // exactly 15 min ago
	e := New(s, fixedClock(now), 15*time.Minute)
	v, err := e.Freshness(ctx, "US")
	require.NoError(t, err)
	assert.Equal(t, Stale, v.Status)
}

func TestFreshness_IgnoresOtherCountry(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	now := time.Date(2026, 1, 22, 15, 30, 0, 0, time.UTC)

	s.Seed(store.Row{GKGRecordID: "a", CountryCode: "FR", DateAdded: 20260122152900})
	e := New(s, fixedClock(now), 15*time.Minute)
	v, err := e.Freshness(ctx, "US")
	require.NoError(t, err)
	assert.Equal(t, Empty, v.Status)
}
