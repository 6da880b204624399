package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gdelt-article-cache/internal/gdeltclock"
)

// The scheduler's tick logic is exercised directly via Scheduler.tick in
// these tests rather than through the real minute-granularity ticker
// goroutine, which would make the tests slow.

func TestRegister_FiresOnlyAtConfiguredInstant(t *testing.T) {
	var calls int32
	s := New(gdeltclock.Fixed{At: time.Date(2026, 1, 22, 0, 0, 0, 0, time.UTC), Loc: time.UTC}, zap.NewNop())
	s.Register("retention", 0, 0, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	lastFired := make(map[string]string)
	s.tick(context.Background(), lastFired)
	// job goroutine is async; give it a moment
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	// A second tick within the same minute/day must not re-fire.
	s.tick(context.Background(), lastFired)
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestRegister_DoesNotFireOutsideConfiguredMinute(t *testing.T) {
	var calls int32
	s := New(gdeltclock.Fixed{At: time.Date(2026, 1, 22, 3, 15, 0, 0, time.UTC), Loc: time.UTC}, zap.NewNop())
	s.Register("retention", 0, 0, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	s.tick(context.Background(), map[string]string{})
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 0, atomic.LoadInt32(&calls))
}

func TestStartStop_CleanShutdown(t *testing.T) {
	s := New(gdeltclock.Fixed{At: time.Date(2026, 1, 22, 3, 15, 0, 0, time.UTC), Loc: time.UTC}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)
	s.Stop()
}

func TestMaintenanceJob_RetentionAndWarmup(t *testing.T) {
	st := &fakeStore{total: 10}
	var mu sync.Mutex
	var warmed []string

	warm := func(ctx context.Context, country string, daysBack int) (int, error) {
		mu.Lock()
		warmed = append(warmed, country)
		mu.Unlock()
		if country == "FR" {
			return 0, assertErr{}
		}
		return 5, nil
	}

	job := NewMaintenanceJob(st, warm, zap.NewNop(), 7*24*time.Hour, []string{"US", "FR", "CH"},
		func() time.Time { return time.Date(2026, 1, 22, 0, 0, 0, 0, time.UTC) })

	err := job(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.deleteCalls)
	assert.ElementsMatch(t, []string{"US", "FR", "CH"}, warmed)
}

type fakeStore struct {
	total       int64
	deleteCalls int
}

func (f *fakeStore) DeleteOlderThan(ctx context.Context, horizon time.Duration, now time.Time) (int, error) {
	f.deleteCalls++
	return 2, nil
}

func (f *fakeStore) Count(ctx context.Context) (int64, error) {
	return f.total, nil
}

type assertErr struct{}

func (assertErr) Error() string { return "warmup failed" }
