package coordinator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

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
	testE = 100
	testR = 0.8
	testT = 900 * time.Second
)

func newHarness(t *testing.T, now time.Time, wh warehouse.Client) (*Coordinator, *store.Memory) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, usagemeter.Migrate(db))

	clock := gdeltclock.Fixed{At: now, Loc: time.UTC}
	st := store.NewMemory()
	cov := coverage.New(st, zap.NewNop(), testE, testR)
	fr := freshness.New(st, clock, testT)
	flight := singleflight.New()
	usage := usagemeter.New(db, zap.NewNop(), usagemeter.DefaultBudgetBytes, usagemeter.DefaultAvgBytesPerQuery)

	c := New(clock, st, wh, cov, fr, flight, usage, zap.NewNop(), Config{ExpectedPerDay: testE, HistoricalFanout: 4})
	return c, st
}

func rowsForDay(country string, date time.Time, n int) []articles.ArticleRow {
	base := gdeltclock.EncodeInt(date)
	rows := make([]articles.ArticleRow, n)
	for i := 0; i < n; i++ {
		rows[i] = articles.ArticleRow{
			GKGRecordID: fmt.Sprintf("%s-%s-%d", country, date.Format("20060102"), i),
			CountryCode: country,
			DateAdded:   base + int64(i),
		}
	}
	return rows
}

// Scenario 1: cold cache, single day — exactly one warehouse call, then
// zero on a second identical request.
func TestGetArticles_ColdCache_SingleDay(t *testing.T) {
	now := time.Date(2026, 1, 22, 15, 30, 0, 0, time.UTC)
	yesterday := time.Date(2026, 1, 21, 0, 0, 0, 0, time.UTC)

	rec := warehouse.NewRecording(func(country string, lo, hi time.Time) ([]articles.ArticleRow, int64, error) {
		return rowsForDay(country, lo, 100), 1024, nil
	})
	c, _ := newHarness(t, now, rec)

	ctx := context.Background()
	rows, partial, err := c.GetArticles(ctx, "CH", 1)
	require.NoError(t, err)
	assert.False(t, partial)
	// 100 rows for yesterday plus 100 from today's empty-day range fetch,
	// which the same recording fixture also answers.
	assert.Len(t, rows, 200)
	assert.Equal(t, 1, rec.CallsForDay("CH", yesterday))

	_, _, err = c.GetArticles(ctx, "CH", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.CallsForDay("CH", yesterday), "second identical request must issue no warehouse call")
}

// Scenario 2 / P1: 10 concurrent cold-cache requests collapse into one
// warehouse call.
func TestGetArticles_ConcurrentColdCache_SingleFlight(t *testing.T) {
	now := time.Date(2026, 1, 22, 15, 30, 0, 0, time.UTC)
	yesterday := time.Date(2026, 1, 21, 0, 0, 0, 0, time.UTC)

	release := make(chan struct{})
	rec := warehouse.NewRecording(func(country string, lo, hi time.Time) ([]articles.ArticleRow, int64, error) {
		<-release
		return rowsForDay(country, lo, 100), 1024, nil
	})
	c, _ := newHarness(t, now, rec)
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	results := make([][]store.Row, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			rows, _, err := c.GetArticles(ctx, "CH", 1)
			require.NoError(t, err)
			results[i] = rows
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, rec.CallsForDay("CH", yesterday))
	for _, r := range results {
		assert.Len(t, r, 100)
	}
}

// Scenario 3: today stale (latest row 30 min old) triggers exactly one today-window
// warehouse call, covering [15:00:00, 15:30:00].
func TestGetArticles_TodayStale(t *testing.T) {
	now := time.Date(2026, 1, 22, 15, 30, 0, 0, time.UTC)

	var rangeCalls []struct{ lo, hi time.Time }
	var mu sync.Mutex
	wh := &warehouse.Func{
		Day: func(ctx context.Context, country string, date time.Time, limit int) ([]articles.ArticleRow, int64, error) {
			return rowsForDay(country, date, 100), 1024, nil
		},
		Range: func(ctx context.Context, country string, lo, hi time.Time, limit int) ([]articles.ArticleRow, int64, error) {
			mu.Lock()
			rangeCalls = append(rangeCalls, struct{ lo, hi time.Time }{lo, hi})
			mu.Unlock()
			return rowsForDay(country, lo, 10), 512, nil
		},
	}
	c, st := newHarness(t, now, wh)
	st.Seed(store.Row{GKGRecordID: "existing", CountryCode: "US", DateAdded: 20260122150000})

	ctx := context.Background()
	_, _, err := c.GetArticles(ctx, "US", 1)
	require.NoError(t, err)

	require.Len(t, rangeCalls, 1)
	assert.Equal(t, time.Date(2026, 1, 22, 15, 0, 0, 0, time.UTC), rangeCalls[0].lo)
	assert.Equal(t, now, rangeCalls[0].hi)
}

// Scenario 4: today fresh (5 min ago) triggers zero today-window calls.
func TestGetArticles_TodayFresh(t *testing.T) {
	now := time.Date(2026, 1, 22, 15, 30, 0, 0, time.UTC)

	var rangeCalls int32
	wh := &warehouse.Func{
		Day: func(ctx context.Context, country string, date time.Time, limit int) ([]articles.ArticleRow, int64, error) {
			return rowsForDay(country, date, 100), 1024, nil
		},
		Range: func(ctx context.Context, country string, lo, hi time.Time, limit int) ([]articles.ArticleRow, int64, error) {
			rangeCalls++
			return nil, 0, nil
		},
	}
	c, st := newHarness(t, now, wh)
	st.Seed(store.Row{GKGRecordID: "existing", CountryCode: "US", DateAdded: 20260122152500})

	ctx := context.Background()
	_, _, err := c.GetArticles(ctx, "US", 1)
	require.NoError(t, err)
	assert.EqualValues(t, 0, rangeCalls)
}

// Scenario 5: partial coverage (79 < 80) triggers a re-fetch of the whole
// day; once the fetch returns 100 rows, a follow-up issues no call.
func TestGetArticles_PartialCoverage_RefetchesWholeDay(t *testing.T) {
	now := time.Date(2026, 1, 22, 15, 30, 0, 0, time.UTC)
	yesterday := time.Date(2026, 1, 21, 0, 0, 0, 0, time.UTC)

	rec := warehouse.NewRecording(func(country string, lo, hi time.Time) ([]articles.ArticleRow, int64, error) {
		return rowsForDay(country, lo, 100), 1024, nil
	})
	c, st := newHarness(t, now, rec)
	st.Seed(rowsForDay("CH", yesterday, 79)...)

	ctx := context.Background()
	rows, _, err := c.GetArticles(ctx, "CH", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.CallsForDay("CH", yesterday))
	assert.Len(t, rows, 200) // 100 for yesterday + 100 for today

	_, _, err = c.GetArticles(ctx, "CH", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.CallsForDay("CH", yesterday))
}

// P7: a failing historical day does not prevent other days' rows from
// appearing in the response.
func TestGetArticles_PartialFailureIsolation(t *testing.T) {
	now := time.Date(2026, 1, 22, 15, 30, 0, 0, time.UTC)
	failDay := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)

	wh := &warehouse.Func{
		Day: func(ctx context.Context, country string, date time.Time, limit int) ([]articles.ArticleRow, int64, error) {
			if date.Equal(failDay) {
				return nil, 0, fmt.Errorf("warehouse: simulated failure")
			}
			return rowsForDay(country, date, 100), 1024, nil
		},
		Range: func(ctx context.Context, country string, lo, hi time.Time, limit int) ([]articles.ArticleRow, int64, error) {
			return nil, 0, nil
		},
	}
	c, st := newHarness(t, now, wh)
	st.Seed(store.Row{GKGRecordID: "today-seed", CountryCode: "US", DateAdded: 20260122152900})

	ctx := context.Background()
	rows, partial, err := c.GetArticles(ctx, "US", 3)
	require.NoError(t, err)
	assert.True(t, partial, "a failed historical day must be reported as partial")

	var sawSuccessfulDay bool
	for _, r := range rows {
		if r.DateAdded >= 20260121000000 && r.DateAdded <= 20260121235959 {
			sawSuccessfulDay = true
		}
		assert.False(t, r.DateAdded >= 20260120000000 && r.DateAdded <= 20260120235959,
			"failed day must not have produced rows")
	}
	assert.True(t, sawSuccessfulDay)
}
