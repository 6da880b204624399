package usagemeter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return db
}

// P5: usage is monotonic and equal to the sum of inputs; warning level
// crosses 50/80/90% thresholds in order as usage grows.
func TestSnapshot_WarningThresholds(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	at := time.Date(2026, 1, 22, 12, 0, 0, 0, time.UTC)
	budget := int64(1000)
	m := New(db, zap.NewNop(), budget, 100)

	stats, err := m.Snapshot(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, WarningNone, stats.WarningLevel)
	assert.Equal(t, int64(0), stats.TotalBytes)
	assert.Equal(t, int64(10), stats.EstimatedQueriesLeft)

	require.NoError(t, m.Record(ctx, at, "historical_day", 500))
	stats, err = m.Snapshot(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, WarningElevated, stats.WarningLevel)
	assert.Equal(t, int64(500), stats.RemainingBytes)
	assert.Equal(t, int64(1), stats.QueryCount)
	assert.Equal(t, int64(500), stats.ByKind["historical_day"].Bytes)

	require.NoError(t, m.Record(ctx, at, "current_day", 310))
	stats, err = m.Snapshot(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, WarningHigh, stats.WarningLevel)
	assert.Equal(t, int64(2), stats.QueryCount)

	require.NoError(t, m.Record(ctx, at, "historical_day", 100))
	stats, err = m.Snapshot(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, WarningCritical, stats.WarningLevel)
	assert.Equal(t, int64(600), stats.ByKind["historical_day"].Bytes)

	over, err := m.OverBudget(ctx, at)
	require.NoError(t, err)
	assert.False(t, over)

	require.NoError(t, m.Record(ctx, at, "current_day", 200))
	stats, err = m.Snapshot(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, WarningExhausted, stats.WarningLevel)

	over, err = m.OverBudget(ctx, at)
	require.NoError(t, err)
	assert.True(t, over)
}

// Usage recorded in one month must not bleed into another month's total.
func TestRecord_MonthBoundary(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	m := New(db, zap.NewNop(), 1000, 10)

	jan := time.Date(2026, 1, 31, 23, 0, 0, 0, time.UTC)
	feb := time.Date(2026, 2, 1, 1, 0, 0, 0, time.UTC)

	require.NoError(t, m.Record(ctx, jan, "historical_day", 400))
	require.NoError(t, m.Record(ctx, feb, "historical_day", 50))

	janStats, err := m.Snapshot(ctx, jan)
	require.NoError(t, err)
	assert.Equal(t, int64(400), janStats.TotalBytes)

	febStats, err := m.Snapshot(ctx, feb)
	require.NoError(t, err)
	assert.Equal(t, int64(50), febStats.TotalBytes)
}

// Sequential Record calls against the same month accumulate without loss.
func TestRecord_SequentialAccumulates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	m := New(db, zap.NewNop(), 1_000_000, 10)
	at := time.Date(2026, 1, 22, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 20; i++ {
		require.NoError(t, m.Record(ctx, at, "historical_day", 10))
	}

	stats, err := m.Snapshot(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, int64(200), stats.TotalBytes)
	assert.Equal(t, int64(20), stats.QueryCount)
}

func TestSnapshot_DefaultAvgBytesPerQuery(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	at := time.Date(2026, 1, 22, 0, 0, 0, 0, time.UTC)
	m := New(db, zap.NewNop(), DefaultBudgetBytes, 0)

	stats, err := m.Snapshot(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, DefaultBudgetBytes/DefaultAvgBytesPerQuery, stats.EstimatedQueriesLeft)
}
