// Package usagemeter tracks warehouse bytes scanned against a monthly
// budget, the direct analog of the teacher's spend tracker (USD against
// a monthly/daily/per-build cap, internal/spend and internal/budget) —
// here there is exactly one dimension (bytes scanned, subtotaled by
// query kind) and one period (calendar month), with a three-tier
// warning ladder instead of the teacher's single 80% threshold.
package usagemeter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// WarningLevel classifies how close usage is to the monthly budget, per
// spec §4.2's coarse thresholds.
type WarningLevel string

const (
	WarningNone      WarningLevel = ""
	WarningElevated  WarningLevel = "warn_50"
	WarningHigh      WarningLevel = "warn_80"
	WarningCritical  WarningLevel = "warn_90"
	WarningExhausted WarningLevel = "exhausted"
)

var thresholds = []struct {
	frac  float64
	level WarningLevel
}{
	{1.0, WarningExhausted},
	{0.90, WarningCritical},
	{0.80, WarningHigh},
	{0.50, WarningElevated},
}

func levelFor(used, budget int64) WarningLevel {
	if budget <= 0 {
		return WarningNone
	}
	frac := float64(used) / float64(budget)
	for _, th := range thresholds {
		if frac >= th.frac {
			return th.level
		}
	}
	return WarningNone
}

// KindTotal is one entry of UsageStats.ByKind.
type KindTotal struct {
	Bytes int64 `json:"bytes"`
	Count int64 `json:"count"`
}

// Stats is the UsageMeter snapshot returned to callers and serialized
// into the stats endpoint / usagecache.
type Stats struct {
	Month                string               `json:"month"` // "2026-01"
	TotalBytes           int64                `json:"total_bytes"`
	QueryCount           int64                `json:"query_count"`
	ByKind               map[string]KindTotal `json:"by_kind"`
	BudgetBytes          int64                `json:"budget_bytes"`
	Percent              float64              `json:"percent"`
	RemainingBytes       int64                `json:"remaining_bytes"`
	EstimatedQueriesLeft int64                `json:"estimated_queries_left"`
	WarningLevel         WarningLevel         `json:"warning_level"`
	CachedAt             time.Time            `json:"cached_at"`
}

// monthlyUsageRow is the gorm-persisted monthly counter, grounded on the
// teacher's MonthlyUsageSummary (internal/usage/tracker.go), extended
// with a by-kind JSON subtotal the way the teacher's UsageRecord carries
// a free-form Metadata JSON column.
type monthlyUsageRow struct {
	Month      string    `gorm:"primaryKey;size:7"` // "2026-01"
	TotalBytes int64     `gorm:"not null;default:0"`
	QueryCount int64     `gorm:"not null;default:0"`
	ByKindJSON []byte    `gorm:"type:jsonb"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (monthlyUsageRow) TableName() string { return "usage_monthly" }

func (r monthlyUsageRow) byKind() map[string]KindTotal {
	out := map[string]KindTotal{}
	if len(r.ByKindJSON) == 0 {
		return out
	}
	_ = json.Unmarshal(r.ByKindJSON, &out)
	return out
}

// Meter records bytes-scanned events and answers snapshot queries against
// the configured monthly budget. The month's observed average bytes per
// query estimates how many queries remain in the budget; avgBytesPerQuery
// stands in until the month has a recorded query. Mutations run
// under an exclusive lock per spec §4.2; reads are served from the
// store directly, always reflecting the last committed write.
type Meter struct {
	db               *gorm.DB
	log              *zap.Logger
	mu               sync.Mutex
	budgetBytes      int64
	avgBytesPerQuery int64
}

// Migrate creates the usage_monthly table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&monthlyUsageRow{})
}

// New returns a Meter backed by db, enforcing budgetBytes per calendar
// month and using avgBytesPerQuery to estimate remaining queries while
// the month has no recorded query.
func New(db *gorm.DB, log *zap.Logger, budgetBytes, avgBytesPerQuery int64) *Meter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Meter{db: db, log: log, budgetBytes: budgetBytes, avgBytesPerQuery: avgBytesPerQuery}
}

// Record adds bytesScanned under the given query kind (e.g. "historical_day",
// "current_day") to the running total for the month containing at. I4
// (monotonicity): total_bytes and query_count only ever grow within a
// month. Logs at WARN when the cumulative fraction crosses 50/80/90%.
func (m *Meter) Record(ctx context.Context, at time.Time, kind string, bytesScanned int64) error {
	if bytesScanned <= 0 {
		return nil
	}
	month := at.UTC().Format("2006-01")

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row monthlyUsageRow
		err := tx.Where("month = ?", month).First(&row).Error
		switch {
		case err == gorm.ErrRecordNotFound:
			row = monthlyUsageRow{Month: month}
		case err != nil:
			return fmt.Errorf("usagemeter: load row: %w", err)
		}

		before := row.TotalBytes
		by := row.byKind()
		kt := by[kind]
		kt.Bytes += bytesScanned
		kt.Count++
		by[kind] = kt

		byJSON, err := json.Marshal(by)
		if err != nil {
			return fmt.Errorf("usagemeter: marshal by_kind: %w", err)
		}

		row.TotalBytes += bytesScanned
		row.QueryCount++
		row.ByKindJSON = byJSON
		row.UpdatedAt = at.UTC()

		if err := tx.Save(&row).Error; err != nil {
			return fmt.Errorf("usagemeter: save row: %w", err)
		}

		beforeLevel := levelFor(before, m.budgetBytes)
		afterLevel := levelFor(row.TotalBytes, m.budgetBytes)
		if afterLevel != WarningNone && afterLevel != beforeLevel {
			m.log.Warn("monthly warehouse byte budget threshold crossed",
				zap.String("month", month),
				zap.String("level", string(afterLevel)),
				zap.Int64("total_bytes", row.TotalBytes),
				zap.Int64("budget_bytes", m.budgetBytes),
			)
		}
		return nil
	})
}

// Snapshot computes the current month's usage statistics as of at.
func (m *Meter) Snapshot(ctx context.Context, at time.Time) (Stats, error) {
	month := at.UTC().Format("2006-01")

	var row monthlyUsageRow
	err := m.db.WithContext(ctx).Where("month = ?", month).First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			row = monthlyUsageRow{Month: month}
		} else {
			return Stats{}, fmt.Errorf("usagemeter: load snapshot: %w", err)
		}
	}

	return m.statsFor(row, at), nil
}

func (m *Meter) statsFor(row monthlyUsageRow, at time.Time) Stats {
	used := row.TotalBytes
	remaining := m.budgetBytes - used
	if remaining < 0 {
		remaining = 0
	}

	var pct float64
	if m.budgetBytes > 0 {
		pct = float64(used) / float64(m.budgetBytes) * 100
	}

	avg := m.avgBytesPerQuery
	if row.QueryCount > 0 {
		avg = used / row.QueryCount
	}
	if avg <= 0 {
		avg = DefaultAvgBytesPerQuery
	}
	queriesLeft := remaining / avg

	return Stats{
		Month:                row.Month,
		TotalBytes:           used,
		QueryCount:           row.QueryCount,
		ByKind:               row.byKind(),
		BudgetBytes:          m.budgetBytes,
		Percent:              pct,
		RemainingBytes:       remaining,
		EstimatedQueriesLeft: queriesLeft,
		WarningLevel:         levelFor(used, m.budgetBytes),
		CachedAt:             at.UTC(),
	}
}

// DefaultAvgBytesPerQuery is the conservative fallback used when no
// samples exist yet, per spec §4.2.
const DefaultAvgBytesPerQuery = 4 * 1024 * 1024 * 1024 // 4 GiB

// DefaultBudgetBytes is the fixed monthly budget B, per spec §4.2.
const DefaultBudgetBytes = 1024 * 1024 * 1024 * 1024 // 1 TiB

// OverBudget reports whether the month containing at has already
// exhausted its byte budget. The coordinator does not call it; warehouse
// fetches are issued regardless of budget.
func (m *Meter) OverBudget(ctx context.Context, at time.Time) (bool, error) {
	stats, err := m.Snapshot(ctx, at)
	if err != nil {
		return false, err
	}
	return m.budgetBytes > 0 && stats.TotalBytes >= m.budgetBytes, nil
}
