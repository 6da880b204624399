package warehouse

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gdelt-article-cache/internal/articles"
)

// Recording is a Client test double that records one invocation per call
// and lets a test assert exact call counts per key — the fixture P1
// ("the WarehouseClient mock is invoked exactly once for k") is built on.
type Recording struct {
	mu        sync.Mutex
	callsByKey map[string]int
	RowsFunc   func(country string, lo, hi time.Time) ([]articles.ArticleRow, int64, error)
}

// NewRecording returns a Recording client; rowsFunc supplies the rows and
// bytes scanned for each call (a nil func returns zero rows, zero bytes).
func NewRecording(rowsFunc func(country string, lo, hi time.Time) ([]articles.ArticleRow, int64, error)) *Recording {
	return &Recording{
		callsByKey: make(map[string]int),
		RowsFunc:   rowsFunc,
	}
}

func (r *Recording) FetchDay(ctx context.Context, country string, date time.Time, limit int) ([]articles.ArticleRow, int64, error) {
	lo := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	hi := time.Date(date.Year(), date.Month(), date.Day(), 23, 59, 59, 0, date.Location())
	return r.call(country, lo, hi)
}

func (r *Recording) FetchRange(ctx context.Context, country string, lo, hi time.Time, limit int) ([]articles.ArticleRow, int64, error) {
	return r.call(country, lo, hi)
}

func (r *Recording) call(country string, lo, hi time.Time) ([]articles.ArticleRow, int64, error) {
	key := fmt.Sprintf("%s|%s|%s", country, lo.Format("2006-01-02T15:04:05"), hi.Format("2006-01-02T15:04:05"))
	r.mu.Lock()
	r.callsByKey[key]++
	r.mu.Unlock()

	if r.RowsFunc == nil {
		return nil, 0, nil
	}
	return r.RowsFunc(country, lo, hi)
}

// CallsForDay returns how many times FetchDay/FetchRange was invoked for
// the given country/date window.
func (r *Recording) CallsForDay(country string, date time.Time) int {
	lo := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	hi := time.Date(date.Year(), date.Month(), date.Day(), 23, 59, 59, 0, date.Location())
	key := fmt.Sprintf("%s|%s|%s", country, lo.Format("2006-01-02T15:04:05"), hi.Format("2006-01-02T15:04:05"))
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.callsByKey[key]
}

// TotalCalls returns the sum of all recorded invocations.
func (r *Recording) TotalCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, n := range r.callsByKey {
		total += n
	}
	return total
}

// Func is a Client test double letting a test script per-call behavior,
// used for the partial-failure scenario (P7): fail on one day, succeed
// on the rest.
type Func struct {
	Day   func(ctx context.Context, country string, date time.Time, limit int) ([]articles.ArticleRow, int64, error)
	Range func(ctx context.Context, country string, lo, hi time.Time, limit int) ([]articles.ArticleRow, int64, error)
}

func (f *Func) FetchDay(ctx context.Context, country string, date time.Time, limit int) ([]articles.ArticleRow, int64, error) {
	if f.Day == nil {
		return nil, 0, nil
	}
	return f.Day(ctx, country, date, limit)
}

func (f *Func) FetchRange(ctx context.Context, country string, lo, hi time.Time, limit int) ([]articles.ArticleRow, int64, error) {
	if f.Range == nil {
		return nil, 0, nil
	}
	return f.Range(ctx, country, lo, hi, limit)
}
