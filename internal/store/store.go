// Package store defines the ArticleStore contract consumed by the caching
// engine and a PostgreSQL-backed implementation over gorm.io/gorm.
//
// The store owns row persistence (I1: at most one row per gkg_record_id)
// and retention (I5: created_at, never date_added, drives eviction).
package store

import (
	"context"
	"time"

	"gdelt-article-cache/internal/articles"
)

// Row is the store's row shape; an alias of the nominal ArticleRow type
// (§3) so callers don't have to import internal/articles just to hold one.
type Row = articles.ArticleRow

// Store is the ArticleStore contract from spec §4.8.
type Store interface {
	// CountInDay returns the number of rows for country whose date_added
	// falls within [lo, hi] (inclusive, YYYYMMDDHHMMSS encoding).
	CountInDay(ctx context.Context, country string, lo, hi int64) (int, error)

	// MaxDateAdded returns the largest date_added for country within
	// [lo, hi], or ok=false if no row matches.
	MaxDateAdded(ctx context.Context, country string, lo, hi int64) (value int64, ok bool, err error)

	// UpsertMany idempotently inserts/overwrites rows keyed by
	// gkg_record_id and returns the number of rows written.
	UpsertMany(ctx context.Context, rows []Row) (int, error)

	// DeleteOlderThan deletes rows whose created_at is older than
	// now - horizon and returns the number of rows deleted. It never
	// touches rows within the horizon (I5).
	DeleteOlderThan(ctx context.Context, horizon time.Duration, now time.Time) (int, error)

	// SelectRange returns rows for country with date_added in [lo, hi],
	// ordered by date_added descending.
	SelectRange(ctx context.Context, country string, lo, hi int64) ([]Row, error)

	// Count returns the total number of rows currently stored, for
	// maintenance before/after snapshots.
	Count(ctx context.Context) (int64, error)
}
