package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore is the production ArticleStore, grounded on the teacher's
// usage.Tracker / budget.BudgetEnforcer pattern of raw-SQL aggregate
// queries plus gorm.io/gorm for everything else. The server runs it
// against PostgreSQL (gorm.io/driver/postgres); the test suite does not
// exercise it and tests the Store contract through Memory instead.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an already-connected *gorm.DB.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates the articles table and its indexes.
func (s *GormStore) Migrate() error {
	return s.db.AutoMigrate(&Row{})
}

func (s *GormStore) CountInDay(ctx context.Context, country string, lo, hi int64) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Row{}).
		Where("country_code = ? AND date_added BETWEEN ? AND ?", country, lo, hi).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("store: count_in_day: %w", err)
	}
	return int(count), nil
}

func (s *GormStore) MaxDateAdded(ctx context.Context, country string, lo, hi int64) (int64, bool, error) {
	var result struct {
		Max *int64
	}
	err := s.db.WithContext(ctx).Model(&Row{}).
		Select("MAX(date_added) as max").
		Where("country_code = ? AND date_added BETWEEN ? AND ?", country, lo, hi).
		Scan(&result).Error
	if err != nil {
		return 0, false, fmt.Errorf("store: max_date_added: %w", err)
	}
	if result.Max == nil {
		return 0, false, nil
	}
	return *result.Max, true, nil
}

// UpsertMany inserts rows, overwriting on conflict with gkg_record_id
// (I1: at most one row per id). created_at is set-once: the clause only
// updates country_code/date_added/payload, never created_at, so retention
// eligibility (I5) is unaffected by a re-fetch of an already-stored day.
func (s *GormStore) UpsertMany(ctx context.Context, rows []Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "gkg_record_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"country_code", "date_added", "payload"}),
	}).Create(&rows)
	if result.Error != nil {
		return 0, fmt.Errorf("store: upsert_many: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

func (s *GormStore) DeleteOlderThan(ctx context.Context, horizon time.Duration, now time.Time) (int, error) {
	cutoff := now.Add(-horizon)
	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&Row{})
	if result.Error != nil {
		return 0, fmt.Errorf("store: delete_older_than: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

func (s *GormStore) SelectRange(ctx context.Context, country string, lo, hi int64) ([]Row, error) {
	var rows []Row
	err := s.db.WithContext(ctx).
		Where("country_code = ? AND date_added BETWEEN ? AND ?", country, lo, hi).
		Order("date_added DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: select_range: %w", err)
	}
	return rows, nil
}

func (s *GormStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Row{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return count, nil
}
