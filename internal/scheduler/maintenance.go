package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Store is the subset of store.Store the maintenance job needs.
type Store interface {
	DeleteOlderThan(ctx context.Context, horizon time.Duration, now time.Time) (int, error)
	Count(ctx context.Context) (int64, error)
}

// WarmFunc pre-warms one country's recent window; production wiring
// adapts coordinator.Coordinator.GetArticles to this shape, returning
// the row count fetched for logging.
type WarmFunc func(ctx context.Context, country string, daysBack int) (rowCount int, err error)

// NewMaintenanceJob builds the MaintenanceScheduler's daily job (spec
// §4.7): delete rows older than retention, log before/after storage
// counts, then sequentially pre-warm each configured country for
// retentionDays-1 days back. One country's failure is logged and does
// not abort the loop — grounded on the original implementation's
// cleanup_old_articles, which logs a before/after storage snapshot and
// never lets one failure abort the nightly pass.
func NewMaintenanceJob(st Store, warm WarmFunc, log *zap.Logger, retention time.Duration, countries []string, now func() time.Time) Job {
	if log == nil {
		log = zap.NewNop()
	}
	return func(ctx context.Context) error {
		before, err := st.Count(ctx)
		if err != nil {
			log.Error("maintenance: count before retention failed", zap.Error(err))
		}

		deleted, err := st.DeleteOlderThan(ctx, retention, now())
		if err != nil {
			log.Error("maintenance: delete_older_than failed", zap.Error(err))
		}

		after, err := st.Count(ctx)
		if err != nil {
			log.Error("maintenance: count after retention failed", zap.Error(err))
		}

		log.Info("maintenance: retention pass complete",
			zap.Int("deleted", deleted),
			zap.Int64("rows_before", before),
			zap.Int64("rows_after", after),
		)

		daysBack := int(retention/(24*time.Hour)) - 1
		if daysBack < 0 {
			daysBack = 0
		}

		for _, country := range countries {
			n, err := warm(ctx, country, daysBack)
			if err != nil {
				log.Error("maintenance: warmup failed for country",
					zap.String("country", country), zap.Error(err))
				continue
			}
			log.Info("maintenance: warmed country",
				zap.String("country", country), zap.Int("rows", n))
		}

		return nil
	}
}
