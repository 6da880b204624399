package httpapi

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gdelt-article-cache/internal/apierr"
	"gdelt-article-cache/internal/coordinator"
	"gdelt-article-cache/internal/store"
	"gdelt-article-cache/internal/usagecache"
	"gdelt-article-cache/internal/usagemeter"
)

const defaultCountry = "CH"

// Handlers holds the collaborators the three routes need.
type Handlers struct {
	coordinator *coordinator.Coordinator
	usage       *usagemeter.Meter
	usageCache  *usagecache.Cache
	store       store.Store
	log         *zap.Logger
	maxDaysBack int
	now         func() time.Time
}

// New builds a Handlers. maxDaysBack enforces spec §6's days_back
// upper bound (default config value 30).
func New(coord *coordinator.Coordinator, usage *usagemeter.Meter, uc *usagecache.Cache, st store.Store, log *zap.Logger, maxDaysBack int) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	if maxDaysBack <= 0 {
		maxDaysBack = 30
	}
	return &Handlers{coordinator: coord, usage: usage, usageCache: uc, store: st, log: log, maxDaysBack: maxDaysBack, now: time.Now}
}

// Register mounts the three routes onto r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/health", h.Health)
	r.GET("/api/articles", h.GetArticles)
	r.GET("/api/articles/stats", h.Stats)
}

// Health implements GET /health.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(200, gin.H{"status": "healthy"})
}

// GetArticles implements GET /api/articles?country_code=&days_back=.
func (h *Handlers) GetArticles(c *gin.Context) {
	country, daysBack, err := h.parseArticlesQuery(c)
	if err != nil {
		respondError(c, err, nil)
		return
	}

	views, partial, err := h.coordinator.Views(c.Request.Context(), country, daysBack)
	if err != nil {
		h.respondCoordinatorError(c, err)
		return
	}

	// An upstream failure with nothing cached to fall back on has no data
	// to return, so it surfaces as an internal error instead of a partial
	// success.
	if partial && len(views) == 0 {
		respondError(c, apierr.New(apierr.KindInternal, "upstream fetch failed and no cached articles are available"), nil)
		return
	}

	extra := map[string]interface{}{
		"country_code": country,
		"days_back":    daysBack,
		"total":        len(views),
	}
	if partial {
		extra["partial"] = true
	}
	respondSuccess(c, views, extra)
}

func (h *Handlers) parseArticlesQuery(c *gin.Context) (country string, daysBack int, err error) {
	country = strings.ToUpper(strings.TrimSpace(c.DefaultQuery("country_code", defaultCountry)))
	if len(country) != 2 {
		return "", 0, apierr.Validation("country_code must be exactly two letters")
	}
	for _, r := range country {
		if r < 'A' || r > 'Z' {
			return "", 0, apierr.Validation("country_code must be alphabetic")
		}
	}

	daysBackStr := c.DefaultQuery("days_back", "1")
	daysBack, convErr := strconv.Atoi(daysBackStr)
	if convErr != nil {
		return "", 0, apierr.Validation("days_back must be an integer")
	}
	if daysBack < 1 || daysBack > h.maxDaysBack {
		return "", 0, apierr.Validation("days_back must be between 1 and " + strconv.Itoa(h.maxDaysBack))
	}

	return country, daysBack, nil
}

// Stats implements GET /api/articles/stats.
func (h *Handlers) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	total, err := h.store.Count(ctx)
	if err != nil {
		respondError(c, apierr.StoreUnavailable(err), nil)
		return
	}

	stats, err := h.usageSnapshot(ctx)
	if err != nil {
		respondError(c, apierr.StoreUnavailable(err), nil)
		return
	}

	respondSuccess(c, gin.H{
		"storage": gin.H{"total_rows": total},
		"usage":   stats,
	}, nil)
}

func (h *Handlers) usageSnapshot(ctx context.Context) (usagemeter.Stats, error) {
	if h.usageCache != nil {
		if s, ok := h.usageCache.Get(ctx); ok {
			return s, nil
		}
	}

	s, err := h.usage.Snapshot(ctx, h.now())
	if err != nil {
		return usagemeter.Stats{}, err
	}
	if h.usageCache != nil {
		h.usageCache.Set(ctx, s)
	}
	return s, nil
}

// respondCoordinatorError classifies a coordinator-layer error into the
// spec §7 taxonomy. Context deadline errors become TIMEOUT; everything
// else is treated as the store being unreachable, since every
// non-timeout error the coordinator propagates originates from a store
// call (warehouse failures are already recovered as partial, never
// reaching here).
func (h *Handlers) respondCoordinatorError(c *gin.Context, err error) {
	if _, ok := apierr.As(err); ok {
		respondError(c, err, nil)
		return
	}
	if c.Request.Context().Err() == context.DeadlineExceeded {
		respondError(c, apierr.Timeout(err), nil)
		return
	}
	respondError(c, apierr.StoreUnavailable(err), nil)
}
