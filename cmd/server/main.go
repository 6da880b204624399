// Command server runs the GDELT article cache HTTP service: it wires
// the Store, WarehouseClient, Coordinator, and MaintenanceScheduler
// together and serves the three routes from spec §6. Grounded on the
// teacher's cmd/main.go bootstrap-then-graceful-shutdown shape, trimmed
// to this service's much smaller dependency graph.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"gdelt-article-cache/internal/config"
	"gdelt-article-cache/internal/coordinator"
	"gdelt-article-cache/internal/coverage"
	"gdelt-article-cache/internal/freshness"
	"gdelt-article-cache/internal/gdeltclock"
	"gdelt-article-cache/internal/httpapi"
	"gdelt-article-cache/internal/logging"
	"gdelt-article-cache/internal/metrics"
	"gdelt-article-cache/internal/middleware"
	"gdelt-article-cache/internal/scheduler"
	"gdelt-article-cache/internal/singleflight"
	"gdelt-article-cache/internal/store"
	"gdelt-article-cache/internal/usagecache"
	"gdelt-article-cache/internal/usagemeter"
	"gdelt-article-cache/internal/warehouse"
	"golang.org/x/time/rate"
)

func main() {
	logging.Init()
	log := logging.L()
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}

	gormStore := store.NewGormStore(db)
	if err := gormStore.Migrate(); err != nil {
		log.Fatal("article store migration failed", zap.Error(err))
	}
	if err := usagemeter.Migrate(db); err != nil {
		log.Fatal("usage meter migration failed", zap.Error(err))
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal("invalid REDIS_URL", zap.Error(err))
		}
		redisClient = redis.NewClient(opts)
	}

	clock := gdeltclock.NewSystem(time.UTC)
	flight := singleflight.New()
	cov := coverage.New(gormStore, log, cfg.ExpectedPerDay, cfg.CoverageRatio)
	fr := freshness.New(gormStore, clock, cfg.TodayTTL)
	usage := usagemeter.New(db, log, cfg.WarehouseBudgetBytes, usagemeter.DefaultAvgBytesPerQuery)
	uc := usagecache.New(redisClient, 15*time.Second)

	whEndpoint := os.Getenv("WAREHOUSE_ENDPOINT")
	wh := warehouse.NewHTTPClient(whEndpoint, nil)

	coord := coordinator.New(clock, gormStore, wh, cov, fr, flight, usage, log, coordinator.Config{
		ExpectedPerDay:   cfg.ExpectedPerDay,
		HistoricalFanout: cfg.HistoricalFanout,
		FetchDeadline:    cfg.RequestTimeout,
	})

	usageGauges := metrics.NewUsageGaugeCollector(usage, log, time.Minute)

	sched := scheduler.New(clock, log)
	sched.Register("retention", cfg.MaintenanceHour, cfg.MaintenanceMinute, scheduler.NewMaintenanceJob(
		gormStore,
		func(ctx context.Context, country string, daysBack int) (int, error) {
			rows, _, err := coord.GetArticles(ctx, country, daysBack)
			return len(rows), err
		},
		log,
		time.Duration(cfg.RetentionDays)*24*time.Hour,
		cfg.WarmupCountries,
		time.Now,
	))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	usageGauges.Start(ctx)
	sched.Start(ctx)

	handlers := httpapi.New(coord, usage, uc, gormStore, log, cfg.MaxDaysBack)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(
		middleware.Recovery(log),
		middleware.RequestID(),
		middleware.Logger(),
		middleware.CORS(),
		middleware.Security(),
		middleware.RateLimit(middleware.NewIPRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)),
		middleware.Timeout(cfg.RequestTimeout),
		metrics.PrometheusMiddleware(),
	)
	router.GET("/metrics", gin.WrapH(metrics.PrometheusHandlerHTTP()))
	handlers.Register(router)

	httpServer := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.Int("port", cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Fatal("server failed to start", zap.Error(err))
	case sig := <-quit:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server shutdown error", zap.Error(err))
	}
	sched.Stop()
	usageGauges.Stop()
	log.Info("graceful shutdown complete")
}
