// Command jobpipeline runs the job-market data pipeline. The -mode flag picks
// the stage: crawl fetches listings into the bronze store, transform builds
// the silver star schema, export writes analytics CSVs, serve exposes the
// dashboard API, and schedule runs crawl cycles on a cron spec.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/tjma/job-market-pipeline/internal/config"
	"github.com/tjma/job-market-pipeline/internal/dashboard"
	"github.com/tjma/job-market-pipeline/internal/dedup"
	"github.com/tjma/job-market-pipeline/internal/harvester"
	"github.com/tjma/job-market-pipeline/internal/logging"
	"github.com/tjma/job-market-pipeline/internal/pipeline"
	"github.com/tjma/job-market-pipeline/internal/scheduler"
	"github.com/tjma/job-market-pipeline/internal/storage/mongo"
	"github.com/tjma/job-market-pipeline/internal/storage/postgres"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a config file (environment variables with the JOBPIPE prefix work too)")
		mode       = flag.String("mode", "crawl", "crawl | transform | export | serve | schedule")
		keyword    = flag.String("keyword", "", "search keyword for crawl mode")
		area       = flag.String("area", "台北市", "search area name or code for crawl mode")
		pages      = flag.Int("pages", 0, "max pages to crawl (0 uses the configured default)")
		filter     = flag.String("filter", "", "job-name substring filter for transform and export modes")
		outDir     = flag.String("out", "out", "output directory for export mode")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *mode, *keyword, *area, *pages, *filter, *outDir, logger); err != nil {
		logger.Error("run failed", zap.String("mode", *mode), zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, mode, keyword, area string, pages int, filter, outDir string, logger *zap.Logger) error {
	if pages <= 0 {
		pages = cfg.Source.MaxPages
	}

	switch mode {
	case "crawl":
		if keyword == "" {
			return fmt.Errorf("crawl mode requires -keyword")
		}
		return runCrawl(ctx, cfg, keyword, area, pages, logger)
	case "transform":
		return runTransform(ctx, cfg, filter, logger)
	case "export":
		return runExport(ctx, cfg, filter, outDir, logger)
	case "serve":
		return runServe(ctx, cfg, logger)
	case "schedule":
		return runSchedule(ctx, cfg, pages, logger)
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

func newBronzeOrchestrator(ctx context.Context, cfg config.Config, logger *zap.Logger) (*pipeline.Orchestrator, func(), error) {
	bronze, err := mongo.New(ctx, cfg.Bronze.URI, cfg.Bronze.Database, cfg.Bronze.Collection, cfg.BronzeQueryTimeout(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("bronze store: %w", err)
	}
	cleanup := func() {
		if err := bronze.Close(context.Background()); err != nil {
			logger.Warn("bronze close failed", zap.Error(err))
		}
	}

	fetcher := harvester.NewCollyFetcher(harvester.FetcherConfig{
		UserAgent: cfg.Source.UserAgent,
		Timeout:   cfg.SourceTimeout(),
	})

	var seen dedup.Cache
	if cfg.Dedup.Enabled {
		cache, err := dedup.NewRedisCache(ctx, cfg.Dedup.RedisURL, time.Duration(cfg.Dedup.TTLHours)*time.Hour)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("dedup cache: %w", err)
		}
		seen = cache
		prev := cleanup
		cleanup = func() {
			if err := cache.Close(); err != nil {
				logger.Warn("dedup close failed", zap.Error(err))
			}
			prev()
		}
	}

	h, err := harvester.New(harvester.Config{
		SearchURL:      cfg.Source.SearchURL,
		DetailURL:      cfg.Source.DetailURL,
		Referer:        cfg.Source.Referer,
		PageSize:       cfg.Source.PageSize,
		DetailDelayMin: time.Duration(cfg.Source.DetailDelayMs[0]) * time.Millisecond,
		DetailDelayMax: time.Duration(cfg.Source.DetailDelayMs[1]) * time.Millisecond,
		PageDelayMin:   time.Duration(cfg.Source.PageDelayMs[0]) * time.Millisecond,
		PageDelayMax:   time.Duration(cfg.Source.PageDelayMs[1]) * time.Millisecond,
	}, fetcher, harvester.RandomSleeper{}, seen, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("harvester: %w", err)
	}

	opts := []pipeline.Option{pipeline.WithBatchSize(cfg.Pipeline.BatchSize)}
	if seen != nil {
		opts = append(opts, pipeline.WithSeenCache(seen))
	}
	orch := pipeline.New(h, bronze, nil, logger, opts...)
	return orch, cleanup, nil
}

func runCrawl(ctx context.Context, cfg config.Config, keyword, area string, pages int, logger *zap.Logger) error {
	orch, cleanup, err := newBronzeOrchestrator(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	summary, err := orch.RunBronze(ctx, keyword, area, pages)
	if err != nil {
		return err
	}
	logger.Info("crawl finished",
		zap.String("keyword", keyword),
		zap.Int("flushes", summary.Flushes),
		zap.Int("upserted", summary.Write.Upserted),
	)
	return nil
}

func runTransform(ctx context.Context, cfg config.Config, filter string, logger *zap.Logger) error {
	bronze, err := mongo.New(ctx, cfg.Bronze.URI, cfg.Bronze.Database, cfg.Bronze.Collection, cfg.BronzeQueryTimeout(), logger)
	if err != nil {
		return fmt.Errorf("bronze store: %w", err)
	}
	defer bronze.Close(context.Background()) //nolint:errcheck

	silver, err := postgres.New(ctx, postgres.SilverStoreConfig{
		DSN:      cfg.Silver.DSN,
		MaxConns: cfg.Silver.MaxConns,
		MinConns: cfg.Silver.MinConns,
	}, logger)
	if err != nil {
		return fmt.Errorf("silver store: %w", err)
	}
	defer silver.Close()

	orch := pipeline.New(nil, bronze, silver, logger)
	return orch.RunSilver(ctx, filter)
}

func runExport(ctx context.Context, cfg config.Config, filter, outDir string, logger *zap.Logger) error {
	bronze, err := mongo.New(ctx, cfg.Bronze.URI, cfg.Bronze.Database, cfg.Bronze.Collection, cfg.BronzeQueryTimeout(), logger)
	if err != nil {
		return fmt.Errorf("bronze store: %w", err)
	}
	defer bronze.Close(context.Background()) //nolint:errcheck

	orch := pipeline.New(nil, bronze, nil, logger)
	return orch.RunExport(ctx, filter, outDir)
}

func runServe(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	pool, err := pgxpool.New(ctx, cfg.Silver.DSN)
	if err != nil {
		return fmt.Errorf("postgres pool: %w", err)
	}
	defer pool.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Dashboard.Port),
		Handler:           dashboard.NewServer(dashboard.NewRepository(pool), logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("dashboard listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("dashboard server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("dashboard shutdown: %w", err)
	}
	logger.Info("dashboard stopped")
	return nil
}

func runSchedule(ctx context.Context, cfg config.Config, pages int, logger *zap.Logger) error {
	orch, cleanup, err := newBronzeOrchestrator(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	sched, err := scheduler.New(orch, cfg.Schedule.Spec, cfg.Schedule.Keywords, cfg.Schedule.Area, pages, logger)
	if err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	sched.Stop()
	return nil
}
