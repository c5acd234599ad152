// Package server builds the scraper's dependencies from config and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/kmt-crawler/internal/app"
	"github.com/JakeFAU/kmt-crawler/internal/archive"
	"github.com/JakeFAU/kmt-crawler/internal/clock/system"
	"github.com/JakeFAU/kmt-crawler/internal/config"
	"github.com/JakeFAU/kmt-crawler/internal/extractor"
	collyfetcher "github.com/JakeFAU/kmt-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/kmt-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/kmt-crawler/internal/id/uuid"
	"github.com/JakeFAU/kmt-crawler/internal/metrics"
	"github.com/JakeFAU/kmt-crawler/internal/output"
	"github.com/JakeFAU/kmt-crawler/internal/policy/ratelimit"
	gcppublisher "github.com/JakeFAU/kmt-crawler/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/kmt-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/kmt-crawler/internal/storage/local"
	pgstore "github.com/JakeFAU/kmt-crawler/internal/storage/postgres"
)

// App contains the scraper's dependencies and the resources they hold.
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	runner  *app.Runner
	metrics *http.Server
	closers []func() error
}

// Build creates the scraper's dependencies. On error every resource acquired
// so far is released.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *App, err error) {
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.closeAll()
		}
	}()

	logger.Info("building scraper dependencies",
		zap.String("archive", cfg.Archive.URL),
		zap.Bool("headless", cfg.Headless.Enabled),
		zap.Int("max_papers", cfg.Archive.MaxPapers),
	)

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
		Burst:             cfg.HTTP.Burst,
	})
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.HTTP.Timeout,
		BaseURL:   cfg.Archive.BaseURL,
	}, limiter, logger.Named("fetcher"))

	browser, err := a.setupBrowser(limiter)
	if err != nil {
		return nil, err
	}

	ext, err := extractor.New(extractor.Config{
		BaseURL:  cfg.Archive.BaseURL,
		LinkText: cfg.Archive.XMLLinkText,
	}, fetcher, logger.Named("extractor"))
	if err != nil {
		return nil, fmt.Errorf("extractor init failed: %w", err)
	}

	lister := archive.NewLister(archive.ListerConfig{
		ArchiveURL: cfg.Archive.URL,
		LinkText:   cfg.Archive.EntryLinkText,
		Wait:       cfg.Archive.IndexWait,
	}, browser, logger.Named("lister"))
	walker := archive.NewWalker(archive.WalkerConfig{
		DetailsText: cfg.Archive.DetailsLinkText,
		PageWait:    cfg.Archive.PageWait,
		MaxDetails:  cfg.Archive.MaxDetails,
	}, browser, fetcher, ext, logger.Named("walker"))
	scraper := archive.NewScraper(lister, walker, cfg.Archive.MaxPapers, logger.Named("scraper"))

	blobStore, err := a.setupStorage(ctx)
	if err != nil {
		return nil, err
	}
	exporter, err := output.NewExporter(output.Config{
		Prefix:   cfg.Output.Prefix,
		JSONName: cfg.Output.JSONName,
		CSVName:  cfg.Output.CSVName,
		SkipCSV:  !cfg.Output.CSV,
	}, blobStore, logger.Named("exporter"))
	if err != nil {
		return nil, fmt.Errorf("exporter init failed: %w", err)
	}

	deps := app.Deps{
		Scraper:  scraper,
		Exporter: exporter,
		Clock:    system.New(),
		IDs:      uuid.New(),
		Logger:   logger.Named("run"),
	}
	if cfg.Output.Summary {
		deps.Summary = os.Stdout
	}
	if err := a.setupDatabase(ctx, &deps); err != nil {
		return nil, err
	}
	if err := a.setupPublisher(ctx, &deps); err != nil {
		return nil, err
	}

	a.runner, err = app.NewRunner(deps, app.Options{
		Topic:       cfg.PubSub.TopicName,
		PrefixRunID: cfg.Output.PrefixRunID,
	})
	if err != nil {
		return nil, fmt.Errorf("runner init failed: %w", err)
	}
	return a, nil
}

func (a *App) setupBrowser(limiter collyfetcher.Waiter) (archive.Browser, error) {
	if !a.cfg.Headless.Enabled {
		a.logger.Info("using static browser session")
		pageFetcher := collyfetcher.New(collyfetcher.Config{
			UserAgent: a.cfg.HTTP.UserAgent,
			Timeout:   a.cfg.HTTP.Timeout,
			BaseURL:   a.cfg.Archive.BaseURL,
		}, limiter, a.logger.Named("page_fetcher"))
		return collyfetcher.NewBrowser(pageFetcher), nil
	}
	session, err := headlessfetcher.Open(headlessfetcher.Config{
		UserAgent:         a.cfg.HTTP.UserAgent,
		NavigationTimeout: a.cfg.Headless.NavTimeout,
		DisableImages:     a.cfg.Headless.DisableImages,
		ExecPath:          a.cfg.Headless.ExecPath,
	}, a.logger.Named("browser"))
	if err != nil {
		return nil, fmt.Errorf("browser launch failed: %w", err)
	}
	a.closers = append(a.closers, func() error {
		session.Close()
		return nil
	})
	a.logger.Info("using headless browser session", zap.Duration("nav_timeout", a.cfg.Headless.NavTimeout))
	return session, nil
}

func (a *App) setupStorage(ctx context.Context) (output.BlobStore, error) {
	if a.cfg.Output.GCSBucket != "" {
		store, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: a.cfg.Output.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.logger.Info("using GCS output", zap.String("bucket", a.cfg.Output.GCSBucket))
		return store, nil
	}
	store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Output.Dir})
	if err != nil {
		return nil, fmt.Errorf("local blob store init failed: %w", err)
	}
	a.logger.Info("using local output", zap.String("dir", store.BaseDir()))
	return store, nil
}

func (a *App) setupDatabase(ctx context.Context, deps *app.Deps) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Debug("no database dsn configured; skipping record store")
		return nil
	}
	store, err := pgstore.NewRecordStore(ctx, pgstore.RecordStoreConfig{
		DSN:         a.cfg.DB.DSN,
		TablePrefix: a.cfg.DB.TablePrefix,
		MaxConns:    a.cfg.DB.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("record store init failed: %w", err)
	}
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	if a.cfg.DB.CreateTables {
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
	}
	deps.Records = store
	a.logger.Info("record store initialized", zap.String("table_prefix", a.cfg.DB.TablePrefix))
	return nil
}

func (a *App) setupPublisher(ctx context.Context, deps *app.Deps) error {
	if a.cfg.PubSub.TopicName == "" {
		a.logger.Debug("no Pub/Sub topic configured; skipping notifications")
		return nil
	}
	pub, err := gcppublisher.Open(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.closers = append(a.closers, pub.Close)
	deps.Publisher = pub
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return nil
}

// Run starts the metrics listener when configured, performs one scrape and
// shuts everything down.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.Metrics.Addr != "" {
		a.startMetrics()
	}
	defer a.Close()

	res, err := a.runner.Run(ctx)
	if err != nil {
		return err
	}
	for _, art := range res.Artifacts {
		a.logger.Info("saved document",
			zap.String("name", art.Name),
			zap.String("uri", art.URI),
			zap.String("sha256", art.SHA256),
		)
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		a.logger.Warn("scrape interrupted; partial results saved")
	}
	return nil
}

func (a *App) startMetrics() {
	metrics.Init()
	a.metrics = &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           metrics.NewRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("metrics server started", zap.String("addr", a.cfg.Metrics.Addr))
		if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", zap.Error(err))
		}
	}()
}

// Close shuts down the metrics listener and releases every session and client.
func (a *App) Close() {
	if a.metrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.metrics.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("metrics server shutdown failed", zap.Error(err))
		}
		a.metrics = nil
	}
	a.closeAll()
	a.logger.Info("shutdown complete")
}

func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("resource close failed", zap.Error(err))
		}
	}
	a.closers = nil
}
