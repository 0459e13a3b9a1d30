// Package server builds the application's dependency graph and runs the
// long-lived HTTP and scheduler loops.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitescan/internal/alerts"
	"github.com/JakeFAU/sitescan/internal/api"
	"github.com/JakeFAU/sitescan/internal/archive"
	"github.com/JakeFAU/sitescan/internal/catalog"
	"github.com/JakeFAU/sitescan/internal/clock/system"
	"github.com/JakeFAU/sitescan/internal/config"
	"github.com/JakeFAU/sitescan/internal/connectors"
	"github.com/JakeFAU/sitescan/internal/connectors/chsbids"
	"github.com/JakeFAU/sitescan/internal/connectors/chspermits"
	"github.com/JakeFAU/sitescan/internal/connectors/samgov"
	"github.com/JakeFAU/sitescan/internal/connectors/scbo"
	"github.com/JakeFAU/sitescan/internal/delivery"
	"github.com/JakeFAU/sitescan/internal/delivery/email"
	"github.com/JakeFAU/sitescan/internal/delivery/sms"
	"github.com/JakeFAU/sitescan/internal/fetcher"
	collyfetcher "github.com/JakeFAU/sitescan/internal/fetcher/colly"
	"github.com/JakeFAU/sitescan/internal/fetcher/retry"
	"github.com/JakeFAU/sitescan/internal/geocode"
	"github.com/JakeFAU/sitescan/internal/id/uuid"
	"github.com/JakeFAU/sitescan/internal/metrics"
	"github.com/JakeFAU/sitescan/internal/opportunity"
	"github.com/JakeFAU/sitescan/internal/policy/ratelimit"
	"github.com/JakeFAU/sitescan/internal/publisher"
	gcppublisher "github.com/JakeFAU/sitescan/internal/publisher/pubsub"
	"github.com/JakeFAU/sitescan/internal/scan"
	"github.com/JakeFAU/sitescan/internal/scheduler"
	gcsstorage "github.com/JakeFAU/sitescan/internal/storage/gcs"
	localstorage "github.com/JakeFAU/sitescan/internal/storage/local"
	memorystorage "github.com/JakeFAU/sitescan/internal/storage/memory"
	pgstore "github.com/JakeFAU/sitescan/internal/storage/postgres"
)

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	store     opportunity.Store
	pg        *pgstore.Store
	registry  *connectors.Registry
	runner    *scheduler.Runner
	apiServer *api.Server
	publisher publisher.Publisher

	geoCache        *geocode.RedisCache
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
	storage         *storage.Client
}

// Build creates the application's dependencies. logger must not be nil.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	metrics.Init()
	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.Duration("scan_interval", cfg.Scan.Interval),
		zap.String("storage_backend", cfg.Storage.Backend),
	)

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	clock := system.New(loc)
	ids := uuid.New()

	if err := app.setupStore(ctx); err != nil {
		app.Close(ctx)
		return nil, err
	}
	if err := app.setupRegistry(ctx); err != nil {
		app.Close(ctx)
		return nil, err
	}
	blobStore, err := app.setupBlobStore(ctx)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}
	if err := app.setupPublisher(ctx); err != nil {
		app.Close(ctx)
		return nil, err
	}

	opts := []scan.Option{scan.WithLogger(logger)}
	if blobStore != nil {
		opts = append(opts, scan.WithArchiver(archive.New(blobStore, cfg.Storage.Prefix)))
	}
	orchestrator := scan.New(app.store, app.registry, clock, ids, opts...)

	engine := alerts.NewEngine(app.store, app.setupDelivery(), clock, alerts.Config{
		ScanInterval: cfg.Scan.Interval,
		Slack:        cfg.Scan.AlertSlack,
	}, logger)

	app.runner = scheduler.NewRunner(orchestrator, engine, app.publisher, clock, logger)
	app.apiServer = api.NewServer(api.Deps{
		Runner:   app.runner,
		Sources:  app.registry,
		Store:    app.store,
		Catalog:  catalog.New(app.store),
		Ready:    app.ready,
		Keywords: cfg.Scan.Keywords,
		State:    cfg.Scan.State,
	}, api.AuthConfig{Enabled: cfg.Auth.Enabled, APIKey: cfg.Auth.APIKey}, logger)

	return app, nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Runner returns the cycle runner shared by the scheduler, the API and the CLI.
func (a *App) Runner() *scheduler.Runner { return a.runner }

// Registry returns the registered sources.
func (a *App) Registry() *connectors.Registry { return a.registry }

// Store returns the record store.
func (a *App) Store() opportunity.Store { return a.store }

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler { return a.apiServer.Handler() }

// CycleRequest is the request used by scheduled cycles.
func (a *App) CycleRequest() scheduler.CycleRequest {
	return scheduler.CycleRequest{Scan: scan.Request{Keywords: a.cfg.Scan.Keywords, State: a.cfg.Scan.State}}
}

// Serve runs the HTTP server and the scheduler until ctx is canceled.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	sched, err := scheduler.New(a.runner, scheduler.Config{
		Interval:   a.cfg.Scan.Interval,
		RunOnStart: a.cfg.Scan.RunOnStart,
		Request:    a.CycleRequest(),
	}, a.logger)
	if err != nil {
		return fmt.Errorf("scheduler init failed: %w", err)
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	sched.Stop(shutdownCtx)

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close releases every external resource. It is safe to call on a partially built App.
func (a *App) Close(_ context.Context) {
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.geoCache != nil {
		if err := a.geoCache.Close(); err != nil {
			a.logger.Warn("geocode cache close failed", zap.Error(err))
		}
	}
	if a.store != nil {
		a.store.Close()
	}
	a.logger.Info("shutdown complete")
}

func (a *App) ready(ctx context.Context) error {
	if a.pg == nil {
		return nil
	}
	return a.pg.Ping(ctx)
}

func (a *App) setupStore(ctx context.Context) error {
	if a.cfg.Database.DSN == "" {
		a.logger.Warn("no database DSN configured, using in-memory record store")
		a.store = memorystorage.NewStore()
		return nil
	}
	pg, err := pgstore.Open(ctx, pgstore.Config{
		DSN:             a.cfg.Database.DSN,
		MaxConns:        a.cfg.Database.MaxConns,
		MinConns:        a.cfg.Database.MinConns,
		MaxConnLifetime: a.cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("record store init failed: %w", err)
	}
	a.pg = pg
	a.store = pg
	if a.cfg.Database.AutoMigrate {
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("record store migrate failed: %w", err)
		}
		a.logger.Info("record store schema applied")
	}
	a.logger.Info("postgres record store initialized")
	return nil
}

func (a *App) setupRegistry(ctx context.Context) error {
	f := collyfetcher.New(collyfetcher.Config{
		UserAgent:     a.cfg.HTTP.UserAgent,
		RespectRobots: a.cfg.HTTP.RespectRobots,
		Timeout:       a.cfg.HTTP.Timeout,
	})
	a.logger.Info("using colly fetcher",
		zap.String("user_agent", a.cfg.HTTP.UserAgent),
		zap.Float64("host_rps", a.cfg.HTTP.HostRPS),
	)

	var geocoder connectors.Geocoder
	if a.cfg.Geocode.Enabled {
		g, err := a.setupGeocoder(ctx, f)
		if err != nil {
			return err
		}
		geocoder = g
	}

	policy := retry.DefaultPolicy()
	if a.cfg.HTTP.MaxAttempts > 0 {
		policy.MaxAttempts = a.cfg.HTTP.MaxAttempts
	}
	throttled := ratelimit.Wrap(f, ratelimit.New(ratelimit.Config{
		DefaultRPS:   a.cfg.HTTP.HostRPS,
		DefaultBurst: a.cfg.HTTP.HostBurst,
	}))
	sourceFetcher := retry.Wrap(throttled, policy, a.logger)
	registry, err := connectors.NewRegistry(geocoder, a.logger, a.sources(sourceFetcher)...)
	if err != nil {
		return fmt.Errorf("connector registry init failed: %w", err)
	}
	a.registry = registry
	a.logger.Info("connectors registered", zap.Strings("sources", registry.IDs()))
	return nil
}

func (a *App) setupGeocoder(ctx context.Context, f fetcher.Fetcher) (*geocode.Geocoder, error) {
	opts := []geocode.Option{geocode.WithLogger(a.logger)}
	if a.cfg.Geocode.RedisURL != "" {
		cache, err := geocode.NewRedisCache(ctx, a.cfg.Geocode.RedisURL, a.cfg.Geocode.RedisTTL)
		if err != nil {
			return nil, fmt.Errorf("geocode cache init failed: %w", err)
		}
		a.geoCache = cache
		opts = append(opts, geocode.WithSecondTier(cache))
		a.logger.Info("geocode redis cache enabled")
	}
	return geocode.New(geocode.Config{
		BaseURL:     a.cfg.Geocode.BaseURL,
		UserAgent:   a.cfg.HTTP.UserAgent,
		Country:     a.cfg.Geocode.Country,
		MinInterval: a.cfg.Geocode.MinInterval,
	}, f, opts...), nil
}

func (a *App) sources(f fetcher.Fetcher) []connectors.Source {
	src := a.cfg.Sources
	var out []connectors.Source
	if src.SAMGov.Enabled {
		out = append(out, samgov.New(samgov.Config{
			APIKey:   src.SAMGov.APIKey,
			BaseURL:  src.SAMGov.BaseURL,
			NAICS:    src.SAMGov.NAICS,
			DaysBack: src.SAMGov.DaysBack,
			Limit:    src.SAMGov.Limit,
		}, f, a.logger).Source())
	}
	if src.CharlestonPermits.Enabled {
		out = append(out, chspermits.New(chspermits.Config{
			URL:         src.CharlestonPermits.URL,
			RecordCount: src.CharlestonPermits.RecordCount,
		}, f, a.logger).Source())
	}
	if src.SCBO.Enabled {
		out = append(out, scbo.New(scbo.Config{
			BaseURL:  src.SCBO.BaseURL,
			DaysBack: src.SCBO.DaysBack,
		}, f, a.logger).Source())
	}
	if src.CharlestonBids.Enabled {
		out = append(out, chsbids.New(chsbids.Config{URL: src.CharlestonBids.URL}, f, a.logger).Source())
	}
	return out
}

func (a *App) setupBlobStore(ctx context.Context) (archive.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case "gcs":
		a.logger.Info("using GCS archive backend", zap.String("bucket", a.cfg.Storage.GCSBucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.storage = client
		blobStore, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return blobStore, nil
	case "local":
		a.logger.Info("using local archive backend", zap.String("path", a.cfg.Storage.LocalDir))
		blobStore, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return blobStore, nil
	case "memory":
		a.logger.Info("using in-memory archive backend")
		return memorystorage.NewBlobStore(), nil
	default:
		a.logger.Info("raw payload archiving disabled")
		return nil, nil
	}
}

func (a *App) setupPublisher(ctx context.Context) error {
	if a.cfg.PubSub.TopicName == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Info("no Pub/Sub topic configured, cycle events are not published")
		a.publisher = publisher.Nop{}
		return nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubClient = client
	a.pubsubPublisher = gcppublisher.New(client.Publisher(a.cfg.PubSub.TopicName))
	a.publisher = a.pubsubPublisher
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return nil
}

func (a *App) setupDelivery() delivery.Router {
	var router delivery.Router
	mailer, err := email.New(email.Config{
		Host:     a.cfg.SMTP.Host,
		Port:     a.cfg.SMTP.Port,
		Username: a.cfg.SMTP.Username,
		Password: a.cfg.SMTP.Password,
		From:     a.cfg.SMTP.From,
	})
	if err != nil {
		a.logger.Warn("email delivery not configured", zap.Error(err))
	} else {
		router.Email = mailer
	}
	texter, err := sms.New(sms.Config{
		AccountSID: a.cfg.Twilio.AccountSID,
		AuthToken:  a.cfg.Twilio.AuthToken,
		From:       a.cfg.Twilio.From,
		BaseURL:    a.cfg.Twilio.BaseURL,
	}, nil)
	if err != nil {
		a.logger.Warn("sms delivery not configured", zap.Error(err))
	} else {
		router.SMS = texter
	}
	return router
}
