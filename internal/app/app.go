// Package app wires the harvester's long-lived services from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/breaker"
	"github.com/JakeFAU/contact-harvester/internal/clock/system"
	"github.com/JakeFAU/contact-harvester/internal/config"
	"github.com/JakeFAU/contact-harvester/internal/dispatcher"
	"github.com/JakeFAU/contact-harvester/internal/export"
	"github.com/JakeFAU/contact-harvester/internal/extract"
	collyfetcher "github.com/JakeFAU/contact-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/contact-harvester/internal/fetcher/headless"
	"github.com/JakeFAU/contact-harvester/internal/harvest"
	"github.com/JakeFAU/contact-harvester/internal/hash/sha256"
	"github.com/JakeFAU/contact-harvester/internal/id/uuid"
	"github.com/JakeFAU/contact-harvester/internal/metrics"
	"github.com/JakeFAU/contact-harvester/internal/orchestrator"
	"github.com/JakeFAU/contact-harvester/internal/policy/ratelimit"
	memqueue "github.com/JakeFAU/contact-harvester/internal/queue/memory"
	"github.com/JakeFAU/contact-harvester/internal/publisher/memory"
	"github.com/JakeFAU/contact-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/contact-harvester/internal/storage/gcs"
	"github.com/JakeFAU/contact-harvester/internal/storage/local"
	memstore "github.com/JakeFAU/contact-harvester/internal/storage/memory"
	"github.com/JakeFAU/contact-harvester/internal/storage/postgres"
	"github.com/JakeFAU/contact-harvester/internal/storage/sqlite"
	"github.com/JakeFAU/contact-harvester/internal/worker"
)

// App holds the shared services for one process. It is built once at startup
// and closed by the command that created it.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	store     harvest.AdminStore
	breaker   *breaker.Breaker
	sessions  harvest.SessionPool
	harvester *orchestrator.Harvester
	publisher harvest.Publisher
	sink      harvest.BlobStore
	clock     harvest.Clock
	ids       harvest.IDGenerator
	closers   []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// Option overrides a collaborator New would otherwise build from config.
type Option func(*App)

// WithStore injects the record store.
func WithStore(store harvest.AdminStore) Option {
	return func(a *App) { a.store = store }
}

// WithSessions injects the rendering session pool.
func WithSessions(pool harvest.SessionPool) Option {
	return func(a *App) { a.sessions = pool }
}

// WithPublisher injects the event publisher.
func WithPublisher(p harvest.Publisher) Option {
	return func(a *App) { a.publisher = p }
}

// WithSink injects the export sink.
func WithSink(sink harvest.BlobStore) Option {
	return func(a *App) { a.sink = sink }
}

// WithClock injects the clock used for timestamps and the breaker.
func WithClock(clock harvest.Clock) Option {
	return func(a *App) { a.clock = clock }
}

// New builds every service cfg describes. It fails fast when the record store
// or the event publisher cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	a := &App{cfg: cfg, logger: logger, ids: uuid.New()}
	for _, opt := range opts {
		opt(a)
	}
	if a.clock == nil {
		a.clock = system.New()
	}

	if a.store == nil {
		store, err := a.openStore(ctx)
		if err != nil {
			return nil, err
		}
		a.store = store
		a.onClose("store", store.Close)
	}

	a.breaker = breaker.New(breaker.Config{
		Threshold:    cfg.Breaker.Threshold,
		ResetTimeout: cfg.BreakerReset(),
	}, a.clock, metrics.BreakerEvent)

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.HTTP.RPS,
		DefaultBurst: cfg.HTTP.Burst,
	})
	light := collyfetcher.New(collyfetcher.Config{
		Timeout:      config.Seconds(cfg.HTTP.TimeoutSeconds),
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
	}, limiter)

	if a.sessions == nil {
		sessions, err := a.openSessions(light)
		if err != nil {
			_ = a.shutdown()
			return nil, err
		}
		a.sessions = sessions
	}

	minDelay, maxDelay := cfg.ContactDelays()
	a.harvester = orchestrator.New(light, a.breaker, extract.New(logger), orchestrator.Config{
		TargetEmails: cfg.Harvest.TargetEmails,
		MinDelay:     minDelay,
		MaxDelay:     maxDelay,
		// A light session already fetches the home page without rendering.
		SkipLight: !cfg.Headless.Enabled,
	}, logger)

	if a.publisher == nil {
		if err := a.openPublisher(ctx); err != nil {
			_ = a.shutdown()
			return nil, err
		}
	}

	logger.Info("application services initialized",
		zap.String("store", cfg.Store.Driver),
		zap.Bool("headless", cfg.Headless.Enabled),
		zap.Int("concurrency", cfg.Harvest.Concurrency),
		zap.Bool("events", a.publisher != nil),
	)
	return a, nil
}

func (a *App) openStore(ctx context.Context) (harvest.AdminStore, error) {
	cfg := a.cfg.Store
	switch cfg.Driver {
	case "postgres":
		store, err := postgres.NewRecordStore(ctx, postgres.RecordStoreConfig{
			DSN:             cfg.DSN,
			Table:           cfg.Table,
			MaxConns:        cfg.MaxConns,
			ConnectAttempts: cfg.ConnectAttempts,
			ConnectBackoff:  a.cfg.ConnectBackoff(),
			Migrate:         cfg.Migrate,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	case "sqlite":
		store, err := sqlite.New(ctx, sqlite.Config{Path: cfg.SQLitePath, Table: cfg.Table})
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	case "memory":
		store := memstore.NewRecordStore()
		if cfg.SeedFile != "" {
			if err := seed(store, cfg.SeedFile); err != nil {
				return nil, err
			}
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}
}

func seed(store *memstore.RecordStore, path string) (err error) {
	f, err := os.Open(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return fmt.Errorf("open seed file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if _, err := store.LoadCSV(f); err != nil {
		return fmt.Errorf("load seed file %s: %w", path, err)
	}
	return nil
}

func (a *App) openSessions(light harvest.LightFetcher) (harvest.SessionPool, error) {
	if !a.cfg.Headless.Enabled {
		a.logger.Info("rendering disabled, using light sessions")
		return headless.NewLightPool(light), nil
	}
	h := a.cfg.Headless
	pool, err := headless.NewPool(headless.Config{
		MaxParallel:     a.cfg.SessionLimit(),
		Headless:        h.Headless,
		ExecPath:        h.ExecPath,
		PageLoadTimeout: config.Seconds(h.PageLoadTimeoutSeconds),
		ScriptTimeout:   config.Seconds(h.ScriptTimeoutSeconds),
		BodyWait:        config.Seconds(h.BodyWaitSeconds),
		MaxFrameDepth:   h.MaxFrameDepth,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("create rendering pool: %w", err)
	}
	return pool, nil
}

func (a *App) openPublisher(ctx context.Context) error {
	ps := a.cfg.PubSub
	switch {
	case ps.ProjectID != "":
		pub, err := pubsub.Open(ctx, ps.ProjectID, ps.Topic)
		if err != nil {
			return fmt.Errorf("open pubsub publisher: %w", err)
		}
		a.publisher = pub
		a.onClose("publisher", pub.Close)
		a.logger.Info("publishing harvest events to pubsub", zap.String("topic", ps.Topic))
	case ps.Topic != "":
		a.publisher = memory.New(memory.DefaultCapacity, a.logger)
		a.logger.Info("publishing harvest events in memory", zap.String("topic", ps.Topic))
	}
	return nil
}

// Store returns the record store.
func (a *App) Store() harvest.AdminStore { return a.store }

// Breaker returns the circuit breaker shared by every harvest in the process.
func (a *App) Breaker() *breaker.Breaker { return a.breaker }

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config { return a.cfg }

// Run harvests up to maxRecords pending records (0 means all) with
// harvest.concurrency workers. It returns when every dispatched record has
// been persisted or ctx is canceled and in-flight records have finished.
func (a *App) Run(ctx context.Context, maxRecords int) (dispatcher.Summary, error) {
	if stats, err := a.store.Stats(ctx); err == nil {
		LogStats(a.logger, "store stats before run", stats)
	} else {
		a.logger.Warn("read store stats failed", zap.Error(err))
	}

	records, err := a.store.FetchPending(ctx, maxRecords)
	if err != nil {
		metrics.ObserveStoreError("fetch_pending")
		return dispatcher.Summary{}, fmt.Errorf("fetch pending records: %w", err)
	}
	if len(records) == 0 {
		a.logger.Info("no pending records")
		return dispatcher.Summary{}, nil
	}

	runID, err := a.ids.NewID()
	if err != nil {
		return dispatcher.Summary{}, fmt.Errorf("generate run id: %w", err)
	}
	logger := a.logger.With(zap.String("run_id", runID))

	concurrency := a.cfg.Harvest.Concurrency
	if concurrency > len(records) {
		concurrency = len(records)
	}
	queue := memqueue.NewQueue(0)
	workers := make([]*worker.Worker, 0, concurrency)
	for i := 0; i < concurrency; i++ {
		workers = append(workers, worker.New(queue, a.harvester, a.sessions, a.store, a.publisher, a.clock, worker.Config{
			MaxPersistedEmails: a.cfg.Harvest.MaxPersistedEmails,
			Topic:              a.cfg.PubSub.Topic,
			RunID:              runID,
		}, logger.With(zap.Int("worker", i))))
	}

	logger.Info("starting run", zap.Int("records", len(records)), zap.Int("workers", concurrency))
	return dispatcher.New(queue, workers, logger).Run(ctx, records), nil
}

// DryRun harvests one website through the full orchestrator without reading
// or writing the record store.
func (a *App) DryRun(ctx context.Context, website, businessName string) (harvest.Result, error) {
	if _, err := harvest.NormalizeWebsite(website); err != nil {
		return a.harvester.Harvest(ctx, nil, website, businessName), nil
	}
	session, err := a.sessions.Acquire(ctx)
	if err != nil {
		return harvest.Result{}, fmt.Errorf("acquire rendering session: %w", err)
	}
	defer a.sessions.Release(session)
	return a.harvester.Harvest(ctx, session, website, businessName), nil
}

// ResetStatus returns every record with a website to pending.
func (a *App) ResetStatus(ctx context.Context) (int64, error) {
	n, err := a.store.ResetStatus(ctx)
	if err != nil {
		metrics.ObserveStoreError("reset_status")
		return 0, fmt.Errorf("reset status: %w", err)
	}
	return n, nil
}

// Exporter returns an exporter writing to the configured sink.
func (a *App) Exporter() (*export.Exporter, error) {
	if a.sink == nil {
		sink, err := a.openSink()
		if err != nil {
			return nil, err
		}
		a.sink = sink
	}
	format, err := export.ParseFormat(a.cfg.Export.Format)
	if err != nil {
		return nil, err
	}
	return export.New(a.store, a.sink, sha256.New(), a.clock, export.Config{
		Prefix: a.cfg.Export.Prefix,
		Format: format,
	}, a.logger)
}

func (a *App) openSink() (harvest.BlobStore, error) {
	cfg := a.cfg.Export
	switch cfg.Sink {
	case "local":
		sink, err := local.New(local.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("open local export sink: %w", err)
		}
		return sink, nil
	case "gcs":
		// Export runs once per command, so the client is opened lazily.
		sink, err := gcs.Open(context.Background(), gcs.Config{Bucket: cfg.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("open gcs export sink: %w", err)
		}
		a.onClose("gcs", sink.Close)
		return sink, nil
	case "memory":
		return memstore.NewBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown export sink: %s", cfg.Sink)
	}
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

func (a *App) shutdown() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.logger.Warn("close failed", zap.String("service", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Close releases every service in reverse order of construction.
func (a *App) Close() error {
	a.logger.Info("shutting down application services")
	return a.shutdown()
}

// LogStats writes s as one structured log line.
func LogStats(logger *zap.Logger, msg string, s harvest.Stats) {
	logger.Info(msg,
		zap.Int64("total", s.Total),
		zap.Int64("with_websites", s.WithWebsites),
		zap.Int64("pending", s.Pending),
		zap.Int64("found", s.Found),
		zap.Int64("checked", s.Checked),
		zap.Int64("failed", s.Failed),
		zap.Int64("skipped", s.Skipped),
		zap.Int64("with_social", s.WithSocial),
	)
}
