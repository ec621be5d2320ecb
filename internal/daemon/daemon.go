package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sololeveling/lifesystem/internal/api"
	"github.com/sololeveling/lifesystem/internal/app/engagement"
	"github.com/sololeveling/lifesystem/internal/domain"
	"github.com/sololeveling/lifesystem/internal/health"
	"github.com/sololeveling/lifesystem/internal/infra/catalog"
	"github.com/sololeveling/lifesystem/internal/infra/scheduler"
	"github.com/sololeveling/lifesystem/internal/infra/store"
)

// Sweep job names.
const (
	JobDaily  = "daily"
	JobWeekly = "weekly"
)

// Daemon is the core Life System runtime. It wires together all services.
type Daemon struct {
	Config    Config
	DB        *store.DB
	Engine    *engagement.Engine
	Server    *api.Server
	Scheduler *scheduler.Scheduler
	Health    *health.Checker
	Watcher   *catalog.Watcher

	log    *zap.Logger
	cancel context.CancelFunc
	bg     sync.WaitGroup
}

// New loads the config and creates a Daemon.
func New(log *zap.Logger) (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg, log)
}

// NewWithConfig opens the store and wires every service. Nothing runs in
// the background until Serve.
func NewWithConfig(cfg Config, log *zap.Logger) (*Daemon, error) {
	if log == nil {
		log = zap.NewNop()
	}
	engCfg, err := cfg.Engagement()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	daily, weekly, err := cfg.Schedules()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	retry, err := cfg.Retry()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	db, err := store.Open(cfg.Store())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	eng, err := engagement.New(db, engCfg, log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init engine: %w", err)
	}

	d := &Daemon{
		Config: cfg,
		DB:     db,
		Engine: eng,
		log:    log.Named("daemon"),
	}

	// Sweeps
	d.Scheduler = scheduler.New(retry, log)
	jobs := []scheduler.Job{
		{Name: JobDaily, Schedule: daily, Run: sweepJob(eng.Quests.DailySweep)},
		{Name: JobWeekly, Schedule: weekly, Run: sweepJob(eng.Quests.WeeklySweep)},
	}
	for _, j := range jobs {
		if err := d.Scheduler.Add(j); err != nil {
			db.Close()
			return nil, err
		}
	}

	// Health checker
	dataDir := ""
	if cfg.Database.Driver == "" || cfg.Database.Driver == store.DriverSQLite {
		dataDir = cfg.Store().Dir
	}
	d.Health = health.NewChecker(db, dataDir, log)
	if cfg.Scheduler.Enabled {
		d.Health.Add(health.SweepFreshness(d.Scheduler, JobDaily, 26*time.Hour))
		d.Health.Add(health.SweepFreshness(d.Scheduler, JobWeekly, 8*24*time.Hour))
	}

	// API server
	srv := api.NewServer(eng, log)
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}
	srv.SetCORSOrigins(cfg.API.CORSOrigins)
	srv.SetHealth(d.Health)
	srv.SetScheduler(d.Scheduler)
	srv.SetCatalogReloader(d.ReloadCatalog)
	d.Server = srv

	return d, nil
}

// sweepJob adapts a sweep to a scheduler job. The sweep logs its own report.
func sweepJob(sweep func(context.Context) (*domain.SweepReport, error)) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := sweep(ctx)
		return err
	}
}

// ReloadCatalog loads the configured seed file (or the built-in catalog)
// and makes it the active catalog. Templates missing from it are retired.
func (d *Daemon) ReloadCatalog(ctx context.Context) (int, error) {
	templates, err := catalog.Load(d.Config.Catalog.SeedFile)
	if err != nil {
		return 0, err
	}
	return d.Engine.Catalog.Replace(ctx, templates)
}

// Serve seeds the catalog, starts the background services and the HTTP
// server, and blocks until ctx is cancelled or a signal arrives.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	defer cancel()

	n, err := d.ReloadCatalog(ctx)
	if err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	d.log.Info("catalog ready", zap.Int("templates", n))

	if d.Config.Catalog.Watch && d.Config.Catalog.SeedFile != "" {
		w, err := catalog.NewWatcher(d.Config.Catalog.SeedFile, func(ctx context.Context, templates []domain.QuestTemplate) error {
			_, err := d.Engine.Catalog.Replace(ctx, templates)
			return err
		}, d.log)
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		d.Watcher = w
	}

	if d.Config.Scheduler.Enabled {
		d.Scheduler.Start(ctx)
		// Catch up on sweeps missed while the daemon was down. Both are
		// idempotent for users that already hold quests.
		d.bg.Go(func() {
			for _, job := range []string{JobDaily, JobWeekly} {
				if err := d.Scheduler.RunNow(ctx, job); err != nil && !errors.Is(err, context.Canceled) {
					d.log.Warn("startup sweep failed", zap.String("job", job), zap.Error(err))
				}
			}
		})
	}

	d.bg.Go(func() { d.Health.Run(ctx) })

	addr := d.Config.Addr()
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		select {
		case <-sigCh:
		case <-ctx.Done():
		}
		d.log.Info("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
		cancel()
	}()

	d.log.Info("serving",
		zap.String("addr", "http://"+addr),
		zap.Bool("metrics", d.Config.Telemetry.Prometheus),
		zap.Bool("scheduler", d.Config.Scheduler.Enabled))

	err = httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		cancel()
		<-shutdownDone
		return multierr.Append(err, d.Close())
	}
	<-shutdownDone
	return d.Close()
}

// Close stops background services and releases the store.
func (d *Daemon) Close() error {
	if d.cancel != nil {
		d.cancel()
	}
	var err error
	if d.Watcher != nil {
		err = multierr.Append(err, d.Watcher.Close())
		d.Watcher = nil
	}
	if d.Scheduler != nil {
		d.Scheduler.Stop()
	}
	d.bg.Wait()
	if d.DB != nil {
		err = multierr.Append(err, d.DB.Close())
		d.DB = nil
	}
	return err
}
