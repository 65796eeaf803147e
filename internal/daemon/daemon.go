// Package daemon runs the pipeline periodically, reloads it when the
// configuration file changes and serves metrics and health over HTTP.
package daemon

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/latexbuilder/internal/config"
	"git.home.luguber.info/inful/latexbuilder/internal/errors"
	"git.home.luguber.info/inful/latexbuilder/internal/logfields"
	"git.home.luguber.info/inful/latexbuilder/internal/pipeline"
)

// ErrRunInProgress is returned by RunOnce when another run holds the daemon.
var ErrRunInProgress = errors.NewError(errors.CategoryDaemon, "a run is already in progress").Build()

// Runner executes one pipeline pass.
type Runner interface {
	Run(ctx context.Context, source pipeline.Source) (*pipeline.Report, error)
}

// Factory builds a Runner for cfg. release frees whatever the runner holds
// (engine, stores) and is called once the runner is replaced or the daemon stops.
type Factory func(ctx context.Context, cfg *config.Config) (runner Runner, release func() error, err error)

// Options configures a Daemon.
type Options struct {
	// ConfigPath is watched for changes when daemon.watch_config is set.
	ConfigPath string
	// Registry is served on /metrics. nil serves the default gatherer.
	Registry *prom.Registry
	// Loader reloads configuration; defaults to config.Load.
	Loader func(path string) (*config.Config, error)
	// ReloadDebounce delays reloads after file events; defaults to 2s.
	ReloadDebounce time.Duration
}

// Daemon owns the current runner and the periodic schedule.
type Daemon struct {
	opts    Options
	factory Factory

	mu      sync.RWMutex
	cfg     *config.Config
	runner  Runner
	release func() error

	runMu     sync.Mutex
	runs      atomic.Int64
	last      atomic.Pointer[pipeline.Report]
	startedAt time.Time

	scheduler *Scheduler
	watcher   *ConfigWatcher
	server    *http.Server
}

// New builds the first runner from cfg.
func New(ctx context.Context, cfg *config.Config, factory Factory, opts Options) (*Daemon, error) {
	if opts.Loader == nil {
		opts.Loader = config.Load
	}
	if opts.ReloadDebounce <= 0 {
		opts.ReloadDebounce = 2 * time.Second
	}
	runner, release, err := factory(ctx, cfg)
	if err != nil {
		return nil, err
	}
	sched, err := NewScheduler()
	if err != nil {
		if release != nil {
			_ = release()
		}
		return nil, err
	}
	return &Daemon{
		opts:      opts,
		factory:   factory,
		cfg:       cfg,
		runner:    runner,
		release:   release,
		scheduler: sched,
		startedAt: time.Now(),
	}, nil
}

// Config returns the active configuration.
func (d *Daemon) Config() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// LastReport returns the report of the most recent finished run.
func (d *Daemon) LastReport() *pipeline.Report {
	return d.last.Load()
}

// Run starts the schedule, watcher and HTTP server, and blocks until ctx is done.
func (d *Daemon) Run(ctx context.Context) error {
	cfg := d.Config()

	if cfg.Daemon.MetricsAddr != "" {
		if err := d.startHTTP(cfg.Daemon.MetricsAddr); err != nil {
			return err
		}
	}

	if err := d.scheduler.SchedulePeriodic(cfg.Daemon.IntervalDuration(), true, func() { d.scheduledRun(ctx) }); err != nil {
		return err
	}
	d.scheduler.Start()

	if cfg.Daemon.WatchConfig && d.opts.ConfigPath != "" {
		w, err := NewConfigWatcher(d.opts.ConfigPath, d.opts.ReloadDebounce, d.reloadFromDisk)
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		d.watcher = w
	}

	slog.Info("Daemon started", slog.Duration("interval", cfg.Daemon.IntervalDuration()), slog.String("metrics_addr", cfg.Daemon.MetricsAddr))
	<-ctx.Done()
	return d.Stop()
}

// Stop shuts every component down and releases the active runner.
func (d *Daemon) Stop() error {
	slog.Info("Stopping daemon")
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if d.watcher != nil {
		keep(d.watcher.Stop())
	}
	keep(d.scheduler.Stop())
	if d.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		keep(d.server.Shutdown(shutdownCtx))
		cancel()
	}

	d.runMu.Lock()
	defer d.runMu.Unlock()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.release != nil {
		keep(d.release())
		d.release = nil
	}
	return firstErr
}

func (d *Daemon) scheduledRun(ctx context.Context) {
	if _, err := d.RunOnce(ctx, pipeline.SourceSchedule); err != nil {
		slog.Warn("Scheduled run did not complete", logfields.Error(err))
	}
}

// RunOnce executes one pass unless another is in progress.
func (d *Daemon) RunOnce(ctx context.Context, source pipeline.Source) (*pipeline.Report, error) {
	if !d.runMu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer d.runMu.Unlock()

	d.mu.RLock()
	runner := d.runner
	d.mu.RUnlock()

	report, err := runner.Run(ctx, source)
	d.runs.Add(1)
	if report != nil {
		d.last.Store(report)
	}
	return report, err
}

func (d *Daemon) reloadFromDisk(ctx context.Context) error {
	cfg, err := d.opts.Loader(d.opts.ConfigPath)
	if err != nil {
		return err
	}
	return d.ReloadConfig(ctx, cfg)
}

// ReloadConfig validates cfg, swaps in a runner built from it and starts a
// run. The previous runner is released after any in-flight run settles.
func (d *Daemon) ReloadConfig(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	runner, release, err := d.factory(ctx, cfg)
	if err != nil {
		return err
	}

	d.runMu.Lock()
	d.mu.Lock()
	oldRelease := d.release
	prevInterval := d.cfg.Daemon.IntervalDuration()
	d.cfg, d.runner, d.release = cfg, runner, release
	d.mu.Unlock()
	d.runMu.Unlock()

	if oldRelease != nil {
		if err := oldRelease(); err != nil {
			slog.Warn("Failed to release previous runner", logfields.Error(err))
		}
	}
	slog.Info("Configuration reloaded")

	if interval := cfg.Daemon.IntervalDuration(); interval != prevInterval {
		if err := d.scheduler.SchedulePeriodic(interval, false, func() { d.scheduledRun(ctx) }); err != nil {
			return err
		}
	}

	go func() {
		if _, err := d.RunOnce(ctx, pipeline.SourceReload); err != nil {
			slog.Warn("Run after reload did not complete", logfields.Error(err))
		}
	}()
	return nil
}
