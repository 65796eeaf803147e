package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/latexbuilder/internal/config"
	"git.home.luguber.info/inful/latexbuilder/internal/daemon"
	"git.home.luguber.info/inful/latexbuilder/internal/metrics"
)

// DaemonCmd implements the 'daemon' command.
type DaemonCmd struct {
	Interval    string `help:"Override daemon.interval (e.g. 30m)"`
	MetricsAddr string `name:"metrics-addr" help:"Override daemon.metrics_addr"`
}

func (d *DaemonCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root.Config, false)
	if err != nil {
		return err
	}
	d.applyOverrides(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prom.NewRegistry()
	reg.MustRegister(promcollect.NewGoCollector(), promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}))
	rec := metrics.NewPrometheusRecorder(reg)

	factory := func(ctx context.Context, cfg *config.Config) (daemon.Runner, func() error, error) {
		d.applyOverrides(cfg)
		return buildPipeline(ctx, cfg, rec)
	}

	dmn, err := daemon.New(ctx, cfg, factory, daemon.Options{ConfigPath: root.Config, Registry: reg})
	if err != nil {
		return err
	}
	slog.Info("Starting daemon mode", slog.String("config", root.Config))
	return dmn.Run(ctx)
}

// applyOverrides keeps CLI flags in force across config reloads.
func (d *DaemonCmd) applyOverrides(cfg *config.Config) {
	if d.Interval != "" {
		cfg.Daemon.Interval = d.Interval
	}
	if d.MetricsAddr != "" {
		cfg.Daemon.MetricsAddr = d.MetricsAddr
	}
}
