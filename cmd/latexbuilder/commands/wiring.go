package commands

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/latexbuilder/internal/compile"
	"git.home.luguber.info/inful/latexbuilder/internal/config"
	"git.home.luguber.info/inful/latexbuilder/internal/eventstore"
	"git.home.luguber.info/inful/latexbuilder/internal/forge"
	"git.home.luguber.info/inful/latexbuilder/internal/git"
	"git.home.luguber.info/inful/latexbuilder/internal/latex"
	"git.home.luguber.info/inful/latexbuilder/internal/logfields"
	"git.home.luguber.info/inful/latexbuilder/internal/metrics"
	"git.home.luguber.info/inful/latexbuilder/internal/pipeline"
	"git.home.luguber.info/inful/latexbuilder/internal/resolver"
	"git.home.luguber.info/inful/latexbuilder/internal/retry"
	"git.home.luguber.info/inful/latexbuilder/internal/storage"
	"git.home.luguber.info/inful/latexbuilder/internal/trigger"
	"git.home.luguber.info/inful/latexbuilder/internal/upload"
)

func newResolver(cfg *config.Config) (*resolver.Resolver, error) {
	src := cfg.ConfigSource
	client, err := forge.NewGitHubContentClient(src.APIURL, src.Token, src.TimeoutDuration(),
		forge.WithRetryPolicy(retry.FromConfig(src.Retry)))
	if err != nil {
		return nil, err
	}
	return resolver.New(client, src), nil
}

// newEngine constructs the LaTeX engine. Failure here is fatal for the command.
func newEngine(cfg *config.Config) (*latex.Engine, error) {
	cloner := git.NewClient(
		git.WithToken(cfg.ConfigSource.Token),
		git.WithDepth(cfg.Engine.ShallowDepth),
		git.WithRetryPolicy(retry.FromConfig(cfg.Engine.Retry)),
	)
	return latex.New(latex.Options{
		DownloadsDir: cfg.Engine.DownloadsDir,
		StorageDir:   cfg.Engine.StorageDir,
		CacheSize:    cfg.Engine.CacheSize,
		Cloner:       cloner,
	})
}

// buildPipeline assembles every stage from cfg. release closes the engine and
// the history store and must be called once the pipeline is no longer used.
func buildPipeline(_ context.Context, cfg *config.Config, rec metrics.Recorder) (*pipeline.Pipeline, func() error, error) {
	res, err := newResolver(cfg)
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.New(cfg.Storage)
	if err != nil {
		return nil, nil, err
	}
	trig, err := trigger.New(cfg.Trigger)
	if err != nil {
		return nil, nil, err
	}

	eng, err := newEngine(cfg)
	if err != nil {
		return nil, nil, err
	}

	opts := []pipeline.Option{
		pipeline.WithTrigger(trig, cfg.Trigger.Policy),
		pipeline.WithMetrics(rec),
	}

	var history *eventstore.SQLiteStore
	if cfg.History.Path != "" {
		history, err = eventstore.NewSQLiteStore(cfg.History.Path)
		if err != nil {
			_ = eng.Close()
			return nil, nil, err
		}
		opts = append(opts, pipeline.WithHistory(eventstore.NewRecorder(history)))
	}

	p := pipeline.New(
		res,
		compile.NewCoordinator(eng, compile.OptionsFromConfig(cfg.Compile), rec),
		upload.NewDispatcher(store, cfg.Storage.TimeoutDuration(), rec),
		opts...,
	)

	release := func() error {
		err := eng.Close()
		if history != nil {
			if herr := history.Close(); herr != nil {
				slog.Warn("Failed to close history store", logfields.Error(herr))
			}
		}
		return err
	}
	return p, release, nil
}
