package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"git.home.luguber.info/inful/latexbuilder/internal/errors"
	"git.home.luguber.info/inful/latexbuilder/internal/logfields"
	"git.home.luguber.info/inful/latexbuilder/internal/metrics"
	"git.home.luguber.info/inful/latexbuilder/internal/pipeline"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	JSON   bool `help:"Print the run report as JSON"`
	Strict bool `help:"Exit non-zero when the run is only partially successful"`
}

func (b *BuildCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root.Config, false)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	p, release, err := buildPipeline(ctx, cfg, metrics.NoopRecorder{})
	if err != nil {
		return err
	}
	defer func() {
		if err := release(); err != nil {
			slog.Warn("Failed to release engine", logfields.Error(err))
		}
	}()

	report, runErr := p.Run(ctx, pipeline.SourceCLI)
	if err := printReport(os.Stdout, report, b.JSON); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	if b.Strict && report.Status != pipeline.StatusSuccess {
		return errors.NewError(errors.CategoryCompile, "run finished with status "+string(report.Status)).
			WithContext("run_id", report.RunID).
			Build()
	}
	return nil
}

func printReport(w io.Writer, r *pipeline.Report, asJSON bool) error {
	if r == nil {
		return nil
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	fmt.Fprintf(w, "Run %s: %s (%s)\n", r.RunID, r.Status, r.Duration().Round(time.Millisecond))
	if r.FailedStage != "" {
		fmt.Fprintf(w, "  aborted in %s: %s\n", r.FailedStage, r.Error)
		return nil
	}
	counts := r.UnitCounts()
	fmt.Fprintf(w, "  nodes: %d, paths: %d\n", r.Nodes, r.Paths)
	fmt.Fprintf(w, "  compiled: %d succeeded, %d failed, %d skipped\n", counts["succeeded"], counts["failed"], counts["skipped"])
	for _, d := range r.Diagnostics {
		if d.Path != "" {
			fmt.Fprintf(w, "  ! %s %s [%s]: %s\n", d.Node, d.Path, d.Stage, d.Message)
		} else {
			fmt.Fprintf(w, "  ! %s [%s]: %s\n", d.Node, d.Stage, d.Message)
		}
	}
	fmt.Fprintf(w, "  uploads: %d succeeded, %d failed\n", r.Uploaded, r.UploadFail)
	for _, u := range r.Uploads {
		if u.Error != "" {
			fmt.Fprintf(w, "  ! %s: %s\n", u.Key, u.Error)
		}
	}
	fmt.Fprintf(w, "  trigger: %s", r.Trigger)
	if r.TriggerErr != "" {
		fmt.Fprintf(w, " (%s)", r.TriggerErr)
	}
	fmt.Fprintln(w)
	return nil
}
