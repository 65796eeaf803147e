package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"git.home.luguber.info/inful/latexbuilder/internal/errors"
	"git.home.luguber.info/inful/latexbuilder/internal/eventstore"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit int  `short:"n" help:"Number of runs to list" default:"20"`
	JSON  bool `help:"Print runs as JSON"`
}

func (h *HistoryCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root.Config, true)
	if err != nil {
		return err
	}
	if cfg.History.Path == "" {
		return errors.ConfigRequired("history.path")
	}

	store, err := eventstore.NewSQLiteStore(cfg.History.Path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	proj := eventstore.NewRunHistoryProjection(store, h.Limit)
	if err := proj.Rebuild(context.Background()); err != nil {
		return err
	}
	return printHistory(os.Stdout, proj.History(), h.JSON)
}

func printHistory(w io.Writer, runs []eventstore.RunSummary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %-8s %-8s %s  uploaded=%d failed=%d trigger=%s\n",
			r.StartedAt.Local().Format(time.DateTime), r.Status, r.Trigger, r.RunID,
			r.Uploaded, r.UploadFailed, r.TriggerStatus)
		if r.ErrorMessage != "" {
			fmt.Fprintf(w, "    %s: %s\n", r.ErrorStage, r.ErrorMessage)
		}
	}
	return nil
}
