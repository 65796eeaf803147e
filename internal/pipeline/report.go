package pipeline

import (
	"time"

	"git.home.luguber.info/inful/latexbuilder/internal/compile"
	"git.home.luguber.info/inful/latexbuilder/internal/trigger"
	"git.home.luguber.info/inful/latexbuilder/internal/upload"
)

// Status is the final status of a run.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusPartial  Status = "partial"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// Source names what started a run.
type Source string

const (
	SourceCLI      Source = "cli"
	SourceSchedule Source = "schedule"
	SourceReload   Source = "reload"
)

// UploadRecord is the report view of one upload outcome.
type UploadRecord struct {
	Key        string `json:"key"`
	Node       string `json:"node"`
	SourcePath string `json:"source_path"`
	Error      string `json:"error,omitempty"`
}

// Report describes one pipeline run.
type Report struct {
	RunID       string               `json:"run_id"`
	Source      Source               `json:"source"`
	StartedAt   time.Time            `json:"started_at"`
	FinishedAt  time.Time            `json:"finished_at"`
	Status      Status               `json:"status"`
	FailedStage string               `json:"failed_stage,omitempty"`
	Error       string               `json:"error,omitempty"`
	Nodes       int                  `json:"nodes"`
	Paths       int                  `json:"paths"`
	Units       []compile.Unit       `json:"units"`
	Diagnostics []compile.Diagnostic `json:"diagnostics"`
	Uploads     []UploadRecord       `json:"uploads"`
	Uploaded    int                  `json:"uploaded"`
	UploadFail  int                  `json:"upload_failed"`
	Trigger     trigger.Status       `json:"trigger"`
	TriggerErr  string               `json:"trigger_error,omitempty"`
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// UnitCounts tallies units per state.
func (r *Report) UnitCounts() map[string]int {
	out := make(map[string]int)
	for _, u := range r.Units {
		out[string(u.State)]++
	}
	return out
}

func (r *Report) setUploads(outcomes []upload.Outcome) {
	r.Uploads = make([]UploadRecord, len(outcomes))
	for i, o := range outcomes {
		rec := UploadRecord{Key: o.Key, Node: o.Node, SourcePath: o.SourcePath}
		if o.Err != nil {
			rec.Error = o.Err.Error()
		}
		r.Uploads[i] = rec
	}
	r.Uploaded, r.UploadFail = upload.Summary(outcomes)
}

// settle derives the final status once every stage has reported.
func (r *Report) settle() {
	r.Status = StatusSuccess
	if len(r.Diagnostics) > 0 || r.UploadFail > 0 || r.Trigger == trigger.StatusFailed {
		r.Status = StatusPartial
		return
	}
	for _, u := range r.Units {
		if u.State != compile.StateSucceeded {
			r.Status = StatusPartial
			return
		}
	}
}
