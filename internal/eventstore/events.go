package eventstore

import (
	"context"
	"encoding/json"
	"time"
)

// Event type names.
const (
	TypeRunStarted   = "RunStarted"
	TypeRunCompleted = "RunCompleted"
	TypeRunFailed    = "RunFailed"
)

// RunStartedPayload is recorded when a pipeline run begins.
type RunStartedPayload struct {
	Trigger string `json:"trigger"` // cli|schedule|reload
}

// RunCompletedPayload summarises a run that reached the trigger stage.
type RunCompletedPayload struct {
	Status        string         `json:"status"` // success|partial
	Nodes         int            `json:"nodes"`
	Units         map[string]int `json:"units"`
	Uploaded      int            `json:"uploaded"`
	UploadFailed  int            `json:"upload_failed"`
	TriggerStatus string         `json:"trigger_status"`
	DurationMS    int64          `json:"duration_ms"`
	Diagnostics   int            `json:"diagnostics"`
}

// RunFailedPayload records a run aborted by a fatal stage error.
type RunFailedPayload struct {
	Stage      string `json:"stage"`
	Error      string `json:"error"`
	DurationMS int64  `json:"duration_ms"`
}

// Recorder appends typed run events to a Store.
type Recorder struct {
	store Store
}

// NewRecorder wraps store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

func (r *Recorder) append(ctx context.Context, runID, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return storeError("failed to marshal event payload", err).WithContext("type", eventType)
	}
	return r.store.Append(ctx, runID, eventType, data, nil)
}

// RunStarted records the start of a run.
func (r *Recorder) RunStarted(ctx context.Context, runID string, p RunStartedPayload) error {
	return r.append(ctx, runID, TypeRunStarted, p)
}

// RunCompleted records a run that settled all stages.
func (r *Recorder) RunCompleted(ctx context.Context, runID string, p RunCompletedPayload) error {
	return r.append(ctx, runID, TypeRunCompleted, p)
}

// RunFailed records a run that stopped at stage.
func (r *Recorder) RunFailed(ctx context.Context, runID, stage, message string, d time.Duration) error {
	return r.append(ctx, runID, TypeRunFailed, RunFailedPayload{Stage: stage, Error: message, DurationMS: d.Milliseconds()})
}
