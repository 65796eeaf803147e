package eventstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

const (
	runStatusRunning = "running"
	runStatusFailed  = "failed"
)

// RunSummary is a read model of one pipeline run.
type RunSummary struct {
	RunID         string         `json:"run_id"`
	Trigger       string         `json:"trigger,omitempty"`
	Status        string         `json:"status"` // running|success|partial|failed
	StartedAt     time.Time      `json:"started_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	Duration      time.Duration  `json:"duration,omitempty"`
	Nodes         int            `json:"nodes"`
	Units         map[string]int `json:"units,omitempty"`
	Uploaded      int            `json:"uploaded"`
	UploadFailed  int            `json:"upload_failed"`
	TriggerStatus string         `json:"trigger_status,omitempty"`
	ErrorStage    string         `json:"error_stage,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
}

// RunHistoryProjection rebuilds run summaries from stored events.
type RunHistoryProjection struct {
	mu      sync.RWMutex
	store   Store
	runs    map[string]*RunSummary
	maxSize int
}

// NewRunHistoryProjection creates a projection keeping at most maxSize finished runs.
func NewRunHistoryProjection(store Store, maxSize int) *RunHistoryProjection {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &RunHistoryProjection{store: store, runs: make(map[string]*RunSummary), maxSize: maxSize}
}

// Rebuild reconstructs the projection from every stored event.
func (p *RunHistoryProjection) Rebuild(ctx context.Context) error {
	events, err := p.store.GetRange(ctx, time.Time{}, time.Now().Add(time.Hour))
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.runs = make(map[string]*RunSummary)
	for _, e := range events {
		p.applyLocked(e)
	}
	return nil
}

// Apply folds a single event into the projection.
func (p *RunHistoryProjection) Apply(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyLocked(e)
}

func (p *RunHistoryProjection) applyLocked(e Event) {
	id := e.RunID
	if id == "" {
		return
	}
	s, ok := p.runs[id]
	if !ok {
		s = &RunSummary{RunID: id, Status: runStatusRunning, StartedAt: e.Timestamp}
		p.runs[id] = s
	}

	switch e.Type {
	case TypeRunStarted:
		s.StartedAt = e.Timestamp
		var payload RunStartedPayload
		if err := e.Decode(&payload); err == nil {
			s.Trigger = payload.Trigger
		}
	case TypeRunCompleted:
		p.finish(s, e.Timestamp)
		var payload RunCompletedPayload
		if err := e.Decode(&payload); err == nil {
			s.Status = payload.Status
			s.Nodes = payload.Nodes
			s.Units = payload.Units
			s.Uploaded = payload.Uploaded
			s.UploadFailed = payload.UploadFailed
			s.TriggerStatus = payload.TriggerStatus
		}
	case TypeRunFailed:
		p.finish(s, e.Timestamp)
		s.Status = runStatusFailed
		var payload RunFailedPayload
		if err := e.Decode(&payload); err == nil {
			s.ErrorStage = payload.Stage
			s.ErrorMessage = payload.Error
		}
	}
	p.pruneLocked()
}

func (p *RunHistoryProjection) finish(s *RunSummary, at time.Time) {
	s.CompletedAt = &at
	s.Duration = at.Sub(s.StartedAt)
}

// pruneLocked drops the oldest finished runs beyond maxSize. Running runs are kept.
func (p *RunHistoryProjection) pruneLocked() {
	finished := p.finishedLocked()
	for _, s := range finished[min(len(finished), p.maxSize):] {
		delete(p.runs, s.RunID)
	}
}

// finishedLocked returns finished runs, newest first.
func (p *RunHistoryProjection) finishedLocked() []*RunSummary {
	var out []*RunSummary
	for _, s := range p.runs {
		if s.Status != runStatusRunning {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// History returns finished runs, newest first.
func (p *RunHistoryProjection) History() []RunSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	finished := p.finishedLocked()
	out := make([]RunSummary, len(finished))
	for i, s := range finished {
		out[i] = *s
	}
	return out
}

// Run returns the summary for runID.
func (p *RunHistoryProjection) Run(runID string) (RunSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.runs[runID]
	if !ok {
		return RunSummary{}, false
	}
	return *s, true
}

// LastCompleted returns the most recent finished run.
func (p *RunHistoryProjection) LastCompleted() (RunSummary, bool) {
	h := p.History()
	if len(h) == 0 {
		return RunSummary{}, false
	}
	return h[0], true
}
