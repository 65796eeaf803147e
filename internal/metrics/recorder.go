package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultWarning  ResultLabel = "warning"
	ResultFatal    ResultLabel = "fatal"
	ResultCanceled ResultLabel = "canceled"
)

// Recorder defines observability hooks for run, stage, compile, upload and trigger metrics.
// Implementations may forward to Prometheus; NoopRecorder is the default.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	ObserveRunDuration(d time.Duration)
	IncRunOutcome(outcome string) // success|partial|failed|canceled
	SetNodesResolved(n int)
	IncCompileUnit(state string) // terminal unit state
	ObserveCompileDuration(node string, d time.Duration, success bool)
	IncUploadResult(success bool)
	IncTriggerResult(result string) // fired|failed|suppressed|disabled
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration)         {}
func (NoopRecorder) IncStageResult(string, ResultLabel)                 {}
func (NoopRecorder) ObserveRunDuration(time.Duration)                   {}
func (NoopRecorder) IncRunOutcome(string)                               {}
func (NoopRecorder) SetNodesResolved(int)                               {}
func (NoopRecorder) IncCompileUnit(string)                              {}
func (NoopRecorder) ObserveCompileDuration(string, time.Duration, bool) {}
func (NoopRecorder) IncUploadResult(bool)                               {}
func (NoopRecorder) IncTriggerResult(string)                            {}
