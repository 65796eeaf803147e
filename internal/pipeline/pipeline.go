// Package pipeline runs one resolve, compile, upload and trigger pass. Each
// stage starts only after the previous one has fully settled.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/latexbuilder/internal/compile"
	"git.home.luguber.info/inful/latexbuilder/internal/config"
	"git.home.luguber.info/inful/latexbuilder/internal/errors"
	"git.home.luguber.info/inful/latexbuilder/internal/eventstore"
	"git.home.luguber.info/inful/latexbuilder/internal/logfields"
	"git.home.luguber.info/inful/latexbuilder/internal/metrics"
	"git.home.luguber.info/inful/latexbuilder/internal/observability"
	"git.home.luguber.info/inful/latexbuilder/internal/resolver"
	"git.home.luguber.info/inful/latexbuilder/internal/trigger"
	"git.home.luguber.info/inful/latexbuilder/internal/upload"
)

// Stage names used in logs, metrics and reports.
const (
	StageResolve = "resolve"
	StageCompile = "compile"
	StageUpload  = "upload"
	StageTrigger = "trigger"
)

// Resolver produces the node list and paths map.
type Resolver interface {
	Resolve(ctx context.Context) (*resolver.Resolution, error)
}

// Compiler compiles every node × path unit.
type Compiler interface {
	Compile(ctx context.Context, nodes []resolver.Node, paths resolver.PathsMap) *compile.Result
}

// Dispatcher uploads every artifact of an output map.
type Dispatcher interface {
	Dispatch(ctx context.Context, outputs compile.OutputPathMap) []upload.Outcome
}

// Pipeline wires the stages together.
type Pipeline struct {
	resolver   Resolver
	compiler   Compiler
	dispatcher Dispatcher
	trigger    trigger.Trigger
	policy     config.TriggerPolicy
	metrics    metrics.Recorder
	history    *eventstore.Recorder
	newRunID   func() string
	now        func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTrigger sets the downstream trigger and policy. A nil trigger disables it.
func WithTrigger(t trigger.Trigger, policy config.TriggerPolicy) Option {
	return func(p *Pipeline) {
		p.trigger = t
		p.policy = policy
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(rec metrics.Recorder) Option {
	return func(p *Pipeline) {
		if rec != nil {
			p.metrics = rec
		}
	}
}

// WithHistory records run events through rec.
func WithHistory(rec *eventstore.Recorder) Option {
	return func(p *Pipeline) { p.history = rec }
}

// WithRunIDGenerator overrides run id generation.
func WithRunIDGenerator(fn func() string) Option {
	return func(p *Pipeline) { p.newRunID = fn }
}

// New creates a Pipeline.
func New(r Resolver, c Compiler, d Dispatcher, opts ...Option) *Pipeline {
	p := &Pipeline{
		resolver:   r,
		compiler:   c,
		dispatcher: d,
		policy:     config.TriggerBestEffort,
		metrics:    metrics.NoopRecorder{},
		newRunID:   uuid.NewString,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one pass. The returned report is always non-nil. An error is
// returned only when the node list could not be resolved or ctx was canceled.
func (p *Pipeline) Run(ctx context.Context, source Source) (*Report, error) {
	report := &Report{RunID: p.newRunID(), Source: source, StartedAt: p.now().UTC(), Trigger: trigger.StatusDisabled}
	ctx = observability.WithRunID(ctx, report.RunID)
	observability.InfoContext(ctx, "Run started", slog.String("source", string(source)))
	p.recordStart(ctx, report)

	// resolve
	sctx := observability.WithStage(ctx, StageResolve)
	start := p.now()
	res, err := p.resolver.Resolve(sctx)
	p.stageDone(sctx, StageResolve, start, err)
	if err != nil {
		return p.abort(ctx, report, StageResolve, err)
	}
	report.Nodes = len(res.Nodes)
	for _, paths := range res.Paths {
		report.Paths += len(paths)
	}
	p.metrics.SetNodesResolved(len(res.Nodes))
	if err := ctx.Err(); err != nil {
		return p.abort(ctx, report, StageResolve, err)
	}

	// compile
	sctx = observability.WithStage(ctx, StageCompile)
	start = p.now()
	compiled := p.compiler.Compile(sctx, res.Nodes, res.Paths)
	report.Units = compiled.Units
	report.Diagnostics = compiled.Diagnostics
	p.stageDone(sctx, StageCompile, start, nil)
	if err := ctx.Err(); err != nil {
		return p.abort(ctx, report, StageCompile, err)
	}

	// upload
	sctx = observability.WithStage(ctx, StageUpload)
	start = p.now()
	outcomes := p.dispatcher.Dispatch(sctx, compiled.Outputs)
	report.setUploads(outcomes)
	p.stageDone(sctx, StageUpload, start, nil)
	if err := ctx.Err(); err != nil {
		return p.abort(ctx, report, StageUpload, err)
	}

	// trigger
	sctx = observability.WithStage(ctx, StageTrigger)
	start = p.now()
	tr := trigger.Run(sctx, p.trigger, p.policy, trigger.Signal{
		RunID:     report.RunID,
		Uploaded:  report.Uploaded,
		Failed:    report.UploadFail,
		Timestamp: p.now().UTC(),
	})
	report.Trigger = tr.Status
	if tr.Err != nil {
		report.TriggerErr = tr.Err.Error()
	}
	p.metrics.IncTriggerResult(string(tr.Status))
	p.stageDone(sctx, StageTrigger, start, tr.Err)
	p.logTrigger(sctx, tr)

	report.FinishedAt = p.now().UTC()
	report.settle()
	p.finish(ctx, report)
	return report, nil
}

func (p *Pipeline) logTrigger(ctx context.Context, tr trigger.Result) {
	attrs := []slog.Attr{logfields.State(string(tr.Status))}
	if tr.Target != "" {
		attrs = append(attrs, logfields.URL(tr.Target))
	}
	switch tr.Status {
	case trigger.StatusFailed:
		observability.WarnContext(ctx, "Downstream trigger failed", append(attrs, logfields.Error(tr.Err))...)
	case trigger.StatusSuppressed:
		observability.WarnContext(ctx, "Downstream trigger suppressed by policy", attrs...)
	default:
		observability.InfoContext(ctx, "Downstream trigger settled", attrs...)
	}
}

func (p *Pipeline) stageDone(ctx context.Context, stage string, start time.Time, err error) {
	d := p.now().Sub(start)
	p.metrics.ObserveStageDuration(stage, d)
	label := metrics.ResultSuccess
	switch {
	case ctx.Err() != nil:
		label = metrics.ResultCanceled
	case err != nil && stage == StageTrigger:
		label = metrics.ResultWarning
	case err != nil:
		label = metrics.ResultFatal
	}
	p.metrics.IncStageResult(stage, label)
	observability.DebugContext(ctx, "Stage settled", logfields.DurationMS(float64(d.Milliseconds())))
}

func (p *Pipeline) abort(ctx context.Context, report *Report, stage string, cause error) (*Report, error) {
	report.FinishedAt = p.now().UTC()
	report.FailedStage = stage
	report.Error = cause.Error()
	report.Status = StatusFailed
	if ctx.Err() != nil {
		report.Status = StatusCanceled
	}
	p.finish(ctx, report)

	if report.Status == StatusCanceled {
		return report, errors.NewError(errors.CategoryInternal, "run canceled").
			WithCause(cause).
			WithContext("stage", stage).
			WithContext("run_id", report.RunID).
			Build()
	}
	return report, errors.StageFailed(stage, cause).WithContext("run_id", report.RunID)
}

func (p *Pipeline) finish(ctx context.Context, report *Report) {
	p.metrics.ObserveRunDuration(report.Duration())
	p.metrics.IncRunOutcome(string(report.Status))

	attrs := []slog.Attr{
		logfields.State(string(report.Status)),
		logfields.Count(report.Nodes),
		slog.Int("uploaded", report.Uploaded),
		slog.Int("upload_failed", report.UploadFail),
		slog.String("trigger", string(report.Trigger)),
		logfields.DurationMS(float64(report.Duration().Milliseconds())),
	}
	if report.Status == StatusFailed || report.Status == StatusCanceled {
		observability.ErrorContext(ctx, "Run aborted", append(attrs, slog.String("stage", report.FailedStage), slog.String("error", report.Error))...)
	} else {
		observability.InfoContext(ctx, "Run finished", attrs...)
	}
	p.recordFinish(ctx, report)
}

func (p *Pipeline) recordStart(ctx context.Context, report *Report) {
	if p.history == nil {
		return
	}
	if err := p.history.RunStarted(context.WithoutCancel(ctx), report.RunID, eventstore.RunStartedPayload{Trigger: string(report.Source)}); err != nil {
		observability.WarnContext(ctx, "Failed to record run start", logfields.Error(err))
	}
}

func (p *Pipeline) recordFinish(ctx context.Context, report *Report) {
	if p.history == nil {
		return
	}
	hctx := context.WithoutCancel(ctx)
	var err error
	if report.FailedStage != "" {
		err = p.history.RunFailed(hctx, report.RunID, report.FailedStage, report.Error, report.Duration())
	} else {
		err = p.history.RunCompleted(hctx, report.RunID, eventstore.RunCompletedPayload{
			Status:        string(report.Status),
			Nodes:         report.Nodes,
			Units:         report.UnitCounts(),
			Uploaded:      report.Uploaded,
			UploadFailed:  report.UploadFail,
			TriggerStatus: string(report.Trigger),
			DurationMS:    report.Duration().Milliseconds(),
			Diagnostics:   len(report.Diagnostics),
		})
	}
	if err != nil {
		observability.WarnContext(ctx, "Failed to record run result", logfields.Error(err))
	}
}
