package pipeline

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/latexbuilder/internal/compile"
	"git.home.luguber.info/inful/latexbuilder/internal/config"
	"git.home.luguber.info/inful/latexbuilder/internal/engine"
	"git.home.luguber.info/inful/latexbuilder/internal/errors"
	"git.home.luguber.info/inful/latexbuilder/internal/eventstore"
	"git.home.luguber.info/inful/latexbuilder/internal/forge"
	"git.home.luguber.info/inful/latexbuilder/internal/metrics"
	"git.home.luguber.info/inful/latexbuilder/internal/resolver"
	"git.home.luguber.info/inful/latexbuilder/internal/testforge"
	"git.home.luguber.info/inful/latexbuilder/internal/trigger"
	"git.home.luguber.info/inful/latexbuilder/internal/upload"
)

type stubDownloader struct{}

func (stubDownloader) Dir() string    { return "/tmp/stub" }
func (stubDownloader) Dispose() error { return nil }

type stubPrep struct{ req engine.Request }

func (p stubPrep) Request() engine.Request        { return p.req }
func (p stubPrep) Downloader() engine.Downloader { return stubDownloader{} }
func (p stubPrep) UserError() string              { return "" }

type stubCompilation struct{ req engine.Request }

func (c *stubCompilation) Fingerprint() string         { return c.req.Fingerprint }
func (c *stubCompilation) Run(context.Context) error   { return nil }
func (c *stubCompilation) Success() bool               { return true }
func (c *stubCompilation) UserError() string           { return "" }
func (c *stubCompilation) OutputPath() string {
	return "/storage/" + c.req.Fingerprint + "/" + strings.TrimSuffix(path.Base(c.req.TargetFile), ".tex") + ".pdf"
}

// stubEngine compiles every request successfully.
type stubEngine struct {
	mu    sync.Mutex
	cache map[string]*stubCompilation
}

func (e *stubEngine) Prepare(_ context.Context, repoURL, target, branch, command, workdir string) (engine.Preparation, error) {
	return stubPrep{req: engine.NewRequest(repoURL, target, branch, command, workdir)}, nil
}

func (e *stubEngine) GetOrCreate(req engine.Request, _ engine.Downloader) engine.Compilation {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cache == nil {
		e.cache = map[string]*stubCompilation{}
	}
	c, ok := e.cache[req.Fingerprint]
	if !ok {
		c = &stubCompilation{req: req}
		e.cache[req.Fingerprint] = c
	}
	return c
}

func (e *stubEngine) Lookup(fp string) (engine.Compilation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.cache[fp]
	return c, ok
}

func (e *stubEngine) Evict(c engine.Compilation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.cache, c.Fingerprint())
}

func (e *stubEngine) Close() error { return nil }

// recordingUploader remembers uploaded keys and fails the listed ones.
type recordingUploader struct {
	mu   sync.Mutex
	keys []string
	fail map[string]bool
}

func (u *recordingUploader) Upload(_ context.Context, _ string, key string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.keys = append(u.keys, key)
	if u.fail[key] {
		return errors.StorageError("upload rejected").WithContext("key", key).Build()
	}
	return nil
}

func (u *recordingUploader) settled() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.keys)
}

// countingTrigger records every fire along with how many uploads had settled.
type countingTrigger struct {
	mu         sync.Mutex
	signals    []trigger.Signal
	seenUpload []int
	uploads    *recordingUploader
	err        error
}

func (t *countingTrigger) Fire(_ context.Context, sig trigger.Signal) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.signals = append(t.signals, sig)
	if t.uploads != nil {
		t.seenUpload = append(t.seenUpload, t.uploads.settled())
	}
	return t.err
}

func (t *countingTrigger) Target() string { return "test://rebuild" }

type outcomeRecorder struct {
	metrics.NoopRecorder
	mu       sync.Mutex
	outcomes []string
	triggers []string
}

func (r *outcomeRecorder) IncRunOutcome(o string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func (r *outcomeRecorder) IncTriggerResult(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggers = append(r.triggers, s)
}

func docSource(apiURL string) config.ConfigSourceConfig {
	return config.ConfigSourceConfig{
		APIURL:    apiURL,
		Owner:     "cfg",
		Repo:      "build",
		Ref:       "master",
		NodesPath: testforge.DocNodesPath,
		TreePath:  testforge.DocTreePath,
	}
}

func TestRun_DocScenario(t *testing.T) {
	up := &recordingUploader{}
	trig := &countingTrigger{uploads: up}
	rec := &outcomeRecorder{}
	host := testforge.DocScenario()
	srv := host.Server()
	defer srv.Close()
	src := docSource(srv.URL)

	client, err := forge.NewGitHubContentClient(src.APIURL, "", 5*time.Second)
	require.NoError(t, err)

	p := New(
		resolver.New(client, src),
		compile.NewCoordinator(&stubEngine{}, compile.Options{}, rec),
		upload.NewDispatcher(up, 0, rec),
		WithTrigger(trig, config.TriggerBestEffort),
		WithMetrics(rec),
		WithRunIDGenerator(func() string { return "run-doc" }),
	)

	report, err := p.Run(context.Background(), SourceCLI)
	require.NoError(t, err)

	for _, r := range host.Requests() {
		if r.Path == testforge.DocNodesPath {
			assert.Equal(t, "master", r.Ref)
		} else {
			assert.Empty(t, r.Ref, "content trees come from each repository's default branch")
		}
	}

	keys := append([]string(nil), up.keys...)
	sort.Strings(keys)
	assert.Equal(t, []string{
		"toen-mastercourse/chapters/lecture1.pdf",
		"toen-mastercourse/chapters/lecture2-3.pdf",
	}, keys)

	require.Len(t, trig.signals, 1, "trigger must fire exactly once")
	assert.Equal(t, []int{2}, trig.seenUpload, "trigger must fire after both uploads settled")
	assert.Equal(t, "run-doc", trig.signals[0].RunID)
	assert.Equal(t, 2, trig.signals[0].Uploaded)
	assert.Equal(t, 0, trig.signals[0].Failed)

	assert.Equal(t, "run-doc", report.RunID)
	assert.Equal(t, 2, report.Nodes)
	assert.Equal(t, 2, report.Paths)
	assert.Equal(t, 2, report.Uploaded)
	assert.Equal(t, trigger.StatusFired, report.Trigger)
	require.Len(t, report.Diagnostics, 1)
	assert.Equal(t, "non-existence", report.Diagnostics[0].Node)
	assert.Equal(t, StatusPartial, report.Status)
	assert.Equal(t, []string{"partial"}, rec.outcomes)
	assert.Equal(t, []string{"fired"}, rec.triggers)
}

// fixed stages for policy tests

type fixedResolver struct {
	res *resolver.Resolution
	err error
}

func (r fixedResolver) Resolve(context.Context) (*resolver.Resolution, error) { return r.res, r.err }

type fixedCompiler struct {
	res    *compile.Result
	called bool
}

func (c *fixedCompiler) Compile(context.Context, []resolver.Node, resolver.PathsMap) *compile.Result {
	c.called = true
	return c.res
}

type fixedDispatcher struct{ outcomes []upload.Outcome }

func (d fixedDispatcher) Dispatch(context.Context, compile.OutputPathMap) []upload.Outcome {
	return d.outcomes
}

func oneNode() *resolver.Resolution {
	return &resolver.Resolution{
		Nodes: []resolver.Node{{Key: "a", Repo: "o/a"}},
		Paths: resolver.PathsMap{"a": {"x.tex", "y.tex"}},
	}
}

func compiledBoth() *compile.Result {
	return &compile.Result{
		Outputs: compile.OutputPathMap{"a": {"x.tex": "/s/x.pdf", "y.tex": "/s/y.pdf"}},
		Units: []compile.Unit{
			{Node: "a", SourcePath: "x.tex", State: compile.StateSucceeded},
			{Node: "a", SourcePath: "y.tex", State: compile.StateSucceeded},
		},
	}
}

func TestRun_Statuses(t *testing.T) {
	uploadErr := errors.StorageError("denied").Build()
	tests := []struct {
		name        string
		outcomes    []upload.Outcome
		policy      config.TriggerPolicy
		triggerErr  error
		wantStatus  Status
		wantTrigger trigger.Status
		wantFires   int
	}{
		{
			name:        "all uploads succeed",
			outcomes:    []upload.Outcome{{Key: "a/x.pdf"}, {Key: "a/y.pdf"}},
			policy:      config.TriggerBestEffort,
			wantStatus:  StatusSuccess,
			wantTrigger: trigger.StatusFired,
			wantFires:   1,
		},
		{
			name:        "best effort fires despite failed upload",
			outcomes:    []upload.Outcome{{Key: "a/x.pdf"}, {Key: "a/y.pdf", Err: uploadErr}},
			policy:      config.TriggerBestEffort,
			wantStatus:  StatusPartial,
			wantTrigger: trigger.StatusFired,
			wantFires:   1,
		},
		{
			name:        "fail fast suppresses after failed upload",
			outcomes:    []upload.Outcome{{Key: "a/x.pdf"}, {Key: "a/y.pdf", Err: uploadErr}},
			policy:      config.TriggerFailFast,
			wantStatus:  StatusPartial,
			wantTrigger: trigger.StatusSuppressed,
			wantFires:   0,
		},
		{
			name:        "trigger failure is reported",
			outcomes:    []upload.Outcome{{Key: "a/x.pdf"}, {Key: "a/y.pdf"}},
			policy:      config.TriggerBestEffort,
			triggerErr:  errors.TriggerError("refused").Build(),
			wantStatus:  StatusPartial,
			wantTrigger: trigger.StatusFailed,
			wantFires:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trig := &countingTrigger{err: tt.triggerErr}
			p := New(fixedResolver{res: oneNode()}, &fixedCompiler{res: compiledBoth()}, fixedDispatcher{outcomes: tt.outcomes},
				WithTrigger(trig, tt.policy))

			report, err := p.Run(context.Background(), SourceSchedule)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, report.Status)
			assert.Equal(t, tt.wantTrigger, report.Trigger)
			assert.Len(t, trig.signals, tt.wantFires)
			if tt.triggerErr != nil {
				assert.NotEmpty(t, report.TriggerErr)
			}
		})
	}
}

func TestRun_SkippedUnitMakesRunPartial(t *testing.T) {
	compiled := compiledBoth()
	compiled.Units[1].State = compile.StateSkipped
	delete(compiled.Outputs["a"], "y.tex")

	p := New(fixedResolver{res: oneNode()}, &fixedCompiler{res: compiled}, fixedDispatcher{outcomes: []upload.Outcome{{Key: "a/x.pdf"}}})
	report, err := p.Run(context.Background(), SourceCLI)
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, report.Status)
	assert.Equal(t, trigger.StatusDisabled, report.Trigger)
	assert.Equal(t, map[string]int{"succeeded": 1, "skipped": 1}, report.UnitCounts())
}

func TestRun_NodeListFailureAbortsRun(t *testing.T) {
	trig := &countingTrigger{}
	comp := &fixedCompiler{res: compiledBoth()}
	p := New(fixedResolver{err: errors.NewError(errors.CategoryNotFound, "failed to fetch node list").Build()}, comp, fixedDispatcher{},
		WithTrigger(trig, config.TriggerBestEffort))

	report, err := p.Run(context.Background(), SourceCLI)
	require.Error(t, err)
	require.NotNil(t, report)
	assert.Equal(t, StatusFailed, report.Status)
	assert.Equal(t, StageResolve, report.FailedStage)
	assert.Contains(t, report.Error, "failed to fetch node list")
	assert.False(t, comp.called)
	assert.Empty(t, trig.signals)
}

func TestRun_CanceledContextSkipsTrigger(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	trig := &countingTrigger{}
	comp := &cancelingCompiler{cancel: cancel, res: compiledBoth()}
	p := New(fixedResolver{res: oneNode()}, comp, fixedDispatcher{}, WithTrigger(trig, config.TriggerBestEffort))

	report, err := p.Run(ctx, SourceCLI)
	require.Error(t, err)
	assert.Equal(t, StatusCanceled, report.Status)
	assert.Equal(t, StageCompile, report.FailedStage)
	assert.Empty(t, trig.signals)
}

type cancelingCompiler struct {
	cancel context.CancelFunc
	res    *compile.Result
}

func (c *cancelingCompiler) Compile(context.Context, []resolver.Node, resolver.PathsMap) *compile.Result {
	c.cancel()
	return c.res
}

func TestRun_RecordsHistory(t *testing.T) {
	store, err := eventstore.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ids := []string{"run-ok", "run-bad"}
	next := 0
	idGen := func() string { id := ids[next]; next++; return id }

	ok := New(fixedResolver{res: oneNode()}, &fixedCompiler{res: compiledBoth()},
		fixedDispatcher{outcomes: []upload.Outcome{{Key: "a/x.pdf"}, {Key: "a/y.pdf"}}},
		WithHistory(eventstore.NewRecorder(store)), WithRunIDGenerator(idGen))
	_, err = ok.Run(context.Background(), SourceSchedule)
	require.NoError(t, err)

	bad := New(fixedResolver{err: errors.NewError(errors.CategoryNetwork, "unreachable").Build()}, &fixedCompiler{}, fixedDispatcher{},
		WithHistory(eventstore.NewRecorder(store)), WithRunIDGenerator(idGen))
	_, err = bad.Run(context.Background(), SourceCLI)
	require.Error(t, err)

	proj := eventstore.NewRunHistoryProjection(store, 10)
	require.NoError(t, proj.Rebuild(context.Background()))

	okRun, found := proj.Run("run-ok")
	require.True(t, found)
	assert.Equal(t, "success", okRun.Status)
	assert.Equal(t, "schedule", okRun.Trigger)
	assert.Equal(t, 2, okRun.Uploaded)
	assert.Equal(t, 2, okRun.Units["succeeded"])

	badRun, found := proj.Run("run-bad")
	require.True(t, found)
	assert.Equal(t, "failed", badRun.Status)
	assert.Equal(t, StageResolve, badRun.ErrorStage)
}
