// Package compile fans compile requests out over every node × path pair,
// forcing a fresh compilation for each pass and collecting the artifacts of
// the ones that succeed.
package compile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"git.home.luguber.info/inful/latexbuilder/internal/config"
	"git.home.luguber.info/inful/latexbuilder/internal/engine"
	"git.home.luguber.info/inful/latexbuilder/internal/fanout"
	"git.home.luguber.info/inful/latexbuilder/internal/logfields"
	"git.home.luguber.info/inful/latexbuilder/internal/metrics"
	"git.home.luguber.info/inful/latexbuilder/internal/observability"
	"git.home.luguber.info/inful/latexbuilder/internal/resolver"
	"git.home.luguber.info/inful/latexbuilder/internal/util/sets"
)

// Diagnostic stages.
const (
	StageResolve = "resolve"
	StagePrepare = "prepare"
	StageCompile = "compile"
)

// Options holds request defaults and fan-out limits.
type Options struct {
	RepoHost    string
	Branch      string
	Command     string
	Workdir     string
	Concurrency int           // 0 runs every unit at once
	Timeout     time.Duration // per unit; 0 disables the deadline
}

// OptionsFromConfig maps the compile section of the configuration.
func OptionsFromConfig(cc config.CompileConfig) Options {
	return Options{
		RepoHost:    cc.RepoHost,
		Branch:      cc.Branch,
		Command:     cc.Command,
		Workdir:     cc.Workdir,
		Concurrency: cc.Concurrency,
		Timeout:     cc.TimeoutDuration(),
	}
}

func (o Options) withDefaults() Options {
	if o.RepoHost == "" {
		o.RepoHost = config.DefaultRepoHost
	}
	o.RepoHost = strings.TrimSuffix(o.RepoHost, "/")
	if o.Branch == "" {
		o.Branch = config.DefaultBranch
	}
	if o.Command == "" {
		o.Command = config.DefaultCommand
	}
	o.Workdir = trimSlashes(o.Workdir)
	return o
}

// Coordinator drives an engine.Engine over a resolved node set.
type Coordinator struct {
	engine  engine.Engine
	opts    Options
	metrics metrics.Recorder
}

// NewCoordinator creates a Coordinator. rec may be nil.
func NewCoordinator(eng engine.Engine, opts Options, rec metrics.Recorder) *Coordinator {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Coordinator{engine: eng, opts: opts.withDefaults(), metrics: rec}
}

type task struct {
	unit    *Unit
	repoURL string
}

// Compile runs every unit and returns once all of them have settled. Failures
// are confined to their unit and reported through Units and Diagnostics.
func (c *Coordinator) Compile(ctx context.Context, nodes []resolver.Node, paths resolver.PathsMap) *Result {
	res := &Result{Outputs: make(OutputPathMap, len(nodes))}

	var tasks []task
	for _, n := range nodes {
		res.Outputs[n.Key] = map[string]string{}
		nodePaths, ok := paths[n.Key]
		if !ok {
			msg := fmt.Sprintf("bad or missing metadata for node %s (%s)", n.Key, n.Repo)
			observability.WarnContext(ctx, "Skipping node without content tree", logfields.Node(n.Key), logfields.Repository(n.Repo))
			res.Diagnostics = append(res.Diagnostics, Diagnostic{Node: n.Key, Stage: StageResolve, Message: msg})
			continue
		}
		repoURL := c.repoURL(n.Repo)
		seen := sets.New[string]()
		for _, p := range nodePaths {
			if seen.Has(p) {
				slog.Warn("Ignoring duplicate path", logfields.Node(n.Key), logfields.Path(p))
				continue
			}
			seen.Add(p)
			tasks = append(tasks, task{unit: newUnit(n.Key, p), repoURL: repoURL})
		}
	}

	concurrency := c.opts.Concurrency
	if concurrency <= 0 {
		concurrency = len(tasks)
	}
	diags := fanout.Ordered(tasks, concurrency, func(_ int, t task) (*Diagnostic, error) {
		return c.runUnit(ctx, t), nil
	})

	res.Units = make([]Unit, len(tasks))
	for i, t := range tasks {
		u := *t.unit
		res.Units[i] = u
		c.metrics.IncCompileUnit(string(u.State))
		if u.State == StateSucceeded {
			res.Outputs[u.Node][u.SourcePath] = u.OutputPath
		}
		if d := diags[i].Value; d != nil {
			res.Diagnostics = append(res.Diagnostics, *d)
		}
	}
	return res
}

func (c *Coordinator) repoURL(repo string) string {
	return c.opts.RepoHost + "/" + trimSlashes(repo)
}

// runUnit takes one unit to a terminal state. It owns the unit exclusively.
func (c *Coordinator) runUnit(parent context.Context, t task) (diag *Diagnostic) {
	u := t.unit
	ctx := observability.WithNode(parent, u.Node)
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}
	start := time.Now()

	settle := func(to State, stage, reason string) *Diagnostic {
		if err := u.transition(to); err != nil {
			slog.Error("Unit state error", logfields.Error(err))
			return nil
		}
		u.Reason = reason
		if to == StateSucceeded {
			return nil
		}
		observability.WarnContext(ctx, "Compile unit "+string(to),
			logfields.Path(u.SourcePath), logfields.State(string(to)), slog.String("reason", reason))
		return &Diagnostic{Node: u.Node, Path: u.SourcePath, Stage: stage, Message: reason}
	}

	defer func() {
		if r := recover(); r != nil {
			reason := fmt.Sprintf("engine panic: %v", r)
			if u.State == StateRunning {
				diag = settle(StateFailed, StageCompile, reason)
			} else if !u.State.Terminal() {
				diag = settle(StateSkipped, StagePrepare, reason)
			}
		}
		if u.State == StateSucceeded || u.State == StateFailed {
			c.metrics.ObserveCompileDuration(u.Node, time.Since(start), u.State == StateSucceeded)
		}
	}()

	target := trimSlashes(u.SourcePath)
	prep, err := c.engine.Prepare(ctx, t.repoURL, target, c.opts.Branch, c.opts.Command, c.opts.Workdir)
	if err != nil {
		return settle(StateSkipped, StagePrepare, "preparation failed: "+err.Error())
	}
	if prep == nil {
		return settle(StateSkipped, StagePrepare, "engine declined the request")
	}
	if dl := prep.Downloader(); dl != nil {
		defer func() {
			if derr := dl.Dispose(); derr != nil {
				slog.Warn("Failed to release download", logfields.Path(u.SourcePath), logfields.Error(derr))
			}
		}()
	}
	req := prep.Request()
	u.Fingerprint = req.Fingerprint
	if ue := prep.UserError(); ue != "" {
		return settle(StateSkipped, StagePrepare, ue)
	}
	if err := u.transition(StatePrepared); err != nil {
		return settle(StateFailed, StagePrepare, err.Error())
	}

	// The fingerprint only covers request parameters, so a cached compilation
	// may predate upstream changes. Always start from a fresh one.
	if existing, ok := c.engine.Lookup(req.Fingerprint); ok {
		c.engine.Evict(existing)
		slog.Debug("Evicted cached compilation", logfields.Fingerprint(req.Fingerprint), logfields.Path(u.SourcePath))
	}
	comp := c.engine.GetOrCreate(req, prep.Downloader())
	if err := u.transition(StateRunning); err != nil {
		return settle(StateFailed, StageCompile, err.Error())
	}

	if err := comp.Run(ctx); err != nil {
		return settle(StateFailed, StageCompile, err.Error())
	}
	if ue := comp.UserError(); ue != "" {
		return settle(StateFailed, StageCompile, ue)
	}
	if !comp.Success() {
		return settle(StateFailed, StageCompile, "compilation reported no success")
	}
	u.OutputPath = comp.OutputPath()
	observability.DebugContext(ctx, "Compiled", logfields.Path(u.SourcePath), slog.String("output", u.OutputPath))
	return settle(StateSucceeded, StageCompile, "")
}

func trimSlashes(s string) string {
	return strings.Trim(s, "/")
}
