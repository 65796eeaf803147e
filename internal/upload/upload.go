// Package upload pushes compiled artifacts to object storage, one independent
// upload per artifact, and reports every outcome.
package upload

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"git.home.luguber.info/inful/latexbuilder/internal/compile"
	"git.home.luguber.info/inful/latexbuilder/internal/errors"
	"git.home.luguber.info/inful/latexbuilder/internal/fanout"
	"git.home.luguber.info/inful/latexbuilder/internal/logfields"
	"git.home.luguber.info/inful/latexbuilder/internal/metrics"
	"git.home.luguber.info/inful/latexbuilder/internal/observability"
	"git.home.luguber.info/inful/latexbuilder/internal/storage"
)

// Outcome is the settled result of one upload. It succeeded when Err is nil.
type Outcome struct {
	Key        string
	Node       string
	SourcePath string
	LocalPath  string
	Err        error
}

// Succeeded reports whether the upload completed.
func (o Outcome) Succeeded() bool { return o.Err == nil }

// RemoteKey derives the object key for a compiled source path:
// {nodeKey}/{path without surrounding slashes and final extension}.pdf
func RemoteKey(nodeKey, sourcePath string) string {
	p := strings.Trim(sourcePath, "/")
	p = strings.TrimSuffix(p, path.Ext(p))
	return nodeKey + "/" + strings.Trim(p, "/") + ".pdf"
}

// Dispatcher uploads an OutputPathMap through a storage.Uploader.
type Dispatcher struct {
	uploader    storage.Uploader
	timeout     time.Duration
	concurrency int
	metrics     metrics.Recorder
}

// NewDispatcher creates a Dispatcher. timeout bounds each upload; 0 disables it.
func NewDispatcher(up storage.Uploader, timeout time.Duration, rec metrics.Recorder) *Dispatcher {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Dispatcher{uploader: up, timeout: timeout, metrics: rec}
}

// WithConcurrency bounds the number of uploads in flight; 0 means unbounded.
func (d *Dispatcher) WithConcurrency(n int) *Dispatcher {
	d.concurrency = n
	return d
}

// Dispatch uploads every artifact concurrently and returns once all uploads
// have settled. Outcomes are ordered by node key, then source path.
func (d *Dispatcher) Dispatch(ctx context.Context, outputs compile.OutputPathMap) []Outcome {
	pending := plan(outputs)
	if len(pending) == 0 {
		return nil
	}

	concurrency := d.concurrency
	if concurrency <= 0 {
		concurrency = len(pending)
	}
	results := fanout.Ordered(pending, concurrency, func(_ int, o Outcome) (Outcome, error) {
		o.Err = d.uploadOne(ctx, o)
		return o, nil
	})

	out := make([]Outcome, len(results))
	for i, r := range results {
		out[i] = r.Value
		d.metrics.IncUploadResult(out[i].Succeeded())
		if err := out[i].Err; err != nil {
			observability.ErrorContext(ctx, "Unable to upload",
				logfields.Key(out[i].Key), logfields.Node(out[i].Node), logfields.Error(err))
		} else {
			observability.InfoContext(ctx, "Uploaded", logfields.Key(out[i].Key))
		}
	}
	return out
}

func (d *Dispatcher) uploadOne(parent context.Context, o Outcome) (err error) {
	ctx := parent
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, d.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = errors.InternalError("upload panicked", fmt.Errorf("%v", r))
		}
	}()
	return d.uploader.Upload(ctx, o.LocalPath, o.Key)
}

func plan(outputs compile.OutputPathMap) []Outcome {
	var pending []Outcome
	for node, paths := range outputs {
		for src, local := range paths {
			pending = append(pending, Outcome{
				Key:        RemoteKey(node, src),
				Node:       node,
				SourcePath: src,
				LocalPath:  local,
			})
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].Node != pending[j].Node {
			return pending[i].Node < pending[j].Node
		}
		return pending[i].SourcePath < pending[j].SourcePath
	})
	return pending
}

// Summary counts succeeded and failed outcomes.
func Summary(outcomes []Outcome) (succeeded, failed int) {
	for _, o := range outcomes {
		if o.Succeeded() {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}
