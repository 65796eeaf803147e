package compile

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"

	"git.home.luguber.info/inful/latexbuilder/internal/engine"
)

// behavior scripts what the fake engine does for one target file.
type behavior struct {
	prepareErr   error
	prepareNil   bool
	prepUserErr  string
	preparePanic bool
	runErr       error
	runPanic     bool
	runUserErr   string
	noSuccess    bool
}

type fakeDownloader struct {
	disposed atomic.Int32
}

func (d *fakeDownloader) Dir() string { return "/tmp/fake" }
func (d *fakeDownloader) Dispose() error {
	d.disposed.Add(1)
	return nil
}

type fakePrep struct {
	req engine.Request
	dl  *fakeDownloader
	ue  string
}

func (p *fakePrep) Request() engine.Request { return p.req }
func (p *fakePrep) Downloader() engine.Downloader {
	if p.dl == nil {
		return nil
	}
	return p.dl
}
func (p *fakePrep) UserError() string { return p.ue }

type fakeComp struct {
	req engine.Request
	b   behavior
	ok  bool
	ue  string
}

func (c *fakeComp) Fingerprint() string { return c.req.Fingerprint }
func (c *fakeComp) Run(context.Context) error {
	if c.b.runPanic {
		panic("boom in run")
	}
	if c.b.runErr != nil {
		return c.b.runErr
	}
	c.ue = c.b.runUserErr
	c.ok = c.ue == "" && !c.b.noSuccess
	return nil
}
func (c *fakeComp) Success() bool      { return c.ok }
func (c *fakeComp) UserError() string  { return c.ue }
func (c *fakeComp) OutputPath() string { return "/tmp/storage/" + c.req.TargetFile + ".pdf" }

type fakeEngine struct {
	mu        sync.Mutex
	behaviors map[string]behavior // by target file
	cache     map[string]*fakeComp
	events    map[string][]string // by fingerprint
	prepared  []engine.Request
	downloads []*fakeDownloader
	inFlight  atomic.Int32
	peak      atomic.Int32
}

func newFakeEngine(behaviors map[string]behavior) *fakeEngine {
	return &fakeEngine{
		behaviors: behaviors,
		cache:     map[string]*fakeComp{},
		events:    map[string][]string{},
	}
}

func (e *fakeEngine) record(fp, ev string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events[fp] = append(e.events[fp], ev)
}

func (e *fakeEngine) Prepare(_ context.Context, repoURL, target, branch, command, workdir string) (engine.Preparation, error) {
	n := e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	for {
		p := e.peak.Load()
		if n <= p || e.peak.CompareAndSwap(p, n) {
			break
		}
	}

	e.mu.Lock()
	b := e.behaviors[target]
	req := engine.NewRequest(repoURL, target, branch, command, workdir)
	e.prepared = append(e.prepared, req)
	e.mu.Unlock()

	switch {
	case b.preparePanic:
		panic("boom in prepare")
	case b.prepareErr != nil:
		return nil, b.prepareErr
	case b.prepareNil:
		return nil, nil
	}
	dl := &fakeDownloader{}
	e.mu.Lock()
	e.downloads = append(e.downloads, dl)
	e.mu.Unlock()
	return &fakePrep{req: req, dl: dl, ue: b.prepUserErr}, nil
}

func (e *fakeEngine) GetOrCreate(req engine.Request, _ engine.Downloader) engine.Compilation {
	e.record(req.Fingerprint, "get_or_create")
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.cache[req.Fingerprint]; ok {
		return c
	}
	c := &fakeComp{req: req, b: e.behaviors[req.TargetFile]}
	e.cache[req.Fingerprint] = c
	return c
}

func (e *fakeEngine) Lookup(fp string) (engine.Compilation, bool) {
	e.record(fp, "lookup")
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.cache[fp]
	if !ok {
		return nil, false
	}
	return c, true
}

func (e *fakeEngine) Evict(c engine.Compilation) {
	e.record(c.Fingerprint(), "evict")
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.cache, c.Fingerprint())
}

func (e *fakeEngine) Close() error { return nil }

var errPrepare = stderrors.New("clone failed")
