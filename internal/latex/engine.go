package latex

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"git.home.luguber.info/inful/latexbuilder/internal/engine"
	"git.home.luguber.info/inful/latexbuilder/internal/errors"
	"git.home.luguber.info/inful/latexbuilder/internal/git"
	"git.home.luguber.info/inful/latexbuilder/internal/logfields"
	"git.home.luguber.info/inful/latexbuilder/internal/workspace"
)

// Cloner fetches a branch of a repository into dest.
type Cloner interface {
	Clone(ctx context.Context, url, branch, dest string) (git.CloneResult, error)
}

// Options configures an Engine.
type Options struct {
	DownloadsDir string
	StorageDir   string
	CacheSize    int
	Cloner       Cloner
	Runner       Runner
}

// Engine implements engine.Engine.
type Engine struct {
	downloads *workspace.Manager
	storage   *workspace.Manager
	cloner    Cloner
	runner    Runner

	mu     sync.Mutex
	cache  *lru.Cache[string, *compilation]
	closed bool
	seq    atomic.Uint64
}

var _ engine.Engine = (*Engine)(nil)

// New creates the engine and its working directories. Any failure here means
// the engine is unavailable.
func New(opts Options) (*Engine, error) {
	if opts.Cloner == nil {
		return nil, errors.EngineUnavailable(fmt.Errorf("no repository cloner configured"))
	}
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}

	if opts.DownloadsDir != "" {
		if err := os.MkdirAll(opts.DownloadsDir, 0o750); err != nil {
			return nil, errors.EngineUnavailable(err)
		}
	}
	downloads := workspace.NewManager(opts.DownloadsDir)
	if err := downloads.Create(); err != nil {
		return nil, errors.EngineUnavailable(err)
	}
	storage := workspace.NewPersistentManager(opts.StorageDir)
	if err := storage.Create(); err != nil {
		_ = downloads.Cleanup()
		return nil, errors.EngineUnavailable(err)
	}

	cache, err := lru.NewWithEvict[string, *compilation](opts.CacheSize, func(fp string, _ *compilation) {
		slog.Debug("Compilation dropped from cache", logfields.Fingerprint(fp))
	})
	if err != nil {
		_ = downloads.Cleanup()
		return nil, errors.EngineUnavailable(err)
	}

	slog.Info("LaTeX engine ready",
		slog.String("downloads", downloads.GetPath()),
		slog.String("storage", storage.GetPath()),
		slog.Int("cache_size", opts.CacheSize))

	return &Engine{
		downloads: downloads,
		storage:   storage,
		cloner:    opts.Cloner,
		runner:    opts.Runner,
		cache:     cache,
	}, nil
}

// Prepare validates the request and clones the repository. Requests that can
// never compile come back with a UserError and no download.
func (e *Engine) Prepare(ctx context.Context, repoURL, targetFile, branch, command, workdir string) (engine.Preparation, error) {
	if e.isClosed() {
		return nil, errors.EngineError("engine is closed").Build()
	}
	req := engine.NewRequest(repoURL, targetFile, branch, command, workdir)

	if msg := validateRequest(req); msg != "" {
		return &preparation{req: req, userError: msg}, nil
	}

	name := fmt.Sprintf("%s-%d", shortFingerprint(req.Fingerprint), e.seq.Add(1))
	dir, err := e.downloads.CreateSubdir(name)
	if err != nil {
		return nil, errors.EngineError("failed to create download directory").WithCause(err).Build()
	}
	dl := &downloader{dir: dir, remove: func() error { return e.downloads.RemoveSubdir(name) }}

	if _, err := e.cloner.Clone(ctx, repoURL, branch, dir); err != nil {
		_ = dl.Dispose()
		if errors.IsCategory(err, errors.CategoryNotFound) || errors.IsCategory(err, errors.CategoryAuth) {
			return &preparation{req: req, userError: fmt.Sprintf("repository %s (branch %s) is not accessible", repoURL, branch)}, nil
		}
		return nil, err
	}

	if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(targetFile))); err != nil {
		_ = dl.Dispose()
		return &preparation{req: req, userError: fmt.Sprintf("target file %s not found in repository", targetFile)}, nil
	}

	return &preparation{req: req, dl: dl}, nil
}

// GetOrCreate returns the cached compilation for req's fingerprint, or binds a
// new one to d.
func (e *Engine) GetOrCreate(req engine.Request, d engine.Downloader) engine.Compilation {
	e.mu.Lock()
	defer e.mu.Unlock()

	if c, ok := e.cache.Get(req.Fingerprint); ok {
		return c
	}
	c := &compilation{req: req, dl: d, runner: e.runner, storage: e.storage}
	e.cache.Add(req.Fingerprint, c)
	return c
}

// Lookup returns the cached compilation for fingerprint, if any.
func (e *Engine) Lookup(fingerprint string) (engine.Compilation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.cache.Peek(fingerprint)
	if !ok {
		return nil, false
	}
	return c, true
}

// Evict removes c from the cache. A newer compilation cached under the same
// fingerprint is left alone.
func (e *Engine) Evict(c engine.Compilation) {
	if c == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fp := c.Fingerprint()
	if cur, ok := e.cache.Peek(fp); ok && engine.Compilation(cur) == c {
		e.cache.Remove(fp)
		slog.Debug("Evicted compilation", logfields.Fingerprint(fp))
	}
}

// Len reports the number of cached compilations.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.Len()
}

// Close purges the cache and removes the download workspace. Stored artifacts are kept.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.cache.Purge()
	e.mu.Unlock()

	if err := e.downloads.Cleanup(); err != nil {
		return errors.EngineError("failed to clean download workspace").WithCause(err).Build()
	}
	return nil
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func validateRequest(req engine.Request) string {
	switch {
	case req.RepoURL == "":
		return "repository URL is empty"
	case req.TargetFile == "":
		return "target file is empty"
	case strings.TrimSpace(req.Command) == "":
		return "compile command is empty"
	case escapesRoot(req.TargetFile) || escapesRoot(req.Workdir):
		return fmt.Sprintf("path escapes repository: %s", req.TargetFile)
	}
	return ""
}

func escapesRoot(p string) bool {
	if p == "" {
		return false
	}
	clean := path.Clean(p)
	return clean == ".." || strings.HasPrefix(clean, "../") || path.IsAbs(clean)
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	if fp == "" {
		return "req"
	}
	return fp
}
