// Package engine defines the contract between the compile coordinator and a
// LaTeX compilation engine. The coordinator never depends on a concrete
// engine; internal/latex provides the in-process implementation.
package engine

import (
	"context"
)

// Request identifies one compilation. Fingerprint is derived from the other
// five fields and is an identity, not a content hash.
type Request struct {
	RepoURL     string
	TargetFile  string
	Branch      string
	Command     string
	Workdir     string
	Fingerprint string
}

// NewRequest builds a Request with its fingerprint filled in.
func NewRequest(repoURL, targetFile, branch, command, workdir string) Request {
	return Request{
		RepoURL:     repoURL,
		TargetFile:  targetFile,
		Branch:      branch,
		Command:     command,
		Workdir:     workdir,
		Fingerprint: Fingerprint(repoURL, targetFile, branch, command, workdir),
	}
}

// Downloader is the disposable download resource staged by Prepare.
// Dispose must be safe to call more than once.
type Downloader interface {
	Dir() string
	Dispose() error
}

// Preparation is the staged result of a compilation request before it runs.
type Preparation interface {
	Request() Request
	Downloader() Downloader
	// UserError is non-empty when the request can be rejected immediately.
	UserError() string
}

// Compilation is a cached, runnable compilation bound to a request.
type Compilation interface {
	Fingerprint() string
	Run(ctx context.Context) error
	Success() bool
	UserError() string
	OutputPath() string
}

// Engine prepares, caches and runs compilations.
type Engine interface {
	// Prepare stages a request. A nil Preparation with a nil error means the
	// engine declined the request.
	Prepare(ctx context.Context, repoURL, targetFile, branch, command, workdir string) (Preparation, error)
	// GetOrCreate returns the cached compilation for req.Fingerprint or creates one bound to d.
	GetOrCreate(req Request, d Downloader) Compilation
	Lookup(fingerprint string) (Compilation, bool)
	Evict(c Compilation)
	Close() error
}
