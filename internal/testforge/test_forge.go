// Package testforge provides an in-memory content host for tests. It serves
// files both as a forge.ContentFetcher and over a GitHub-compatible contents API.
package testforge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/latexbuilder/internal/errors"
)

// FailMode defines how the test forge should fail.
type FailMode int

const (
	FailModeNone FailMode = iota
	FailModeAuth
	FailModeNetwork
	FailModeRateLimit
	FailModeNotFound
)

// Request records one content fetch.
type Request struct {
	Owner string
	Repo  string
	Path  string
	Ref   string
}

// TestForge holds repository files keyed by "owner/repo".
type TestForge struct {
	mu        sync.RWMutex
	files     map[string]map[string][]byte
	failMode  FailMode
	repoFails map[string]FailMode
	delay     time.Duration
	requests  []Request
}

// NewTestForge creates an empty test forge.
func NewTestForge() *TestForge {
	return &TestForge{
		files:     make(map[string]map[string][]byte),
		repoFails: make(map[string]FailMode),
	}
}

// AddFile stores content at filePath in repo ("owner/name").
func (tf *TestForge) AddFile(repo, filePath, content string) *TestForge {
	tf.mu.Lock()
	defer tf.mu.Unlock()
	if tf.files[repo] == nil {
		tf.files[repo] = make(map[string][]byte)
	}
	tf.files[repo][strings.TrimPrefix(filePath, "/")] = []byte(content)
	return tf
}

// AddJSON stores v encoded as JSON at filePath in repo.
func (tf *TestForge) AddJSON(repo, filePath string, v any) *TestForge {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return tf.AddFile(repo, filePath, string(data))
}

// SetFailMode makes every request fail with mode.
func (tf *TestForge) SetFailMode(mode FailMode) {
	tf.mu.Lock()
	defer tf.mu.Unlock()
	tf.failMode = mode
}

// SetRepoFailMode makes requests for one repository fail with mode.
func (tf *TestForge) SetRepoFailMode(repo string, mode FailMode) {
	tf.mu.Lock()
	defer tf.mu.Unlock()
	tf.repoFails[repo] = mode
}

// SetDelay adds latency to every request.
func (tf *TestForge) SetDelay(delay time.Duration) {
	tf.mu.Lock()
	defer tf.mu.Unlock()
	tf.delay = delay
}

// Requests returns the fetches seen so far, in arrival order.
func (tf *TestForge) Requests() []Request {
	tf.mu.RLock()
	defer tf.mu.RUnlock()
	return append([]Request(nil), tf.requests...)
}

// lookup records the request, applies delay and failure modes and returns the file.
func (tf *TestForge) lookup(ctx context.Context, owner, repo, filePath, ref string) ([]byte, FailMode, error) {
	tf.mu.Lock()
	tf.requests = append(tf.requests, Request{Owner: owner, Repo: repo, Path: filePath, Ref: ref})
	delay := tf.delay
	mode := tf.failMode
	full := owner + "/" + repo
	if m, ok := tf.repoFails[full]; ok && mode == FailModeNone {
		mode = m
	}
	data, found := tf.files[full][strings.TrimPrefix(filePath, "/")]
	tf.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, FailModeNone, ctx.Err()
		}
	}
	if mode == FailModeNone && !found {
		mode = FailModeNotFound
	}
	return data, mode, nil
}

// FetchContent implements forge.ContentFetcher with the errors the HTTP client reports.
func (tf *TestForge) FetchContent(ctx context.Context, owner, repo, filePath, ref string) ([]byte, error) {
	data, mode, err := tf.lookup(ctx, owner, repo, filePath, ref)
	if err != nil {
		return nil, errors.NetworkError("request canceled").WithCause(err).Build()
	}
	full := owner + "/" + repo
	switch mode {
	case FailModeAuth:
		return nil, errors.AuthError("authentication failed").WithContext("repository", full).Build()
	case FailModeNetwork:
		return nil, errors.NetworkError("connection reset").WithContext("repository", full).Build()
	case FailModeRateLimit:
		return nil, errors.NetworkError("rate limit exceeded").WithContext("repository", full).Build()
	case FailModeNotFound:
		return nil, errors.NewError(errors.CategoryNotFound, "resource not found").
			WithContext("repository", full).
			WithContext("path", filePath).
			Build()
	}
	return data, nil
}

// Handler serves GET /repos/{owner}/{repo}/contents/{path...}.
func (tf *TestForge) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/{owner}/{repo}/contents/{path...}", func(w http.ResponseWriter, r *http.Request) {
		data, mode, err := tf.lookup(r.Context(), r.PathValue("owner"), r.PathValue("repo"), r.PathValue("path"), r.URL.Query().Get("ref"))
		if err != nil {
			return
		}
		switch mode {
		case FailModeAuth:
			http.Error(w, `{"message":"Bad credentials"}`, http.StatusUnauthorized)
		case FailModeNetwork:
			http.Error(w, `{"message":"upstream unavailable"}`, http.StatusBadGateway)
		case FailModeRateLimit:
			w.Header().Set("X-RateLimit-Remaining", "0")
			http.Error(w, `{"message":"API rate limit exceeded"}`, http.StatusTooManyRequests)
		case FailModeNotFound:
			http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
		default:
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{
				"type":     "file",
				"path":     r.PathValue("path"),
				"encoding": "base64",
				"content":  wrap(base64.StdEncoding.EncodeToString(data), 60),
			})
		}
	})
	return mux
}

// Server starts an httptest server for Handler. Callers close it.
func (tf *TestForge) Server() *httptest.Server {
	return httptest.NewServer(tf.Handler())
}

// wrap breaks s into newline separated lines of width n, as the contents API does.
func wrap(s string, n int) string {
	var b strings.Builder
	for len(s) > n {
		b.WriteString(s[:n])
		b.WriteByte('\n')
		s = s[n:]
	}
	b.WriteString(s)
	return b.String()
}
