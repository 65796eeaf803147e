package git

import (
	"context"
	"log/slog"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"git.home.luguber.info/inful/latexbuilder/internal/logfields"
	"git.home.luguber.info/inful/latexbuilder/internal/retry"
)

// Client performs clones with optional authentication, shallow depth and retries.
type Client struct {
	auth   transport.AuthMethod
	depth  int
	policy retry.Policy
}

// Option configures a Client.
type Option func(*Client)

// WithToken authenticates HTTPS clones with a personal access token.
func WithToken(token string) Option {
	return func(c *Client) { c.auth = TokenAuth(token) }
}

// WithDepth limits clone history; zero clones the full history.
func WithDepth(depth int) Option {
	return func(c *Client) {
		if depth > 0 {
			c.depth = depth
		}
	}
}

// WithRetryPolicy retries transient clone failures according to p.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// NewClient creates a clone client. Without options it clones full history once.
func NewClient(opts ...Option) *Client {
	c := &Client{policy: retry.Policy{MaxRetries: 0}}
	for _, o := range opts {
		o(c)
	}
	return c
}

// CloneResult describes a completed clone.
type CloneResult struct {
	Path   string
	Commit string
}

// Clone fetches branch of url into dest. dest is removed first so a retried
// attempt never sees a half-written checkout.
func (c *Client) Clone(ctx context.Context, url, branch, dest string) (CloneResult, error) {
	var result CloneResult
	err := retry.Do(ctx, c.policy, IsPermanentError, func(ctx context.Context) error {
		r, err := c.cloneOnce(ctx, url, branch, dest)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

func (c *Client) cloneOnce(ctx context.Context, url, branch, dest string) (CloneResult, error) {
	slog.Debug("Cloning repository", logfields.URL(url), slog.String("branch", branch), logfields.Path(dest))
	if err := os.RemoveAll(dest); err != nil {
		return CloneResult{}, GitError("failed to reset clone destination").
			WithCause(err).
			WithContext("path", dest).
			Build()
	}

	opts := &git.CloneOptions{URL: url, Auth: c.auth}
	if branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(branch)
		opts.SingleBranch = true
	}
	if c.depth > 0 {
		opts.Depth = c.depth
	}

	repository, err := git.PlainCloneContext(ctx, dest, false, opts)
	if err != nil {
		_ = os.RemoveAll(dest)
		return CloneResult{}, ClassifyGitError(err, "clone", url)
	}

	result := CloneResult{Path: dest}
	if ref, herr := repository.Head(); herr == nil {
		result.Commit = ref.Hash().String()
		slog.Info("Repository cloned", logfields.URL(url), slog.String("commit", result.Commit[:8]), logfields.Path(dest))
	} else {
		slog.Info("Repository cloned", logfields.URL(url), logfields.Path(dest))
	}
	return result, nil
}
