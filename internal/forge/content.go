package forge

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"git.home.luguber.info/inful/latexbuilder/internal/errors"
	"git.home.luguber.info/inful/latexbuilder/internal/logfields"
)

// ContentFetcher retrieves a single file from a repository on the content host.
type ContentFetcher interface {
	FetchContent(ctx context.Context, owner, repo, filePath, ref string) ([]byte, error)
}

// GitHubContentClient reads files through the GitHub contents API.
type GitHubContentClient struct {
	api     *APIClient
	timeout time.Duration
}

// NewGitHubContentClient creates a contents API client. token may be empty
// for public repositories. timeout bounds each fetch including retries.
func NewGitHubContentClient(apiURL, token string, timeout time.Duration, opts ...APIOption) (*GitHubContentClient, error) {
	if apiURL == "" {
		apiURL = "https://api.github.com"
	}
	opts = append([]APIOption{
		WithHeader("Accept", "application/vnd.github+json"),
		WithHeader("X-GitHub-Api-Version", "2022-11-28"),
	}, opts...)
	api, err := NewAPIClient(apiURL, token, opts...)
	if err != nil {
		return nil, err
	}
	return &GitHubContentClient{api: api, timeout: timeout}, nil
}

type githubContent struct {
	Type     string `json:"type"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
}

// FetchContent returns the decoded file at filePath in owner/repo on ref.
func (c *GitHubContentClient) FetchContent(ctx context.Context, owner, repo, filePath, ref string) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	endpoint := fmt.Sprintf("/repos/%s/%s/contents/%s",
		url.PathEscape(owner), url.PathEscape(repo), strings.Trim(filePath, "/"))
	if ref != "" {
		endpoint += "?ref=" + url.QueryEscape(ref)
	}
	var payload githubContent
	if err := c.api.Get(ctx, endpoint, &payload); err != nil {
		return nil, err
	}
	if payload.Type != "" && payload.Type != "file" {
		return nil, errors.ForgeError("content path is not a file").
			WithContext("path", filePath).
			WithContext("type", payload.Type).
			Build()
	}

	data, err := decodeContent(payload.Encoding, payload.Content)
	if err != nil {
		return nil, errors.ForgeError("failed to decode content").
			WithCause(err).
			WithContext("path", filePath).
			Build()
	}
	slog.Debug("Fetched content",
		logfields.Repository(owner+"/"+repo),
		logfields.Path(filePath),
		slog.Int("bytes", len(data)))
	return data, nil
}

func decodeContent(encoding, content string) ([]byte, error) {
	switch encoding {
	case "base64":
		// The API wraps base64 at 60 columns.
		return base64.StdEncoding.DecodeString(strings.ReplaceAll(content, "\n", ""))
	case "", "utf-8":
		return []byte(content), nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}
