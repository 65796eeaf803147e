package forge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"git.home.luguber.info/inful/latexbuilder/internal/errors"
	"git.home.luguber.info/inful/latexbuilder/internal/logfields"
	"git.home.luguber.info/inful/latexbuilder/internal/retry"
)

const userAgent = "LatexBuilder/1.0"

// APIClient issues JSON requests against a content-host REST API. Transient
// failures (transport errors, 429, 5xx, exhausted rate limit) are classified
// retryable and retried according to the configured policy.
type APIClient struct {
	http       *http.Client
	baseURL    *url.URL
	token      string
	authScheme string
	headers    http.Header
	retry      retry.Policy
}

// APIOption customizes an APIClient.
type APIOption func(*APIClient)

// WithAuthScheme sets the Authorization scheme, "Bearer" by default.
func WithAuthScheme(scheme string) APIOption {
	return func(c *APIClient) { c.authScheme = strings.TrimSpace(scheme) }
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) APIOption {
	return func(c *APIClient) { c.headers.Set(key, value) }
}

// WithRetryPolicy retries transient failures. The zero policy disables retries.
func WithRetryPolicy(p retry.Policy) APIOption {
	return func(c *APIClient) { c.retry = p }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) APIOption {
	return func(c *APIClient) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewAPIClient creates a client rooted at apiURL. An empty token sends no
// Authorization header.
func NewAPIClient(apiURL, token string, opts ...APIOption) (*APIClient, error) {
	base, err := url.Parse(strings.TrimSuffix(apiURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.ValidationFailed("api_url", fmt.Sprintf("invalid API URL %q", apiURL))
	}
	c := &APIClient{
		http:       &http.Client{},
		baseURL:    base,
		token:      token,
		authScheme: "Bearer",
		headers:    http.Header{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get requests endpoint and decodes the JSON response into out, retrying
// transient failures. out may be nil.
func (c *APIClient) Get(ctx context.Context, endpoint string, out any) error {
	attempt := 0
	return retry.Do(ctx, c.retry, permanent, func(ctx context.Context) error {
		attempt++
		req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		err = c.do(req, out)
		if err != nil && errors.IsRetryable(err) && attempt <= c.retry.MaxRetries {
			slog.Warn("Content host request failed, retrying",
				logfields.URL(req.URL.Redacted()), slog.Int("attempt", attempt), logfields.Error(err))
		}
		return err
	})
}

func permanent(err error) bool { return !errors.IsRetryable(err) }

// newRequest resolves endpoint against the base URL, keeping any base path
// and any query string in endpoint.
func (c *APIClient) newRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	ref, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.ForgeError("invalid endpoint").
			WithCause(err).
			WithContext("endpoint", endpoint).
			Build()
	}
	u := *c.baseURL
	u.Path = "/" + strings.Trim(strings.TrimSuffix(u.Path, "/")+"/"+strings.TrimPrefix(ref.Path, "/"), "/")
	u.RawQuery = ref.RawQuery

	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.ForgeError("failed to encode request body").WithCause(err).Build()
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, errors.ForgeError("failed to create request").
			WithCause(err).
			WithContext("method", method).
			WithContext("url", u.String()).
			Build()
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", c.authScheme+" "+c.token)
	}
	req.Header.Set("User-Agent", userAgent)
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

func (c *APIClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.NetworkError("content host request failed").
			WithCause(err).
			WithContext("method", req.Method).
			WithContext("url", req.URL.Redacted()).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return statusError(req, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.ForgeError("failed to decode response").
			WithCause(err).
			WithContext("url", req.URL.Redacted()).
			Build()
	}
	return nil
}

// statusError classifies an error response. A 403 with an exhausted rate
// limit is transient, any other 401/403 is an auth failure.
func statusError(req *http.Request, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := "content host API error: " + resp.Status

	var b *errors.ErrorBuilder
	switch code := resp.StatusCode; {
	case code == http.StatusTooManyRequests, code >= http.StatusInternalServerError, rateLimited(resp):
		b = errors.NetworkError(msg)
		if wait := retryAfter(resp); wait > 0 {
			b = b.WithContext(retry.HintKey, wait)
		}
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		b = errors.NewError(errors.CategoryAuth, msg)
	case code == http.StatusNotFound:
		b = errors.NewError(errors.CategoryNotFound, msg)
	default:
		b = errors.ForgeError(msg)
	}
	return b.WithContext("code", resp.StatusCode).
		WithContext("url", req.URL.Redacted()).
		WithContext("response", strings.ReplaceAll(string(snippet), "\n", " ")).
		Build()
}

func rateLimited(resp *http.Response) bool {
	return resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0"
}

func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t)
	}
	return 0
}
