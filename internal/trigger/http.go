package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"git.home.luguber.info/inful/latexbuilder/internal/errors"
	"git.home.luguber.info/inful/latexbuilder/internal/logfields"
)

// HTTPTrigger calls a rebuild hook URL.
type HTTPTrigger struct {
	client *http.Client
	url    string
	method string
}

// NewHTTPTrigger creates an HTTP trigger. method defaults to POST.
func NewHTTPTrigger(url, method string, timeout time.Duration) *HTTPTrigger {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodPost
	}
	return &HTTPTrigger{client: &http.Client{Timeout: timeout}, url: url, method: method}
}

func (h *HTTPTrigger) Target() string { return h.url }

// Fire sends the signal. Methods without a body (GET, HEAD) send none.
func (h *HTTPTrigger) Fire(ctx context.Context, sig Signal) error {
	var body io.Reader = http.NoBody
	withBody := h.method != http.MethodGet && h.method != http.MethodHead
	if withBody {
		data, err := json.Marshal(sig)
		if err != nil {
			return errors.TriggerError("failed to encode signal").WithCause(err).Build()
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, h.method, h.url, body)
	if err != nil {
		return errors.TriggerError("failed to create trigger request").
			WithCause(err).
			WithContext("url", h.url).
			Build()
	}
	if withBody {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "LatexBuilder/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return errors.TriggerError("trigger request failed").
			WithCause(err).
			WithContext("url", h.url).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 300 {
		return errors.TriggerError(fmt.Sprintf("trigger endpoint returned %s", resp.Status)).
			WithContext("url", h.url).
			WithContext("code", resp.StatusCode).
			Build()
	}
	slog.Debug("Trigger delivered", logfields.URL(h.url), logfields.Status(resp.StatusCode))
	return nil
}
