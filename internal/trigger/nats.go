package trigger

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/latexbuilder/internal/errors"
	"git.home.luguber.info/inful/latexbuilder/internal/logfields"
)

// NATSTrigger publishes the signal on a NATS subject. It connects per signal,
// so an unreachable server only fails the trigger of that run.
type NATSTrigger struct {
	url     string
	subject string
	timeout time.Duration
}

// NewNATSTrigger creates a NATS trigger.
func NewNATSTrigger(url, subject string, timeout time.Duration) *NATSTrigger {
	return &NATSTrigger{url: url, subject: subject, timeout: timeout}
}

func (n *NATSTrigger) Target() string { return n.url + "#" + n.subject }

// Fire connects, publishes and flushes so delivery to the server is confirmed.
func (n *NATSTrigger) Fire(ctx context.Context, sig Signal) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return errors.TriggerError("failed to encode signal").WithCause(err).Build()
	}

	opts := []nats.Option{nats.Name("latexbuilder")}
	if n.timeout > 0 {
		opts = append(opts, nats.Timeout(n.timeout))
	}
	conn, err := nats.Connect(n.url, opts...)
	if err != nil {
		return errors.TriggerError("failed to connect to NATS").
			WithCause(err).
			WithContext("url", n.url).
			Build()
	}
	defer conn.Close()

	if err := conn.Publish(n.subject, data); err != nil {
		return errors.TriggerError("failed to publish signal").
			WithCause(err).
			WithContext("subject", n.subject).
			Build()
	}

	flushCtx := ctx
	if _, ok := ctx.Deadline(); !ok && n.timeout > 0 {
		var cancel context.CancelFunc
		flushCtx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}
	if err := conn.FlushWithContext(flushCtx); err != nil {
		return errors.TriggerError("failed to flush signal").
			WithCause(err).
			WithContext("subject", n.subject).
			Build()
	}
	slog.Debug("Trigger published", logfields.Subject(n.subject), logfields.RunID(sig.RunID))
	return nil
}
