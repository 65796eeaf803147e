// Package trigger sends the single downstream rebuild signal that follows a
// settled upload batch. Signals are fire-and-forget: failures are reported,
// never retried.
package trigger

import (
	"context"
	"time"

	"git.home.luguber.info/inful/latexbuilder/internal/config"
	"git.home.luguber.info/inful/latexbuilder/internal/errors"
)

// Signal describes the run that completed.
type Signal struct {
	RunID     string    `json:"run_id"`
	Uploaded  int       `json:"uploaded"`
	Failed    int       `json:"failed"`
	Timestamp time.Time `json:"timestamp"`
}

// Trigger delivers a Signal to the downstream rebuild endpoint.
type Trigger interface {
	Fire(ctx context.Context, sig Signal) error
	Target() string
}

// Status is the reported trigger outcome of a run.
type Status string

const (
	StatusFired      Status = "fired"
	StatusFailed     Status = "failed"
	StatusSuppressed Status = "suppressed"
	StatusDisabled   Status = "disabled"
)

// Result is the trigger outcome recorded in the run report.
type Result struct {
	Status Status
	Target string
	Err    error
}

// New builds the configured transport. It returns nil when no destination is configured.
func New(cfg config.TriggerConfig) (Trigger, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	switch cfg.Type {
	case config.TriggerNATS:
		return NewNATSTrigger(cfg.NATSURL, cfg.Subject, cfg.TimeoutDuration()), nil
	case config.TriggerHTTP, "":
		return NewHTTPTrigger(cfg.URL, cfg.Method, cfg.TimeoutDuration()), nil
	default:
		return nil, errors.ValidationFailed("trigger.type", "unsupported trigger type "+string(cfg.Type))
	}
}

// ShouldFire applies the trigger policy to the upload results.
func ShouldFire(policy config.TriggerPolicy, failedUploads int) bool {
	if policy == config.TriggerFailFast {
		return failedUploads == 0
	}
	return true
}

// Run fires t at most once according to policy. t may be nil when disabled.
func Run(ctx context.Context, t Trigger, policy config.TriggerPolicy, sig Signal) Result {
	if t == nil {
		return Result{Status: StatusDisabled}
	}
	if !ShouldFire(policy, sig.Failed) {
		return Result{Status: StatusSuppressed, Target: t.Target()}
	}
	if sig.Timestamp.IsZero() {
		sig.Timestamp = time.Now().UTC()
	}
	if err := t.Fire(ctx, sig); err != nil {
		return Result{Status: StatusFailed, Target: t.Target(), Err: err}
	}
	return Result{Status: StatusFired, Target: t.Target()}
}
