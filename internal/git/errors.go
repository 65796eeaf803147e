package git

import (
	"context"
	stderrors "errors"
	"net"
	"strings"

	"git.home.luguber.info/inful/latexbuilder/internal/errors"
)

// GitError simplifies creating a git-scoped ClassifiedError.
func GitError(message string) *errors.ErrorBuilder {
	return errors.GitError(message)
}

// ClassifyGitError translates go-git errors into ClassifiedErrors.
func ClassifyGitError(err error, op string, url string) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.AsClassified(err); ok {
		return err
	}

	l := strings.ToLower(err.Error())
	category := errors.CategoryGit
	retryable := false

	switch {
	case strings.Contains(l, "authentication") || strings.Contains(l, "authorization") ||
		strings.Contains(l, "not authorized") || strings.Contains(l, "invalid credentials"):
		category = errors.CategoryAuth
	case strings.Contains(l, "repository not found") || strings.Contains(l, "not found") ||
		strings.Contains(l, "does not exist") || strings.Contains(l, "couldn't find remote ref"):
		category = errors.CategoryNotFound
	case strings.Contains(l, "unsupported protocol") || strings.Contains(l, "protocol not supported"):
		category = errors.CategoryConfig
	case strings.Contains(l, "remote hung up") || strings.Contains(l, "connection reset") ||
		strings.Contains(l, "timeout") || strings.Contains(l, "no route to host") ||
		strings.Contains(l, "rate limit") || strings.Contains(l, "too many requests"):
		category = errors.CategoryNetwork
		retryable = true
	}

	b := errors.NewError(category, "git "+op+" failed").
		WithCause(err).
		WithContext("op", op).
		WithContext("url", url)
	if retryable {
		b = b.Retryable()
	}
	return b.Build()
}

// IsPermanentError reports whether retrying err cannot succeed.
func IsPermanentError(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if ce, ok := errors.AsClassified(err); ok {
		switch ce.Category {
		case errors.CategoryAuth, errors.CategoryNotFound, errors.CategoryConfig:
			return true
		case errors.CategoryNetwork:
			return false
		}
	}
	var nerr net.Error
	if stderrors.As(err, &nerr) {
		return !nerr.Timeout()
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "permission") || strings.Contains(msg, "denied") ||
		strings.Contains(msg, "invalid reference")
}
