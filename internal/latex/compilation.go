package latex

import (
	"bufio"
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/latexbuilder/internal/engine"
	"git.home.luguber.info/inful/latexbuilder/internal/errors"
	"git.home.luguber.info/inful/latexbuilder/internal/logfields"
	"git.home.luguber.info/inful/latexbuilder/internal/workspace"
)

const (
	outputDirName   = ".latexbuilder-out"
	maxUserErrorLen = 400
)

type compilation struct {
	req     engine.Request
	dl      engine.Downloader
	runner  Runner
	storage *workspace.Manager

	mu         sync.Mutex
	success    bool
	userError  string
	outputPath string
}

func (c *compilation) Fingerprint() string { return c.req.Fingerprint }

func (c *compilation) Success() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.success
}

func (c *compilation) UserError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userError
}

func (c *compilation) OutputPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outputPath
}

// Run compiles the target inside the download directory. LaTeX failures are
// reported through UserError; a non-nil error means the engine itself failed.
func (c *compilation) Run(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.success, c.userError, c.outputPath = false, "", ""
	if c.dl == nil {
		return errors.EngineError("compilation has no download").
			WithContext("fingerprint", c.req.Fingerprint).
			Build()
	}

	root := c.dl.Dir()
	srcDir := filepath.Join(root, filepath.FromSlash(c.req.Workdir))
	target := filepath.Join(root, filepath.FromSlash(c.req.TargetFile))
	relTarget, err := filepath.Rel(srcDir, target)
	if err != nil {
		return errors.EngineError("target is outside the working directory").WithCause(err).Build()
	}
	outDir := filepath.Join(root, outputDirName)
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return errors.EngineError("failed to create output directory").WithCause(err).Build()
	}

	fields := strings.Fields(c.req.Command)
	args := append(fields[1:],
		"-interaction=nonstopmode",
		"-halt-on-error",
		"-output-directory="+outDir,
		relTarget,
	)

	start := time.Now()
	out, runErr := c.runner.Run(ctx, srcDir, fields[0], args...)
	duration := time.Since(start)

	if runErr != nil {
		if ctx.Err() != nil {
			return errors.EngineError("compilation aborted").
				WithCause(ctx.Err()).
				WithContext("target", c.req.TargetFile).
				Build()
		}
		if stderrors.Is(runErr, exec.ErrNotFound) {
			return errors.EngineError("compile command not found").
				WithCause(runErr).
				WithContext("command", fields[0]).
				Build()
		}
		c.userError = summarizeLog(out, runErr)
		slog.Debug("LaTeX command failed",
			logfields.Path(c.req.TargetFile),
			logfields.DurationMS(float64(duration.Milliseconds())),
			logfields.Error(runErr))
		return nil
	}

	base := strings.TrimSuffix(filepath.Base(target), filepath.Ext(target))
	produced := filepath.Join(outDir, base+".pdf")
	if _, err := os.Stat(produced); err != nil {
		c.userError = fmt.Sprintf("%s produced no PDF", c.req.TargetFile)
		return nil
	}

	storeDir, err := c.storage.CreateSubdir(c.req.Fingerprint)
	if err != nil {
		return errors.EngineError("failed to create artifact directory").WithCause(err).Build()
	}
	dest := filepath.Join(storeDir, base+".pdf")
	if err := copyFile(produced, dest); err != nil {
		return errors.EngineError("failed to store artifact").WithCause(err).WithContext("path", dest).Build()
	}

	c.success = true
	c.outputPath = dest
	slog.Debug("Compiled document",
		logfields.Path(c.req.TargetFile),
		logfields.Fingerprint(c.req.Fingerprint),
		logfields.DurationMS(float64(duration.Milliseconds())))
	return nil
}

// summarizeLog returns the first LaTeX error line ("! ...") or the last
// non-empty line of output.
func summarizeLog(out []byte, runErr error) string {
	var first, last string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if first == "" && strings.HasPrefix(line, "!") {
			first = line
		}
		last = line
	}
	msg := first
	if msg == "" {
		msg = last
	}
	if msg == "" {
		msg = runErr.Error()
	}
	if len(msg) > maxUserErrorLen {
		msg = msg[:maxUserErrorLen]
	}
	return "compilation failed: " + msg
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) //nolint:gosec // path built from engine-owned directories
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640) //nolint:gosec // engine-owned storage path
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
