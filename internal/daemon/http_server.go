package daemon

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"git.home.luguber.info/inful/latexbuilder/internal/errors"
	"git.home.luguber.info/inful/latexbuilder/internal/logfields"
	"git.home.luguber.info/inful/latexbuilder/internal/metrics"
	"git.home.luguber.info/inful/latexbuilder/internal/pipeline"
	"git.home.luguber.info/inful/latexbuilder/internal/server/middleware"
	"git.home.luguber.info/inful/latexbuilder/internal/version"
)

// HealthStatus represents the overall health of the daemon.
type HealthStatus string

const (
	HealthStatusHealthy  HealthStatus = "healthy"
	HealthStatusDegraded HealthStatus = "degraded"
)

// HealthResponse is served on /healthz.
type HealthResponse struct {
	Status    HealthStatus `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
	Uptime    string       `json:"uptime"`
	Version   string       `json:"version"`
	Runs      int64        `json:"runs"`
	LastRun   *RunBrief    `json:"last_run,omitempty"`
}

// RunBrief summarises the last run for health checks.
type RunBrief struct {
	RunID      string          `json:"run_id"`
	Status     pipeline.Status `json:"status"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Health reports daemon health. A failed last run degrades it.
func (d *Daemon) Health() *HealthResponse {
	resp := &HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(d.startedAt).Round(time.Second).String(),
		Version:   version.Version,
		Runs:      d.runs.Load(),
	}
	if r := d.LastReport(); r != nil {
		resp.LastRun = &RunBrief{RunID: r.RunID, Status: r.Status, FinishedAt: r.FinishedAt}
		if r.Status == pipeline.StatusFailed {
			resp.Status = HealthStatusDegraded
		}
	}
	return resp
}

func (d *Daemon) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(d.opts.Registry))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		health := d.Health()
		code := http.StatusOK
		if health.Status != HealthStatusHealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, health)
	})
	mux.HandleFunc("/runs/last", func(w http.ResponseWriter, _ *http.Request) {
		r := d.LastReport()
		if r == nil {
			http.Error(w, "no run yet", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, r)
	})
	return middleware.Chain(slog.Default())(mux)
}

func (d *Daemon) startHTTP(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.NewError(errors.CategoryDaemon, "failed to bind metrics listener").WithCause(err).WithContext("addr", addr).Build()
	}
	d.server = &http.Server{Handler: d.handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := d.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("Metrics server stopped", logfields.Error(err))
		}
	}()
	slog.Info("Serving metrics", slog.String("addr", ln.Addr().String()))
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", logfields.Error(err))
	}
}
