package metrics

import (
	"net/http"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "latexbuilder"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once            sync.Once
	stageDuration   *prom.HistogramVec
	stageResults    *prom.CounterVec
	runDuration     prom.Histogram
	runOutcome      *prom.CounterVec
	nodesResolved   prom.Gauge
	compileUnits    *prom.CounterVec
	compileDuration *prom.HistogramVec
	uploadResults   *prom.CounterVec
	triggerResults  *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual pipeline stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"})
		pr.stageResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"})
		pr.runDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Total pipeline run duration",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		})
		pr.runOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "run_outcomes_total",
			Help:      "Pipeline runs by final status",
		}, []string{"outcome"})
		pr.nodesResolved = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "nodes_resolved",
			Help:      "Nodes with a resolved content tree in the last run",
		})
		pr.compileUnits = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "compile_units_total",
			Help:      "Compilation units by terminal state",
		}, []string{"state"})
		pr.compileDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "compile_duration_seconds",
			Help:      "Duration of individual document compilations",
			Buckets:   prom.DefBuckets,
		}, []string{"node", "result"})
		pr.uploadResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "upload_results_total",
			Help:      "Artifact uploads by success/failure",
		}, []string{"result"})
		pr.triggerResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "trigger_results_total",
			Help:      "Downstream trigger results",
		}, []string{"result"})
		reg.MustRegister(pr.stageDuration, pr.stageResults, pr.runDuration, pr.runOutcome,
			pr.nodesResolved, pr.compileUnits, pr.compileDuration, pr.uploadResults, pr.triggerResults)
	})
	return pr
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil || p.stageResults == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil || p.runDuration == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncRunOutcome(outcome string) {
	if p == nil || p.runOutcome == nil {
		return
	}
	p.runOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) SetNodesResolved(n int) {
	if p == nil || p.nodesResolved == nil {
		return
	}
	p.nodesResolved.Set(float64(n))
}

func (p *PrometheusRecorder) IncCompileUnit(state string) {
	if p == nil || p.compileUnits == nil {
		return
	}
	p.compileUnits.WithLabelValues(state).Inc()
}

func (p *PrometheusRecorder) ObserveCompileDuration(node string, d time.Duration, success bool) {
	if p == nil || p.compileDuration == nil {
		return
	}
	p.compileDuration.WithLabelValues(node, resultLabel(success)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncUploadResult(success bool) {
	if p == nil || p.uploadResults == nil {
		return
	}
	p.uploadResults.WithLabelValues(resultLabel(success)).Inc()
}

func (p *PrometheusRecorder) IncTriggerResult(result string) {
	if p == nil || p.triggerResults == nil {
		return
	}
	p.triggerResults.WithLabelValues(result).Inc()
}

// HTTPHandler serves reg in the Prometheus exposition format, or the default
// registry when reg is nil.
func HTTPHandler(reg *prom.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
