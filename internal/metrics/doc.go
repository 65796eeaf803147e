// Package metrics provides the observability hooks for pipeline run metrics.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so nothing needs a nil check:
//
//	p := pipeline.New(deps) // recorder defaults to metrics.NoopRecorder{}
//
// The daemon swaps in a PrometheusRecorder bound to its own registry and
// serves it through HTTPHandler:
//
//	reg := prometheus.NewRegistry()
//	recorder := metrics.NewPrometheusRecorder(reg)
//	http.Handle("/metrics", metrics.HTTPHandler(reg))
package metrics
