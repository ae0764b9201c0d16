// Package metrics provides build observability hooks.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics collection never requires nil checks at call
// sites. The preview server swaps in a PrometheusRecorder backed by its own
// registry when metrics are enabled in configuration:
//
//	reg := prom.NewRegistry()
//	recorder := metrics.NewPrometheusRecorder(reg)
//	builder.Recorder = recorder
//
// One-shot builds keep the noop default; only the long-running preview
// server exposes a scrape endpoint.
package metrics
