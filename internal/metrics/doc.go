// Package metrics provides the observability hooks for check runs.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so no call site needs a nil check:
//
//	q := queue.New(cfg, queue.WithRecorder(metrics.NewPrometheusRecorder(reg)))
//
// The Prometheus implementation registers its collectors on the registry it
// is given; HTTPHandler exposes that registry for scraping.
package metrics
