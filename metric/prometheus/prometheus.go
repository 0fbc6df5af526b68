// Package prometheus wires the admin HTTP sidecar: a /metrics endpoint
// backed by a caller-supplied registry, and a /status endpoint, both
// instrumented with the same go-http-metrics middleware the cache's own
// Prometheus collectors are exposed through.
package prometheus

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpmetrics "github.com/slok/go-http-metrics/metrics/prometheus"
	"github.com/slok/go-http-metrics/middleware"
	middlewarestd "github.com/slok/go-http-metrics/middleware/std"
)

// durationBuckets is the buckets used for Prometheus histograms in seconds.
var durationBuckets = []float64{.5, 1, 2.5, 5, 10, 20, 40, 80, 160, 320}

// NewAdminMux returns a ServeMux exposing reg's collectors at /metrics and
// status at /status, both wrapped with request-duration instrumentation.
func NewAdminMux(reg *prometheus.Registry, status http.HandlerFunc) *http.ServeMux {
	metricsMdlw := middleware.New(middleware.Config{
		Recorder: httpmetrics.NewRecorder(httpmetrics.Config{
			DurationBuckets: durationBuckets,
		}),
	})

	mux := http.NewServeMux()
	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	mux.Handle("/metrics", middlewarestd.Handler("metrics", metricsMdlw, handler))
	mux.Handle("/status", middlewarestd.Handler("status", metricsMdlw, status))
	return mux
}
