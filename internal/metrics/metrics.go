package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "flipbook"

var (
	renders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_renders_total",
			Help:      "Page rasterisations by tier and result (ok, failed, cancelled)",
		},
		[]string{"tier", "result"},
	)

	renderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "page_render_duration_seconds",
			Help:      "Duration of page rasterisation and encoding by tier",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"tier"},
	)

	replaces = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_replacements_total",
			Help:      "Bitmaps published to a display by phase",
		},
		[]string{"phase"},
	)

	dropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_replacements_dropped_total",
			Help:      "Bitmaps discarded before reaching a display by reason",
		},
		[]string{"reason"},
	)

	sessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Open viewer sessions",
		},
	)

	loads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "document_loads_total",
			Help:      "Document loads by result (ok, fatal_load, adapter_init, superseded)",
		},
		[]string{"result"},
	)

	fetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetches_total",
			Help:      "Document source fetches by scheme and result",
		},
		[]string{"scheme", "result"},
	)

	fetchBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_fetch_bytes",
			Help:      "Size of fetched documents",
			Buckets:   prometheus.ExponentialBuckets(64*1024, 4, 8),
		},
	)

	relayReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_requests_total",
			Help:      "Relay requests by status code",
		},
		[]string{"code"},
	)

	relayLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_request_duration_seconds",
			Help:      "Duration of relayed upstream requests",
			Buckets:   prometheus.DefBuckets,
		},
	)

	slotsInUse = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "render_slots_in_use",
			Help:      "Process-wide rasterisation slots currently held",
		},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(renders, renderLatency, replaces, dropped, sessions, loads, fetches, fetchBytes, relayReqs, relayLatency, slotsInUse)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveRender(tier, result string, dur time.Duration) {
	renders.WithLabelValues(tier, result).Inc()
	if result == "ok" {
		renderLatency.WithLabelValues(tier).Observe(dur.Seconds())
	}
}

func IncReplace(phase string)         { replaces.WithLabelValues(phase).Inc() }
func IncReplaceDropped(reason string) { dropped.WithLabelValues(reason).Inc() }
func SetSessions(n int)               { sessions.Set(float64(n)) }
func IncLoad(result string)           { loads.WithLabelValues(result).Inc() }
func SetSlotsInUse(n int)             { slotsInUse.Set(float64(n)) }

func ObserveFetch(scheme, result string, size int64) {
	fetches.WithLabelValues(scheme, result).Inc()
	if size > 0 {
		fetchBytes.Observe(float64(size))
	}
}

func ObserveRelay(code int, dur time.Duration) {
	relayReqs.WithLabelValues(codeLabel(code)).Inc()
	relayLatency.Observe(dur.Seconds())
}

func codeLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
