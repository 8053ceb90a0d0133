// Package metrics exposes Prometheus collectors for the pipeline service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	harvestItemsTotal          *prometheus.CounterVec
	bronzeFlushesTotal         *prometheus.CounterVec
	bronzeDocumentsTotal       *prometheus.CounterVec
	silverRowsTotal            *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		harvestItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_harvest_items_total",
				Help: "Total number of discovered listings, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		bronzeFlushesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_bronze_flushes_total",
				Help: "Total number of bronze batch flushes, labeled by result.",
			},
			[]string{"result"},
		)

		bronzeDocumentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_bronze_documents_total",
				Help: "Total number of documents written to bronze, labeled by disposition.",
			},
			[]string{"disposition"},
		)

		silverRowsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_silver_rows_total",
				Help: "Total number of rows upserted into silver, labeled by table.",
			},
			[]string{"table"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHarvestItem increments the harvest item counter for the outcome.
func ObserveHarvestItem(outcome string) {
	Init()
	harvestItemsTotal.WithLabelValues(outcome).Inc()
}

// ObserveBronzeFlush records one batch flush and its document dispositions.
func ObserveBronzeFlush(result string, matched, upserted, failed int) {
	Init()
	bronzeFlushesTotal.WithLabelValues(result).Inc()
	bronzeDocumentsTotal.WithLabelValues("matched").Add(float64(matched))
	bronzeDocumentsTotal.WithLabelValues("upserted").Add(float64(upserted))
	bronzeDocumentsTotal.WithLabelValues("failed").Add(float64(failed))
}

// ObserveSilverRows adds to the per-table silver row counter.
func ObserveSilverRows(table string, rows int) {
	Init()
	if rows > 0 {
		silverRowsTotal.WithLabelValues(table).Add(float64(rows))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
