package metrics

import "github.com/prometheus/client_golang/prometheus"

// Model and pipeline Prometheus metrics.
var (
	ModelRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "visualsearch",
			Name:      "model_requests_total",
			Help:      "Total number of model invocations",
		},
		[]string{"model", "status"},
	)

	ModelRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "visualsearch",
			Name:      "model_request_duration_seconds",
			Help:      "Model invocation duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 180},
		},
		[]string{"model"},
	)

	IngestedProductsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "visualsearch",
			Name:      "ingested_products_total",
			Help:      "Products processed by the ingestion pipeline",
		},
		[]string{"status"}, // "indexed" / "failed"
	)

	AssetBytesFetched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "visualsearch",
			Name:      "asset_bytes_fetched_total",
			Help:      "Raw image bytes fetched from the external asset source",
		},
	)
)

var registered bool

// Register registers pipeline metrics. Must be called once from main.
func Register() {
	if registered {
		return
	}
	prometheus.MustRegister(ModelRequestsTotal)
	prometheus.MustRegister(ModelRequestDuration)
	prometheus.MustRegister(IngestedProductsTotal)
	prometheus.MustRegister(AssetBytesFetched)
	registered = true
}
