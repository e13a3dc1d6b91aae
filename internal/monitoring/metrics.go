package monitoring

import (
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/guided-traffic/body-consumer/internal/body"
)

// KubernetesLabels holds Kubernetes metadata labels
var (
	kubernetesNamespace = os.Getenv("KUBERNETES_NAMESPACE")
	kubernetesPodName   = os.Getenv("KUBERNETES_POD_NAME")
	helmReleaseName     = os.Getenv("HELM_RELEASE_NAME")
	helmChartVersion    = os.Getenv("HELM_CHART_VERSION")
)

// getKubernetesLabels returns the Kubernetes labels for metrics
func getKubernetesLabels() prometheus.Labels {
	labels := prometheus.Labels{}

	if kubernetesNamespace != "" {
		labels["kubernetes_namespace"] = kubernetesNamespace
	}
	if kubernetesPodName != "" {
		labels["kubernetes_pod_name"] = kubernetesPodName
	}
	if helmReleaseName != "" {
		labels["helm_release"] = helmReleaseName
	}
	if helmChartVersion != "" {
		labels["helm_chart_version"] = helmChartVersion
	}

	return labels
}

// Registry with Kubernetes labels
var (
	registry = prometheus.NewRegistry()
	factory  = promauto.With(prometheus.WrapRegistererWith(getKubernetesLabels(), registry))
)

// Registry returns the registry all body-consumer metrics are registered with
func Registry() *prometheus.Registry {
	return registry
}

// Prometheus metrics for the body consumer
var (
	// HTTP Request metrics
	RequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bodyc_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	RequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bodyc_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Consumption metrics
	ConsumptionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bodyc_consumptions_total",
			Help: "Total number of settled body consumptions by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	DecodeDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bodyc_decode_duration_seconds",
			Help:    "Time spent decoding a complete body",
			Buckets: []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"kind"},
	)

	BodyBytes = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bodyc_body_bytes",
			Help:    "Size of consumed bodies in bytes",
			Buckets: prometheus.ExponentialBuckets(64, 4, 10),
		},
		[]string{"kind"},
	)

	PendingConsumptions = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bodyc_pending_consumptions",
			Help: "Consumptions started and waiting for their body to complete or decode",
		},
		[]string{"kind"},
	)

	// Envoy external processor metrics
	ExtProcStreamsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bodyc_extproc_streams_total",
			Help: "Total number of ext_proc streams by result",
		},
		[]string{"result"},
	)

	// Blob store metrics
	BlobStoreOperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bodyc_blob_store_operations_total",
			Help: "Total number of blob store operations",
		},
		[]string{"operation", "status"},
	)

	BlobStoreDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bodyc_blob_store_duration_seconds",
			Help:    "Blob store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Server metrics
	ServerInfo = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bodyc_server_info",
			Help: "Server build information",
		},
		[]string{"version", "commit", "build_time"},
	)

	ActiveConnections = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "bodyc_active_connections",
			Help: "Number of active connections",
		},
	)
)

// SetServerInfo sets server build information
func SetServerInfo(version, commit, buildTime string) {
	ServerInfo.WithLabelValues(version, commit, buildTime).Set(1)
}

// Recorder feeds consumption events into the Prometheus metrics
type Recorder struct{}

// NewRecorder creates a consumption recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// ConsumptionStarted implements body.Recorder
func (r *Recorder) ConsumptionStarted(kind body.Kind) {
	PendingConsumptions.WithLabelValues(kind.String()).Inc()
}

// ConsumptionSettled implements body.Recorder
func (r *Recorder) ConsumptionSettled(kind body.Kind, code string, size int, duration time.Duration) {
	ConsumptionsTotal.WithLabelValues(kind.String(), code).Inc()

	// Refused consumptions never started
	if code == body.CodeDisturbed {
		return
	}
	PendingConsumptions.WithLabelValues(kind.String()).Dec()
	DecodeDuration.WithLabelValues(kind.String()).Observe(duration.Seconds())
	BodyBytes.WithLabelValues(kind.String()).Observe(float64(size))
}
