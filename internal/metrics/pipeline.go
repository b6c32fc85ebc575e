package metrics

import "github.com/prometheus/client_golang/prometheus"

// Chat pipeline and language model metrics.
var (
	ModelRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docchat",
			Name:      "model_requests_total",
			Help:      "Language model calls by model, call kind and outcome",
		},
		[]string{"model", "kind", "status"}, // kind: stream / complete
	)

	ModelRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docchat",
			Name:      "model_retries_total",
			Help:      "Retried language model calls after a transient failure",
		},
		[]string{"model"},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docchat",
			Name:      "stage_duration_seconds",
			Help:      "Duration of one generation stage from call to last chunk",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"stage", "status"},
	)

	StreamChunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docchat",
			Name:      "stream_chunks_total",
			Help:      "Chunks produced per generation stage",
		},
		[]string{"stage"},
	)

	RetrievedPassages = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "docchat",
			Name:      "retrieved_passages",
			Help:      "Passages returned per retrieval",
			Buckets:   []float64{0, 1, 2, 3, 5, 10},
		},
	)

	ChatRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docchat",
			Name:      "chat_requests_total",
			Help:      "Chat exchanges by outcome",
		},
		[]string{"outcome"},
	)

	AssistantPersistFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docchat",
			Name:      "assistant_persist_failures_total",
			Help:      "Answers delivered to the caller but not recorded in the conversation",
		},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers chat pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(ModelRequestsTotal)
	prometheus.MustRegister(ModelRetriesTotal)
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(StreamChunksTotal)
	prometheus.MustRegister(RetrievedPassages)
	prometheus.MustRegister(ChatRequestsTotal)
	prometheus.MustRegister(AssistantPersistFailuresTotal)
	pipelineMetricsRegistered = true
}
