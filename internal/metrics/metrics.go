package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ModelSizeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "smsmodel_model_size_bytes",
		Help: "Size of the last exported model file in bytes",
	})

	ModelParameters = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "smsmodel_model_parameters",
		Help: "Number of weights in the last built classifier",
	})

	VocabTokens = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "smsmodel_vocab_tokens",
		Help: "Number of tokens in the last written vocabulary",
	})

	VocabPaddingTokens = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "smsmodel_vocab_padding_tokens",
		Help: "Number of synthetic filler tokens in the last written vocabulary",
	})

	ExportDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "smsmodel_export_duration_seconds",
		Help:    "Duration of model conversion to the mobile format",
		Buckets: prometheus.DefBuckets,
	})

	SmokeTests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smsmodel_smoke_tests_total",
		Help: "Smoke test runs by result",
	}, []string{"result"})

	InferenceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "smsmodel_inference_duration_seconds",
		Help:    "Duration of a single interpreter invocation",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})

	InterpreterAllocatedBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "smsmodel_interpreter_allocated_bytes",
		Help: "Bytes allocated for tensors by the last interpreter",
	})

	OperatorInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smsmodel_operator_invocations_total",
		Help: "Builtin operator evaluations by operator name",
	}, []string{"op"})
)

const (
	SmokeResultOK     = "ok"
	SmokeResultFailed = "failed"
)

func RecordModel(sizeBytes int64, params int, exportDuration time.Duration) {
	ModelSizeBytes.Set(float64(sizeBytes))
	ModelParameters.Set(float64(params))
	ExportDuration.Observe(exportDuration.Seconds())
}

func RecordVocab(tokens, padding int) {
	VocabTokens.Set(float64(tokens))
	VocabPaddingTokens.Set(float64(padding))
}

func RecordSmokeTest(ok bool) {
	if ok {
		SmokeTests.WithLabelValues(SmokeResultOK).Inc()
		return
	}
	SmokeTests.WithLabelValues(SmokeResultFailed).Inc()
}

func RecordInference(duration time.Duration) {
	InferenceDuration.Observe(duration.Seconds())
}

func RecordAllocation(bytes int64) {
	InterpreterAllocatedBytes.Set(float64(bytes))
}

func RecordOperator(op string) {
	OperatorInvocations.WithLabelValues(op).Inc()
}

// WriteTextfile dumps every registered collector in the Prometheus text
// format, for node_exporter's textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
