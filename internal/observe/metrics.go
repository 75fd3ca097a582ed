// Package observe provides OpenTelemetry metrics for the preprocessing
// pipeline. A Prometheus exporter bridge is available via [InitProvider] so
// long-running invocations can be scraped through the standard /metrics
// endpoint. A package-level default [Metrics] instance ([DefaultMetrics]) is
// provided for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxprep metrics.
const meterName = "github.com/voxkit/voxprep"

// Metrics holds all OpenTelemetry metric instruments for the pipeline.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// UtteranceDuration tracks per-utterance processing latency. Use with
	// attribute: attribute.String("stage", "mel"|"embed").
	UtteranceDuration metric.Float64Histogram

	// UtterancesProcessed counts utterances that produced a ledger record.
	UtterancesProcessed metric.Int64Counter

	// UtterancesSkipped counts discarded utterances. Use with attribute:
	//   attribute.String("reason", ...)
	UtterancesSkipped metric.Int64Counter

	// UtteranceFailures counts per-unit processing errors.
	UtteranceFailures metric.Int64Counter

	// CorpusHours records the total corpus duration reported by the
	// verification pass.
	CorpusHours metric.Float64Counter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// per-utterance processing, which is dominated by disk and inference I/O.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.UtteranceDuration, err = m.Float64Histogram("voxprep.utterance.duration",
		metric.WithDescription("Per-utterance processing latency by stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.UtterancesProcessed, err = m.Int64Counter("voxprep.utterances.processed",
		metric.WithDescription("Total utterances that produced a ledger record."),
	); err != nil {
		return nil, err
	}
	if met.UtterancesSkipped, err = m.Int64Counter("voxprep.utterances.skipped",
		metric.WithDescription("Total discarded utterances by reason."),
	); err != nil {
		return nil, err
	}
	if met.UtteranceFailures, err = m.Int64Counter("voxprep.utterances.failures",
		metric.WithDescription("Total per-utterance processing errors."),
	); err != nil {
		return nil, err
	}
	if met.CorpusHours, err = m.Float64Counter("voxprep.corpus.hours",
		metric.WithDescription("Total corpus duration reported by verification."),
		metric.WithUnit("h"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] built from the global
// meter provider. Instrument creation errors are impossible with valid
// instrument names, so none are surfaced here.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, _ = NewMetrics(otel.GetMeterProvider())
	})
	return defaultMetrics
}
