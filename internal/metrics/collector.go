package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "relay_router"

// Collector groups the Prometheus instruments of the routing engine. A nil Collector is valid and records nothing.
type Collector struct {
	telemetryUpdates *prometheus.CounterVec
	mirrorFailures   *prometheus.CounterVec
	selections       *prometheus.CounterVec
	emptySelections  *prometheus.CounterVec
	selectionLatency *prometheus.HistogramVec
	activeNodes      prometheus.Gauge
	weights          *prometheus.GaugeVec
	modelTrained     *prometheus.GaugeVec
}

func NewCollector(registerer prometheus.Registerer) *Collector {
	collector := &Collector{
		telemetryUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_updates_total",
			Help:      "Telemetry readings applied to the metrics registry.",
		}, []string{"source"}),
		mirrorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_failures_total",
			Help:      "Failed metrics cache operations.",
		}, []string{"operation"}),
		selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selections_total",
			Help:      "Node selection queries served.",
		}, []string{"mode"}),
		emptySelections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "empty_selections_total",
			Help:      "Node selection queries that found no candidates.",
		}, []string{"mode"}),
		selectionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "selection_duration_seconds",
			Help:      "Time spent filtering, scoring and ranking nodes.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}, []string{"mode"}),
		activeNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_nodes",
			Help:      "Nodes inside the freshness window at the last selection.",
		}),
		weights: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scoring_weight",
			Help:      "Active weight per scoring criterion.",
		}, []string{"criterion"}),
		modelTrained: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_trained",
			Help:      "1 when the predictor runs a trained model, 0 on the heuristic.",
		}, []string{"predictor"}),
	}

	registerer.MustRegister(
		collector.telemetryUpdates,
		collector.mirrorFailures,
		collector.selections,
		collector.emptySelections,
		collector.selectionLatency,
		collector.activeNodes,
		collector.weights,
		collector.modelTrained,
	)

	return collector
}

func (collector *Collector) TelemetryReceived(source string) {
	if collector == nil {
		return
	}
	collector.telemetryUpdates.WithLabelValues(source).Inc()
}

func (collector *Collector) MirrorFailed(operation string) {
	if collector == nil {
		return
	}
	collector.mirrorFailures.WithLabelValues(operation).Inc()
}

// SelectionServed records one query of the given mode that ran for elapsed and returned results decisions.
func (collector *Collector) SelectionServed(mode string, elapsed time.Duration, results int) {
	if collector == nil {
		return
	}
	collector.selections.WithLabelValues(mode).Inc()
	collector.selectionLatency.WithLabelValues(mode).Observe(elapsed.Seconds())
	if results == 0 {
		collector.emptySelections.WithLabelValues(mode).Inc()
	}
}

func (collector *Collector) SetActiveNodes(count int) {
	if collector == nil {
		return
	}
	collector.activeNodes.Set(float64(count))
}

func (collector *Collector) SetWeights(weights map[string]float64) {
	if collector == nil {
		return
	}
	collector.weights.Reset()
	for criterion, weight := range weights {
		collector.weights.WithLabelValues(criterion).Set(weight)
	}
}

func (collector *Collector) SetModelTrained(predictor string, trained bool) {
	if collector == nil {
		return
	}
	value := 0.0
	if trained {
		value = 1
	}
	collector.modelTrained.WithLabelValues(predictor).Set(value)
}
