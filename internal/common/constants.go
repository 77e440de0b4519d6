package common

import "time"

// Node liveness
const FRESHNESS_WINDOW = 300 * time.Second
const METRICS_CACHE_TTL = 5 * time.Minute
const METRICS_CACHE_KEY_FORMAT = "node:%s:metrics"

// Scoring criteria
const CRITERION_LATENCY = "latency"
const CRITERION_BANDWIDTH = "bandwidth"
const CRITERION_QUALITY = "quality"
const CRITERION_LOAD = "load"
const CRITERION_DISTANCE = "distance"

var CRITERIA = []string{CRITERION_LATENCY, CRITERION_BANDWIDTH, CRITERION_QUALITY, CRITERION_LOAD, CRITERION_DISTANCE}

// Normalization bounds
const WORST_LATENCY_MS = 200.0
const FULL_BANDWIDTH_MBPS = 100.0
const ZERO_SCORE_DISTANCE_KM = 500.0

// Load blend between the observed ratio and the predicted load
const CURRENT_LOAD_WEIGHT = 0.6
const PREDICTED_LOAD_WEIGHT = 0.4

// Selection defaults
const DEFAULT_BEST_NUM_NODES = 3
const DEFAULT_MIN_QUALITY = 50.0
const DEFAULT_BALANCED_NUM_NODES = 5
const BALANCED_MAX_LOAD_RATIO = 0.8
const BALANCED_CONFIDENCE = 0.8
const CONFIDENCE_MULTIPLIER = 1.2

// Training
const MIN_TRAINING_SAMPLES = 100

// Events
const TELEMETRY_EVENT_TYPE = "TelemetryReceived"
const WEIGHTS_PROPOSAL_EXECUTED_EVENT_TYPE = "WeightsProposalExecuted"

// DefaultWeights returns a fresh copy of the initial weight vector.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		CRITERION_LATENCY:   0.25,
		CRITERION_BANDWIDTH: 0.25,
		CRITERION_QUALITY:   0.20,
		CRITERION_LOAD:      0.15,
		CRITERION_DISTANCE:  0.15,
	}
}
