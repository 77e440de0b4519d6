package routing

import (
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/model"
)

type LoadEstimator interface {
	PredictLoad(metrics *model.NodeMetrics, hoursAhead int) float64
}

type ReliabilityEstimator interface {
	PredictReliability(metrics *model.NodeMetrics) float64
}

// ScoringEngine turns a node snapshot into normalized components and a weighted composite.
type ScoringEngine struct {
	load        LoadEstimator
	reliability ReliabilityEstimator
	hoursAhead  int
}

func NewScoringEngine(load LoadEstimator, reliability ReliabilityEstimator, hoursAhead int) *ScoringEngine {
	return &ScoringEngine{
		load:        load,
		reliability: reliability,
		hoursAhead:  hoursAhead,
	}
}

func (engine *ScoringEngine) Components(node *model.NodeMetrics, userLat, userLon float64) model.ScoreBreakdown {
	predictedLoad := engine.load.PredictLoad(node, engine.hoursAhead)
	reliability := engine.reliability.PredictReliability(node)
	distanceKm := common.Distance(userLat, userLon, node.Latitude, node.Longitude)

	return model.ScoreBreakdown{
		Latency:   LatencyScore(node.AvgLatency),
		Bandwidth: BandwidthScore(node.BandwidthAvailable),
		Quality:   QualityComponent(node.QualityScore, reliability),
		Load:      LoadScore(node.LoadRatio(), predictedLoad),
		Distance:  DistanceScore(distanceKm),
	}
}

// Score returns the composite score and its components. The composite is not clamped.
func (engine *ScoringEngine) Score(node *model.NodeMetrics, userLat, userLon float64, weights Weights) (float64, model.ScoreBreakdown) {
	breakdown := engine.Components(node, userLat, userLon)
	return Composite(weights, breakdown), breakdown
}

// Composite is Σ weight[c] * component[c], summed in criteria order so equal inputs give equal scores.
// Weights are expected to be normalized already.
func Composite(weights Weights, breakdown model.ScoreBreakdown) float64 {
	composite := 0.0
	for _, criterion := range common.CRITERIA {
		component, _ := breakdown.Component(criterion)
		composite += weights[criterion] * component
	}
	return composite
}

func LatencyScore(latencyMs float64) float64 {
	return max(0, 1-latencyMs/common.WORST_LATENCY_MS)
}

func BandwidthScore(bandwidthMbps float64) float64 {
	return min(1, bandwidthMbps/common.FULL_BANDWIDTH_MBPS)
}

func LoadScore(currentLoadRatio, predictedLoad float64) float64 {
	return 1 - (currentLoadRatio*common.CURRENT_LOAD_WEIGHT + predictedLoad*common.PREDICTED_LOAD_WEIGHT)
}

func DistanceScore(distanceKm float64) float64 {
	return max(0, 1-distanceKm/common.ZERO_SCORE_DISTANCE_KM)
}

func QualityComponent(qualityScore, reliability float64) float64 {
	return qualityScore / 100 * reliability
}
