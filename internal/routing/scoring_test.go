package routing

import (
	"testing"

	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/model"
	"github.com/stretchr/testify/assert"
)

type fixedLoad float64

func (load fixedLoad) PredictLoad(*model.NodeMetrics, int) float64 { return float64(load) }

type fixedReliability float64

func (reliability fixedReliability) PredictReliability(*model.NodeMetrics) float64 {
	return float64(reliability)
}

func TestComponentScores(t *testing.T) {
	assert.Equal(t, 1.0, LatencyScore(0))
	assert.Equal(t, 0.5, LatencyScore(100))
	assert.Equal(t, 0.0, LatencyScore(200))
	assert.Equal(t, 0.0, LatencyScore(350))

	assert.Equal(t, 0.0, BandwidthScore(0))
	assert.Equal(t, 0.5, BandwidthScore(50))
	assert.Equal(t, 1.0, BandwidthScore(250))

	assert.Equal(t, 1.0, DistanceScore(0))
	assert.Equal(t, 0.5, DistanceScore(250))
	assert.Equal(t, 0.0, DistanceScore(900))

	assert.Equal(t, 1.0, LoadScore(0, 0))
	assert.InDelta(t, 0.0, LoadScore(1, 1), 1e-12)
	assert.InDelta(t, 0.5, LoadScore(0.5, 0.5), 1e-12)

	assert.Equal(t, 0.4, QualityComponent(80, 0.5))
}

func TestComponentsStayInUnitInterval(t *testing.T) {
	engine := NewScoringEngine(fixedLoad(0.7), fixedReliability(0.9), 1)
	nodes := []model.NodeMetrics{
		{NodeId: "a", BandwidthAvailable: 500, MaxConnections: 10, CurrentConnections: 3, AvgLatency: 400, QualityScore: 100},
		{NodeId: "b", Latitude: 60, Longitude: 60, MaxConnections: 100, QualityScore: 0},
		{NodeId: "c", Latitude: 0.1, BandwidthAvailable: 20, MaxConnections: 50, CurrentConnections: 49, AvgLatency: 10, QualityScore: 55},
	}

	for _, node := range nodes {
		breakdown := engine.Components(&node, 0, 0)
		for _, criterion := range common.CRITERIA {
			component, ok := breakdown.Component(criterion)
			assert.True(t, ok)
			assert.GreaterOrEqual(t, component, 0.0, "%s %s", node.NodeId, criterion)
			assert.LessOrEqual(t, component, 1.0, "%s %s", node.NodeId, criterion)
		}
	}
}

func TestScoreUsesPredictors(t *testing.T) {
	engine := NewScoringEngine(fixedLoad(0.5), fixedReliability(0.5), 1)
	node := model.NodeMetrics{NodeId: "n", BandwidthAvailable: 100, MaxConnections: 100, QualityScore: 100}
	weights := Weights{"latency": 0, "bandwidth": 0, "quality": 0.5, "load": 0.5, "distance": 0}

	score, breakdown := engine.Score(&node, 0, 0, weights)

	assert.Equal(t, 0.5, breakdown.Quality)
	assert.InDelta(t, 0.8, breakdown.Load, 1e-12)
	assert.InDelta(t, 0.65, score, 1e-12)
}

func TestCompositeIsWeightedSum(t *testing.T) {
	breakdown := model.ScoreBreakdown{Latency: 1, Bandwidth: 0.5, Quality: 0.8, Load: 0.2, Distance: 0}
	weights := Weights{"latency": 0.25, "bandwidth": 0.25, "quality": 0.2, "load": 0.15, "distance": 0.15}

	assert.InDelta(t, 0.25+0.125+0.16+0.03, Composite(weights, breakdown), 1e-12)
}
