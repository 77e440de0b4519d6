package prediction

import (
	"math"
	"time"

	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/model"
)

// Predictor estimates one scalar property of a node as of a point in time.
type Predictor interface {
	Predict(metrics *model.NodeMetrics, at time.Time) float64
	Trained() bool
}

// activePredictor wraps the interface so it can sit behind an atomic.Pointer.
type activePredictor struct {
	Predictor
}

// HeuristicLoad assumes the current load ratio persists.
type HeuristicLoad struct{}

func (HeuristicLoad) Predict(metrics *model.NodeMetrics, at time.Time) float64 {
	return metrics.LoadRatio()
}

func (HeuristicLoad) Trained() bool { return false }

// HeuristicReliability blends quality, uptime and packet loss into [0,1] for sane inputs.
type HeuristicReliability struct{}

func (HeuristicReliability) Predict(metrics *model.NodeMetrics, at time.Time) float64 {
	return (metrics.QualityScore*0.4 +
		metrics.UptimePercentage*0.3 +
		(100-metrics.PacketLoss*10)*0.3) / 100
}

func (HeuristicReliability) Trained() bool { return false }

func isFinite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}
