package prediction

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/model"
	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-hclog"
)

const ReliabilityModelKind = "reliability"

const reliabilityFeatureCount = 5

// TrainedReliability is a logistic model over [quality, uptime, packet loss, latency, bandwidth].
type TrainedReliability struct {
	Scaler     *StandardScaler
	Regression *LogisticRegression
}

func (trained *TrainedReliability) Predict(metrics *model.NodeMetrics, at time.Time) float64 {
	features := reliabilityFeatures(metrics.QualityScore, metrics.UptimePercentage, metrics.PacketLoss,
		metrics.AvgLatency, metrics.BandwidthAvailable)
	return trained.Regression.Probability(trained.Scaler.Transform(features))
}

func (trained *TrainedReliability) Trained() bool { return true }

// ReliabilityPredictor estimates the probability that a node is reliable.
// The heuristic and the trained model are not calibrated against each other.
type ReliabilityPredictor struct {
	active atomic.Pointer[activePredictor]
	clock  clock.Clock
	logger hclog.Logger
}

func NewReliabilityPredictor(logger hclog.Logger, clk clock.Clock) *ReliabilityPredictor {
	predictor := &ReliabilityPredictor{
		clock:  clk,
		logger: logger.Named("reliability-predictor"),
	}
	predictor.Use(HeuristicReliability{})
	return predictor
}

func (predictor *ReliabilityPredictor) Use(strategy Predictor) {
	predictor.active.Store(&activePredictor{Predictor: strategy})
}

func (predictor *ReliabilityPredictor) Trained() bool {
	return predictor.active.Load().Trained()
}

func (predictor *ReliabilityPredictor) PredictReliability(metrics *model.NodeMetrics) float64 {
	now := predictor.clock.Now().UTC()

	strategy := predictor.active.Load()
	reliability := strategy.Predict(metrics, now)
	if strategy.Trained() && !isFinite(reliability) {
		predictor.logger.Warn("trained reliability model produced a non-finite value, using heuristic", "node", metrics.NodeId)
		return HeuristicReliability{}.Predict(metrics, now)
	}

	return reliability
}

// Train fits a classifier on labelled samples. Too few samples, or samples of a single class,
// leave the current strategy in place with a warning.
func (predictor *ReliabilityPredictor) Train(samples []model.ReliabilitySample) error {
	if len(samples) < common.MIN_TRAINING_SAMPLES {
		predictor.logger.Warn("insufficient data for training", "samples", len(samples), "required", common.MIN_TRAINING_SAMPLES)
		return nil
	}

	features := make([][]float64, len(samples))
	labels := make([]float64, len(samples))
	positives := 0
	for i, sample := range samples {
		features[i] = reliabilityFeatures(sample.Quality, sample.Uptime, sample.PacketLoss, sample.Latency, sample.Bandwidth)
		if sample.Reliable {
			labels[i] = 1
			positives++
		}
	}
	if positives == 0 || positives == len(samples) {
		predictor.logger.Warn("training data needs both reliable and unreliable samples", "samples", len(samples), "reliable", positives)
		return nil
	}

	scaler, err := FitStandardScaler(features)
	if err != nil {
		return fmt.Errorf("fit reliability scaler: %w", err)
	}

	regression, err := FitLogisticRegression(scaler.TransformAll(features), labels)
	if err != nil {
		return fmt.Errorf("fit reliability classifier: %w", err)
	}

	predictor.Use(&TrainedReliability{Scaler: scaler, Regression: regression})
	predictor.logger.Info("reliability predictor trained", "samples", len(samples), "reliable", positives)

	return nil
}

func (predictor *ReliabilityPredictor) SaveModel(path string) error {
	blob := modelBlob{Kind: ReliabilityModelKind, SavedAt: predictor.clock.Now().UTC()}
	if trained, ok := predictor.active.Load().Predictor.(*TrainedReliability); ok {
		blob.Trained = true
		blob.Scaler = trained.Scaler
		blob.Coefficients = trained.Regression.Coefficients
	}

	return writeModelBlob(path, blob)
}

func (predictor *ReliabilityPredictor) LoadModel(path string) error {
	blob, err := readModelBlob(path, ReliabilityModelKind, reliabilityFeatureCount)
	if err != nil {
		return err
	}

	if !blob.Trained {
		predictor.Use(HeuristicReliability{})
	} else {
		predictor.Use(&TrainedReliability{Scaler: blob.Scaler, Regression: &LogisticRegression{Coefficients: blob.Coefficients}})
	}
	predictor.logger.Info("reliability model loaded", "path", path, "trained", blob.Trained)

	return nil
}

func reliabilityFeatures(quality, uptime, packetLoss, latency, bandwidth float64) []float64 {
	return []float64{quality, uptime, packetLoss, latency, bandwidth}
}
