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

const LoadModelKind = "load"

const loadRidgeLambda = 1e-3

// TrainedLoad is a regression over
// [bandwidth, connections, latency, quality, hour, day of week, uptime], evaluated at a future time.
type TrainedLoad struct {
	Scaler     *StandardScaler
	Regression *LinearRegression
}

func (trained *TrainedLoad) Predict(metrics *model.NodeMetrics, at time.Time) float64 {
	features := loadFeatures(metrics.BandwidthAvailable, float64(metrics.CurrentConnections), metrics.AvgLatency,
		metrics.QualityScore, at.Hour(), mondayFirstWeekday(at), metrics.UptimePercentage)
	return trained.Regression.Predict(trained.Scaler.Transform(features))
}

func (trained *TrainedLoad) Trained() bool { return true }

// LoadPredictor estimates the load fraction of a node some hours ahead. It starts on HeuristicLoad
// and switches to a TrainedLoad after Train or LoadModel succeed.
type LoadPredictor struct {
	active atomic.Pointer[activePredictor]
	clock  clock.Clock
	logger hclog.Logger
}

func NewLoadPredictor(logger hclog.Logger, clk clock.Clock) *LoadPredictor {
	predictor := &LoadPredictor{
		clock:  clk,
		logger: logger.Named("load-predictor"),
	}
	predictor.Use(HeuristicLoad{})
	return predictor
}

// Use atomically replaces the active strategy.
func (predictor *LoadPredictor) Use(strategy Predictor) {
	predictor.active.Store(&activePredictor{Predictor: strategy})
}

func (predictor *LoadPredictor) Trained() bool {
	return predictor.active.Load().Trained()
}

// PredictLoad returns the expected load fraction hoursAhead from now. Trained output is not clamped;
// a non-finite trained output falls back to the heuristic.
func (predictor *LoadPredictor) PredictLoad(metrics *model.NodeMetrics, hoursAhead int) float64 {
	at := predictor.clock.Now().UTC().Add(time.Duration(hoursAhead) * time.Hour)

	strategy := predictor.active.Load()
	load := strategy.Predict(metrics, at)
	if strategy.Trained() && !isFinite(load) {
		predictor.logger.Warn("trained load model produced a non-finite value, using heuristic", "node", metrics.NodeId)
		return HeuristicLoad{}.Predict(metrics, at)
	}

	return load
}

// Train fits a new model from historical samples. Fewer than the minimum number of samples
// leaves the current strategy in place and only logs a warning.
func (predictor *LoadPredictor) Train(samples []model.LoadSample) error {
	if len(samples) < common.MIN_TRAINING_SAMPLES {
		predictor.logger.Warn("insufficient data for training", "samples", len(samples), "required", common.MIN_TRAINING_SAMPLES)
		return nil
	}

	features := make([][]float64, len(samples))
	targets := make([]float64, len(samples))
	for i, sample := range samples {
		features[i] = loadFeatures(sample.Bandwidth, sample.Connections, sample.Latency, sample.Quality,
			sample.Hour, sample.DayOfWeek, sample.Uptime)
		targets[i] = sample.FutureLoad
	}

	scaler, err := FitStandardScaler(features)
	if err != nil {
		return fmt.Errorf("fit load scaler: %w", err)
	}

	regression, err := FitLinearRegression(scaler.TransformAll(features), targets, loadRidgeLambda)
	if err != nil {
		return fmt.Errorf("fit load regression: %w", err)
	}

	predictor.Use(&TrainedLoad{Scaler: scaler, Regression: regression})
	predictor.logger.Info("load predictor trained", "samples", len(samples), "function", regression.PrintFunction())

	return nil
}

func (predictor *LoadPredictor) SaveModel(path string) error {
	blob := modelBlob{Kind: LoadModelKind, SavedAt: predictor.clock.Now().UTC()}
	if trained, ok := predictor.active.Load().Predictor.(*TrainedLoad); ok {
		blob.Trained = true
		blob.Scaler = trained.Scaler
		blob.Coefficients = trained.Regression.Coefficients
	}

	return writeModelBlob(path, blob)
}

// LoadModel replaces the active strategy with the one stored at path.
func (predictor *LoadPredictor) LoadModel(path string) error {
	blob, err := readModelBlob(path, LoadModelKind, loadFeatureCount)
	if err != nil {
		return err
	}

	if !blob.Trained {
		predictor.Use(HeuristicLoad{})
	} else {
		predictor.Use(&TrainedLoad{Scaler: blob.Scaler, Regression: &LinearRegression{Coefficients: blob.Coefficients}})
	}
	predictor.logger.Info("load model loaded", "path", path, "trained", blob.Trained)

	return nil
}

const loadFeatureCount = 7

func loadFeatures(bandwidth, connections, latency, quality float64, hour, dayOfWeek int, uptime float64) []float64 {
	return []float64{bandwidth, connections, latency, quality, float64(hour), float64(dayOfWeek), uptime}
}

// mondayFirstWeekday numbers days Monday = 0 through Sunday = 6.
func mondayFirstWeekday(at time.Time) int {
	return (int(at.Weekday()) + 6) % 7
}
