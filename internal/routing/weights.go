package routing

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"sync/atomic"

	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/metrics"
	"github.com/hashicorp/go-hclog"
)

var (
	ErrZeroWeights      = errors.New("weights sum to zero")
	ErrNegativeWeight   = errors.New("weight is negative")
	ErrInvalidWeight    = errors.New("weight is not a finite number")
	ErrUnknownCriterion = errors.New("unknown scoring criterion")
)

// Weights maps criterion name to weight. A published Weights value is never modified.
type Weights map[string]float64

func (weights Weights) Sum() float64 {
	sum := 0.0
	for _, weight := range weights {
		sum += weight
	}
	return sum
}

// WeightManager holds the active weight vector. Updates replace the whole vector so a reader
// sees either the old or the new one.
type WeightManager struct {
	current   atomic.Pointer[Weights]
	logger    hclog.Logger
	collector *metrics.Collector
}

func NewWeightManager(logger hclog.Logger, collector *metrics.Collector, initial map[string]float64) (*WeightManager, error) {
	manager := &WeightManager{
		logger:    logger.Named("weights"),
		collector: collector,
	}

	if _, err := manager.SetWeights(initial); err != nil {
		return nil, fmt.Errorf("initial weights: %w", err)
	}

	return manager, nil
}

// Current returns the active vector. The returned map must be treated as read-only.
func (manager *WeightManager) Current() Weights {
	return *manager.current.Load()
}

// SetWeights normalizes newWeights to sum to 1 and swaps it in. Criteria left out get weight 0.
// Unknown criteria, negative or non-finite values and an all-zero vector are rejected.
func (manager *WeightManager) SetWeights(newWeights map[string]float64) (Weights, error) {
	normalized, err := normalizeWeights(newWeights)
	if err != nil {
		return nil, err
	}

	manager.current.Store(&normalized)
	manager.collector.SetWeights(normalized)
	manager.logger.Info("updated routing weights", "weights", fmt.Sprint(map[string]float64(normalized)))

	return maps.Clone(normalized), nil
}

func normalizeWeights(newWeights map[string]float64) (Weights, error) {
	total := 0.0
	for criterion, weight := range newWeights {
		if !slices.Contains(common.CRITERIA, criterion) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCriterion, criterion)
		}
		if math.IsNaN(weight) || math.IsInf(weight, 0) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidWeight, criterion)
		}
		if weight < 0 {
			return nil, fmt.Errorf("%w: %s=%v", ErrNegativeWeight, criterion, weight)
		}
		total += weight
	}
	if math.IsInf(total, 0) {
		return nil, fmt.Errorf("%w: weights sum overflows", ErrInvalidWeight)
	}
	if total == 0 {
		return nil, ErrZeroWeights
	}

	normalized := make(Weights, len(common.CRITERIA))
	for _, criterion := range common.CRITERIA {
		normalized[criterion] = newWeights[criterion] / total
	}

	return normalized, nil
}
