package routing

import (
	"math"
	"testing"

	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/common"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWeightManager(t *testing.T) *WeightManager {
	t.Helper()
	manager, err := NewWeightManager(hclog.NewNullLogger(), nil, common.DefaultWeights())
	require.NoError(t, err)
	return manager
}

func TestDefaultWeightsSumToOne(t *testing.T) {
	manager := newWeightManager(t)
	assert.InDelta(t, 1.0, manager.Current().Sum(), 1e-9)
	assert.Equal(t, 0.25, manager.Current()[common.CRITERION_LATENCY])
}

func TestSetWeightsNormalizes(t *testing.T) {
	manager := newWeightManager(t)

	weights, err := manager.SetWeights(map[string]float64{
		"latency": 2, "bandwidth": 2, "quality": 2, "load": 2, "distance": 2,
	})
	require.NoError(t, err)

	for _, criterion := range common.CRITERIA {
		assert.InDelta(t, 0.2, weights[criterion], 1e-12, criterion)
	}
	assert.InDelta(t, 1.0, manager.Current().Sum(), 1e-9)
}

func TestSetWeightsOmittedCriteriaAreZero(t *testing.T) {
	manager := newWeightManager(t)

	weights, err := manager.SetWeights(map[string]float64{"bandwidth": 5})
	require.NoError(t, err)

	assert.Equal(t, 1.0, weights["bandwidth"])
	assert.Len(t, weights, len(common.CRITERIA))
	assert.Equal(t, 0.0, weights["latency"])
}

func TestSetWeightsRejectsInvalidVectors(t *testing.T) {
	cases := []struct {
		name    string
		weights map[string]float64
		err     error
	}{
		{"all zero", map[string]float64{"latency": 0, "load": 0}, ErrZeroWeights},
		{"empty", map[string]float64{}, ErrZeroWeights},
		{"negative", map[string]float64{"latency": 1, "load": -0.5}, ErrNegativeWeight},
		{"unknown", map[string]float64{"latency": 1, "jitter": 1}, ErrUnknownCriterion},
		{"nan", map[string]float64{"latency": math.NaN()}, ErrInvalidWeight},
		{"inf", map[string]float64{"latency": math.Inf(1)}, ErrInvalidWeight},
		{"overflowing sum", map[string]float64{"latency": math.MaxFloat64, "load": math.MaxFloat64}, ErrInvalidWeight},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			manager := newWeightManager(t)
			before := manager.Current()

			_, err := manager.SetWeights(tc.weights)
			assert.ErrorIs(t, err, tc.err)
			assert.Equal(t, before, manager.Current())
		})
	}
}

func TestSetWeightsReturnsCopy(t *testing.T) {
	manager := newWeightManager(t)

	weights, err := manager.SetWeights(map[string]float64{"latency": 1})
	require.NoError(t, err)
	weights["latency"] = 42

	assert.Equal(t, 1.0, manager.Current()["latency"])
}

func TestNewWeightManagerRejectsZeroWeights(t *testing.T) {
	_, err := NewWeightManager(hclog.NewNullLogger(), nil, map[string]float64{})
	assert.ErrorIs(t, err, ErrZeroWeights)
}
