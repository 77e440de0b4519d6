package prediction

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// StandardScaler centers every feature on its mean and divides by its population standard deviation.
// Constant features keep a scale of 1.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func FitStandardScaler(features [][]float64) (*StandardScaler, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("no rows to fit scaler")
	}

	width := len(features[0])
	scaler := &StandardScaler{
		Mean:  make([]float64, width),
		Scale: make([]float64, width),
	}

	n := float64(len(features))
	column := make([]float64, len(features))
	for j := 0; j < width; j++ {
		for i, row := range features {
			if len(row) != width {
				return nil, fmt.Errorf("row %d has %d features, expected %d", i, len(row), width)
			}
			column[i] = row[j]
		}

		mean, variance := stat.MeanVariance(column, nil)
		if len(features) > 1 {
			variance = variance * (n - 1) / n
		} else {
			variance = 0
		}

		scale := math.Sqrt(variance)
		if scale == 0 || !isFinite(scale) {
			scale = 1
		}
		scaler.Mean[j] = mean
		scaler.Scale[j] = scale
	}

	return scaler, nil
}

func (scaler *StandardScaler) Transform(features []float64) []float64 {
	scaled := make([]float64, len(features))
	for j, value := range features {
		scaled[j] = (value - scaler.Mean[j]) / scaler.Scale[j]
	}
	return scaled
}

func (scaler *StandardScaler) TransformAll(features [][]float64) [][]float64 {
	scaled := make([][]float64, len(features))
	for i, row := range features {
		scaled[i] = scaler.Transform(row)
	}
	return scaled
}

func (scaler *StandardScaler) Width() int {
	return len(scaler.Mean)
}
