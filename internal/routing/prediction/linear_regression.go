package prediction

import (
	"errors"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// LinearRegression is a ridge least squares fit. Coefficients[0] is the intercept.
type LinearRegression struct {
	Coefficients []float64 `json:"coefficients"`
}

// FitLinearRegression solves (XᵀX + λI)β = Xᵀy with an unpenalized intercept column.
func FitLinearRegression(features [][]float64, targets []float64, lambda float64) (*LinearRegression, error) {
	if len(features) == 0 || len(features) != len(targets) {
		return nil, fmt.Errorf("got %d rows and %d targets", len(features), len(targets))
	}

	X := designMatrix(features)
	_, width := X.Dims()
	Y := mat.NewVecDense(len(targets), targets)

	var xtx mat.Dense
	xtx.Mul(X.T(), X)
	for j := 1; j < width; j++ {
		xtx.Set(j, j, xtx.At(j, j)+lambda)
	}

	var xty mat.VecDense
	xty.MulVec(X.T(), Y)

	var coef mat.VecDense
	if err := coef.SolveVec(&xtx, &xty); err != nil {
		// an ill-conditioned system still yields a usable solution
		var condition mat.Condition
		if !errors.As(err, &condition) {
			return nil, fmt.Errorf("solve normal equations: %w", err)
		}
	}

	coefficients := make([]float64, width)
	for j := range coefficients {
		coefficients[j] = coef.AtVec(j)
		if !isFinite(coefficients[j]) {
			return nil, fmt.Errorf("coefficient %d is not finite", j)
		}
	}

	return &LinearRegression{Coefficients: coefficients}, nil
}

func (lr *LinearRegression) Predict(features []float64) float64 {
	return dot(lr.Coefficients, features)
}

func (lr *LinearRegression) PrintFunction() string {
	terms := []string{fmt.Sprintf("%.4f", lr.Coefficients[0])}
	for j, coefficient := range lr.Coefficients[1:] {
		terms = append(terms, fmt.Sprintf("%.4f*x%d", coefficient, j+1))
	}
	return "f(x) = " + strings.Join(terms, " + ")
}

// designMatrix prepends a constant column to the feature rows.
func designMatrix(features [][]float64) *mat.Dense {
	width := len(features[0]) + 1
	X := mat.NewDense(len(features), width, nil)
	for i, row := range features {
		X.Set(i, 0, 1)
		for j, value := range row {
			X.Set(i, j+1, value)
		}
	}
	return X
}

// dot evaluates intercept + Σ coefficients[j+1]*features[j].
func dot(coefficients []float64, features []float64) float64 {
	result := coefficients[0]
	for j, value := range features {
		result += coefficients[j+1] * value
	}
	return result
}
