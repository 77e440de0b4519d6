package prediction

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

const (
	logisticMaxIterations = 500
	logisticLambda        = 1e-3
)

// LogisticRegression models P(label = 1). Coefficients[0] is the intercept.
type LogisticRegression struct {
	Coefficients []float64 `json:"coefficients"`
}

// FitLogisticRegression minimizes the L2-penalized mean log loss with BFGS. The intercept is not
// penalized. Labels must be 0 or 1 and both classes must be present.
func FitLogisticRegression(features [][]float64, labels []float64) (*LogisticRegression, error) {
	if len(features) == 0 || len(features) != len(labels) {
		return nil, fmt.Errorf("got %d rows and %d labels", len(features), len(labels))
	}

	positives := 0
	for _, label := range labels {
		if label != 0 && label != 1 {
			return nil, fmt.Errorf("label %v is not 0 or 1", label)
		}
		if label == 1 {
			positives++
		}
	}
	if positives == 0 || positives == len(labels) {
		return nil, fmt.Errorf("training data contains a single class")
	}

	objective := newLogLoss(designMatrix(features), labels)
	initial := make([]float64, objective.width)
	initialLoss := objective.loss(initial)

	result, err := optimize.Minimize(optimize.Problem{Func: objective.loss, Grad: objective.gradient},
		initial, &optimize.Settings{MajorIterations: logisticMaxIterations}, &optimize.BFGS{})
	if result == nil {
		return nil, fmt.Errorf("minimize log loss: %w", err)
	}
	// a line search can give up next to the optimum; the best point found is still usable
	if err != nil && !(isFinite(result.F) && result.F < initialLoss) {
		return nil, fmt.Errorf("minimize log loss: %w", err)
	}

	coefficients := make([]float64, objective.width)
	for j := range coefficients {
		coefficients[j] = result.X[j]
		if !isFinite(coefficients[j]) {
			return nil, fmt.Errorf("coefficient %d is not finite", j)
		}
	}

	return &LogisticRegression{Coefficients: coefficients}, nil
}

// logLoss is the penalized mean negative log likelihood over a design matrix with a leading
// column of ones.
type logLoss struct {
	X        *mat.Dense
	Y        *mat.VecDense
	rows     int
	width    int
	z        *mat.VecDense
	residual *mat.VecDense
}

func newLogLoss(X *mat.Dense, labels []float64) *logLoss {
	rows, width := X.Dims()
	return &logLoss{
		X:        X,
		Y:        mat.NewVecDense(rows, labels),
		rows:     rows,
		width:    width,
		z:        mat.NewVecDense(rows, nil),
		residual: mat.NewVecDense(rows, nil),
	}
}

func (objective *logLoss) loss(beta []float64) float64 {
	objective.z.MulVec(objective.X, mat.NewVecDense(objective.width, beta))

	total := 0.0
	for i := 0; i < objective.rows; i++ {
		z := objective.z.AtVec(i)
		total += softplus(z) - objective.Y.AtVec(i)*z
	}

	penalty := 0.0
	for j := 1; j < objective.width; j++ {
		penalty += beta[j] * beta[j]
	}

	return total/float64(objective.rows) + logisticLambda/2*penalty
}

func (objective *logLoss) gradient(grad, beta []float64) {
	objective.z.MulVec(objective.X, mat.NewVecDense(objective.width, beta))
	for i := 0; i < objective.rows; i++ {
		objective.residual.SetVec(i, sigmoid(objective.z.AtVec(i))-objective.Y.AtVec(i))
	}

	gradient := mat.NewVecDense(objective.width, grad)
	gradient.MulVec(objective.X.T(), objective.residual)
	gradient.ScaleVec(1/float64(objective.rows), gradient)
	for j := 1; j < objective.width; j++ {
		grad[j] += logisticLambda * beta[j]
	}
}

// Probability returns P(label = 1) for a scaled feature row.
func (lr *LogisticRegression) Probability(features []float64) float64 {
	return sigmoid(dot(lr.Coefficients, features))
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	expZ := math.Exp(z)
	return expZ / (1 + expZ)
}

// softplus is log(1 + e^z) without overflow for large z.
func softplus(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}
