package forecast

import (
	"context"
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/irfndi/tscv-go/internal/models"
	"github.com/irfndi/tscv-go/internal/utils"
	"github.com/irfndi/tscv-go/pkg/interfaces"
)

// DefaultRidge keeps the normal equations well conditioned on constant
// channels.
const DefaultRidge = 1e-6

// LinearModel maps the flattened input window plus a bias term to the
// flattened output window with a ridge-regularised least-squares fit.
type LinearModel struct {
	ridge        float64
	inputLength  int
	channels     int
	outputLength int
	nTargets     int

	weights *mat.Dense // (inputLength*channels+1) x (outputLength*nTargets)
	fits    int
}

// NewLinearModel sizes a model for the given input and target shapes.
func NewLinearModel(inputLength, channels, outputLength, nTargets int, ridge float64) (*LinearModel, error) {
	if inputLength <= 0 || channels <= 0 || outputLength <= 0 || nTargets <= 0 {
		return nil, utils.NewValidationErrorf("linear model dimensions must be positive, got in=%d ch=%d out=%d targets=%d",
			inputLength, channels, outputLength, nTargets)
	}
	if ridge < 0 {
		return nil, utils.NewValidationErrorf("ridge must not be negative, got %g", ridge)
	}
	if ridge == 0 {
		ridge = DefaultRidge
	}
	return &LinearModel{
		ridge:        ridge,
		inputLength:  inputLength,
		channels:     channels,
		outputLength: outputLength,
		nTargets:     nTargets,
	}, nil
}

func (m *LinearModel) features() int {
	return m.inputLength*m.channels + 1
}

func (m *LinearModel) outputs() int {
	return m.outputLength * m.nTargets
}

// design flattens X into rows of features with a trailing bias column.
func (m *LinearModel) design(X *models.Tensor) (*mat.Dense, error) {
	if X == nil {
		return nil, utils.NewPreconditionErrorf("input tensor is nil")
	}
	if X.Shape[1] != m.inputLength || X.Shape[2] != m.channels {
		return nil, utils.NewConsistencyError("input windows do not match the model",
			[]int{X.Len(), m.inputLength, m.channels}, X.Dims())
	}
	p := m.features()
	a := mat.NewDense(X.Len(), p, nil)
	for i := 0; i < X.Len(); i++ {
		row := a.RawRowView(i)
		copy(row, X.SampleData(i))
		row[p-1] = 1
	}
	return a, nil
}

// Fit solves for the weights on (X, y). A second Fit refits on the new
// data; the closed-form solution does not depend on earlier calls.
func (m *LinearModel) Fit(ctx context.Context, X, y *models.Tensor, cfg interfaces.FitConfig) (*interfaces.TrainingSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if X == nil || X.Len() == 0 {
		return nil, utils.NewPreconditionErrorf("linear model needs at least one training sample")
	}
	a, err := m.design(X)
	if err != nil {
		return nil, err
	}
	if y == nil || y.Len() != X.Len() || y.Shape[1] != m.outputLength || y.Shape[2] != m.nTargets {
		var got []int
		if y != nil {
			got = y.Dims()
		}
		return nil, utils.NewConsistencyError("training targets do not match the model output",
			[]int{X.Len(), m.outputLength, m.nTargets}, got)
	}

	n, p, q := X.Len(), m.features(), m.outputs()

	// Stack sqrt(ridge)*I under the design matrix so the system always has
	// full column rank.
	aug := mat.NewDense(n+p, p, nil)
	aug.Slice(0, n, 0, p).(*mat.Dense).Copy(a)
	lambda := math.Sqrt(m.ridge)
	for j := 0; j < p; j++ {
		aug.Set(n+j, j, lambda)
	}
	b := mat.NewDense(n+p, q, nil)
	b.Slice(0, n, 0, q).(*mat.Dense).Copy(mat.NewDense(n, q, y.Data))

	var w mat.Dense
	if err := w.Solve(aug, b); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, err
		}
	}
	m.weights = &w
	m.fits++

	var fitted mat.Dense
	fitted.Mul(a, m.weights)
	fitted.Sub(&fitted, mat.NewDense(n, q, y.Data))
	resid := fitted.RawMatrix().Data
	loss := floats.Dot(resid, resid) / float64(n*q)

	return &interfaces.TrainingSummary{
		Samples:          n,
		Epochs:           1,
		Loss:             loss,
		TrainableWeights: p * q,
	}, nil
}

// Predict emits (samples, output_length, targets).
func (m *LinearModel) Predict(ctx context.Context, X *models.Tensor) (*models.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.weights == nil {
		return nil, utils.NewPreconditionErrorf("linear model has not been fitted")
	}
	out := models.NewTensor(X.Len(), m.outputLength, m.nTargets)
	if X.Len() == 0 {
		return out, nil
	}
	a, err := m.design(X)
	if err != nil {
		return nil, err
	}
	pred := mat.NewDense(X.Len(), m.outputs(), out.Data)
	pred.Mul(a, m.weights)
	return out, nil
}

// Fits returns how many times Fit has succeeded.
func (m *LinearModel) Fits() int {
	return m.fits
}
