package testutil

import (
	"github.com/irfndi/tscv-go/internal/dataprep"
	"github.com/irfndi/tscv-go/internal/models"
)

// DummyShape describes a generated dataset.
type DummyShape = dataprep.DummyShape

// DefaultShape is 500 timesteps, 3 covariates and targets {0, 1}.
func DefaultShape() DummyShape {
	return dataprep.DefaultShape()
}

// MonotonicRows returns rows where every channel of row t equals t.
func MonotonicRows(shape DummyShape) [][]float64 {
	return dataprep.MonotonicRows(shape)
}

// MonotonicSeries returns a series where every value equals its timestep.
// It panics on an invalid shape.
func MonotonicSeries(shape DummyShape) models.Series {
	return mustGenerate(dataprep.DummyMonotonic, shape)
}

// ZerosAndOnesSeries returns a series of ones on the target channels and
// zeros on the covariates.
func ZerosAndOnesSeries(shape DummyShape) models.Series {
	return mustGenerate(dataprep.DummyZerosAndOne, shape)
}

func mustGenerate(kind string, shape DummyShape) models.Series {
	s, err := dataprep.Generate(kind, shape)
	if err != nil {
		panic(err)
	}
	return s
}

// ZerosAndOnesXY returns ready-made tensors of the zeros-and-ones dataset:
// Length/stride samples, ones on the target channels of X and everywhere
// in y.
func ZerosAndOnesXY(shape DummyShape, spec models.WindowSpec) (*models.Tensor, *models.Tensor) {
	n := shape.Length / spec.Stride
	X := models.NewTensor(n, spec.InputLength, shape.Channels())
	for i := 0; i < n; i++ {
		for t := 0; t < spec.InputLength; t++ {
			for _, c := range shape.TargetIdx {
				X.Set(i, t, c, 1)
			}
		}
	}
	y := models.NewTensor(n, spec.OutputLength, len(shape.TargetIdx))
	for i := range y.Data {
		y.Data[i] = 1
	}
	return X, y
}
