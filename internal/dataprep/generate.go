package dataprep

import (
	"github.com/irfndi/tscv-go/internal/models"
	"github.com/irfndi/tscv-go/internal/utils"
)

// Dummy dataset kinds accepted by Generate.
const (
	DummyMonotonic   = "monotonic"
	DummyZerosAndOne = "zeros_and_ones"
)

// DummyShape describes a generated dataset: Length timesteps, NCovariates
// non-target channels and the target channel indexes.
type DummyShape struct {
	Length      int
	NCovariates int
	TargetIdx   []int
}

// DefaultShape is 500 timesteps, 3 covariates and targets {0, 1}.
func DefaultShape() DummyShape {
	return DummyShape{Length: 500, NCovariates: 3, TargetIdx: []int{0, 1}}
}

// Channels is the total channel count.
func (s DummyShape) Channels() int {
	return s.NCovariates + len(s.TargetIdx)
}

// MonotonicRows returns rows where every channel of row t equals t.
func MonotonicRows(shape DummyShape) [][]float64 {
	rows := make([][]float64, shape.Length)
	for t := range rows {
		rows[t] = make([]float64, shape.Channels())
		for c := range rows[t] {
			rows[t][c] = float64(t)
		}
	}
	return rows
}

// ZerosAndOnesRows returns rows of ones on the target channels and zeros on
// the covariates.
func ZerosAndOnesRows(shape DummyShape) [][]float64 {
	rows := make([][]float64, shape.Length)
	for t := range rows {
		rows[t] = make([]float64, shape.Channels())
		for _, c := range shape.TargetIdx {
			if c >= 0 && c < len(rows[t]) {
				rows[t][c] = 1
			}
		}
	}
	return rows
}

// Generate builds a dummy series of the given kind.
func Generate(kind string, shape DummyShape) (models.Series, error) {
	if shape.Length <= 0 {
		return models.Series{}, utils.NewValidationErrorf("length must be positive, got %d", shape.Length)
	}
	switch kind {
	case DummyMonotonic:
		return models.NewSeries(MonotonicRows(shape), shape.TargetIdx)
	case DummyZerosAndOne:
		return models.NewSeries(ZerosAndOnesRows(shape), shape.TargetIdx)
	}
	return models.Series{}, utils.NewValidationErrorf("unknown dummy dataset %q, expected %s or %s",
		kind, DummyMonotonic, DummyZerosAndOne)
}
