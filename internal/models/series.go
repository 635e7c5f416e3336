package models

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/irfndi/tscv-go/internal/utils"
)

// Series is an ordered 2-D numeric table: axis 0 is the timestep, axis 1 the
// channel. A subset of the channels are targets; every channel is a feature.
//
// A Series is immutable. Slice returns views that share storage with the
// parent, so folds and train/test regions never copy the underlying data.
type Series struct {
	data      *mat.Dense // nil when the series has no rows
	channels  int
	targetIdx []int
	offset    int
}

// NewSeries builds a Series from row-major values.
//
// Parameters:
//   - rows: One slice per timestep; all rows must have the same width.
//   - targetIdx: Ordered indexes of the target channels.
//
// Returns:
//   - The Series, or a ValidationError when the shape or targets are invalid.
func NewSeries(rows [][]float64, targetIdx []int) (Series, error) {
	if len(rows) == 0 {
		return Series{}, utils.NewValidationError("series must contain at least one timestep")
	}
	width := len(rows[0])
	if width == 0 {
		return Series{}, utils.NewValidationError("series must contain at least one channel")
	}
	flat := make([]float64, 0, len(rows)*width)
	for i, row := range rows {
		if len(row) != width {
			return Series{}, utils.NewValidationErrorf("row %d has %d channels, expected %d", i, len(row), width)
		}
		flat = append(flat, row...)
	}
	return NewSeriesFromDense(mat.NewDense(len(rows), width, flat), targetIdx)
}

// NewSeriesFromDense wraps an existing matrix. The matrix must not be mutated
// afterwards.
func NewSeriesFromDense(data *mat.Dense, targetIdx []int) (Series, error) {
	if data == nil {
		return Series{}, utils.NewValidationError("series data is nil")
	}
	_, c := data.Dims()
	if err := validateTargets(targetIdx, c); err != nil {
		return Series{}, err
	}
	return Series{
		data:      data,
		channels:  c,
		targetIdx: append([]int(nil), targetIdx...),
	}, nil
}

func validateTargets(targetIdx []int, channels int) error {
	if len(targetIdx) == 0 {
		return utils.NewValidationError("at least one target column is required")
	}
	seen := make(map[int]struct{}, len(targetIdx))
	for _, idx := range targetIdx {
		if idx < 0 || idx >= channels {
			return utils.NewValidationErrorf("target column %d out of range [0, %d)", idx, channels)
		}
		if _, dup := seen[idx]; dup {
			return utils.NewValidationErrorf("target column %d listed twice", idx)
		}
		seen[idx] = struct{}{}
	}
	return nil
}

// Len returns the number of timesteps.
func (s Series) Len() int {
	if s.data == nil {
		return 0
	}
	r, _ := s.data.Dims()
	return r
}

// Channels returns the number of channels (covariates and targets).
func (s Series) Channels() int {
	return s.channels
}

// TargetIdx returns a copy of the target channel indexes.
func (s Series) TargetIdx() []int {
	return append([]int(nil), s.targetIdx...)
}

// NTargets returns the number of target channels.
func (s Series) NTargets() int {
	return len(s.targetIdx)
}

// Offset is the absolute timestep of row 0 relative to the series this view
// was cut from.
func (s Series) Offset() int {
	return s.offset
}

// At returns the value at row i, channel j.
func (s Series) At(i, j int) float64 {
	return s.data.At(i, j)
}

// RawRow returns row i without copying. Callers must not modify it.
func (s Series) RawRow(i int) []float64 {
	return s.data.RawRowView(i)
}

// Column returns a copy of channel j.
func (s Series) Column(j int) []float64 {
	if s.data == nil {
		return nil
	}
	return mat.Col(nil, j, s.data)
}

// Dense exposes the backing matrix view, or nil for an empty series.
func (s Series) Dense() *mat.Dense {
	return s.data
}

// Slice returns the view of rows [i, j). It panics when the range is outside
// the series, like a Go slice expression.
func (s Series) Slice(i, j int) Series {
	n := s.Len()
	if i < 0 || j < i || j > n {
		panic("models: series slice out of range")
	}
	out := Series{
		channels:  s.channels,
		targetIdx: s.targetIdx,
		offset:    s.offset + i,
	}
	if i < j {
		out.data = s.data.Slice(i, j, 0, s.channels).(*mat.Dense)
	}
	return out
}

// WithOffset returns the same view with a different absolute offset.
func (s Series) WithOffset(offset int) Series {
	s.offset = offset
	return s
}

// FirstNaN returns the first row holding a missing value.
func (s Series) FirstNaN() (int, bool) {
	for i := 0; i < s.Len(); i++ {
		if floats.HasNaN(s.data.RawRowView(i)) {
			return i, true
		}
	}
	return -1, false
}

// CheckComplete returns a PreconditionError when any row holds a NaN.
func (s Series) CheckComplete() error {
	if row, ok := s.FirstNaN(); ok {
		return utils.NewPreconditionErrorf("series contains missing values at timestep %d", s.offset+row)
	}
	return nil
}

// Values returns a row-major copy of the series.
func (s Series) Values() [][]float64 {
	out := make([][]float64, s.Len())
	for i := range out {
		out[i] = append([]float64(nil), s.data.RawRowView(i)...)
	}
	return out
}
