package models

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/irfndi/tscv-go/internal/utils"
)

func rampRows(n, channels int) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, channels)
		for j := range rows[i] {
			rows[i][j] = float64(i*10 + j)
		}
	}
	return rows
}

func TestNewSeries(t *testing.T) {
	s, err := NewSeries(rampRows(5, 3), []int{0, 2})
	require.NoError(t, err)

	assert.Equal(t, 5, s.Len())
	assert.Equal(t, 3, s.Channels())
	assert.Equal(t, []int{0, 2}, s.TargetIdx())
	assert.Equal(t, 2, s.NTargets())
	assert.Equal(t, 0, s.Offset())
	assert.Equal(t, 42.0, s.At(4, 2))
	assert.Equal(t, []float64{0, 10, 20, 30, 40}, s.Column(0))
}

func TestNewSeries_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		rows    [][]float64
		targets []int
	}{
		{"no rows", nil, []int{0}},
		{"no channels", [][]float64{{}}, []int{0}},
		{"ragged", [][]float64{{1, 2}, {3}}, []int{0}},
		{"no targets", rampRows(3, 2), nil},
		{"target out of range", rampRows(3, 2), []int{2}},
		{"negative target", rampRows(3, 2), []int{-1}},
		{"duplicate target", rampRows(3, 2), []int{1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSeries(tt.rows, tt.targets)
			require.Error(t, err)
			assert.True(t, utils.IsValidation(err))
		})
	}
}

func TestSeries_Slice(t *testing.T) {
	s, err := NewSeries(rampRows(10, 2), []int{1})
	require.NoError(t, err)

	view := s.Slice(3, 7)
	assert.Equal(t, 4, view.Len())
	assert.Equal(t, 3, view.Offset())
	assert.Equal(t, 30.0, view.At(0, 0))
	assert.Equal(t, []int{1}, view.TargetIdx())

	nested := view.Slice(1, 3)
	assert.Equal(t, 4, nested.Offset())
	assert.Equal(t, 40.0, nested.At(0, 0))

	empty := s.Slice(10, 10)
	assert.Equal(t, 0, empty.Len())
	assert.Equal(t, 2, empty.Channels())
	assert.Nil(t, empty.Column(0))

	assert.Panics(t, func() { s.Slice(5, 11) })
	assert.Panics(t, func() { s.Slice(6, 5) })
}

func TestSeries_SliceSharesStorage(t *testing.T) {
	data := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	s, err := NewSeriesFromDense(data, []int{0})
	require.NoError(t, err)

	view := s.Slice(1, 3)
	data.Set(2, 0, 99)
	assert.Equal(t, 99.0, view.At(1, 0))
}

func TestSeries_CheckComplete(t *testing.T) {
	rows := rampRows(6, 2)
	rows[4][1] = math.NaN()
	s, err := NewSeries(rows, []int{0})
	require.NoError(t, err)

	row, ok := s.FirstNaN()
	assert.True(t, ok)
	assert.Equal(t, 4, row)

	err = s.Slice(2, 6).CheckComplete()
	require.Error(t, err)
	assert.True(t, utils.IsPrecondition(err))
	assert.Contains(t, err.Error(), "timestep 4")

	assert.NoError(t, s.Slice(0, 4).CheckComplete())
}

func TestWindowSpec_Validate(t *testing.T) {
	_, err := NewWindowSpec(10, 7, 4, 1)
	require.NoError(t, err)

	for _, args := range [][4]int{{0, 7, 4, 1}, {10, 0, 4, 1}, {10, 7, 0, 1}, {10, 7, 4, -1}} {
		_, err := NewWindowSpec(args[0], args[1], args[2], args[3])
		assert.True(t, utils.IsValidation(err), "args %v", args)
	}
}

func TestWindowSpec_ExpectedSampleCount(t *testing.T) {
	tests := []struct {
		name string
		spec WindowSpec
		n    int
		want int
	}{
		{"default spec", WindowSpec{10, 7, 4, 1}, 500, 481},
		{"stride two", WindowSpec{10, 7, 4, 2}, 500, 241},
		{"exactly one", WindowSpec{10, 7, 4, 1}, 20, 1},
		{"too short", WindowSpec{10, 7, 4, 1}, 19, 0},
		{"empty", WindowSpec{3, 1, 1, 1}, 0, 0},
		{"unit spec", WindowSpec{1, 1, 1, 1}, 5, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.spec.ExpectedSampleCount(tt.n))
		})
	}
}

func TestWindowSpec_Offsets(t *testing.T) {
	spec := WindowSpec{InputLength: 10, OutputLength: 7, Horizon: 4, Stride: 1}
	assert.Equal(t, 13, spec.OutputStart())
	assert.Equal(t, 20, spec.Span())
}

func TestFoldAndBacktestConfig_Validate(t *testing.T) {
	_, err := NewFoldConfig(200, 100)
	assert.NoError(t, err)
	_, err = NewFoldConfig(0, 100)
	assert.True(t, utils.IsValidation(err))
	_, err = NewFoldConfig(200, 0)
	assert.True(t, utils.IsValidation(err))

	_, err = NewBacktestConfig(1, 0.9, true, 1)
	assert.NoError(t, err)
	_, err = NewBacktestConfig(1, 0.9, false, 0)
	assert.NoError(t, err)
	_, err = NewBacktestConfig(0, 0.9, true, 1)
	assert.True(t, utils.IsValidation(err))
	_, err = NewBacktestConfig(1, 1.0, true, 1)
	assert.True(t, utils.IsValidation(err))
	_, err = NewBacktestConfig(1, 0.9, true, 0)
	assert.True(t, utils.IsValidation(err))
}

func TestTensor_Indexing(t *testing.T) {
	tensor := NewTensor(2, 3, 2)
	tensor.Set(1, 2, 1, 7)

	assert.Equal(t, 7.0, tensor.At(1, 2, 1))
	assert.Equal(t, 7.0, tensor.Data[11])
	assert.Equal(t, []int{2, 3, 2}, tensor.Dims())

	m := tensor.SampleMatrix(1)
	assert.Equal(t, 7.0, m.At(2, 1))
	m.Set(0, 0, 5)
	assert.Equal(t, 5.0, tensor.At(1, 0, 0))
}

func TestTensor_Select(t *testing.T) {
	tensor := &Tensor{Data: []float64{0, 1, 2, 3, 4, 5}, Shape: [3]int{3, 2, 1}}
	picked := tensor.Select([]int{2, 0})
	assert.Equal(t, [3]int{2, 2, 1}, picked.Shape)
	assert.Equal(t, []float64{4, 5, 0, 1}, picked.Data)
}

func TestStack(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	b := mat.NewDense(2, 2, []float64{5, 6, 7, 8})

	tensor, err := Stack(2, 2, []*mat.Dense{a, b})
	require.NoError(t, err)
	assert.Equal(t, [3]int{2, 2, 2}, tensor.Shape)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8}, tensor.Data)

	empty, err := Stack(7, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, [3]int{0, 7, 2}, empty.Shape)

	_, err = Stack(2, 2, []*mat.Dense{a, mat.NewDense(2, 1, nil)})
	require.Error(t, err)
	assert.True(t, utils.IsConsistency(err))
}

func TestConcat(t *testing.T) {
	a := &Tensor{Data: []float64{1, 2}, Shape: [3]int{1, 2, 1}}
	b := &Tensor{Data: []float64{3, 4}, Shape: [3]int{1, 2, 1}}

	joined, err := Concat(2, 1, []*Tensor{a, b})
	require.NoError(t, err)
	assert.Equal(t, [3]int{2, 2, 1}, joined.Shape)
	assert.Equal(t, []float64{1, 2, 3, 4}, joined.Data)

	_, err = Concat(2, 1, []*Tensor{a, {Data: []float64{1}, Shape: [3]int{1, 1, 1}}})
	assert.True(t, utils.IsConsistency(err))
}

func TestTargetLayout_Rank(t *testing.T) {
	tests := []struct {
		layout TargetLayout
		rank   int
		shape  []int
	}{
		{TargetLayout{OutputLength: 7, NTargets: 2}, 3, []int{5, 7, 2}},
		{TargetLayout{OutputLength: 7, NTargets: 1}, 2, []int{5, 7}},
		{TargetLayout{OutputLength: 1, NTargets: 2}, 2, []int{5, 2}},
		{TargetLayout{OutputLength: 1, NTargets: 1}, 1, []int{5}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.rank, tt.layout.Rank(), "layout %+v", tt.layout)
		assert.Equal(t, tt.shape, tt.layout.CollapsedShape(5), "layout %+v", tt.layout)
	}
}

func TestSampleSet_YCollapsed(t *testing.T) {
	set := &SampleSet{
		X:      NewTensor(3, 4, 2),
		Y:      &Tensor{Data: []float64{1, 2, 3}, Shape: [3]int{3, 1, 1}},
		Layout: TargetLayout{OutputLength: 1, NTargets: 1},
		Starts: []int{0, 1, 2},
	}

	assert.Equal(t, 3, set.Len())
	assert.Equal(t, 1, set.YRank())
	view := set.YCollapsed()
	assert.Equal(t, []int{3}, view.Shape)
	assert.Equal(t, []float64{1, 2, 3}, view.Data)

	spec := WindowSpec{InputLength: 4, OutputLength: 1, Horizon: 2, Stride: 1}
	assert.Equal(t, []int{5, 6, 7}, set.TargetStarts(spec))
}

func TestRunRecord_JSON(t *testing.T) {
	rec := RunRecord{
		ID:      "run-1",
		Kind:    RunKindBacktest,
		Metric:  "mae",
		Score:   ScoreDecimal(1.23456789),
		Params:  json.RawMessage(`{"stride":1}`),
		Summary: json.RawMessage(`{"steps":3}`),
	}

	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"kind":"backtest"`)
	assert.Contains(t, string(raw), `"params":{"stride":1}`)
	assert.True(t, decimal.RequireFromString("1.234568").Equal(rec.Score))
}

func TestDefaultFitConfig(t *testing.T) {
	cfg := DefaultFitConfig()
	assert.Equal(t, 50, cfg.Epochs)
	assert.Equal(t, 16, cfg.BatchSize)
	assert.InDelta(t, 0.3, cfg.ValidationSplit, 1e-12)
	assert.Equal(t, 2, cfg.Patience)
}
