package dataprep

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/tscv-go/internal/models"
	"github.com/irfndi/tscv-go/internal/utils"
)

func TestLoadCSV(t *testing.T) {
	input := "price,volume,temp\n1.5,10,3\n2.5, 11 ,\nNaN,12,5\n"

	series, err := LoadCSV(strings.NewReader(input), LoadOptions{HasHeader: true, TargetIdx: []int{0}})
	require.NoError(t, err)

	assert.Equal(t, 3, series.Len())
	assert.Equal(t, 3, series.Channels())
	assert.Equal(t, 11.0, series.At(1, 1))
	assert.True(t, math.IsNaN(series.At(1, 2)))
	assert.True(t, math.IsNaN(series.At(2, 0)))
}

func TestLoadCSV_Errors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		header bool
	}{
		{"empty", "", true},
		{"header only", "a,b\n", true},
		{"not a number", "1,2\n3,abc\n", false},
		{"ragged", "1,2\n3\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCSV(strings.NewReader(tt.input), LoadOptions{HasHeader: tt.header, TargetIdx: []int{0}})
			assert.Error(t, err)
		})
	}

	_, err := LoadCSV(strings.NewReader("1,2\n"), LoadOptions{TargetIdx: []int{5}})
	assert.True(t, utils.IsValidation(err))
}

func TestWriteAndLoadCSVFile(t *testing.T) {
	series, err := Generate(DummyMonotonic, DummyShape{Length: 30, NCovariates: 1, TargetIdx: []int{0}})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, series, []string{"target", "covariate"}))
	assert.True(t, strings.HasPrefix(buf.String(), "target,covariate\n0,0\n1,1\n"))

	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	loaded, err := LoadCSVFile(path, LoadOptions{HasHeader: true, TargetIdx: []int{0}})
	require.NoError(t, err)
	assert.Equal(t, series.Values(), loaded.Values())

	_, err = LoadCSVFile(filepath.Join(t.TempDir(), "missing.csv"), LoadOptions{TargetIdx: []int{0}})
	assert.Error(t, err)

	assert.True(t, utils.IsValidation(WriteCSV(&buf, series, []string{"only-one"})))
}

func TestClean(t *testing.T) {
	nan := math.NaN()
	series, err := models.NewSeries([][]float64{
		{nan, 1},
		{2, nan},
		{nan, 3},
		{4, nan},
		{nan, nan},
		{6, 7},
	}, []int{0})
	require.NoError(t, err)

	cleaned, report, err := Clean(series.Slice(0, 6))
	require.NoError(t, err)

	assert.Equal(t, 1, report.DroppedRows)
	assert.Equal(t, 5, report.FilledCells)
	assert.Equal(t, 1, cleaned.Offset())
	assert.NoError(t, cleaned.CheckComplete())
	assert.Equal(t, [][]float64{
		{2, 1},
		{2, 3},
		{4, 3},
		{4, 3},
		{6, 7},
	}, cleaned.Values())
}

func TestClean_NoFutureValues(t *testing.T) {
	nan := math.NaN()
	series, err := models.NewSeries([][]float64{{1}, {nan}, {nan}, {100}}, []int{0})
	require.NoError(t, err)

	cleaned, _, err := Clean(series)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1}, {1}, {1}, {100}}, cleaned.Values())
}

func TestClean_ChannelNeverObserved(t *testing.T) {
	nan := math.NaN()
	series, err := models.NewSeries([][]float64{{1, nan}, {2, nan}}, []int{0})
	require.NoError(t, err)

	_, _, err = Clean(series)
	assert.True(t, utils.IsPrecondition(err))
}

func TestGenerate(t *testing.T) {
	shape := DefaultShape()

	mono, err := Generate(DummyMonotonic, shape)
	require.NoError(t, err)
	assert.Equal(t, 500, mono.Len())
	assert.Equal(t, 5, mono.Channels())
	assert.Equal(t, 250.0, mono.At(250, 3))

	ones, err := Generate(DummyZerosAndOne, shape)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 0, 0, 0}, ones.RawRow(7))

	_, err = Generate("sine", shape)
	assert.True(t, utils.IsValidation(err))
	_, err = Generate(DummyMonotonic, DummyShape{Length: 0, TargetIdx: []int{0}})
	assert.True(t, utils.IsValidation(err))
}
