package services

import (
	"math"

	"github.com/irfndi/tscv-go/internal/models"
	"github.com/irfndi/tscv-go/internal/utils"
)

// TrainTestSplit divides a series chronologically.
//
// The train region is [0, last) with last = round(ratio * L), ties to even.
// The test region starts input_length rows earlier, at last - input_length,
// so the first test input window ends exactly where the train region ends.
// Test targets therefore never overlap train targets, and the gap between
// them is at least the horizon.
func TrainTestSplit(series models.Series, ratio float64, inputLength int) (models.TrainTestPair, error) {
	if ratio <= 0 || ratio >= 1 || math.IsNaN(ratio) {
		return models.TrainTestPair{}, utils.NewValidationErrorf("train_test_ratio must be in (0, 1), got %g", ratio)
	}
	if inputLength <= 0 {
		return models.TrainTestPair{}, utils.NewValidationErrorf("input_length must be positive, got %d", inputLength)
	}

	n := series.Len()
	last := splitIndex(ratio, n)
	if last > n {
		return models.TrainTestPair{}, utils.NewPreconditionErrorf("train region end %d exceeds series length %d", last, n)
	}
	firstTest := last - inputLength
	if firstTest < 0 {
		return models.TrainTestPair{}, utils.NewPreconditionErrorf(
			"train region of %d rows is shorter than input_length %d", last, inputLength)
	}

	return models.TrainTestPair{
		Train: series.Slice(0, last),
		Test:  series.Slice(firstTest, n),
	}, nil
}

// splitIndex rounds ratio*n half to even.
func splitIndex(ratio float64, n int) int {
	return int(math.RoundToEven(ratio * float64(n)))
}
