package services

import (
	"github.com/irfndi/tscv-go/internal/models"
)

// SplitFolds cuts the series into equal-length folds starting every
// fold_stride rows. Only folds that fit entirely inside the series are
// returned; folds are views sharing the series storage.
func SplitFolds(series models.Series, cfg models.FoldConfig) ([]models.Series, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	folds := make([]models.Series, 0, foldCount(series.Len(), cfg))
	for start := 0; start+cfg.FoldLength <= series.Len(); start += cfg.FoldStride {
		folds = append(folds, series.Slice(start, start+cfg.FoldLength))
	}
	return folds, nil
}

func foldCount(seriesLen int, cfg models.FoldConfig) int {
	if seriesLen < cfg.FoldLength {
		return 0
	}
	return (seriesLen-cfg.FoldLength)/cfg.FoldStride + 1
}
