package interfaces

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/tscv-go/internal/models"
)

type constantModel struct {
	value float64
	fits  int
}

func (m *constantModel) Fit(_ context.Context, X, _ *models.Tensor, cfg FitConfig) (*TrainingSummary, error) {
	m.fits++
	return &TrainingSummary{Samples: X.Len(), Epochs: cfg.Epochs}, nil
}

func (m *constantModel) Predict(_ context.Context, X *models.Tensor) (*models.Tensor, error) {
	out := models.NewTensor(X.Len(), 1, 1)
	for i := range out.Data {
		out.Data[i] = m.value
	}
	return out, nil
}

func TestModelFactoryFunc(t *testing.T) {
	var factory ModelFactory = ModelFactoryFunc(func(X, y *models.Tensor) (Model, error) {
		return &constantModel{value: 3}, nil
	})

	X := models.NewTensor(4, 2, 1)
	model, err := factory.GetModel(X, models.NewTensor(4, 1, 1))
	require.NoError(t, err)

	summary, err := model.Fit(context.Background(), X, nil, FitConfig{Epochs: 5})
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Samples)
	assert.Equal(t, 5, summary.Epochs)

	pred, err := model.Predict(context.Background(), X)
	require.NoError(t, err)
	assert.Equal(t, [3]int{4, 1, 1}, pred.Shape)
	assert.Equal(t, 3.0, pred.At(2, 0, 0))
}
