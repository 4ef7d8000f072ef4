// Package regression holds the four strategies that map band values to depth:
// k-nearest neighbours, multiple linear regression, random forest and
// epsilon support vector regression.
//
// Each strategy is configured by its own MethodConfig variant and built with
// New. Fit and Predict take a context so they can share the worker scope
// opened by the pipeline; without one they run on the calling goroutine.
package regression

import (
	"context"
	"fmt"

	"satbathy/internal/models"
)

// Regressor is a fitted-or-unfitted regression model.
type Regressor interface {
	// Fit trains the model on the rows of x and their targets y.
	Fit(ctx context.Context, x [][]float64, y []float64) error
	// Predict returns one prediction per row of x.
	Predict(ctx context.Context, x [][]float64) ([]float64, error)
	// Method identifies the strategy.
	Method() models.Method
}

// New validates cfg and returns an unfitted regressor for it.
func New(cfg MethodConfig) (Regressor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: no method configuration", models.ErrConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch c := cfg.(type) {
	case KNNConfig:
		return &KNN{cfg: c}, nil
	case MLRConfig:
		return &MLR{cfg: c}, nil
	case RFConfig:
		return &RandomForest{cfg: c}, nil
	case SVMConfig:
		return &SVR{cfg: c}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported method configuration %T", models.ErrConfiguration, cfg)
	}
}

// checkTraining verifies that x is a non-empty rectangular matrix matching y
// and returns its column count.
func checkTraining(x [][]float64, y []float64) (int, error) {
	if len(x) == 0 {
		return 0, fmt.Errorf("%w: no training rows", models.ErrInsufficientSamples)
	}
	if len(x) != len(y) {
		return 0, fmt.Errorf("%w: %d feature rows for %d targets", models.ErrConfiguration, len(x), len(y))
	}
	return checkColumns(x, len(x[0]))
}

func checkColumns(x [][]float64, want int) (int, error) {
	if want == 0 {
		return 0, fmt.Errorf("%w: feature rows are empty", models.ErrConfiguration)
	}
	for i, row := range x {
		if len(row) != want {
			return 0, fmt.Errorf("%w: row %d has %d features, want %d", models.ErrConfiguration, i, len(row), want)
		}
	}
	return want, nil
}

var errNotFitted = fmt.Errorf("%w: model is not fitted", models.ErrConfiguration)
