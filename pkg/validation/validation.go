// Package validation scores a fitted regressor on held-out rows.
package validation

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"satbathy/internal/models"
	"satbathy/pkg/regression"
)

// Metrics are the accuracy figures reported for a run.
type Metrics struct {
	// RMSE is the root mean squared error
	RMSE float64
	// MAE is the mean absolute error
	MAE float64
	// R2 is the coefficient of determination, at most 1
	R2 float64
}

// Score compares predictions with the measured values.
//
// R2 is 1 - SSres/SStot. For a constant target SStot is zero; the score is
// then 1 for a perfect prediction and 0 otherwise.
func Score(yTrue, yPred []float64) (Metrics, error) {
	if len(yTrue) != len(yPred) {
		return Metrics{}, fmt.Errorf("%w: %d measured values for %d predictions", models.ErrConfiguration, len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return Metrics{}, fmt.Errorf("%w: nothing to validate", models.ErrInsufficientSamples)
	}
	n := float64(len(yTrue))

	residuals := make([]float64, len(yTrue))
	floats.SubTo(residuals, yTrue, yPred)
	ssRes := floats.Dot(residuals, residuals)

	mean := stat.Mean(yTrue, nil)
	var ssTot float64
	for _, v := range yTrue {
		ssTot += (v - mean) * (v - mean)
	}

	m := Metrics{
		RMSE: math.Sqrt(ssRes / n),
		MAE:  floats.Norm(residuals, 1) / n,
	}
	switch {
	case ssTot != 0:
		m.R2 = 1 - ssRes/ssTot
	case ssRes == 0:
		m.R2 = 1
	}
	return m, nil
}

// Validate predicts the test rows of split with reg and scores the result.
// The returned rows are the test rows, in order, with the predictions
// attached.
func Validate(ctx context.Context, reg regression.Regressor, split *models.SplitResult) (Metrics, []models.ValidatedRow, error) {
	pred, err := reg.Predict(ctx, split.TestFeatures)
	if err != nil {
		return Metrics{}, nil, fmt.Errorf("predict test rows: %w", err)
	}
	m, err := Score(split.TestTargets, pred)
	if err != nil {
		return Metrics{}, nil, err
	}
	rows := make([]models.ValidatedRow, len(split.Test))
	for i, r := range split.Test {
		rows[i] = models.ValidatedRow{SampledRow: r, Validated: pred[i]}
	}
	return m, rows, nil
}
