package regression

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"satbathy/internal/models"
	"satbathy/pkg/workers"
)

// MLR is ordinary least squares regression. Fit finds the minimum-norm
// solution through a thin SVD, so collinear bands do not fail the fit.
type MLR struct {
	cfg MLRConfig

	coef      []float64
	intercept float64
}

func (m *MLR) Method() models.Method { return models.MethodMLR }

// Coefficients returns the fitted band weights and the intercept.
func (m *MLR) Coefficients() ([]float64, float64) {
	return append([]float64(nil), m.coef...), m.intercept
}

func (m *MLR) Fit(_ context.Context, x [][]float64, y []float64) error {
	p, err := checkTraining(x, y)
	if err != nil {
		return err
	}
	n := len(x)

	rows := x
	if m.cfg.CopyX {
		rows = make([][]float64, n)
		for i, r := range x {
			rows[i] = append([]float64(nil), r...)
		}
	}

	xMean := make([]float64, p)
	yMean := 0.0
	if m.cfg.FitIntercept {
		for _, r := range rows {
			floats.Add(xMean, r)
		}
		floats.Scale(1/float64(n), xMean)
		yMean = floats.Sum(y) / float64(n)
		for _, r := range rows {
			floats.Sub(r, xMean)
		}
	}

	a := mat.NewDense(n, p, nil)
	for i, r := range rows {
		a.SetRow(i, r)
	}
	b := mat.NewDense(n, 1, nil)
	for i, v := range y {
		b.Set(i, 0, v-yMean)
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return fmt.Errorf("mlr: singular value decomposition did not converge")
	}
	rank := svd.Rank(rcond(n, p))
	if rank == 0 {
		// every feature is constant: the fit is the target mean
		m.coef = make([]float64, p)
		m.intercept = yMean
		return nil
	}
	var beta mat.Dense
	svd.SolveTo(&beta, b, rank)

	m.coef = mat.Col(nil, 0, &beta)
	m.intercept = yMean - floats.Dot(xMean, m.coef)
	return nil
}

// rcond is the relative singular value cutoff used to determine rank.
func rcond(n, p int) float64 {
	const epsilon = 0x1p-52
	return float64(max(n, p)) * epsilon
}

func (m *MLR) Predict(ctx context.Context, x [][]float64) ([]float64, error) {
	if m.coef == nil {
		return nil, errNotFitted
	}
	if _, err := checkColumns(x, len(m.coef)); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	err := workers.ForEach(ctx, len(x), func(start, end int) error {
		for i := start; i < end; i++ {
			out[i] = floats.Dot(x[i], m.coef) + m.intercept
		}
		return nil
	})
	return out, err
}
