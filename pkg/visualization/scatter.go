package visualization

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"satbathy/internal/models"
)

// ScatterOptions label the validation plot.
type ScatterOptions struct {
	Method string
	RMSE   float64
	MAE    float64
	R2     float64
}

// SaveScatter plots measured against predicted depth for the test rows with
// a 1:1 reference line and writes the figure to filename. The image format
// follows the file extension.
func SaveScatter(rows []models.ValidatedRow, opts ScatterOptions, filename string) error {
	pts := make(plotter.XYs, 0, len(rows))
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, r := range rows {
		if math.IsNaN(r.Depth) || math.IsNaN(r.Validated) {
			continue
		}
		pts = append(pts, plotter.XY{X: r.Depth, Y: r.Validated})
		lo = math.Min(lo, math.Min(r.Depth, r.Validated))
		hi = math.Max(hi, math.Max(r.Depth, r.Validated))
	}
	if len(pts) == 0 {
		return fmt.Errorf("no validated rows to plot")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s: RMSE %.3f  MAE %.3f  R² %.3f", opts.Method, opts.RMSE, opts.MAE, opts.R2)
	p.X.Label.Text = "Measured depth (m)"
	p.Y.Label.Text = "Predicted depth (m)"
	p.Add(plotter.NewGrid())

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("failed to create scatter: %w", err)
	}
	scatter.GlyphStyle.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	scatter.GlyphStyle.Shape = draw.CircleGlyph{}
	scatter.GlyphStyle.Radius = vg.Points(2)
	p.Add(scatter)
	p.Legend.Add("test samples", scatter)

	identity, err := plotter.NewLine(plotter.XYs{{X: lo, Y: lo}, {X: hi, Y: hi}})
	if err != nil {
		return fmt.Errorf("failed to create reference line: %w", err)
	}
	identity.Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	identity.Width = vg.Points(1)
	identity.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(identity)
	p.Legend.Add("1:1", identity)

	p.Legend.Top = true
	p.Legend.Left = true
	p.Legend.XOffs = 10
	p.Legend.YOffs = -10

	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	if err := p.Save(6*vg.Inch, 6*vg.Inch, filename); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}
