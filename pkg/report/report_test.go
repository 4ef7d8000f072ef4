package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"satbathy/internal/models"
	"satbathy/pkg/pipeline"
	"satbathy/pkg/regression"
	"satbathy/pkg/validation"
)

func testResult() *pipeline.Result {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	labels := []string{
		pipeline.LabelReprojecting, pipeline.LabelFiltering, pipeline.LabelSampling,
		pipeline.LabelFitting, pipeline.LabelPredicting, pipeline.LabelValidating, pipeline.LabelDone,
	}
	var tl pipeline.Timeline
	for i, l := range labels {
		tl.Marks = append(tl.Marks, pipeline.Mark{Label: l, Time: start.Add(time.Duration(i) * time.Second)})
	}
	return &pipeline.Result{
		RunID:        uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
		Width:        4,
		Height:       3,
		Transform:    models.NorthUp(500000, 4000000, 10, 10),
		CRS:          "EPSG:32616",
		Prediction:   make([]float64, 12),
		Metrics:      validation.Metrics{RMSE: 0.5, MAE: 0.25, R2: 0.9},
		Train:        make([]models.SampledRow, 3),
		Test:         make([]models.ValidatedRow, 1),
		TotalSamples: 8,
		Negated:      true,
		Timeline:     tl,
		Processing: models.ProcessingConfig{
			DepthLabel:       "z",
			TrainFraction:    0.75,
			LimitEnabled:     true,
			LimitUpper:       0,
			LimitLower:       -30,
			Method:           models.MethodKNN,
			AutoNegativeSign: true,
			Parallelism:      models.Parallelism{Backend: models.BackendSequential, Workers: 1},
		},
		MethodParams: []regression.Param{{Name: "Neighbors", Value: "5"}},
	}
}

func TestWrite(t *testing.T) {
	r := &Report{
		Version:     "v1.0.0",
		RasterPath:  "scene.yaml",
		SamplesPath: "depths.csv",
		Result:      testResult(),
		Exports:     []Export{{Kind: "Raster", Path: "out/depth.yaml"}},
	}
	text := r.String()

	for _, want := range []string{
		"Satellite Derived Bathymetry v1.0.0",
		"6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		"2024-03-01T12:00:06Z",
		"0 to -30",
		"enabled, depths negated",
		"(50.00% of total)",
		"(75.00% of used)",
		"K-Nearest Neighbors",
		"Neighbors:",
		"RMSE:",
		"0.5000",
		"Point Sampling",
		"1s",
		"6s",
		"4 x 3",
		"10 x 10",
		"EPSG:32616",
		"Raster saved to:",
		"out/depth.yaml",
	} {
		require.Contains(t, text, want)
	}
	require.NotContains(t, text, "Median filter")
}

func TestWriteDisabledOptions(t *testing.T) {
	res := testResult()
	res.Processing.LimitEnabled = false
	res.Processing.AutoNegativeSign = false
	res.TotalSamples = 0
	r := &Report{Result: res, MedianFilter: 5}
	text := r.String()

	require.Contains(t, text, "Depth limit:")
	require.Contains(t, text, "disabled")
	require.Contains(t, text, "0.00%")
	require.Contains(t, text, "5 x 5")
	require.Contains(t, text, "Raster:  ")
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.txt")
	r := &Report{Version: "dev", Result: testResult()}
	require.NoError(t, r.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(data), "Satellite Derived Bathymetry dev\n"))

	require.Error(t, (&Report{}).Save(path))
}
