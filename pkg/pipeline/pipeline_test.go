package pipeline

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"satbathy/internal/models"
	"satbathy/pkg/crs"
	"satbathy/pkg/preprocess"
	"satbathy/pkg/regression"
)

const testCRS = "EPSG:32750"

// createTestRaster builds a 4x4 raster of random band values whose
// upper-left corner is (x0, y0) with 10 m pixels.
func createTestRaster(bands int, x0, y0 float64) *models.RasterImage {
	rng := rand.New(rand.NewSource(1))
	img := &models.RasterImage{
		Width:     4,
		Height:    4,
		Bands:     bands,
		Data:      make([]float64, 16*bands),
		Transform: models.NorthUp(x0, y0, 10, 10),
		CRS:       testCRS,
	}
	for i := range img.Data {
		img.Data[i] = rng.Float64() * 100
	}
	return img
}

// depthAt is the synthetic depth of a pixel: a linear function of its bands.
func depthAt(img *models.RasterImage, pixel int) float64 {
	px := img.Pixel(pixel)
	d := -2.0
	for b, v := range px {
		d -= v * float64(b+1) / 10
	}
	return d
}

// createTestSamples places one sample at the center of each of the first n
// pixels, with the synthetic depth of that pixel.
func createTestSamples(img *models.RasterImage, n int) *models.SampleTable {
	t := &models.SampleTable{CRS: img.CRS, Columns: []string{"id", "depth"}}
	for i := 0; i < n; i++ {
		row, col := i/img.Width, i%img.Width
		x, y := img.Transform.Apply(float64(col)+0.5, float64(row)+0.5)
		t.Points = append(t.Points, models.SamplePoint{
			Kind:       models.GeometryPoint,
			X:          x,
			Y:          y,
			Attributes: map[string]any{"id": float64(i), "depth": depthAt(img, i)},
		})
	}
	return t
}

func defaultProcessing(method models.Method) models.ProcessingConfig {
	return models.ProcessingConfig{
		DepthLabel:         "depth",
		TrainFraction:      0.75,
		LimitEnabled:       false,
		LimitUpper:         0,
		LimitLower:         -30,
		Method:             method,
		Parallelism:        models.Parallelism{Backend: models.BackendThreading, Workers: -2},
		AutoNegativeSign:   true,
		ExcludeOutOfBounds: true,
	}
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func collect(events *[]Event) Observer {
	return func(e Event) { *events = append(*events, e) }
}

func labels(events []Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Label
	}
	return out
}

func TestRunLinearScenario(t *testing.T) {
	img := createTestRaster(3, 500000, 9100000)
	in := Inputs{
		Raster:     img,
		Samples:    createTestSamples(img, 10),
		Processing: defaultProcessing(models.MethodMLR),
	}

	var events []Event
	res, err := NewPipeline(nil).Run(context.Background(), in, collect(&events))
	require.NoError(t, err)

	require.Equal(t, []string{
		LabelSkipReprojecting, LabelFiltering, LabelSampling,
		LabelFitting, LabelPredicting, LabelValidating, LabelDone,
	}, labels(events))
	require.Same(t, res, events[len(events)-1].Result)
	for _, e := range events {
		require.Equal(t, res.RunID, e.RunID)
		require.Nil(t, e.Failure)
	}

	require.Len(t, res.Train, 7)
	require.Len(t, res.Test, 3)
	require.Equal(t, 10, res.UsedSamples())
	require.Len(t, res.Prediction, 16)
	require.False(t, res.Negated)
	require.False(t, res.Reprojected)

	require.GreaterOrEqual(t, res.Metrics.RMSE, 0.0)
	require.GreaterOrEqual(t, res.Metrics.MAE, 0.0)
	require.LessOrEqual(t, res.Metrics.R2, 1.0)
	require.Less(t, res.Metrics.RMSE, 1e-6, "depth is linear in the bands")

	for i, v := range res.Prediction {
		require.InDelta(t, depthAt(img, i), v, 1e-6, "pixel %d", i)
	}
	for _, row := range res.Test {
		require.InDelta(t, row.Depth, row.Validated, 1e-6)
	}
	require.Len(t, res.Timeline.Marks, 7)
	require.Len(t, res.Timeline.StageDurations(), 6)
}

func TestRunReprojectsSamples(t *testing.T) {
	fwd, err := crs.NewTransformer("EPSG:4326", testCRS)
	require.NoError(t, err)
	x0, y0, err := fwd.Transform(117, -8)
	require.NoError(t, err)
	img := createTestRaster(2, x0-20, y0+20)

	utmSamples := createTestSamples(img, 12)
	inv, err := crs.NewTransformer(testCRS, "EPSG:4326")
	require.NoError(t, err)
	geo := utmSamples.Clone()
	geo.CRS = "EPSG:4326"
	for i := range geo.Points {
		geo.Points[i].X, geo.Points[i].Y, err = inv.Transform(geo.Points[i].X, geo.Points[i].Y)
		require.NoError(t, err)
	}

	var events []Event
	res, err := NewPipeline(nil).Run(context.Background(), Inputs{
		Raster:     img,
		Samples:    &geo,
		Processing: defaultProcessing(models.MethodKNN),
		Method:     regression.KNNConfig{Neighbors: 3, Weights: regression.WeightsDistance, Algorithm: regression.AlgorithmAuto, LeafSize: 30},
	}, collect(&events))
	require.NoError(t, err)

	require.Equal(t, LabelReprojecting, events[0].Label)
	require.True(t, res.Reprojected)
	require.Equal(t, testCRS, res.Samples.CRS)
	require.Len(t, res.Samples.Points, 12)
	for i, p := range res.Samples.Points {
		require.NotEqual(t, geo.Points[i].X, p.X)
		require.InDelta(t, utmSamples.Points[i].X, p.X, 1e-3)
		require.InDelta(t, utmSamples.Points[i].Y, p.Y, 1e-3)
	}
	require.Equal(t, "EPSG:4326", geo.CRS, "input table is untouched")
}

func TestRunAllSamplesOutside(t *testing.T) {
	img := createTestRaster(3, 500000, 9100000)
	samples := createTestSamples(img, 6)
	for i := range samples.Points {
		samples.Points[i].X += 1000
	}

	var events []Event
	res, err := NewPipeline(nil).Run(context.Background(), Inputs{
		Raster:     img,
		Samples:    samples,
		Processing: defaultProcessing(models.MethodMLR),
	}, collect(&events))
	require.ErrorIs(t, err, models.ErrOutOfBounds)
	require.Nil(t, res)

	require.Equal(t, []string{LabelSkipReprojecting, LabelFiltering, LabelSampling, LabelFailed}, labels(events))
	last := events[len(events)-1]
	require.Equal(t, StageFailed, last.Stage)
	require.Nil(t, last.Result)
	require.Equal(t, models.ReasonOutOfBounds, last.Failure.Reason)
	for _, e := range events {
		require.Nil(t, e.Result)
	}
}

func TestRunNegatesPositiveDepths(t *testing.T) {
	img := createTestRaster(3, 500000, 9100000)
	samples := createTestSamples(img, 10)
	depths := []float64{5.2, 1, 2, 3, 4, 6, 7, 8, 9, 5.2}
	for i, d := range depths {
		samples.Points[i].Attributes["depth"] = d
	}
	require.Equal(t, 5.2, preprocess.Median(depths))

	res, err := NewPipeline(nil).Run(context.Background(), Inputs{
		Raster:     img,
		Samples:    samples,
		Processing: defaultProcessing(models.MethodRF),
		Method:     regression.RFConfig{Trees: 10, Criterion: regression.CriterionSquaredError, Bootstrap: true},
	}, nil)
	require.NoError(t, err)
	require.True(t, res.Negated)
	require.Less(t, preprocess.Median(res.Dataset.Depths()), 0.0)
	require.Equal(t, 5.2, samples.Points[0].Attributes["depth"])
}

func TestRunSwapsLimitWindowAndMasksPrediction(t *testing.T) {
	img := createTestRaster(3, 500000, 9100000)
	cfg := defaultProcessing(models.MethodKNN)
	cfg.LimitEnabled = true
	cfg.LimitUpper, cfg.LimitLower = -60, -20

	res, err := NewPipeline(nil).Run(context.Background(), Inputs{
		Raster:     img,
		Samples:    createTestSamples(img, 16),
		Processing: cfg,
		Method:     regression.KNNConfig{Neighbors: 2, Weights: regression.WeightsUniform, Algorithm: regression.AlgorithmBrute, LeafSize: 30},
	}, nil)
	require.NoError(t, err)
	require.GreaterOrEqual(t, res.Processing.LimitUpper, res.Processing.LimitLower)

	for _, r := range res.Dataset.Rows {
		require.GreaterOrEqual(t, r.Depth, -60.0)
		require.LessOrEqual(t, r.Depth, -20.0)
	}
	for _, v := range res.Prediction {
		if !math.IsNaN(v) {
			require.GreaterOrEqual(t, v, -60.0)
			require.LessOrEqual(t, v, -20.0)
		}
	}
}

func TestRunLeavesIncompletePixelsEmpty(t *testing.T) {
	img := createTestRaster(3, 500000, 9100000)
	nodata := -999.0
	img.NoData = &nodata
	samples := createTestSamples(img, 12)
	img.Data[15*3+1] = nodata

	res, err := NewPipeline(nil).Run(context.Background(), Inputs{
		Raster:     img,
		Samples:    samples,
		Processing: defaultProcessing(models.MethodMLR),
	}, nil)
	require.NoError(t, err)
	require.True(t, math.IsNaN(res.Prediction[15]))
	require.False(t, math.IsNaN(res.Prediction[14]))
}

func TestRunPreconditions(t *testing.T) {
	img := createTestRaster(3, 500000, 9100000)
	good := func() Inputs {
		return Inputs{Raster: img, Samples: createTestSamples(img, 10), Processing: defaultProcessing(models.MethodMLR)}
	}

	tests := []struct {
		name   string
		mutate func(in *Inputs)
		want   error
		reason models.Reason
	}{
		{"no raster", func(in *Inputs) { in.Raster = nil }, models.ErrMissingInput, models.ReasonMissingInput},
		{"no samples", func(in *Inputs) { in.Samples = nil }, models.ErrMissingInput, models.ReasonMissingInput},
		{"polygon sample", func(in *Inputs) { in.Samples.Points[3].Kind = models.GeometryPolygon },
			models.ErrInvalidSampleType, models.ReasonInvalidSampleType},
		{"text depth", func(in *Inputs) { in.Samples.Points[0].Attributes["depth"] = "deep" },
			models.ErrInvalidSampleType, models.ReasonInvalidSampleType},
		{"unknown depth column", func(in *Inputs) { in.Processing.DepthLabel = "z" },
			models.ErrInvalidSampleType, models.ReasonInvalidSampleType},
		{"zero workers", func(in *Inputs) { in.Processing.Parallelism.Workers = 0 },
			models.ErrConfiguration, models.ReasonConfiguration},
		{"method mismatch", func(in *Inputs) { in.Method = regression.DefaultSVMConfig() },
			models.ErrConfiguration, models.ReasonConfiguration},
		{"bad kernel", func(in *Inputs) {
			in.Processing.Method = models.MethodSVM
			in.Method = regression.SVMConfig{Kernel: "cubic", C: 1}
		}, models.ErrConfiguration, models.ReasonConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := good()
			tt.mutate(&in)
			var events []Event
			res, err := NewPipeline(nil).Run(context.Background(), in, collect(&events))
			require.ErrorIs(t, err, tt.want)
			require.Nil(t, res)
			require.Len(t, events, 1, "nothing runs before the inputs are checked")
			require.Equal(t, StageFailed, events[0].Stage)
			require.Equal(t, tt.reason, events[0].Failure.Reason)
			require.True(t, errors.Is(events[0].Failure, tt.want))
		})
	}
}

func TestRunTooFewRows(t *testing.T) {
	img := createTestRaster(3, 500000, 9100000)
	_, err := NewPipeline(nil).Run(context.Background(), Inputs{
		Raster:     img,
		Samples:    createTestSamples(img, 1),
		Processing: defaultProcessing(models.MethodMLR),
	}, nil)
	require.ErrorIs(t, err, models.ErrInsufficientSamples)
}

func TestStartDeliversOrderedEvents(t *testing.T) {
	img := createTestRaster(3, 500000, 9100000)
	clock := fixedClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	p := NewPipeline(&Params{Clock: clock})

	var events []Event
	for e := range p.Start(context.Background(), Inputs{
		Raster:     img,
		Samples:    createTestSamples(img, 10),
		Processing: defaultProcessing(models.MethodMLR),
	}) {
		events = append(events, e)
	}

	require.Len(t, events, 7)
	for i := 1; i < len(events); i++ {
		require.True(t, events[i].Time.After(events[i-1].Time), "event %d", i)
		require.Greater(t, events[i].Stage, events[i-1].Stage)
	}
	last := events[6]
	require.True(t, last.Stage.Terminal())
	require.NotNil(t, last.Result)
	require.Equal(t, last.Time.Sub(events[0].Time), last.Result.Timeline.Total())
}

func TestTimeline(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var tl Timeline
	tl.add(StageReprojecting, LabelReprojecting, base)
	tl.add(StageFiltering, LabelFiltering, base.Add(2*time.Second))
	tl.add(StageSampling, LabelSampling, base.Add(time.Second))
	tl.add(StageDone, LabelDone, base.Add(5*time.Second))

	d := tl.StageDurations()
	require.Len(t, d, 3)
	require.Equal(t, 2*time.Second, d[0].Duration)
	require.Equal(t, LabelReprojecting, d[0].Label)
	require.Equal(t, time.Nanosecond, d[1].Duration, "a clock going back is nudged forward")
	require.Equal(t, 5*time.Second, tl.Total())

	var sum time.Duration
	for _, s := range d {
		sum += s.Duration
	}
	require.Equal(t, tl.Total(), sum)
}
