package preprocess

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"satbathy/internal/models"
	"satbathy/pkg/workers"
)

// createTestRaster returns a 4x4 raster with origin (100, 200) and 10 m
// pixels. Band b of pixel (row, col) holds row*10 + col + b*100.
func createTestRaster(bands int) *models.RasterImage {
	img := &models.RasterImage{
		Width:     4,
		Height:    4,
		Bands:     bands,
		Data:      make([]float64, 16*bands),
		Transform: models.NorthUp(100, 200, 10, 10),
		CRS:       "EPSG:32750",
	}
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			for b := 0; b < bands; b++ {
				img.Data[(row*4+col)*bands+b] = float64(row*10 + col + b*100)
			}
		}
	}
	return img
}

func pixelCenter(row, col int) (float64, float64) {
	return 100 + float64(col)*10 + 5, 200 - float64(row)*10 - 5
}

func createTestTable(depths ...float64) *models.SampleTable {
	t := &models.SampleTable{CRS: "EPSG:32750", Columns: []string{"depth"}}
	for i, d := range depths {
		x, y := pixelCenter(i/4%4, i%4)
		t.Points = append(t.Points, models.SamplePoint{
			Kind:       models.GeometryPoint,
			X:          x,
			Y:          y,
			Attributes: map[string]any{"depth": d},
		})
	}
	return t
}

func TestReprojectSameCRSIsCopy(t *testing.T) {
	in := createTestTable(-1, -2, -3)
	out, reprojected, err := Reproject(in, "epsg:32750")
	require.NoError(t, err)
	require.False(t, reprojected)
	if diff := cmp.Diff(*in, out); diff != "" {
		t.Errorf("Reproject changed points (-want +got):\n%s", diff)
	}

	out.Points[0].X = 0
	require.NotEqual(t, 0.0, in.Points[0].X, "input must not be aliased")
}

func TestReprojectTransformsCoordinates(t *testing.T) {
	in := &models.SampleTable{
		CRS:     "EPSG:4326",
		Columns: []string{"depth"},
		Points: []models.SamplePoint{
			{Kind: models.GeometryPoint, X: 117, Y: -8, Attributes: map[string]any{"depth": -3.0}},
		},
	}
	out, reprojected, err := Reproject(in, "EPSG:32750")
	require.NoError(t, err)
	require.True(t, reprojected)
	require.Equal(t, "EPSG:32750", out.CRS)
	require.InDelta(t, 500000, out.Points[0].X, 1e-6)
	require.Greater(t, out.Points[0].Y, 9000000.0)
	require.Equal(t, 117.0, in.Points[0].X)
}

func TestReprojectUnknownCRS(t *testing.T) {
	in := createTestTable(-1)
	in.CRS = "EPSG:999999"
	_, _, err := Reproject(in, "EPSG:4326")
	require.ErrorIs(t, err, models.ErrConfiguration)
}

func TestFilterBounds(t *testing.T) {
	img := createTestRaster(1)
	in := createTestTable(-1, -2)
	in.Points = append(in.Points,
		models.SamplePoint{Kind: models.GeometryPoint, X: 100, Y: 190, Attributes: map[string]any{"depth": -3.0}},
		models.SamplePoint{Kind: models.GeometryPoint, X: 500, Y: 190, Attributes: map[string]any{"depth": -4.0}},
	)

	out := FilterBounds(in, img.Bounds(), true)
	require.Len(t, out.Points, 2, "edge and outside points are dropped")
	require.Equal(t, -1.0, out.Points[0].Attributes["depth"])
	require.Equal(t, -2.0, out.Points[1].Attributes["depth"])
	require.Len(t, in.Points, 4)

	again := FilterBounds(&out, img.Bounds(), true)
	if diff := cmp.Diff(out, again); diff != "" {
		t.Errorf("FilterBounds is not idempotent (-first +second):\n%s", diff)
	}

	skipped := FilterBounds(in, img.Bounds(), false)
	require.Len(t, skipped.Points, 4)
}

func TestSampleRasterReadsBands(t *testing.T) {
	img := createTestRaster(3)
	table := createTestTable(-1, -2, -3, -4, -5, -6)

	ds, err := SampleRaster(context.Background(), table, img, "depth")
	require.NoError(t, err)
	require.Equal(t, []string{"band1", "band2", "band3"}, ds.BandNames)
	require.Len(t, ds.Rows, 6)

	// record 5 sits on row 1, col 1
	require.Equal(t, []float64{11, 111, 211}, ds.Rows[5].Bands)
	require.Equal(t, -6.0, ds.Rows[5].Depth)
}

func TestSampleRasterDropsMissing(t *testing.T) {
	img := createTestRaster(2)
	nodata := -999.0
	img.NoData = &nodata
	img.Data[1] = nodata     // pixel (0,0) band 2
	img.Data[2] = math.NaN() // pixel (0,1) band 1
	table := createTestTable(-1, -2, -3, math.NaN())

	ds, err := SampleRaster(context.Background(), table, img, "depth")
	require.NoError(t, err)
	require.Len(t, ds.Rows, 1)
	require.Equal(t, -3.0, ds.Rows[0].Depth)
}

func TestSampleRasterOutOfBounds(t *testing.T) {
	img := createTestRaster(1)
	table := &models.SampleTable{CRS: img.CRS, Columns: []string{"depth"}}
	for i := 0; i < 3; i++ {
		table.Points = append(table.Points, models.SamplePoint{
			Kind: models.GeometryPoint, X: 1000 + float64(i), Y: 0,
			Attributes: map[string]any{"depth": -1.0},
		})
	}
	_, err := SampleRaster(context.Background(), table, img, "depth")
	require.ErrorIs(t, err, models.ErrOutOfBounds)

	_, err = SampleRaster(context.Background(), &models.SampleTable{}, img, "depth")
	require.ErrorIs(t, err, models.ErrOutOfBounds)
}

func TestSampleRasterSameResultForAnyWorkerCount(t *testing.T) {
	img := createTestRaster(3)
	depths := make([]float64, 16)
	for i := range depths {
		depths[i] = -float64(i)
	}
	table := createTestTable(depths...)

	serial, err := SampleRaster(context.Background(), table, img, "depth")
	require.NoError(t, err)

	ctx, release := workers.Scope(context.Background(), models.Parallelism{Workers: 7})
	defer release()
	parallel, err := SampleRaster(ctx, table, img, "depth")
	require.NoError(t, err)

	if diff := cmp.Diff(serial, parallel); diff != "" {
		t.Errorf("parallel sampling differs (-serial +parallel):\n%s", diff)
	}
}

func datasetOf(depths ...float64) *models.SampledDataset {
	ds := &models.SampledDataset{BandNames: []string{"band1"}, DepthLabel: "depth"}
	for i, d := range depths {
		ds.Rows = append(ds.Rows, models.SampledRow{Bands: []float64{float64(i)}, Depth: d})
	}
	return ds
}

func TestMedian(t *testing.T) {
	require.Equal(t, 2.0, Median([]float64{3, 1, 2}))
	require.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))
	require.True(t, math.IsNaN(Median(nil)))

	values := []float64{4, 1, 3, 2}
	require.Equal(t, 2.5, Median(values))
	require.Equal(t, []float64{4, 1, 3, 2}, values, "Median must not reorder its input")
	require.Equal(t, 2.5, SortedMedian(values))
	require.Equal(t, []float64{1, 2, 3, 4}, values)
	require.True(t, math.IsNaN(SortedMedian(nil)))
}

func TestAutoNegative(t *testing.T) {
	positive := datasetOf(4, 5.2, 6, -1, 7)
	once, negated := AutoNegative(positive)
	require.True(t, negated)
	require.Less(t, Median(once.Depths()), 0.0)
	require.Equal(t, []float64{-4, -5.2, -6, 1, -7}, once.Depths())
	require.Equal(t, []float64{4, 5.2, 6, -1, 7}, positive.Depths(), "input must not change")

	twice, negated := AutoNegative(&once)
	require.False(t, negated, "second pass sees a negative median")
	require.Equal(t, once.Depths(), twice.Depths())
}

func TestLimitDepth(t *testing.T) {
	ds := datasetOf(-40, -30, -12, 0, 3)
	got := LimitDepth(ds, -30, 0)
	require.Equal(t, []float64{-30, -12, 0}, got.Depths())

	swapped := LimitDepth(ds, 0, -30)
	require.Equal(t, got.Depths(), swapped.Depths())
}

func TestNormalizeOrder(t *testing.T) {
	// positive-down depths only fit the window after negation
	ds := datasetOf(5, 10, 35)
	cfg := models.ProcessingConfig{
		AutoNegativeSign: true,
		LimitEnabled:     true,
		LimitUpper:       -30,
		LimitLower:       0,
	}
	got, negated := Normalize(ds, cfg)
	require.True(t, negated)
	require.Equal(t, []float64{-5, -10}, got.Depths())

	cfg.LimitEnabled = false
	got, _ = Normalize(ds, cfg)
	require.Len(t, got.Rows, 3)
}

func TestSplit(t *testing.T) {
	depths := make([]float64, 10)
	for i := range depths {
		depths[i] = -float64(i + 1)
	}
	ds := datasetOf(depths...)

	res, err := Split(ds, 0.75, 0)
	require.NoError(t, err)
	require.Len(t, res.Train, 7)
	require.Len(t, res.Test, 3)
	require.Len(t, res.TrainFeatures, 7)
	require.Len(t, res.TestTargets, 3)

	seen := map[float64]bool{}
	for _, r := range append(append([]models.SampledRow(nil), res.Train...), res.Test...) {
		require.False(t, seen[r.Bands[0]], "row %v appears twice", r.Bands[0])
		seen[r.Bands[0]] = true
	}
	require.Len(t, seen, 10)

	again, err := Split(ds, 0.75, 0)
	require.NoError(t, err)
	require.Equal(t, res.TestTargets, again.TestTargets)

	res.TrainFeatures[0][0] = 1e9
	require.NotEqual(t, 1e9, res.Train[0].Bands[0], "feature matrix must be a copy")
}

func TestSplitInsufficient(t *testing.T) {
	_, err := Split(datasetOf(-1), 0.75, 0)
	require.ErrorIs(t, err, models.ErrInsufficientSamples)

	_, err = Split(datasetOf(-1, -2, -3), 0.2, 0)
	require.ErrorIs(t, err, models.ErrInsufficientSamples)

	_, err = Split(datasetOf(-1, -2, -3), 1, 0)
	require.ErrorIs(t, err, models.ErrConfiguration)
}
