package pipeline

import (
	"github.com/google/uuid"

	"satbathy/internal/models"
	"satbathy/pkg/regression"
	"satbathy/pkg/validation"
)

// Result is everything a successful run produces.
type Result struct {
	RunID uuid.UUID

	// Prediction holds one depth per raster pixel in row-major order. Pixels
	// with a missing band, and predictions outside an enabled depth window,
	// are NaN.
	Prediction []float64
	Width      int
	Height     int
	Transform  models.Affine
	CRS        string

	Metrics validation.Metrics

	// Train and Test are the split rows; Test carries the predictions.
	Train []models.SampledRow
	Test  []models.ValidatedRow

	// Samples is the sample table after reprojection and filtering
	Samples models.SampleTable
	// Dataset is the sampled table after sign and range normalization
	Dataset models.SampledDataset

	// TotalSamples counts the records of the input table
	TotalSamples int
	// Negated reports whether the depth sign was flipped
	Negated bool
	// Reprojected reports whether sample coordinates were transformed
	Reprojected bool

	Timeline     Timeline
	Processing   models.ProcessingConfig
	MethodParams []regression.Param
}

// UsedSamples is the number of rows that went into fitting and validation.
func (r *Result) UsedSamples() int {
	return len(r.Train) + len(r.Test)
}

// Raster returns the prediction as a single-band image with the source
// georeferencing.
func (r *Result) Raster() *models.RasterImage {
	nodata := models.PredictionNoData
	return &models.RasterImage{
		Width:     r.Width,
		Height:    r.Height,
		Bands:     1,
		BandNames: []string{"depth"},
		Data:      r.Prediction,
		Transform: r.Transform,
		CRS:       r.CRS,
		NoData:    &nodata,
	}
}
