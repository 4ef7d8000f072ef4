package preprocess

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"satbathy/internal/models"
	"satbathy/pkg/workers"
)

type sampledPoint struct {
	row     models.SampledRow
	inArray bool
	missing bool
}

// SampleRaster reads every band of img under each sample point and copies the
// depth attribute next to them.
//
// Points that land outside the pixel array are skipped; when none is inside,
// the error wraps models.ErrOutOfBounds. Rows with a missing band value or a
// missing depth are dropped after all points have been read. Points are
// read concurrently when ctx carries a worker scope; the output order is the
// input order either way.
func SampleRaster(ctx context.Context, table *models.SampleTable, img *models.RasterImage, depthLabel string) (models.SampledDataset, error) {
	n := table.Len()
	read := make([]sampledPoint, n)

	err := workers.ForEach(ctx, n, func(start, end int) error {
		for i := start; i < end; i++ {
			p := table.Points[i]
			row, col, err := img.Index(p.X, p.Y)
			if err != nil {
				return err
			}
			if !img.InArray(row, col) {
				continue
			}
			depth, ok := p.Numeric(depthLabel)
			if !ok {
				return fmt.Errorf("%w: depth of record %d is not numeric", models.ErrInvalidSampleType, i)
			}
			sp := sampledPoint{
				row:     models.SampledRow{Bands: make([]float64, img.Bands), X: p.X, Y: p.Y, Depth: depth},
				inArray: true,
				missing: math.IsNaN(depth),
			}
			for b := 0; b < img.Bands; b++ {
				v := img.Value(row, col, b)
				sp.row.Bands[b] = v
				if img.IsMissing(v) {
					sp.missing = true
				}
			}
			read[i] = sp
		}
		return nil
	})
	if err != nil {
		return models.SampledDataset{}, fmt.Errorf("sample raster: %w", err)
	}

	ds := models.SampledDataset{
		BandNames:  img.BandLabels(),
		DepthLabel: depthLabel,
	}
	inside := 0
	for _, sp := range read {
		if !sp.inArray {
			continue
		}
		inside++
		if !sp.missing {
			ds.Rows = append(ds.Rows, sp.row)
		}
	}
	if inside == 0 {
		return models.SampledDataset{}, fmt.Errorf("%w: none of %d points falls on the raster", models.ErrOutOfBounds, n)
	}

	log.Debug().
		Int("points", n).
		Int("inside", inside).
		Int("rows", len(ds.Rows)).
		Msg("raster sampled")
	return ds, nil
}
