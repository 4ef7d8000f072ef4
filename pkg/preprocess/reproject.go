package preprocess

import (
	"fmt"

	"satbathy/internal/models"
	"satbathy/pkg/crs"
)

// Reproject returns a copy of table expressed in targetCRS. The boolean
// result reports whether coordinates were transformed; when both identifiers
// name the same CRS the copy is returned unchanged.
func Reproject(table *models.SampleTable, targetCRS string) (models.SampleTable, bool, error) {
	out := table.Clone()
	if crs.Equal(table.CRS, targetCRS) {
		return out, false, nil
	}

	tr, err := crs.NewTransformer(table.CRS, targetCRS)
	if err != nil {
		return models.SampleTable{}, false, fmt.Errorf("reproject samples: %w", err)
	}
	for i := range out.Points {
		p := &out.Points[i]
		x, y, err := tr.Transform(p.X, p.Y)
		if err != nil {
			return models.SampleTable{}, false, fmt.Errorf("%w: reproject record %d: %v", models.ErrConfiguration, i, err)
		}
		p.X, p.Y = x, y
	}
	if canonical, err := crs.Canonical(targetCRS); err == nil {
		out.CRS = canonical
	} else {
		out.CRS = targetCRS
	}
	return out, true, nil
}
