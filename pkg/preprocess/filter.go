package preprocess

import "satbathy/internal/models"

// FilterBounds keeps the points strictly inside b, in their original order.
// When enabled is false it returns an unfiltered copy.
func FilterBounds(table *models.SampleTable, b models.Bounds, enabled bool) models.SampleTable {
	out := table.Clone()
	if !enabled {
		return out
	}
	kept := out.Points[:0]
	for _, p := range out.Points {
		if b.ContainsStrict(p.X, p.Y) {
			kept = append(kept, p)
		}
	}
	out.Points = kept
	return out
}
