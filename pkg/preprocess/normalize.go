package preprocess

import (
	"math"
	"sort"

	"satbathy/internal/models"
)

// Median returns the median of values, averaging the two middle values for
// an even count. It returns NaN for an empty slice. values is not modified.
func Median(values []float64) float64 {
	return SortedMedian(append([]float64(nil), values...))
}

// SortedMedian is Median for callers that own values: the slice is sorted
// in place.
func SortedMedian(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sort.Float64s(values)
	mid := len(values) / 2
	if len(values)%2 == 0 {
		return (values[mid-1] + values[mid]) / 2
	}
	return values[mid]
}

// AutoNegative negates every depth when the median depth is positive. It is
// a single pass: the result is not examined again.
func AutoNegative(ds *models.SampledDataset) (models.SampledDataset, bool) {
	out := ds.Clone()
	if !(Median(out.Depths()) > 0) {
		return out, false
	}
	for i := range out.Rows {
		out.Rows[i].Depth = -out.Rows[i].Depth
	}
	return out, true
}

// LimitDepth keeps the rows whose depth lies in [lower, upper]. The bounds
// are swapped when given in the wrong order.
func LimitDepth(ds *models.SampledDataset, lower, upper float64) models.SampledDataset {
	if upper < lower {
		lower, upper = upper, lower
	}
	out := ds.Clone()
	kept := out.Rows[:0]
	for _, r := range out.Rows {
		if r.Depth >= lower && r.Depth <= upper {
			kept = append(kept, r)
		}
	}
	out.Rows = kept
	return out
}

// Normalize applies the sign correction and then the depth window, as
// configured. The boolean result reports whether depths were negated.
func Normalize(ds *models.SampledDataset, cfg models.ProcessingConfig) (models.SampledDataset, bool) {
	cfg = cfg.Normalized()
	out, negated := ds.Clone(), false
	if cfg.AutoNegativeSign {
		out, negated = AutoNegative(&out)
	}
	if cfg.LimitEnabled {
		out = LimitDepth(&out, cfg.LimitLower, cfg.LimitUpper)
	}
	return out, negated
}
