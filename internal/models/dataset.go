package models

// SampledRow is one sample point joined with the raster values under it.
type SampledRow struct {
	Bands []float64
	X, Y  float64
	Depth float64
}

// ValidatedRow is a held-out row together with the model's prediction for it.
type ValidatedRow struct {
	SampledRow
	Validated float64
}

// SampledDataset is the table produced by the raster sampler: one column per
// band plus x, y and depth.
type SampledDataset struct {
	BandNames  []string
	DepthLabel string
	Rows       []SampledRow
}

// Len returns the number of rows.
func (d *SampledDataset) Len() int {
	return len(d.Rows)
}

// Depths returns a copy of the depth column.
func (d *SampledDataset) Depths() []float64 {
	out := make([]float64, len(d.Rows))
	for i, r := range d.Rows {
		out[i] = r.Depth
	}
	return out
}

// Columns returns the column names in export order. The depth column is
// named after DepthLabel, "z" when unset.
func (d *SampledDataset) Columns() []string {
	depth := d.DepthLabel
	if depth == "" {
		depth = "z"
	}
	cols := append([]string(nil), d.BandNames...)
	return append(cols, "x", "y", depth)
}

// Clone deep-copies the dataset.
func (d *SampledDataset) Clone() SampledDataset {
	out := SampledDataset{
		BandNames:  append([]string(nil), d.BandNames...),
		DepthLabel: d.DepthLabel,
		Rows:       make([]SampledRow, len(d.Rows)),
	}
	for i, r := range d.Rows {
		r.Bands = append([]float64(nil), r.Bands...)
		out.Rows[i] = r
	}
	return out
}

// SplitResult is a disjoint train/test partition of a SampledDataset.
// Feature matrices hold band values only; Train and Test keep the full rows
// for reporting and export.
type SplitResult struct {
	TrainFeatures [][]float64
	TrainTargets  []float64
	TestFeatures  [][]float64
	TestTargets   []float64

	Train []SampledRow
	Test  []SampledRow
}
