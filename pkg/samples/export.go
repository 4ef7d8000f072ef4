package samples

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"satbathy/internal/models"
)

// ValidatedColumn names the prediction column of exported test rows.
const ValidatedColumn = "validated"

// ExportTable is a set of sampled rows ready to be written: one column per
// band, x, y, the depth and, for test rows, the prediction.
type ExportTable struct {
	BandNames  []string
	DepthLabel string
	Rows       []models.ValidatedRow
	// Validated adds the prediction column
	Validated bool
}

// TrainTable wraps training rows for export.
func TrainTable(bandNames []string, depthLabel string, rows []models.SampledRow) ExportTable {
	t := ExportTable{BandNames: bandNames, DepthLabel: depthLabel, Rows: make([]models.ValidatedRow, len(rows))}
	for i, r := range rows {
		t.Rows[i] = models.ValidatedRow{SampledRow: r}
	}
	return t
}

// TestTable wraps validated rows for export.
func TestTable(bandNames []string, depthLabel string, rows []models.ValidatedRow) ExportTable {
	return ExportTable{BandNames: bandNames, DepthLabel: depthLabel, Rows: rows, Validated: true}
}

// Header returns the column names in write order: the sampled dataset
// columns followed by the prediction column of a test table.
func (t ExportTable) Header() []string {
	cols := t.columns()
	if t.Validated {
		cols = append(cols, ValidatedColumn)
	}
	return cols
}

func (t ExportTable) columns() []string {
	ds := models.SampledDataset{BandNames: t.BandNames, DepthLabel: t.DepthLabel}
	return ds.Columns()
}

// Record formats row i.
func (t ExportTable) Record(i int) []string {
	r := t.Rows[i]
	out := make([]string, 0, len(r.Bands)+4)
	for _, v := range r.Bands {
		out = append(out, formatFloat(v))
	}
	out = append(out, formatFloat(r.X), formatFloat(r.Y), formatFloat(r.Depth))
	if t.Validated {
		out = append(out, formatFloat(r.Validated))
	}
	return out
}

func (t ExportTable) depthLabel() string {
	cols := t.columns()
	return cols[len(cols)-1]
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func create(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("error creating output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("error creating %s: %w", path, err)
	}
	return f, nil
}
