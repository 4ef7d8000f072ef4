// Package samples loads depth sample tables from CSV and GeoJSON files and
// exports train and test rows in the same formats.
package samples

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"satbathy/internal/models"
)

// DefaultCRS is assumed when a file does not declare one.
const DefaultCRS = "EPSG:4326"

// Options control how a CSV file is read. GeoJSON files carry their own
// geometry and ignore XColumn and YColumn.
type Options struct {
	XColumn string
	YColumn string
	// CRS of the coordinates; GeoJSON files may override it
	CRS string
}

func (o Options) withDefaults() Options {
	if o.XColumn == "" {
		o.XColumn = "x"
	}
	if o.YColumn == "" {
		o.YColumn = "y"
	}
	if o.CRS == "" {
		o.CRS = DefaultCRS
	}
	return o
}

// Load reads a sample table, choosing the format by file extension.
func Load(path string, opts Options) (*models.SampleTable, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return LoadCSV(path, opts)
	case ".geojson", ".json":
		return LoadGeoJSON(path, opts)
	}
	return nil, fmt.Errorf("%w: unsupported sample file %s", models.ErrConfiguration, path)
}

// parseCell turns a text cell into an attribute value: a float64 when it
// parses as a number, NaN when blank, the trimmed text otherwise.
func parseCell(s string) any {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return math.NaN()
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	return s
}

// attributeValue normalizes a decoded JSON property.
func attributeValue(v any) any {
	switch t := v.(type) {
	case nil:
		return math.NaN()
	case float64:
		return t
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
