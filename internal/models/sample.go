package models

import (
	"fmt"
	"math"
	"strings"
)

// GeometryKind names the geometry type of a sample feature.
type GeometryKind int

const (
	GeometryPoint GeometryKind = iota
	GeometryMultiPoint
	GeometryLineString
	GeometryPolygon
	GeometryOther
)

func (k GeometryKind) String() string {
	switch k {
	case GeometryPoint:
		return "Point"
	case GeometryMultiPoint:
		return "MultiPoint"
	case GeometryLineString:
		return "LineString"
	case GeometryPolygon:
		return "Polygon"
	default:
		return "Other"
	}
}

// SamplePoint is one record of a sample dataset.
type SamplePoint struct {
	// Kind is the geometry type of the source feature
	Kind GeometryKind

	// X and Y are the point coordinates in the table's CRS
	X, Y float64

	// Attributes maps column name to value. Numeric values are float64,
	// missing values are NaN, anything else is kept as a string.
	Attributes map[string]any
}

// Numeric returns the attribute as a float64. Missing attributes are NaN.
func (p SamplePoint) Numeric(name string) (float64, bool) {
	v, ok := p.Attributes[name]
	if !ok || v == nil {
		return math.NaN(), true
	}
	f, ok := v.(float64)
	return f, ok
}

// SampleTable is an ordered collection of sample points sharing a CRS.
type SampleTable struct {
	// CRS is the coordinate reference system identifier of X and Y
	CRS string

	// Columns lists attribute names in source order
	Columns []string

	// Points holds the records
	Points []SamplePoint
}

// Len returns the number of records.
func (t *SampleTable) Len() int {
	return len(t.Points)
}

// Clone returns a deep copy; attribute maps are copied too.
func (t *SampleTable) Clone() SampleTable {
	out := SampleTable{
		CRS:     t.CRS,
		Columns: append([]string(nil), t.Columns...),
		Points:  make([]SamplePoint, len(t.Points)),
	}
	for i, p := range t.Points {
		attrs := make(map[string]any, len(p.Attributes))
		for k, v := range p.Attributes {
			attrs[k] = v
		}
		p.Attributes = attrs
		out.Points[i] = p
	}
	return out
}

// HasColumn reports whether name is one of the attribute columns.
func (t *SampleTable) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// CheckDepth verifies that every geometry is a point and that the depth
// attribute is numeric (or missing) on every record.
func (t *SampleTable) CheckDepth(label string) error {
	if strings.TrimSpace(label) == "" {
		return fmt.Errorf("%w: no depth column selected", ErrInvalidSampleType)
	}
	if !t.HasColumn(label) {
		return fmt.Errorf("%w: depth column %q not found", ErrInvalidSampleType, label)
	}
	for i, p := range t.Points {
		if p.Kind != GeometryPoint {
			return fmt.Errorf("%w: record %d is %s, want Point", ErrInvalidSampleType, i, p.Kind)
		}
		if _, ok := p.Numeric(label); !ok {
			return fmt.Errorf("%w: depth column %q is not numeric at record %d", ErrInvalidSampleType, label, i)
		}
	}
	return nil
}
