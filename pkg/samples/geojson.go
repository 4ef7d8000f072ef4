package samples

import (
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"

	"satbathy/internal/models"
)

// LoadGeoJSON reads a FeatureCollection. Features that are not points keep
// their geometry kind so that the depth check can reject them. The CRS comes
// from the legacy "crs" member when present, otherwise from opts.
func LoadGeoJSON(path string, opts Options) (*models.SampleTable, error) {
	opts = opts.withDefaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read sample file: %v", models.ErrMissingInput, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", models.ErrInvalidSampleType, path, err)
	}

	table := &models.SampleTable{CRS: opts.CRS}
	if name, ok := crsName(fc.ExtraMembers); ok {
		table.CRS = name
	}

	seen := map[string]bool{}
	for _, f := range fc.Features {
		p := models.SamplePoint{Attributes: make(map[string]any, len(f.Properties))}
		switch g := f.Geometry.(type) {
		case orb.Point:
			p.Kind, p.X, p.Y = models.GeometryPoint, g[0], g[1]
		case nil:
			p.Kind = models.GeometryOther
		default:
			p.Kind = geometryKind(g)
			c := g.Bound().Center()
			p.X, p.Y = c[0], c[1]
		}
		keys := make([]string, 0, len(f.Properties))
		for k := range f.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			p.Attributes[k] = attributeValue(f.Properties[k])
			if !seen[k] {
				seen[k] = true
				table.Columns = append(table.Columns, k)
			}
		}
		table.Points = append(table.Points, p)
	}

	log.Debug().Str("path", path).Int("points", table.Len()).Str("crs", table.CRS).Msg("samples loaded")
	return table, nil
}

func geometryKind(g orb.Geometry) models.GeometryKind {
	switch g.(type) {
	case orb.Point:
		return models.GeometryPoint
	case orb.MultiPoint:
		return models.GeometryMultiPoint
	case orb.LineString, orb.MultiLineString:
		return models.GeometryLineString
	case orb.Polygon, orb.MultiPolygon:
		return models.GeometryPolygon
	}
	return models.GeometryOther
}

// crsName reads {"crs": {"type": "name", "properties": {"name": ...}}}.
func crsName(members geojson.Properties) (string, bool) {
	c, ok := members["crs"].(map[string]interface{})
	if !ok {
		return "", false
	}
	props, ok := c["properties"].(map[string]interface{})
	if !ok {
		return "", false
	}
	name, ok := props["name"].(string)
	return name, ok && name != ""
}

// WriteGeoJSON writes t as a FeatureCollection of points in crs. Band values,
// depth and prediction become feature properties.
func WriteGeoJSON(path string, t ExportTable, crs string) error {
	fc := geojson.NewFeatureCollection()
	if crs != "" {
		fc.ExtraMembers = geojson.Properties{
			"crs": map[string]interface{}{
				"type":       "name",
				"properties": map[string]interface{}{"name": crs},
			},
		}
	}
	for _, r := range t.Rows {
		f := geojson.NewFeature(orb.Point{r.X, r.Y})
		for b, v := range r.Bands {
			f.Properties[t.bandName(b)] = jsonNumber(v)
		}
		f.Properties[t.depthLabel()] = jsonNumber(r.Depth)
		if t.Validated {
			f.Properties[ValidatedColumn] = jsonNumber(r.Validated)
		}
		fc.Append(f)
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("error marshaling %s: %w", path, err)
	}
	f, err := create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("error writing %s: %w", path, err)
	}
	return f.Close()
}

func (t ExportTable) bandName(b int) string {
	if b < len(t.BandNames) {
		return t.BandNames[b]
	}
	return fmt.Sprintf("band%d", b+1)
}

// jsonNumber maps non-finite values to null, which JSON cannot hold as numbers.
func jsonNumber(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
