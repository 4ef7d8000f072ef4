// Package crs resolves coordinate reference system identifiers and converts
// point coordinates between them.
//
// Identifiers are reduced to EPSG codes and transformed with the EPSG
// registry of github.com/wroge/wgs84, which covers geographic WGS 84, Web
// Mercator, the UTM grids and most national projected systems. A code the
// registry does not know is a configuration error.
package crs

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/wroge/wgs84"

	"satbathy/internal/models"
)

const (
	codeWGS84       = 4326
	codeWebMercator = 3857
)

var registry = sync.OnceValue(wgs84.EPSG)

// Canonical returns the "EPSG:nnnn" form of a CRS identifier.
func Canonical(id string) (string, error) {
	code, err := parseCode(id)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("EPSG:%d", code), nil
}

// Equal reports whether two identifiers name the same CRS. Identifiers that
// cannot be resolved are compared as case-insensitive strings.
func Equal(a, b string) bool {
	ca, errA := Canonical(a)
	cb, errB := Canonical(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
	}
	return ca == cb
}

// Lookup returns the EPSG code named by id once the registry has confirmed
// it can convert that system to and from WGS 84.
func Lookup(id string) (int, error) {
	code, err := parseCode(id)
	if err != nil {
		return 0, err
	}
	if code == codeWGS84 {
		return code, nil
	}
	if _, err := registry().SafeTransform(code, codeWGS84); err != nil {
		return 0, fmt.Errorf("%w: unsupported CRS EPSG:%d: %v", models.ErrConfiguration, code, err)
	}
	if _, err := registry().SafeTransform(codeWGS84, code); err != nil {
		return 0, fmt.Errorf("%w: unsupported CRS EPSG:%d: %v", models.ErrConfiguration, code, err)
	}
	return code, nil
}

func parseCode(id string) (int, error) {
	s := strings.ToUpper(strings.TrimSpace(id))
	switch s {
	case "":
		return 0, fmt.Errorf("%w: empty CRS identifier", models.ErrConfiguration)
	case "WGS84", "WGS 84", "OGC:CRS84", "CRS84", "URN:OGC:DEF:CRS:OGC:1.3:CRS84":
		return codeWGS84, nil
	case "EPSG:900913":
		return codeWebMercator, nil
	}
	for _, prefix := range []string{"URN:OGC:DEF:CRS:EPSG::", "+INIT=EPSG:", "EPSG:"} {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimPrefix(s, prefix)
			break
		}
	}
	code, err := strconv.Atoi(s)
	if err != nil || code <= 0 {
		return 0, fmt.Errorf("%w: unrecognised CRS identifier %q", models.ErrConfiguration, id)
	}
	return code, nil
}

// Transformer converts coordinates from one CRS to another. Geographic
// coordinates are longitude, latitude in degrees.
type Transformer struct {
	from, to int
	fn       wgs84.Func
}

// NewTransformer resolves both identifiers.
func NewTransformer(from, to string) (*Transformer, error) {
	src, err := Lookup(from)
	if err != nil {
		return nil, fmt.Errorf("source CRS: %w", err)
	}
	dst, err := Lookup(to)
	if err != nil {
		return nil, fmt.Errorf("target CRS: %w", err)
	}
	t := &Transformer{from: src, to: dst}
	if src == dst {
		return t, nil
	}
	if t.fn, err = registry().SafeTransform(src, dst); err != nil {
		return nil, fmt.Errorf("%w: EPSG:%d to EPSG:%d: %v", models.ErrConfiguration, src, dst, err)
	}
	return t, nil
}

// Transform converts a single coordinate. Latitudes outside [-90, 90] and
// results that are not finite, such as a pole in Web Mercator, are errors.
func (t *Transformer) Transform(x, y float64) (float64, float64, error) {
	if t.from == codeWGS84 {
		if math.IsNaN(y) || y < -90 || y > 90 {
			return 0, 0, fmt.Errorf("latitude %v out of range", y)
		}
		if t.to == codeWebMercator && math.Abs(y) == 90 {
			return 0, 0, fmt.Errorf("latitude %v cannot be projected to Web Mercator", y)
		}
	}
	if t.from == t.to {
		return x, y, nil
	}
	ox, oy, _ := t.fn(x, y, 0)
	if !finite(ox) || !finite(oy) {
		return 0, 0, fmt.Errorf("(%v, %v) cannot be projected from EPSG:%d to EPSG:%d", x, y, t.from, t.to)
	}
	return ox, oy, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
