package models

import (
	"fmt"
	"math"
)

// Affine maps pixel (col, row) positions to geographic coordinates:
//
//	x = A*col + B*row + C
//	y = D*col + E*row + F
//
// The coefficient order matches the common GIS convention where A and E are
// the pixel width and (usually negative) pixel height.
type Affine struct {
	A, B, C float64
	D, E, F float64
}

// NorthUp returns the transform of an unrotated raster whose upper-left corner
// sits at (originX, originY).
func NorthUp(originX, originY, pixelWidth, pixelHeight float64) Affine {
	return Affine{A: pixelWidth, C: originX, E: -math.Abs(pixelHeight), F: originY}
}

// Apply maps a fractional pixel position to a geographic coordinate.
func (t Affine) Apply(col, row float64) (x, y float64) {
	return t.A*col + t.B*row + t.C, t.D*col + t.E*row + t.F
}

// Determinant of the linear part of the transform.
func (t Affine) Determinant() float64 {
	return t.A*t.E - t.B*t.D
}

// Invert maps a geographic coordinate back to a fractional pixel position.
func (t Affine) Invert(x, y float64) (col, row float64, err error) {
	det := t.Determinant()
	if det == 0 {
		return 0, 0, fmt.Errorf("%w: affine transform is not invertible", ErrConfiguration)
	}
	dx, dy := x-t.C, y-t.F
	col = (t.E*dx - t.B*dy) / det
	row = (-t.D*dx + t.A*dy) / det
	return col, row, nil
}

// Rectilinear reports whether the transform has no rotation or shear terms.
func (t Affine) Rectilinear() bool {
	return t.B == 0 && t.D == 0
}

// Bounds is an axis-aligned geographic bounding box.
type Bounds struct {
	Left, Bottom, Right, Top float64
}

// ContainsStrict reports whether (x, y) lies strictly inside the box.
// Points on an edge are outside.
func (b Bounds) ContainsStrict(x, y float64) bool {
	return b.Left < x && x < b.Right && b.Bottom < y && y < b.Top
}

// PredictionNoData is the nodata value written for pixels without a
// prediction.
const PredictionNoData = -999.0

// RasterImage is a multi-band image with its georeferencing metadata.
// It is read-only once loaded and may be shared between pipeline runs.
type RasterImage struct {
	// Width and Height are the image dimensions in pixels
	Width  int
	Height int

	// Bands is the number of channels per pixel
	Bands int

	// BandNames optionally names each band; empty means band1..bandN
	BandNames []string

	// Data holds the pixel values, pixel-interleaved in row-major order:
	// Data[(row*Width+col)*Bands+band]
	Data []float64

	// Transform maps pixel positions to coordinates in CRS
	Transform Affine

	// CRS is the coordinate reference system identifier, e.g. "EPSG:32750"
	CRS string

	// NoData is the sentinel for missing pixels, nil when the image has none
	NoData *float64
}

// PixelCount returns Width*Height.
func (r *RasterImage) PixelCount() int {
	return r.Width * r.Height
}

// Pixel returns the band values of the i-th pixel in row-major order.
// The returned slice aliases the image data and must not be modified.
func (r *RasterImage) Pixel(i int) []float64 {
	off := i * r.Bands
	return r.Data[off : off+r.Bands : off+r.Bands]
}

// Value returns a single band value.
func (r *RasterImage) Value(row, col, band int) float64 {
	return r.Data[(row*r.Width+col)*r.Bands+band]
}

// IsMissing reports whether v is NaN or the image's nodata sentinel.
func (r *RasterImage) IsMissing(v float64) bool {
	if math.IsNaN(v) {
		return true
	}
	return r.NoData != nil && v == *r.NoData
}

// PixelComplete reports whether every band of pixel i holds a value.
func (r *RasterImage) PixelComplete(i int) bool {
	for _, v := range r.Pixel(i) {
		if r.IsMissing(v) {
			return false
		}
	}
	return true
}

// BandLabel returns the column name used for band b (zero based).
func (r *RasterImage) BandLabel(b int) string {
	if b < len(r.BandNames) && r.BandNames[b] != "" {
		return r.BandNames[b]
	}
	return fmt.Sprintf("band%d", b+1)
}

// BandLabels returns the column names of all bands.
func (r *RasterImage) BandLabels() []string {
	labels := make([]string, r.Bands)
	for b := range labels {
		labels[b] = r.BandLabel(b)
	}
	return labels
}

// Bounds returns the geographic extent covered by the image.
func (r *RasterImage) Bounds() Bounds {
	w, h := float64(r.Width), float64(r.Height)
	corners := [4][2]float64{{0, 0}, {w, 0}, {0, h}, {w, h}}
	b := Bounds{Left: math.Inf(1), Bottom: math.Inf(1), Right: math.Inf(-1), Top: math.Inf(-1)}
	for _, c := range corners {
		x, y := r.Transform.Apply(c[0], c[1])
		b.Left = math.Min(b.Left, x)
		b.Right = math.Max(b.Right, x)
		b.Bottom = math.Min(b.Bottom, y)
		b.Top = math.Max(b.Top, y)
	}
	return b
}

// Index converts a coordinate to the (row, col) of the pixel containing it.
// Fractional positions are floored, so the result may lie outside the array;
// use InArray to check.
func (r *RasterImage) Index(x, y float64) (row, col int, err error) {
	fc, fr, err := r.Transform.Invert(x, y)
	if err != nil {
		return 0, 0, err
	}
	return int(math.Floor(fr)), int(math.Floor(fc)), nil
}

// InArray reports whether (row, col) addresses a pixel of the image.
func (r *RasterImage) InArray(row, col int) bool {
	return row >= 0 && row < r.Height && col >= 0 && col < r.Width
}

// PixelSize returns the absolute ground size of one pixel along x and y.
func (r *RasterImage) PixelSize() (float64, float64) {
	x0, y0 := r.Transform.Apply(0, 0)
	x1, y1 := r.Transform.Apply(1, 1)
	return math.Abs(x1 - x0), math.Abs(y1 - y0)
}

// Validate checks that the dimensions agree with the data length.
func (r *RasterImage) Validate() error {
	if r.Width <= 0 || r.Height <= 0 || r.Bands <= 0 {
		return fmt.Errorf("%w: raster dimensions %dx%dx%d", ErrConfiguration, r.Width, r.Height, r.Bands)
	}
	if len(r.Data) != r.Width*r.Height*r.Bands {
		return fmt.Errorf("%w: raster holds %d values, want %d", ErrConfiguration,
			len(r.Data), r.Width*r.Height*r.Bands)
	}
	if r.Transform.Determinant() == 0 {
		return fmt.Errorf("%w: raster transform is degenerate", ErrConfiguration)
	}
	return nil
}
