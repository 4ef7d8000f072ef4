// Package visualization renders a predicted depth grid as a grayscale
// preview and plots measured against predicted depths.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// Viewer renders a row-major depth grid.
type Viewer struct {
	// grid holds one depth per pixel, NaN where nothing was predicted
	grid []float64

	width  int
	height int
}

// NewViewer creates a viewer over grid.
func NewViewer(grid []float64, width, height int) (*Viewer, error) {
	if width <= 0 || height <= 0 || len(grid) != width*height {
		return nil, fmt.Errorf("grid of %d cells does not match %dx%d", len(grid), width, height)
	}
	return &Viewer{grid: grid, width: width, height: height}, nil
}

// Range returns the smallest and largest finite depth. ok is false when the
// grid holds no finite value.
func (v *Viewer) Range() (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, d := range v.grid {
		if math.IsNaN(d) || math.IsInf(d, 0) {
			continue
		}
		lo = math.Min(lo, d)
		hi = math.Max(hi, d)
	}
	return lo, hi, lo <= hi
}

// Preview maps depths linearly onto gray levels: the deepest pixel is 1 and
// the shallowest 65535. Pixels without a depth are 0.
func (v *Viewer) Preview() *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, v.width, v.height))
	lo, hi, ok := v.Range()
	if !ok {
		return img
	}
	span := hi - lo
	for y := 0; y < v.height; y++ {
		for x := 0; x < v.width; x++ {
			d := v.grid[y*v.width+x]
			if math.IsNaN(d) || math.IsInf(d, 0) {
				continue
			}
			level := 65535.0
			if span > 0 {
				level = 1 + (d-lo)/span*65534
			}
			img.SetGray16(x, y, color.Gray16{Y: uint16(math.Round(level))})
		}
	}
	return img
}

// ExtractRegion copies a sizeX x sizeY window starting at (startX, startY).
func (v *Viewer) ExtractRegion(startX, startY, sizeX, sizeY int) ([]float64, error) {
	if startX < 0 || startY < 0 {
		return nil, fmt.Errorf("start coordinates must be non-negative")
	}
	if sizeX <= 0 || sizeY <= 0 {
		return nil, fmt.Errorf("size dimensions must be positive")
	}
	if startX+sizeX > v.width || startY+sizeY > v.height {
		return nil, fmt.Errorf("region extends beyond grid boundaries")
	}

	region := make([]float64, sizeX*sizeY)
	for y := 0; y < sizeY; y++ {
		copy(region[y*sizeX:(y+1)*sizeX], v.grid[(startY+y)*v.width+startX:])
	}
	return region, nil
}

// Crop returns a viewer over the sizeX x sizeY window starting at
// (startX, startY).
func (v *Viewer) Crop(startX, startY, sizeX, sizeY int) (*Viewer, error) {
	region, err := v.ExtractRegion(startX, startY, sizeX, sizeY)
	if err != nil {
		return nil, err
	}
	return NewViewer(region, sizeX, sizeY)
}

// SavePreview writes img as PNG, or as JPEG when filename ends in .jpg or
// .jpeg.
func SavePreview(img image.Image, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
	default:
		err = png.Encode(file, img)
	}
	if err != nil {
		return err
	}
	return file.Close()
}
