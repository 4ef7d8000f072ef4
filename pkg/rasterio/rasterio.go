// Package rasterio reads multi-band rasters and writes single-band
// prediction rasters.
//
// The native format is a YAML header describing the image next to a raw file
// holding the samples:
//
//	width: 512
//	height: 512
//	bands: 4
//	dtype: float32        # float32 or float64
//	byteOrder: little     # little or big
//	interleave: bsq       # bsq (band after band) or bip (pixel after pixel)
//	transform: [10, 0, 300000, 0, -10, 9100000]   # a, b, c, d, e, f
//	crs: EPSG:32750
//	nodata: -9999
//	data: scene.raw       # relative to the header
//	bandNames: [blue, green, red, nir]
//
// Predictions can also be written as ESRI ASCII grids.
package rasterio

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"satbathy/internal/models"
)

// Sample encodings
const (
	DTypeFloat32 = "float32"
	DTypeFloat64 = "float64"

	InterleaveBSQ = "bsq"
	InterleaveBIP = "bip"
)

// Header is the YAML description of a native raster.
type Header struct {
	Width      int        `yaml:"width"`
	Height     int        `yaml:"height"`
	Bands      int        `yaml:"bands"`
	DType      string     `yaml:"dtype"`
	ByteOrder  string     `yaml:"byteOrder"`
	Interleave string     `yaml:"interleave"`
	Transform  [6]float64 `yaml:"transform,flow"`
	CRS        string     `yaml:"crs"`
	NoData     *float64   `yaml:"nodata,omitempty"`
	Data       string     `yaml:"data"`
	BandNames  []string   `yaml:"bandNames,omitempty,flow"`
}

func (h *Header) byteOrder() (binary.ByteOrder, error) {
	switch strings.ToLower(h.ByteOrder) {
	case "", "little":
		return binary.LittleEndian, nil
	case "big":
		return binary.BigEndian, nil
	}
	return nil, fmt.Errorf("%w: unknown byte order %q", models.ErrConfiguration, h.ByteOrder)
}

func (h *Header) sampleSize() (int, error) {
	switch strings.ToLower(h.DType) {
	case "", DTypeFloat64:
		return 8, nil
	case DTypeFloat32:
		return 4, nil
	}
	return 0, fmt.Errorf("%w: unsupported dtype %q", models.ErrConfiguration, h.DType)
}

// Load reads the header at headerPath and the data file it names.
func Load(headerPath string) (*models.RasterImage, error) {
	raw, err := os.ReadFile(headerPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read raster header: %v", models.ErrMissingInput, err)
	}
	var h Header
	if err := yaml.Unmarshal(raw, &h); err != nil {
		return nil, fmt.Errorf("%w: parse raster header %s: %v", models.ErrConfiguration, headerPath, err)
	}

	order, err := h.byteOrder()
	if err != nil {
		return nil, err
	}
	size, err := h.sampleSize()
	if err != nil {
		return nil, err
	}
	if h.Data == "" {
		return nil, fmt.Errorf("%w: raster header %s names no data file", models.ErrConfiguration, headerPath)
	}
	dataPath := h.Data
	if !filepath.IsAbs(dataPath) {
		dataPath = filepath.Join(filepath.Dir(headerPath), dataPath)
	}
	data, err := os.ReadFile(dataPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read raster data: %v", models.ErrMissingInput, err)
	}

	pixels := h.Width * h.Height
	if h.Width <= 0 || h.Height <= 0 || h.Bands <= 0 {
		return nil, fmt.Errorf("%w: raster dimensions %dx%dx%d", models.ErrConfiguration, h.Width, h.Height, h.Bands)
	}
	if want := pixels * h.Bands * size; len(data) != want {
		return nil, fmt.Errorf("%w: %s holds %d bytes, want %d", models.ErrConfiguration, dataPath, len(data), want)
	}

	img := &models.RasterImage{
		Width:     h.Width,
		Height:    h.Height,
		Bands:     h.Bands,
		BandNames: h.BandNames,
		Data:      make([]float64, pixels*h.Bands),
		Transform: models.Affine{
			A: h.Transform[0], B: h.Transform[1], C: h.Transform[2],
			D: h.Transform[3], E: h.Transform[4], F: h.Transform[5],
		},
		CRS:    h.CRS,
		NoData: h.NoData,
	}

	bsq := strings.EqualFold(h.Interleave, InterleaveBSQ)
	if !bsq && h.Interleave != "" && !strings.EqualFold(h.Interleave, InterleaveBIP) {
		return nil, fmt.Errorf("%w: unknown interleave %q", models.ErrConfiguration, h.Interleave)
	}
	for k := 0; k < pixels*h.Bands; k++ {
		v := decode(data[k*size:(k+1)*size], order)
		if bsq {
			band, pixel := k/pixels, k%pixels
			img.Data[pixel*h.Bands+band] = v
		} else {
			img.Data[k] = v
		}
	}

	if err := img.Validate(); err != nil {
		return nil, err
	}
	log.Debug().
		Str("path", headerPath).
		Int("width", img.Width).
		Int("height", img.Height).
		Int("bands", img.Bands).
		Str("crs", img.CRS).
		Msg("raster loaded")
	return img, nil
}

func decode(b []byte, order binary.ByteOrder) float64 {
	if len(b) == 4 {
		return float64(math.Float32frombits(order.Uint32(b)))
	}
	return math.Float64frombits(order.Uint64(b))
}

// WriteNative writes img as a little-endian float32 BSQ raster. The data file
// takes the header's name with a .raw extension. Missing values are written
// as the image's nodata value when it has one.
func WriteNative(img *models.RasterImage, headerPath string) error {
	if err := img.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(headerPath), 0755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}

	dataPath := strings.TrimSuffix(headerPath, filepath.Ext(headerPath)) + ".raw"
	t := img.Transform
	h := Header{
		Width:      img.Width,
		Height:     img.Height,
		Bands:      img.Bands,
		DType:      DTypeFloat32,
		ByteOrder:  "little",
		Interleave: InterleaveBSQ,
		Transform:  [6]float64{t.A, t.B, t.C, t.D, t.E, t.F},
		CRS:        img.CRS,
		NoData:     img.NoData,
		Data:       filepath.Base(dataPath),
		BandNames:  img.BandLabels(),
	}

	pixels := img.PixelCount()
	buf := make([]byte, 4*pixels*img.Bands)
	for band := 0; band < img.Bands; band++ {
		for p := 0; p < pixels; p++ {
			v := img.Data[p*img.Bands+band]
			if img.NoData != nil && img.IsMissing(v) {
				v = *img.NoData
			}
			k := band*pixels + p
			binary.LittleEndian.PutUint32(buf[4*k:], math.Float32bits(float32(v)))
		}
	}
	if err := os.WriteFile(dataPath, buf, 0644); err != nil {
		return fmt.Errorf("error writing raster data: %w", err)
	}

	header, err := yaml.Marshal(&h)
	if err != nil {
		return fmt.Errorf("error marshaling raster header: %w", err)
	}
	if err := os.WriteFile(headerPath, header, 0644); err != nil {
		return fmt.Errorf("error writing raster header: %w", err)
	}
	return nil
}
