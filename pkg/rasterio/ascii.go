package rasterio

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"satbathy/internal/models"
)

// WriteASCIIGrid writes the first band of img as an ESRI ASCII grid. The
// image must be north-up; non-square pixels are written with dx/dy keys.
// The CRS identifier is written to a .prj sidecar.
func WriteASCIIGrid(img *models.RasterImage, path string) error {
	if err := img.Validate(); err != nil {
		return err
	}
	t := img.Transform
	if !t.Rectilinear() || t.A <= 0 || t.E >= 0 {
		return fmt.Errorf("%w: ASCII grids need a north-up transform", models.ErrConfiguration)
	}
	nodata := models.PredictionNoData
	if img.NoData != nil {
		nodata = *img.NoData
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating grid file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "ncols %d\nnrows %d\n", img.Width, img.Height)
	fmt.Fprintf(w, "xllcorner %s\nyllcorner %s\n", num(t.C), num(t.F+t.E*float64(img.Height)))
	if dy := -t.E; dy == t.A {
		fmt.Fprintf(w, "cellsize %s\n", num(t.A))
	} else {
		fmt.Fprintf(w, "dx %s\ndy %s\n", num(t.A), num(dy))
	}
	fmt.Fprintf(w, "NODATA_value %s\n", num(nodata))

	fields := make([]string, img.Width)
	for row := 0; row < img.Height; row++ {
		for col := 0; col < img.Width; col++ {
			v := img.Value(row, col, 0)
			if img.IsMissing(v) || math.IsInf(v, 0) {
				v = nodata
			}
			fields[col] = num(v)
		}
		fmt.Fprintln(w, strings.Join(fields, " "))
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("error writing grid file: %w", err)
	}

	if img.CRS != "" {
		prj := strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"
		if err := os.WriteFile(prj, []byte(img.CRS+"\n"), 0644); err != nil {
			return fmt.Errorf("error writing projection file: %w", err)
		}
	}
	return f.Close()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
