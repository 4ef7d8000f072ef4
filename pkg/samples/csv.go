package samples

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"satbathy/internal/models"
)

// LoadCSV reads a delimited text file whose first line is a header. The x
// and y columns give the point coordinates; every other column becomes an
// attribute.
func LoadCSV(path string, opts Options) (*models.SampleTable, error) {
	opts = opts.withDefaults()
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open sample file: %v", models.ErrMissingInput, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true

	// First line is expected to be a header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read sample header: %v", models.ErrInvalidSampleType, err)
	}
	xCol, yCol := -1, -1
	table := &models.SampleTable{CRS: opts.CRS}
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		header[i] = name
		switch {
		case strings.EqualFold(name, opts.XColumn):
			xCol = i
		case strings.EqualFold(name, opts.YColumn):
			yCol = i
		default:
			table.Columns = append(table.Columns, name)
		}
	}
	if xCol < 0 || yCol < 0 {
		return nil, fmt.Errorf("%w: %s needs coordinate columns %q and %q", models.ErrInvalidSampleType,
			path, opts.XColumn, opts.YColumn)
	}

	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", models.ErrInvalidSampleType, path, line, err)
		}
		x, okX := parseCell(record[xCol]).(float64)
		y, okY := parseCell(record[yCol]).(float64)
		if !okX || !okY {
			return nil, fmt.Errorf("%w: %s line %d: coordinates are not numeric", models.ErrInvalidSampleType, path, line)
		}
		p := models.SamplePoint{Kind: models.GeometryPoint, X: x, Y: y, Attributes: make(map[string]any, len(header)-2)}
		for i, cell := range record {
			if i != xCol && i != yCol {
				p.Attributes[header[i]] = parseCell(cell)
			}
		}
		table.Points = append(table.Points, p)
	}

	log.Debug().Str("path", path).Int("points", table.Len()).Str("crs", table.CRS).Msg("samples loaded")
	return table, nil
}

// WriteCSV writes t with a header line.
func WriteCSV(path string, t ExportTable) error {
	f, err := create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(t.Header()); err != nil {
		return fmt.Errorf("error writing table header: %w", err)
	}
	for i := range t.Rows {
		if err := w.Write(t.Record(i)); err != nil {
			return fmt.Errorf("error writing table row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("error writing table: %w", err)
	}
	return f.Close()
}
