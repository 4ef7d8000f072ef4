// Package postprocess smooths predicted depth grids before export.
package postprocess

import (
	"context"
	"fmt"
	"math"

	"satbathy/internal/models"
	"satbathy/pkg/preprocess"
	"satbathy/pkg/workers"
)

// Window sizes accepted by MedianFilter.
const (
	MinWindow = 3
	MaxWindow = 33
)

// MedianFilter replaces every finite cell of a row-major width x height grid
// with the median of the size x size window around it. The grid edges are
// mirrored (d c b a | a b c d). NaN cells stay NaN and are left out of every
// window; an even number of finite neighbours averages the two middle values.
// Rows are filtered in parallel when ctx carries a worker pool.
func MedianFilter(ctx context.Context, grid []float64, width, height, size int) ([]float64, error) {
	if size < MinWindow || size > MaxWindow || size%2 == 0 {
		return nil, fmt.Errorf("%w: median window %d must be odd and within [%d, %d]",
			models.ErrConfiguration, size, MinWindow, MaxWindow)
	}
	if width <= 0 || height <= 0 || len(grid) != width*height {
		return nil, fmt.Errorf("%w: grid of %d cells does not match %dx%d",
			models.ErrConfiguration, len(grid), width, height)
	}

	half := size / 2
	out := make([]float64, len(grid))
	err := workers.ForEach(ctx, height, func(start, end int) error {
		window := make([]float64, 0, size*size)
		for row := start; row < end; row++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			for col := 0; col < width; col++ {
				i := row*width + col
				if math.IsNaN(grid[i]) {
					out[i] = math.NaN()
					continue
				}
				window = window[:0]
				for dr := -half; dr <= half; dr++ {
					r := reflect(row+dr, height)
					for dc := -half; dc <= half; dc++ {
						v := grid[r*width+reflect(col+dc, width)]
						if !math.IsNaN(v) {
							window = append(window, v)
						}
					}
				}
				out[i] = preprocess.SortedMedian(window)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// reflect folds i back into [0, n) by mirroring about the edges.
func reflect(i, n int) int {
	for i < 0 || i >= n {
		if i < 0 {
			i = -i - 1
		}
		if i >= n {
			i = 2*n - i - 1
		}
	}
	return i
}
