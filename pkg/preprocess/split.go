package preprocess

import (
	"fmt"
	"math"
	"math/rand"

	"satbathy/internal/models"
)

// Split partitions ds into train and test rows.
//
// The train split holds floor(trainFraction*n) rows. A permutation seeded
// with seed picks the rows: its first n-nTrain entries form the test split
// and the remainder the train split, each in permutation order. The same
// dataset and seed always give the same split. Both splits must be
// non-empty.
func Split(ds *models.SampledDataset, trainFraction float64, seed int64) (models.SplitResult, error) {
	if !(trainFraction > 0 && trainFraction < 1) {
		return models.SplitResult{}, fmt.Errorf("%w: train fraction %v outside (0, 1)", models.ErrConfiguration, trainFraction)
	}
	n := ds.Len()
	nTrain := int(math.Floor(trainFraction * float64(n)))
	nTest := n - nTrain
	if nTrain < 1 || nTest < 1 {
		return models.SplitResult{}, fmt.Errorf("%w: %d rows cannot be split with train fraction %v",
			models.ErrInsufficientSamples, n, trainFraction)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)

	var res models.SplitResult
	for k, idx := range perm {
		row := ds.Rows[idx]
		row.Bands = append([]float64(nil), row.Bands...)
		if k < nTest {
			res.Test = append(res.Test, row)
			res.TestFeatures = append(res.TestFeatures, append([]float64(nil), row.Bands...))
			res.TestTargets = append(res.TestTargets, row.Depth)
		} else {
			res.Train = append(res.Train, row)
			res.TrainFeatures = append(res.TrainFeatures, append([]float64(nil), row.Bands...))
			res.TrainTargets = append(res.TrainTargets, row.Depth)
		}
	}
	return res, nil
}
