package regression

import (
	"context"
	"math/rand"

	"github.com/rs/zerolog/log"

	"satbathy/internal/models"
	"satbathy/pkg/workers"
)

// RandomForest averages fully grown CART regression trees, each trained on a
// bootstrap sample of the rows when Bootstrap is set.
//
// Every tree draws its randomness from its own seed. The seeds are taken in
// order from a source seeded with RandomState before any tree is grown, so a
// forest is reproducible whatever the number of workers.
type RandomForest struct {
	cfg RFConfig

	trees    []*treeNode
	features int
}

func (m *RandomForest) Method() models.Method { return models.MethodRF }

func (m *RandomForest) Fit(ctx context.Context, x [][]float64, y []float64) error {
	p, err := checkTraining(x, y)
	if err != nil {
		return err
	}
	criterion, err := canonicalCriterion(m.cfg.Criterion)
	if err != nil {
		return err
	}

	seeder := rand.New(rand.NewSource(m.cfg.RandomState))
	seeds := make([]int64, m.cfg.Trees)
	for i := range seeds {
		seeds[i] = seeder.Int63()
	}

	n := len(x)
	trees, err := workers.Map(ctx, m.cfg.Trees, func(t int) (*treeNode, error) {
		rng := rand.New(rand.NewSource(seeds[t]))
		idx := make([]int, n)
		for i := range idx {
			if m.cfg.Bootstrap {
				idx[i] = rng.Intn(n)
			} else {
				idx[i] = i
			}
		}
		return newTreeBuilder(x, y, criterion, rng).build(idx), nil
	})
	if err != nil {
		return err
	}

	m.trees = trees
	m.features = p
	log.Debug().Int("trees", len(trees)).Str("criterion", criterion).Msg("random forest fitted")
	return nil
}

func (m *RandomForest) Predict(ctx context.Context, x [][]float64) ([]float64, error) {
	if m.trees == nil {
		return nil, errNotFitted
	}
	if _, err := checkColumns(x, m.features); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	err := workers.ForEach(ctx, len(x), func(start, end int) error {
		for i := start; i < end; i++ {
			var sum float64
			for _, t := range m.trees {
				sum += t.predict(x[i])
			}
			out[i] = sum / float64(len(m.trees))
		}
		return nil
	})
	return out, err
}
