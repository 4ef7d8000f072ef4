package regression

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"

	"satbathy/internal/models"
	"satbathy/pkg/workers"
)

// kdTreeMaxFeatures is the feature count above which AlgorithmAuto searches
// exhaustively instead of building a tree.
const kdTreeMaxFeatures = 16

// KNN predicts the (optionally distance weighted) mean target of the k
// training rows closest to each query row in Euclidean distance.
type KNN struct {
	cfg KNNConfig

	train    featurePoints
	features int
	tree     *kdtree.Tree
}

func (m *KNN) Method() models.Method { return models.MethodKNN }

// Fit stores the training rows and, unless the search is exhaustive, indexes
// them in a k-d tree.
func (m *KNN) Fit(_ context.Context, x [][]float64, y []float64) error {
	p, err := checkTraining(x, y)
	if err != nil {
		return err
	}
	if m.cfg.Neighbors > len(x) {
		return fmt.Errorf("%w: knn needs %d neighbors but only %d training rows", models.ErrConfiguration,
			m.cfg.Neighbors, len(x))
	}

	m.train = make(featurePoints, len(x))
	for i, row := range x {
		m.train[i] = featurePoint{coords: append([]float64(nil), row...), target: y[i]}
	}
	m.features = p
	m.tree = nil
	if m.useTree() {
		// kdtree.New reorders its input, keep m.train in training order
		m.tree = kdtree.New(append(featurePoints(nil), m.train...), false)
	}
	return nil
}

func (m *KNN) useTree() bool {
	if len(m.train) <= m.cfg.LeafSize {
		return false
	}
	switch m.cfg.Algorithm {
	case AlgorithmKDTree, AlgorithmBallTree:
		return true
	case AlgorithmAuto:
		return m.features < kdTreeMaxFeatures
	}
	return false
}

// Predict answers every query row, in parallel when ctx carries a worker scope.
func (m *KNN) Predict(ctx context.Context, x [][]float64) ([]float64, error) {
	if m.train == nil {
		return nil, errNotFitted
	}
	if _, err := checkColumns(x, m.features); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	err := workers.ForEach(ctx, len(x), func(start, end int) error {
		for i := start; i < end; i++ {
			out[i] = m.weigh(m.neighbors(x[i]))
		}
		return nil
	})
	return out, err
}

type neighbor struct {
	dist   float64 // Euclidean, not squared
	target float64
}

func (m *KNN) neighbors(q []float64) []neighbor {
	k := m.cfg.Neighbors
	if m.tree == nil {
		return bruteNeighbors(m.train, q, k)
	}
	keeper := kdtree.NewNKeeper(k)
	m.tree.NearestSet(keeper, featurePoint{coords: q})
	found := make([]neighbor, 0, k)
	for _, cd := range keeper.Heap {
		// the keeper is seeded with an empty sentinel entry
		if cd.Comparable == nil {
			continue
		}
		found = append(found, neighbor{dist: math.Sqrt(cd.Dist), target: cd.Comparable.(featurePoint).target})
	}
	sort.Slice(found, func(a, b int) bool { return found[a].dist < found[b].dist })
	return found
}

// bruteNeighbors keeps the k closest rows in a sorted slice while scanning.
func bruteNeighbors(train featurePoints, q []float64, k int) []neighbor {
	found := make([]neighbor, 0, k+1)
	for _, p := range train {
		d := p.sqDist(q)
		if len(found) == k && d >= found[k-1].dist {
			continue
		}
		at := sort.Search(len(found), func(i int) bool { return found[i].dist > d })
		found = append(found, neighbor{})
		copy(found[at+1:], found[at:])
		found[at] = neighbor{dist: d, target: p.target}
		if len(found) > k {
			found = found[:k]
		}
	}
	for i := range found {
		found[i].dist = math.Sqrt(found[i].dist)
	}
	return found
}

func (m *KNN) weigh(found []neighbor) float64 {
	if m.cfg.Weights == WeightsUniform {
		var sum float64
		for _, n := range found {
			sum += n.target
		}
		return sum / float64(len(found))
	}

	// exact matches take all of the weight
	var exact, exactSum float64
	for _, n := range found {
		if n.dist == 0 {
			exact++
			exactSum += n.target
		}
	}
	if exact > 0 {
		return exactSum / exact
	}
	var num, den float64
	for _, n := range found {
		w := 1 / n.dist
		num += w * n.target
		den += w
	}
	return num / den
}

// featurePoint is a training row in feature space. It implements
// kdtree.Comparable.
type featurePoint struct {
	coords []float64
	target float64
}

func (p featurePoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(featurePoint)
	return p.coords[d] - q.coords[d]
}

func (p featurePoint) Dims() int { return len(p.coords) }

// Distance returns the squared Euclidean distance.
func (p featurePoint) Distance(c kdtree.Comparable) float64 {
	return p.sqDist(c.(featurePoint).coords)
}

func (p featurePoint) sqDist(q []float64) float64 {
	var sum float64
	for i, v := range p.coords {
		d := v - q[i]
		sum += d * d
	}
	return sum
}

// featurePoints satisfies kdtree.Interface.
type featurePoints []featurePoint

func (p featurePoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p featurePoints) Len() int                              { return len(p) }
func (p featurePoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

func (p featurePoints) Pivot(d kdtree.Dim) int {
	plane := featurePlane{featurePoints: p, Dim: d}
	return kdtree.Partition(plane, kdtree.MedianOfRandoms(plane, 100))
}

// featurePlane sorts featurePoints along one dimension.
type featurePlane struct {
	featurePoints
	kdtree.Dim
}

func (p featurePlane) Less(i, j int) bool {
	return p.featurePoints[i].coords[p.Dim] < p.featurePoints[j].coords[p.Dim]
}

func (p featurePlane) Slice(start, end int) kdtree.SortSlicer {
	return featurePlane{featurePoints: p.featurePoints[start:end], Dim: p.Dim}
}

func (p featurePlane) Swap(i, j int) {
	p.featurePoints[i], p.featurePoints[j] = p.featurePoints[j], p.featurePoints[i]
}
