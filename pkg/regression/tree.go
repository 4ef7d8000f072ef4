package regression

import (
	"math/rand"
	"sort"

	"satbathy/pkg/preprocess"
)

// treeNode is a node of a fully grown CART regression tree. Rows with
// x[feature] <= threshold go left.
type treeNode struct {
	leaf      bool
	value     float64
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
}

func (n *treeNode) predict(row []float64) float64 {
	for !n.leaf {
		if row[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.value
}

// treeBuilder grows one tree. Splits are taken until a node is pure or no
// feature separates its rows.
type treeBuilder struct {
	x         [][]float64
	y         []float64
	criterion string
	rng       *rand.Rand
	features  []int
}

func newTreeBuilder(x [][]float64, y []float64, criterion string, rng *rand.Rand) *treeBuilder {
	features := make([]int, len(x[0]))
	for i := range features {
		features[i] = i
	}
	return &treeBuilder{x: x, y: y, criterion: criterion, rng: rng, features: features}
}

type split struct {
	feature   int
	threshold float64
	score     float64
	pos       int
	order     []int
}

func (b *treeBuilder) build(idx []int) *treeNode {
	if len(idx) < 2 || b.pure(idx) {
		return &treeNode{leaf: true, value: b.leafValue(idx)}
	}

	// the visiting order only decides between equally good splits
	b.rng.Shuffle(len(b.features), func(i, j int) {
		b.features[i], b.features[j] = b.features[j], b.features[i]
	})

	var best *split
	for _, f := range b.features {
		order := append([]int(nil), idx...)
		sort.SliceStable(order, func(i, j int) bool { return b.x[order[i]][f] < b.x[order[j]][f] })
		if s := b.bestSplit(f, order); s != nil && (best == nil || s.score > best.score) {
			best = s
		}
	}
	if best == nil {
		return &treeNode{leaf: true, value: b.leafValue(idx)}
	}

	lo := b.x[best.order[best.pos-1]][best.feature]
	hi := b.x[best.order[best.pos]][best.feature]
	threshold := lo + (hi-lo)/2
	if threshold >= hi {
		threshold = lo
	}
	return &treeNode{
		feature:   best.feature,
		threshold: threshold,
		left:      b.build(best.order[:best.pos]),
		right:     b.build(best.order[best.pos:]),
	}
}

func (b *treeBuilder) pure(idx []int) bool {
	first := b.y[idx[0]]
	for _, i := range idx[1:] {
		if b.y[i] != first {
			return false
		}
	}
	return true
}

func (b *treeBuilder) leafValue(idx []int) float64 {
	if b.criterion == CriterionAbsoluteError {
		vals := make([]float64, len(idx))
		for k, i := range idx {
			vals[k] = b.y[i]
		}
		return preprocess.SortedMedian(vals)
	}
	var sum float64
	for _, i := range idx {
		sum += b.y[i]
	}
	return sum / float64(len(idx))
}

// bestSplit scans the rows of order, sorted by feature f, and returns the
// best cut between two distinct feature values, or nil if there is none.
// Higher scores are better.
func (b *treeBuilder) bestSplit(f int, order []int) *split {
	if b.criterion == CriterionAbsoluteError {
		return b.bestAbsoluteSplit(f, order)
	}

	n := len(order)
	var total float64
	for _, i := range order {
		total += b.y[i]
	}

	var best *split
	var left float64
	for pos := 1; pos < n; pos++ {
		left += b.y[order[pos-1]]
		if b.x[order[pos-1]][f] >= b.x[order[pos]][f] {
			continue
		}
		nl, nr := float64(pos), float64(n-pos)
		right := total - left
		var score float64
		if b.criterion == CriterionFriedmanMSE {
			diff := left/nl - right/nr
			score = nl * nr / (nl + nr) * diff * diff
		} else {
			// maximising this proxy minimises the summed squared error
			score = left*left/nl + right*right/nr
		}
		if best == nil || score > best.score {
			best = &split{feature: f, score: score, pos: pos, order: order}
		}
	}
	return best
}

func (b *treeBuilder) bestAbsoluteSplit(f int, order []int) *split {
	n := len(order)
	uniq := make([]float64, n)
	for k, i := range order {
		uniq[k] = b.y[i]
	}
	sort.Float64s(uniq)
	uniq = compact(uniq)
	rank := func(v float64) int { return sort.SearchFloat64s(uniq, v) }

	left, right := newRankTree(uniq), newRankTree(uniq)
	for _, i := range order {
		right.add(rank(b.y[i]), 1)
	}

	var best *split
	for pos := 1; pos < n; pos++ {
		r := rank(b.y[order[pos-1]])
		left.add(r, 1)
		right.add(r, -1)
		if b.x[order[pos-1]][f] >= b.x[order[pos]][f] {
			continue
		}
		score := -(left.absDeviation() + right.absDeviation())
		if best == nil || score > best.score {
			best = &split{feature: f, score: score, pos: pos, order: order}
		}
	}
	return best
}

// rankTree is a Fenwick tree over the ranks of a sorted set of values,
// tracking a multiset by count and sum.
type rankTree struct {
	values []float64
	count  []int
	sum    []float64
	n      int
	total  float64
}

func newRankTree(values []float64) *rankTree {
	return &rankTree{
		values: values,
		count:  make([]int, len(values)+1),
		sum:    make([]float64, len(values)+1),
	}
}

func (t *rankTree) add(rank, delta int) {
	v := t.values[rank] * float64(delta)
	t.n += delta
	t.total += v
	for i := rank + 1; i < len(t.count); i += i & -i {
		t.count[i] += delta
		t.sum[i] += v
	}
}

// prefix returns count and sum of the elements with rank <= r.
func (t *rankTree) prefix(r int) (int, float64) {
	var c int
	var s float64
	for i := r + 1; i > 0; i -= i & -i {
		c += t.count[i]
		s += t.sum[i]
	}
	return c, s
}

// kth returns the rank of the k-th smallest element, k starting at 1.
func (t *rankTree) kth(k int) int {
	pos := 0
	step := 1
	for step*2 < len(t.count) {
		step *= 2
	}
	for ; step > 0; step /= 2 {
		if next := pos + step; next < len(t.count) && t.count[next] < k {
			pos = next
			k -= t.count[next]
		}
	}
	return pos
}

// absDeviation is the summed absolute deviation from the median.
func (t *rankTree) absDeviation() float64 {
	if t.n == 0 {
		return 0
	}
	r := t.kth((t.n + 1) / 2)
	m := t.values[r]
	c, s := t.prefix(r)
	return m*float64(c) - s + (t.total - s) - m*float64(t.n-c)
}

func compact(sorted []float64) []float64 {
	if len(sorted) == 0 {
		return sorted
	}
	out := sorted[:1]
	for _, v := range sorted[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

