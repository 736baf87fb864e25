// Package tree implements CART decision trees for classification and
// regression. The array-form Tree is also the building block of the random
// forests in sklearn/ensemble.
package tree

import (
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tabflow/pkg/errors"
)

// LeafFeature marks a leaf in Node.Feature.
const LeafFeature = -1

// Node is one node of a fitted tree. Children are indices into Tree.Nodes.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	// Value is the class distribution for classification, [mean] for regression.
	Value    []float64
	NSamples int
	Impurity float64
}

// IsLeaf reports whether n has no children.
func (n *Node) IsLeaf() bool { return n.Feature == LeafFeature }

// Tree is a fitted CART tree.
type Tree struct {
	Nodes []Node
	// NClasses is 0 for regression trees.
	NClasses int
	// Importances holds the total weighted impurity decrease per feature.
	Importances []float64
}

// Params are the hyperparameters shared by tree estimators.
type Params struct {
	Criterion       string
	MaxDepth        int // <= 0 means unlimited
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int // <= 0 means all features
	RandomState     uint64
}

// Option configures Params.
type Option func(*Params)

// WithCriterion sets the split criterion: "gini" or "entropy" for
// classification, "squared_error" for regression.
func WithCriterion(c string) Option { return func(p *Params) { p.Criterion = c } }

// WithMaxDepth limits the depth of the tree. Zero means unlimited.
func WithMaxDepth(d int) Option { return func(p *Params) { p.MaxDepth = d } }

// WithMinSamplesSplit sets the minimum number of samples required to split a node.
func WithMinSamplesSplit(n int) Option { return func(p *Params) { p.MinSamplesSplit = n } }

// WithMinSamplesLeaf sets the minimum number of samples in each leaf.
func WithMinSamplesLeaf(n int) Option { return func(p *Params) { p.MinSamplesLeaf = n } }

// WithMaxFeatures sets how many features are considered per split.
func WithMaxFeatures(n int) Option { return func(p *Params) { p.MaxFeatures = n } }

// WithRandomState seeds feature subsampling.
func WithRandomState(seed uint64) Option { return func(p *Params) { p.RandomState = seed } }

func defaultParams(criterion string) Params {
	return Params{Criterion: criterion, MinSamplesSplit: 2, MinSamplesLeaf: 1}
}

func (p Params) validate(classification bool) error {
	switch {
	case classification && p.Criterion != "gini" && p.Criterion != "entropy":
		return errors.NewValidationError("criterion", "must be gini or entropy", p.Criterion)
	case !classification && p.Criterion != "squared_error" && p.Criterion != "mse":
		return errors.NewValidationError("criterion", "must be squared_error", p.Criterion)
	case p.MinSamplesSplit < 2:
		return errors.NewValidationError("min_samples_split", "must be at least 2", p.MinSamplesSplit)
	case p.MinSamplesLeaf < 1:
		return errors.NewValidationError("min_samples_leaf", "must be at least 1", p.MinSamplesLeaf)
	}
	return nil
}

// NewRand returns the deterministic generator used for a given seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

type builder struct {
	X        *mat.Dense
	y        []float64
	nClasses int
	params   Params
	rng      *rand.Rand
	tree     *Tree
	nFeat    int
}

// Build grows a tree on the rows of X listed in indices (duplicates allowed,
// as produced by bootstrap sampling). For classification y holds class
// indices 0..nClasses-1; for regression nClasses is 0.
func Build(X *mat.Dense, y []float64, indices []int, nClasses int, params Params, rng *rand.Rand) (*Tree, error) {
	if err := params.validate(nClasses > 0); err != nil {
		return nil, err
	}
	if len(indices) == 0 {
		return nil, errors.NewModelError("tree.Build", "empty data", errors.ErrEmptyData)
	}
	_, c := X.Dims()
	b := &builder{
		X:        X,
		y:        y,
		nClasses: nClasses,
		params:   params,
		rng:      rng,
		nFeat:    c,
		tree:     &Tree{NClasses: nClasses, Importances: make([]float64, c)},
	}
	b.grow(slices.Clone(indices), 0)
	return b.tree, nil
}

func (b *builder) nodeValue(idx []int) ([]float64, float64) {
	if b.nClasses > 0 {
		counts := make([]float64, b.nClasses)
		for _, i := range idx {
			counts[int(b.y[i])]++
		}
		imp := b.classImpurity(counts, float64(len(idx)))
		for k := range counts {
			counts[k] /= float64(len(idx))
		}
		return counts, imp
	}
	var sum, sumSq float64
	for _, i := range idx {
		sum += b.y[i]
		sumSq += b.y[i] * b.y[i]
	}
	n := float64(len(idx))
	mean := sum / n
	return []float64{mean}, math.Max(sumSq/n-mean*mean, 0)
}

func (b *builder) classImpurity(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	if b.params.Criterion == "entropy" {
		var h float64
		for _, c := range counts {
			if c > 0 {
				p := c / n
				h -= p * math.Log2(p)
			}
		}
		return h
	}
	g := 1.0
	for _, c := range counts {
		p := c / n
		g -= p * p
	}
	return g
}

func (b *builder) grow(idx []int, depth int) int {
	value, imp := b.nodeValue(idx)
	id := len(b.tree.Nodes)
	b.tree.Nodes = append(b.tree.Nodes, Node{
		Feature:  LeafFeature,
		Value:    value,
		NSamples: len(idx),
		Impurity: imp,
	})

	if imp <= 1e-12 ||
		len(idx) < b.params.MinSamplesSplit ||
		len(idx) < 2*b.params.MinSamplesLeaf ||
		(b.params.MaxDepth > 0 && depth >= b.params.MaxDepth) {
		return id
	}

	feature, threshold, gain, ok := b.bestSplit(idx, imp)
	if !ok {
		return id
	}

	var left, right []int
	for _, i := range idx {
		if b.X.At(i, feature) <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	b.tree.Importances[feature] += gain

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	node := &b.tree.Nodes[id]
	node.Feature = feature
	node.Threshold = threshold
	node.Left = l
	node.Right = r
	return id
}

func (b *builder) candidateFeatures() []int {
	k := b.params.MaxFeatures
	if k <= 0 || k >= b.nFeat || b.rng == nil {
		feats := make([]int, b.nFeat)
		for j := range feats {
			feats[j] = j
		}
		return feats
	}
	return b.rng.Perm(b.nFeat)[:k]
}

// bestSplit returns the split with the largest weighted impurity decrease
// n*imp - nL*impL - nR*impR. Ties keep the earliest candidate.
func (b *builder) bestSplit(idx []int, parentImp float64) (feature int, threshold, gain float64, ok bool) {
	n := len(idx)
	minLeaf := b.params.MinSamplesLeaf
	sorted := make([]int, n)
	bestGain := 1e-12

	for _, f := range b.candidateFeatures() {
		copy(sorted, idx)
		slices.SortStableFunc(sorted, func(a, c int) int {
			va, vc := b.X.At(a, f), b.X.At(c, f)
			switch {
			case va < vc:
				return -1
			case va > vc:
				return 1
			}
			return 0
		})

		sweep := b.newSweep(sorted)
		for pos := 1; pos < n; pos++ {
			sweep.moveLeft(sorted[pos-1])
			if pos < minLeaf || n-pos < minLeaf {
				continue
			}
			lo, hi := b.X.At(sorted[pos-1], f), b.X.At(sorted[pos], f)
			if hi <= lo {
				continue
			}
			impL, impR := sweep.impurities()
			g := float64(n)*parentImp - float64(pos)*impL - float64(n-pos)*impR
			if g > bestGain {
				bestGain = g
				feature = f
				threshold = lo + (hi-lo)/2
				ok = true
			}
		}
	}
	return feature, threshold, bestGain, ok
}

type sweep struct {
	b             *builder
	leftCounts    []float64
	rightCounts   []float64
	nLeft, nRight float64
	sumL, sumSqL  float64
	sumR, sumSqR  float64
}

func (b *builder) newSweep(idx []int) *sweep {
	s := &sweep{b: b, nRight: float64(len(idx))}
	if b.nClasses > 0 {
		s.leftCounts = make([]float64, b.nClasses)
		s.rightCounts = make([]float64, b.nClasses)
		for _, i := range idx {
			s.rightCounts[int(b.y[i])]++
		}
		return s
	}
	for _, i := range idx {
		s.sumR += b.y[i]
		s.sumSqR += b.y[i] * b.y[i]
	}
	return s
}

func (s *sweep) moveLeft(i int) {
	s.nLeft++
	s.nRight--
	if s.b.nClasses > 0 {
		k := int(s.b.y[i])
		s.leftCounts[k]++
		s.rightCounts[k]--
		return
	}
	v := s.b.y[i]
	s.sumL += v
	s.sumSqL += v * v
	s.sumR -= v
	s.sumSqR -= v * v
}

func (s *sweep) impurities() (float64, float64) {
	if s.b.nClasses > 0 {
		return s.b.classImpurity(s.leftCounts, s.nLeft), s.b.classImpurity(s.rightCounts, s.nRight)
	}
	variance := func(sum, sumSq, n float64) float64 {
		m := sum / n
		return math.Max(sumSq/n-m*m, 0)
	}
	return variance(s.sumL, s.sumSqL, s.nLeft), variance(s.sumR, s.sumSqR, s.nRight)
}

// Leaf returns the leaf reached by row.
func (t *Tree) Leaf(row []float64) *Node {
	n := &t.Nodes[0]
	for !n.IsLeaf() {
		if row[n.Feature] <= n.Threshold {
			n = &t.Nodes[n.Left]
		} else {
			n = &t.Nodes[n.Right]
		}
	}
	return n
}

// Depth returns the depth of the tree (a single leaf has depth 0).
func (t *Tree) Depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		n := &t.Nodes[i]
		if n.IsLeaf() {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	if len(t.Nodes) == 0 {
		return 0
	}
	return walk(0)
}

// NLeaves returns the number of leaves.
func (t *Tree) NLeaves() int {
	count := 0
	for i := range t.Nodes {
		if t.Nodes[i].IsLeaf() {
			count++
		}
	}
	return count
}

// NormalizedImportances returns the impurity-based feature importances
// scaled to sum to 1 (all zeros for a single-leaf tree).
func (t *Tree) NormalizedImportances() []float64 {
	out := slices.Clone(t.Importances)
	var total float64
	for _, v := range out {
		total += v
	}
	for j := range out {
		out[j] = errors.SafeDivide(out[j], total)
	}
	return out
}

// AsDense copies any matrix into a *mat.Dense without copying dense input.
func AsDense(X mat.Matrix) *mat.Dense {
	if d, ok := X.(*mat.Dense); ok {
		return d
	}
	return mat.DenseCopyOf(X)
}
