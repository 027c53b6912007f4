package forecast

import (
	"math"
	"sort"
)

// Regressor predicts a target from a feature vector.
type Regressor interface {
	Predict(x []float64) float64
}

// Node is one node of a flattened regression tree. A node with Left == 0 is
// a leaf; the root is always index 0 so no child can point at it.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
}

// Tree is a binary regression tree splitting on x[Feature] <= Threshold.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) Predict(x []float64) float64 {
	if len(t.Nodes) == 0 {
		return 0
	}
	i := 0
	for {
		n := t.Nodes[i]
		if n.Left == 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

type treeParams struct {
	maxDepth       int
	minSamplesLeaf int
}

// fitTree grows a least-squares tree over the rows in idx.
func fitTree(X [][]float64, y []float64, idx []int, p treeParams) Tree {
	if p.minSamplesLeaf < 1 {
		p.minSamplesLeaf = 1
	}
	b := treeBuilder{X: X, y: y, p: p}
	b.grow(append([]int(nil), idx...), 0)
	return Tree{Nodes: b.nodes}
}

type treeBuilder struct {
	X     [][]float64
	y     []float64
	p     treeParams
	nodes []Node
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	self := len(b.nodes)
	b.nodes = append(b.nodes, Node{Value: b.mean(idx)})

	if depth >= b.p.maxDepth || len(idx) < 2*b.p.minSamplesLeaf {
		return self
	}

	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		return self
	}

	var left, right []int
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[self].Feature = feature
	b.nodes[self].Threshold = threshold
	b.nodes[self].Left = l
	b.nodes[self].Right = r
	return self
}

func (b *treeBuilder) mean(idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	var s float64
	for _, i := range idx {
		s += b.y[i]
	}
	return s / float64(len(idx))
}

// bestSplit maximises sumL²/nL + sumR²/nR, which minimises the summed
// squared error of the two children.
func (b *treeBuilder) bestSplit(idx []int) (int, float64, bool) {
	n := len(idx)
	var total float64
	for _, i := range idx {
		total += b.y[i]
	}
	parentScore := total * total / float64(n)

	bestScore := parentScore + 1e-9*math.Max(1, math.Abs(parentScore))
	bestFeature, bestThreshold, found := 0, 0.0, false

	sorted := make([]int, n)
	nFeatures := len(b.X[idx[0]])
	for f := 0; f < nFeatures; f++ {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, c int) bool { return b.X[sorted[a]][f] < b.X[sorted[c]][f] })

		var sumLeft float64
		for k := 0; k < n-1; k++ {
			sumLeft += b.y[sorted[k]]
			nLeft := k + 1
			nRight := n - nLeft
			if nLeft < b.p.minSamplesLeaf || nRight < b.p.minSamplesLeaf {
				continue
			}
			lo, hi := b.X[sorted[k]][f], b.X[sorted[k+1]][f]
			if lo == hi {
				continue
			}
			sumRight := total - sumLeft
			score := sumLeft*sumLeft/float64(nLeft) + sumRight*sumRight/float64(nRight)
			if score > bestScore {
				bestScore = score
				bestFeature = f
				bestThreshold = lo + (hi-lo)/2
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}
