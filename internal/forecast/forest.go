package forecast

import (
	"math/rand"
)

// ForestParams configures a bagged regression forest.
type ForestParams struct {
	Trees    int
	MaxDepth int
	Seed     int64
}

var DefaultForestParams = ForestParams{Trees: 50, MaxDepth: 5, Seed: 42}

// Forest averages trees fitted on bootstrap samples.
type Forest struct {
	Trees []Tree `json:"trees"`
}

func FitForest(X [][]float64, y []float64, p ForestParams) (*Forest, error) {
	if len(X) == 0 || len(X) != len(y) {
		return nil, errNoSamples
	}
	rng := rand.New(rand.NewSource(p.Seed))
	f := &Forest{Trees: make([]Tree, 0, p.Trees)}
	sample := make([]int, len(y))
	for t := 0; t < p.Trees; t++ {
		for i := range sample {
			sample[i] = rng.Intn(len(y))
		}
		f.Trees = append(f.Trees, fitTree(X, y, sample, treeParams{maxDepth: p.MaxDepth, minSamplesLeaf: 1}))
	}
	return f, nil
}

func (f *Forest) Predict(x []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	var s float64
	for i := range f.Trees {
		s += f.Trees[i].Predict(x)
	}
	return s / float64(len(f.Trees))
}
