package forecast

import (
	"errors"
)

// GBRTParams configures gradient boosting with squared loss.
type GBRTParams struct {
	Estimators   int
	MaxDepth     int
	LearningRate float64
}

// DefaultGBRTParams matches the forecast model: 50 depth-3 trees at 0.1.
var DefaultGBRTParams = GBRTParams{Estimators: 50, MaxDepth: 3, LearningRate: 0.1}

// GBRT is a fitted gradient-boosted regression tree ensemble. It is
// serialised as JSON for the on-disk model cache.
type GBRT struct {
	Init         float64 `json:"init"`
	LearningRate float64 `json:"learning_rate"`
	Trees        []Tree  `json:"trees"`
}

var errNoSamples = errors.New("forecast: no training samples")

// FitGBRT trains on X, y. Each stage fits a tree to the current residuals.
func FitGBRT(X [][]float64, y []float64, p GBRTParams) (*GBRT, error) {
	if len(X) == 0 || len(X) != len(y) {
		return nil, errNoSamples
	}

	var init float64
	for _, v := range y {
		init += v
	}
	init /= float64(len(y))

	m := &GBRT{Init: init, LearningRate: p.LearningRate, Trees: make([]Tree, 0, p.Estimators)}

	pred := make([]float64, len(y))
	for i := range pred {
		pred[i] = init
	}
	residual := make([]float64, len(y))
	idx := make([]int, len(y))
	for i := range idx {
		idx[i] = i
	}

	for s := 0; s < p.Estimators; s++ {
		for i := range y {
			residual[i] = y[i] - pred[i]
		}
		tree := fitTree(X, residual, idx, treeParams{maxDepth: p.MaxDepth, minSamplesLeaf: 1})
		m.Trees = append(m.Trees, tree)
		for i := range pred {
			pred[i] += p.LearningRate * tree.Predict(X[i])
		}
	}
	return m, nil
}

func (m *GBRT) Predict(x []float64) float64 {
	out := m.Init
	for i := range m.Trees {
		out += m.LearningRate * m.Trees[i].Predict(x)
	}
	return out
}
