package forecast

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ridge keeps the normal equations solvable when a feature is constant.
const ridge = 1e-8

// Linear is an ordinary least squares model with intercept.
type Linear struct {
	Intercept float64   `json:"intercept"`
	Coef      []float64 `json:"coef"`
}

var errSingular = errors.New("forecast: singular system")

// FitLinear solves the centred normal equations (XᵀX + λI)β = Xᵀy.
func FitLinear(X [][]float64, y []float64) (*Linear, error) {
	n := len(X)
	if n == 0 || n != len(y) {
		return nil, errNoSamples
	}
	p := len(X[0])
	yMean := stat.Mean(y, nil)
	if p == 0 {
		return &Linear{Intercept: yMean}, nil
	}

	xMean := make([]float64, p)
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		for i := range X {
			col[i] = X[i][j]
		}
		xMean[j] = stat.Mean(col, nil)
	}

	xc := mat.NewDense(n, p, nil)
	yc := mat.NewVecDense(n, nil)
	for i := range X {
		for j := 0; j < p; j++ {
			xc.Set(i, j, X[i][j]-xMean[j])
		}
		yc.SetVec(i, y[i]-yMean)
	}

	var xtx mat.Dense
	xtx.Mul(xc.T(), xc)
	for j := 0; j < p; j++ {
		xtx.Set(j, j, xtx.At(j, j)+ridge)
	}
	var xty mat.VecDense
	xty.MulVec(xc.T(), yc)

	var beta mat.VecDense
	if err := beta.SolveVec(&xtx, &xty); err != nil {
		// A finite condition number still yields a usable solution.
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return nil, errSingular
		}
	}

	coef := make([]float64, p)
	intercept := yMean
	for j := range coef {
		coef[j] = beta.AtVec(j)
		intercept -= coef[j] * xMean[j]
	}
	return &Linear{Intercept: intercept, Coef: coef}, nil
}

func (l *Linear) Predict(x []float64) float64 {
	out := l.Intercept
	for j, c := range l.Coef {
		out += c * x[j]
	}
	return out
}
