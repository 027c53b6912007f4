package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/i474232898/airwatch/internal/common"
	"github.com/i474232898/airwatch/internal/logger"
)

const (
	evalHistoryLimit   = 200
	evalMinRecords     = 30
	evalMinFeatureRows = 20
	evalTestFraction   = 0.2
	evalSeed           = 42
	evalAllMinRecords  = 50
	evalAllMaxStations = 20
)

// Model names in evaluation reports.
const (
	ModelLinear  = "Linear Regression"
	ModelForest  = "Random Forest"
	ModelBoosted = "Gradient Boosting"
)

// ErrInsufficientHistory is returned when a station has too few readings to
// evaluate.
var ErrInsufficientHistory = errors.New("not enough history to evaluate")

// ModelScore is one model's hold-out performance.
type ModelScore struct {
	Model        string  `json:"model"`
	RMSE         float64 `json:"rmse"`
	MAE          float64 `json:"mae"`
	R2           float64 `json:"r2_score"`
	TrainSamples int     `json:"train_samples"`
	TestSamples  int     `json:"test_samples"`
}

// Evaluation compares candidate models for a station, best first.
type Evaluation struct {
	StationUID   int          `json:"station_uid"`
	TotalSamples int          `json:"total_samples"`
	Features     []string     `json:"features_used"`
	Comparison   []ModelScore `json:"comparison"`
	BestModel    string       `json:"best_model"`
}

type candidate struct {
	name string
	fit  func(X [][]float64, y []float64) (Regressor, error)
}

var candidates = []candidate{
	{ModelLinear, func(X [][]float64, y []float64) (Regressor, error) { return FitLinear(X, y) }},
	{ModelForest, func(X [][]float64, y []float64) (Regressor, error) { return FitForest(X, y, DefaultForestParams) }},
	{ModelBoosted, func(X [][]float64, y []float64) (Regressor, error) { return FitGBRT(X, y, DefaultGBRTParams) }},
}

// trainTestSplit shuffles row indices with a fixed seed and holds out
// ceil(n × fraction) rows for testing.
func trainTestSplit(n int, fraction float64, seed int64) (train, test []int) {
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	nTest := int(math.Ceil(float64(n) * fraction))
	return perm[nTest:], perm[:nTest]
}

func pick(X [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	xs := make([][]float64, len(idx))
	ys := make([]float64, len(idx))
	for i, j := range idx {
		xs[i] = X[j]
		ys[i] = y[j]
	}
	return xs, ys
}

// Evaluate trains every candidate model on the station's recent history and
// scores it on a deterministic hold-out split.
func (e *Engine) Evaluate(ctx context.Context, uid int) (Evaluation, error) {
	history, err := e.store.History(ctx, uid, evalHistoryLimit)
	if err != nil {
		return Evaluation{}, err
	}
	if len(history) < evalMinRecords {
		return Evaluation{}, fmt.Errorf("%w: station %d has %d readings, need %d",
			ErrInsufficientHistory, uid, len(history), evalMinRecords)
	}

	X, y := buildFeatures(history)
	if len(X) < evalMinFeatureRows {
		return Evaluation{}, fmt.Errorf("%w: station %d has %d feature rows, need %d",
			ErrInsufficientHistory, uid, len(X), evalMinFeatureRows)
	}

	trainIdx, testIdx := trainTestSplit(len(X), evalTestFraction, evalSeed)
	xTrain, yTrain := pick(X, y, trainIdx)
	xTest, yTest := pick(X, y, testIdx)

	scores := make([]ModelScore, 0, len(candidates))
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return Evaluation{}, err
		}
		m, err := c.fit(xTrain, yTrain)
		if err != nil {
			logger.Warnf("forecast: evaluate station %d: %s: %v", uid, c.name, err)
			continue
		}
		pred := predictAll(m, xTest)
		scores = append(scores, ModelScore{
			Model:        c.name,
			RMSE:         common.Round(RMSE(yTest, pred), 2),
			MAE:          common.Round(MAE(yTest, pred), 2),
			R2:           common.Round(R2(yTest, pred), 4),
			TrainSamples: len(xTrain),
			TestSamples:  len(xTest),
		})
	}
	if len(scores) == 0 {
		return Evaluation{}, fmt.Errorf("station %d: no model could be fitted", uid)
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].RMSE < scores[j].RMSE })

	return Evaluation{
		StationUID:   uid,
		TotalSamples: len(X),
		Features:     FeatureNames,
		Comparison:   scores,
		BestModel:    scores[0].Model,
	}, nil
}

// ModelSummary aggregates one model's scores across stations.
type ModelSummary struct {
	Model   string  `json:"model"`
	AvgRMSE float64 `json:"avg_rmse"`
	AvgMAE  float64 `json:"avg_mae"`
	AvgR2   float64 `json:"avg_r2"`
	StdRMSE float64 `json:"std_rmse"`
}

// EvaluationSummary is the network-wide model comparison.
type EvaluationSummary struct {
	EvaluatedStations int            `json:"evaluated_stations"`
	Summary           []ModelSummary `json:"summary"`
	BestModel         string         `json:"best_model"`
}

// EvaluateAll evaluates up to twenty of the given stations that hold at
// least fifty readings and averages the scores per model.
func (e *Engine) EvaluateAll(ctx context.Context, uids []int) (EvaluationSummary, error) {
	type acc struct{ rmse, mae, r2 []float64 }
	byModel := make(map[string]*acc)

	var out EvaluationSummary
	considered := 0
	for _, uid := range uids {
		if considered >= evalAllMaxStations {
			break
		}
		history, err := e.store.History(ctx, uid, evalAllMinRecords)
		if err != nil {
			return EvaluationSummary{}, err
		}
		if len(history) < evalAllMinRecords {
			continue
		}
		considered++

		ev, err := e.Evaluate(ctx, uid)
		if err != nil {
			logger.Debugf("forecast: evaluate-all skipped station %d: %v", uid, err)
			continue
		}
		out.EvaluatedStations++
		for _, s := range ev.Comparison {
			a, ok := byModel[s.Model]
			if !ok {
				a = &acc{}
				byModel[s.Model] = a
			}
			a.rmse = append(a.rmse, s.RMSE)
			a.mae = append(a.mae, s.MAE)
			a.r2 = append(a.r2, s.R2)
		}
	}

	for _, c := range candidates {
		a, ok := byModel[c.name]
		if !ok {
			continue
		}
		out.Summary = append(out.Summary, ModelSummary{
			Model:   c.name,
			AvgRMSE: common.Round(mean(a.rmse), 2),
			AvgMAE:  common.Round(mean(a.mae), 2),
			AvgR2:   common.Round(mean(a.r2), 4),
			StdRMSE: common.Round(populationStd(a.rmse), 2),
		})
	}
	sort.SliceStable(out.Summary, func(i, j int) bool { return out.Summary[i].AvgRMSE < out.Summary[j].AvgRMSE })

	out.BestModel = LabelUnavailable
	if len(out.Summary) > 0 {
		out.BestModel = out.Summary[0].Model
	}
	return out, nil
}

func populationStd(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.PopStdDev(values, nil)
}
