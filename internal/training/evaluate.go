package training

import (
	"math"
	"sort"

	"github.com/playsignal/pltv/internal/domain/model"
)

// Metrics summarizes a trained model's error, ranking, and concentration
// quality.
type Metrics struct {
	MAE  float64
	RMSE float64
	R2   float64

	// TopDecileLift is top-10% mean actual over the overall mean actual;
	// TopDecileCapture is top-10% actual revenue over total actual revenue.
	TopDecileLift    float64
	TopDecileCapture float64

	TrainSize   int
	HoldoutSize int
}

// DecileRow is one line of the decile table (decile 0 = highest predicted).
type DecileRow struct {
	Decile       int
	Count        int
	AvgPredicted float64
	AvgActual    float64
}

// CalibrationBucket compares predicted vs actual within a fixed value band.
type CalibrationBucket struct {
	Label        string
	Count        int
	AvgPredicted float64
	AvgActual    float64
}

// Importance is the normalized SSE gain attributed to one feature.
type Importance struct {
	FeatureID string
	Gain      float64
}

func errorMetrics(pred, actual []float64) (mae, rmse, r2 float64) {
	n := len(actual)
	if n == 0 {
		return 0, 0, 0
	}
	var mean float64
	for _, a := range actual {
		mean += a
	}
	mean /= float64(n)

	var absSum, sqSum, varSum float64
	for i := range actual {
		d := pred[i] - actual[i]
		absSum += math.Abs(d)
		sqSum += d * d
		dv := actual[i] - mean
		varSum += dv * dv
	}
	mae = absSum / float64(n)
	rmse = math.Sqrt(sqSum / float64(n))
	if varSum > 0 {
		r2 = 1 - sqSum/varSum
	}
	return mae, rmse, r2
}

// rankScored orders scored users by predicted score descending, user id
// ascending, and assigns deciles and segments. Ordering is part of the
// contract: identical inputs must produce identical output order.
func rankScored(scored []model.ScoredUser) {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Predicted != scored[j].Predicted {
			return scored[i].Predicted > scored[j].Predicted
		}
		return scored[i].UserID < scored[j].UserID
	})
	n := len(scored)
	for i := range scored {
		scored[i].Decile = i * 10 / n
		scored[i].Segment = model.SegmentForDecile(scored[i].Decile)
	}
}

// decileTable aggregates ranked scored users per decile.
func decileTable(scored []model.ScoredUser) []DecileRow {
	if len(scored) == 0 {
		return nil
	}
	rows := make([]DecileRow, 10)
	for d := range rows {
		rows[d].Decile = d
	}
	for i := range scored {
		d := scored[i].Decile
		rows[d].Count++
		rows[d].AvgPredicted += scored[i].Predicted
		rows[d].AvgActual += scored[i].Actual
	}
	for d := range rows {
		if rows[d].Count > 0 {
			rows[d].AvgPredicted /= float64(rows[d].Count)
			rows[d].AvgActual /= float64(rows[d].Count)
		}
	}
	return rows
}

// topDecile computes lift and capture from ranked scored users.
func topDecile(scored []model.ScoredUser) (lift, capture float64) {
	n := len(scored)
	if n == 0 {
		return 0, 0
	}
	var topSum, totalSum float64
	var topN int
	for i := range scored {
		totalSum += scored[i].Actual
		if scored[i].Decile == 0 {
			topSum += scored[i].Actual
			topN++
		}
	}
	if topN > 0 && totalSum != 0 {
		overallMean := totalSum / float64(n)
		if overallMean != 0 {
			lift = (topSum / float64(topN)) / overallMean
		}
		capture = topSum / totalSum
	}
	return lift, capture
}

// calibrationBands are the fixed predicted-value buckets of the
// calibration report.
var calibrationBands = []struct {
	label string
	lo    float64
	hi    float64
}{
	{"0-1", 0, 1},
	{"1-5", 1, 5},
	{"5-20", 5, 20},
	{"20-100", 20, 100},
	{"100+", 100, math.Inf(1)},
}

func calibration(scored []model.ScoredUser) []CalibrationBucket {
	buckets := make([]CalibrationBucket, len(calibrationBands))
	for b := range calibrationBands {
		buckets[b].Label = calibrationBands[b].label
	}
	for i := range scored {
		p := scored[i].Predicted
		for b := range calibrationBands {
			if p >= calibrationBands[b].lo && p < calibrationBands[b].hi {
				buckets[b].Count++
				buckets[b].AvgPredicted += p
				buckets[b].AvgActual += scored[i].Actual
				break
			}
		}
	}
	for b := range buckets {
		if buckets[b].Count > 0 {
			buckets[b].AvgPredicted /= float64(buckets[b].Count)
			buckets[b].AvgActual /= float64(buckets[b].Count)
		}
	}
	return buckets
}
