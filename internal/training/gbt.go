package training

import (
	"math"
	"sort"
)

// BoostedModel is the serialized state of a gradient-boosted-stump
// regressor: a base prediction plus additive depth-1 trees. Fitting is a
// plain least-squares residual descent with shrinkage, fully deterministic.
type BoostedModel struct {
	Base      float64
	Shrinkage float64
	Stumps    []Stump
}

// Stump is one depth-1 regression tree: rows with feature value <= Threshold
// contribute Left, the rest Right.
type Stump struct {
	Feature   int
	Threshold float64
	Left      float64
	Right     float64
}

// Predict evaluates the additive model on one feature vector.
func (m *BoostedModel) Predict(vec []float64) float64 {
	out := m.Base
	for i := range m.Stumps {
		s := &m.Stumps[i]
		if vec[s.Feature] <= s.Threshold {
			out += m.Shrinkage * s.Left
		} else {
			out += m.Shrinkage * s.Right
		}
	}
	return out
}

// fitBoosted fits rounds stumps to (x, y) and returns the model plus the
// per-feature SSE gain totals used for importances. x is row-major.
func fitBoosted(x [][]float64, y []float64, rounds int, shrinkage float64) (*BoostedModel, []float64) {
	n := len(x)
	if n == 0 {
		return &BoostedModel{Shrinkage: shrinkage}, nil
	}
	nFeatures := len(x[0])

	var base float64
	for _, v := range y {
		base += v
	}
	base /= float64(n)

	m := &BoostedModel{Base: base, Shrinkage: shrinkage}
	gains := make([]float64, nFeatures)

	// Per-feature sorted row orders, computed once. Ties break by row
	// index so the scan order is deterministic.
	orders := make([][]int, nFeatures)
	for j := 0; j < nFeatures; j++ {
		order := make([]int, n)
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return x[order[a]][j] < x[order[b]][j]
		})
		orders[j] = order
	}

	residual := make([]float64, n)
	for i := range residual {
		residual[i] = y[i] - base
	}

	for round := 0; round < rounds; round++ {
		best, ok := bestSplit(x, residual, orders)
		if !ok {
			break
		}
		m.Stumps = append(m.Stumps, best.stump)
		gains[best.stump.Feature] += best.gain

		for i := 0; i < n; i++ {
			if x[i][best.stump.Feature] <= best.stump.Threshold {
				residual[i] -= shrinkage * best.stump.Left
			} else {
				residual[i] -= shrinkage * best.stump.Right
			}
		}
	}
	return m, gains
}

type split struct {
	stump Stump
	gain  float64
}

// bestSplit scans every feature for the threshold minimizing residual SSE.
// Returns ok=false when no split improves on the current residuals (all
// feature values constant, or residuals already flat).
func bestSplit(x [][]float64, residual []float64, orders [][]int) (split, bool) {
	n := len(residual)
	var total float64
	for _, r := range residual {
		total += r
	}

	best := split{}
	found := false

	for j := range orders {
		order := orders[j]
		var leftSum float64
		for k := 0; k < n-1; k++ {
			i := order[k]
			leftSum += residual[i]

			// Only cut between distinct feature values.
			cur, next := x[i][j], x[order[k+1]][j]
			if cur == next {
				continue
			}

			leftN := float64(k + 1)
			rightN := float64(n - k - 1)
			rightSum := total - leftSum
			// SSE reduction of splitting vs. not splitting.
			gain := leftSum*leftSum/leftN + rightSum*rightSum/rightN - total*total/float64(n)
			if gain > best.gain+1e-12 || (!found && gain > 1e-12) {
				best = split{
					stump: Stump{
						Feature:   j,
						Threshold: (cur + next) / 2,
						Left:      leftSum / leftN,
						Right:     rightSum / rightN,
					},
					gain: gain,
				}
				found = true
			}
		}
	}
	if !found || math.IsNaN(best.gain) {
		return split{}, false
	}
	return best, true
}
