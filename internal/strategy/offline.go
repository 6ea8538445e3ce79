package strategy

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/playsignal/pltv/internal/domain/model"
)

// Histogram bounds for label values recorded in cents. Values are offset by
// one so zero-revenue users are recordable.
const (
	histLowest  = 1
	histHighest = 100_000_000 // $1M in cents
	histSigFigs = 3
	whaleQ      = 90.0
)

// SeedQuality is one strategy's offline seed-quality report: how well its
// top-K works as a lookalike seed before any budget is spent on it.
type SeedQuality struct {
	Strategy        string
	K               int
	WhaleThreshold  float64 // 90th percentile of the true label
	PrecisionAtK    float64 // share of the selection at or above the whale threshold
	Spearman        float64 // rank correlation between score and true label
	RevenueCaptured float64
}

// OfflineAnalysis reports seed quality for every strategy. K defaults to
// 10% of the population when kspec is the zero value.
func (c *Comparator) OfflineAnalysis(ctx context.Context, rows []model.FeatureRow, defs []Def, kspec KSpec) ([]SeedQuality, error) {
	if len(defs) == 0 {
		return nil, ErrNoStrategies
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows", ErrInvalidComparison)
	}
	if kspec == (KSpec{}) {
		kspec = KSpec{Percent: 10}
	}
	k, err := kspec.resolve(len(rows))
	if err != nil {
		return nil, err
	}

	labels := make([]float64, len(rows))
	byUser := make(map[string]float64, len(rows))
	var total float64
	hist := hdrhistogram.New(histLowest, histHighest, histSigFigs)
	for i := range rows {
		v, ok := rows[i].Label(c.target)
		if !ok {
			return nil, fmt.Errorf("%w: unknown target %q", ErrInvalidComparison, c.target)
		}
		labels[i] = v
		byUser[rows[i].UserID] = v
		total += v
		cents := int64(math.Round(math.Max(v, 0) * 100))
		if cents > histHighest-1 {
			cents = histHighest - 1
		}
		_ = hist.RecordValue(cents + 1)
	}
	whale := float64(hist.ValueAtQuantile(whaleQ)-1) / 100

	out := make([]SeedQuality, 0, len(defs))
	for _, def := range defs {
		r := rankByScore(rows, def)
		sel := r.ids[:k]

		var whales int
		var captured float64
		for _, id := range sel {
			if byUser[id] >= whale && byUser[id] > 0 {
				whales++
			}
			captured += byUser[id]
		}
		if total != 0 {
			captured /= total
		}

		scores := make([]float64, len(rows))
		for i := range rows {
			scores[i] = def.Score(&rows[i])
		}

		out = append(out, SeedQuality{
			Strategy:        def.Name,
			K:               k,
			WhaleThreshold:  whale,
			PrecisionAtK:    float64(whales) / float64(k),
			Spearman:        spearman(scores, labels),
			RevenueCaptured: captured,
		})
	}
	return out, nil
}

// spearman is the rank correlation of two equal-length series, with average
// ranks over ties.
func spearman(a, b []float64) float64 {
	ra := averageRanks(a)
	rb := averageRanks(b)

	n := float64(len(a))
	if n < 2 {
		return 0
	}
	var meanA, meanB float64
	for i := range ra {
		meanA += ra[i]
		meanB += rb[i]
	}
	meanA /= n
	meanB /= n

	var cov, varA, varB float64
	for i := range ra {
		da := ra[i] - meanA
		db := rb[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0
	}
	return cov / math.Sqrt(varA*varB)
}

func averageRanks(vals []float64) []float64 {
	idx := make([]int, len(vals))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return vals[idx[i]] < vals[idx[j]] })

	ranks := make([]float64, len(vals))
	for i := 0; i < len(idx); {
		j := i
		for j < len(idx) && vals[idx[j]] == vals[idx[i]] {
			j++
		}
		// Average rank across the tie group, 1-based.
		avg := (float64(i+1) + float64(j)) / 2
		for k := i; k < j; k++ {
			ranks[idx[k]] = avg
		}
		i = j
	}
	return ranks
}
