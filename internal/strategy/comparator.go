package strategy

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/playsignal/pltv/internal/domain/model"
	"github.com/playsignal/pltv/pkg/logger"
	"github.com/playsignal/pltv/pkg/metrics"
)

// KSpec selects a top-K size: an absolute Count, or a Percent of the
// population when Percent > 0. A K larger than the population clamps to the
// population size, and a Percent that rounds below one row resolves to one;
// both clamps are documented behavior, not errors.
type KSpec struct {
	Count   int
	Percent float64
}

func (k KSpec) resolve(n int) (int, error) {
	size := k.Count
	if k.Percent > 0 {
		if k.Percent > 100 {
			return 0, fmt.Errorf("%w: percent %.1f > 100", ErrInvalidComparison, k.Percent)
		}
		size = int(math.Round(float64(n) * k.Percent / 100))
		if size < 1 {
			size = 1
		}
	}
	if size <= 0 {
		return 0, fmt.Errorf("%w: k must be positive", ErrInvalidComparison)
	}
	if size > n {
		size = n
	}
	return size, nil
}

// SelectionMetrics is one strategy's quality at one K.
type SelectionMetrics struct {
	Strategy        string
	K               int
	Recall          float64 // share of the global top-K-by-true-label captured
	Precision       float64 // share of the selection inside the global top-K
	LiftVsRandom    float64
	LiftVsReference float64
	ValueCaptured   float64 // selected true-label sum over total true-label sum
	MeanLabel       float64
	Size            int
}

// OverlapMetrics is the Jaccard similarity of two strategies' selections.
type OverlapMetrics struct {
	K         int
	StrategyA string
	StrategyB string
	Jaccard   float64
}

// ComparisonResult aggregates all selection and overlap metrics for a run.
type ComparisonResult struct {
	Target     string
	Population int
	Selections []SelectionMetrics
	Overlaps   []OverlapMetrics
}

// Comparator ranks strategies against true labels.
type Comparator struct {
	target    string
	reference string // strategy name lifts are compared against; first def when empty
	logger    logger.Logger
}

// ComparatorOption applies a configuration option to the Comparator.
type ComparatorOption func(*Comparator)

// WithTarget selects the true-label key (default ltv_d60).
func WithTarget(target string) ComparatorOption {
	return func(c *Comparator) {
		if target != "" {
			c.target = target
		}
	}
}

// WithReference names the strategy lifts are measured against.
func WithReference(name string) ComparatorOption {
	return func(c *Comparator) {
		c.reference = name
	}
}

// WithLogger sets a custom logger for the comparator.
func WithLogger(l logger.Logger) ComparatorOption {
	return func(c *Comparator) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewComparator creates a comparator with configuration options.
func NewComparator(opts ...ComparatorOption) *Comparator {
	c := &Comparator{
		target: model.LabelD60,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ranked holds one strategy's user ids ordered score descending, user id
// ascending. Equal scores rank by user id so K-selection is deterministic
// across runs.
type ranked struct {
	name string
	ids  []string
}

func rankByScore(rows []model.FeatureRow, def Def) ranked {
	type entry struct {
		id    string
		score float64
	}
	entries := make([]entry, len(rows))
	for i := range rows {
		entries[i] = entry{id: rows[i].UserID, score: def.Score(&rows[i])}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].id < entries[j].id
	})
	ids := make([]string, len(entries))
	for i := range entries {
		ids[i] = entries[i].id
	}
	return ranked{name: def.Name, ids: ids}
}

// Run computes selection and overlap metrics for every strategy at every K.
func (c *Comparator) Run(ctx context.Context, rows []model.FeatureRow, defs []Def, ks []KSpec) (*ComparisonResult, error) {
	if len(defs) == 0 {
		return nil, ErrNoStrategies
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows", ErrInvalidComparison)
	}
	if len(ks) == 0 {
		return nil, fmt.Errorf("%w: no k values", ErrInvalidComparison)
	}
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		if seen[d.Name] {
			return nil, fmt.Errorf("%w: duplicate strategy name %q", ErrInvalidComparison, d.Name)
		}
		seen[d.Name] = true
	}
	reference := c.reference
	if reference == "" {
		reference = defs[0].Name
	}
	if !seen[reference] {
		return nil, fmt.Errorf("%w: reference strategy %q not in defs", ErrInvalidComparison, reference)
	}

	labels := make(map[string]float64, len(rows))
	var totalLabel float64
	for i := range rows {
		v, ok := rows[i].Label(c.target)
		if !ok {
			return nil, fmt.Errorf("%w: unknown target %q", ErrInvalidComparison, c.target)
		}
		labels[rows[i].UserID] = v
		totalLabel += v
	}
	meanLabel := totalLabel / float64(len(rows))

	// True ranking, same tie-break discipline as the strategies.
	truth := rankByScore(rows, Def{
		Name:  "__truth__",
		Score: func(r *model.FeatureRow) float64 { v, _ := r.Label(c.target); return v },
	})

	rankings := make([]ranked, len(defs))
	for i, d := range defs {
		rankings[i] = rankByScore(rows, d)
	}

	result := &ComparisonResult{Target: c.target, Population: len(rows)}
	for _, kspec := range ks {
		k, err := kspec.resolve(len(rows))
		if err != nil {
			return nil, err
		}

		trueTop := make(map[string]bool, k)
		for _, id := range truth.ids[:k] {
			trueTop[id] = true
		}

		captured := make(map[string]float64, len(defs))
		selections := make(map[string]map[string]bool, len(defs))
		for _, r := range rankings {
			sel := r.ids[:k]
			selSet := make(map[string]bool, k)
			var hit int
			var valueSum float64
			for _, id := range sel {
				selSet[id] = true
				if trueTop[id] {
					hit++
				}
				valueSum += labels[id]
			}
			selections[r.name] = selSet
			var valueCaptured float64
			if totalLabel != 0 {
				valueCaptured = valueSum / totalLabel
			}
			captured[r.name] = valueCaptured

			selMean := valueSum / float64(len(sel))
			var liftVsRandom float64
			if meanLabel != 0 {
				liftVsRandom = selMean / meanLabel
			}
			result.Selections = append(result.Selections, SelectionMetrics{
				Strategy:      r.name,
				K:             k,
				Recall:        float64(hit) / float64(k),
				Precision:     float64(hit) / float64(len(sel)),
				LiftVsRandom:  liftVsRandom,
				ValueCaptured: valueCaptured,
				MeanLabel:     selMean,
				Size:          len(sel),
			})
		}

		// Lift vs the reference strategy, once every capture is known.
		refCaptured := captured[reference]
		for i := range result.Selections {
			s := &result.Selections[i]
			if s.K == k && refCaptured != 0 {
				s.LiftVsReference = s.ValueCaptured / refCaptured
			}
		}

		// Pairwise Jaccard overlap of the selected sets.
		for a := 0; a < len(rankings); a++ {
			for b := a + 1; b < len(rankings); b++ {
				result.Overlaps = append(result.Overlaps, OverlapMetrics{
					K:         k,
					StrategyA: rankings[a].name,
					StrategyB: rankings[b].name,
					Jaccard:   jaccard(selections[rankings[a].name], selections[rankings[b].name]),
				})
			}
		}
	}

	metrics.IncComparisonsRun()
	c.logger.Info(ctx, "strategy comparison complete",
		logger.Int("strategies", len(defs)),
		logger.Int("k_values", len(ks)),
		logger.Int("population", len(rows)),
	)
	return result, nil
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	var inter int
	for id := range a {
		if b[id] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
