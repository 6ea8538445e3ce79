// Package strategy compares candidate scoring strategies before they are
// allowed to drive spend decisions: ranking agreement, lift, value-capture
// curves, offline seed quality, and a simulated paid-acquisition activation
// response.
package strategy

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"

	"github.com/playsignal/pltv/internal/domain/model"
	"github.com/playsignal/pltv/internal/features"
)

// Def is a named scoring function over feature rows. Model-backed,
// heuristic, proxy, and noisy variants all reduce to this shape.
type Def struct {
	Name  string
	Score func(*model.FeatureRow) float64
}

// FromScored wraps a saved model's scored output as a strategy. Users
// missing from the scored set score zero.
func FromScored(name string, scored []model.ScoredUser) Def {
	byUser := make(map[string]float64, len(scored))
	for i := range scored {
		byUser[scored[i].UserID] = scored[i].Predicted
	}
	return Def{
		Name:  name,
		Score: func(r *model.FeatureRow) float64 { return byUser[r.UserID] },
	}
}

// RevenueProxy is the short-horizon baseline: rank by observed D7 net
// revenue alone.
func RevenueProxy() Def {
	return Def{
		Name:  "revenue_d7_proxy",
		Score: func(r *model.FeatureRow) float64 { return r.RevenueD7 },
	}
}

// Heuristic builds a weighted-sum scorer over catalog features. Unknown
// feature ids are rejected up front; weights of zero contribute nothing.
func Heuristic(name string, catalog *features.Catalog, weights map[string]float64) (Def, error) {
	type term struct {
		get    features.Accessor
		weight float64
	}
	terms := make([]term, 0, len(weights))
	for id, w := range weights {
		get, err := catalog.Accessor(id)
		if err != nil {
			return Def{}, fmt.Errorf("heuristic %q: %w", name, err)
		}
		if w != 0 {
			terms = append(terms, term{get: get, weight: w})
		}
	}
	return Def{
		Name: name,
		Score: func(r *model.FeatureRow) float64 {
			var score float64
			for _, t := range terms {
				score += t.weight * t.get(r)
			}
			return score
		},
	}, nil
}

// Noisy degrades a base strategy with deterministic per-user noise, for
// calibration contrast. The noise is a seeded hash of the user id, so two
// runs agree exactly.
func Noisy(name string, base Def, seed uint64, scale float64) Def {
	return Def{
		Name: name,
		Score: func(r *model.FeatureRow) float64 {
			u := noiseUnit(seed, r.UserID)
			return base.Score(r) + (u-0.5)*scale
		},
	}
}

// noiseUnit hashes (seed, userID) into [0,1).
func noiseUnit(seed uint64, userID string) float64 {
	h := fnv.New64a()
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], seed)
	_, _ = h.Write(b[:])
	_, _ = h.Write([]byte(userID))
	return float64(h.Sum64()>>11) / float64(uint64(1)<<53)
}
