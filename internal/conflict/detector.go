// Package conflict finds feature-space neighborhoods where labels disagree,
// flagging noisy target definitions. It is a diagnostic only: it never
// alters data, it only reports.
package conflict

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/playsignal/pltv/internal/domain/model"
	"github.com/playsignal/pltv/internal/features"
	"github.com/playsignal/pltv/pkg/logger"
	"github.com/playsignal/pltv/pkg/metrics"
)

// Detection constants.
const (
	DefaultK          = 5
	boundaryThreshold = 0.15 // normalized distance to the nearest different-label neighbor
	maxConflictPairs  = 50
	maxBoundaryZone   = 100

	severityLowCeiling      = 10.0 // percent
	severityModerateCeiling = 20.0
)

// Severity tiers.
const (
	SeverityLow      = "low"
	SeverityModerate = "moderate"
	SeverityHigh     = "high"
)

// Pair is one example of neighboring rows with disagreeing labels.
type Pair struct {
	UserA    string
	UserB    string
	Distance float64
	LabelA   float64
	LabelB   float64
}

// BoundaryExample is a row whose nearest differently-labeled neighbor sits
// inside the boundary threshold.
type BoundaryExample struct {
	UserID     string
	NeighborID string
	Distance   float64
}

// Result is the conflict report.
type Result struct {
	TotalSamples       int
	ConflictingSamples int
	ConflictRate       float64 // percent
	Severity           string
	ExamplePairs       []Pair
	BoundaryZone       []BoundaryExample
}

// Detector runs the k-nearest-neighbor label disagreement scan.
type Detector struct {
	catalog *features.Catalog
	logger  logger.Logger
}

// Option applies a configuration option to the Detector.
type Option func(*Detector)

// WithLogger sets a custom logger for the detector.
func WithLogger(l logger.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

// New creates a detector over the given catalog.
func New(catalog *features.Catalog, opts ...Option) *Detector {
	d := &Detector{
		catalog: catalog,
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect normalizes the selected features to [0,1] per-feature min/max and
// scans every row's k nearest neighbors by Euclidean distance (full O(n²)
// scan; fine at the batch sizes this tool targets). A row conflicts when a
// strict majority of its k neighbors carry a different label; it is in the
// boundary zone when its nearest differently-labeled neighbor is closer
// than the fixed threshold, regardless of majority.
func (d *Detector) Detect(ctx context.Context, rows []model.FeatureRow, featureIDs []string, targetKey string, k int) (*Result, error) {
	start := time.Now()
	if k <= 0 {
		k = DefaultK
	}
	if len(featureIDs) == 0 {
		return nil, fmt.Errorf("%w: no features selected", features.ErrUnknownFeature)
	}

	vecs := make([][]float64, len(rows))
	for i := range rows {
		vec, err := d.catalog.Vector(&rows[i], featureIDs)
		if err != nil {
			return nil, err
		}
		vecs[i] = vec
	}
	normalize(vecs)

	labels := make([]float64, len(rows))
	for i := range rows {
		v, ok := rows[i].Label(targetKey)
		if !ok {
			return nil, fmt.Errorf("unknown target %q", targetKey)
		}
		labels[i] = v
	}

	result := &Result{TotalSamples: len(rows)}
	if len(rows) < 2 {
		result.Severity = SeverityLow
		return result, nil
	}
	if k > len(rows)-1 {
		k = len(rows) - 1
	}

	for i := range rows {
		neighbors := make([]neighbor, 0, len(rows)-1)
		for j := range rows {
			if i == j {
				continue
			}
			neighbors = append(neighbors, neighbor{idx: j, dist: euclidean(vecs[i], vecs[j])})
		}
		sort.SliceStable(neighbors, func(a, b int) bool {
			if neighbors[a].dist != neighbors[b].dist {
				return neighbors[a].dist < neighbors[b].dist
			}
			return neighbors[a].idx < neighbors[b].idx
		})

		var disagree int
		for _, nb := range neighbors[:k] {
			if labels[nb.idx] != labels[i] {
				disagree++
			}
		}
		if disagree*2 > k {
			result.ConflictingSamples++
			if len(result.ExamplePairs) < maxConflictPairs {
				nearest := nearestDifferent(neighbors, labels, labels[i])
				if nearest != nil {
					result.ExamplePairs = append(result.ExamplePairs, Pair{
						UserA:    rows[i].UserID,
						UserB:    rows[nearest.idx].UserID,
						Distance: nearest.dist,
						LabelA:   labels[i],
						LabelB:   labels[nearest.idx],
					})
				}
			}
		}

		if nearest := nearestDifferent(neighbors, labels, labels[i]); nearest != nil && nearest.dist < boundaryThreshold {
			if len(result.BoundaryZone) < maxBoundaryZone {
				result.BoundaryZone = append(result.BoundaryZone, BoundaryExample{
					UserID:     rows[i].UserID,
					NeighborID: rows[nearest.idx].UserID,
					Distance:   nearest.dist,
				})
			}
		}
	}

	result.ConflictRate = 100 * float64(result.ConflictingSamples) / float64(result.TotalSamples)
	switch {
	case result.ConflictRate < severityLowCeiling:
		result.Severity = SeverityLow
	case result.ConflictRate <= severityModerateCeiling:
		result.Severity = SeverityModerate
	default:
		result.Severity = SeverityHigh
	}

	metrics.ObserveConflictScanDuration(time.Since(start).Seconds())
	d.logger.Info(ctx, "conflict scan complete",
		logger.Int("samples", result.TotalSamples),
		logger.Int("conflicts", result.ConflictingSamples),
		logger.String("severity", result.Severity),
	)
	return result, nil
}

// neighbor is one candidate row in a distance scan.
type neighbor struct {
	idx  int
	dist float64
}

// nearestDifferent returns the closest neighbor with a different label, or
// nil when every row shares the label. Neighbors must already be sorted.
func nearestDifferent(neighbors []neighbor, labels []float64, label float64) *neighbor {
	for i := range neighbors {
		if labels[neighbors[i].idx] != label {
			return &neighbors[i]
		}
	}
	return nil
}

// normalize rescales each column of vecs into [0,1] by its min/max over the
// input set. Constant columns collapse to zero.
func normalize(vecs [][]float64) {
	if len(vecs) == 0 {
		return
	}
	dims := len(vecs[0])
	for j := 0; j < dims; j++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for i := range vecs {
			if vecs[i][j] < lo {
				lo = vecs[i][j]
			}
			if vecs[i][j] > hi {
				hi = vecs[i][j]
			}
		}
		span := hi - lo
		for i := range vecs {
			if span == 0 {
				vecs[i][j] = 0
			} else {
				vecs[i][j] = (vecs[i][j] - lo) / span
			}
		}
	}
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
