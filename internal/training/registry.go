package training

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/playsignal/pltv/pkg/metrics"
)

// ModelVersion is an immutable record of a trained model: the exact feature
// list, target, transform, and track pinned for reproducible scoring, plus
// the serialized estimator state.
type ModelVersion struct {
	ID           int
	Fingerprint  string
	Features     []string
	Target       string
	LogTransform bool
	Track        string
	TestSplit    float64
	DatasetID    int
	Metrics      Metrics
	State        BoostedModel
	CreatedAt    time.Time
}

// ModelRegistry is an append-only ordered collection of model versions keyed
// by a monotonically increasing integer id. No deletion operation exists.
type ModelRegistry struct {
	mu      sync.Mutex
	entries []*ModelVersion
	nextID  int
}

// NewModelRegistry creates an empty model registry.
func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{nextID: 1}
}

// Append stores a copy of mv and returns the stored version with its id and
// fingerprint assigned.
func (r *ModelRegistry) Append(mv *ModelVersion) *ModelVersion {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *mv
	stored.ID = r.nextID
	stored.Fingerprint = uuid.NewString()
	stored.CreatedAt = time.Now().UTC()
	stored.Features = append([]string(nil), mv.Features...)
	stored.State.Stumps = append([]Stump(nil), mv.State.Stumps...)

	r.nextID++
	r.entries = append(r.entries, &stored)
	metrics.IncModelsRegistered()
	return copyVersion(&stored)
}

// GetByID returns a copy of the version with the given id.
func (r *ModelRegistry) GetByID(id int) (*ModelVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.ID == id {
			return copyVersion(e), nil
		}
	}
	return nil, fmt.Errorf("%w: id %d", ErrModelNotFound, id)
}

// List returns copies of all versions in append order.
func (r *ModelRegistry) List() []*ModelVersion {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*ModelVersion, len(r.entries))
	for i, e := range r.entries {
		out[i] = copyVersion(e)
	}
	return out
}

// Len returns the number of stored versions.
func (r *ModelRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func copyVersion(mv *ModelVersion) *ModelVersion {
	cp := *mv
	cp.Features = append([]string(nil), mv.Features...)
	cp.State.Stumps = append([]Stump(nil), mv.State.Stumps...)
	return &cp
}
