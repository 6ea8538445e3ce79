// Package dataset partitions feature rows into leakage-safe cohorts and
// stores them in an append-only versioned registry.
package dataset

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/playsignal/pltv/internal/domain/model"
	"github.com/playsignal/pltv/pkg/metrics"
)

// Role is the split role of a registry entry.
type Role string

// Split roles.
const (
	RoleTrain      Role = "train"
	RoleValidation Role = "validation"
	RoleTest       Role = "test"
	RoleCustom     Role = "custom"
)

// Filters narrows the input rows before splitting. Zero values match all.
type Filters struct {
	Channel string
	Country string
	From    time.Time // inclusive install-date lower bound
	To      time.Time // exclusive install-date upper bound
}

func (f Filters) match(r *model.FeatureRow) bool {
	if f.Channel != "" && r.Channel != f.Channel {
		return false
	}
	if f.Country != "" && r.Country != f.Country {
		return false
	}
	if !f.From.IsZero() && r.InstallDate.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !r.InstallDate.Before(f.To) {
		return false
	}
	return true
}

// Dataset is an immutable snapshot of feature rows with provenance.
// Re-splitting creates new entries; nothing mutates a stored one.
type Dataset struct {
	ID          int
	Fingerprint string
	Role        Role
	Source      string
	Rows        []model.FeatureRow
	RowCount    int
	PayerRate   float64 // share of rows with ltv_d60 > 0
	MeanLTVD60  float64
	DateFrom    time.Time
	DateTo      time.Time
	Filters     Filters
	CreatedAt   time.Time
}

// Registry is an append-only ordered collection of Datasets keyed by a
// monotonically increasing integer id. Appends are serialized; no deletion
// operation exists.
type Registry struct {
	mu      sync.Mutex
	entries []*Dataset
	nextID  int
}

// NewRegistry creates an empty dataset registry.
func NewRegistry() *Registry {
	return &Registry{nextID: 1}
}

// Append stores a snapshot of ds and returns the stored entry. Rows are
// copied on the way in so later caller mutation cannot reach the registry.
func (r *Registry) Append(ds *Dataset) *Dataset {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *ds
	stored.ID = r.nextID
	stored.Fingerprint = uuid.NewString()
	stored.CreatedAt = time.Now().UTC()
	stored.Rows = copyRows(ds.Rows)
	stored.RowCount = len(stored.Rows)
	annotate(&stored)

	r.nextID++
	r.entries = append(r.entries, &stored)
	metrics.IncDatasetsRegistered()
	return snapshot(&stored)
}

// GetByID returns a copy of the entry with the given id.
func (r *Registry) GetByID(id int) (*Dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.ID == id {
			return snapshot(e), nil
		}
	}
	return nil, fmt.Errorf("%w: id %d", ErrDatasetNotFound, id)
}

// List returns copies of all entries in append order.
func (r *Registry) List() []*Dataset {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Dataset, len(r.entries))
	for i, e := range r.entries {
		out[i] = snapshot(e)
	}
	return out
}

// Len returns the number of stored entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func copyRows(rows []model.FeatureRow) []model.FeatureRow {
	out := make([]model.FeatureRow, len(rows))
	copy(out, rows)
	return out
}

func snapshot(ds *Dataset) *Dataset {
	cp := *ds
	cp.Rows = copyRows(ds.Rows)
	return &cp
}

// annotate fills the summary-statistics provenance of a stored entry.
func annotate(ds *Dataset) {
	if len(ds.Rows) == 0 {
		return
	}
	var payers int
	var sum float64
	from, to := ds.Rows[0].InstallDate, ds.Rows[0].InstallDate
	for i := range ds.Rows {
		r := &ds.Rows[i]
		if r.LTVD60 > 0 {
			payers++
		}
		sum += r.LTVD60
		if r.InstallDate.Before(from) {
			from = r.InstallDate
		}
		if r.InstallDate.After(to) {
			to = r.InstallDate
		}
	}
	ds.PayerRate = float64(payers) / float64(len(ds.Rows))
	ds.MeanLTVD60 = sum / float64(len(ds.Rows))
	ds.DateFrom = from
	ds.DateTo = to
}
