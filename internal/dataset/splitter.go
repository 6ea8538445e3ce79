package dataset

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"sort"

	"github.com/go-playground/validator/v10"

	"github.com/playsignal/pltv/internal/domain/model"
	"github.com/playsignal/pltv/pkg/logger"
)

// Strategy selects the partitioning discipline.
type Strategy string

// Split strategies. Temporal is the default: random splitting leaks
// temporal trends across cohorts, temporal mirrors the production
// train-on-past/evaluate-on-future discipline.
const (
	StrategyTemporal Strategy = "temporal"
	StrategyRandom   Strategy = "random"
)

// TemporalParams assigns rows by the calendar month of install_date.
// Months are "2006-01" formatted. Rows outside every bucket are excluded
// and counted.
type TemporalParams struct {
	TrainMonths []string `validate:"required,min=1,dive,datetime=2006-01"`
	ValMonths   []string `validate:"required,min=1,dive,datetime=2006-01"`
	TestMonths  []string `validate:"required,min=1,dive,datetime=2006-01"`
}

// RandomParams cuts rows by percentage after dropping the most recent
// installs whose labels have not matured. Ordering comes from a seeded hash
// of the user id, never from wall-clock randomness, so a split reproduces
// exactly across runs.
type RandomParams struct {
	TrainPct        float64 `validate:"gt=0,lt=100"`
	ValPct          float64 `validate:"gte=0,lt=100"`
	TestPct         float64 `validate:"gt=0,lt=100"`
	Seed            uint64
	ImmatureTailPct float64 `validate:"gte=0,lt=50"`
}

// Spec bundles the strategy with its parameters.
type Spec struct {
	Strategy Strategy
	Source   string // free-form provenance, e.g. "features-2025-01"
	Temporal *TemporalParams
	Random   *RandomParams
}

// Result carries the three new registry entries plus the excluded count.
// |Train|+|Validation|+|Test|+Excluded always equals the filtered-in input:
// rows removed by filters also count into Excluded.
type Result struct {
	Train      *Dataset
	Validation *Dataset
	Test       *Dataset
	Excluded   int
}

// Splitter partitions feature rows and registers the cohorts.
type Splitter struct {
	reg      *Registry
	validate *validator.Validate
	logger   logger.Logger
}

// SplitterOption applies a configuration option to the Splitter.
type SplitterOption func(*Splitter)

// WithLogger sets a custom logger for the splitter.
func WithLogger(l logger.Logger) SplitterOption {
	return func(s *Splitter) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSplitter creates a splitter writing into reg.
func NewSplitter(reg *Registry, opts ...SplitterOption) *Splitter {
	s := &Splitter{
		reg:      reg,
		validate: validator.New(),
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Build partitions rows per spec and appends three immutable registry
// entries. Configuration problems are rejected at this boundary with a
// typed error; nothing is registered on failure.
func (s *Splitter) Build(ctx context.Context, rows []model.FeatureRow, filters Filters, spec Spec) (*Result, error) {
	filtered := make([]model.FeatureRow, 0, len(rows))
	for i := range rows {
		if filters.match(&rows[i]) {
			filtered = append(filtered, rows[i])
		}
	}
	excluded := len(rows) - len(filtered)

	var train, val, test []model.FeatureRow
	var outside int
	var err error

	switch spec.Strategy {
	case StrategyTemporal:
		train, val, test, outside, err = s.splitTemporal(filtered, spec.Temporal)
	case StrategyRandom:
		train, val, test, outside, err = s.splitRandom(filtered, spec.Random)
	default:
		err = fmt.Errorf("%w: unknown strategy %q", ErrInvalidSplit, spec.Strategy)
	}
	if err != nil {
		return nil, err
	}
	excluded += outside

	res := &Result{
		Train:      s.reg.Append(&Dataset{Role: RoleTrain, Source: spec.Source, Rows: train, Filters: filters}),
		Validation: s.reg.Append(&Dataset{Role: RoleValidation, Source: spec.Source, Rows: val, Filters: filters}),
		Test:       s.reg.Append(&Dataset{Role: RoleTest, Source: spec.Source, Rows: test, Filters: filters}),
		Excluded:   excluded,
	}
	s.logger.Info(ctx, "split registered",
		logger.String("strategy", string(spec.Strategy)),
		logger.Int("train", len(train)),
		logger.Int("validation", len(val)),
		logger.Int("test", len(test)),
		logger.Int("excluded", excluded),
	)
	return res, nil
}

func (s *Splitter) splitTemporal(rows []model.FeatureRow, p *TemporalParams) (train, val, test []model.FeatureRow, excluded int, err error) {
	if p == nil {
		return nil, nil, nil, 0, fmt.Errorf("%w: temporal params missing", ErrInvalidSplit)
	}
	if err := s.validate.Struct(p); err != nil {
		return nil, nil, nil, 0, fmt.Errorf("%w: %w", ErrInvalidSplit, err)
	}

	bucket := make(map[string]Role, len(p.TrainMonths)+len(p.ValMonths)+len(p.TestMonths))
	for _, m := range p.TrainMonths {
		bucket[m] = RoleTrain
	}
	for _, m := range p.ValMonths {
		if prev, dup := bucket[m]; dup {
			return nil, nil, nil, 0, fmt.Errorf("%w: month %s in both %s and %s buckets", ErrInvalidSplit, m, prev, RoleValidation)
		}
		bucket[m] = RoleValidation
	}
	for _, m := range p.TestMonths {
		if prev, dup := bucket[m]; dup {
			return nil, nil, nil, 0, fmt.Errorf("%w: month %s in both %s and %s buckets", ErrInvalidSplit, m, prev, RoleTest)
		}
		bucket[m] = RoleTest
	}

	for i := range rows {
		switch bucket[rows[i].InstallDate.Format("2006-01")] {
		case RoleTrain:
			train = append(train, rows[i])
		case RoleValidation:
			val = append(val, rows[i])
		case RoleTest:
			test = append(test, rows[i])
		default:
			excluded++
		}
	}
	return train, val, test, excluded, nil
}

func (s *Splitter) splitRandom(rows []model.FeatureRow, p *RandomParams) (train, val, test []model.FeatureRow, excluded int, err error) {
	if p == nil {
		return nil, nil, nil, 0, fmt.Errorf("%w: random params missing", ErrInvalidSplit)
	}
	if err := s.validate.Struct(p); err != nil {
		return nil, nil, nil, 0, fmt.Errorf("%w: %w", ErrInvalidSplit, err)
	}
	if sum := p.TrainPct + p.ValPct + p.TestPct; sum > 100 {
		return nil, nil, nil, 0, fmt.Errorf("%w: split percentages sum to %.1f > 100", ErrInvalidSplit, sum)
	}

	// Drop the most recent installs first: their labels are immature.
	ordered := make([]model.FeatureRow, len(rows))
	copy(ordered, rows)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].InstallDate.Equal(ordered[j].InstallDate) {
			return ordered[i].InstallDate.Before(ordered[j].InstallDate)
		}
		return ordered[i].UserID < ordered[j].UserID
	})
	tail := int(math.Ceil(float64(len(ordered)) * p.ImmatureTailPct / 100))
	if tail > len(ordered) {
		tail = len(ordered)
	}
	mature := ordered[:len(ordered)-tail]
	excluded = tail

	// Deterministic pseudo-random ordering by seeded hash of the user id.
	sort.SliceStable(mature, func(i, j int) bool {
		ki, kj := splitKey(p.Seed, mature[i].UserID), splitKey(p.Seed, mature[j].UserID)
		if ki != kj {
			return ki < kj
		}
		return mature[i].UserID < mature[j].UserID
	})

	n := len(mature)
	trainEnd := int(float64(n) * p.TrainPct / 100)
	valEnd := trainEnd + int(float64(n)*p.ValPct/100)
	testEnd := valEnd + int(float64(n)*p.TestPct/100)
	if testEnd > n {
		testEnd = n
	}

	train = append(train, mature[:trainEnd]...)
	val = append(val, mature[trainEnd:valEnd]...)
	test = append(test, mature[valEnd:testEnd]...)
	excluded += n - testEnd
	return train, val, test, excluded, nil
}

// splitKey hashes (seed, userID) into an order key. FNV-1a over the seed
// bytes plus the id: stable across runs and ports.
func splitKey(seed uint64, userID string) uint64 {
	h := fnv.New64a()
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], seed)
	_, _ = h.Write(b[:])
	_, _ = h.Write([]byte(userID))
	return h.Sum64()
}
