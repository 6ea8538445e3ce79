// Package app wires the pipeline components behind one service facade.
// There is no hidden "current dataset" or "current model": every call takes
// explicit ids or rows, and the registries are the only state it holds.
package app

import (
	"context"
	"time"

	"github.com/playsignal/pltv/internal/cleaning"
	"github.com/playsignal/pltv/internal/config"
	"github.com/playsignal/pltv/internal/conflict"
	"github.com/playsignal/pltv/internal/dataset"
	"github.com/playsignal/pltv/internal/domain/model"
	"github.com/playsignal/pltv/internal/features"
	"github.com/playsignal/pltv/internal/strategy"
	"github.com/playsignal/pltv/internal/training"
	"github.com/playsignal/pltv/pkg/logger"
)

// Service exposes the pipeline API surface over caller-held registries.
type Service struct {
	cfg     *config.Config
	catalog *features.Catalog
	rates   map[string]model.Amount
	log     logger.Logger

	cleaner    *cleaning.Pipeline
	engine     *features.Engine
	datasets   *dataset.Registry
	splitter   *dataset.Splitter
	models     *training.ModelRegistry
	trainer    *training.Trainer
	comparator *strategy.Comparator
	detector   *conflict.Detector
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service and its components.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithRates sets the currency conversion table for cleaning.
func WithRates(rates map[string]model.Amount) Option {
	return func(s *Service) {
		if rates != nil {
			s.rates = rates
		}
	}
}

// WithCatalog overrides the embedded feature catalog.
func WithCatalog(c *features.Catalog) Option {
	return func(s *Service) {
		if c != nil {
			s.catalog = c
		}
	}
}

// New builds the service from configuration.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	s := &Service{
		cfg: cfg,
		log: logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.catalog == nil {
		catalog, err := features.Default()
		if err != nil {
			return nil, err
		}
		s.catalog = catalog
	}

	cleanOpts := []cleaning.Option{
		cleaning.WithDriftTolerance(minutes(cfg.DriftToleranceMinutes)),
		cleaning.WithHorizon(days(cfg.QuarantineHorizonDays)),
		cleaning.WithLogger(s.log.Named("cleaning")),
	}
	if s.rates != nil {
		cleanOpts = append(cleanOpts, cleaning.WithRates(s.rates))
	}
	s.cleaner = cleaning.New(cleanOpts...)

	s.engine = features.New(
		features.WithObservationWindow(days(cfg.ObservationWindowDays)),
		features.WithWorkers(cfg.WorkerCount),
		features.WithLogger(s.log.Named("features")),
	)

	s.datasets = dataset.NewRegistry()
	s.splitter = dataset.NewSplitter(s.datasets, dataset.WithLogger(s.log.Named("splitter")))

	s.models = training.NewModelRegistry()
	s.trainer = training.NewTrainer(s.catalog,
		training.WithRounds(cfg.BoostRounds),
		training.WithLearningRate(cfg.LearningRate),
		training.WithLogger(s.log.Named("trainer")),
	)

	s.comparator = strategy.NewComparator(strategy.WithLogger(s.log.Named("comparator")))
	s.detector = conflict.New(s.catalog, conflict.WithLogger(s.log.Named("conflict")))
	return s, nil
}

// Catalog returns the feature catalog in use.
func (s *Service) Catalog() *features.Catalog { return s.catalog }

// Datasets returns the dataset registry.
func (s *Service) Datasets() *dataset.Registry { return s.datasets }

// Models returns the model registry.
func (s *Service) Models() *training.ModelRegistry { return s.models }

// Clean runs the cleaning pipeline.
func (s *Service) Clean(ctx context.Context, players []model.Player, events []model.Event, payments []model.PaymentTxn) ([]model.Event, []model.PaymentTxn, *cleaning.Report) {
	return s.cleaner.Clean(ctx, players, events, payments)
}

// ComputeFeatures builds one FeatureRow per player from cleaned inputs.
func (s *Service) ComputeFeatures(ctx context.Context, players []model.Player, events []model.Event, payments []model.PaymentTxn) []model.FeatureRow {
	return s.engine.Compute(ctx, players, events, payments)
}

// BuildDataset partitions rows and registers the cohorts.
func (s *Service) BuildDataset(ctx context.Context, rows []model.FeatureRow, filters dataset.Filters, spec dataset.Spec) (*dataset.Result, error) {
	return s.splitter.Build(ctx, rows, filters, spec)
}

// Train fits a model on a registered dataset and saves the resulting
// version to the model registry.
func (s *Service) Train(ctx context.Context, datasetID int, featureIDs []string, cfg training.TrainConfig) (*training.Result, error) {
	ds, err := s.datasets.GetByID(datasetID)
	if err != nil {
		return nil, err
	}
	result, err := s.trainer.Train(ctx, ds, featureIDs, cfg)
	if err != nil {
		return nil, err
	}
	result.Version = s.models.Append(result.Version)
	return result, nil
}

// Score applies a saved model version to a registered dataset.
func (s *Service) Score(ctx context.Context, modelID, datasetID int) ([]model.ScoredUser, error) {
	ds, err := s.datasets.GetByID(datasetID)
	if err != nil {
		return nil, err
	}
	return s.trainer.Score(ctx, s.models, modelID, ds.Rows)
}

// CompareStrategies ranks strategies against true labels at the given Ks.
func (s *Service) CompareStrategies(ctx context.Context, rows []model.FeatureRow, defs []strategy.Def, ks []strategy.KSpec) (*strategy.ComparisonResult, error) {
	return s.comparator.Run(ctx, rows, defs, ks)
}

// OfflineAnalysis reports offline seed quality per strategy.
func (s *Service) OfflineAnalysis(ctx context.Context, rows []model.FeatureRow, defs []strategy.Def, k strategy.KSpec) ([]strategy.SeedQuality, error) {
	return s.comparator.OfflineAnalysis(ctx, rows, defs, k)
}

// SimulateActivation runs the closed-form activation response model.
func (s *Service) SimulateActivation(ctx context.Context, rows []model.FeatureRow, defs []strategy.Def, cfg strategy.ActivationConfig) ([]strategy.ActivationOutcome, error) {
	return s.comparator.SimulateActivation(ctx, rows, defs, cfg)
}

// DetectConflicts runs the label-conflict diagnostic.
func (s *Service) DetectConflicts(ctx context.Context, rows []model.FeatureRow, featureIDs []string, targetKey string, k int) (*conflict.Result, error) {
	return s.detector.Detect(ctx, rows, featureIDs, targetKey, k)
}

func minutes(n int) time.Duration { return time.Duration(n) * time.Minute }
func days(n int) time.Duration    { return time.Duration(n) * 24 * time.Hour }
