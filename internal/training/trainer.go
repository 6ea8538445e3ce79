// Package training fits the pLTV regression estimator, evaluates it, and
// keeps an append-only registry of immutable model versions.
package training

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/playsignal/pltv/internal/dataset"
	"github.com/playsignal/pltv/internal/domain/model"
	"github.com/playsignal/pltv/internal/features"
	"github.com/playsignal/pltv/pkg/logger"
	"github.com/playsignal/pltv/pkg/metrics"
)

// Feature tracks.
const (
	TrackCold = "cold" // excludes D0-D7 payment-derived features; usable at install time
	TrackWarm = "warm" // includes them; higher precision, payer-only advantage
)

// minFeatures is the smallest feature list accepted at the call boundary.
const minFeatures = 3

// Default estimator tuning.
const (
	defaultBoostRounds  = 60
	defaultLearningRate = 0.1
	defaultHoldoutSeed  = 1
)

// TrainConfig selects the target and track for a training run. TestSplit is
// the fraction held out internally for evaluation; it is independent of the
// dataset registry's train/val/test split, so double-blind evaluation is the
// caller's to arrange.
type TrainConfig struct {
	Target       string  `validate:"required,oneof=ltv_d30 ltv_d60 ltv_d90"`
	LogTransform bool    ``
	Track        string  `validate:"required,oneof=cold warm"`
	TestSplit    float64 `validate:"gte=0,lt=0.9"`
}

// Result is the full output of one training run.
type Result struct {
	Metrics     Metrics
	Deciles     []DecileRow
	Calibration []CalibrationBucket
	Importances []Importance
	Scored      []model.ScoredUser
	Version     *ModelVersion
}

// Trainer fits and scores models against a feature catalog.
type Trainer struct {
	catalog     *features.Catalog
	validate    *validator.Validate
	rounds      int
	rate        float64
	holdoutSeed uint64
	logger      logger.Logger
}

// Option applies a configuration option to the Trainer.
type Option func(*Trainer)

// WithRounds sets the number of boosting rounds.
func WithRounds(rounds int) Option {
	return func(t *Trainer) {
		if rounds > 0 {
			t.rounds = rounds
		}
	}
}

// WithLearningRate sets the boosting shrinkage.
func WithLearningRate(rate float64) Option {
	return func(t *Trainer) {
		if rate > 0 && rate <= 1 {
			t.rate = rate
		}
	}
}

// WithHoldoutSeed seeds the deterministic internal holdout assignment.
func WithHoldoutSeed(seed uint64) Option {
	return func(t *Trainer) {
		t.holdoutSeed = seed
	}
}

// WithLogger sets a custom logger for the trainer.
func WithLogger(l logger.Logger) Option {
	return func(t *Trainer) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTrainer creates a trainer over the given catalog.
func NewTrainer(catalog *features.Catalog, opts ...Option) *Trainer {
	t := &Trainer{
		catalog:     catalog,
		validate:    validator.New(),
		rounds:      defaultBoostRounds,
		rate:        defaultLearningRate,
		holdoutSeed: defaultHoldoutSeed,
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Train fits the estimator on ds and evaluates it. Configuration problems
// (too few features, unknown feature, payment-derived feature on the cold
// track, bad target) are rejected here with a typed error. The run is
// deterministic: identical inputs yield identical metrics and identical
// scored-user ordering.
func (t *Trainer) Train(ctx context.Context, ds *dataset.Dataset, featureIDs []string, cfg TrainConfig) (*Result, error) {
	start := time.Now()

	if err := t.checkConfig(ds, featureIDs, cfg); err != nil {
		return nil, err
	}

	x := make([][]float64, len(ds.Rows))
	for i := range ds.Rows {
		vec, err := t.catalog.Vector(&ds.Rows[i], featureIDs)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidTrainConfig, err)
		}
		x[i] = vec
	}
	actual := make([]float64, len(ds.Rows))
	for i := range ds.Rows {
		actual[i], _ = ds.Rows[i].Label(cfg.Target)
	}

	// Deterministic internal holdout by hashed user id.
	holdout := make([]bool, len(ds.Rows))
	var holdoutN int
	if cfg.TestSplit > 0 {
		for i := range ds.Rows {
			if holdoutUnit(t.holdoutSeed, ds.Rows[i].UserID) < cfg.TestSplit {
				holdout[i] = true
				holdoutN++
			}
		}
	}

	var trainX [][]float64
	var trainY []float64
	for i := range x {
		if holdout[i] {
			continue
		}
		trainX = append(trainX, x[i])
		trainY = append(trainY, target(actual[i], cfg.LogTransform))
	}
	if len(trainX) == 0 {
		return nil, fmt.Errorf("%w: holdout consumed every row", ErrInvalidTrainConfig)
	}

	fitted, gains := fitBoosted(trainX, trainY, t.rounds, t.rate)

	// Score every row in the dataset; evaluate errors on the holdout when
	// one exists, otherwise on the full set.
	scored := make([]model.ScoredUser, len(ds.Rows))
	var evalPred, evalActual []float64
	for i := range x {
		pred := prediction(fitted, x[i], cfg.LogTransform)
		scored[i] = model.ScoredUser{
			UserID:    ds.Rows[i].UserID,
			Predicted: pred,
			Actual:    actual[i],
		}
		if holdoutN == 0 || holdout[i] {
			evalPred = append(evalPred, pred)
			evalActual = append(evalActual, actual[i])
		}
	}
	rankScored(scored)

	mae, rmse, r2 := errorMetrics(evalPred, evalActual)
	lift, capture := topDecile(scored)
	m := Metrics{
		MAE:              mae,
		RMSE:             rmse,
		R2:               r2,
		TopDecileLift:    lift,
		TopDecileCapture: capture,
		TrainSize:        len(trainX),
		HoldoutSize:      holdoutN,
	}

	version := &ModelVersion{
		Features:     append([]string(nil), featureIDs...),
		Target:       cfg.Target,
		LogTransform: cfg.LogTransform,
		Track:        cfg.Track,
		TestSplit:    cfg.TestSplit,
		DatasetID:    ds.ID,
		Metrics:      m,
		State:        *fitted,
	}

	metrics.ObserveTrainDuration(time.Since(start).Seconds())
	t.logger.Info(ctx, "training run complete",
		logger.String("target", cfg.Target),
		logger.String("track", cfg.Track),
		logger.Int("rows", len(ds.Rows)),
		logger.Float64("mae", m.MAE),
		logger.Float64("top_decile_capture", m.TopDecileCapture),
	)

	return &Result{
		Metrics:     m,
		Deciles:     decileTable(scored),
		Calibration: calibration(scored),
		Importances: t.importances(featureIDs, gains),
		Scored:      scored,
		Version:     version,
	}, nil
}

// Score applies a saved model version to new rows: pure inference with the
// exact feature list, track, target, and transform pinned at save time
// (TestSplit forced to 0).
func (t *Trainer) Score(ctx context.Context, reg *ModelRegistry, modelID int, rows []model.FeatureRow) ([]model.ScoredUser, error) {
	mv, err := reg.GetByID(modelID)
	if err != nil {
		return nil, err
	}

	scored := make([]model.ScoredUser, len(rows))
	for i := range rows {
		vec, err := t.catalog.Vector(&rows[i], mv.Features)
		if err != nil {
			return nil, fmt.Errorf("score with model %d: %w", modelID, err)
		}
		actual, _ := rows[i].Label(mv.Target)
		scored[i] = model.ScoredUser{
			UserID:    rows[i].UserID,
			Predicted: prediction(&mv.State, vec, mv.LogTransform),
			Actual:    actual,
		}
	}
	rankScored(scored)
	t.logger.Debug(ctx, "scored rows with saved model",
		logger.Int("model_id", modelID),
		logger.Int("rows", len(rows)),
	)
	return scored, nil
}

func (t *Trainer) checkConfig(ds *dataset.Dataset, featureIDs []string, cfg TrainConfig) error {
	if ds == nil || len(ds.Rows) == 0 {
		return ErrEmptyDataset
	}
	if err := t.validate.Struct(&cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTrainConfig, err)
	}
	if len(featureIDs) < minFeatures {
		return fmt.Errorf("%w: need at least %d features, got %d", ErrInvalidTrainConfig, minFeatures, len(featureIDs))
	}
	for _, id := range featureIDs {
		feat, ok := t.catalog.Feature(id)
		if !ok {
			return fmt.Errorf("%w: %w: %q", ErrInvalidTrainConfig, features.ErrUnknownFeature, id)
		}
		if cfg.Track == TrackCold && feat.PaymentDerived {
			return fmt.Errorf("%w: feature %q is payment-derived and not allowed on the cold track", ErrInvalidTrainConfig, id)
		}
	}
	return nil
}

func (t *Trainer) importances(featureIDs []string, gains []float64) []Importance {
	var total float64
	for _, g := range gains {
		total += g
	}
	out := make([]Importance, len(featureIDs))
	for i, id := range featureIDs {
		out[i] = Importance{FeatureID: id}
		if total > 0 && i < len(gains) {
			out[i].Gain = gains[i] / total
		}
	}
	return out
}

// target applies the optional log transform. Negative labels (net refunds)
// floor at zero before the transform.
func target(y float64, logTransform bool) float64 {
	if !logTransform {
		return y
	}
	return math.Log1p(math.Max(y, 0))
}

// prediction back-transforms and floors at zero: pLTV is a non-negative
// spend forecast.
func prediction(m *BoostedModel, vec []float64, logTransform bool) float64 {
	p := m.Predict(vec)
	if logTransform {
		p = math.Expm1(p)
	}
	return math.Max(p, 0)
}

// holdoutUnit hashes (seed, userID) into [0,1) for holdout assignment.
func holdoutUnit(seed uint64, userID string) float64 {
	h := fnv.New64a()
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], seed)
	_, _ = h.Write(b[:])
	_, _ = h.Write([]byte(userID))
	return float64(h.Sum64()>>11) / float64(uint64(1)<<53)
}
