// Command pltv runs the full pipeline over a deterministic synthetic batch
// and logs every report: cleaning counters, split provenance, model metrics,
// strategy comparison, activation simulation, and the conflict diagnostic.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/playsignal/pltv/internal/app"
	"github.com/playsignal/pltv/internal/config"
	"github.com/playsignal/pltv/internal/dataset"
	"github.com/playsignal/pltv/internal/strategy"
	"github.com/playsignal/pltv/internal/synthdata"
	"github.com/playsignal/pltv/internal/training"
	"github.com/playsignal/pltv/pkg/logger"
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	gen := synthdata.New(synthdata.WithLogger(log.Named("synthdata")))
	svc, err := app.New(cfg,
		app.WithLogger(log),
		app.WithRates(gen.Rates()),
	)
	if err != nil {
		log.Error(ctx, "failed to build service", logger.Error(err))
		return
	}

	if err := run(ctx, log, svc, gen); err != nil {
		log.Error(ctx, "pipeline run failed", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, log logger.Logger, svc *app.Service, gen *synthdata.Generator) error {
	players, rawEvents, rawPayments := gen.Generate(ctx)

	events, payments, report := svc.Clean(ctx, players, rawEvents, rawPayments)
	log.Info(ctx, "cleaning report",
		logger.Int("duplicates_removed", report.DuplicatesRemoved),
		logger.Int("quarantined", report.QuarantinedTotal()),
		logger.String("net_revenue_usd", report.NetRevenueUSD.StringFixed(2)),
		logger.Int("volume_anomalies", len(report.VolumeAnomalies)),
	)

	rows := svc.ComputeFeatures(ctx, players, events, payments)

	split, err := svc.BuildDataset(ctx, rows, dataset.Filters{}, dataset.Spec{
		Strategy: dataset.StrategyRandom,
		Source:   "synthetic-demo",
		Random: &dataset.RandomParams{
			TrainPct: 70, ValPct: 15, TestPct: 15,
			Seed: 42, ImmatureTailPct: 3,
		},
	})
	if err != nil {
		return err
	}
	log.Info(ctx, "split registered",
		logger.Int("train_id", split.Train.ID),
		logger.Int("train_rows", split.Train.RowCount),
		logger.Float64("train_payer_rate", split.Train.PayerRate),
		logger.Int("excluded", split.Excluded),
	)

	catalog := svc.Catalog()
	result, err := svc.Train(ctx, split.Train.ID, catalog.IDs(), training.TrainConfig{
		Target:       "ltv_d60",
		LogTransform: true,
		Track:        training.TrackWarm,
		TestSplit:    0.2,
	})
	if err != nil {
		return err
	}
	log.Info(ctx, "model trained",
		logger.Int("model_id", result.Version.ID),
		logger.Float64("mae", result.Metrics.MAE),
		logger.Float64("r2", result.Metrics.R2),
		logger.Float64("top_decile_capture", result.Metrics.TopDecileCapture),
	)

	scored, err := svc.Score(ctx, result.Version.ID, split.Test.ID)
	if err != nil {
		return err
	}
	log.Info(ctx, "held-out dataset scored", logger.Int("rows", len(scored)))

	modelDef := strategy.FromScored("pltv_model", result.Scored)
	proxyDef := strategy.RevenueProxy()
	heuristicDef, err := strategy.Heuristic("engagement_heuristic", catalog, map[string]float64{
		"session_count": 1.0,
		"active_days":   2.0,
		"max_level":     0.5,
	})
	if err != nil {
		return err
	}
	defs := []strategy.Def{
		modelDef,
		proxyDef,
		heuristicDef,
		strategy.Noisy("noisy_model", modelDef, 99, 25),
	}

	comparison, err := svc.CompareStrategies(ctx, rows, defs, []strategy.KSpec{
		{Percent: 5}, {Percent: 10}, {Count: 100},
	})
	if err != nil {
		return err
	}
	for _, sel := range comparison.Selections {
		log.Info(ctx, "strategy selection",
			logger.String("strategy", sel.Strategy),
			logger.Int("k", sel.K),
			logger.Float64("recall", sel.Recall),
			logger.Float64("value_captured", sel.ValueCaptured),
		)
	}

	quality, err := svc.OfflineAnalysis(ctx, rows, defs, strategy.KSpec{Percent: 10})
	if err != nil {
		return err
	}
	for _, q := range quality {
		log.Info(ctx, "offline seed quality",
			logger.String("strategy", q.Strategy),
			logger.Float64("precision_at_k", q.PrecisionAtK),
			logger.Float64("spearman", q.Spearman),
		)
	}

	outcomes, err := svc.SimulateActivation(ctx, rows, defs, strategy.ActivationConfig{
		Budget:         50_000,
		BaseCPI:        2.5,
		AdsSensitivity: 0.5,
		SeedSize:       50,
		HorizonDays:    30,
	})
	if err != nil {
		return err
	}
	for _, o := range outcomes {
		log.Info(ctx, "activation outcome",
			logger.String("strategy", o.Strategy),
			logger.Float64("cpi", o.CPI),
			logger.Float64("roas", o.ROAS),
			logger.Float64("profit", o.Profit),
		)
	}

	conflicts, err := svc.DetectConflicts(ctx, rows, []string{
		"session_count", "active_days", "total_session_minutes", "max_level", "soft_spent",
	}, "ltv_d60", 5)
	if err != nil {
		return err
	}
	log.Info(ctx, "conflict diagnostic",
		logger.Float64("conflict_rate_pct", conflicts.ConflictRate),
		logger.String("severity", conflicts.Severity),
		logger.Int("boundary_zone", len(conflicts.BoundaryZone)),
	)
	return nil
}
