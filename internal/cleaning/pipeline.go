package cleaning

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/playsignal/pltv/internal/domain/model"
	"github.com/playsignal/pltv/pkg/logger"
	"github.com/playsignal/pltv/pkg/metrics"
)

// Default pipeline configuration constants.
const (
	defaultDriftTolerance   = time.Hour
	defaultHorizon          = 62 * 24 * time.Hour
	defaultAnomalyThreshold = 2.0
)

// Pipeline runs the six cleaning stages in fixed order.
type Pipeline struct {
	rates          map[string]model.Amount
	driftTolerance time.Duration
	horizon        time.Duration
	anomalyZ       float64
	logger         logger.Logger
}

// New creates a cleaning pipeline with configuration options.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		rates:          map[string]model.Amount{"USD": decimal.NewFromInt(1)},
		driftTolerance: defaultDriftTolerance,
		horizon:        defaultHorizon,
		anomalyZ:       defaultAnomalyThreshold,
		logger:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Clean deduplicates, normalizes, quarantines, standardizes, validates, and
// flags volume anomalies. It never fails on data problems: all issues become
// counters in the returned Report, and the cleaned outputs always exclude
// duplicate and quarantined rows. Cleaning already-cleaned data is a no-op
// that reports zero removals.
func (p *Pipeline) Clean(ctx context.Context, players []model.Player, events []model.Event, payments []model.PaymentTxn) ([]model.Event, []model.PaymentTxn, *Report) {
	start := time.Now()
	report := &Report{
		InputEvents:     len(events),
		NullFieldCounts: make(map[string]int),
	}

	installs := make(map[string]time.Time, len(players))
	consent := make(map[string]bool, len(players))
	for i := range players {
		installs[players[i].UserID] = players[i].InstallTime.UTC()
		consent[players[i].UserID] = players[i].Consent
	}

	// Stage 1: deduplicate on (user_id, session_id, event_time, event_name),
	// keeping the first occurrence.
	deduper := newBatchDeduper(len(events))
	deduped := make([]model.Event, 0, len(events))
	for i := range events {
		if deduper.seenAndRecord(eventKey(&events[i])) {
			report.DuplicatesRemoved++
			continue
		}
		deduped = append(deduped, events[i])
	}
	metrics.AddEventsDeduplicated(report.DuplicatesRemoved)

	// Stage 2: normalize timestamps to UTC and quarantine events outside
	// [install - drift, install + horizon] or without a known player.
	kept := make([]model.Event, 0, len(deduped))
	for i := range deduped {
		ev := deduped[i]
		ev.ServerTime = ev.ServerTime.UTC()

		install, ok := installs[ev.UserID]
		if !ok {
			report.QuarantinedUnknownUser++
			continue
		}
		if ev.ServerTime.Before(install.Add(-p.driftTolerance)) {
			report.QuarantinedPreInstall++
			continue
		}
		if ev.ServerTime.After(install.Add(p.horizon)) {
			report.QuarantinedPostHorizon++
			continue
		}
		kept = append(kept, ev)
	}
	metrics.AddEventsQuarantined(ReasonUnknownUser, report.QuarantinedUnknownUser)
	metrics.AddEventsQuarantined(ReasonPreInstall, report.QuarantinedPreInstall)
	metrics.AddEventsQuarantined(ReasonPostHorizon, report.QuarantinedPostHorizon)

	// Stage 3: identity and consent join. Consent gates downstream
	// activation eligibility, never feature computation.
	for i := range players {
		if players[i].Consent {
			report.ConsentedPlayers++
		} else {
			report.NonConsentedPlayers++
		}
	}

	// Stage 4: revenue standardization. Every amount is converted into the
	// base currency; refunds are netted out of the net stream but retained
	// (and counted) for the gross audit trail.
	cleanTxns := make([]model.PaymentTxn, 0, len(payments))
	gross := decimal.Zero
	refunded := decimal.Zero
	for i := range payments {
		txn := payments[i]
		rate, ok := p.rates[txn.Currency]
		if !ok {
			report.QuarantinedUnknownCurrency++
			continue
		}
		txn.TxnTime = txn.TxnTime.UTC()
		txn.AmountUSD = txn.Amount.Mul(rate)
		if txn.Refund {
			report.RefundsNetted++
			refunded = refunded.Add(txn.AmountUSD)
		} else {
			gross = gross.Add(txn.AmountUSD)
		}
		report.TxnsConverted++
		cleanTxns = append(cleanTxns, txn)
	}
	report.GrossRevenueUSD = gross
	report.RefundedRevenueUSD = refunded
	report.NetRevenueUSD = gross.Sub(refunded)
	metrics.AddPaymentsConverted(report.TxnsConverted)

	// Stage 5: schema validation over the deduplicated stream, before
	// quarantine drops rows. Counts include rows that stage 2 also removed
	// for a missing user or timestamp.
	for i := range deduped {
		if deduped[i].UserID == "" {
			report.NullFieldCounts["user_id"]++
		}
		if deduped[i].Name == "" {
			report.NullFieldCounts["event_name"]++
		}
		if deduped[i].SessionID == "" {
			report.NullFieldCounts["session_id"]++
		}
		if deduped[i].ServerTime.IsZero() {
			report.NullFieldCounts["event_time"]++
		}
	}

	// Stage 6: volume anomaly detection over events per calendar day.
	p.detectVolumeAnomalies(kept, report)

	report.OutputEvents = len(kept)
	metrics.ObserveCleanDuration(time.Since(start).Seconds())
	p.logger.Info(ctx, "cleaning pass complete",
		logger.Int("input_events", report.InputEvents),
		logger.Int("output_events", report.OutputEvents),
		logger.Int("duplicates_removed", report.DuplicatesRemoved),
		logger.Int("quarantined", report.QuarantinedTotal()),
		logger.Int("volume_anomalies", len(report.VolumeAnomalies)),
	)
	return kept, cleanTxns, report
}

// detectVolumeAnomalies flags days whose event count deviates from the batch
// mean by more than the configured z-score threshold.
func (p *Pipeline) detectVolumeAnomalies(events []model.Event, report *Report) {
	perDay := make(map[string]int)
	for i := range events {
		perDay[events[i].ServerTime.Format("2006-01-02")]++
	}
	if len(perDay) < 2 {
		return
	}

	days := make([]string, 0, len(perDay))
	for day := range perDay {
		days = append(days, day)
	}
	sort.Strings(days)

	var sum float64
	for _, day := range days {
		sum += float64(perDay[day])
	}
	mean := sum / float64(len(days))

	var sq float64
	for _, day := range days {
		d := float64(perDay[day]) - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(len(days)))
	report.EventsPerDayMean = mean
	report.EventsPerDayStd = std
	if std == 0 {
		return
	}

	for _, day := range days {
		z := (float64(perDay[day]) - mean) / std
		if math.Abs(z) > p.anomalyZ {
			report.VolumeAnomalies = append(report.VolumeAnomalies, VolumeAnomaly{
				Day:    day,
				Count:  perDay[day],
				ZScore: z,
			})
		}
	}
}
