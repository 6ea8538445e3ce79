package cleaning

import (
	"github.com/playsignal/pltv/internal/domain/model"
)

// Quarantine reasons used in the report and in metrics labels.
const (
	ReasonPreInstall  = "pre_install"
	ReasonPostHorizon = "post_horizon"
	ReasonUnknownUser = "unknown_user"
	ReasonBadCurrency = "unknown_currency"
)

// VolumeAnomaly flags a day whose event volume deviates from the batch mean.
type VolumeAnomaly struct {
	Day    string // YYYY-MM-DD
	Count  int
	ZScore float64
}

// Report carries every counter produced by the cleaning stages. The pipeline
// never fails on data problems; this report is the only surface for them.
type Report struct {
	InputEvents  int
	OutputEvents int

	// Stage 1: deduplication.
	DuplicatesRemoved int

	// Stage 2: timestamp normalization and quarantine.
	QuarantinedPreInstall  int
	QuarantinedPostHorizon int
	QuarantinedUnknownUser int

	// Stage 3: identity and consent join.
	ConsentedPlayers    int
	NonConsentedPlayers int

	// Stage 4: revenue standardization.
	TxnsConverted              int
	RefundsNetted              int
	QuarantinedUnknownCurrency int
	GrossRevenueUSD            model.Amount
	RefundedRevenueUSD         model.Amount
	NetRevenueUSD              model.Amount

	// Stage 5: schema validation (null field counts, events only).
	NullFieldCounts map[string]int

	// Stage 6: volume anomaly detection.
	EventsPerDayMean float64
	EventsPerDayStd  float64
	VolumeAnomalies  []VolumeAnomaly
}

// QuarantinedTotal sums all event quarantine counters.
func (r *Report) QuarantinedTotal() int {
	return r.QuarantinedPreInstall + r.QuarantinedPostHorizon + r.QuarantinedUnknownUser
}
