// Package model contains domain entities passed between pipeline stages.
package model

import "time"

// Label keys accepted wherever a maturity target is selected.
const (
	LabelD30 = "ltv_d30"
	LabelD60 = "ltv_d60"
	LabelD90 = "ltv_d90"
)

// Player is the immutable identity and attribution record for a user.
// Created at ingestion and never mutated afterwards.
type Player struct {
	UserID      string
	InstallTime time.Time
	Channel     string
	Campaign    string
	Country     string
	OS          string
	Consent     bool // tracking consent; gates activation seed eligibility only
}

// Event is a timestamped behavioral fact. Subject to dedup and quarantine
// during cleaning. Params carries numeric event parameters such as
// session duration or level reached.
type Event struct {
	UserID     string
	Name       string
	SessionID  string
	ServerTime time.Time
	Params     map[string]float64
}

// PaymentTxn is a monetary transaction. Refunds are netted against gross
// revenue, never deleted, to preserve the audit trail.
type PaymentTxn struct {
	UserID   string
	Amount   Amount
	Currency string
	Channel  string
	Refund   bool
	TxnTime  time.Time

	// AmountUSD is populated by the cleaning pipeline's revenue
	// standardization stage. Zero until then.
	AmountUSD Amount
}

// FeatureRow is one row per user: a fixed-schema feature vector computed
// over [install, install+7d] plus label fields over their maturity windows.
// Feature values must only reference events up to the observation boundary;
// label fields may reference events up to their own horizon.
type FeatureRow struct {
	UserID      string
	InstallDate time.Time

	// Categorical attribution carried for filtering and provenance.
	Channel string
	Country string
	OS      string
	Consent bool

	// Sessions block.
	SessionCount        float64
	ActiveDays          float64
	TotalSessionMinutes float64
	AvgSessionMinutes   float64

	// Progression block.
	MaxLevel        float64
	LevelUps        float64
	QuestsCompleted float64

	// Economy block.
	SoftEarned     float64
	SoftSpent      float64
	SpendEarnRatio float64

	// Social block.
	FriendsAdded float64
	ChatMessages float64
	GuildJoined  float64

	// Monetization block (payment-derived; excluded on the cold track).
	RevenueD7         float64
	PurchaseCountD7   float64
	FirstPurchaseHour float64
	MaxTxnUSD         float64

	// Acquisition block.
	PaidInstall  float64
	ChannelScore float64

	// Label fields, computed over their maturity windows.
	LTVD30 float64
	LTVD60 float64
	LTVD90 float64
}

// Label returns the label value for the given key.
func (r *FeatureRow) Label(key string) (float64, bool) {
	switch key {
	case LabelD30:
		return r.LTVD30, true
	case LabelD60:
		return r.LTVD60, true
	case LabelD90:
		return r.LTVD90, true
	default:
		return 0, false
	}
}

// ScoredUser is the output of applying a model to a row. Ephemeral,
// recomputed on demand.
type ScoredUser struct {
	UserID    string
	Predicted float64
	Decile    int // 0 is the top decile by predicted score
	Segment   string
	Actual    float64
}

// Value segments derived from decile thresholds.
const (
	SegmentWhale   = "Whale"
	SegmentHigh    = "High"
	SegmentMid     = "Mid"
	SegmentLow     = "Low"
	SegmentMinimal = "Minimal"
)

// SegmentForDecile maps a predicted-score decile (0 = top) to a fixed band.
func SegmentForDecile(decile int) string {
	switch {
	case decile <= 0:
		return SegmentWhale
	case decile <= 2:
		return SegmentHigh
	case decile <= 4:
		return SegmentMid
	case decile <= 7:
		return SegmentLow
	default:
		return SegmentMinimal
	}
}
