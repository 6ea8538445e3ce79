package features

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/playsignal/pltv/internal/domain/model"
	"github.com/playsignal/pltv/pkg/logger"
	"github.com/playsignal/pltv/pkg/metrics"
)

// Event names the engine understands. Unknown events are ignored.
const (
	EventSessionStart  = "session_start"
	EventLevelUp       = "level_up"
	EventQuestComplete = "quest_complete"
	EventCurrencyEarn  = "currency_earn"
	EventCurrencySpend = "currency_spend"
	EventFriendAdd     = "friend_add"
	EventChatMessage   = "chat_message"
	EventGuildJoin     = "guild_join"
)

// Event parameter keys.
const (
	ParamDurationMin = "duration_min"
	ParamLevel       = "level"
	ParamAmount      = "amount"
)

// Label maturity horizons.
const (
	horizonD30 = 30 * 24 * time.Hour
	horizonD60 = 60 * 24 * time.Hour
	horizonD90 = 90 * 24 * time.Hour
)

const defaultObservationWindow = 7 * 24 * time.Hour

// organicChannel marks installs not attributed to a paid campaign.
const organicChannel = "organic"

// Engine computes one FeatureRow per player. Deterministic given identical
// cleaned inputs: per-player event slices preserve input order and nothing
// here draws randomness.
type Engine struct {
	window  time.Duration
	workers int
	logger  logger.Logger
}

// New creates a feature engine with configuration options.
func New(opts ...Option) *Engine {
	e := &Engine{
		window:  defaultObservationWindow,
		workers: 1,
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compute builds one FeatureRow per player, in player input order. Feature
// values only reference events with server_time <= install+window; label
// fields reference events up to their own maturity horizon. That boundary is
// the load-bearing invariant of the whole pipeline: nothing past the
// observation window may reach a feature aggregate.
func (e *Engine) Compute(ctx context.Context, players []model.Player, events []model.Event, payments []model.PaymentTxn) []model.FeatureRow {
	start := time.Now()

	eventsByUser := make(map[string][]model.Event, len(players))
	for i := range events {
		eventsByUser[events[i].UserID] = append(eventsByUser[events[i].UserID], events[i])
	}
	paymentsByUser := make(map[string][]model.PaymentTxn, len(players))
	for i := range payments {
		paymentsByUser[payments[i].UserID] = append(paymentsByUser[payments[i].UserID], payments[i])
	}

	rows := make([]model.FeatureRow, len(players))
	forEachOrdered(ctx, len(players), e.workers, func(i int) {
		rows[i] = e.computeRow(&players[i], eventsByUser[players[i].UserID], paymentsByUser[players[i].UserID])
	})

	metrics.AddFeatureRowsBuilt(len(rows))
	metrics.ObserveFeatureComputeDuration(time.Since(start).Seconds())
	e.logger.Info(ctx, "feature pass complete",
		logger.Int("players", len(players)),
		logger.Int("rows", len(rows)),
	)
	return rows
}

func (e *Engine) computeRow(p *model.Player, events []model.Event, payments []model.PaymentTxn) model.FeatureRow {
	install := p.InstallTime.UTC()
	boundary := install.Add(e.window)

	row := model.FeatureRow{
		UserID:      p.UserID,
		InstallDate: install,
		Channel:     p.Channel,
		Country:     p.Country,
		OS:          p.OS,
		Consent:     p.Consent,
	}

	sessions := make(map[string]struct{})
	days := make(map[string]struct{})
	for i := range events {
		ev := &events[i]
		if ev.ServerTime.After(boundary) {
			continue
		}
		sessions[ev.SessionID] = struct{}{}
		days[ev.ServerTime.Format("2006-01-02")] = struct{}{}

		switch ev.Name {
		case EventSessionStart:
			row.TotalSessionMinutes += ev.Params[ParamDurationMin]
		case EventLevelUp:
			row.LevelUps++
			if lvl := ev.Params[ParamLevel]; lvl > row.MaxLevel {
				row.MaxLevel = lvl
			}
		case EventQuestComplete:
			row.QuestsCompleted++
		case EventCurrencyEarn:
			row.SoftEarned += ev.Params[ParamAmount]
		case EventCurrencySpend:
			row.SoftSpent += ev.Params[ParamAmount]
		case EventFriendAdd:
			row.FriendsAdded++
		case EventChatMessage:
			row.ChatMessages++
		case EventGuildJoin:
			row.GuildJoined = 1
		}
	}
	row.SessionCount = float64(len(sessions))
	row.ActiveDays = float64(len(days))
	if row.SessionCount > 0 {
		row.AvgSessionMinutes = row.TotalSessionMinutes / row.SessionCount
	}
	row.SpendEarnRatio = row.SoftSpent / (row.SoftEarned + 1)

	// Monetization block: net revenue within the observation window.
	// FirstPurchaseHour defaults to the window length when no purchase
	// happened, keeping the field monotone ("earlier is more engaged").
	row.FirstPurchaseHour = e.window.Hours()
	var firstPurchase time.Time
	for i := range payments {
		txn := &payments[i]
		if txn.TxnTime.After(boundary) {
			continue
		}
		amt := amountFloat(txn)
		if txn.Refund {
			row.RevenueD7 -= amt
			continue
		}
		row.RevenueD7 += amt
		row.PurchaseCountD7++
		if amt > row.MaxTxnUSD {
			row.MaxTxnUSD = amt
		}
		if firstPurchase.IsZero() || txn.TxnTime.Before(firstPurchase) {
			firstPurchase = txn.TxnTime
		}
	}
	if !firstPurchase.IsZero() {
		row.FirstPurchaseHour = firstPurchase.Sub(install).Hours()
	}

	if p.Channel != organicChannel {
		row.PaidInstall = 1
	}
	row.ChannelScore = hashToUnit(p.Channel)

	row.LTVD30 = netRevenueBefore(payments, install.Add(horizonD30))
	row.LTVD60 = netRevenueBefore(payments, install.Add(horizonD60))
	row.LTVD90 = netRevenueBefore(payments, install.Add(horizonD90))
	return row
}

// netRevenueBefore sums net standardized revenue with txn_time <= cutoff.
func netRevenueBefore(payments []model.PaymentTxn, cutoff time.Time) float64 {
	var net float64
	for i := range payments {
		if payments[i].TxnTime.After(cutoff) {
			continue
		}
		amt := amountFloat(&payments[i])
		if payments[i].Refund {
			net -= amt
		} else {
			net += amt
		}
	}
	return net
}

// amountFloat prefers the standardized amount, falling back to the raw one
// for inputs that skipped the cleaning pipeline (tests, already-USD data).
func amountFloat(txn *model.PaymentTxn) float64 {
	if !txn.AmountUSD.IsZero() {
		f, _ := txn.AmountUSD.Float64()
		return f
	}
	f, _ := txn.Amount.Float64()
	return f
}

// hashToUnit deterministically hashes a string into [0,1).
func hashToUnit(s string) float64 {
	if s == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return float64(h.Sum32()) / float64(^uint32(0))
}
