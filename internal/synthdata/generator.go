// Package synthdata generates deterministic synthetic players, events, and
// payments for demos and scenario tests. Everything derives from a seeded
// source: two generators with the same configuration emit identical batches.
package synthdata

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/playsignal/pltv/internal/domain/model"
	"github.com/playsignal/pltv/internal/features"
	"github.com/playsignal/pltv/pkg/logger"
)

// Default generation parameters.
const (
	defaultPlayers   = 500
	defaultPayerFrac = 0.10
	defaultSpanDays  = 28
	defaultSeed      = 7
)

// Payer value range, matching the shape of a freemium LTV distribution:
// many small payers, a few large ones.
const (
	minPayerLTV = 5.0
	maxPayerLTV = 500.0
)

const eurRate = 1.1 // synthetic EUR->USD rate; cleaning receives the same table

var channels = []string{"organic", "meta_ads", "google_uac", "unity_ads"}
var countries = []string{"US", "DE", "JP", "BR"}
var oses = []string{"ios", "android"}

// Generator emits one synthetic batch per call to Generate.
type Generator struct {
	seed      int64
	players   int
	payerFrac float64
	start     time.Time
	spanDays  int
	logger    logger.Logger
}

// Option applies a configuration option to the Generator.
type Option func(*Generator)

// WithSeed sets the deterministic seed.
func WithSeed(seed int64) Option {
	return func(g *Generator) { g.seed = seed }
}

// WithPlayers sets the number of players to generate.
func WithPlayers(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.players = n
		}
	}
}

// WithPayerFraction sets the share of players who ever pay.
func WithPayerFraction(frac float64) Option {
	return func(g *Generator) {
		if frac >= 0 && frac <= 1 {
			g.payerFrac = frac
		}
	}
}

// WithStart sets the first install date.
func WithStart(t time.Time) Option {
	return func(g *Generator) {
		if !t.IsZero() {
			g.start = t.UTC()
		}
	}
}

// WithSpanDays spreads installs over this many days.
func WithSpanDays(days int) Option {
	return func(g *Generator) {
		if days > 0 {
			g.spanDays = days
		}
	}
}

// WithLogger sets a custom logger for the generator.
func WithLogger(l logger.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// New creates a generator with configuration options.
func New(opts ...Option) *Generator {
	g := &Generator{
		seed:      defaultSeed,
		players:   defaultPlayers,
		payerFrac: defaultPayerFrac,
		start:     time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC),
		spanDays:  defaultSpanDays,
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Rates returns the currency table matching the generated payments.
func (g *Generator) Rates() map[string]model.Amount {
	return map[string]model.Amount{
		"USD": decimal.NewFromInt(1),
		"EUR": decimal.NewFromFloat(eurRate),
	}
}

// Generate emits the batch. User ids are name-based UUIDs so the same
// configuration always yields the same identities.
func (g *Generator) Generate(ctx context.Context) ([]model.Player, []model.Event, []model.PaymentTxn) {
	rng := rand.New(rand.NewSource(g.seed)) //nolint:gosec // deterministic seed for reproducible batches

	players := make([]model.Player, 0, g.players)
	var events []model.Event
	var payments []model.PaymentTxn

	for i := 0; i < g.players; i++ {
		userID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("player-%d", i))).String()
		install := g.start.AddDate(0, 0, rng.Intn(g.spanDays)).
			Add(time.Duration(rng.Intn(24*3600)) * time.Second)

		p := model.Player{
			UserID:      userID,
			InstallTime: install,
			Channel:     channels[rng.Intn(len(channels))],
			Country:     countries[rng.Intn(len(countries))],
			OS:          oses[rng.Intn(len(oses))],
			Consent:     rng.Float64() < 0.9,
		}
		if p.Channel != "organic" {
			p.Campaign = fmt.Sprintf("%s-campaign-%d", p.Channel, rng.Intn(4))
		}
		players = append(players, p)

		isPayer := rng.Float64() < g.payerFrac
		// Payers are more engaged; engagement drives event volume.
		engagement := rng.Float64() * 0.6
		var ltv float64
		if isPayer {
			engagement += 0.4
			u := rng.Float64()
			ltv = minPayerLTV + u*u*(maxPayerLTV-minPayerLTV)
		}

		events = append(events, g.playerEvents(rng, &p, engagement)...)
		if isPayer {
			payments = append(payments, g.playerPayments(rng, &p, ltv)...)
		}
	}

	g.logger.Info(ctx, "synthetic batch generated",
		logger.Int("players", len(players)),
		logger.Int("events", len(events)),
		logger.Int("payments", len(payments)),
	)
	return players, events, payments
}

func (g *Generator) playerEvents(rng *rand.Rand, p *model.Player, engagement float64) []model.Event {
	var out []model.Event
	activeDays := 1 + int(engagement*6)
	level := 1.0

	for day := 0; day < activeDays; day++ {
		sessions := 1 + rng.Intn(1+int(engagement*3))
		for s := 0; s < sessions; s++ {
			sessionID := fmt.Sprintf("%s-d%d-s%d", p.UserID[:8], day, s)
			at := p.InstallTime.Add(time.Duration(day)*24*time.Hour +
				time.Duration(rng.Intn(16*3600))*time.Second)

			out = append(out, model.Event{
				UserID: p.UserID, Name: features.EventSessionStart, SessionID: sessionID,
				ServerTime: at,
				Params:     map[string]float64{features.ParamDurationMin: 3 + engagement*float64(rng.Intn(25))},
			})
			if rng.Float64() < 0.5+engagement/2 {
				level += 1
				out = append(out, model.Event{
					UserID: p.UserID, Name: features.EventLevelUp, SessionID: sessionID,
					ServerTime: at.Add(2 * time.Minute),
					Params:     map[string]float64{features.ParamLevel: level},
				})
			}
			if rng.Float64() < engagement {
				out = append(out, model.Event{
					UserID: p.UserID, Name: features.EventQuestComplete, SessionID: sessionID,
					ServerTime: at.Add(5 * time.Minute),
				})
			}
			out = append(out, model.Event{
				UserID: p.UserID, Name: features.EventCurrencyEarn, SessionID: sessionID,
				ServerTime: at.Add(6 * time.Minute),
				Params:     map[string]float64{features.ParamAmount: 50 + engagement*float64(rng.Intn(200))},
			})
			if rng.Float64() < 0.6 {
				out = append(out, model.Event{
					UserID: p.UserID, Name: features.EventCurrencySpend, SessionID: sessionID,
					ServerTime: at.Add(8 * time.Minute),
					Params:     map[string]float64{features.ParamAmount: 20 + engagement*float64(rng.Intn(120))},
				})
			}
			if rng.Float64() < engagement/3 {
				out = append(out, model.Event{
					UserID: p.UserID, Name: features.EventFriendAdd, SessionID: sessionID,
					ServerTime: at.Add(9 * time.Minute),
				})
			}
		}
	}
	return out
}

// playerPayments spreads a payer's lifetime value over transactions: a
// front-loaded share inside the first week (early spend correlates with
// eventual value), the rest through day 55, with the occasional refund.
func (g *Generator) playerPayments(rng *rand.Rand, p *model.Player, ltv float64) []model.PaymentTxn {
	var out []model.PaymentTxn

	currency := "USD"
	rate := 1.0
	if rng.Float64() < 0.3 {
		currency = "EUR"
		rate = eurRate
	}

	emit := func(usd float64, at time.Time, refund bool) {
		out = append(out, model.PaymentTxn{
			UserID:   p.UserID,
			Amount:   decimal.NewFromFloat(usd / rate).Round(2),
			Currency: currency,
			Channel:  "appstore",
			Refund:   refund,
			TxnTime:  at,
		})
	}

	earlyShare := 0.3 + rng.Float64()*0.4
	early := ltv * earlyShare
	txns := 1 + rng.Intn(3)
	for i := 0; i < txns; i++ {
		at := p.InstallTime.Add(time.Duration(rng.Intn(7*24*3600)) * time.Second)
		emit(early/float64(txns), at, false)
	}

	rest := ltv - early
	for rest > 1 {
		amount := rest * (0.2 + rng.Float64()*0.5)
		at := p.InstallTime.Add(time.Duration(8*24*3600+rng.Intn(47*24*3600)) * time.Second)
		emit(amount, at, false)
		rest -= amount
	}

	if rng.Float64() < 0.05 && len(out) > 0 {
		first := out[0]
		emit(mustFloat(first.Amount)*rate, first.TxnTime.Add(48*time.Hour), true)
	}
	return out
}

func mustFloat(d model.Amount) float64 {
	f, _ := d.Float64()
	return f
}
