package cleaning_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/playsignal/pltv/internal/cleaning"
	"github.com/playsignal/pltv/internal/domain/model"
)

var install = time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)

func testPlayers() []model.Player {
	return []model.Player{
		{UserID: "u1", InstallTime: install, Channel: "organic", Country: "US", OS: "ios", Consent: true},
		{UserID: "u2", InstallTime: install, Channel: "meta_ads", Country: "DE", OS: "android", Consent: false},
	}
}

func event(user, session, name string, at time.Time) model.Event {
	return model.Event{UserID: user, SessionID: session, Name: name, ServerTime: at}
}

func TestClean_Deduplication(t *testing.T) {
	Convey("Given a batch with exact duplicate events", t, func() {
		players := testPlayers()
		at := install.Add(time.Hour)
		events := []model.Event{
			event("u1", "s1", "session_start", at),
			event("u1", "s1", "session_start", at),
			event("u1", "s1", "session_start", at),
			event("u1", "s1", "level_up", at),
			event("u1", "s2", "session_start", at),
		}
		p := cleaning.New()

		Convey("When cleaning the batch", func() {
			kept, _, report := p.Clean(context.Background(), players, events, nil)

			Convey("Then only the first occurrence of each key survives", func() {
				So(report.DuplicatesRemoved, ShouldEqual, 2)
				So(len(kept), ShouldEqual, 3)
			})

			Convey("And cleaning the cleaned output again is a no-op", func() {
				again, _, second := p.Clean(context.Background(), players, kept, nil)
				So(second.DuplicatesRemoved, ShouldEqual, 0)
				So(second.QuarantinedTotal(), ShouldEqual, 0)
				So(len(again), ShouldEqual, len(kept))
			})
		})
	})

	Convey("Given events differing only in one key component", t, func() {
		players := testPlayers()
		at := install.Add(time.Hour)
		events := []model.Event{
			event("u1", "s1", "session_start", at),
			event("u2", "s1", "session_start", at),
			event("u1", "s2", "session_start", at),
			event("u1", "s1", "level_up", at),
			event("u1", "s1", "session_start", at.Add(time.Second)),
		}

		Convey("When cleaning the batch", func() {
			kept, _, report := cleaning.New().Clean(context.Background(), players, events, nil)

			Convey("Then none of them are duplicates", func() {
				So(report.DuplicatesRemoved, ShouldEqual, 0)
				So(len(kept), ShouldEqual, 5)
			})
		})
	})
}

func TestClean_Quarantine(t *testing.T) {
	Convey("Given events around the quarantine boundaries", t, func() {
		players := testPlayers()
		p := cleaning.New(
			cleaning.WithDriftTolerance(time.Hour),
			cleaning.WithHorizon(62*24*time.Hour),
		)
		events := []model.Event{
			event("u1", "s1", "session_start", install.Add(-30*time.Minute)), // inside drift
			event("u1", "s2", "session_start", install.Add(-2*time.Hour)),    // pre-install
			event("u1", "s3", "session_start", install.Add(63*24*time.Hour)), // past horizon
			event("ghost", "s4", "session_start", install.Add(time.Hour)),    // unknown user
			event("u2", "s5", "session_start", install.Add(10*24*time.Hour)), // fine
		}

		Convey("When cleaning the batch", func() {
			kept, _, report := p.Clean(context.Background(), players, events, nil)

			Convey("Then each reason is counted separately", func() {
				So(report.QuarantinedPreInstall, ShouldEqual, 1)
				So(report.QuarantinedPostHorizon, ShouldEqual, 1)
				So(report.QuarantinedUnknownUser, ShouldEqual, 1)
				So(report.QuarantinedTotal(), ShouldEqual, 3)
				So(len(kept), ShouldEqual, 2)
			})

			Convey("And consent counts cover every player", func() {
				So(report.ConsentedPlayers, ShouldEqual, 1)
				So(report.NonConsentedPlayers, ShouldEqual, 1)
			})
		})
	})
}

func TestClean_RevenueStandardization(t *testing.T) {
	Convey("Given payments in multiple currencies with a refund", t, func() {
		players := testPlayers()
		rates := map[string]model.Amount{
			"USD": decimal.NewFromInt(1),
			"EUR": decimal.NewFromFloat(1.1),
		}
		at := install.Add(24 * time.Hour)
		payments := []model.PaymentTxn{
			{UserID: "u1", Amount: decimal.NewFromFloat(10), Currency: "USD", TxnTime: at},
			{UserID: "u1", Amount: decimal.NewFromFloat(20), Currency: "EUR", TxnTime: at},
			{UserID: "u1", Amount: decimal.NewFromFloat(10), Currency: "USD", TxnTime: at, Refund: true},
			{UserID: "u2", Amount: decimal.NewFromFloat(5), Currency: "GBP", TxnTime: at},
		}
		p := cleaning.New(cleaning.WithRates(rates))

		Convey("When cleaning the batch", func() {
			_, txns, report := p.Clean(context.Background(), players, nil, payments)

			Convey("Then amounts convert into the base currency exactly", func() {
				So(report.GrossRevenueUSD.Equal(decimal.NewFromFloat(32)), ShouldBeTrue)
				So(report.RefundedRevenueUSD.Equal(decimal.NewFromFloat(10)), ShouldBeTrue)
				So(report.NetRevenueUSD.Equal(decimal.NewFromFloat(22)), ShouldBeTrue)
			})

			Convey("And the refund is retained, not deleted", func() {
				So(report.RefundsNetted, ShouldEqual, 1)
				So(len(txns), ShouldEqual, 3)
			})

			Convey("And the unknown currency is quarantined", func() {
				So(report.QuarantinedUnknownCurrency, ShouldEqual, 1)
				So(report.TxnsConverted, ShouldEqual, 3)
			})
		})
	})
}

func TestClean_SchemaValidation(t *testing.T) {
	Convey("Given events with missing fields that quarantine would drop", t, func() {
		players := testPlayers()
		at := install.Add(time.Hour)
		events := []model.Event{
			{UserID: "", SessionID: "s1", Name: "session_start", ServerTime: at},
			{UserID: "u1", SessionID: "s1", Name: "", ServerTime: at},
			{UserID: "u1", SessionID: "", Name: "session_start"},
		}

		Convey("When cleaning the batch", func() {
			kept, _, report := cleaning.New().Clean(context.Background(), players, events, nil)

			Convey("Then every null field is counted even on quarantined rows", func() {
				So(report.NullFieldCounts["user_id"], ShouldEqual, 1)
				So(report.NullFieldCounts["event_name"], ShouldEqual, 1)
				So(report.NullFieldCounts["session_id"], ShouldEqual, 1)
				So(report.NullFieldCounts["event_time"], ShouldEqual, 1)
			})

			Convey("And quarantine still drops the broken rows", func() {
				So(report.QuarantinedUnknownUser, ShouldEqual, 1)
				So(report.QuarantinedPreInstall, ShouldEqual, 1)
				So(len(kept), ShouldEqual, 1)
			})
		})
	})
}

func TestClean_VolumeAnomalies(t *testing.T) {
	Convey("Given a day with a large volume spike", t, func() {
		players := testPlayers()
		var events []model.Event
		// Five quiet days, one loud one.
		for day := 0; day < 5; day++ {
			for i := 0; i < 10; i++ {
				events = append(events, event("u1", "s", "session_start",
					install.Add(time.Duration(day)*24*time.Hour+time.Duration(i)*time.Minute)))
			}
		}
		for i := 0; i < 200; i++ {
			events = append(events, event("u1", "spike", "session_start",
				install.Add(5*24*time.Hour+time.Duration(i)*time.Minute)))
		}
		p := cleaning.New(cleaning.WithAnomalyThreshold(2))

		Convey("When cleaning the batch", func() {
			_, _, report := p.Clean(context.Background(), players, events, nil)

			Convey("Then the spike day is flagged", func() {
				So(len(report.VolumeAnomalies), ShouldEqual, 1)
				So(report.VolumeAnomalies[0].Count, ShouldEqual, 200)
				So(report.VolumeAnomalies[0].ZScore, ShouldBeGreaterThan, 2)
			})
		})
	})

	Convey("Given a single-day batch", t, func() {
		players := testPlayers()
		events := []model.Event{event("u1", "s1", "session_start", install.Add(time.Hour))}

		Convey("When cleaning the batch", func() {
			_, _, report := cleaning.New().Clean(context.Background(), players, events, nil)

			Convey("Then no anomaly can be flagged", func() {
				So(report.VolumeAnomalies, ShouldBeEmpty)
			})
		})
	})
}

func TestClean_NeverFails(t *testing.T) {
	Convey("Given a batch where every event is quarantined", t, func() {
		players := testPlayers()
		events := []model.Event{
			event("ghost1", "s1", "session_start", install),
			event("ghost2", "s2", "session_start", install),
		}

		Convey("When cleaning the batch", func() {
			kept, _, report := cleaning.New().Clean(context.Background(), players, events, nil)

			Convey("Then the pass completes with counters, not an error", func() {
				So(len(kept), ShouldEqual, 0)
				So(report.QuarantinedUnknownUser, ShouldEqual, 2)
				So(report.InputEvents, ShouldEqual, 2)
				So(report.OutputEvents, ShouldEqual, 0)
			})
		})
	})

	Convey("Given an entirely empty batch", t, func() {
		Convey("When cleaning it", func() {
			kept, txns, report := cleaning.New().Clean(context.Background(), nil, nil, nil)

			Convey("Then everything is zero", func() {
				So(kept, ShouldBeEmpty)
				So(txns, ShouldBeEmpty)
				So(report.DuplicatesRemoved, ShouldEqual, 0)
				So(report.QuarantinedTotal(), ShouldEqual, 0)
			})
		})
	})
}
