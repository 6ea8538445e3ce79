package strategy_test

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/playsignal/pltv/internal/features"
	"github.com/playsignal/pltv/internal/strategy"
)

var activationCfg = strategy.ActivationConfig{
	Budget:         10_000,
	BaseCPI:        2.5,
	AdsSensitivity: 0.5,
	SeedSize:       10,
	HorizonDays:    30,
}

func TestSimulateActivation(t *testing.T) {
	Convey("Given 100 consented rows with distinct labels", t, func() {
		rows := labeledRows(100)
		comp := strategy.NewComparator()

		Convey("When simulating an oracle seed against an inverse seed", func() {
			out, err := comp.SimulateActivation(context.Background(), rows, []strategy.Def{oracle(), inverse()}, activationCfg)
			So(err, ShouldBeNil)
			So(len(out), ShouldEqual, 2)

			Convey("Then the better seed buys cheaper installs", func() {
				So(out[0].Strategy, ShouldEqual, "oracle")
				So(out[0].ConcentrationLift, ShouldBeGreaterThan, 1)
				So(out[0].CPI, ShouldBeLessThan, activationCfg.BaseCPI)
				So(out[1].ConcentrationLift, ShouldBeLessThan, 1)
				So(out[0].Installs, ShouldBeGreaterThan, out[1].Installs)
				So(out[0].TotalRevenue, ShouldBeGreaterThan, out[1].TotalRevenue)
			})

			Convey("And the CPI never drops below the floor", func() {
				So(out[0].CPI, ShouldBeGreaterThanOrEqualTo, 0.2*activationCfg.BaseCPI)
			})

			Convey("And the revenue curve is cumulative out to the horizon", func() {
				curve := out[0].RevenueByDay
				So(len(curve), ShouldEqual, 30)
				for i := 1; i < len(curve); i++ {
					So(curve[i], ShouldBeGreaterThanOrEqualTo, curve[i-1])
				}
				So(curve[len(curve)-1], ShouldEqual, out[0].TotalRevenue)
				So(out[0].ROAS, ShouldAlmostEqual, out[0].TotalRevenue/activationCfg.Budget, 1e-9)
			})

			Convey("And the run is deterministic", func() {
				again, err := comp.SimulateActivation(context.Background(), rows, []strategy.Def{oracle(), inverse()}, activationCfg)
				So(err, ShouldBeNil)
				So(again, ShouldResemble, out)
			})
		})

		Convey("When most users have not consented", func() {
			restricted := labeledRows(100)
			for i := range restricted {
				restricted[i].Consent = i < 4
			}
			out, err := comp.SimulateActivation(context.Background(), restricted, []strategy.Def{oracle()}, activationCfg)
			So(err, ShouldBeNil)

			Convey("Then the seed clamps to the consented population", func() {
				So(out[0].SeedSize, ShouldEqual, 4)
			})
		})

		Convey("When nobody has consented", func() {
			none := labeledRows(10)
			for i := range none {
				none[i].Consent = false
			}
			_, err := comp.SimulateActivation(context.Background(), none, []strategy.Def{oracle()}, activationCfg)

			Convey("Then the simulation is rejected", func() {
				So(err, ShouldWrap, strategy.ErrInvalidActivation)
			})
		})

		Convey("When the configuration is out of bounds", func() {
			bad := activationCfg
			bad.Budget = 0
			_, err := comp.SimulateActivation(context.Background(), rows, []strategy.Def{oracle()}, bad)
			So(err, ShouldWrap, strategy.ErrInvalidActivation)

			bad = activationCfg
			bad.AdsSensitivity = 3
			_, err = comp.SimulateActivation(context.Background(), rows, []strategy.Def{oracle()}, bad)
			So(err, ShouldWrap, strategy.ErrInvalidActivation)
		})
	})
}

func TestOfflineAnalysis(t *testing.T) {
	Convey("Given 100 rows with distinct labels", t, func() {
		rows := labeledRows(100)
		comp := strategy.NewComparator()

		Convey("When analyzing an oracle and an inverse ranking at 10%", func() {
			out, err := comp.OfflineAnalysis(context.Background(), rows, []strategy.Def{oracle(), inverse()}, strategy.KSpec{Percent: 10})
			So(err, ShouldBeNil)
			So(len(out), ShouldEqual, 2)

			Convey("Then the oracle's selection is all whales", func() {
				So(out[0].Strategy, ShouldEqual, "oracle")
				So(out[0].K, ShouldEqual, 10)
				So(out[0].PrecisionAtK, ShouldEqual, 1)
				So(out[0].WhaleThreshold, ShouldBeGreaterThan, 0)
			})

			Convey("And rank correlations sit at the extremes", func() {
				So(out[0].Spearman, ShouldAlmostEqual, 1, 1e-9)
				So(out[1].Spearman, ShouldAlmostEqual, -1, 1e-9)
			})

			Convey("And revenue captured favors the oracle", func() {
				So(out[0].RevenueCaptured, ShouldBeGreaterThan, out[1].RevenueCaptured)
			})
		})

		Convey("When the K spec is left zero", func() {
			out, err := comp.OfflineAnalysis(context.Background(), rows, []strategy.Def{oracle()}, strategy.KSpec{})
			So(err, ShouldBeNil)

			Convey("Then it defaults to 10% of the population", func() {
				So(out[0].K, ShouldEqual, 10)
			})
		})
	})
}

func TestHeuristic(t *testing.T) {
	Convey("Given the feature catalog", t, func() {
		catalog, err := features.Default()
		So(err, ShouldBeNil)
		rows := labeledRows(10)

		Convey("When building a weighted-sum heuristic", func() {
			def, err := strategy.Heuristic("engagement", catalog, map[string]float64{
				"revenue_d7": 2.0,
			})
			So(err, ShouldBeNil)

			Convey("Then it scores by the weighted features", func() {
				So(def.Score(&rows[0]), ShouldEqual, 2*rows[0].RevenueD7)
			})
		})

		Convey("When a weight references an unknown feature", func() {
			_, err := strategy.Heuristic("bad", catalog, map[string]float64{"hat_size": 1})

			Convey("Then construction fails", func() {
				So(err, ShouldWrap, features.ErrUnknownFeature)
			})
		})
	})
}
