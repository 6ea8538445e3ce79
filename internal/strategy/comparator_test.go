package strategy_test

import (
	"context"
	"fmt"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/playsignal/pltv/internal/domain/model"
	"github.com/playsignal/pltv/internal/strategy"
)

// labeledRows builds n rows with strictly decreasing D60 labels so the true
// top-K is unambiguous: u000 is the most valuable user.
func labeledRows(n int) []model.FeatureRow {
	rows := make([]model.FeatureRow, n)
	for i := range rows {
		rows[i] = model.FeatureRow{
			UserID:    fmt.Sprintf("u%03d", i),
			Consent:   true,
			RevenueD7: float64(n-i) / 2,
			LTVD60:    float64(n - i),
		}
	}
	return rows
}

// oracle scores by the true label itself.
func oracle() strategy.Def {
	return strategy.Def{
		Name:  "oracle",
		Score: func(r *model.FeatureRow) float64 { return r.LTVD60 },
	}
}

// inverse ranks users exactly backwards.
func inverse() strategy.Def {
	return strategy.Def{
		Name:  "inverse",
		Score: func(r *model.FeatureRow) float64 { return -r.LTVD60 },
	}
}

func selection(res *strategy.ComparisonResult, name string, k int) strategy.SelectionMetrics {
	for _, s := range res.Selections {
		if s.Strategy == name && s.K == k {
			return s
		}
	}
	return strategy.SelectionMetrics{}
}

func TestComparator_Run(t *testing.T) {
	Convey("Given 100 rows with distinct labels", t, func() {
		rows := labeledRows(100)
		comp := strategy.NewComparator()

		Convey("When comparing an oracle against an inverse ranking", func() {
			res, err := comp.Run(context.Background(), rows, []strategy.Def{oracle(), inverse()}, []strategy.KSpec{{Count: 10}})
			So(err, ShouldBeNil)

			Convey("Then the oracle recalls the true top-K perfectly", func() {
				s := selection(res, "oracle", 10)
				So(s.Recall, ShouldEqual, 1)
				So(s.Precision, ShouldEqual, 1)
				So(s.LiftVsReference, ShouldEqual, 1) // oracle is the reference
			})

			Convey("And its value captured equals the true top-K share", func() {
				s := selection(res, "oracle", 10)
				// Sum of 100..91 over sum of 100..1.
				So(s.ValueCaptured, ShouldAlmostEqual, 955.0/5050.0, 1e-9)
				So(s.MeanLabel, ShouldAlmostEqual, 95.5, 1e-9)
			})

			Convey("And the inverse ranking captures the bottom of the curve", func() {
				s := selection(res, "inverse", 10)
				So(s.Recall, ShouldEqual, 0)
				So(s.ValueCaptured, ShouldAlmostEqual, 55.0/5050.0, 1e-9)
				So(s.LiftVsRandom, ShouldBeLessThan, 1)
			})

			Convey("And their selections are disjoint", func() {
				So(len(res.Overlaps), ShouldEqual, 1)
				So(res.Overlaps[0].Jaccard, ShouldEqual, 0)
			})
		})

		Convey("When a strategy is compared against itself under two names", func() {
			twin := oracle()
			twin.Name = "twin"
			res, err := comp.Run(context.Background(), rows, []strategy.Def{oracle(), twin}, []strategy.KSpec{{Count: 10}})
			So(err, ShouldBeNil)

			Convey("Then their Jaccard overlap is exactly 1", func() {
				So(res.Overlaps[0].Jaccard, ShouldEqual, 1)
			})
		})

		Convey("When K exceeds the population", func() {
			res, err := comp.Run(context.Background(), rows, []strategy.Def{oracle()}, []strategy.KSpec{{Count: 1000}})
			So(err, ShouldBeNil)

			Convey("Then K clamps to the population size", func() {
				s := selection(res, "oracle", 100)
				So(s.Size, ShouldEqual, 100)
				So(s.ValueCaptured, ShouldAlmostEqual, 1, 1e-9)
			})
		})

		Convey("When percent-based K is used", func() {
			res, err := comp.Run(context.Background(), rows, []strategy.Def{oracle()}, []strategy.KSpec{{Percent: 5}})
			So(err, ShouldBeNil)
			So(selection(res, "oracle", 5).Size, ShouldEqual, 5)
		})

		Convey("When a small percent rounds below one row", func() {
			res, err := comp.Run(context.Background(), rows, []strategy.Def{oracle()}, []strategy.KSpec{{Percent: 0.1}})
			So(err, ShouldBeNil)

			Convey("Then the selection clamps up to a single row", func() {
				s := selection(res, "oracle", 1)
				So(s.Size, ShouldEqual, 1)
				So(s.Recall, ShouldEqual, 1)
			})
		})
	})
}

func TestComparator_Validation(t *testing.T) {
	Convey("Given a comparator", t, func() {
		rows := labeledRows(10)
		comp := strategy.NewComparator()

		Convey("When no strategies are given", func() {
			_, err := comp.Run(context.Background(), rows, nil, []strategy.KSpec{{Count: 5}})
			So(err, ShouldWrap, strategy.ErrNoStrategies)
		})

		Convey("When no rows are given", func() {
			_, err := comp.Run(context.Background(), nil, []strategy.Def{oracle()}, []strategy.KSpec{{Count: 5}})
			So(err, ShouldWrap, strategy.ErrInvalidComparison)
		})

		Convey("When K is not positive", func() {
			_, err := comp.Run(context.Background(), rows, []strategy.Def{oracle()}, []strategy.KSpec{{Count: 0}})
			So(err, ShouldWrap, strategy.ErrInvalidComparison)
		})

		Convey("When percent exceeds 100", func() {
			_, err := comp.Run(context.Background(), rows, []strategy.Def{oracle()}, []strategy.KSpec{{Percent: 120}})
			So(err, ShouldWrap, strategy.ErrInvalidComparison)
		})

		Convey("When two strategies share a name", func() {
			_, err := comp.Run(context.Background(), rows, []strategy.Def{oracle(), oracle()}, []strategy.KSpec{{Count: 5}})
			So(err, ShouldWrap, strategy.ErrInvalidComparison)
		})

		Convey("When the reference strategy is not in the set", func() {
			ref := strategy.NewComparator(strategy.WithReference("missing"))
			_, err := ref.Run(context.Background(), rows, []strategy.Def{oracle()}, []strategy.KSpec{{Count: 5}})
			So(err, ShouldWrap, strategy.ErrInvalidComparison)
		})

		Convey("When the target label key is unknown", func() {
			odd := strategy.NewComparator(strategy.WithTarget("ltv_d45"))
			_, err := odd.Run(context.Background(), rows, []strategy.Def{oracle()}, []strategy.KSpec{{Count: 5}})
			So(err, ShouldWrap, strategy.ErrInvalidComparison)
		})
	})
}

func TestStrategy_Defs(t *testing.T) {
	Convey("Given the built-in strategy constructors", t, func() {
		rows := labeledRows(20)

		Convey("When wrapping scored model output", func() {
			scored := []model.ScoredUser{{UserID: "u000", Predicted: 42}}
			def := strategy.FromScored("model", scored)

			Convey("Then known users score and unknown users score zero", func() {
				So(def.Score(&rows[0]), ShouldEqual, 42)
				So(def.Score(&rows[5]), ShouldEqual, 0)
			})
		})

		Convey("When using the revenue proxy", func() {
			def := strategy.RevenueProxy()
			So(def.Score(&rows[0]), ShouldEqual, rows[0].RevenueD7)
		})

		Convey("When degrading a base strategy with noise", func() {
			noisy := strategy.Noisy("noisy", oracle(), 7, 10)

			Convey("Then the noise is deterministic per user", func() {
				So(noisy.Score(&rows[0]), ShouldEqual, noisy.Score(&rows[0]))
				So(noisy.Score(&rows[0]), ShouldNotEqual, oracle().Score(&rows[0]))
			})

			Convey("And a different seed shifts scores differently", func() {
				other := strategy.Noisy("other", oracle(), 8, 10)
				So(other.Score(&rows[0]), ShouldNotEqual, noisy.Score(&rows[0]))
			})
		})
	})
}
