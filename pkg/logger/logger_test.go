package logger_test

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/playsignal/pltv/pkg/logger"
)

func TestLogger(t *testing.T) {
	Convey("Given an initialized global logger", t, func() {
		So(logger.Init(), ShouldBeNil)

		Convey("When getting the global logger", func() {
			log := logger.Get()

			Convey("Then it logs at every level without panicking", func() {
				ctx := context.Background()
				So(func() {
					log.Debug(ctx, "debug message", logger.String("k", "v"))
					log.Info(ctx, "info message", logger.Int("n", 1))
					log.Warn(ctx, "warn message", logger.Float64("f", 1.5))
					log.Error(ctx, "error message", logger.Any("v", []int{1, 2}))
				}, ShouldNotPanic)
			})
		})

		Convey("When creating named loggers", func() {
			named := logger.Named("cleaning")

			Convey("Then nesting works", func() {
				So(named, ShouldNotBeNil)
				So(named.Named("dedupe"), ShouldNotBeNil)
			})
		})

		Convey("When setting the level from a string", func() {
			Convey("Then known levels are accepted", func() {
				for _, lvl := range []string{"debug", "info", "warn", "warning", "error", "", "  INFO  "} {
					So(logger.SetLevelString(lvl), ShouldBeNil)
				}
			})

			Convey("And unknown levels are rejected", func() {
				So(logger.SetLevelString("loud"), ShouldNotBeNil)
			})
		})
	})

	Convey("Given the no-op logger", t, func() {
		nop := logger.Nop()

		Convey("Then it accepts everything silently", func() {
			So(func() {
				nop.Info(context.Background(), "dropped", logger.Error(nil))
				nop.Named("child").Debug(context.Background(), "also dropped")
			}, ShouldNotPanic)
		})
	})
}

func TestFields(t *testing.T) {
	Convey("Given the field constructors", t, func() {
		Convey("Then each carries its key and value", func() {
			So(logger.String("a", "b"), ShouldResemble, logger.Field{Key: "a", Value: "b"})
			So(logger.Int("n", 3).Key, ShouldEqual, "n")
			So(logger.Int64("n", 3).Value, ShouldEqual, int64(3))
			So(logger.Float64("f", 2.5).Value, ShouldEqual, 2.5)
			So(logger.Error(nil).Key, ShouldEqual, "error")
		})
	})
}
