package ingest_test

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/playsignal/pltv/internal/ingest"
)

func TestReadPlayers(t *testing.T) {
	Convey("Given a well-formed players file", t, func() {
		input := strings.NewReader(strings.Join([]string{
			"user_id,install_time,channel,campaign,country,os,consent",
			"u1,2024-10-01T12:00:00Z,organic,,US,ios,true",
			"u2,1727784000,meta_ads,fall-promo,DE,android,0",
		}, "\n"))

		Convey("When parsing it", func() {
			players, report, err := ingest.ReadPlayers(input)
			So(err, ShouldBeNil)

			Convey("Then both rows parse with typed fields", func() {
				So(report.RowsRead, ShouldEqual, 2)
				So(report.RowsBad, ShouldEqual, 0)
				So(len(players), ShouldEqual, 2)
				So(players[0].UserID, ShouldEqual, "u1")
				So(players[0].InstallTime.Equal(time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)), ShouldBeTrue)
				So(players[0].Consent, ShouldBeTrue)
				So(players[1].Campaign, ShouldEqual, "fall-promo")
				So(players[1].Consent, ShouldBeFalse)
			})
		})
	})

	Convey("Given a file missing a required column", t, func() {
		input := strings.NewReader("user_id,install_time,channel\nu1,2024-10-01T12:00:00Z,organic\n")

		Convey("When parsing it", func() {
			_, _, err := ingest.ReadPlayers(input)

			Convey("Then the file is rejected before any row is read", func() {
				So(err, ShouldWrap, ingest.ErrMissingColumn)
			})
		})
	})

	Convey("Given an empty input", t, func() {
		_, _, err := ingest.ReadPlayers(strings.NewReader(""))
		So(err, ShouldWrap, ingest.ErrEmptyInput)
	})

	Convey("Given a file with a truncated row", t, func() {
		input := strings.NewReader(strings.Join([]string{
			"user_id,install_time,channel,campaign,country,os,consent",
			"u1,2024-10-01T12:00:00Z",
			"u2,2024-10-01T12:00:00Z,organic,,US,ios,true",
		}, "\n"))

		Convey("When parsing it", func() {
			players, report, err := ingest.ReadPlayers(input)

			Convey("Then the truncated row is counted, not fatal", func() {
				So(err, ShouldBeNil)
				So(len(players), ShouldEqual, 1)
				So(players[0].UserID, ShouldEqual, "u2")
				So(report.RowsBad, ShouldEqual, 1)
				So(report.Errors[0].Line, ShouldEqual, 2)
			})
		})
	})

	Convey("Given a file with one unparsable row", t, func() {
		input := strings.NewReader(strings.Join([]string{
			"user_id,install_time,channel,campaign,country,os,consent",
			"u1,not-a-time,organic,,US,ios,true",
			"u2,2024-10-01T12:00:00Z,organic,,US,ios,true",
		}, "\n"))

		Convey("When parsing it", func() {
			players, report, err := ingest.ReadPlayers(input)

			Convey("Then the bad row is counted, not fatal", func() {
				So(err, ShouldBeNil)
				So(len(players), ShouldEqual, 1)
				So(report.RowsBad, ShouldEqual, 1)
				So(len(report.Errors), ShouldEqual, 1)
				So(report.Errors[0].Line, ShouldEqual, 2)
			})
		})
	})
}

func TestReadEvents(t *testing.T) {
	Convey("Given an events file with extra numeric columns", t, func() {
		input := strings.NewReader(strings.Join([]string{
			"user_id,event_name,session_id,server_time,duration_min,level",
			"u1,session_start,s1,2024-10-01T12:00:00Z,12.5,",
			"u1,level_up,s1,2024-10-01T12:05:00Z,,7",
			"u1,quest_complete,s1,2024-10-01T12:10:00Z,,",
		}, "\n"))

		Convey("When parsing it", func() {
			events, report, err := ingest.ReadEvents(input)
			So(err, ShouldBeNil)

			Convey("Then extra columns become numeric params", func() {
				So(report.RowsRead, ShouldEqual, 3)
				So(len(events), ShouldEqual, 3)
				So(events[0].Params["duration_min"], ShouldEqual, 12.5)
				So(events[1].Params["level"], ShouldEqual, 7)
			})

			Convey("And blank cells produce no param entry", func() {
				_, hasLevel := events[0].Params["level"]
				So(hasLevel, ShouldBeFalse)
				So(events[2].Params, ShouldBeNil)
			})
		})
	})

	Convey("Given an events file with ragged rows", t, func() {
		input := strings.NewReader(strings.Join([]string{
			"user_id,event_name,session_id,server_time",
			"u1,session_start",
			"u1,session_start,s1,2024-10-01T12:00:00Z",
			"u1,level_up,s1,2024-10-01T12:05:00Z,extra",
		}, "\n"))

		Convey("When parsing it", func() {
			events, report, err := ingest.ReadEvents(input)

			Convey("Then short and long rows are counted, not fatal", func() {
				So(err, ShouldBeNil)
				So(len(events), ShouldEqual, 1)
				So(events[0].SessionID, ShouldEqual, "s1")
				So(report.RowsBad, ShouldEqual, 2)
				So(report.Errors[0].Line, ShouldEqual, 2)
				So(report.Errors[1].Line, ShouldEqual, 4)
			})
		})
	})

	Convey("Given an events file missing the session column", t, func() {
		input := strings.NewReader("user_id,event_name,server_time\nu1,session_start,2024-10-01T12:00:00Z\n")
		_, _, err := ingest.ReadEvents(input)
		So(err, ShouldWrap, ingest.ErrMissingColumn)
	})
}

func TestReadPayments(t *testing.T) {
	Convey("Given a payments file with refunds and mixed case", t, func() {
		input := strings.NewReader(strings.Join([]string{
			"user_id,amount,currency,channel,refund,txn_time",
			"u1,9.99,usd,appstore,false,2024-10-02T08:00:00Z",
			"u1,9.99,USD,appstore,true,2024-10-04T08:00:00Z",
			"u2,19.90,eur,playstore,no,2024-10-03T08:00:00Z",
		}, "\n"))

		Convey("When parsing it", func() {
			txns, report, err := ingest.ReadPayments(input)
			So(err, ShouldBeNil)

			Convey("Then amounts parse as exact decimals", func() {
				So(report.RowsRead, ShouldEqual, 3)
				So(len(txns), ShouldEqual, 3)
				So(txns[0].Amount.Equal(decimal.NewFromFloat(9.99)), ShouldBeTrue)
				So(txns[0].Currency, ShouldEqual, "USD")
				So(txns[2].Currency, ShouldEqual, "EUR")
			})

			Convey("And refund flags parse", func() {
				So(txns[0].Refund, ShouldBeFalse)
				So(txns[1].Refund, ShouldBeTrue)
				So(txns[2].Refund, ShouldBeFalse)
			})

			Convey("And the standardized amount stays unset at ingestion", func() {
				So(txns[0].AmountUSD.IsZero(), ShouldBeTrue)
			})
		})
	})

	Convey("Given a payments file with a garbage amount", t, func() {
		input := strings.NewReader(strings.Join([]string{
			"user_id,amount,currency,channel,refund,txn_time",
			"u1,lots,USD,appstore,false,2024-10-02T08:00:00Z",
		}, "\n"))

		Convey("When parsing it", func() {
			txns, report, err := ingest.ReadPayments(input)
			So(err, ShouldBeNil)
			So(len(txns), ShouldEqual, 0)
			So(report.RowsBad, ShouldEqual, 1)
		})
	})
}
