// Package ingest parses the three tabular inputs (players, events, payments)
// into typed domain entities. It is the only boundary operation of the
// pipeline: a file either parses atomically or is rejected up front.
//
// Header validation is a precondition: a missing required column rejects the
// file with a typed error before any row is read. Individual bad rows do not
// fail the file; they are counted and exemplified in the returned Report.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/playsignal/pltv/internal/domain/model"
)

// Required header sets per input.
var (
	playerColumns  = []string{"user_id", "install_time", "channel", "campaign", "country", "os", "consent"}
	eventColumns   = []string{"user_id", "event_name", "session_id", "server_time"}
	paymentColumns = []string{"user_id", "amount", "currency", "channel", "refund", "txn_time"}
)

// maxRowErrors caps the per-file examples kept in a Report.
const maxRowErrors = 20

// RowError records a single unparsable row.
type RowError struct {
	Line int
	Err  error
}

// Report summarizes a single file ingestion.
type Report struct {
	RowsRead int
	RowsBad  int
	Errors   []RowError
}

func (r *Report) addRowError(line int, err error) {
	r.RowsBad++
	if len(r.Errors) < maxRowErrors {
		r.Errors = append(r.Errors, RowError{Line: line, Err: err})
	}
}

// header reads and validates the header row against required columns,
// returning a column-name -> index mapping.
func header(cr *csv.Reader, required []string) (map[string]int, error) {
	record, err := cr.Read()
	if err == io.EOF {
		return nil, ErrEmptyInput
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(record))
	for i, name := range record {
		idx[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}
	return idx, nil
}

// parseTime accepts RFC3339 or unix seconds.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", s)
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "t", "yes", "y":
		return true
	default:
		return false
	}
}

// ReadPlayers parses the players file.
func ReadPlayers(r io.Reader) ([]model.Player, *Report, error) {
	cr := csv.NewReader(r)

	idx, err := header(cr, playerColumns)
	if err != nil {
		return nil, nil, err
	}

	report := &Report{}
	var players []model.Player
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			report.addRowError(line, err)
			continue
		}
		report.RowsRead++

		install, err := parseTime(record[idx["install_time"]])
		if err != nil {
			report.addRowError(line, err)
			continue
		}
		players = append(players, model.Player{
			UserID:      strings.TrimSpace(record[idx["user_id"]]),
			InstallTime: install,
			Channel:     strings.TrimSpace(record[idx["channel"]]),
			Campaign:    strings.TrimSpace(record[idx["campaign"]]),
			Country:     strings.TrimSpace(record[idx["country"]]),
			OS:          strings.TrimSpace(record[idx["os"]]),
			Consent:     parseBool(record[idx["consent"]]),
		})
	}
	return players, report, nil
}

// ReadEvents parses the events file. Columns beyond the required set are
// treated as numeric event parameters keyed by header name; blank or
// non-numeric cells are skipped.
func ReadEvents(r io.Reader) ([]model.Event, *Report, error) {
	cr := csv.NewReader(r)

	idx, err := header(cr, eventColumns)
	if err != nil {
		return nil, nil, err
	}

	required := make(map[int]bool, len(eventColumns))
	for _, col := range eventColumns {
		required[idx[col]] = true
	}
	paramName := make(map[int]string)
	for name, i := range idx {
		if !required[i] {
			paramName[i] = name
		}
	}

	report := &Report{}
	var events []model.Event
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			report.addRowError(line, err)
			continue
		}
		report.RowsRead++

		ts, err := parseTime(record[idx["server_time"]])
		if err != nil {
			report.addRowError(line, err)
			continue
		}
		ev := model.Event{
			UserID:     strings.TrimSpace(record[idx["user_id"]]),
			Name:       strings.TrimSpace(record[idx["event_name"]]),
			SessionID:  strings.TrimSpace(record[idx["session_id"]]),
			ServerTime: ts,
		}
		for i, name := range paramName {
			if v, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64); err == nil {
				if ev.Params == nil {
					ev.Params = make(map[string]float64)
				}
				ev.Params[name] = v
			}
		}
		events = append(events, ev)
	}
	return events, report, nil
}

// ReadPayments parses the payments file.
func ReadPayments(r io.Reader) ([]model.PaymentTxn, *Report, error) {
	cr := csv.NewReader(r)

	idx, err := header(cr, paymentColumns)
	if err != nil {
		return nil, nil, err
	}

	report := &Report{}
	var txns []model.PaymentTxn
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			report.addRowError(line, err)
			continue
		}
		report.RowsRead++

		amount, err := decimal.NewFromString(strings.TrimSpace(record[idx["amount"]]))
		if err != nil {
			report.addRowError(line, fmt.Errorf("unparsable amount: %w", err))
			continue
		}
		ts, err := parseTime(record[idx["txn_time"]])
		if err != nil {
			report.addRowError(line, err)
			continue
		}
		txns = append(txns, model.PaymentTxn{
			UserID:   strings.TrimSpace(record[idx["user_id"]]),
			Amount:   amount,
			Currency: strings.ToUpper(strings.TrimSpace(record[idx["currency"]])),
			Channel:  strings.TrimSpace(record[idx["channel"]]),
			Refund:   parseBool(record[idx["refund"]]),
			TxnTime:  ts,
		})
	}
	return txns, report, nil
}
