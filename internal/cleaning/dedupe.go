// Package cleaning runs the fixed-order data cleaning stages and produces a
// CleaningReport. No stage fails; every problem is a counter in the report.
package cleaning

import (
	"strconv"
	"strings"

	"github.com/playsignal/pltv/internal/domain/model"
)

// batchDeduper records seen composite keys for at-most-once retention within
// a batch. A batch is bounded by construction, so the seen set is unbounded.
type batchDeduper struct {
	seen map[string]struct{}
}

func newBatchDeduper(hint int) *batchDeduper {
	return &batchDeduper{seen: make(map[string]struct{}, hint)}
}

// seenAndRecord checks if key was seen and records it if not.
// Returns true if key was already seen, false if it was newly recorded.
func (d *batchDeduper) seenAndRecord(key string) bool {
	if _, ok := d.seen[key]; ok {
		return true
	}
	d.seen[key] = struct{}{}
	return false
}

// eventKey is the composite dedup key: (user_id, session_id, event_time,
// event_name). First occurrence wins.
func eventKey(e *model.Event) string {
	var b strings.Builder
	b.WriteString(e.UserID)
	b.WriteByte(0x1f)
	b.WriteString(e.SessionID)
	b.WriteByte(0x1f)
	b.WriteString(strconv.FormatInt(e.ServerTime.UnixNano(), 10))
	b.WriteByte(0x1f)
	b.WriteString(e.Name)
	return b.String()
}
