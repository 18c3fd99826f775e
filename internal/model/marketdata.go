package model

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
)

const (
	HoursPerDay      = 24
	IntervalsPerHour = 12
	IntervalMinutes  = 5
)

// Kind names one of the independently polled data kinds.
type Kind string

const (
	KindGrid        Kind = "grid"
	KindLedger      Kind = "ledger"
	KindConstraints Kind = "constraints"
)

// Kinds lists the polled data kinds in cycle order.
var Kinds = []Kind{KindConstraints, KindLedger, KindGrid}

// GridRow is one hour-ending slot of the grid.
// Minutes[i] holds the 5-minute observation starting at minute i*5.
type GridRow struct {
	HE      int
	Minutes [IntervalsPerHour]Value
	RT      Value
	DA      Value
	Spread  Value // RT - DA
}

// MarshalJSON renders the row in the upstream column layout:
// HE, "0".."55", RT, DA, "DA/RT".
func (r GridRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"HE":`)
	buf.WriteString(strconv.Quote(strconv.Itoa(r.HE)))
	for i, v := range r.Minutes {
		if err := writeField(&buf, strconv.Itoa(i*IntervalMinutes), v); err != nil {
			return nil, err
		}
	}
	for _, f := range []struct {
		key string
		v   Value
	}{{"RT", r.RT}, {"DA", r.DA}, {"DA/RT", r.Spread}} {
		if err := writeField(&buf, f.key, f.v); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeField(buf *bytes.Buffer, key string, v Value) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.WriteByte(',')
	buf.WriteString(strconv.Quote(key))
	buf.WriteByte(':')
	buf.Write(raw)
	return nil
}

// GridSnapshot is always exactly 24 slots, hour-ending 1..24.
type GridSnapshot struct {
	Rows [HoursPerDay]GridRow
}

// NewGridSnapshot returns a snapshot with every field unknown.
func NewGridSnapshot() GridSnapshot {
	var g GridSnapshot
	for i := range g.Rows {
		g.Rows[i].HE = i + 1
	}
	return g
}

func (g GridSnapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.Rows[:])
}

// Row returns the slot for hour-ending he (1..24).
func (g GridSnapshot) Row(he int) (GridRow, bool) {
	if he < 1 || he > HoursPerDay {
		return GridRow{}, false
	}
	return g.Rows[he-1], true
}

// LedgerEntry is one zone's dispatch value.
type LedgerEntry struct {
	Zone       string `json:"zone"`
	Dispatch   Value  `json:"dispatch"`
	Timestamp  string `json:"timestamp"`
	HourEnding int    `json:"hour_ending"`
	Interval   int    `json:"interval"`
}

// LedgerSnapshot is one dispatch event. It is replaced atomically, keyed by Timestamp.
type LedgerSnapshot struct {
	Timestamp string        `json:"timestamp"`
	Entries   []LedgerEntry `json:"entries"`
}

func (s LedgerSnapshot) Empty() bool {
	return s.Timestamp == "" && len(s.Entries) == 0
}

func (s LedgerSnapshot) Clone() LedgerSnapshot {
	out := LedgerSnapshot{Timestamp: s.Timestamp}
	if s.Entries != nil {
		out.Entries = append([]LedgerEntry(nil), s.Entries...)
	}
	return out
}

func (s LedgerSnapshot) Equal(o LedgerSnapshot) bool {
	if s.Timestamp != o.Timestamp || len(s.Entries) != len(o.Entries) {
		return false
	}
	for i := range s.Entries {
		if s.Entries[i] != o.Entries[i] {
			return false
		}
	}
	return true
}

// SortLedger orders entries ascending by dispatch value. Unknown values sort
// last; ties break on zone name so the order is stable across polls.
func SortLedger(entries []LedgerEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Dispatch, entries[j].Dispatch
		switch {
		case a.OK && !b.OK:
			return true
		case !a.OK && b.OK:
			return false
		case a.OK && b.OK && a.V != b.V:
			return a.V < b.V
		}
		return entries[i].Zone < entries[j].Zone
	})
}

// Constraint is one binding transmission constraint.
type Constraint struct {
	ID                string `json:"id,omitempty"`
	OprDate           string `json:"opr_date"`
	OprHour           int    `json:"opr_hour"`
	OprMinute         int    `json:"opr_minute"`
	HourEnding        int    `json:"hour_ending"`
	Interval          int    `json:"interval"`
	ShadowPrice       Value  `json:"shadow_price"`
	Contingency       string `json:"contingency"`
	FacilityID        int    `json:"facility_id"`
	Facility          string `json:"facility"`
	ControllingAction string `json:"controlling_action"`
}

// ConstraintsSnapshot is an ordered constraint list for one query scope.
type ConstraintsSnapshot struct {
	Scope ConstraintScope `json:"scope"`
	Items []Constraint    `json:"items"`
}

func (s ConstraintsSnapshot) Clone() ConstraintsSnapshot {
	out := ConstraintsSnapshot{Scope: s.Scope}
	if s.Items != nil {
		out.Items = append([]Constraint(nil), s.Items...)
	}
	return out
}

// Equal compares scope, length and every record in order.
func (s ConstraintsSnapshot) Equal(o ConstraintsSnapshot) bool {
	if s.Scope != o.Scope || len(s.Items) != len(o.Items) {
		return false
	}
	for i := range s.Items {
		if s.Items[i] != o.Items[i] {
			return false
		}
	}
	return true
}

// LoadPoint is one point of a load curve, Timestamp formatted "HH:MM".
type LoadPoint struct {
	Timestamp string  `json:"timestamp"`
	Value     float64 `json:"value"`
}
