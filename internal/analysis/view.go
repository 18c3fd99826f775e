// Package analysis derives display views from retained grid snapshots.
// Every function here is pure: views are recomputed from the snapshot and
// the selected filter, never cached.
package analysis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gridwatch/internal/model"
)

// FilterKind selects which hour-ending rows a view shows.
type FilterKind int

const (
	FilterAll FilterKind = iota
	FilterPeak
	FilterOffPeak
	FilterHour
)

// Filter is a parsed row filter. Hour is set only for FilterHour.
type Filter struct {
	Kind FilterKind
	Hour int
}

var (
	All     = Filter{Kind: FilterAll}
	Peak    = Filter{Kind: FilterPeak}
	OffPeak = Filter{Kind: FilterOffPeak}
)

// ParseFilter accepts "All", "Peak", "Off Peak" or an hour-ending 1..24.
// An empty string is Peak, the view the dashboard opens on.
func ParseFilter(s string) (Filter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "all":
		return All, nil
	case "", "peak":
		return Peak, nil
	case "off peak", "offpeak", "off-peak", "off_peak":
		return OffPeak, nil
	}
	he, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || he < 1 || he > model.HoursPerDay {
		return Filter{}, fmt.Errorf("invalid filter %q (expected All, Peak, Off Peak or 1-24)", s)
	}
	return Filter{Kind: FilterHour, Hour: he}, nil
}

func (f Filter) String() string {
	switch f.Kind {
	case FilterPeak:
		return "Peak"
	case FilterOffPeak:
		return "Off Peak"
	case FilterHour:
		return strconv.Itoa(f.Hour)
	}
	return "All"
}

// Match reports whether hour-ending he passes the filter.
// Peak is HE 8-23; off peak is HE 1-7 and 24.
func (f Filter) Match(he int) bool {
	switch f.Kind {
	case FilterPeak:
		return he >= 8 && he <= 23
	case FilterOffPeak:
		return he <= 7 || he == 24
	case FilterHour:
		return he == f.Hour
	}
	return true
}

// ViewRow is a grid row with its Combo column: RT when known, else DA.
type ViewRow struct {
	model.GridRow
	Combo model.Value
}

func (r ViewRow) MarshalJSON() ([]byte, error) {
	raw, err := r.GridRow.MarshalJSON()
	if err != nil {
		return nil, err
	}
	combo, err := json.Marshal(r.Combo)
	if err != nil {
		return nil, err
	}
	// Insert Combo before the closing brace.
	out := make([]byte, 0, len(raw)+len(combo)+10)
	out = append(out, raw[:len(raw)-1]...)
	out = append(out, `,"Combo":`...)
	out = append(out, combo...)
	return append(out, '}'), nil
}

// Averages holds the per-column means of a view's known values.
type Averages struct {
	RT     model.Value `json:"RT"`
	DA     model.Value `json:"DA"`
	Combo  model.Value `json:"Combo"`
	Spread model.Value `json:"DA/RT"`
}

// View is a filtered grid with its trailing Avg row.
type View struct {
	Filter string    `json:"filter"`
	Rows   []ViewRow `json:"rows"`
	Avg    Averages  `json:"avg"`
}

// FilterGrid applies f to g and averages the RT, DA, Combo and spread columns.
func FilterGrid(g model.GridSnapshot, f Filter) View {
	v := View{Filter: f.String(), Rows: make([]ViewRow, 0, model.HoursPerDay)}
	var rt, da, combo, spread []model.Value
	for _, row := range g.Rows {
		if !f.Match(row.HE) {
			continue
		}
		vr := ViewRow{GridRow: row, Combo: row.RT.Or(row.DA)}
		v.Rows = append(v.Rows, vr)
		rt = append(rt, row.RT)
		da = append(da, row.DA)
		combo = append(combo, vr.Combo)
		spread = append(spread, row.Spread)
	}
	v.Avg = Averages{
		RT:     model.Mean(rt...).Round2(),
		DA:     model.Mean(da...).Round2(),
		Combo:  model.Mean(combo...).Round2(),
		Spread: model.Mean(spread...).Round2(),
	}
	return v
}

// CurrentHE is the latest hour-ending with a known real-time price, or 1.
func CurrentHE(g model.GridSnapshot) int {
	he := 1
	for _, row := range g.Rows {
		if row.RT.OK && row.HE > he {
			he = row.HE
		}
	}
	return he
}

// IntervalSeries returns the twelve 5-minute values of hour-ending he.
// he == 0 selects CurrentHE.
func IntervalSeries(g model.GridSnapshot, he int) (int, [model.IntervalsPerHour]model.Value) {
	if he == 0 {
		he = CurrentHE(g)
	}
	row, ok := g.Row(he)
	if !ok {
		return he, [model.IntervalsPerHour]model.Value{}
	}
	return he, row.Minutes
}
