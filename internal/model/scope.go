package model

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date format used by scopes and the API.
const DateLayout = "2006-01-02"

// Scope is the selection a polling session is bound to. Results fetched for
// one Scope are never applied once a different Scope is selected.
type Scope struct {
	Venue string `json:"venue"`
	Date  string `json:"date"`
}

// Day parses Date in DateLayout.
func (s Scope) Day() (time.Time, error) {
	t, err := time.Parse(DateLayout, s.Date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD): %w", s.Date, err)
	}
	return t, nil
}

func (s Scope) String() string {
	return s.Venue + "@" + s.Date
}

// ConstraintScope selects either the current constraints (zero value) or the
// constraints of one 5-minute interval.
type ConstraintScope struct {
	Date       string `json:"date,omitempty"`
	HourEnding int    `json:"hour_ending,omitempty"`
	Minute     int    `json:"minute,omitempty"`
}

// CurrentConstraints is the "current" constraint scope.
func CurrentConstraints() ConstraintScope {
	return ConstraintScope{}
}

// IntervalConstraints scopes constraints to (date, hour-ending, minute).
func IntervalConstraints(date string, he, minute int) ConstraintScope {
	return ConstraintScope{Date: date, HourEnding: he, Minute: IntervalStart(minute)}
}

func (c ConstraintScope) IsCurrent() bool {
	return c.HourEnding == 0
}

func (c ConstraintScope) String() string {
	if c.IsCurrent() {
		return "current"
	}
	return fmt.Sprintf("%s HE%d :%02d", c.Date, c.HourEnding, c.Minute)
}

// HourEnding converts an operating hour (0..23) to hour-ending (1..24).
func HourEnding(hour int) int {
	he := ((hour+1)%HoursPerDay + HoursPerDay) % HoursPerDay
	if he == 0 {
		return HoursPerDay
	}
	return he
}

// OperatingHour is the inverse of HourEnding.
func OperatingHour(he int) int {
	return ((he-1)%HoursPerDay + HoursPerDay) % HoursPerDay
}

// IntervalStart floors minute to the start of its 5-minute interval.
func IntervalStart(minute int) int {
	if minute < 0 {
		return 0
	}
	return minute / IntervalMinutes * IntervalMinutes
}
