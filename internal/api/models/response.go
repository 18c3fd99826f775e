package models

import (
	"gridwatch/internal/analysis"
	"gridwatch/internal/model"
	"gridwatch/internal/poller"
)

// StateResponse describes the polling session.
type StateResponse struct {
	SessionID       string                            `json:"session_id"`
	State           poller.State                      `json:"state"`
	Scope           model.Scope                       `json:"scope"`
	ConstraintScope model.ConstraintScope             `json:"constraint_scope"`
	Status          map[model.Kind]poller.KindStatus `json:"status"`
	LastUpdate      string                            `json:"last_update,omitempty"`
	CurrentHE       int                               `json:"current_he"`
}

// GridResponse is a filtered grid view with summary statistics.
type GridResponse struct {
	Scope      model.Scope           `json:"scope"`
	CurrentHE  int                   `json:"current_he"`
	View       analysis.View         `json:"view"`
	Summary    analysis.Summary      `json:"summary"`
	TopSpreads []analysis.RankedHour `json:"top_spreads"`
}

// IntervalValue is one 5-minute observation.
type IntervalValue struct {
	Minute int         `json:"minute"`
	Value  model.Value `json:"value"`
}

// IntervalsResponse holds the sub-hourly series of one hour-ending.
type IntervalsResponse struct {
	HE        int             `json:"he"`
	Intervals []IntervalValue `json:"intervals"`
}

// LedgerResponse is the retained dispatch ledger.
type LedgerResponse struct {
	Timestamp string              `json:"timestamp"`
	Entries   []model.LedgerEntry `json:"entries"`
}

// ConstraintsResponse is the retained constraint list.
type ConstraintsResponse struct {
	Scope       model.ConstraintScope `json:"scope"`
	Current     bool                  `json:"current"`
	Constraints []model.Constraint    `json:"constraints"`
}

// RefreshResponse reports whether a manual refresh started a cycle.
type RefreshResponse struct {
	Started bool   `json:"started"`
	Reason  string `json:"reason,omitempty"`
}

// VenuesResponse lists selectable venues.
type VenuesResponse struct {
	Venues   []string `json:"venues"`
	Selected string   `json:"selected"`
}

// LoadResponse is one load curve.
type LoadResponse struct {
	Source string            `json:"source"`
	Region string            `json:"region"`
	Date   string            `json:"date"`
	Points []model.LoadPoint `json:"points"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
