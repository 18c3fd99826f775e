package models

// ScopeRequest selects the venue and date the dashboard polls.
type ScopeRequest struct {
	Venue string `json:"venue" binding:"required"`
	Date  string `json:"date" binding:"required"` // YYYY-MM-DD
}

// IntervalRequest toggles the constraint scope to one 5-minute interval.
type IntervalRequest struct {
	HE     int `json:"he" binding:"required,min=1,max=24"`
	Minute int `json:"minute" binding:"min=0,max=59"`
}

// GridQuery filters the grid view.
type GridQuery struct {
	Filter string `form:"filter"` // All, Peak, Off Peak or 1-24; empty is Peak
	Top    int    `form:"top"`    // number of top-spread hours, default 5
}

// IntervalsQuery selects the hour-ending of the sub-hourly series.
type IntervalsQuery struct {
	HE int `form:"he" binding:"min=0,max=24"` // 0 = current hour-ending
}

// LoadQuery selects a load curve.
type LoadQuery struct {
	Date   string `form:"date" binding:"required"` // MMDDYYYY or YYYY-MM-DD
	Region string `form:"region"`                  // default RTO
	Source string `form:"source"`                  // default actual
}
