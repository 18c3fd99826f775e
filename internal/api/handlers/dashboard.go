package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"gridwatch/internal/analysis"
	"gridwatch/internal/api/models"
	"gridwatch/internal/export"
	"gridwatch/internal/model"
	"gridwatch/internal/poller"
)

// Session is the polling session the dashboard reads and steers.
type Session interface {
	ID() string
	State() poller.State
	Scope() model.Scope
	ConstraintScope() model.ConstraintScope
	Status() map[model.Kind]poller.KindStatus
	LastUpdate() string

	Grid() model.GridSnapshot
	Ledger() model.LedgerSnapshot
	Constraints() model.ConstraintsSnapshot

	SetScope(scope model.Scope) error
	ToggleInterval(he, minute int) (model.ConstraintScope, error)
	ResetConstraints() error
	Refresh() error
}

// VenueCatalog knows which venues can be selected.
type VenueCatalog interface {
	VenueNames() []string
	HasVenue(name string) bool
}

// DashboardHandler serves the retained snapshots and scope controls.
type DashboardHandler struct {
	session Session
	venues  VenueCatalog
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(session Session, venues VenueCatalog) *DashboardHandler {
	return &DashboardHandler{session: session, venues: venues}
}

// GetState handles GET /api/v1/state
func (h *DashboardHandler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.state())
}

func (h *DashboardHandler) state() models.StateResponse {
	return models.StateResponse{
		SessionID:       h.session.ID(),
		State:           h.session.State(),
		Scope:           h.session.Scope(),
		ConstraintScope: h.session.ConstraintScope(),
		Status:          h.session.Status(),
		LastUpdate:      h.session.LastUpdate(),
		CurrentHE:       analysis.CurrentHE(h.session.Grid()),
	}
}

// GetGrid handles GET /api/v1/grid
func (h *DashboardHandler) GetGrid(c *gin.Context) {
	var q models.GridQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "INVALID_REQUEST", err.Error())
		return
	}
	filter, err := analysis.ParseFilter(q.Filter)
	if err != nil {
		badRequest(c, "INVALID_FILTER", err.Error())
		return
	}
	top := q.Top
	if top <= 0 {
		top = 5
	}

	grid := h.session.Grid()
	c.JSON(http.StatusOK, models.GridResponse{
		Scope:      h.session.Scope(),
		CurrentHE:  analysis.CurrentHE(grid),
		View:       analysis.FilterGrid(grid, filter),
		Summary:    analysis.Summarize(grid, filter),
		TopSpreads: analysis.RankBySpread(grid, top),
	})
}

// GetGridCSV handles GET /api/v1/grid.csv
func (h *DashboardHandler) GetGridCSV(c *gin.Context) {
	scope := h.session.Scope()
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="grid-`+scope.Date+`.csv"`)
	c.Status(http.StatusOK)
	if err := export.WriteGridCSV(c.Writer, h.session.Grid()); err != nil {
		_ = c.Error(err)
	}
}

// GetIntervals handles GET /api/v1/grid/intervals
func (h *DashboardHandler) GetIntervals(c *gin.Context) {
	var q models.IntervalsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "INVALID_REQUEST", err.Error())
		return
	}
	he, series := analysis.IntervalSeries(h.session.Grid(), q.HE)
	resp := models.IntervalsResponse{HE: he, Intervals: make([]models.IntervalValue, 0, len(series))}
	for i, v := range series {
		resp.Intervals = append(resp.Intervals, models.IntervalValue{Minute: i * model.IntervalMinutes, Value: v})
	}
	c.JSON(http.StatusOK, resp)
}

// GetLedger handles GET /api/v1/ledger
func (h *DashboardHandler) GetLedger(c *gin.Context) {
	l := h.session.Ledger()
	if l.Entries == nil {
		l.Entries = []model.LedgerEntry{}
	}
	c.JSON(http.StatusOK, models.LedgerResponse{Timestamp: l.Timestamp, Entries: l.Entries})
}

// GetConstraints handles GET /api/v1/constraints
func (h *DashboardHandler) GetConstraints(c *gin.Context) {
	cs := h.session.Constraints()
	c.JSON(http.StatusOK, models.ConstraintsResponse{
		Scope:       cs.Scope,
		Current:     cs.Scope.IsCurrent(),
		Constraints: cs.Items,
	})
}

// SetScope handles PUT /api/v1/scope
func (h *DashboardHandler) SetScope(c *gin.Context) {
	var req models.ScopeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST", err.Error())
		return
	}
	if !h.venues.HasVenue(req.Venue) {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    "UNKNOWN_VENUE",
				Message: "venue is not configured",
				Details: map[string]interface{}{"venue": req.Venue, "venues": h.venues.VenueNames()},
			},
		})
		return
	}
	scope := model.Scope{Venue: req.Venue, Date: req.Date}
	if _, err := scope.Day(); err != nil {
		badRequest(c, "INVALID_DATE", "date must be in YYYY-MM-DD format")
		return
	}
	if err := h.session.SetScope(scope); err != nil {
		sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.state())
}

// ToggleConstraintInterval handles PUT /api/v1/constraints/scope
func (h *DashboardHandler) ToggleConstraintInterval(c *gin.Context) {
	var req models.IntervalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST", err.Error())
		return
	}
	if _, err := h.session.ToggleInterval(req.HE, req.Minute); err != nil {
		sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.state())
}

// ResetConstraintScope handles DELETE /api/v1/constraints/scope
func (h *DashboardHandler) ResetConstraintScope(c *gin.Context) {
	if err := h.session.ResetConstraints(); err != nil {
		sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.state())
}

// Refresh handles POST /api/v1/refresh
func (h *DashboardHandler) Refresh(c *gin.Context) {
	err := h.session.Refresh()
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, models.RefreshResponse{Started: true})
	case errors.Is(err, poller.ErrInFlight):
		c.JSON(http.StatusOK, models.RefreshResponse{Started: false, Reason: "a cycle is already in flight"})
	default:
		sessionError(c, err)
	}
}

// ListVenues handles GET /api/v1/venues
func (h *DashboardHandler) ListVenues(c *gin.Context) {
	c.JSON(http.StatusOK, models.VenuesResponse{
		Venues:   h.venues.VenueNames(),
		Selected: h.session.Scope().Venue,
	})
}

func badRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error: models.ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

func sessionError(c *gin.Context, err error) {
	var code string
	switch {
	case errors.Is(err, poller.ErrStopped):
		code = "SESSION_STOPPED"
	case errors.Is(err, poller.ErrNotStarted):
		code = "SESSION_NOT_STARTED"
	default:
		badRequest(c, "INVALID_REQUEST", err.Error())
		return
	}
	c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
		Error: models.ErrorDetail{
			Code:    code,
			Message: err.Error(),
		},
	})
}
