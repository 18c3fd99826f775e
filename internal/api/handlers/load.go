package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gridwatch/internal/api/models"
	"gridwatch/internal/model"
	"gridwatch/internal/upstream"
)

// LoadFetcher fetches load curves on demand.
type LoadFetcher interface {
	FetchLoad(ctx context.Context, src upstream.LoadSource, date time.Time, region string) ([]model.LoadPoint, error)
}

// LoadHandler handles load curve requests
type LoadHandler struct {
	fetcher LoadFetcher
}

// NewLoadHandler creates a new load handler
func NewLoadHandler(fetcher LoadFetcher) *LoadHandler {
	return &LoadHandler{fetcher: fetcher}
}

// GetLoad handles GET /api/v1/load
func (h *LoadHandler) GetLoad(c *gin.Context) {
	var q models.LoadQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "INVALID_REQUEST", err.Error())
		return
	}
	if q.Region == "" {
		q.Region = "RTO"
	}
	if q.Source == "" {
		q.Source = string(upstream.LoadActual)
	}
	src, err := upstream.ParseLoadSource(q.Source)
	if err != nil {
		badRequest(c, "INVALID_SOURCE", err.Error())
		return
	}
	if _, ok := upstream.Regions[q.Region]; !ok {
		badRequest(c, "INVALID_REGION", "region must be one of RTO, Mid-Atlantic, Western, Southern")
		return
	}
	date, err := parseLoadDate(q.Date)
	if err != nil {
		badRequest(c, "INVALID_DATE", "date must be in MMDDYYYY or YYYY-MM-DD format")
		return
	}

	points, err := h.fetcher.FetchLoad(c.Request.Context(), src, date, q.Region)
	if err != nil {
		c.JSON(http.StatusBadGateway, models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    "UPSTREAM_ERROR",
				Message: err.Error(),
				Details: map[string]interface{}{"status_code": upstream.StatusCode(err)},
			},
		})
		return
	}
	c.JSON(http.StatusOK, models.LoadResponse{
		Source: string(src),
		Region: q.Region,
		Date:   date.Format(model.DateLayout),
		Points: points,
	})
}

func parseLoadDate(s string) (time.Time, error) {
	if t, err := time.Parse("01022006", s); err == nil {
		return t, nil
	}
	return time.Parse(model.DateLayout, s)
}
