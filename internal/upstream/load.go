package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"gridwatch/internal/logger"
	"gridwatch/internal/model"
)

// LoadSource is an actual or forecast load curve provider.
type LoadSource string

const (
	LoadActual      LoadSource = "actual"
	LoadGBE         LoadSource = "gbe"
	LoadMeteologica LoadSource = "meteologica"
	LoadTesla       LoadSource = "tesla"
)

// LoadSources lists every supported source.
var LoadSources = []LoadSource{LoadActual, LoadGBE, LoadMeteologica, LoadTesla}

// Regions maps dashboard region names to upstream region names.
var Regions = map[string]string{
	"RTO":          "PJM RTO Total",
	"Mid-Atlantic": "Mid-Atlantic Region",
	"Western":      "Western Region",
	"Southern":     "Southern Region",
}

// RegionName resolves a dashboard region; unknown names pass through.
func RegionName(region string) string {
	if name, ok := Regions[region]; ok {
		return name
	}
	return region
}

// ParseLoadSource validates s.
func ParseLoadSource(s string) (LoadSource, error) {
	for _, src := range LoadSources {
		if string(src) == strings.ToLower(strings.TrimSpace(s)) {
			return src, nil
		}
	}
	return "", fmt.Errorf("unknown load source %q", s)
}

func loadPath(src LoadSource, day string) string {
	switch src {
	case LoadTesla:
		return "/load/pjm/tesla/tesla/current/" + day
	case LoadMeteologica:
		return "/load/pjm/meteologica/" + day
	case LoadGBE:
		return "/load/pjm/gbe/" + day
	default:
		return "/load/5min/pjm/regions/" + day
	}
}

type loadRecord struct {
	Name      string   `json:"name"`
	OprHour   *float64 `json:"oprHour"`
	OprMinute *float64 `json:"oprMinute"`
	LoadValue *float64 `json:"loadValue"`
}

type forecastPoint struct {
	HourEnding int     `json:"hourEnding"`
	LoadLevel  float64 `json:"loadLevel"`
}

type loadResponse struct {
	LoadCurves map[string]struct {
		Loads []forecastPoint `json:"loads"`
	} `json:"loadCurves"`
	Loads []loadRecord `json:"loads"`
}

// FetchLoad fetches one region's load curve for date from src, sorted by time of day.
func (c *Client) FetchLoad(ctx context.Context, src LoadSource, date time.Time, region string) ([]model.LoadPoint, error) {
	body, err := c.get(ctx, "load", loadPath(src, FormatDate(date)))
	if err != nil {
		return nil, &FetchError{Kind: "load", Err: err}
	}
	var points []model.LoadPoint
	if src == LoadActual {
		points = ParseActualLoad(body, region)
	} else {
		points = ParseForecastLoad(body, region)
	}
	c.log.WithFields(logger.Fields{"source": src, "region": region, "points": len(points)}).Debug("load parsed")
	return points, nil
}

// ParseActualLoad reads the 5-minute regional load, served either as CSV
// (header, then hour,minute,value) or as JSON records filtered by region.
func ParseActualLoad(raw []byte, region string) []model.LoadPoint {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return []model.LoadPoint{}
	}
	name := RegionName(region)
	points := []model.LoadPoint{}

	switch raw[0] {
	case '[':
		var recs []loadRecord
		if err := json.Unmarshal(raw, &recs); err == nil {
			points = appendLoadRecords(points, recs, name)
		}
	case '{':
		var resp loadResponse
		if err := json.Unmarshal(raw, &resp); err == nil {
			points = appendLoadRecords(points, resp.Loads, name)
		}
	default:
		for i, row := range readRows(raw) {
			if i == 0 || len(row) < 3 {
				continue
			}
			h, errH := strconv.ParseFloat(strings.TrimSpace(row[0]), 64)
			m, errM := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
			v, errV := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
			if errH != nil || errM != nil || errV != nil {
				continue
			}
			points = append(points, model.LoadPoint{Timestamp: loadTimestamp(int(h), int(m)), Value: v})
		}
	}
	sortLoad(points)
	return points
}

func appendLoadRecords(points []model.LoadPoint, recs []loadRecord, name string) []model.LoadPoint {
	for _, r := range recs {
		if r.Name != name || r.OprHour == nil || r.OprMinute == nil || r.LoadValue == nil {
			continue
		}
		points = append(points, model.LoadPoint{
			Timestamp: loadTimestamp(int(*r.OprHour), int(*r.OprMinute)),
			Value:     *r.LoadValue,
		})
	}
	return points
}

// ParseForecastLoad reads an hourly forecast curve. Forecast hour-endings are
// two hours behind the dashboard clock and are plotted at half past.
func ParseForecastLoad(raw []byte, region string) []model.LoadPoint {
	var resp loadResponse
	if err := json.Unmarshal(raw, &resp); err != nil || resp.LoadCurves == nil {
		return []model.LoadPoint{}
	}
	curve, ok := resp.LoadCurves[RegionName(region)]
	if !ok {
		return []model.LoadPoint{}
	}
	points := make([]model.LoadPoint, 0, len(curve.Loads))
	for _, p := range curve.Loads {
		he := model.HourEnding(p.HourEnding + 1)
		points = append(points, model.LoadPoint{Timestamp: loadTimestamp(he-1, 30), Value: p.LoadLevel})
	}
	sortLoad(points)
	return points
}

// loadTimestamp renders an upstream hour, shifted back one hour, as "HH:MM".
func loadTimestamp(hour, minute int) string {
	return fmt.Sprintf("%02d:%02d", ((hour+23)%24+24)%24, minute)
}

func sortLoad(points []model.LoadPoint) {
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp < points[j].Timestamp
	})
}
