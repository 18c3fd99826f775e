package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"gridwatch/internal/logger"
	"gridwatch/internal/model"
)

// constraintRecord keeps every field raw so one drifted field type degrades
// that field instead of dropping the record.
type constraintRecord struct {
	ID                json.RawMessage `json:"id"`
	OprDate           json.RawMessage `json:"oprDate"`
	OprHour           json.RawMessage `json:"oprHour"`
	OprMinute         json.RawMessage `json:"oprMinute"`
	ShadowPrice       json.RawMessage `json:"shadowPrice"`
	Contingency       json.RawMessage `json:"contingency"`
	FacilityID        json.RawMessage `json:"facilityId"`
	Facility          json.RawMessage `json:"facility"`
	ControllingAction json.RawMessage `json:"controllingAction"`
}

type constraintsResponse struct {
	Payload []json.RawMessage `json:"payload"`
}

// ConstraintsPath returns the upstream path for scope.
func ConstraintsPath(scope model.ConstraintScope) (string, error) {
	if scope.IsCurrent() {
		return "/constraints/pjm/iso/current", nil
	}
	day, err := time.Parse(model.DateLayout, scope.Date)
	if err != nil {
		return "", fmt.Errorf("invalid constraint date %q: %w", scope.Date, err)
	}
	return fmt.Sprintf("/constraints/pjm/iso/interval/%s/%d/%d",
		FormatDate(day), model.OperatingHour(scope.HourEnding), model.IntervalStart(scope.Minute)), nil
}

// FetchConstraints fetches the constraint list for scope. The returned
// snapshot carries scope even when the list is empty.
func (c *Client) FetchConstraints(ctx context.Context, scope model.ConstraintScope) (snap model.ConstraintsSnapshot, err error) {
	start := time.Now()
	defer func() { err = c.observe(model.KindConstraints, start, err) }()

	path, err := ConstraintsPath(scope)
	if err != nil {
		return model.ConstraintsSnapshot{Scope: scope}, err
	}
	body, err := c.get(ctx, model.KindConstraints, path)
	if err != nil {
		return model.ConstraintsSnapshot{Scope: scope}, err
	}
	snap, skipped := parseConstraints(body)
	snap.Scope = scope
	fields := logger.Fields{"scope": scope.String(), "count": len(snap.Items), "skipped": skipped}
	if skipped > 0 {
		c.log.WithFields(fields).Warn("skipped constraint records that are not objects")
	} else {
		c.log.WithFields(fields).Debug("constraints parsed")
	}
	return snap, nil
}

// ParseConstraints decodes the constraint payload in upstream order, deriving
// hour-ending and interval. A field of the wrong type is read leniently or left
// unknown; only records that are not JSON objects are skipped. A malformed
// document yields an empty list.
func ParseConstraints(raw []byte) model.ConstraintsSnapshot {
	snap, _ := parseConstraints(raw)
	return snap
}

func parseConstraints(raw []byte) (model.ConstraintsSnapshot, int) {
	var resp constraintsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return model.ConstraintsSnapshot{Items: []model.Constraint{}}, 0
	}
	items := make([]model.Constraint, 0, len(resp.Payload))
	skipped := 0
	for _, r := range resp.Payload {
		var rec constraintRecord
		if err := json.Unmarshal(r, &rec); err != nil {
			skipped++
			continue
		}
		items = append(items, rec.constraint())
	}
	return model.ConstraintsSnapshot{Items: items}, skipped
}

// constraint converts rec. HourEnding 0 marks an unreadable operating hour.
func (rec constraintRecord) constraint() model.Constraint {
	c := model.Constraint{
		ID:                rawString(rec.ID),
		OprDate:           rawString(rec.OprDate),
		ShadowPrice:       rawNumber(rec.ShadowPrice).Round2(),
		Contingency:       rawString(rec.Contingency),
		Facility:          rawString(rec.Facility),
		ControllingAction: rawString(rec.ControllingAction),
	}
	if v, ok := rawInt(rec.FacilityID); ok {
		c.FacilityID = v
	}
	if h, ok := rawInt(rec.OprHour); ok {
		c.OprHour = h
		c.HourEnding = model.HourEnding(h)
	}
	if m, ok := rawInt(rec.OprMinute); ok {
		c.OprMinute = m
		c.Interval = model.IntervalStart(m)
	}
	return c
}

// rawString reads a JSON string, or the literal text of a number or bool.
func rawString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	}
	if raw[0] == '{' || raw[0] == '[' {
		return ""
	}
	return string(raw)
}

// rawInt reads an integral number or numeric string.
func rawInt(raw json.RawMessage) (int, bool) {
	v := rawNumber(raw)
	if !v.OK || v.V != math.Trunc(v.V) {
		return 0, false
	}
	return int(v.V), true
}
