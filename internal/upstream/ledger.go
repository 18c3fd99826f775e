package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"time"

	"gridwatch/internal/logger"
	"gridwatch/internal/model"
)

const ledgerPath = "/dispatches/pjm/today"

type dispatchPayload struct {
	DispatchTimestamp string                     `json:"dispatchTimestamp"`
	DispatchMap       map[string]json.RawMessage `json:"dispatchMap"`
}

type dispatchResponse struct {
	Payload []dispatchPayload `json:"payload"`
}

// timestampLayouts are tried in order when reading dispatch timestamps.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// FetchLedger fetches today's dispatches and keeps only the most recent one.
// A payload without dispatch records yields an empty snapshot.
func (c *Client) FetchLedger(ctx context.Context) (snap model.LedgerSnapshot, err error) {
	start := time.Now()
	defer func() { err = c.observe(model.KindLedger, start, err) }()

	body, err := c.get(ctx, model.KindLedger, ledgerPath)
	if err != nil {
		return model.LedgerSnapshot{}, err
	}
	snap = ParseLedger(body)
	c.log.WithFields(logger.Fields{"timestamp": snap.Timestamp, "zones": len(snap.Entries)}).Debug("ledger parsed")
	return snap, nil
}

// ParseLedger selects the dispatch with the latest timestamp and flattens its
// zone map into entries sorted ascending by dispatch value. Malformed input
// yields an empty snapshot.
func ParseLedger(raw []byte) model.LedgerSnapshot {
	var resp dispatchResponse
	if err := json.Unmarshal(raw, &resp); err != nil || len(resp.Payload) == 0 {
		return model.LedgerSnapshot{}
	}

	latest := resp.Payload[0]
	latestAt, _ := parseTimestamp(latest.DispatchTimestamp)
	for _, p := range resp.Payload[1:] {
		at, ok := parseTimestamp(p.DispatchTimestamp)
		if ok && at.After(latestAt) {
			latest, latestAt = p, at
		}
	}

	he, interval := 0, 0
	if at, ok := parseTimestamp(latest.DispatchTimestamp); ok {
		he, interval = dispatchHourEnding(at)
	}

	snap := model.LedgerSnapshot{
		Timestamp: latest.DispatchTimestamp,
		Entries:   make([]model.LedgerEntry, 0, len(latest.DispatchMap)),
	}
	for zone, v := range latest.DispatchMap {
		snap.Entries = append(snap.Entries, model.LedgerEntry{
			Zone:       zone,
			Dispatch:   rawNumber(v).Round2(),
			Timestamp:  latest.DispatchTimestamp,
			HourEnding: he,
			Interval:   interval,
		})
	}
	model.SortLedger(snap.Entries)
	return snap
}

// dispatchHourEnding maps a dispatch time, in its own offset, to hour-ending
// and 5-minute interval start.
func dispatchHourEnding(t time.Time) (int, int) {
	return model.HourEnding(t.Hour()), model.IntervalStart(t.Minute())
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// rawNumber reads a JSON number, or a string holding one. Anything else is unknown.
func rawNumber(raw json.RawMessage) model.Value {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return model.Unknown
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return model.Unknown
		}
		return parseValue(s)
	}
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return model.Unknown
	}
	return model.Known(f)
}
