package upstream

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"gridwatch/internal/logger"
	"gridwatch/internal/model"
)

// FetchGrid fetches the 24-slot grid for venue on date. A spread venue
// fetches both legs independently and subtracts them. An unknown venue yields
// an all-unknown snapshot.
func (c *Client) FetchGrid(ctx context.Context, venue string, date time.Time) (snap model.GridSnapshot, err error) {
	start := time.Now()
	defer func() { err = c.observe(model.KindGrid, start, err) }()

	if s, ok := c.spreads[venue]; ok {
		return c.fetchSpread(ctx, s, date)
	}
	v, ok := c.venues[venue]
	if !ok {
		c.log.WithField("venue", venue).Warn("unknown venue, returning empty grid")
		return model.NewGridSnapshot(), nil
	}
	return c.fetchVenue(ctx, v, date)
}

func (c *Client) fetchSpread(ctx context.Context, s Spread, date time.Time) (model.GridSnapshot, error) {
	legA, okA := c.venues[s.A]
	legB, okB := c.venues[s.B]
	if !okA || !okB {
		return model.NewGridSnapshot(), fmt.Errorf("spread %q references unknown venue", s.Name)
	}

	var a, b model.GridSnapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		a, err = c.fetchVenue(gctx, legA, date)
		return err
	})
	g.Go(func() error {
		var err error
		b, err = c.fetchVenue(gctx, legB, date)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.NewGridSnapshot(), err
	}
	return SpreadGrid(a, b), nil
}

// fetchVenue issues the real-time and day-ahead requests in parallel; they
// fill disjoint fields so their order does not matter.
func (c *Client) fetchVenue(ctx context.Context, v Venue, date time.Time) (model.GridSnapshot, error) {
	day := FormatDate(date)
	rtPath := fmt.Sprintf("/lmp/5min/pjm/%s/%s/csv", url.PathEscape(v.RTPath), day)
	daPath := fmt.Sprintf("/price/da/pjm/%s/%s/csv", url.PathEscape(v.DAHub), day)

	var rt, da []byte
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rt, err = c.get(gctx, model.KindGrid, rtPath)
		return err
	})
	g.Go(func() error {
		var err error
		da, err = c.get(gctx, model.KindGrid, daPath)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.NewGridSnapshot(), err
	}

	snap := ParseGrid(rt, da)
	c.log.WithFields(logger.Fields{"venue": v.Name, "date": day, "current_he": lastKnownRT(snap)}).Debug("grid parsed")
	return snap, nil
}

// ParseGrid normalizes the real-time CSV (index + twelve 5-minute columns per
// hour) and the day-ahead CSV (one column per hour) into a 24-slot snapshot.
// Rows beyond 24 are ignored; missing rows and cells stay unknown.
func ParseGrid(rtCSV, daCSV []byte) model.GridSnapshot {
	snap := model.NewGridSnapshot()

	for i, row := range readRows(daCSV) {
		if i >= model.HoursPerDay {
			break
		}
		if len(row) > 0 {
			snap.Rows[i].DA = parseValue(row[0]).Round2()
		}
	}

	for i, row := range readRows(rtCSV) {
		if i >= model.HoursPerDay {
			break
		}
		r := &snap.Rows[i]
		raw := make([]model.Value, 0, model.IntervalsPerHour)
		for j := 0; j < model.IntervalsPerHour; j++ {
			v := model.Unknown
			if j+1 < len(row) {
				v = parseValue(row[j+1])
			}
			// Zero means "not yet published" for real-time intervals.
			if v.OK && v.V == 0 {
				v = model.Unknown
			}
			raw = append(raw, v)
			r.Minutes[j] = v.Round2()
		}
		r.RT = model.Mean(raw...).Round2()
		r.Spread = r.RT.Sub(r.DA)
	}
	return snap
}

// SpreadGrid derives every field as a - b, unknown when either side is unknown.
func SpreadGrid(a, b model.GridSnapshot) model.GridSnapshot {
	out := model.NewGridSnapshot()
	for i := range out.Rows {
		ra, rb := a.Rows[i], b.Rows[i]
		r := &out.Rows[i]
		for j := range r.Minutes {
			r.Minutes[j] = ra.Minutes[j].Sub(rb.Minutes[j])
		}
		r.RT = ra.RT.Sub(rb.RT)
		r.DA = ra.DA.Sub(rb.DA)
		r.Spread = ra.Spread.Sub(rb.Spread)
	}
	return out
}

// readRows parses as many CSV records as it can; a malformed tail is dropped.
func readRows(raw []byte) [][]string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		rows = append(rows, rec)
	}
	return rows
}

func parseValue(s string) model.Value {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.Unknown
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return model.Unknown
	}
	return model.Known(f)
}

func lastKnownRT(g model.GridSnapshot) int {
	he := 0
	for _, r := range g.Rows {
		if r.RT.OK {
			he = r.HE
		}
	}
	return he
}
