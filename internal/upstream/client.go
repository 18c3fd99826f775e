package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gridwatch/internal/logger"
	"gridwatch/internal/metrics"
	"gridwatch/internal/model"
	"gridwatch/internal/relay"
)

// DefaultBaseURL is the market data service the dashboard polls.
const DefaultBaseURL = "http://panda.gbefund.org:8080/Mimir/rest"

// Venue is a pricing hub with its real-time and day-ahead upstream keys.
type Venue struct {
	Name   string // e.g. "Western Hub"
	RTPath string // e.g. "wh"
	DAHub  string // e.g. "WESTERN HUB"
}

// Spread is a composite venue whose every field is A - B.
type Spread struct {
	Name string
	A    string
	B    string
}

// Client fetches and normalizes market snapshots.
type Client struct {
	BaseURL string
	HTTP    *http.Client

	venues  map[string]Venue
	spreads map[string]Spread
	order   []string

	metrics *metrics.Metrics
	log     *logger.Entry
}

// Options configures a Client.
type Options struct {
	BaseURL string
	HTTP    *http.Client
	Venues  []Venue
	Spreads []Spread
	Logger  *logger.Log
	Metrics *metrics.Metrics
}

// NewClient creates a market data client.
// If BaseURL is empty, defaults to DefaultBaseURL. If HTTP is nil, a direct
// (non-relayed) client is used.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.HTTP == nil {
		opts.HTTP = &http.Client{Timeout: relay.DefaultAttemptTimeout}
	}
	c := &Client{
		BaseURL: strings.TrimRight(opts.BaseURL, "/"),
		HTTP:    opts.HTTP,
		venues:  make(map[string]Venue, len(opts.Venues)),
		spreads: make(map[string]Spread, len(opts.Spreads)),
		metrics: opts.Metrics,
		log:     logger.Component(opts.Logger, "upstream"),
	}
	for _, v := range opts.Venues {
		c.venues[v.Name] = v
		c.order = append(c.order, v.Name)
	}
	for _, s := range opts.Spreads {
		c.spreads[s.Name] = s
		c.order = append(c.order, s.Name)
	}
	return c
}

// VenueNames lists selectable venues, spreads last, in configuration order.
func (c *Client) VenueNames() []string {
	return append([]string(nil), c.order...)
}

// HasVenue reports whether name is a configured venue or spread.
func (c *Client) HasVenue(name string) bool {
	_, v := c.venues[name]
	_, s := c.spreads[name]
	return v || s
}

// FetchError marks a transport-level failure of one data kind's fetch.
type FetchError struct {
	Kind model.Kind
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// StatusCode returns the upstream HTTP status behind err, or 0.
func StatusCode(err error) int {
	var se *relay.StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// get issues one GET for path below BaseURL and returns the body.
// An empty body is not an error.
func (c *Client) get(ctx context.Context, kind model.Kind, path string) ([]byte, error) {
	u := c.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	duration := time.Since(start)
	if err != nil {
		c.log.WithError(err).WithFields(logger.Fields{"kind": kind, "path": path, "duration": duration.String()}).Warn("request failed")
		return nil, err
	}
	defer resp.Body.Close()

	// The relay transport already rejects non-2xx; a direct client does not.
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &relay.StatusError{StatusCode: resp.StatusCode, Status: resp.Status, URL: u}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	c.log.WithFields(logger.Fields{
		"kind":     kind,
		"path":     path,
		"status":   resp.StatusCode,
		"bytes":    len(body),
		"duration": time.Since(start).String(),
	}).Debug("response received")
	return body, nil
}

// observe records fetch timing and wraps err as a *FetchError.
func (c *Client) observe(kind model.Kind, start time.Time, err error) error {
	c.metrics.ObserveFetch(string(kind), time.Since(start), err)
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return err
	}
	return &FetchError{Kind: kind, Err: err}
}

// FormatDate renders t as the upstream MMDDYYYY date.
func FormatDate(t time.Time) string {
	return t.Format("01022006")
}
