package relay

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"gridwatch/internal/logger"
	"gridwatch/internal/metrics"
)

const (
	DefaultInitialDelay     = 1 * time.Second
	DefaultMaxDelay         = 10 * time.Second
	DefaultAttemptsPerRelay = 3
	DefaultAttemptTimeout   = 30 * time.Second
)

// StatusError is a non-2xx upstream response.
type StatusError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Status)
}

// Options tunes a Transport. Zero fields take the defaults above.
type Options struct {
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	AttemptsPerRelay int
	// AttemptTimeout bounds one attempt, including reading the body.
	AttemptTimeout time.Duration

	Base    http.RoundTripper
	Sleep   func(ctx context.Context, d time.Duration) error
	Logger  *logger.Log
	Metrics *metrics.Metrics
}

// Transport is an http.RoundTripper that routes every absolute request through
// a relay and, on failure, retries the same request with exponential backoff,
// moving to the next relay every AttemptsPerRelay attempts.
//
// A logical request makes at most AttemptsPerRelay*len(relays) attempts. When
// they are all used up the last failure is returned unchanged.
type Transport struct {
	rotator *Rotator
	opts    Options
	log     *logger.Entry
}

// NewTransport builds a Transport owning rotator. Pass a dedicated Rotator per
// Transport to keep rotation state independent.
func NewTransport(rotator *Rotator, opts Options) *Transport {
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = DefaultInitialDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultMaxDelay
	}
	if opts.MaxDelay < opts.InitialDelay {
		opts.MaxDelay = opts.InitialDelay
	}
	if opts.AttemptsPerRelay <= 0 {
		opts.AttemptsPerRelay = DefaultAttemptsPerRelay
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = DefaultAttemptTimeout
	}
	if opts.Base == nil {
		opts.Base = http.DefaultTransport
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	return &Transport{
		rotator: rotator,
		opts:    opts,
		log:     logger.Component(opts.Logger, "relay"),
	}
}

// Rotator returns the rotation state owned by t.
func (t *Transport) Rotator() *Rotator {
	return t.rotator
}

// MaxAttempts is the attempt budget of one logical request.
func (t *Transport) MaxAttempts() int {
	return t.opts.AttemptsPerRelay * t.rotator.Len()
}

// Client returns an http.Client using t. The client has no overall timeout;
// each attempt is bounded by AttemptTimeout instead so backoff is not cut short.
func (t *Transport) Client() *http.Client {
	return &http.Client{Transport: t}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	target := req.URL.String()
	if isDirect(target) && !t.rotator.IsRelayed(target) {
		target = t.rotator.Wrap(target)
	}

	maxAttempts := t.MaxAttempts()
	delay := t.opts.InitialDelay
	for attempt := 1; ; attempt++ {
		relayUsed := t.rotator.Current()
		resp, err := t.send(req, target, relayUsed)
		if err == nil {
			return resp, nil
		}
		t.opts.Metrics.Failure(relayUsed)

		if attempt%t.opts.AttemptsPerRelay == 0 {
			next := t.rotator.Advance()
			t.opts.Metrics.Rotation()
			t.log.WithFields(logger.Fields{"from": relayUsed, "to": next, "attempt": attempt}).Info("rotating relay")
		}
		if attempt >= maxAttempts {
			t.opts.Metrics.Exhausted()
			t.log.WithError(err).WithFields(logger.Fields{
				"attempts": attempt,
				"url":      t.rotator.Unwrap(target),
			}).Error("request failed on every relay")
			return nil, err
		}

		delay *= 2
		if delay > t.opts.MaxDelay {
			delay = t.opts.MaxDelay
		}
		if isDirect(target) {
			target = t.rotator.Wrap(t.rotator.Unwrap(target))
		}

		t.log.WithError(err).WithFields(logger.Fields{
			"attempt": attempt + 1,
			"max":     maxAttempts,
			"relay":   t.rotator.Current(),
			"delay":   delay.String(),
		}).Warn("retrying request")

		if err := t.opts.Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// send issues one attempt against target. Non-2xx responses are closed and
// returned as *StatusError.
func (t *Transport) send(orig *http.Request, target, relayUsed string) (*http.Response, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("relay: invalid target %q: %w", target, err)
	}

	ctx, cancel := context.WithTimeout(orig.Context(), t.opts.AttemptTimeout)
	req := orig.Clone(ctx)
	req.URL = u
	req.Host = u.Host
	if orig.Body != nil && orig.GetBody != nil {
		body, err := orig.GetBody()
		if err != nil {
			cancel()
			return nil, err
		}
		req.Body = body
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Header.Get("Cache-Control") == "" {
		req.Header.Set("Cache-Control", "no-cache")
	}

	t.opts.Metrics.Attempt(relayUsed)
	resp, err := t.opts.Base.RoundTrip(req)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		cancel()
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, URL: target}
	}
	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelBody releases the attempt context once the caller closes the body.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
