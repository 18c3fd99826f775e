package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Attempt("a")
	m.Failure("a")
	m.Rotation()
	m.Exhausted()
	m.ObserveFetch("grid", time.Second, errors.New("x"))
	m.Cycle("completed")
	m.Emitted("grid")
	m.Discarded("grid")
	m.StreamConnected(1)
}

func TestCounters(t *testing.T) {
	m := New()
	m.Attempt("https://relay-a/?")
	m.Attempt("https://relay-a/?")
	m.Failure("https://relay-a/?")
	m.Rotation()
	m.ObserveFetch("ledger", 10*time.Millisecond, errors.New("down"))
	m.ObserveFetch("ledger", 10*time.Millisecond, nil)

	if got := testutil.ToFloat64(m.RelayAttempts.WithLabelValues("https://relay-a/?")); got != 2 {
		t.Fatalf("expected 2 attempts, got %v", got)
	}
	if got := testutil.ToFloat64(m.RelayRotations); got != 1 {
		t.Fatalf("expected 1 rotation, got %v", got)
	}
	if got := testutil.ToFloat64(m.FetchErrors.WithLabelValues("ledger")); got != 1 {
		t.Fatalf("expected 1 fetch error, got %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.Emitted("grid")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `gridwatch_updates_emitted_total{kind="grid"} 1`) {
		t.Fatalf("metric missing from exposition:\n%s", rec.Body.String())
	}
}
