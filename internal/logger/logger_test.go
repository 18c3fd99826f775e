package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestWithComponent(t *testing.T) {
	log := New(Config{})
	entry := log.WithComponent("relay")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "relay" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestNewLevelFallback(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	if lvl := New(Config{Level: "bogus"}).GetLevel(); lvl != logrus.InfoLevel {
		t.Fatalf("expected info fallback, got %v", lvl)
	}
	if lvl := New(Config{Level: "debug"}).GetLevel(); lvl != logrus.DebugLevel {
		t.Fatalf("expected debug, got %v", lvl)
	}
}

func TestEnvLevelOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	if lvl := New(Config{Level: "debug"}).GetLevel(); lvl != logrus.WarnLevel {
		t.Fatalf("expected warn from env, got %v", lvl)
	}
}

func TestJSONOutputCarriesFields(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	var buf bytes.Buffer
	log := New(Config{Format: "json"})
	log.SetOutput(&buf)

	log.WithComponent("poller").WithFields(Fields{"kind": "grid"}).WithError(errors.New("boom")).Warn("fetch failed")

	var rec map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not json: %v (%s)", err, buf.String())
	}
	if rec["component"] != "poller" || rec["kind"] != "grid" || rec["error"] != "boom" || rec["message"] != "fetch failed" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestComponentNilUsesGlobal(t *testing.T) {
	if e := Component(nil, "api"); e.Entry.Data["component"] != "api" {
		t.Fatalf("unexpected entry: %v", e.Entry.Data)
	}
}
