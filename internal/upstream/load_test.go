package upstream

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"gridwatch/internal/model"
)

func TestParseActualLoadCSV(t *testing.T) {
	raw := "hour,minute,value\n1,5,900.5\n0,0,1000\nbad,row,x\n"
	got := ParseActualLoad([]byte(raw), "RTO")
	want := []model.LoadPoint{{Timestamp: "00:05", Value: 900.5}, {Timestamp: "23:00", Value: 1000}}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("point %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestParseActualLoadJSONFiltersRegion(t *testing.T) {
	raw := `[
		{"name":"PJM RTO Total","oprHour":10,"oprMinute":0,"loadValue":100},
		{"name":"Western Region","oprHour":10,"oprMinute":0,"loadValue":50},
		{"name":"PJM RTO Total","oprHour":9,"oprMinute":55}
	]`
	got := ParseActualLoad([]byte(raw), "RTO")
	if len(got) != 1 || got[0].Timestamp != "09:00" || got[0].Value != 100 {
		t.Fatalf("got %v", got)
	}

	wrapped := `{"loads":[{"name":"Western Region","oprHour":10,"oprMinute":0,"loadValue":50}]}`
	if got := ParseActualLoad([]byte(wrapped), "Western"); len(got) != 1 || got[0].Value != 50 {
		t.Fatalf("got %v", got)
	}
}

func TestParseForecastLoad(t *testing.T) {
	raw := `{"loadCurves":{"Southern Region":{"loads":[
		{"hourEnding":22,"loadLevel":3},
		{"hourEnding":1,"loadLevel":1}
	]}}}`
	got := ParseForecastLoad([]byte(raw), "Southern")
	// HE1 -> HE3 -> 01:30; HE22 -> HE24 -> 22:30
	want := []model.LoadPoint{{Timestamp: "01:30", Value: 1}, {Timestamp: "22:30", Value: 3}}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got := ParseForecastLoad([]byte(raw), "RTO"); len(got) != 0 {
		t.Fatalf("missing region should be empty, got %v", got)
	}
}

func TestFetchLoadUsesSourcePath(t *testing.T) {
	var seen string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		seen = r.URL.Path
		fmt.Fprint(w, `{"loadCurves":{}}`)
	})
	_, err := c.FetchLoad(context.Background(), LoadMeteologica, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), "RTO")
	if err != nil {
		t.Fatalf("FetchLoad: %v", err)
	}
	if seen != "/load/pjm/meteologica/01152024" {
		t.Fatalf("requested %s", seen)
	}
}

func TestParseLoadSource(t *testing.T) {
	if src, err := ParseLoadSource("Tesla"); err != nil || src != LoadTesla {
		t.Fatalf("got %v %v", src, err)
	}
	if _, err := ParseLoadSource("nope"); err == nil {
		t.Fatal("expected error")
	}
}
