package model

import (
	"encoding/json"
	"math"
	"testing"
)

func TestValueUnknownIsNotZero(t *testing.T) {
	if Unknown.OK {
		t.Fatal("Unknown must not be OK")
	}
	if Known(0) == Unknown {
		t.Fatal("Known(0) must differ from Unknown")
	}
	if Known(math.NaN()).OK {
		t.Fatal("NaN must be unknown")
	}
}

func TestValueSub(t *testing.T) {
	if got := Known(50).Sub(Known(20)); got != Known(30) {
		t.Fatalf("expected 30, got %+v", got)
	}
	if got := Known(50).Sub(Unknown); got.OK {
		t.Fatalf("expected unknown, got %+v", got)
	}
	if got := Known(1.005).Sub(Known(0)); got != Known(1.01) {
		t.Fatalf("expected 1.01, got %+v", got)
	}
}

func TestValueJSON(t *testing.T) {
	raw, err := json.Marshal([]Value{Known(31.5), Unknown})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != "[31.5,null]" {
		t.Fatalf("unexpected json: %s", raw)
	}

	var back []Value
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back[0] != Known(31.5) || back[1].OK {
		t.Fatalf("unexpected values: %+v", back)
	}
}

func TestMean(t *testing.T) {
	if got := Mean(Known(10), Unknown, Known(20)); got != Known(15) {
		t.Fatalf("expected 15, got %+v", got)
	}
	if got := Mean(Unknown, Unknown); got.OK {
		t.Fatalf("expected unknown, got %+v", got)
	}
}

func TestGridRowJSONLayout(t *testing.T) {
	g := NewGridSnapshot()
	g.Rows[0].Minutes[0] = Known(31.5)
	g.Rows[0].RT = Known(31.5)

	raw, err := json.Marshal(g.Rows[0])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["HE"] != "1" || m["0"] != 31.5 || m["5"] != nil || m["DA/RT"] != nil {
		t.Fatalf("unexpected row json: %s", raw)
	}
}

func TestSortLedger(t *testing.T) {
	entries := []LedgerEntry{
		{Zone: "A", Dispatch: Known(5)},
		{Zone: "C", Dispatch: Unknown},
		{Zone: "B", Dispatch: Known(2)},
		{Zone: "D", Dispatch: Known(2)},
	}
	SortLedger(entries)
	want := []string{"B", "D", "A", "C"}
	for i, z := range want {
		if entries[i].Zone != z {
			t.Fatalf("position %d: got %s, want %s (%+v)", i, entries[i].Zone, z, entries)
		}
	}
}
