package reconcile

import (
	"sync"
	"testing"

	"gridwatch/internal/model"
)

func TestStoreGridIsScoped(t *testing.T) {
	s := NewStore()
	wh := model.Scope{Venue: "Western Hub", Date: "2024-01-01"}
	ad := model.Scope{Venue: "AD Hub", Date: "2024-01-01"}

	g := sampleGrid()
	if _, changed := s.ApplyGrid(wh, g); !changed {
		t.Fatal("first grid should emit")
	}
	if _, changed := s.ApplyGrid(wh, g); changed {
		t.Fatal("same grid should not emit")
	}

	merged, changed := s.ApplyGrid(ad, model.NewGridSnapshot())
	if !changed {
		t.Fatal("a new scope starts from an empty grid")
	}
	if merged.Rows[0].RT.OK {
		t.Fatal("previous venue's prices must not carry over")
	}
	if _, scope, ok := s.Grid(); !ok || scope != ad {
		t.Fatalf("retained scope = %v", scope)
	}
}

func TestStoreReturnsCopies(t *testing.T) {
	s := NewStore()
	s.ApplyLedger(ledger("T1", map[string]float64{"A": 1, "B": 2}))

	got, _ := s.Ledger()
	got.Entries[0].Zone = "mutated"

	again, _ := s.Ledger()
	if again.Entries[0].Zone != "A" {
		t.Fatal("callers must not be able to mutate retained state")
	}
}

func TestStoreClear(t *testing.T) {
	s := NewStore()
	s.ApplyConstraints(constraints(1))
	s.Clear()
	if _, ok := s.Constraints(); ok {
		t.Fatal("expected empty store")
	}
	if _, ok := s.Ledger(); ok {
		t.Fatal("expected empty store")
	}
}

func TestStoreConcurrentApply(t *testing.T) {
	s := NewStore()
	scope := model.Scope{Venue: "Western Hub", Date: "2024-01-01"}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g := model.NewGridSnapshot()
			g.Rows[i].RT = model.Known(float64(i))
			s.ApplyGrid(scope, g)
			s.ApplyConstraints(constraints(float64(i)))
		}(i)
	}
	wg.Wait()
	g, _, _ := s.Grid()
	for i := 0; i < 8; i++ {
		if !g.Rows[i].RT.OK {
			t.Fatalf("HE%d lost in concurrent merge", i+1)
		}
	}
}
