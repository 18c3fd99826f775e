package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gridwatch/internal/logger"
	"gridwatch/internal/model"
	"gridwatch/internal/reconcile"
)

type fakeFetcher struct {
	mu        sync.Mutex
	calls     []model.Kind
	active    int
	maxActive int
	venues    []string
	cscopes   []model.ConstraintScope
	ledgerErr error
	// err fails every kind.
	err error

	// When set, FetchGrid signals gridStarted and waits on gridGate.
	gridGate    chan struct{}
	gridStarted chan string
}

func (f *fakeFetcher) enter(kind model.Kind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, kind)
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
}

func (f *fakeFetcher) leave() {
	f.mu.Lock()
	f.active--
	f.mu.Unlock()
}

func (f *fakeFetcher) FetchConstraints(_ context.Context, scope model.ConstraintScope) (model.ConstraintsSnapshot, error) {
	f.enter(model.KindConstraints)
	defer f.leave()
	f.mu.Lock()
	f.cscopes = append(f.cscopes, scope)
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return model.ConstraintsSnapshot{}, err
	}
	return model.ConstraintsSnapshot{Scope: scope, Items: []model.Constraint{{Facility: "LINE A", ShadowPrice: model.Known(12)}}}, nil
}

func (f *fakeFetcher) FetchLedger(context.Context) (model.LedgerSnapshot, error) {
	f.enter(model.KindLedger)
	defer f.leave()
	f.mu.Lock()
	err := f.err
	if err == nil {
		err = f.ledgerErr
	}
	f.mu.Unlock()
	if err != nil {
		return model.LedgerSnapshot{}, err
	}
	return model.LedgerSnapshot{
		Timestamp: "2024-01-01T10:00:00Z",
		Entries:   []model.LedgerEntry{{Zone: "A", Dispatch: model.Known(5)}},
	}, nil
}

func (f *fakeFetcher) FetchGrid(_ context.Context, venue string, _ time.Time) (model.GridSnapshot, error) {
	f.enter(model.KindGrid)
	defer f.leave()
	f.mu.Lock()
	f.venues = append(f.venues, venue)
	gate, started, err := f.gridGate, f.gridStarted, f.err
	f.mu.Unlock()
	if err != nil {
		return model.GridSnapshot{}, err
	}
	if started != nil {
		started <- venue
	}
	if gate != nil {
		<-gate
	}
	g := model.NewGridSnapshot()
	if venue == "Western Hub" {
		g.Rows[0].RT = model.Known(50)
	} else {
		g.Rows[0].RT = model.Known(20)
	}
	return g, nil
}

func (f *fakeFetcher) callLog() []model.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Kind(nil), f.calls...)
}

var testScope = model.Scope{Venue: "Western Hub", Date: "2024-01-01"}

func newTestSession(f Fetcher, interval time.Duration) *Session {
	return NewSession(f, reconcile.NewStore(), Options{Interval: interval, Scope: testScope, Logger: logger.Discard()})
}

func recv(t *testing.T, ch <-chan Update) Update {
	t.Helper()
	select {
	case u, ok := <-ch:
		if !ok {
			t.Fatal("update channel closed")
		}
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
	}
	return Update{}
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", s.State(), want)
}

func TestSessionInitialCycleOrder(t *testing.T) {
	f := &fakeFetcher{}
	s := newTestSession(f, time.Hour)
	updates, cancel := s.Subscribe()
	defer cancel()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	for _, want := range model.Kinds {
		if u := recv(t, updates); u.Kind != want {
			t.Fatalf("got %s update, want %s", u.Kind, want)
		}
	}
	waitState(t, s, Steady)

	calls := f.callLog()
	if len(calls) < 3 || calls[0] != model.KindConstraints || calls[1] != model.KindLedger || calls[2] != model.KindGrid {
		t.Fatalf("unexpected fetch order %v", calls)
	}
	if s.LastUpdate() != "2024-01-01T10:00:00Z" {
		t.Fatalf("LastUpdate = %q", s.LastUpdate())
	}
	if g := s.Grid(); g.Rows[0].RT.V != 50 {
		t.Fatalf("unexpected grid %+v", g.Rows[0])
	}
}

func TestSessionIsolatesFetchFailures(t *testing.T) {
	f := &fakeFetcher{ledgerErr: errors.New("relay exhausted")}
	s := newTestSession(f, time.Hour)
	updates, cancel := s.Subscribe()
	defer cancel()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if u := recv(t, updates); u.Kind != model.KindConstraints {
		t.Fatalf("got %s", u.Kind)
	}
	if u := recv(t, updates); u.Kind != model.KindGrid {
		t.Fatalf("grid should still be fetched after a ledger failure, got %s", u.Kind)
	}
	waitState(t, s, Steady)

	st := s.Status()
	if st[model.KindLedger].Error != "relay exhausted" {
		t.Fatalf("ledger error = %q", st[model.KindLedger].Error)
	}
	if st[model.KindGrid].Error != "" || st[model.KindConstraints].Error != "" {
		t.Fatalf("errors must be per kind: %+v", st)
	}
}

func (f *fakeFetcher) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func TestSessionStaysLoadingUntilAFetchSucceeds(t *testing.T) {
	f := &fakeFetcher{err: errors.New("boom")}
	s := newTestSession(f, time.Hour)

	if err := s.Refresh(); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("refresh before start = %v, want ErrNotStarted", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for s.Status()[model.KindGrid].Error == "" {
		if time.Now().After(deadline) {
			t.Fatal("first cycle never reached the grid fetch")
		}
		time.Sleep(5 * time.Millisecond)
	}
	for _, k := range model.Kinds {
		if got := s.Status()[k].Error; got != "boom" {
			t.Fatalf("%s error = %q, want boom", k, got)
		}
	}

	// The failed cycle must finish without settling the session.
	for {
		s.mu.Lock()
		busy, st := s.inFlight, s.state
		s.mu.Unlock()
		if !busy {
			if st != LoadingInitial {
				t.Fatalf("state after an all-failed cycle = %s, want %s", st, LoadingInitial)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first cycle never finished")
		}
		time.Sleep(5 * time.Millisecond)
	}

	f.setErr(nil)
	if err := s.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	waitState(t, s, Steady)
	if s.Status()[model.KindGrid].Error != "" {
		t.Fatal("grid error should clear after a successful fetch")
	}
}

func TestSessionRefreshAfterStop(t *testing.T) {
	s := newTestSession(&fakeFetcher{}, time.Hour)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop()
	if err := s.Refresh(); !errors.Is(err, ErrStopped) {
		t.Fatalf("refresh after stop = %v, want ErrStopped", err)
	}
}

func TestSessionUnchangedCycleEmitsNothing(t *testing.T) {
	f := &fakeFetcher{}
	s := newTestSession(f, time.Hour)
	updates, cancel := s.Subscribe()
	defer cancel()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()
	for range model.Kinds {
		recv(t, updates)
	}
	waitState(t, s, Steady)

	if err := s.Refresh(); err != nil {
		t.Fatalf("refresh should start a cycle: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(f.callLog()) < 6 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	waitState(t, s, Steady)

	select {
	case u := <-updates:
		t.Fatalf("identical data must not emit, got %s", u.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSessionDiscardsResultsForOldScope(t *testing.T) {
	f := &fakeFetcher{gridGate: make(chan struct{}), gridStarted: make(chan string, 4)}
	s := newTestSession(f, time.Hour)
	updates, cancel := s.Subscribe()
	defer cancel()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	recv(t, updates) // constraints
	recv(t, updates) // ledger
	if v := <-f.gridStarted; v != "Western Hub" {
		t.Fatalf("first grid fetch for %s", v)
	}

	ad := model.Scope{Venue: "AD Hub", Date: "2024-01-01"}
	if err := s.SetScope(ad); err != nil {
		t.Fatalf("SetScope: %v", err)
	}
	if err := s.Refresh(); !errors.Is(err, ErrInFlight) {
		t.Fatalf("refresh must be skipped while a cycle is in flight, got %v", err)
	}
	f.gridGate <- struct{}{} // release the stale Western Hub fetch

	if v := <-f.gridStarted; v != "AD Hub" {
		t.Fatalf("re-run fetched %s", v)
	}
	f.gridGate <- struct{}{}

	var grid Update
	for grid.Kind != model.KindGrid {
		grid = recv(t, updates)
	}
	if grid.Scope != ad {
		t.Fatalf("grid update for %v, want %v", grid.Scope, ad)
	}
	g := grid.Data.(model.GridSnapshot)
	if g.Rows[0].RT.V != 20 {
		t.Fatalf("stale Western Hub data applied: %+v", g.Rows[0])
	}
}

func TestSessionToggleInterval(t *testing.T) {
	s := newTestSession(&fakeFetcher{}, time.Hour)

	cs, err := s.ToggleInterval(10, 37)
	if err != nil {
		t.Fatalf("ToggleInterval: %v", err)
	}
	if cs != model.IntervalConstraints("2024-01-01", 10, 35) {
		t.Fatalf("unexpected scope %+v", cs)
	}
	cs, _ = s.ToggleInterval(10, 35)
	if !cs.IsCurrent() {
		t.Fatal("selecting the same interval again should toggle back to current")
	}
	if _, err := s.ToggleInterval(25, 0); err == nil {
		t.Fatal("expected range error")
	}
	_, _ = s.ToggleInterval(3, 0)
	if err := s.ResetConstraints(); err != nil || !s.ConstraintScope().IsCurrent() {
		t.Fatal("reset should select current constraints")
	}
}

func TestSessionStop(t *testing.T) {
	f := &fakeFetcher{gridGate: make(chan struct{}), gridStarted: make(chan string, 1)}
	s := newTestSession(f, time.Hour)
	updates, _ := s.Subscribe()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	recv(t, updates)
	recv(t, updates)
	<-f.gridStarted

	s.Stop()
	f.gridGate <- struct{}{}

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after Stop")
	}
	if _, ok := <-updates; ok {
		t.Fatal("no update may be emitted after Stop")
	}
	if s.State() != Stopped {
		t.Fatalf("state = %s", s.State())
	}
	if err := s.SetScope(model.Scope{Venue: "AD Hub", Date: "2024-01-02"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestSessionCyclesNeverOverlap(t *testing.T) {
	f := &fakeFetcher{}
	s := newTestSession(f, time.Millisecond)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	s.Stop()
	<-s.Done()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.maxActive != 1 {
		t.Fatalf("fetches overlapped: max %d concurrent", f.maxActive)
	}
	if len(f.calls) < 3 {
		t.Fatalf("expected at least one full cycle, got %v", f.calls)
	}
}

func TestSessionRejectsBadScope(t *testing.T) {
	s := newTestSession(&fakeFetcher{}, time.Hour)
	if err := s.SetScope(model.Scope{Venue: "Western Hub", Date: "01/02/2024"}); err == nil {
		t.Fatal("expected date error")
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()
	if err := s.Start(context.Background()); !errors.Is(err, ErrStarted) {
		t.Fatalf("expected ErrStarted, got %v", err)
	}
}
