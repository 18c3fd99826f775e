// Package poller drives the fetch-then-reconcile cycle for one dashboard
// session: constraints, then ledger, then grid, every interval.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"gridwatch/internal/logger"
	"gridwatch/internal/metrics"
	"gridwatch/internal/model"
	"gridwatch/internal/reconcile"
)

// DefaultInterval is the steady-state poll cadence.
const DefaultInterval = 15 * time.Second

var (
	// ErrScopeMismatch marks a result whose scope is no longer selected.
	ErrScopeMismatch = errors.New("poller: result scope no longer selected")
	ErrStopped       = errors.New("poller: session stopped")
	ErrStarted       = errors.New("poller: session already started")
	ErrNotStarted    = errors.New("poller: session not started")
	ErrInFlight      = errors.New("poller: a cycle is already in flight")
)

// Fetcher retrieves one snapshot per data kind.
type Fetcher interface {
	FetchConstraints(ctx context.Context, scope model.ConstraintScope) (model.ConstraintsSnapshot, error)
	FetchLedger(ctx context.Context) (model.LedgerSnapshot, error)
	FetchGrid(ctx context.Context, venue string, date time.Time) (model.GridSnapshot, error)
}

// State is the session lifecycle state.
type State int

const (
	Idle State = iota
	LoadingInitial
	Steady
	LoadingRefresh
	Stopped
)

var stateNames = map[State]string{
	Idle:           "idle",
	LoadingInitial: "loading_initial",
	Steady:         "steady",
	LoadingRefresh: "loading_refresh",
	Stopped:        "stopped",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// KindStatus is the loading/error indicator of one data kind.
type KindStatus struct {
	Loading   bool      `json:"loading"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Update is one emitted state change. Data holds the retained snapshot of Kind.
type Update struct {
	Kind  model.Kind  `json:"kind"`
	Scope model.Scope `json:"scope"`
	Seq   uint64      `json:"seq"`
	At    time.Time   `json:"ts"`
	Data  interface{} `json:"data"`
}

// Options configures a Session.
type Options struct {
	Interval time.Duration
	Scope    model.Scope
	Logger   *logger.Log
	Metrics  *metrics.Metrics
	// Buffer is the per-subscriber channel size.
	Buffer int
}

// Session is one polling session bound to a venue/date scope.
//
// Cycles never overlap: a tick that fires while a cycle is running is
// skipped. Each cycle is tagged with the generation it was started under;
// changing the scope bumps the generation, so results of a cycle started
// for the previous scope are discarded instead of applied.
type Session struct {
	id       string
	fetcher  Fetcher
	store    *reconcile.Store
	interval time.Duration
	buffer   int
	metrics  *metrics.Metrics
	log      *logger.Entry

	mu         sync.Mutex
	state      State
	scope      model.Scope
	cscope     model.ConstraintScope
	generation uint64
	inFlight   bool
	status     map[model.Kind]*KindStatus
	seq        uint64
	subs       map[int]chan Update
	nextSub    int

	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewSession creates an idle session writing into store.
func NewSession(fetcher Fetcher, store *reconcile.Store, opts Options) *Session {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 16
	}
	if store == nil {
		store = reconcile.NewStore()
	}
	id := uuid.NewString()
	s := &Session{
		id:       id,
		fetcher:  fetcher,
		store:    store,
		interval: opts.Interval,
		buffer:   opts.Buffer,
		metrics:  opts.Metrics,
		log:      logger.Component(opts.Logger, "poller").WithField("session", id),
		scope:    opts.Scope,
		status:   make(map[model.Kind]*KindStatus, len(model.Kinds)),
		subs:     make(map[int]chan Update),
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, k := range model.Kinds {
		s.status[k] = &KindStatus{}
	}
	return s
}

func (s *Session) ID() string {
	return s.id
}

// Start runs the first cycle immediately and then one every interval until
// Stop or ctx is done. ctx is also handed to every fetch.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case Stopped:
		s.mu.Unlock()
		return ErrStopped
	case Idle:
	default:
		s.mu.Unlock()
		return ErrStarted
	}
	if _, err := s.scope.Day(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = LoadingInitial
	s.mu.Unlock()

	s.log.WithFields(logger.Fields{"scope": s.Scope().String(), "interval": s.interval.String()}).Info("session started")
	go s.loop(ctx)
	return nil
}

func (s *Session) loop(ctx context.Context) {
	defer close(s.done)

	s.runCycle(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			s.Stop()
			return
		case <-ticker.C:
			s.runCycle(ctx)
		case <-s.wake:
			s.runCycle(ctx)
		}
		// A tick that arrived while the cycle ran is skipped.
		select {
		case <-ticker.C:
			s.log.Debug("skipping tick, previous cycle overlapped it")
		default:
		}
	}
}

// Stop clears the timer. A running cycle completes but emits nothing.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.state = Stopped
		s.generation++
		subs := s.subs
		s.subs = make(map[int]chan Update)
		s.mu.Unlock()

		close(s.stop)
		for _, ch := range subs {
			close(ch)
		}
		s.log.Info("session stopped")
	})
}

// Done is closed once the polling loop has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// SetScope rebinds the session to a new venue/date. Retained grid data of
// the previous scope is not shown for the new one, and an in-flight cycle's
// results are discarded. A new cycle starts as soon as possible.
func (s *Session) SetScope(scope model.Scope) error {
	if _, err := scope.Day(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.state == Stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if scope == s.scope {
		s.mu.Unlock()
		return nil
	}
	prev := s.scope
	s.scope = scope
	s.rescopeLocked()
	s.mu.Unlock()

	s.log.WithFields(logger.Fields{"from": prev.String(), "to": scope.String()}).Info("scope changed")
	s.kick()
	return nil
}

// ToggleInterval scopes constraints to (he, minute) of the selected date, or
// back to current when that interval is already selected.
func (s *Session) ToggleInterval(he, minute int) (model.ConstraintScope, error) {
	if he < 1 || he > model.HoursPerDay {
		return model.ConstraintScope{}, fmt.Errorf("hour ending %d out of range 1..24", he)
	}
	if minute < 0 || minute > 59 {
		return model.ConstraintScope{}, fmt.Errorf("minute %d out of range 0..59", minute)
	}
	s.mu.Lock()
	if s.state == Stopped {
		s.mu.Unlock()
		return model.ConstraintScope{}, ErrStopped
	}
	target := model.IntervalConstraints(s.scope.Date, he, minute)
	if s.cscope == target {
		target = model.CurrentConstraints()
	}
	s.cscope = target
	s.rescopeLocked()
	s.mu.Unlock()

	s.log.WithField("constraints", target.String()).Info("constraint scope changed")
	s.kick()
	return target, nil
}

// ResetConstraints returns the constraint scope to current.
func (s *Session) ResetConstraints() error {
	s.mu.Lock()
	if s.state == Stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.cscope.IsCurrent() {
		s.mu.Unlock()
		return nil
	}
	s.cscope = model.CurrentConstraints()
	s.rescopeLocked()
	s.mu.Unlock()

	s.kick()
	return nil
}

// rescopeLocked invalidates in-flight results and clears error state.
func (s *Session) rescopeLocked() {
	s.generation++
	for _, st := range s.status {
		st.Error = ""
	}
	if s.state == Steady || s.state == LoadingRefresh {
		s.state = LoadingInitial
	}
}

// Refresh requests a cycle now. It returns ErrNotStarted or ErrStopped when
// the session is not running and ErrInFlight when a cycle is already running.
func (s *Session) Refresh() error {
	s.mu.Lock()
	state, busy := s.state, s.inFlight
	s.mu.Unlock()
	switch {
	case state == Idle:
		return ErrNotStarted
	case state == Stopped:
		return ErrStopped
	case busy:
		return ErrInFlight
	}
	s.kick()
	return nil
}

func (s *Session) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Subscribe returns a channel receiving every emitted update and a function
// to unsubscribe. Slow subscribers miss updates rather than block the cycle.
func (s *Session) Subscribe() (<-chan Update, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Update, s.buffer)
	if s.state == Stopped {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

func (s *Session) Scope() model.Scope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scope
}

func (s *Session) ConstraintScope() model.ConstraintScope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cscope
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns a copy of the per-kind indicators.
func (s *Session) Status() map[model.Kind]KindStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[model.Kind]KindStatus, len(s.status))
	for k, st := range s.status {
		out[k] = *st
	}
	return out
}

// LastUpdate is the timestamp of the retained ledger dispatch.
func (s *Session) LastUpdate() string {
	l, _ := s.store.Ledger()
	return l.Timestamp
}

// Store exposes the retained state.
func (s *Session) Store() *reconcile.Store {
	return s.store
}

// Grid returns the retained grid for the selected scope, all unknown when
// nothing has been retained for it yet.
func (s *Session) Grid() model.GridSnapshot {
	scope := s.Scope()
	g, gs, ok := s.store.Grid()
	if !ok || gs != scope {
		return model.NewGridSnapshot()
	}
	return g
}

func (s *Session) Ledger() model.LedgerSnapshot {
	l, _ := s.store.Ledger()
	return l
}

func (s *Session) Constraints() model.ConstraintsSnapshot {
	c, _ := s.store.Constraints()
	if c.Items == nil {
		c.Items = []model.Constraint{}
	}
	return c
}

// Current returns the retained state as one update per kind, stamped with
// the latest sequence number, for consumers that join mid-session.
func (s *Session) Current() []Update {
	s.mu.Lock()
	scope, seq := s.scope, s.seq
	s.mu.Unlock()

	now := time.Now().UTC()
	out := make([]Update, 0, len(model.Kinds))
	if c, ok := s.store.Constraints(); ok {
		out = append(out, Update{Kind: model.KindConstraints, Scope: scope, Seq: seq, At: now, Data: c})
	}
	if l, ok := s.store.Ledger(); ok {
		out = append(out, Update{Kind: model.KindLedger, Scope: scope, Seq: seq, At: now, Data: l})
	}
	if g, gs, ok := s.store.Grid(); ok && gs == scope {
		out = append(out, Update{Kind: model.KindGrid, Scope: scope, Seq: seq, At: now, Data: g})
	}
	return out
}
