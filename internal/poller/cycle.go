package poller

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"gridwatch/internal/logger"
	"gridwatch/internal/model"
)

// cycleTicket pins what a cycle was started for.
type cycleTicket struct {
	id         string
	generation uint64
	scope      model.Scope
	cscope     model.ConstraintScope
	log        *logger.Entry
}

// runCycle fetches constraints, ledger and grid in that order. A failing
// kind is recorded and does not stop the others.
func (s *Session) runCycle(ctx context.Context) {
	s.mu.Lock()
	if s.state == Stopped {
		s.mu.Unlock()
		return
	}
	if s.state == Steady {
		s.state = LoadingRefresh
	}
	s.inFlight = true
	t := cycleTicket{
		id:         uuid.NewString(),
		generation: s.generation,
		scope:      s.scope,
		cscope:     s.cscope,
	}
	s.mu.Unlock()
	t.log = s.log.WithFields(logger.Fields{"cycle": t.id, "scope": t.scope.String()})

	start := time.Now()
	var failed, discarded int
	for _, kind := range model.Kinds {
		err := s.fetchKind(ctx, kind, t)
		switch {
		case err == nil:
		case errors.Is(err, ErrScopeMismatch):
			discarded++
		default:
			failed++
		}
	}

	s.mu.Lock()
	s.inFlight = false
	// The initial load only settles once some kind arrived for this scope.
	if t.generation == s.generation {
		switch {
		case s.state == LoadingRefresh:
			s.state = Steady
		case s.state == LoadingInitial && discarded == 0 && failed < len(model.Kinds):
			s.state = Steady
		}
	}
	s.mu.Unlock()

	result := "ok"
	switch {
	case discarded > 0:
		result = "discarded"
	case failed == len(model.Kinds):
		result = "failed"
	case failed > 0:
		result = "partial"
	}
	s.metrics.Cycle(result)
	t.log.WithFields(logger.Fields{
		"result":   result,
		"failed":   failed,
		"duration": time.Since(start).String(),
	}).Debug("cycle finished")
}

func (s *Session) fetchKind(ctx context.Context, kind model.Kind, t cycleTicket) error {
	if !s.begin(kind, t) {
		s.metrics.Discarded(string(kind))
		return ErrScopeMismatch
	}

	switch kind {
	case model.KindConstraints:
		snap, err := s.fetcher.FetchConstraints(ctx, t.cscope)
		return s.finish(kind, t, err, func() (interface{}, bool) {
			return s.store.ApplyConstraints(snap)
		})
	case model.KindLedger:
		snap, err := s.fetcher.FetchLedger(ctx)
		return s.finish(kind, t, err, func() (interface{}, bool) {
			return s.store.ApplyLedger(snap)
		})
	default:
		day, err := t.scope.Day()
		if err != nil {
			return s.finish(kind, t, err, nil)
		}
		snap, err := s.fetcher.FetchGrid(ctx, t.scope.Venue, day)
		return s.finish(kind, t, err, func() (interface{}, bool) {
			return s.store.ApplyGrid(t.scope, snap)
		})
	}
}

// begin marks kind as loading if the ticket is still current.
func (s *Session) begin(kind model.Kind, t cycleTicket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Stopped || t.generation != s.generation {
		return false
	}
	s.status[kind].Loading = true
	return true
}

// finish records the outcome of one kind's fetch. The merge runs under the
// session lock so a scope change cannot interleave between the generation
// check and retaining the result.
func (s *Session) finish(kind model.Kind, t cycleTicket, fetchErr error, apply func() (interface{}, bool)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Stopped || t.generation != s.generation {
		s.status[kind].Loading = false
		s.metrics.Discarded(string(kind))
		t.log.WithField("kind", kind).Info("discarding result for a scope no longer selected")
		return ErrScopeMismatch
	}

	st := s.status[kind]
	st.Loading = false
	if fetchErr != nil {
		st.Error = fetchErr.Error()
		t.log.WithError(fetchErr).WithField("kind", kind).Warn("fetch failed, keeping retained data")
		return fetchErr
	}
	st.Error = ""
	st.UpdatedAt = time.Now()

	data, changed := apply()
	if changed {
		s.emitLocked(kind, t.scope, data)
	}
	return nil
}

func (s *Session) emitLocked(kind model.Kind, scope model.Scope, data interface{}) {
	s.seq++
	u := Update{Kind: kind, Scope: scope, Seq: s.seq, At: time.Now().UTC(), Data: data}
	s.metrics.Emitted(string(kind))
	for id, ch := range s.subs {
		select {
		case ch <- u:
		default:
			s.log.WithFields(logger.Fields{"subscriber": id, "kind": kind, "seq": u.Seq}).Warn("subscriber is behind, dropping update")
		}
	}
}
