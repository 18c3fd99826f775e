package reconcile

import (
	"sync"

	"gridwatch/internal/model"
)

// Store is the retained state: one slot per data kind, each written only by
// its own merge policy. The grid slot remembers the scope it was filled for
// so a venue or date change starts from an empty grid.
type Store struct {
	mu sync.RWMutex

	grid      *model.GridSnapshot
	gridScope model.Scope

	ledger      *model.LedgerSnapshot
	constraints *model.ConstraintsSnapshot
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{}
}

// ApplyGrid merges next into the grid retained for scope and retains the result.
func (s *Store) ApplyGrid(scope model.Scope, next model.GridSnapshot) (model.GridSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.grid
	if prev != nil && s.gridScope != scope {
		prev = nil
	}
	merged, changed := MergeGrid(prev, next)
	s.grid = &merged
	s.gridScope = scope
	return merged, changed
}

// ApplyLedger merges next into the retained ledger and retains the result.
func (s *Store) ApplyLedger(next model.LedgerSnapshot) (model.LedgerSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged, changed := MergeLedger(s.ledger, next)
	s.ledger = &merged
	return merged.Clone(), changed
}

// ApplyConstraints merges next into the retained constraints and retains the result.
func (s *Store) ApplyConstraints(next model.ConstraintsSnapshot) (model.ConstraintsSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged, changed := MergeConstraints(s.constraints, next)
	s.constraints = &merged
	return merged.Clone(), changed
}

// Grid returns the retained grid and the scope it belongs to.
func (s *Store) Grid() (model.GridSnapshot, model.Scope, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.grid == nil {
		return model.NewGridSnapshot(), model.Scope{}, false
	}
	return *s.grid, s.gridScope, true
}

func (s *Store) Ledger() (model.LedgerSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ledger == nil {
		return model.LedgerSnapshot{}, false
	}
	return s.ledger.Clone(), true
}

func (s *Store) Constraints() (model.ConstraintsSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.constraints == nil {
		return model.ConstraintsSnapshot{}, false
	}
	return s.constraints.Clone(), true
}

// Clear empties every slot.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grid = nil
	s.gridScope = model.Scope{}
	s.ledger = nil
	s.constraints = nil
}
