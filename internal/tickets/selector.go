package tickets

import "fmt"

// Store is the subset of the tix client the selector needs.
type Store interface {
	Ready() ([]Ticket, error)
	Get(id string) (*Ticket, error)
}

// Selector picks the next eligible ticket from the unblocked-work set.
//
// Filtering policy:
//   - epics are never eligible (too coarse to execute atomically)
//   - features are always eligible
//   - tasks, bugs and chores are eligible only when they are NOT children
//     of a feature; those sub-tickets get done as part of the parent
//     feature's own cycle, which avoids double work and merge races
type Selector struct {
	store Store
}

// NewSelector creates a selector over the given store.
func NewSelector(store Store) *Selector {
	return &Selector{store: store}
}

// SelectNext returns the next eligible ticket, or nil if none exists.
// Order among eligible tickets is the store's own (priority-first).
// The call mutates nothing, so repeated calls against an unchanged store
// return the same candidate.
func (s *Selector) SelectNext() (*Ticket, error) {
	ready, err := s.store.Ready()
	if err != nil {
		return nil, fmt.Errorf("querying ready tickets: %w", err)
	}

	for i := range ready {
		t := &ready[i]
		eligible, err := s.eligible(t)
		if err != nil {
			return nil, err
		}
		if eligible {
			return t, nil
		}
	}
	return nil, nil
}

// eligible applies the type/hierarchy filter to a single candidate.
func (s *Selector) eligible(t *Ticket) (bool, error) {
	switch t.Type {
	case TypeEpic:
		return false, nil
	case TypeFeature:
		return true, nil
	}

	// task/bug/chore (and anything unknown): check for a feature parent.
	if t.Parent == "" {
		return true, nil
	}

	parentType := t.ParentType
	if parentType == "" {
		parent, err := s.store.Get(t.Parent)
		if err != nil {
			return false, fmt.Errorf("resolving parent of %s: %w", t.ID, err)
		}
		parentType = parent.Type
	}

	return parentType != TypeFeature, nil
}
