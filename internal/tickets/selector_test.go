package tickets

import (
	"errors"
	"testing"
)

// fakeStore serves canned tickets for selector tests.
type fakeStore struct {
	ready    []Ticket
	byID     map[string]*Ticket
	readyErr error
	getCalls int
}

func (f *fakeStore) Ready() ([]Ticket, error) {
	if f.readyErr != nil {
		return nil, f.readyErr
	}
	return f.ready, nil
}

func (f *fakeStore) Get(id string) (*Ticket, error) {
	f.getCalls++
	t, ok := f.byID[id]
	if !ok {
		return nil, errors.New("ticket not found")
	}
	return t, nil
}

func TestSelector_SelectNext(t *testing.T) {
	tests := []struct {
		name   string
		ready  []Ticket
		byID   map[string]*Ticket
		wantID string
	}{
		{
			name:   "empty ready set yields nil",
			ready:  nil,
			wantID: "",
		},
		{
			name: "epic is never eligible",
			ready: []Ticket{
				{ID: "e1", Type: TypeEpic},
			},
			wantID: "",
		},
		{
			name: "feature is eligible",
			ready: []Ticket{
				{ID: "f1", Type: TypeFeature},
			},
			wantID: "f1",
		},
		{
			name: "parentless task is eligible",
			ready: []Ticket{
				{ID: "t1", Type: TypeTask},
			},
			wantID: "t1",
		},
		{
			name: "task under a feature is skipped",
			ready: []Ticket{
				{ID: "t1", Type: TypeTask, Parent: "f1", ParentType: TypeFeature},
				{ID: "t2", Type: TypeTask},
			},
			wantID: "t2",
		},
		{
			name: "bug under a feature is skipped",
			ready: []Ticket{
				{ID: "b1", Type: TypeBug, Parent: "f1", ParentType: TypeFeature},
			},
			wantID: "",
		},
		{
			name: "task under an epic is eligible",
			ready: []Ticket{
				{ID: "t1", Type: TypeTask, Parent: "e1", ParentType: TypeEpic},
			},
			wantID: "t1",
		},
		{
			name: "epic skipped, store order decides among the rest",
			ready: []Ticket{
				{ID: "e1", Type: TypeEpic},
				{ID: "t1", Type: TypeTask},
				{ID: "f1", Type: TypeFeature},
			},
			wantID: "t1",
		},
		{
			name: "unknown type treated like a task",
			ready: []Ticket{
				{ID: "x1", Type: "spike", Parent: "f1", ParentType: TypeFeature},
				{ID: "x2", Type: "spike"},
			},
			wantID: "x2",
		},
		{
			name: "parent type resolved via store lookup",
			ready: []Ticket{
				{ID: "t1", Type: TypeTask, Parent: "f1"},
				{ID: "t2", Type: TypeTask, Parent: "e1"},
			},
			byID: map[string]*Ticket{
				"f1": {ID: "f1", Type: TypeFeature},
				"e1": {ID: "e1", Type: TypeEpic},
			},
			wantID: "t2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{ready: tt.ready, byID: tt.byID}
			s := NewSelector(store)

			got, err := s.SelectNext()
			if err != nil {
				t.Fatalf("SelectNext() error = %v", err)
			}
			if tt.wantID == "" {
				if got != nil {
					t.Errorf("SelectNext() = %v, want nil", got)
				}
				return
			}
			if got == nil || got.ID != tt.wantID {
				t.Errorf("SelectNext() = %v, want %s", got, tt.wantID)
			}
		})
	}

	t.Run("repeated calls return the same candidate", func(t *testing.T) {
		store := &fakeStore{ready: []Ticket{
			{ID: "e1", Type: TypeEpic},
			{ID: "t1", Type: TypeTask},
		}}
		s := NewSelector(store)

		for i := 0; i < 3; i++ {
			got, err := s.SelectNext()
			if err != nil {
				t.Fatalf("SelectNext() error = %v", err)
			}
			if got == nil || got.ID != "t1" {
				t.Fatalf("SelectNext() call %d = %v, want t1", i, got)
			}
		}
	})

	t.Run("store error propagates", func(t *testing.T) {
		store := &fakeStore{readyErr: errors.New("boom")}
		s := NewSelector(store)

		if _, err := s.SelectNext(); err == nil {
			t.Error("SelectNext() error = nil, want error")
		}
	})

	t.Run("explicit parent type avoids store lookup", func(t *testing.T) {
		store := &fakeStore{ready: []Ticket{
			{ID: "t1", Type: TypeTask, Parent: "f1", ParentType: TypeFeature},
		}}
		s := NewSelector(store)

		if _, err := s.SelectNext(); err != nil {
			t.Fatalf("SelectNext() error = %v", err)
		}
		if store.getCalls != 0 {
			t.Errorf("store.Get called %d times, want 0", store.getCalls)
		}
	})
}
