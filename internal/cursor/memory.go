package cursor

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store used by tests and dry runs.
type MemoryStore struct {
	mu      sync.Mutex
	cursor  Cursor
	saves   []Cursor
	SaveErr error
	LoadErr error
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns a MemoryStore seeded with c.
func NewMemoryStore(c Cursor) *MemoryStore {
	return &MemoryStore{cursor: c}
}

func (s *MemoryStore) Load(ctx context.Context) (Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return Cursor{}, s.LoadErr
	}
	return s.cursor, nil
}

func (s *MemoryStore) Save(ctx context.Context, c Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return &PersistError{Backend: "memory", Cursor: c, Err: s.SaveErr}
	}
	s.cursor = c
	s.saves = append(s.saves, c)
	return nil
}

// Saves returns every successfully saved value in order.
func (s *MemoryStore) Saves() []Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Cursor, len(s.saves))
	copy(out, s.saves)
	return out
}
