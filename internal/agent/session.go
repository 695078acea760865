package agent

import "sync"

// Store receives every turn the loop produces. Persistence lives
// outside the core; the loop only appends and never reads back.
type Store interface {
	Append(role, content string, meta map[string]string) error
}

// StoredTurn is one recorded turn.
type StoredTurn struct {
	Role    string
	Content string
	Meta    map[string]string
}

// MemoryStore is an in-memory append-only store.
type MemoryStore struct {
	mu    sync.Mutex
	turns []StoredTurn
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(role, content string, meta map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, StoredTurn{Role: role, Content: content, Meta: meta})
	return nil
}

// Turns returns a copy of everything recorded so far.
func (s *MemoryStore) Turns() []StoredTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StoredTurn(nil), s.turns...)
}
