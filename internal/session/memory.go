package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps session records in a process-local map. State is
// lost on restart; use the signed-file or redis backend when sessions
// must survive one.
type MemoryStore struct {
	mu   sync.RWMutex
	recs map[string]*Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[string]*Record)}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) Put(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.ID] = rec.Clone()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recs, id)
	return nil
}

func (s *MemoryStore) ListByPlayer(ctx context.Context, playerID int64) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Record
	for _, rec := range s.recs {
		if rec.PlayerID == playerID {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) PurgeTerminal(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, rec := range s.recs {
		if rec.Status.Terminal() && rec.UpdatedAt.Before(cutoff) {
			delete(s.recs, id)
			n++
		}
	}
	return n, nil
}
