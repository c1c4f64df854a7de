package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore keeps snapshots in process memory. It serializes through the
// same JSON round-trip as the Redis store so both behave identically from the
// hub's point of view.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snaps: make(map[string][]byte),
	}
}

func (s *MemoryStore) Save(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	s.mu.Lock()
	s.snaps[snap.SessionID] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	s.mu.RLock()
	data, ok := s.snaps[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.snaps, sessionID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.snaps))
	for id := range s.snaps {
		ids = append(ids, id)
	}
	return ids, nil
}
