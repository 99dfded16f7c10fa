package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/berfenger/battracker2mqtt/internal/core/domain"
	"github.com/berfenger/battracker2mqtt/internal/core/port"
)

// MemoryStore keeps the last snapshot in process memory. The snapshot is
// stored encoded so callers never share state with the store.
type MemoryStore struct {
	mu   sync.Mutex
	data []byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(ctx context.Context, snapshot domain.TrackerSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	return nil
}

func (s *MemoryStore) Load(ctx context.Context) (*domain.TrackerSnapshot, error) {
	s.mu.Lock()
	data := s.data
	s.mu.Unlock()
	if data == nil {
		return nil, domain.ErrSnapshotNotFound
	}
	return decodeSnapshot(data)
}

func (s *MemoryStore) Close() error {
	return nil
}

func decodeSnapshot(data []byte) (*domain.TrackerSnapshot, error) {
	var snapshot domain.TrackerSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// ensure interface compliance
var _ port.SnapshotStore = (*MemoryStore)(nil)
