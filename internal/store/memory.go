// internal/store/memory.go
package store

import (
	"context"
	"sync"

	"github.com/jason-s-yu/memorymatch/internal/models"
)

// MemoryStore keeps rooms in process memory. Rooms are stored encoded so
// callers never share state with the store.
type MemoryStore struct {
	mu    sync.Mutex
	rooms map[string][]byte
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string][]byte)}
}

func (s *MemoryStore) Load(_ context.Context, key string) (*models.Room, error) {
	s.mu.Lock()
	data, ok := s.rooms[key]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decodeRoom(data)
}

func (s *MemoryStore) Save(_ context.Context, r *models.Room) error {
	data, err := encodeRoom(r)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.rooms[r.Key]
	switch {
	case !ok && r.Version != 0:
		return ErrVersionConflict
	case ok:
		v, err := storedVersion(cur)
		if err != nil {
			return err
		}
		if v != r.Version {
			return ErrVersionConflict
		}
	}
	s.rooms[r.Key] = data
	r.Version++
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.rooms[key]
	if !ok {
		return nil
	}
	if version >= 0 {
		v, err := storedVersion(cur)
		if err != nil {
			return err
		}
		if v != version {
			return ErrVersionConflict
		}
	}
	delete(s.rooms, key)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Room, 0, len(s.rooms))
	for _, data := range s.rooms {
		r, err := decodeRoom(data)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
