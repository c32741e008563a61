// internal/store/store.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jason-s-yu/memorymatch/internal/models"
)

var (
	// ErrNotFound is returned by Load when no room exists under a key.
	ErrNotFound = errors.New("room not found")

	// ErrVersionConflict is returned by Save and Delete when the stored
	// version no longer matches the caller's copy.
	ErrVersionConflict = errors.New("room version conflict")
)

// Store persists rooms with optimistic concurrency. Every implementation
// is safe for concurrent use by multiple goroutines and, for shared
// backends, by multiple processes.
type Store interface {
	// Load returns a private copy of the room under key.
	Load(ctx context.Context, key string) (*models.Room, error)

	// Save writes r if the stored version equals r.Version. A zero version
	// creates the room and fails if it already exists. On success r.Version
	// is incremented to the stored version.
	Save(ctx context.Context, r *models.Room) error

	// Delete removes the room if its stored version equals version. A
	// negative version deletes unconditionally. Deleting a missing room is
	// not an error.
	Delete(ctx context.Context, key string, version int64) error

	// List returns every stored room in no particular order.
	List(ctx context.Context) ([]*models.Room, error)

	// Close releases resources held by the store.
	Close() error
}

// encodeRoom serializes r as it will be after a successful save.
func encodeRoom(r *models.Room) ([]byte, error) {
	next := *r
	next.Version = r.Version + 1
	data, err := json.Marshal(&next)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal room %q: %w", r.Key, err)
	}
	return data, nil
}

func decodeRoom(data []byte) (*models.Room, error) {
	var r models.Room
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room: %w", err)
	}
	return &r, nil
}

// storedVersion reads only the version field of an encoded room.
func storedVersion(data []byte) (int64, error) {
	var v struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return 0, fmt.Errorf("failed to read room version: %w", err)
	}
	return v.Version, nil
}
