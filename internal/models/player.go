package models

import "github.com/google/uuid"

// Player is one participant of a room. The ID is the stable player identity,
// never a connection handle.
type Player struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Score     int       `json:"score"`
	Connected bool      `json:"connected"`

	// DisconnectedAt is the unix millisecond timestamp of the last
	// disconnect, or 0 while the player is connected.
	DisconnectedAt int64 `json:"disconnected_at,omitempty"`
}
