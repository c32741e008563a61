package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultTheme is the theme a room starts with.
const DefaultTheme = "emoji"

// Resolution is a pending mismatch resolution. It exists exactly while two
// cards are flipped and unresolved.
type Resolution struct {
	ID      uuid.UUID `json:"id"`
	Actor   uuid.UUID `json:"actor"`
	Indices [2]int    `json:"indices"`
	DueAt   int64     `json:"due_at"`
}

// Room is the full persisted state of one game room.
type Room struct {
	Key     string    `json:"key"`
	Players []*Player `json:"players"`
	Cards   []string  `json:"cards"`
	Flipped []int     `json:"flipped"`
	Matched []int     `json:"matched"`
	Turn    uuid.UUID `json:"turn"`
	Theme   string    `json:"theme"`

	Started   bool        `json:"started"`
	Finished  bool        `json:"finished"`
	Resolving *Resolution `json:"resolving,omitempty"`

	// Version is owned by the store and bumped on every successful save.
	// A zero version means the room has never been saved.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRoom returns the initial state for an unseen room key.
func NewRoom(key string) *Room {
	now := time.Now().UTC()
	return &Room{
		Key:       key,
		Players:   []*Player{},
		Cards:     []string{},
		Flipped:   []int{},
		Matched:   []int{},
		Theme:     DefaultTheme,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Player returns the player with the given id, or nil.
func (r *Room) Player(id uuid.UUID) *Player {
	for _, p := range r.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// PlayerIndex returns the insertion position of a player, or -1.
func (r *Room) PlayerIndex(id uuid.UUID) int {
	for i, p := range r.Players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// ConnectedCount counts players with at least one live connection.
func (r *Room) ConnectedCount() int {
	n := 0
	for _, p := range r.Players {
		if p.Connected {
			n++
		}
	}
	return n
}

// IsMatched reports whether a board index is permanently face-up.
func (r *Room) IsMatched(idx int) bool {
	for _, m := range r.Matched {
		if m == idx {
			return true
		}
	}
	return false
}

// IsFlipped reports whether a board index is face-up and unresolved.
func (r *Room) IsFlipped(idx int) bool {
	for _, f := range r.Flipped {
		if f == idx {
			return true
		}
	}
	return false
}

// Summary builds the read-only listing entry for this room.
func (r *Room) Summary() RoomSummary {
	return RoomSummary{
		Name:    r.Key,
		Players: r.ConnectedCount(),
		Started: r.Started,
		Theme:   r.Theme,
	}
}

// RoomSummary is the informational listing entry of a room.
type RoomSummary struct {
	Name    string `json:"name"`
	Players int    `json:"players"`
	Started bool   `json:"started"`
	Theme   string `json:"theme"`
}
