// internal/game/events.go
package game

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jason-s-yu/memorymatch/internal/models"
	"github.com/sirupsen/logrus"
)

// GameEventType is an enum-like type for outbound room events.
type GameEventType string

const (
	EventGameUpdate     GameEventType = "game_update"     // personalized state snapshot
	EventMatchFound     GameEventType = "match_found"     // two equal cards resolved
	EventNoMatch        GameEventType = "no_match"        // two unequal cards, resolution pending
	EventPlayerJoined   GameEventType = "player_joined"   // a player (re)joined the room
	EventPlayerLeft     GameEventType = "player_left"     // a player's last connection closed or was pruned
	EventGameOver       GameEventType = "game_over"       // every pair has been matched
	EventActionRejected GameEventType = "action_rejected" // sent to the acting client only
)

// Standing is one player's final score, listed in seat order.
type Standing struct {
	PlayerID uuid.UUID `json:"player_id"`
	Name     string    `json:"name"`
	Score    int       `json:"score"`
}

// GameEvent is one outbound message. game_update events carry a frozen copy
// of the room taken when the event was emitted; it is projected per
// recipient at delivery time and never serialized as-is.
type GameEvent struct {
	Type GameEventType `json:"type"`

	Game       *GameState     `json:"game,omitempty"`
	Indices    []int          `json:"indices,omitempty"`
	Player     string         `json:"player,omitempty"`
	PlayerName string         `json:"player_name,omitempty"`
	Winners    []uuid.UUID    `json:"winners,omitempty"`
	Scores     []Standing     `json:"scores,omitempty"`
	Action     string         `json:"action,omitempty"`
	Reason     string         `json:"reason,omitempty"`

	room *models.Room
}

// Personalized reports whether the event must be rendered per recipient.
func (ev GameEvent) Personalized() bool {
	return ev.Type == EventGameUpdate
}

// Room returns the room state captured for a personalized event.
func (ev GameEvent) Room() *models.Room {
	return ev.room
}

// ForRecipient renders a personalized event for one player. Shared events
// are returned unchanged.
func (ev GameEvent) ForRecipient(recipient uuid.UUID) GameEvent {
	if !ev.Personalized() || ev.room == nil {
		return ev
	}
	state := Snapshot(ev.room, recipient)
	return GameEvent{Type: EventGameUpdate, Game: &state}
}

// updateEvent captures the current room state for a later per-recipient pass.
func updateEvent(r *models.Room) GameEvent {
	return GameEvent{Type: EventGameUpdate, room: CloneRoom(r)}
}

// Bytes marshals an event. Logs a warning and returns "{}" on failure.
func (ev GameEvent) Bytes() []byte {
	data, err := json.Marshal(ev)
	if err != nil {
		logrus.Warnf("Failed to marshal GameEvent type %s: %v", ev.Type, err)
		return []byte("{}")
	}
	return data
}

// CloneRoom deep-copies a room so later mutations do not leak into captured events.
func CloneRoom(r *models.Room) *models.Room {
	if r == nil {
		return nil
	}
	c := *r
	c.Players = make([]*models.Player, len(r.Players))
	for i, p := range r.Players {
		cp := *p
		c.Players[i] = &cp
	}
	c.Cards = append([]string{}, r.Cards...)
	c.Flipped = append([]int{}, r.Flipped...)
	c.Matched = append([]int{}, r.Matched...)
	if r.Resolving != nil {
		res := *r.Resolving
		c.Resolving = &res
	}
	return &c
}
