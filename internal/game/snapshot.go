// internal/game/snapshot.go
package game

import (
	"github.com/google/uuid"
	"github.com/jason-s-yu/memorymatch/internal/models"
)

// NoCurrentPlayer is shown as the current player's name while nobody holds the turn.
const NoCurrentPlayer = "Waiting for players"

// PlayerState is one player entry as seen by a specific recipient.
type PlayerState struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Score     int       `json:"score"`
	Connected bool      `json:"connected"`
	IsCurrent bool      `json:"is_current"`
	IsYou     bool      `json:"is_you"`
}

// GameState is the redacted room snapshot sent in game_update events.
type GameState struct {
	Players       []PlayerState `json:"players"`
	Cards         []string      `json:"cards"`
	Matched       []int         `json:"matched"`
	Flipped       []int         `json:"flipped"`
	CurrentPlayer string        `json:"current_player"`
	Theme         string        `json:"theme"`
	Started       bool          `json:"started"`
	Finished      bool          `json:"finished"`
	IsYourTurn    bool          `json:"is_your_turn"`
}

// Snapshot generates the view of a room for the requesting player. Card
// values are withheld until the game has started.
func Snapshot(r *models.Room, forPlayer uuid.UUID) GameState {
	state := GameState{
		Players:       make([]PlayerState, 0, len(r.Players)),
		Cards:         []string{},
		Matched:       append([]int{}, r.Matched...),
		Flipped:       append([]int{}, r.Flipped...),
		CurrentPlayer: NoCurrentPlayer,
		Theme:         r.Theme,
		Started:       r.Started,
		Finished:      r.Finished,
		IsYourTurn:    r.Turn != uuid.Nil && r.Turn == forPlayer,
	}
	if r.Started {
		state.Cards = append(state.Cards, r.Cards...)
	}
	if holder := r.Player(r.Turn); holder != nil {
		state.CurrentPlayer = holder.Name
	}
	for _, p := range r.Players {
		state.Players = append(state.Players, PlayerState{
			ID:        p.ID,
			Name:      p.Name,
			Score:     p.Score,
			Connected: p.Connected,
			IsCurrent: p.ID == r.Turn,
			IsYou:     p.ID == forPlayer,
		})
	}
	return state
}
