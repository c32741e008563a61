// internal/game/game.go
package game

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/memorymatch/internal/models"
)

// DefaultMismatchDelay is how long two unequal cards stay face-up.
const DefaultMismatchDelay = 1500 * time.Millisecond

// Phase is the derived state of a room.
type Phase string

const (
	PhaseLobby              Phase = "lobby"
	PhaseAwaitingFirstFlip  Phase = "awaiting_first_flip"
	PhaseAwaitingSecondFlip Phase = "awaiting_second_flip"
	PhaseResolving          Phase = "resolving"
	PhaseFinished           Phase = "finished"
)

// PhaseOf derives the phase of a room from its fields.
func PhaseOf(r *models.Room) Phase {
	switch {
	case !r.Started:
		return PhaseLobby
	case r.Finished:
		return PhaseFinished
	case len(r.Flipped) == 2:
		return PhaseResolving
	case len(r.Flipped) == 1:
		return PhaseAwaitingSecondFlip
	default:
		return PhaseAwaitingFirstFlip
	}
}

// Engine applies room actions. It holds no room state of its own; every
// method mutates the room passed in and returns the events to deliver, in
// order. Callers are responsible for loading and saving the room atomically.
type Engine struct {
	MismatchDelay time.Duration

	// Now and Shuffle are replaceable for tests.
	Now     func() time.Time
	Shuffle func(n int, swap func(i, j int))
}

// NewEngine returns an engine using the wall clock and a global random source.
func NewEngine(mismatchDelay time.Duration) *Engine {
	if mismatchDelay <= 0 {
		mismatchDelay = DefaultMismatchDelay
	}
	return &Engine{
		MismatchDelay: mismatchDelay,
		Now:           time.Now,
		Shuffle:       rand.Shuffle,
	}
}

// Deal doubles the distinct values and shuffles them into a board.
func (e *Engine) Deal(values []string) ([]string, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: no card values", ErrInvalidDeck)
	}
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if seen[v] {
			return nil, fmt.Errorf("%w: duplicate value %q", ErrInvalidDeck, v)
		}
		seen[v] = true
	}
	cards := make([]string, 0, len(values)*2)
	cards = append(cards, values...)
	cards = append(cards, values...)
	e.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
	return cards, nil
}

// Join adds a player or reactivates a known one. Joining never fails.
func (e *Engine) Join(r *models.Room, playerID uuid.UUID) []GameEvent {
	var events []GameEvent
	p := r.Player(playerID)
	switch {
	case p == nil:
		p = &models.Player{
			ID:        playerID,
			Name:      fmt.Sprintf("Player %d", len(r.Players)+1),
			Connected: true,
		}
		r.Players = append(r.Players, p)
		events = append(events, GameEvent{Type: EventPlayerJoined, PlayerName: p.Name})
	case !p.Connected:
		p.Connected = true
		p.DisconnectedAt = 0
		events = append(events, GameEvent{Type: EventPlayerJoined, PlayerName: p.Name})
	}

	if holder := r.Player(r.Turn); holder == nil || (!holder.Connected && r.Resolving == nil) {
		r.Turn = playerID
	}
	e.touch(r)
	return append(events, updateEvent(r))
}

// Leave removes a player. The returned events are empty when the room has
// no players left and should be deleted.
func (e *Engine) Leave(r *models.Room, playerID uuid.UUID) []GameEvent {
	idx := r.PlayerIndex(playerID)
	if idx < 0 {
		return nil
	}
	name := r.Players[idx].Name
	r.Players = append(r.Players[:idx], r.Players[idx+1:]...)

	if r.Turn == playerID {
		if len(r.Flipped) == 1 {
			r.Flipped = []int{}
		}
		r.Turn = firstPlayer(r)
	}
	e.touch(r)
	if len(r.Players) == 0 {
		return nil
	}
	return []GameEvent{
		{Type: EventPlayerLeft, PlayerName: name},
		updateEvent(r),
	}
}

// Disconnect marks a player whose last connection closed. The player keeps
// their seat and score until pruned.
func (e *Engine) Disconnect(r *models.Room, playerID uuid.UUID) []GameEvent {
	p := r.Player(playerID)
	if p == nil || !p.Connected {
		return nil
	}
	p.Connected = false
	p.DisconnectedAt = e.Now().UnixMilli()

	// A pending resolution moves the turn on by itself.
	if r.Turn == playerID && r.Resolving == nil {
		if len(r.Flipped) == 1 {
			r.Flipped = []int{}
		}
		r.Turn = nextPlayer(r, playerID)
	}
	e.touch(r)
	return []GameEvent{
		{Type: EventPlayerLeft, PlayerName: p.Name},
		updateEvent(r),
	}
}

// Prune removes a disconnected player whose grace window has elapsed. It
// reports whether the player was removed.
func (e *Engine) Prune(r *models.Room, playerID uuid.UUID, grace time.Duration) ([]GameEvent, bool) {
	p := r.Player(playerID)
	if p == nil || p.Connected {
		return nil, false
	}
	if e.Now().UnixMilli()-p.DisconnectedAt < grace.Milliseconds() {
		return nil, false
	}
	return e.Leave(r, playerID), true
}

// Start deals a fresh board and resets scores. It may be called in any
// phase, including mid-game.
func (e *Engine) Start(r *models.Room, theme string, values []string) ([]GameEvent, error) {
	cards, err := e.Deal(values)
	if err != nil {
		return nil, err
	}
	r.Theme = theme
	r.Cards = cards
	r.Flipped = []int{}
	r.Matched = []int{}
	r.Resolving = nil
	r.Finished = false
	r.Started = true
	for _, p := range r.Players {
		p.Score = 0
	}
	e.touch(r)
	return []GameEvent{updateEvent(r)}, nil
}

// Flip reveals one card for the turn holder. On a mismatch the room enters
// the resolving phase and the caller must schedule Resolve for
// r.Resolving.ID after e.MismatchDelay. A resolution that is already due is
// completed first, so a room whose timer was lost still moves on.
func (e *Engine) Flip(r *models.Room, playerID uuid.UUID, index int) ([]GameEvent, error) {
	res := r.Resolving
	if res == nil || e.Now().UnixMilli() < res.DueAt {
		return e.flip(r, playerID, index)
	}

	flipped, turn, updated := r.Flipped, r.Turn, r.UpdatedAt
	events := e.Resolve(r, res.ID)
	more, err := e.flip(r, playerID, index)
	if err != nil {
		r.Resolving, r.Flipped, r.Turn, r.UpdatedAt = res, flipped, turn, updated
		return nil, err
	}
	return append(events, more...), nil
}

func (e *Engine) flip(r *models.Room, playerID uuid.UUID, index int) ([]GameEvent, error) {
	const action = "flip_card"
	switch {
	case !r.Started:
		return nil, reject(action, ReasonNotStarted)
	case r.Finished:
		return nil, reject(action, ReasonFinished)
	case r.Resolving != nil || len(r.Flipped) >= 2:
		return nil, reject(action, ReasonResolving)
	case r.Turn != playerID || r.Player(playerID) == nil:
		return nil, reject(action, ReasonNotYourTurn)
	case index < 0 || index >= len(r.Cards):
		return nil, reject(action, ReasonOutOfRange)
	case r.IsMatched(index):
		return nil, reject(action, ReasonMatched)
	case r.IsFlipped(index):
		return nil, reject(action, ReasonFlipped)
	}

	r.Flipped = append(r.Flipped, index)
	e.touch(r)
	events := []GameEvent{updateEvent(r)}
	if len(r.Flipped) < 2 {
		return events, nil
	}

	first, second := r.Flipped[0], r.Flipped[1]
	pair := []int{first, second}
	if r.Cards[first] != r.Cards[second] {
		r.Resolving = &models.Resolution{
			ID:      uuid.New(),
			Actor:   playerID,
			Indices: [2]int{first, second},
			DueAt:   e.Now().Add(e.MismatchDelay).UnixMilli(),
		}
		return append(events, GameEvent{Type: EventNoMatch, Indices: pair}), nil
	}

	actor := r.Player(playerID)
	r.Matched = append(r.Matched, first, second)
	actor.Score++
	r.Flipped = []int{}
	events = append(events, GameEvent{Type: EventMatchFound, Indices: pair, Player: actor.Name})

	if len(r.Matched) == len(r.Cards) {
		r.Finished = true
		events = append(events, gameOverEvent(r))
	}
	return append(events, updateEvent(r)), nil
}

// Resolve completes a pending mismatch: the cards turn face-down and the
// turn passes on. Stale or unknown resolution ids are ignored.
func (e *Engine) Resolve(r *models.Room, resolutionID uuid.UUID) []GameEvent {
	if r.Resolving == nil || r.Resolving.ID != resolutionID {
		return nil
	}
	actor := r.Resolving.Actor
	r.Resolving = nil
	r.Flipped = []int{}

	// Leave may already have handed the turn to someone else.
	if r.Turn == actor || r.Player(r.Turn) == nil {
		r.Turn = nextPlayer(r, actor)
	}
	e.touch(r)
	return []GameEvent{updateEvent(r)}
}

func (e *Engine) touch(r *models.Room) {
	r.UpdatedAt = e.Now().UTC()
}

func gameOverEvent(r *models.Room) GameEvent {
	best := -1
	standings := make([]Standing, 0, len(r.Players))
	for _, p := range r.Players {
		standings = append(standings, Standing{PlayerID: p.ID, Name: p.Name, Score: p.Score})
		if p.Score > best {
			best = p.Score
		}
	}
	var winners []uuid.UUID
	for _, p := range r.Players {
		if p.Score == best {
			winners = append(winners, p.ID)
		}
	}
	return GameEvent{Type: EventGameOver, Winners: winners, Scores: standings}
}
