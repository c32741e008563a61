package game

import (
	"github.com/google/uuid"
	"github.com/jason-s-yu/memorymatch/internal/models"
)

// nextPlayer returns the next connected player after from, in insertion
// order with wrap-around. If nobody else is connected it falls back to the
// plain next player; if from is no longer in the room it falls back to the
// first connected player.
func nextPlayer(r *models.Room, from uuid.UUID) uuid.UUID {
	n := len(r.Players)
	if n == 0 {
		return uuid.Nil
	}
	start := r.PlayerIndex(from)
	if start < 0 {
		return firstPlayer(r)
	}
	for step := 1; step <= n; step++ {
		p := r.Players[(start+step)%n]
		if p.Connected {
			return p.ID
		}
	}
	return r.Players[(start+1)%n].ID
}

// firstPlayer returns the first connected player, else the first player, else Nil.
func firstPlayer(r *models.Room) uuid.UUID {
	for _, p := range r.Players {
		if p.Connected {
			return p.ID
		}
	}
	if len(r.Players) > 0 {
		return r.Players[0].ID
	}
	return uuid.Nil
}
