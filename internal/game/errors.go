package game

import (
	"errors"
	"fmt"
)

// ErrRejected is wrapped by every precondition failure of a room action.
var ErrRejected = errors.New("action rejected")

// ErrInvalidDeck is returned when a deck cannot be dealt.
var ErrInvalidDeck = errors.New("invalid deck")

// Rejection reasons reported back to the acting client.
const (
	ReasonNotStarted  = "game not started"
	ReasonFinished    = "game finished"
	ReasonResolving   = "previous pair is still resolving"
	ReasonNotYourTurn = "not your turn"
	ReasonOutOfRange  = "index out of range"
	ReasonMatched     = "card already matched"
	ReasonFlipped     = "card already flipped"
	ReasonRateLimited = "rate limited"
)

// RejectError describes why an action was refused. State is never modified
// when a RejectError is returned.
type RejectError struct {
	Action string
	Reason string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Action, e.Reason)
}

func (e *RejectError) Unwrap() error {
	return ErrRejected
}

func reject(action, reason string) error {
	return &RejectError{Action: action, Reason: reason}
}

// RejectedEvent builds the sender-only notification for a rejected action.
func RejectedEvent(err *RejectError) GameEvent {
	return GameEvent{Type: EventActionRejected, Action: err.Action, Reason: err.Reason}
}
