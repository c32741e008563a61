// internal/hub/client.go
package hub

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jason-s-yu/memorymatch/internal/game"
	"github.com/sirupsen/logrus"
)

// DefaultBuffer is the outbound queue length of one connection.
const DefaultBuffer = 64

// Client is one live connection. Several clients may share a PlayerID when
// the same identity has multiple tabs open.
type Client struct {
	ID       uuid.UUID // connection handle, never a player identity
	PlayerID uuid.UUID
	Room     string

	OutChan chan []byte
	Cancel  context.CancelFunc // stops the connection's pumps
	logger  *logrus.Logger
}

// NewClient builds a connection handle. cancel is invoked when the client
// falls too far behind to keep its queue in order.
func NewClient(room string, playerID uuid.UUID, buffer int, cancel context.CancelFunc, logger *logrus.Logger) *Client {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		ID:       uuid.New(),
		PlayerID: playerID,
		Room:     room,
		OutChan:  make(chan []byte, buffer),
		Cancel:   cancel,
		logger:   logger,
	}
}

// Write queues an encoded message without blocking. A full queue means the
// client cannot keep up; it is disconnected rather than served out of order.
func (c *Client) Write(data []byte) bool {
	select {
	case c.OutChan <- data:
		return true
	default:
		c.logger.WithFields(logrus.Fields{
			"room":   c.Room,
			"player": c.PlayerID,
			"conn":   c.ID,
		}).Warn("outbound queue full, dropping connection")
		if c.Cancel != nil {
			c.Cancel()
		}
		return false
	}
}

// WriteEvent renders an event for this client and queues it.
func (c *Client) WriteEvent(ev game.GameEvent) bool {
	return c.Write(ev.ForRecipient(c.PlayerID).Bytes())
}

// WriteJSON queues an arbitrary message.
func (c *Client) WriteJSON(msg interface{}) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Warnf("failed to marshal outgoing msg for conn %v: %v", c.ID, err)
		return false
	}
	return c.Write(data)
}

// WriteError is a convenience to send an error object.
func (c *Client) WriteError(msg string) bool {
	return c.WriteJSON(map[string]interface{}{
		"type":    "error",
		"message": msg,
	})
}
