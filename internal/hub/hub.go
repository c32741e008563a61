// internal/hub/hub.go
package hub

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/memorymatch/internal/game"
	"github.com/jason-s-yu/memorymatch/internal/keylock"
	"github.com/sirupsen/logrus"
)

type seat struct {
	room   string
	player uuid.UUID
}

// Hub tracks the live connections of every room on this process and
// delivers room events to them. It maps connection handles to player
// identities and counts connections per identity so a player is only
// reported gone when their last tab closes.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[uuid.UUID]*Client // room -> conn id -> client
	refs    map[seat]int

	seats  *keylock.Map[seat]
	logger *logrus.Logger
}

// New returns an empty hub.
func New(logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		clients: make(map[string]map[uuid.UUID]*Client),
		refs:    make(map[seat]int),
		seats:   keylock.New[seat](),
		logger:  logger,
	}
}

// Attach registers c and then calls join. Attach and Detach for the same
// room and player are serialized, so join and leave callbacks never
// interleave for one identity. If join fails the registration is undone.
func (h *Hub) Attach(c *Client, join func() error) error {
	unlock := h.seats.Lock(seat{c.Room, c.PlayerID})
	defer unlock()

	h.register(c)
	if err := join(); err != nil {
		h.unregister(c)
		return err
	}
	return nil
}

// Detach unregisters c. When c was the player's last connection in the
// room, leave is called.
func (h *Hub) Detach(c *Client, leave func() error) error {
	unlock := h.seats.Lock(seat{c.Room, c.PlayerID})
	defer unlock()

	if last := h.unregister(c); last {
		return leave()
	}
	return nil
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.clients[c.Room]
	if !ok {
		conns = make(map[uuid.UUID]*Client)
		h.clients[c.Room] = conns
	}
	if _, dup := conns[c.ID]; dup {
		return
	}
	conns[c.ID] = c
	h.refs[seat{c.Room, c.PlayerID}]++
}

// unregister reports whether c was the player's last connection.
func (h *Hub) unregister(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.clients[c.Room]
	if !ok {
		return false
	}
	if _, ok := conns[c.ID]; !ok {
		return false
	}
	delete(conns, c.ID)
	if len(conns) == 0 {
		delete(h.clients, c.Room)
	}
	s := seat{c.Room, c.PlayerID}
	h.refs[s]--
	if h.refs[s] > 0 {
		return false
	}
	delete(h.refs, s)
	return true
}

// Connections reports how many live connections a player has in a room.
func (h *Hub) Connections(room string, player uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.refs[seat{room, player}]
}

// RoomSize reports the number of live connections in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[room])
}

func (h *Hub) roomClients(room string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := h.clients[room]
	out := make([]*Client, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}

// Publish delivers events to every connection of a room in order. Shared
// events are encoded once; game_update is rendered once per player.
func (h *Hub) Publish(room string, events []game.GameEvent) {
	clients := h.roomClients(room)
	if len(clients) == 0 {
		return
	}
	for _, ev := range events {
		if !ev.Personalized() {
			data := ev.Bytes()
			for _, c := range clients {
				c.Write(data)
			}
			continue
		}
		rendered := make(map[uuid.UUID][]byte, len(clients))
		for _, c := range clients {
			data, ok := rendered[c.PlayerID]
			if !ok {
				data = ev.ForRecipient(c.PlayerID).Bytes()
				rendered[c.PlayerID] = data
			}
			c.Write(data)
		}
	}
	h.logger.WithFields(logrus.Fields{
		"room":    room,
		"events":  len(events),
		"clients": len(clients),
	}).Debug("published room events")
}
