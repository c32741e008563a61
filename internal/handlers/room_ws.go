// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/jason-s-yu/memorymatch/internal/game"
	"github.com/jason-s-yu/memorymatch/internal/hub"
	"github.com/jason-s-yu/memorymatch/internal/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	maxRoomKeyLen = 64
	readLimit     = 4096
	writeTimeout  = 5 * time.Second
	pingPeriod    = 30 * time.Second
	leaveTimeout  = 5 * time.Second
)

// RoomMessage is an inbound client frame.
type RoomMessage struct {
	Action string `json:"action"`
	Theme  string `json:"theme,omitempty"`
	Index  *int   `json:"index,omitempty"`
}

// RoomWSHandler upgrades GET /ws/game/{room} to a WebSocket, joins the
// caller's player to the room and pumps messages until the socket closes.
func RoomWSHandler(s *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomKey := chi.URLParam(r, "room")
		if roomKey == "" || len(roomKey) > maxRoomKeyLen {
			http.Error(w, "invalid room key", http.StatusBadRequest)
			return
		}

		// The identity cookie must be set before the upgrade response is written.
		playerID, err := s.Identity.EnsurePlayer(w, r)
		if err != nil {
			s.Logger.Warnf("player identity failed for room %s: %v", roomKey, err)
			http.Error(w, "identity unavailable", http.StatusInternalServerError)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{Subprotocol},
			OriginPatterns: originPatterns(s.Origins),
		})
		if err != nil {
			s.Logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if r.Header.Get("Sec-WebSocket-Protocol") != "" && c.Subprotocol() != Subprotocol {
			c.Close(BadSubprotocolError, "client must speak the memory subprotocol")
			return
		}
		c.SetReadLimit(readLimit)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		client := hub.NewClient(roomKey, playerID, hub.DefaultBuffer, cancel, s.Logger)
		go writePump(ctx, c, client, s.Logger)

		err = s.Hub.Attach(client, func() error {
			return s.Directory.Join(ctx, roomKey, playerID)
		})
		if err != nil {
			s.Logger.WithFields(logrus.Fields{"room": roomKey, "player": playerID}).
				WithError(err).Error("failed to join room")
			c.Close(JoinFailedError, "failed to join room")
			return
		}
		middleware.LogWebSocketConnect(s.Logger, r.RemoteAddr, roomKey, playerID.String())

		limiter := rate.NewLimiter(s.ActionRate, s.ActionBurst)
		readErr := readPump(ctx, c, s, client, limiter)

		// Leave with a fresh context; the request context may already be done.
		leaveCtx, leaveCancel := context.WithTimeout(context.Background(), leaveTimeout)
		defer leaveCancel()
		err = s.Hub.Detach(client, func() error {
			return s.Directory.Disconnect(leaveCtx, roomKey, playerID)
		})
		if err != nil {
			s.Logger.WithFields(logrus.Fields{"room": roomKey, "player": playerID}).
				WithError(err).Error("failed to record disconnect")
		}
		middleware.LogWebSocketDisconnect(s.Logger, r.RemoteAddr, roomKey, playerID.String(), readErr)

		cancel()
		c.Close(websocket.StatusNormalClosure, "")
	}
}

var knownActions = map[string]bool{
	"ping":       true,
	"start_game": true,
	"flip_card":  true,
}

// readPump handles incoming frames until the connection fails. It returns
// the read error for logging, or nil on a normal close.
func readPump(ctx context.Context, c *websocket.Conn, s *RoomServer, client *hub.Client, limiter *rate.Limiter) error {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			s.Logger.Debugf("Room %s: ignoring non-text frame from player %v", client.Room, client.PlayerID)
			continue
		}

		var msg RoomMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.Logger.Debugf("Room %s: invalid json from player %v: %v", client.Room, client.PlayerID, err)
			client.WriteError("Invalid JSON format.")
			continue
		}
		if !knownActions[msg.Action] {
			s.Logger.Debugf("Room %s: ignoring unknown action %q from player %v", client.Room, msg.Action, client.PlayerID)
			continue
		}
		if !limiter.Allow() {
			client.WriteEvent(game.RejectedEvent(&game.RejectError{Action: msg.Action, Reason: game.ReasonRateLimited}))
			continue
		}
		handleRoomMessage(ctx, s, client, msg)
	}
}

// handleRoomMessage dispatches one decoded action. Rejections and failures
// are answered to the sender only; successful actions are broadcast by the
// directory.
func handleRoomMessage(ctx context.Context, s *RoomServer, client *hub.Client, msg RoomMessage) {
	log := s.Logger.WithFields(logrus.Fields{
		"room":   client.Room,
		"player": client.PlayerID,
		"action": msg.Action,
	})

	var err error
	switch msg.Action {
	case "ping":
		client.WriteJSON(map[string]string{"type": "pong"})
		return
	case "start_game":
		err = s.Directory.Start(ctx, client.Room, client.PlayerID, msg.Theme)
	case "flip_card":
		if msg.Index == nil {
			err = &game.RejectError{Action: msg.Action, Reason: game.ReasonOutOfRange}
			break
		}
		err = s.Directory.Flip(ctx, client.Room, client.PlayerID, *msg.Index)
	default:
		log.Debug("ignoring unknown action")
		return
	}

	var rej *game.RejectError
	switch {
	case err == nil:
	case errors.As(err, &rej):
		log.WithField("reason", rej.Reason).Debug("action rejected")
		client.WriteEvent(game.RejectedEvent(rej))
	case errors.Is(err, context.Canceled):
	default:
		log.WithError(err).Error("failed to apply action")
		client.WriteError("Failed to apply action.")
	}
}

// writePump drains the client's queue onto the socket and keeps the
// connection alive with pings.
func writePump(ctx context.Context, c *websocket.Conn, client *hub.Client, logger *logrus.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case data := <-client.OutChan:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("Room %s: failed to write to player %v: %v", client.Room, client.PlayerID, err)
				client.Cancel()
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Debugf("Room %s: ping to player %v failed: %v", client.Room, client.PlayerID, err)
				client.Cancel()
				return
			}
		}
	}
}

// originPatterns converts allowed origins into coder/websocket host patterns.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimPrefix(o, "https://")
		o = strings.TrimPrefix(o, "http://")
		out = append(out, strings.TrimSuffix(o, "/"))
	}
	return out
}

