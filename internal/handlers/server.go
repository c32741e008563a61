// internal/handlers/server.go
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jason-s-yu/memorymatch/internal/deck"
	"github.com/jason-s-yu/memorymatch/internal/game"
	"github.com/jason-s-yu/memorymatch/internal/hub"
	"github.com/jason-s-yu/memorymatch/internal/identity"
	"github.com/jason-s-yu/memorymatch/internal/middleware"
	"github.com/jason-s-yu/memorymatch/internal/rooms"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Subprotocol is the optional WebSocket subprotocol spoken by room clients.
const Subprotocol = "memory"

// RoomServer holds everything the HTTP and WebSocket handlers need.
type RoomServer struct {
	Directory *rooms.Directory
	Hub       *hub.Hub
	Identity  *identity.Issuer
	Deck      deck.Provider
	Engine    *game.Engine
	Logger    *logrus.Logger

	// Origins feeds both CORS and the WebSocket origin check.
	Origins     []string
	ActionRate  rate.Limit
	ActionBurst int
}

// Router builds the chi router for the service.
func (s *RoomServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.LogMiddleware(s.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.Origins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/api/rooms", ListRoomsHandler(s.Directory, s.Logger))
	r.Get("/api/new-game", NewGameHandler(s.Deck, s.Engine))

	ws := RoomWSHandler(s)
	r.Get("/ws/game/{room}", ws)
	r.Get("/ws/game/{room}/", ws)
	return r
}
