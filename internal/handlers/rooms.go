// internal/handlers/rooms.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/jason-s-yu/memorymatch/internal/deck"
	"github.com/jason-s-yu/memorymatch/internal/game"
	"github.com/jason-s-yu/memorymatch/internal/models"
	"github.com/jason-s-yu/memorymatch/internal/rooms"
	"github.com/sirupsen/logrus"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ListRoomsHandler returns every room with its connected player count.
func ListRoomsHandler(dir *rooms.Directory, logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summaries, err := dir.List(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to list rooms")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "rooms unavailable"})
			return
		}
		if summaries == nil {
			summaries = []models.RoomSummary{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"rooms": summaries})
	}
}

// NewGameHandler deals a detached board for the requested theme. It does
// not touch any room.
func NewGameHandler(provider deck.Provider, engine *game.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		theme := deck.NormalizeTheme(r.URL.Query().Get("theme"))
		cards, err := engine.Deal(provider.Values(r.Context(), theme))
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"cards": cards,
			"theme": theme,
		})
	}
}
