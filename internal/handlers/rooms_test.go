package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestListRoomsEmpty(t *testing.T) {
	ts := newTestServer(t, rate.Inf, 1)
	rec := httptest.NewRecorder()
	ts.rs.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rooms", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"rooms":[]}`, rec.Body.String())
}

func TestNewGame(t *testing.T) {
	ts := newTestServer(t, rate.Inf, 1)
	rec := httptest.NewRecorder()
	ts.rs.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/new-game?theme=Unknown", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Cards []string `json:"cards"`
		Theme string   `json:"theme"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "emoji", body.Theme)
	require.Len(t, body.Cards, 8)
	counts := map[string]int{}
	for _, c := range body.Cards {
		counts[c]++
	}
	for v, n := range counts {
		assert.Equal(t, 2, n, "value %q", v)
	}

	// no room was created
	list := httptest.NewRecorder()
	ts.rs.Router().ServeHTTP(list, httptest.NewRequest(http.MethodGet, "/api/rooms", nil))
	assert.JSONEq(t, `{"rooms":[]}`, list.Body.String())
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, rate.Inf, 1)
	rec := httptest.NewRecorder()
	ts.rs.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
