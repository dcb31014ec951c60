package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/isdmx/coderoom/room"
	"github.com/isdmx/coderoom/session"
)

// Engine is the read side of the session engine used by the API
type Engine interface {
	Rooms() []room.Summary
	State(roomID string) (room.State, error)
	Stats() session.Stats
}

// Clients reports the number of open transport connections
type Clients interface {
	Clients() int
}

// API serves the plain HTTP endpoints next to the WebSocket transport
type API struct {
	logger         *zap.Logger
	engine         Engine
	clients        Clients
	allowedOrigins []string
	now            func() time.Time
}

// New creates an API
func New(logger *zap.Logger, engine Engine, clients Clients, allowedOrigins []string) *API {
	return &API{
		logger:         logger,
		engine:         engine,
		clients:        clients,
		allowedOrigins: allowedOrigins,
		now:            time.Now,
	}
}

// StatsResponse is the body of GET /api/stats
type StatsResponse struct {
	ActiveRooms   int    `json:"active_rooms"`
	ActiveClients int    `json:"active_clients"`
	Participants  int    `json:"participants"`
	ActiveRuns    int    `json:"active_runs"`
	Timestamp     string `json:"timestamp"`
}

// RoomResponse is the body of GET /api/rooms/{id}
type RoomResponse struct {
	ID   string `json:"id"`
	Lang string `json:"lang"`
	Code string `json:"code"`
}

// CreateRoomResponse is the body of POST /api/rooms
type CreateRoomResponse struct {
	ID string `json:"id"`
}

// Register mounts the endpoints on mux
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", a.HealthHandler)
	mux.HandleFunc("GET /api/stats", a.StatsHandler)
	mux.HandleFunc("GET /api/rooms", a.ListRoomsHandler)
	mux.HandleFunc("POST /api/rooms", a.CreateRoomHandler)
	mux.HandleFunc("GET /api/rooms/{id}", a.GetRoomHandler)
}

func (a *API) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Warn("failed to encode JSON response", zap.Error(err))
	}
}

func (a *API) errorResponse(w http.ResponseWriter, status int, message string) {
	a.jsonResponse(w, status, map[string]string{"error": message})
}

// HealthHandler reports liveness
func (a *API) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	a.jsonResponse(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": a.now().UTC().Format(time.RFC3339),
	})
}

// StatsHandler reports room, connection and run counts
func (a *API) StatsHandler(w http.ResponseWriter, _ *http.Request) {
	stats := a.engine.Stats()
	resp := StatsResponse{
		ActiveRooms:  stats.Rooms,
		Participants: stats.Participants,
		ActiveRuns:   stats.ActiveRuns,
		Timestamp:    a.now().UTC().Format(time.RFC3339),
	}
	if a.clients != nil {
		resp.ActiveClients = a.clients.Clients()
	}
	a.jsonResponse(w, http.StatusOK, resp)
}

// ListRoomsHandler lists the live rooms
func (a *API) ListRoomsHandler(w http.ResponseWriter, _ *http.Request) {
	a.jsonResponse(w, http.StatusOK, map[string]any{"rooms": a.engine.Rooms()})
}

// CreateRoomHandler hands out a fresh room ID. The room itself comes into
// existence when the first participant joins it.
func (a *API) CreateRoomHandler(w http.ResponseWriter, _ *http.Request) {
	id, err := uuid.NewRandom()
	if err != nil {
		a.logger.Error("failed to generate room id", zap.Error(err))
		a.errorResponse(w, http.StatusInternalServerError, "Failed to create room")
		return
	}
	a.jsonResponse(w, http.StatusCreated, CreateRoomResponse{ID: id.String()})
}

// GetRoomHandler returns the editor state of a live room
func (a *API) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	st, err := a.engine.State(id)
	if errors.Is(err, room.ErrRoomNotFound) {
		a.errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}
	if err != nil {
		a.logger.Error("failed to get room", zap.String("room_id", id), zap.Error(err))
		a.errorResponse(w, http.StatusInternalServerError, "Failed to get room")
		return
	}

	a.jsonResponse(w, http.StatusOK, RoomResponse{ID: id, Lang: string(st.Language), Code: st.Source})
}

// CORS wraps next with the cross-origin headers browsers need
func (a *API) CORS(next http.Handler) http.Handler {
	wildcard := lo.Contains(a.allowedOrigins, "*")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case wildcard:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && lo.Contains(a.allowedOrigins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
