package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/wricardo/sphincter/metrics"
	"github.com/wricardo/sphincter/relay/room"
)

// Rooms is the read-only view of the registry the HTTP API needs.
type Rooms interface {
	List() []*room.Room
	Lookup(id string) (*room.Room, bool)
	Len() int
}

// Server is the relay's HTTP surface: the websocket entry point plus the
// admin endpoints.
type Server struct {
	rooms   Rooms
	ws      http.Handler
	mcp     http.Handler
	router  *mux.Router
	handler http.Handler
	log     zerolog.Logger
}

// NewServer creates the HTTP server. ws serves subscriber upgrades and mcp
// serves JSON-RPC posts.
func NewServer(rooms Rooms, ws, mcp http.Handler, logger zerolog.Logger) *Server {
	s := &Server{
		rooms:  rooms,
		ws:     ws,
		mcp:    mcp,
		router: mux.NewRouter(),
		log:    logger.With().Str("module", "api").Logger(),
	}

	s.setupRoutes()

	s.handler = cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}).Handler(s.router)

	return s
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Use(s.logRequests)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/rooms", s.handleListRooms).Methods("GET")
	api.HandleFunc("/rooms/{id}", s.handleGetRoom).Methods("GET")

	// WebSocket
	s.router.Handle("/ws", s.ws)

	s.router.Handle("/mcp", s.mcp).Methods("POST")
	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", metrics.Handler()).Methods("GET")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// logRequests leaves the ResponseWriter untouched so websocket upgrades can
// still hijack it.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Room Handlers

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms := s.rooms.List()

	infos := make([]room.Info, 0, len(rooms))
	for _, rm := range rooms {
		infos = append(infos, rm.Info())
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(infos),
		"rooms": infos,
	})
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := strings.ToUpper(mux.Vars(r)["id"])

	rm, ok := s.rooms.Lookup(roomID)
	if !ok {
		respondError(w, http.StatusNotFound, "Room not found")
		return
	}

	respondJSON(w, http.StatusOK, rm.Info())
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"rooms":  s.rooms.Len(),
	})
}
