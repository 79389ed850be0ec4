// Package handlers serve.go
package handlers

import (
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/4cecoder/raceroom/config"
	"github.com/4cecoder/raceroom/room"
	"github.com/4cecoder/raceroom/telemetry"
)

// Server exposes the room manager over HTTP and websockets.
type Server struct {
	manager      *room.Manager
	cfg          config.Config
	messageQueue *MessageQueue
	logger       telemetry.Logger
	upgrader     websocket.Upgrader
}

func NewServer(manager *room.Manager, cfg config.Config, logger telemetry.Logger) *Server {
	return &Server{
		manager:      manager,
		cfg:          cfg,
		messageQueue: NewMessageQueue(cfg.SendBacklogLimit),
		logger:       telemetry.OrDefault(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Routes builds the router. Request logging goes through chi's middleware.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.HandleRoot)
	r.Get("/rooms", s.HandleRooms)
	r.Get("/rooms/{roomID}/standings", s.HandleStandings)
	r.Get("/ws", s.HandleWebSocket)
	return r
}

func generateSessionID() string {
	return uuid.New().String()
}
