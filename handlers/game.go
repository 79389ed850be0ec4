package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/4cecoder/raceroom/models"
	"github.com/4cecoder/raceroom/room"
)

type serverInfo struct {
	Room           string `json:"room"`
	Mode           string `json:"mode"`
	MaxPlayerCount int    `json:"maxPlayerCount"`
	Codec          string `json:"codec"`
	Rooms          int    `json:"rooms"`
}

type standingsResponse struct {
	RoomID    string            `json:"roomId"`
	Standings []models.Standing `json:"standings"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Printf("error encoding response: %v", err)
	}
}

// HandleRoot describes the server's default room setup.
func (s *Server) HandleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, serverInfo{
		Room:           s.cfg.RoomName,
		Mode:           s.cfg.Mode,
		MaxPlayerCount: s.cfg.MaxPlayerCount,
		Codec:          s.cfg.Codec,
		Rooms:          len(s.manager.ListRooms()),
	})
}

func (s *Server) HandleRooms(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.manager.ListRooms())
}

// HandleStandings returns a room's players ranked by completion time.
func (s *Server) HandleStandings(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	rm, ok := s.manager.Get(roomID)
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	rows, err := rm.Standings(r.Context())
	if errors.Is(err, room.ErrRoomDisposed) {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if rows == nil {
		rows = []models.Standing{}
	}
	s.writeJSON(w, http.StatusOK, standingsResponse{RoomID: roomID, Standings: rows})
}
