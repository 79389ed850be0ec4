package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/4cecoder/raceroom/protocol"
	"github.com/4cecoder/raceroom/room"
)

const joinTimeout = 5 * time.Second

// HandleWebSocket admits a client to the room named by the room query
// parameter (the configured room by default) and pumps its frames into that
// room until the socket closes.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	codecName := r.URL.Query().Get("codec")
	if codecName == "" {
		codecName = s.cfg.Codec
	}
	codec, err := protocol.CodecByName(codecName)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	roomName := r.URL.Query().Get("room")
	if roomName == "" {
		roomName = s.cfg.RoomName
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("error upgrading to websocket: %v", err)
		return
	}

	sessionID := r.Header.Get("X-Client-ID")
	if sessionID == "" {
		sessionID = generateSessionID()
	}

	client := NewClient(conn, sessionID, codec, s.messageQueue, s.logger)
	go client.WritePump()

	ctx, cancel := context.WithTimeout(r.Context(), joinTimeout)
	rm, _, err := s.manager.JoinOrCreate(ctx, roomName, sessionID, client, codec)
	cancel()
	if err != nil {
		s.logger.Printf("rejecting %s from %s: %v", sessionID, roomName, err)
		if rm != nil && ctx.Err() != nil {
			// The join may have gone through after we stopped waiting.
			rm.Leave(sessionID, false)
		}
		client.CloseWith(closeCodeFor(err))
		s.drainUntilClosed(conn)
		return
	}

	consented := s.readLoop(conn, client, rm)
	rm.Leave(sessionID, consented)
	_ = client.Close()
}

// readLoop feeds decoded client messages to the room. It reports whether
// the client closed the socket on purpose.
func (s *Server) readLoop(conn *websocket.Conn, client *Client, rm *room.Room) bool {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Printf("websocket error from %s: %v", client.ID, err)
			}
			return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
		}

		env, err := client.Codec.Decode(data)
		if err != nil {
			s.logger.Printf("discarding malformed frame from %s: %v", client.ID, err)
			continue
		}
		msg, err := protocol.DecodeMessage(client.Codec, env)
		if err != nil {
			s.logger.Printf("discarding %q from %s: %v", env.T, client.ID, err)
			continue
		}
		rm.Deliver(client.ID, msg)
	}
}

// drainUntilClosed reads until the peer answers the close frame or the
// deadline passes, so the close reason reaches the client.
func (s *Server) drainUntilClosed(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(writeWait))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func closeCodeFor(err error) (int, string) {
	switch {
	case errors.Is(err, room.ErrRoomFull), errors.Is(err, room.ErrNoVacantSlot):
		return websocket.ClosePolicyViolation, "room full"
	case errors.Is(err, room.ErrAlreadyJoined):
		return websocket.ClosePolicyViolation, "already joined"
	default:
		return websocket.CloseInternalServerErr, "join failed"
	}
}
