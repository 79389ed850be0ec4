// Package client is a Go client for a race room server. A Session keeps its
// room, session id and replicated state together, so a program can hold
// several sessions at once.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/4cecoder/raceroom/models"
	"github.com/4cecoder/raceroom/protocol"
	"github.com/4cecoder/raceroom/replication"
	"github.com/4cecoder/raceroom/telemetry"
)

// ErrRejected is returned by Dial when the server closes the socket instead
// of admitting the session.
var ErrRejected = errors.New("join rejected")

const writeWait = 10 * time.Second

type Options struct {
	// Room defaults to the server's configured room.
	Room string
	// Codec is json or msgpack; json by default.
	Codec string
	// SessionID asks the server for a specific session id.
	SessionID string
	Logger    telemetry.Logger
}

// Session is one admitted connection to a room.
type Session struct {
	Mirror *replication.Mirror

	conn   *websocket.Conn
	codec  protocol.Codec
	logger telemetry.Logger

	id             atomic.Value // string
	roomID         atomic.Value // string
	maxPlayerCount atomic.Int64

	writeMu sync.Mutex
	ready   chan struct{}
	done    chan struct{}
	err     error

	// read loop only
	gotWelcome bool
	gotState   bool
}

// Dial connects to the server at serverURL (http or ws scheme) and waits
// until the session has been welcomed and holds the room's state and
// config.
func Dial(ctx context.Context, serverURL string, opts Options) (*Session, error) {
	codec, err := protocol.CodecByName(opts.Codec)
	if err != nil {
		return nil, err
	}
	target, err := wsURL(serverURL, opts.Room, codec.Name())
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if opts.SessionID != "" {
		header.Set("X-Client-ID", opts.SessionID)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}

	s := &Session{
		Mirror: replication.NewMirror(),
		conn:   conn,
		codec:  codec,
		logger: telemetry.OrDefault(opts.Logger),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}
	s.id.Store("")
	s.roomID.Store("")
	go s.readLoop()

	select {
	case <-s.ready:
		return s, nil
	case <-s.done:
		return nil, s.err
	case <-ctx.Done():
		conn.Close()
		return nil, ctx.Err()
	}
}

func wsURL(serverURL, room, codec string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/ws"
	q := url.Values{}
	if room != "" {
		q.Set("room", room)
	}
	q.Set("codec", codec)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Session) readLoop() {
	defer close(s.done)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.ClosePolicyViolation {
				err = fmt.Errorf("%w: %s", ErrRejected, closeErr.Text)
			}
			s.err = err
			return
		}
		if err := s.handle(data); err != nil {
			s.logger.Printf("session %s: %v", s.ID(), err)
			if errors.Is(err, replication.ErrOutOfSync) || errors.Is(err, replication.ErrNotSynced) {
				s.err = err
				s.conn.Close()
				return
			}
		}
	}
}

func (s *Session) handle(data []byte) error {
	env, err := s.codec.Decode(data)
	if err != nil {
		return err
	}
	switch env.T {
	case protocol.MsgWelcome:
		var w protocol.Welcome
		if err := s.codec.Unmarshal(env.P, &w); err != nil {
			return fmt.Errorf("welcome: %w", err)
		}
		s.id.Store(w.SessionID)
		s.roomID.Store(w.RoomID)
		s.gotWelcome = true
	case protocol.MsgState:
		var st protocol.State
		if err := s.codec.Unmarshal(env.P, &st); err != nil {
			return fmt.Errorf("state: %w", err)
		}
		s.Mirror.ApplyState(st)
		s.gotState = true
	case protocol.MsgPatch:
		var batch protocol.PatchBatch
		if err := s.codec.Unmarshal(env.P, &batch); err != nil {
			return fmt.Errorf("patch: %w", err)
		}
		return s.Mirror.ApplyPatch(batch)
	case protocol.MsgConfig:
		var cfg protocol.Config
		if err := s.codec.Unmarshal(env.P, &cfg); err != nil {
			return fmt.Errorf("config: %w", err)
		}
		s.maxPlayerCount.Store(int64(cfg.MaxPlayerCount))
		if s.gotWelcome && s.gotState {
			select {
			case <-s.ready:
			default:
				close(s.ready)
			}
		}
	default:
		return fmt.Errorf("unexpected message %q", env.T)
	}
	return nil
}

// ID is the session id the server assigned.
func (s *Session) ID() string {
	return s.id.Load().(string)
}

func (s *Session) RoomID() string {
	return s.roomID.Load().(string)
}

// MaxPlayerCount is the room capacity announced on join.
func (s *Session) MaxPlayerCount() int {
	return int(s.maxPlayerCount.Load())
}

// MyPlayer returns this session's player as last replicated, with its key.
func (s *Session) MyPlayer() (string, models.Player, bool) {
	return s.Mirror.Resolve(s.ID())
}

// Done is closed when the connection ends; Err then says why.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

func (s *Session) send(msg protocol.Message) error {
	b, err := s.codec.Encode(msg.Type(), msg.Payload())
	if err != nil {
		return err
	}
	messageType := websocket.TextMessage
	if s.codec.Binary() {
		messageType = websocket.BinaryMessage
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(messageType, b)
}

func (s *Session) SendFrameData(m models.Movement) error {
	return s.send(protocol.FrameData{Movement: m})
}

// SendPosition reports the car's transform. direction may be nil.
func (s *Session) SendPosition(position models.Vector3, rotation models.AxisData, direction *models.Vector3) error {
	return s.send(protocol.PositionData{Position: position, Rotation: rotation, Direction: direction})
}

// SendETC reports the race completion time. The server keeps the first one.
func (s *Session) SendETC(seconds float64) error {
	return s.send(protocol.ETC{Value: seconds})
}

// Close leaves the room with a normal closure and waits briefly for the
// server to acknowledge.
func (s *Session) Close() error {
	err := s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	if errors.Is(err, websocket.ErrCloseSent) {
		err = nil
	}

	select {
	case <-s.done:
	case <-time.After(time.Second):
	}
	s.conn.Close()
	return err
}
