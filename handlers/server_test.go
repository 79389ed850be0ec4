package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/4cecoder/raceroom/client"
	"github.com/4cecoder/raceroom/config"
	"github.com/4cecoder/raceroom/models"
	"github.com/4cecoder/raceroom/room"
	"github.com/4cecoder/raceroom/telemetry"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.MaxPlayerCount = 2
	cfg.PatchInterval = 10 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	manager := room.NewManager(ctx, cfg.RoomOptions(telemetry.Discard()))
	srv := httptest.NewServer(NewServer(manager, cfg, telemetry.Discard()).Routes())
	t.Cleanup(func() {
		srv.Close()
		shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		defer done()
		manager.Shutdown(shutdownCtx)
		cancel()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server, opts client.Options) *client.Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	opts.Logger = telemetry.Discard()
	s, err := client.Dial(ctx, srv.URL, opts)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func getJSON(t *testing.T, rawURL string, out any) int {
	t.Helper()
	resp, err := http.Get(rawURL)
	if err != nil {
		t.Fatalf("get %s: %v", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK && out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", rawURL, err)
		}
	}
	return resp.StatusCode
}

func TestWebSocketSessionsReplicate(t *testing.T) {
	srv := newTestServer(t, nil)
	a := dial(t, srv, client.Options{})
	b := dial(t, srv, client.Options{Codec: "msgpack"})

	keyA, _, ok := a.MyPlayer()
	if !ok || keyA != "player0" {
		t.Fatalf("a key = %q ok=%v", keyA, ok)
	}
	keyB, playerB, ok := b.MyPlayer()
	if !ok || keyB != "player1" || !playerB.PlayerPresent {
		t.Fatalf("b key = %q player = %+v", keyB, playerB)
	}
	if a.MaxPlayerCount() != 2 || b.MaxPlayerCount() != 2 {
		t.Fatalf("max player count = %d/%d", a.MaxPlayerCount(), b.MaxPlayerCount())
	}
	if a.RoomID() == "" || a.RoomID() != b.RoomID() {
		t.Fatalf("room ids = %q %q", a.RoomID(), b.RoomID())
	}

	m := models.NewMovement()
	m.Speed, m.Forward = 33, true
	if err := b.SendFrameData(m); err != nil {
		t.Fatalf("send frame data: %v", err)
	}
	eventually(t, "movement on a", func() bool {
		p, ok := a.Mirror.Player("player1")
		return ok && p.Movement.Speed == 33 && p.Movement.Forward
	})

	dir := models.Vector3{Z: 1}
	if err := a.SendPosition(models.Vector3{X: 5, Y: 1, Z: 9}, models.AxisData{Y: 0.3, W: 0.95}, &dir); err != nil {
		t.Fatalf("send position: %v", err)
	}
	eventually(t, "position on b", func() bool {
		p, ok := b.Mirror.Player("player0")
		return ok && p.Position.Equal(5, 1, 9) && p.Direction == dir
	})
}

func TestWebSocketRejectsFullRoom(t *testing.T) {
	srv := newTestServer(t, nil)
	dial(t, srv, client.Options{})
	dial(t, srv, client.Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := client.Dial(ctx, srv.URL, client.Options{Logger: telemetry.Discard()})
	if !errors.Is(err, client.ErrRejected) || !strings.Contains(err.Error(), "room full") {
		t.Fatalf("err = %v, want room full rejection", err)
	}
}

func TestWebSocketLeaveFreesSlot(t *testing.T) {
	srv := newTestServer(t, nil)
	a := dial(t, srv, client.Options{})
	b := dial(t, srv, client.Options{})
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	eventually(t, "slot release", func() bool {
		p, ok := a.Mirror.Player("player1")
		return ok && !p.PlayerPresent && p.SessionID == ""
	})
	c := dial(t, srv, client.Options{})
	if key, _, _ := c.MyPlayer(); key != "player1" {
		t.Fatalf("c key = %q, want player1", key)
	}
}

func TestWebSocketSkipsMalformedFrames(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) { cfg.Mode = config.ModeDynamic })
	watcher := dial(t, srv, client.Options{})

	u, _ := url.Parse(srv.URL)
	u.Scheme, u.Path = "ws", "/ws"
	header := http.Header{}
	header.Set("X-Client-ID", "raw")
	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), header)
	if resp != nil {
		resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("raw dial: %v", err)
	}
	defer conn.Close()

	frames := []string{
		`not json`,
		`{"t":"frameData","p":{"speed":5}}`,
		`{"t":"teleport","p":{}}`,
		`{"t":"etc","p":{"value":58.5}}`,
	}
	for _, f := range frames {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	eventually(t, "etc from raw client", func() bool {
		p, ok := watcher.Mirror.Player("raw")
		return ok && p.ETC == 58.5 && p.Movement.Speed == 0
	})
}

func TestRoomEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)
	a := dial(t, srv, client.Options{})
	dial(t, srv, client.Options{Room: "practice"})

	var rooms []room.RoomInfo
	if code := getJSON(t, srv.URL+"/rooms", &rooms); code != http.StatusOK {
		t.Fatalf("/rooms status = %d", code)
	}
	if len(rooms) != 2 {
		t.Fatalf("rooms = %+v", rooms)
	}

	if err := a.SendETC(40.5); err != nil {
		t.Fatalf("send etc: %v", err)
	}
	var standings standingsResponse
	eventually(t, "standings", func() bool {
		getJSON(t, srv.URL+"/rooms/"+a.RoomID()+"/standings", &standings)
		return len(standings.Standings) == 1 && standings.Standings[0].Finished
	})
	if got := standings.Standings[0]; got.Rank != 1 || got.SessionID != a.ID() || got.ETC != 40.5 {
		t.Fatalf("standing = %+v", got)
	}

	if code := getJSON(t, srv.URL+"/rooms/nope/standings", nil); code != http.StatusNotFound {
		t.Fatalf("unknown room status = %d", code)
	}

	var info serverInfo
	if code := getJSON(t, srv.URL+"/", &info); code != http.StatusOK || info.Room != "game_room" || info.Rooms != 2 {
		t.Fatalf("root = %d %+v", code, info)
	}
}

func TestWebSocketRejectsUnknownCodec(t *testing.T) {
	srv := newTestServer(t, nil)
	if code := getJSON(t, srv.URL+"/ws?codec=xml", nil); code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", code)
	}
}
