package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/4cecoder/raceroom/protocol"
	"github.com/4cecoder/raceroom/telemetry"
)

// socketPair returns the server end of a websocket and the peer dialed to it.
func socketPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	t.Cleanup(srv.Close)

	peer, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if resp != nil {
		resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { peer.Close() })

	select {
	case conn := <-conns:
		return conn, peer
	case <-time.After(2 * time.Second):
		t.Fatalf("server side never upgraded")
		return nil, nil
	}
}

func readText(t *testing.T, peer *websocket.Conn) (string, error) {
	t.Helper()
	_ = peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := peer.ReadMessage()
	return string(data), err
}

// Two sockets with the same session id, as when a duplicate is rejected or
// one id joins two rooms, must not see or clear each other's backlog.
func TestClientBacklogIsPerConnection(t *testing.T) {
	mq := NewMessageQueue(8)
	codec := protocol.JSONCodec{}

	connA, peerA := socketPair(t)
	a := NewClient(connA, "dup", codec, mq, telemetry.Discard())
	for i := 0; i < sendBufferSize; i++ {
		if err := a.Send([]byte(fmt.Sprintf("a-%d", i))); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if err := a.Send([]byte("a-overflow")); err != nil {
		t.Fatalf("overflow send: %v", err)
	}
	if mq.QueueSize(a.queueKey) != 1 {
		t.Fatalf("a backlog = %d, want 1", mq.QueueSize(a.queueKey))
	}

	connB, peerB := socketPair(t)
	b := NewClient(connB, "dup", codec, mq, telemetry.Discard())
	if err := b.Send([]byte("b-frame")); err != nil {
		t.Fatalf("b send: %v", err)
	}
	pumped := make(chan struct{})
	go func() {
		b.WritePump()
		close(pumped)
	}()
	b.CloseWith(websocket.ClosePolicyViolation, "already joined")

	if got, err := readText(t, peerB); err != nil || got != "b-frame" {
		t.Fatalf("b peer got %q, %v; want b-frame", got, err)
	}
	_, err := readText(t, peerB)
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("b peer err = %v, want policy violation close", err)
	}
	select {
	case <-pumped:
	case <-time.After(2 * time.Second):
		t.Fatalf("b write pump did not exit")
	}
	if mq.QueueSize(a.queueKey) != 1 {
		t.Fatalf("closing b cleared a's backlog")
	}

	// a drains its send buffer first, then the backlog, in order.
	go a.WritePump()
	defer a.Close()
	for i := 0; i < sendBufferSize; i++ {
		want := fmt.Sprintf("a-%d", i)
		if got, err := readText(t, peerA); err != nil || got != want {
			t.Fatalf("a peer got %q, %v; want %s", got, err, want)
		}
	}
	if got, err := readText(t, peerA); err != nil || got != "a-overflow" {
		t.Fatalf("a peer got %q, %v; want a-overflow", got, err)
	}
}

func TestClientSendFailsOnceBacklogIsFull(t *testing.T) {
	conn, _ := socketPair(t)
	defer conn.Close()
	c := NewClient(conn, "slow", protocol.JSONCodec{}, NewMessageQueue(1), telemetry.Discard())
	for i := 0; i < sendBufferSize+1; i++ {
		if err := c.Send([]byte("x")); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if err := c.Send([]byte("x")); err == nil {
		t.Fatalf("send past the backlog limit should fail")
	}
	c.CloseWith(websocket.CloseNormalClosure, "")
	if err := c.Send([]byte("x")); !errors.Is(err, ErrClientClosed) {
		t.Fatalf("send after close err = %v", err)
	}
}
