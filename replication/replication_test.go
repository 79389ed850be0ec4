package replication

import (
	"errors"
	"reflect"
	"testing"

	"github.com/4cecoder/raceroom/models"
	"github.com/4cecoder/raceroom/protocol"
	"github.com/4cecoder/raceroom/telemetry"
)

type fakeConn struct {
	frames [][]byte
	fail   bool
	closed bool
}

func (f *fakeConn) Send(b []byte) error {
	if f.fail {
		return errors.New("broken pipe")
	}
	f.frames = append(f.frames, append([]byte(nil), b...))
	return nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

// feed decodes every frame the conn received into m, returning any
// non-replication envelopes.
func feed(t *testing.T, c protocol.Codec, f *fakeConn, m *Mirror) []protocol.Envelope {
	t.Helper()
	var other []protocol.Envelope
	for _, b := range f.frames {
		env, err := c.Decode(b)
		if err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		switch env.T {
		case protocol.MsgState:
			var s protocol.State
			if err := c.Unmarshal(env.P, &s); err != nil {
				t.Fatalf("decode state: %v", err)
			}
			m.ApplyState(s)
		case protocol.MsgPatch:
			var batch protocol.PatchBatch
			if err := c.Unmarshal(env.P, &batch); err != nil {
				t.Fatalf("decode patch: %v", err)
			}
			if err := m.ApplyPatch(batch); err != nil {
				t.Fatalf("apply patch: %v", err)
			}
		default:
			other = append(other, env)
		}
	}
	f.frames = nil
	return other
}

func assertMirrors(t *testing.T, m *Mirror, want models.Snapshot) {
	t.Helper()
	got := m.Snapshot()
	if !reflect.DeepEqual(got.Players, want.Players) {
		t.Fatalf("players differ:\n got %+v\nwant %+v", got.Players, want.Players)
	}
	if !reflect.DeepEqual(got.Order, want.Order) {
		t.Fatalf("order = %v, want %v", got.Order, want.Order)
	}
	if len(got.Indexes) != len(want.Indexes) {
		t.Fatalf("indexes = %v, want %v", got.Indexes, want.Indexes)
	}
	for k, v := range want.Indexes {
		if got.Indexes[k] != v {
			t.Fatalf("indexes = %v, want %v", got.Indexes, want.Indexes)
		}
	}
	if got.NextSpawnPosition != want.NextSpawnPosition {
		t.Fatalf("next spawn = %+v, want %+v", got.NextSpawnPosition, want.NextSpawnPosition)
	}
}

func TestChannelMirrorsMutations(t *testing.T) {
	for _, codec := range []protocol.Codec{protocol.JSONCodec{}, protocol.MsgpackCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			state := models.NewRoomState()
			ch := NewChannel(telemetry.Discard())

			a := models.NewPlayer()
			a.SessionID = "a"
			state.Set("a", a)
			ch.Flush(state.Snapshot())

			conn := &fakeConn{}
			if err := ch.Attach("a", conn, codec); err != nil {
				t.Fatalf("attach: %v", err)
			}
			mirror := NewMirror()
			var added, removed []string
			mirror.OnAdd(func(key string, _ models.Player) { added = append(added, key) })
			mirror.OnRemove(func(key string, _ models.Player) { removed = append(removed, key) })

			feed(t, codec, conn, mirror)
			assertMirrors(t, mirror, state.Snapshot())

			b := models.NewPlayer()
			b.SessionID = "b"
			state.Set("b", b)
			a.Position.Set(5, 1, 9)
			a.Movement.Speed = 12
			state.NextSpawnPosition.Set(-110, 0.75, 220)
			if n, failed := ch.Flush(state.Snapshot()); n != 3 || len(failed) != 0 {
				t.Fatalf("flush = %d patches, failed %v", n, failed)
			}
			feed(t, codec, conn, mirror)
			assertMirrors(t, mirror, state.Snapshot())

			state.Delete("b")
			state.Indexes["a"] = "a"
			ch.Flush(state.Snapshot())
			feed(t, codec, conn, mirror)
			assertMirrors(t, mirror, state.Snapshot())

			if !reflect.DeepEqual(added, []string{"a", "b"}) || !reflect.DeepEqual(removed, []string{"b"}) {
				t.Fatalf("added=%v removed=%v", added, removed)
			}
		})
	}
}

func TestFlushWithoutChangesSendsNothing(t *testing.T) {
	state := models.NewRoomState()
	ch := NewChannel(telemetry.Discard())
	conn := &fakeConn{}
	if err := ch.Attach("a", conn, nil); err != nil {
		t.Fatalf("attach: %v", err)
	}
	conn.frames = nil

	if n, _ := ch.Flush(state.Snapshot()); n != 0 {
		t.Fatalf("expected no patches, got %d", n)
	}
	if len(conn.frames) != 0 || ch.Seq() != 0 {
		t.Fatalf("expected no frames and seq 0, got %d frames seq %d", len(conn.frames), ch.Seq())
	}
}

func TestUnicastReachesOnlyTarget(t *testing.T) {
	ch := NewChannel(telemetry.Discard())
	a, b := &fakeConn{}, &fakeConn{}
	ch.Attach("a", a, nil)
	ch.Attach("b", b, nil)
	a.frames, b.frames = nil, nil

	if err := ch.Unicast("b", protocol.MsgConfig, protocol.Config{MaxPlayerCount: 10}); err != nil {
		t.Fatalf("unicast: %v", err)
	}
	if len(a.frames) != 0 || len(b.frames) != 1 {
		t.Fatalf("a got %d frames, b got %d", len(a.frames), len(b.frames))
	}
	if err := ch.Unicast("ghost", protocol.MsgConfig, protocol.Config{}); !errors.Is(err, ErrNotAttached) {
		t.Fatalf("err = %v, want ErrNotAttached", err)
	}
}

func TestFlushReportsFailedSessions(t *testing.T) {
	state := models.NewRoomState()
	ch := NewChannel(telemetry.Discard())
	good, bad := &fakeConn{}, &fakeConn{}
	ch.Attach("good", good, nil)
	ch.Attach("bad", bad, nil)
	bad.fail = true

	state.Set("x", models.NewPlayer())
	_, failed := ch.Flush(state.Snapshot())
	if !reflect.DeepEqual(failed, []string{"bad"}) {
		t.Fatalf("failed = %v", failed)
	}

	if conn, ok := ch.Detach("bad"); !ok || conn != bad {
		t.Fatalf("detach returned %v %v", conn, ok)
	}
	if _, ok := ch.Detach("bad"); ok {
		t.Fatalf("second detach should report false")
	}
	ch.Close()
	if !good.closed || ch.Len() != 0 {
		t.Fatalf("close did not close members")
	}
}

func TestMirrorRejectsGaps(t *testing.T) {
	m := NewMirror()
	if err := m.ApplyPatch(protocol.PatchBatch{Seq: 1}); !errors.Is(err, ErrNotSynced) {
		t.Fatalf("err = %v, want ErrNotSynced", err)
	}
	m.ApplyState(protocol.State{Seq: 4, State: models.NewSnapshot()})
	if err := m.ApplyPatch(protocol.PatchBatch{Seq: 6}); !errors.Is(err, ErrOutOfSync) {
		t.Fatalf("err = %v, want ErrOutOfSync", err)
	}
	if err := m.ApplyPatch(protocol.PatchBatch{Seq: 5}); err != nil {
		t.Fatalf("in-order batch rejected: %v", err)
	}
}

func TestMirrorResolvesThroughIndexes(t *testing.T) {
	snap := models.NewSnapshot()
	p := *models.NewPlayer()
	p.SessionID = "sess"
	p.PlayerPresent = true
	snap.Players["player3"] = p
	snap.Order = []string{"player3"}
	snap.Indexes["sess"] = "player3"

	m := NewMirror()
	var indexed []string
	m.OnIndexAdd(func(sessionID, key string) { indexed = append(indexed, sessionID+"->"+key) })
	m.ApplyState(protocol.State{State: snap})

	key, got, ok := m.Resolve("sess")
	if !ok || key != "player3" || !got.PlayerPresent {
		t.Fatalf("resolve = %q %+v %v", key, got, ok)
	}
	if !reflect.DeepEqual(indexed, []string{"sess->player3"}) {
		t.Fatalf("index events = %v", indexed)
	}
}

func TestResnapshotFiresRemovals(t *testing.T) {
	snapshot := func(sessionID, key string) models.Snapshot {
		snap := models.NewSnapshot()
		p := *models.NewPlayer()
		p.SessionID = sessionID
		snap.Players[key] = p
		snap.Order = []string{key}
		snap.Indexes[sessionID] = key
		return snap
	}

	m := NewMirror()
	m.ApplyState(protocol.State{Seq: 1, State: snapshot("sess", "player3")})

	var events []string
	m.OnAdd(func(key string, _ models.Player) { events = append(events, "add "+key) })
	m.OnRemove(func(key string, _ models.Player) { events = append(events, "remove "+key) })
	m.OnIndexAdd(func(sessionID, key string) { events = append(events, "index add "+sessionID+"->"+key) })
	m.OnIndexRemove(func(sessionID, key string) { events = append(events, "index remove "+sessionID+"->"+key) })
	m.ApplyState(protocol.State{Seq: 9, State: snapshot("other", "player4")})

	want := []string{"remove player3", "add player4", "index remove sess->player3", "index add other->player4"}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	if _, _, ok := m.Resolve("sess"); ok {
		t.Fatalf("stale index still resolves")
	}
}

func TestDiffOrdersRemovalsFirst(t *testing.T) {
	prev := models.NewRoomState()
	prev.Set("a", models.NewPlayer())
	next := models.NewRoomState()
	next.Set("b", models.NewPlayer())

	patches := Diff(prev.Snapshot(), next.Snapshot())
	if len(patches) != 2 {
		t.Fatalf("patches = %+v", patches)
	}
	if patches[0].Kind != protocol.PatchRemove || patches[0].Key != "a" {
		t.Fatalf("first patch = %+v", patches[0])
	}
	if patches[1].Kind != protocol.PatchAdd || patches[1].Key != "b" || patches[1].Player == nil {
		t.Fatalf("second patch = %+v", patches[1])
	}
}
