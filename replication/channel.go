// Package replication mirrors room state to connected clients: a full
// snapshot when a client attaches, then diffed patch batches on every flush.
package replication

import (
	"errors"
	"fmt"
	"sort"

	"github.com/4cecoder/raceroom/models"
	"github.com/4cecoder/raceroom/protocol"
	"github.com/4cecoder/raceroom/telemetry"
)

var ErrNotAttached = errors.New("session not attached")

// Conn is the outbound half of a client connection. Send must not block the
// caller for long; slow clients should buffer or fail.
type Conn interface {
	Send(b []byte) error
	Close() error
}

type member struct {
	conn  Conn
	codec protocol.Codec
}

// Channel is owned by a single room goroutine and is not safe for concurrent
// use.
type Channel struct {
	members  map[string]member
	baseline models.Snapshot
	seq      uint64
	logger   telemetry.Logger
}

func NewChannel(logger telemetry.Logger) *Channel {
	return &Channel{
		members:  make(map[string]member),
		baseline: models.NewSnapshot(),
		logger:   telemetry.OrDefault(logger),
	}
}

func (c *Channel) Len() int {
	return len(c.members)
}

func (c *Channel) Seq() uint64 {
	return c.seq
}

// Attach registers conn and sends it the baseline snapshot. Callers flush
// first so the baseline is current.
func (c *Channel) Attach(sessionID string, conn Conn, codec protocol.Codec) error {
	if codec == nil {
		codec = protocol.JSONCodec{}
	}
	b, err := codec.Encode(protocol.MsgState, protocol.State{Seq: c.seq, State: c.baseline})
	if err != nil {
		return fmt.Errorf("encode snapshot for %s: %w", sessionID, err)
	}
	if err := conn.Send(b); err != nil {
		return fmt.Errorf("send snapshot to %s: %w", sessionID, err)
	}
	c.members[sessionID] = member{conn: conn, codec: codec}
	return nil
}

// Detach forgets sessionID and returns its connection, if any.
func (c *Channel) Detach(sessionID string) (Conn, bool) {
	m, ok := c.members[sessionID]
	if !ok {
		return nil, false
	}
	delete(c.members, sessionID)
	return m.conn, true
}

// Unicast sends one directed message to sessionID only.
func (c *Channel) Unicast(sessionID, t string, payload any) error {
	m, ok := c.members[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotAttached, sessionID)
	}
	b, err := m.codec.Encode(t, payload)
	if err != nil {
		return fmt.Errorf("encode %s for %s: %w", t, sessionID, err)
	}
	return m.conn.Send(b)
}

// Flush diffs snap against the last flushed state and sends the result to
// every attached client. It returns the number of patches and the sessions
// whose send failed; the caller should treat those as gone.
func (c *Channel) Flush(snap models.Snapshot) (int, []string) {
	patches := Diff(c.baseline, snap)
	c.baseline = snap
	if len(patches) == 0 {
		return 0, nil
	}
	c.seq++
	batch := protocol.PatchBatch{Seq: c.seq, Patches: patches}

	encoded := make(map[string][]byte)
	var failed []string
	for sessionID, m := range c.members {
		b, ok := encoded[m.codec.Name()]
		if !ok {
			var err error
			b, err = m.codec.Encode(protocol.MsgPatch, batch)
			if err != nil {
				c.logger.Printf("failed to encode patch batch %d with %s: %v", c.seq, m.codec.Name(), err)
				failed = append(failed, sessionID)
				continue
			}
			encoded[m.codec.Name()] = b
		}
		if err := m.conn.Send(b); err != nil {
			c.logger.Printf("failed to send patch batch %d to %s: %v", c.seq, sessionID, err)
			failed = append(failed, sessionID)
		}
	}
	sort.Strings(failed)
	return len(patches), failed
}

// Close closes every attached connection.
func (c *Channel) Close() {
	for sessionID, m := range c.members {
		if err := m.conn.Close(); err != nil {
			c.logger.Printf("close %s: %v", sessionID, err)
		}
		delete(c.members, sessionID)
	}
}

// Diff returns the patches that turn prev into next. Removals come first,
// then additions and per-field changes in collection order.
func Diff(prev, next models.Snapshot) []protocol.Patch {
	var patches []protocol.Patch

	for _, key := range prev.Order {
		if _, ok := next.Players[key]; !ok {
			patches = append(patches, protocol.Patch{
				Kind:       protocol.PatchRemove,
				Collection: protocol.CollectionPlayers,
				Key:        key,
			})
		}
	}
	for _, key := range next.Order {
		p := next.Players[key]
		old, ok := prev.Players[key]
		if !ok {
			added := p
			patches = append(patches, protocol.Patch{
				Kind:       protocol.PatchAdd,
				Collection: protocol.CollectionPlayers,
				Key:        key,
				Player:     &added,
			})
			continue
		}
		if delta, changed := models.DiffPlayer(old, p); changed {
			patches = append(patches, protocol.Patch{
				Kind:       protocol.PatchChange,
				Collection: protocol.CollectionPlayers,
				Key:        key,
				Delta:      &delta,
			})
		}
	}

	for _, sessionID := range sortedKeys(prev.Indexes) {
		if _, ok := next.Indexes[sessionID]; !ok {
			patches = append(patches, protocol.Patch{
				Kind:       protocol.PatchRemove,
				Collection: protocol.CollectionIndexes,
				Key:        sessionID,
			})
		}
	}
	for _, sessionID := range sortedKeys(next.Indexes) {
		slot := next.Indexes[sessionID]
		old, ok := prev.Indexes[sessionID]
		switch {
		case !ok:
			patches = append(patches, protocol.Patch{
				Kind:       protocol.PatchAdd,
				Collection: protocol.CollectionIndexes,
				Key:        sessionID,
				Index:      slot,
			})
		case old != slot:
			patches = append(patches, protocol.Patch{
				Kind:       protocol.PatchChange,
				Collection: protocol.CollectionIndexes,
				Key:        sessionID,
				Index:      slot,
			})
		}
	}

	if prev.NextSpawnPosition != next.NextSpawnPosition {
		v := next.NextSpawnPosition
		patches = append(patches, protocol.Patch{
			Kind:       protocol.PatchChange,
			Collection: protocol.CollectionRoom,
			Key:        protocol.FieldNextSpawnPosition,
			Vector:     &v,
		})
	}
	return patches
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
