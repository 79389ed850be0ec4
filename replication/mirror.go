package replication

import (
	"errors"
	"fmt"
	"sync"

	"github.com/4cecoder/raceroom/models"
	"github.com/4cecoder/raceroom/protocol"
)

var (
	ErrNotSynced = errors.New("mirror has no snapshot yet")
	ErrOutOfSync = errors.New("patch batch out of sequence")
)

// Mirror is the client-side copy of a room's state, kept current by the
// state and patch messages a Channel sends. Reads are safe from any
// goroutine; they are not transactional across fields.
type Mirror struct {
	mu     sync.RWMutex
	state  models.Snapshot
	seq    uint64
	synced bool

	onAdd         func(key string, p models.Player)
	onRemove      func(key string, p models.Player)
	onChange      func(key string, p models.Player)
	onIndexAdd    func(sessionID, key string)
	onIndexRemove func(sessionID, key string)
}

func NewMirror() *Mirror {
	return &Mirror{state: models.NewSnapshot()}
}

// OnAdd registers fn for players entering the collection, including every
// player present in the initial snapshot.
func (m *Mirror) OnAdd(fn func(key string, p models.Player)) {
	m.mu.Lock()
	m.onAdd = fn
	m.mu.Unlock()
}

func (m *Mirror) OnRemove(fn func(key string, p models.Player)) {
	m.mu.Lock()
	m.onRemove = fn
	m.mu.Unlock()
}

func (m *Mirror) OnChange(fn func(key string, p models.Player)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

func (m *Mirror) OnIndexAdd(fn func(sessionID, key string)) {
	m.mu.Lock()
	m.onIndexAdd = fn
	m.mu.Unlock()
}

func (m *Mirror) OnIndexRemove(fn func(sessionID, key string)) {
	m.mu.Lock()
	m.onIndexRemove = fn
	m.mu.Unlock()
}

type event func()

// ApplyState replaces the mirror contents with a full snapshot.
func (m *Mirror) ApplyState(s protocol.State) {
	m.mu.Lock()
	prev := m.state
	m.state = s.State.Clone()
	m.seq = s.Seq
	m.synced = true

	var events []event
	for _, key := range prev.Order {
		if _, ok := m.state.Players[key]; !ok {
			events = m.playerEvent(events, m.onRemove, key, prev.Players[key])
		}
	}
	for _, key := range m.state.Order {
		if _, ok := prev.Players[key]; !ok {
			events = m.playerEvent(events, m.onAdd, key, m.state.Players[key])
		}
	}
	for sessionID, key := range prev.Indexes {
		if _, ok := m.state.Indexes[sessionID]; !ok {
			events = m.indexEvent(events, m.onIndexRemove, sessionID, key)
		}
	}
	for sessionID, key := range m.state.Indexes {
		if _, ok := prev.Indexes[sessionID]; !ok {
			events = m.indexEvent(events, m.onIndexAdd, sessionID, key)
		}
	}
	m.mu.Unlock()

	for _, fire := range events {
		fire()
	}
}

// ApplyPatch applies one batch. Batches must arrive in sequence.
func (m *Mirror) ApplyPatch(b protocol.PatchBatch) error {
	m.mu.Lock()
	if !m.synced {
		m.mu.Unlock()
		return ErrNotSynced
	}
	if b.Seq != m.seq+1 {
		want := m.seq + 1
		m.mu.Unlock()
		return fmt.Errorf("%w: got %d, want %d", ErrOutOfSync, b.Seq, want)
	}

	var events []event
	for _, p := range b.Patches {
		events = m.apply(events, p)
	}
	m.seq = b.Seq
	m.mu.Unlock()

	for _, fire := range events {
		fire()
	}
	return nil
}

func (m *Mirror) apply(events []event, p protocol.Patch) []event {
	switch p.Collection {
	case protocol.CollectionPlayers:
		switch p.Kind {
		case protocol.PatchAdd:
			if p.Player == nil {
				return events
			}
			if _, ok := m.state.Players[p.Key]; !ok {
				m.state.Order = append(m.state.Order, p.Key)
			}
			m.state.Players[p.Key] = *p.Player
			events = m.playerEvent(events, m.onAdd, p.Key, *p.Player)
		case protocol.PatchRemove:
			old, ok := m.state.Players[p.Key]
			if !ok {
				return events
			}
			delete(m.state.Players, p.Key)
			for i, k := range m.state.Order {
				if k == p.Key {
					m.state.Order = append(m.state.Order[:i], m.state.Order[i+1:]...)
					break
				}
			}
			events = m.playerEvent(events, m.onRemove, p.Key, old)
		case protocol.PatchChange:
			cur, ok := m.state.Players[p.Key]
			if !ok || p.Delta == nil {
				return events
			}
			p.Delta.Apply(&cur)
			m.state.Players[p.Key] = cur
			events = m.playerEvent(events, m.onChange, p.Key, cur)
		}
	case protocol.CollectionIndexes:
		switch p.Kind {
		case protocol.PatchAdd, protocol.PatchChange:
			m.state.Indexes[p.Key] = p.Index
			if p.Kind == protocol.PatchAdd {
				events = m.indexEvent(events, m.onIndexAdd, p.Key, p.Index)
			}
		case protocol.PatchRemove:
			old, ok := m.state.Indexes[p.Key]
			if !ok {
				return events
			}
			delete(m.state.Indexes, p.Key)
			events = m.indexEvent(events, m.onIndexRemove, p.Key, old)
		}
	case protocol.CollectionRoom:
		if p.Key == protocol.FieldNextSpawnPosition && p.Vector != nil {
			m.state.NextSpawnPosition = *p.Vector
		}
	}
	return events
}

func (m *Mirror) playerEvent(events []event, fn func(string, models.Player), key string, p models.Player) []event {
	if fn == nil {
		return events
	}
	return append(events, func() { fn(key, p) })
}

func (m *Mirror) indexEvent(events []event, fn func(string, string), sessionID, key string) []event {
	if fn == nil {
		return events
	}
	return append(events, func() { fn(sessionID, key) })
}

func (m *Mirror) Seq() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.seq
}

func (m *Mirror) Synced() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.synced
}

func (m *Mirror) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.state.Players)
}

func (m *Mirror) Player(key string) (models.Player, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.state.Players[key]
	return p, ok
}

// Resolve finds the player owned by sessionID, directly or through one
// indexes hop.
func (m *Mirror) Resolve(sessionID string) (string, models.Player, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Resolve(sessionID)
}

// Snapshot returns a copy of the mirrored state.
func (m *Mirror) Snapshot() models.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Clone()
}
