package room

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"

	"github.com/segmentio/ksuid"

	"github.com/4cecoder/raceroom/protocol"
	"github.com/4cecoder/raceroom/replication"
	"github.com/4cecoder/raceroom/telemetry"
)

// RoomInfo is returned by the API for the room list.
type RoomInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Clients    int    `json:"clients"`
	MaxClients int    `json:"maxClients"`
}

// Manager holds one live room per room name. Rooms are created on the first
// join and removed once they dispose.
type Manager struct {
	mu     sync.RWMutex
	rooms  map[string]*Room
	byName map[string]string

	ctx    context.Context
	opts   Options
	logger telemetry.Logger
}

// NewManager creates a manager whose rooms use opts (with Name replaced by
// the requested room name) and live no longer than ctx.
func NewManager(ctx context.Context, opts Options) *Manager {
	return &Manager{
		rooms:  make(map[string]*Room),
		byName: make(map[string]string),
		ctx:    ctx,
		opts:   opts,
		logger: telemetry.OrDefault(opts.Logger),
	}
}

// JoinOrCreate joins sessionID to the room called name, creating it when
// none is live. A full room rejects the join rather than queueing it.
func (m *Manager) JoinOrCreate(ctx context.Context, name, sessionID string, conn replication.Conn, codec protocol.Codec) (*Room, JoinResult, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		r, err := m.getOrCreate(name)
		if err != nil {
			return nil, JoinResult{}, err
		}
		res, err := r.Join(ctx, sessionID, conn, codec)
		if errors.Is(err, ErrRoomDisposed) {
			// Lost a race with disposal; the next attempt creates a fresh room.
			lastErr = err
			continue
		}
		if err != nil {
			return r, JoinResult{}, err
		}
		return r, res, nil
	}
	return nil, JoinResult{}, lastErr
}

func (m *Manager) getOrCreate(name string) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byName[name]; ok {
		if r := m.rooms[id]; r != nil && !r.Disposed() {
			return r, nil
		}
		delete(m.rooms, id)
		delete(m.byName, name)
	}

	opts := m.opts
	opts.Name = name
	if m.opts.Rand != nil {
		// *rand.Rand is not safe to share between room goroutines.
		opts.Rand = rand.New(rand.NewSource(m.opts.Rand.Int63()))
	}
	r, err := New(ksuid.New().String(), opts)
	if err != nil {
		return nil, err
	}
	r.onDispose = m.removeRoom
	m.rooms[r.ID] = r
	m.byName[name] = r.ID
	go r.Run(m.ctx)
	m.logger.Printf("created room %s (%s)", r.ID, name)
	return r, nil
}

func (m *Manager) removeRoom(r *Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rooms[r.ID] == r {
		delete(m.rooms, r.ID)
	}
	if m.byName[r.Name] == r.ID {
		delete(m.byName, r.Name)
	}
}

// Get returns a live room by id.
func (m *Manager) Get(id string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	if !ok || r.Disposed() {
		return nil, false
	}
	return r, true
}

// ListRooms returns all live rooms ordered by id, which ksuid makes
// creation order.
func (m *Manager) ListRooms() []RoomInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RoomInfo, 0, len(m.rooms))
	for id, r := range m.rooms {
		if r.Disposed() {
			continue
		}
		out = append(out, RoomInfo{ID: id, Name: r.Name, Clients: r.Clients(), MaxClients: r.MaxClients()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Shutdown disposes every room and waits for them to finish or ctx to end.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	for _, r := range rooms {
		r.Dispose()
	}
	for _, r := range rooms {
		select {
		case <-r.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
