package models

// RoomState is the root synchronized object. Players keep their insertion
// order so slot scans and snapshots are deterministic.
type RoomState struct {
	players map[string]*Player
	order   []string

	// Indexes maps a session id to its slot key. Only fixed-slot rooms use it.
	Indexes           map[string]string
	NextSpawnPosition Vector3
}

func NewRoomState() *RoomState {
	return &RoomState{
		players: make(map[string]*Player),
		Indexes: make(map[string]string),
	}
}

// Set inserts or replaces the player under key. A replaced key keeps its
// original position in the order.
func (s *RoomState) Set(key string, p *Player) {
	if _, ok := s.players[key]; !ok {
		s.order = append(s.order, key)
	}
	s.players[key] = p
}

func (s *RoomState) Get(key string) (*Player, bool) {
	p, ok := s.players[key]
	return p, ok
}

// Delete removes key and reports whether it was present.
func (s *RoomState) Delete(key string) bool {
	if _, ok := s.players[key]; !ok {
		return false
	}
	delete(s.players, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *RoomState) Len() int {
	return len(s.players)
}

// Keys returns the player keys in insertion order.
func (s *RoomState) Keys() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Each visits players in insertion order. fn must not add or remove players.
func (s *RoomState) Each(fn func(key string, p *Player)) {
	for _, key := range s.order {
		fn(key, s.players[key])
	}
}

// Resolve finds the player owned by sessionID, either through Indexes or by
// direct key.
func (s *RoomState) Resolve(sessionID string) (string, *Player, bool) {
	if key, ok := s.Indexes[sessionID]; ok {
		if p, ok := s.players[key]; ok {
			return key, p, true
		}
		return "", nil, false
	}
	if p, ok := s.players[sessionID]; ok && p.SessionID == sessionID {
		return sessionID, p, true
	}
	return "", nil, false
}

// Snapshot returns a deep copy that is safe to hand to another goroutine.
func (s *RoomState) Snapshot() Snapshot {
	snap := Snapshot{
		Players:           make(map[string]Player, len(s.players)),
		Order:             s.Keys(),
		Indexes:           make(map[string]string, len(s.Indexes)),
		NextSpawnPosition: s.NextSpawnPosition,
	}
	for key, p := range s.players {
		snap.Players[key] = *p
	}
	for sessionID, key := range s.Indexes {
		snap.Indexes[sessionID] = key
	}
	return snap
}

// Snapshot is a value copy of RoomState. It is also the full-state payload
// sent to a client when it joins.
type Snapshot struct {
	Players           map[string]Player `json:"players"`
	Order             []string          `json:"order"`
	Indexes           map[string]string `json:"indexes"`
	NextSpawnPosition Vector3           `json:"nextSpawnPosition"`
}

func NewSnapshot() Snapshot {
	return Snapshot{
		Players: make(map[string]Player),
		Indexes: make(map[string]string),
	}
}

// Resolve mirrors RoomState.Resolve on a snapshot.
func (s Snapshot) Resolve(sessionID string) (string, Player, bool) {
	if key, ok := s.Indexes[sessionID]; ok {
		p, ok := s.Players[key]
		return key, p, ok
	}
	if p, ok := s.Players[sessionID]; ok && p.SessionID == sessionID {
		return sessionID, p, true
	}
	return "", Player{}, false
}

// Clone deep-copies the snapshot maps.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Players:           make(map[string]Player, len(s.Players)),
		Order:             append([]string(nil), s.Order...),
		Indexes:           make(map[string]string, len(s.Indexes)),
		NextSpawnPosition: s.NextSpawnPosition,
	}
	for k, v := range s.Players {
		out.Players[k] = v
	}
	for k, v := range s.Indexes {
		out.Indexes[k] = v
	}
	return out
}
