package models

// PlayerDelta carries only the Player fields that changed between two
// snapshots. Nil means unchanged.
type PlayerDelta struct {
	SessionID       *string   `json:"sessionId,omitempty"`
	Position        *Vector3  `json:"position,omitempty"`
	Rotation        *AxisData `json:"rotation,omitempty"`
	AngularVelocity *Vector3  `json:"angularVelocity,omitempty"`
	SpawnPosition   *Vector3  `json:"spawnPosition,omitempty"`
	Direction       *Vector3  `json:"direction,omitempty"`
	Movement        *Movement `json:"movement,omitempty"`
	Color           *string   `json:"color,omitempty"`
	ETC             *float64  `json:"etc,omitempty"`
	PlayerPresent   *bool     `json:"playerPresent,omitempty"`
}

// DiffPlayer compares prev and next and reports whether any field changed.
func DiffPlayer(prev, next Player) (PlayerDelta, bool) {
	var d PlayerDelta
	changed := false
	if prev.SessionID != next.SessionID {
		v := next.SessionID
		d.SessionID, changed = &v, true
	}
	if prev.Position != next.Position {
		v := next.Position
		d.Position, changed = &v, true
	}
	if prev.Rotation != next.Rotation {
		v := next.Rotation
		d.Rotation, changed = &v, true
	}
	if prev.AngularVelocity != next.AngularVelocity {
		v := next.AngularVelocity
		d.AngularVelocity, changed = &v, true
	}
	if prev.SpawnPosition != next.SpawnPosition {
		v := next.SpawnPosition
		d.SpawnPosition, changed = &v, true
	}
	if prev.Direction != next.Direction {
		v := next.Direction
		d.Direction, changed = &v, true
	}
	if prev.Movement != next.Movement {
		v := next.Movement
		d.Movement, changed = &v, true
	}
	if prev.Color != next.Color {
		v := next.Color
		d.Color, changed = &v, true
	}
	if prev.ETC != next.ETC {
		v := next.ETC
		d.ETC, changed = &v, true
	}
	if prev.PlayerPresent != next.PlayerPresent {
		v := next.PlayerPresent
		d.PlayerPresent, changed = &v, true
	}
	return d, changed
}

// Apply writes every non-nil field of d onto p.
func (d PlayerDelta) Apply(p *Player) {
	if d.SessionID != nil {
		p.SessionID = *d.SessionID
	}
	if d.Position != nil {
		p.Position = *d.Position
	}
	if d.Rotation != nil {
		p.Rotation = *d.Rotation
	}
	if d.AngularVelocity != nil {
		p.AngularVelocity = *d.AngularVelocity
	}
	if d.SpawnPosition != nil {
		p.SpawnPosition = *d.SpawnPosition
	}
	if d.Direction != nil {
		p.Direction = *d.Direction
	}
	if d.Movement != nil {
		p.Movement = *d.Movement
	}
	if d.Color != nil {
		p.Color = *d.Color
	}
	if d.ETC != nil {
		p.ETC = *d.ETC
	}
	if d.PlayerPresent != nil {
		p.PlayerPresent = *d.PlayerPresent
	}
}
