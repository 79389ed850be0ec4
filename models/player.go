// Package models player.go
package models

// DefaultColor is the cosmetic color every new player starts with.
const DefaultColor = "#FF0000"

// Player is one participant's replicated state. In fixed-slot rooms a Player
// outlives its connection and only PlayerPresent toggles.
type Player struct {
	SessionID       string   `json:"sessionId"`
	Position        Vector3  `json:"position"`
	Rotation        AxisData `json:"rotation"`
	AngularVelocity Vector3  `json:"angularVelocity"`
	SpawnPosition   Vector3  `json:"spawnPosition"`
	Direction       Vector3  `json:"direction"`
	Movement        Movement `json:"movement"`
	Color           string   `json:"color"`
	// ETC is the race completion time. Zero means the player has not
	// finished yet.
	ETC           float64 `json:"etc,omitempty"`
	PlayerPresent bool    `json:"playerPresent"`
}

func NewPlayer() *Player {
	return &Player{
		Movement: NewMovement(),
		Color:    DefaultColor,
	}
}

func (p *Player) Finished() bool {
	return p.ETC > 0
}

// Reset returns the player to its freshly constructed values.
func (p *Player) Reset() {
	*p = *NewPlayer()
}

func (p *Player) Clone() *Player {
	cp := *p
	return &cp
}
