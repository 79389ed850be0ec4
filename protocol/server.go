package protocol

import "github.com/4cecoder/raceroom/models"

// Welcome tells a freshly admitted client who it is.
type Welcome struct {
	SessionID string `json:"sessionId"`
	RoomID    string `json:"roomId"`
}

// Config is unicast to a client right after it joins.
type Config struct {
	MaxPlayerCount int `json:"maxPlayerCount"`
}

// State is the full room snapshot. Patches with Seq+1 and later apply on top
// of it.
type State struct {
	Seq   uint64          `json:"seq"`
	State models.Snapshot `json:"state"`
}

// PatchBatch is one flush worth of changes.
type PatchBatch struct {
	Seq     uint64  `json:"seq"`
	Patches []Patch `json:"patches"`
}

// PatchKind identifies the type of diff entry.
type PatchKind string

const (
	PatchAdd    PatchKind = "add"
	PatchRemove PatchKind = "remove"
	PatchChange PatchKind = "change"
)

// Collections a patch can target.
const (
	CollectionPlayers = "players"
	CollectionIndexes = "indexes"
	// CollectionRoom addresses root fields; Key names the field.
	CollectionRoom = "room"
)

// FieldNextSpawnPosition is the only root field that changes after create.
const FieldNextSpawnPosition = "nextSpawnPosition"

// Patch is a single diff entry. Which value field is set depends on the
// collection and kind.
type Patch struct {
	Kind       PatchKind           `json:"kind"`
	Collection string              `json:"collection"`
	Key        string              `json:"key"`
	Player     *models.Player      `json:"player,omitempty"`
	Delta      *models.PlayerDelta `json:"delta,omitempty"`
	Index      string              `json:"index,omitempty"`
	Vector     *models.Vector3     `json:"vector,omitempty"`
}
