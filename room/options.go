package room

import (
	"errors"
	"math/rand"
	"time"

	"github.com/4cecoder/raceroom/models"
	"github.com/4cecoder/raceroom/telemetry"
)

var (
	ErrRoomFull        = errors.New("room is full")
	ErrNoVacantSlot    = errors.New("no vacant slot")
	ErrAlreadyJoined   = errors.New("session already joined")
	ErrRoomNotOpen     = errors.New("room is not open")
	ErrRoomDisposed    = errors.New("room is disposed")
	ErrUnknownPlayer   = errors.New("unknown player")
	ErrUnhandled       = errors.New("no handler for message")
	ErrAlreadyFinished = errors.New("player already finished")
	ErrEmptySession    = errors.New("empty session id")
)

// Mode selects how players map onto the players collection.
type Mode int

const (
	// ModeFixedSlot pre-allocates MaxClients slots keyed player0..playerN-1
	// and toggles PlayerPresent on join and leave.
	ModeFixedSlot Mode = iota
	// ModeDynamic creates a player keyed by session id on join and deletes
	// it on leave.
	ModeDynamic
)

func (m Mode) String() string {
	switch m {
	case ModeFixedSlot:
		return "fixed"
	case ModeDynamic:
		return "dynamic"
	default:
		return "unknown"
	}
}

type Options struct {
	Name       string
	Mode       Mode
	MaxClients int
	// SpawnPoints turns on spawn rotation in dynamic mode. When empty,
	// players spawn at a random spot in the start band.
	SpawnPoints []models.Vector3

	PatchInterval time.Duration
	// EmptyTimeout is how long a room that became empty waits before it
	// disposes. Zero disposes immediately.
	EmptyTimeout time.Duration
	// ReservationTimeout disposes a fresh room nobody joined.
	ReservationTimeout time.Duration

	Rand   *rand.Rand
	Logger telemetry.Logger
}

const (
	DefaultMaxClients         = 10
	DefaultPatchInterval      = 50 * time.Millisecond
	DefaultReservationTimeout = 15 * time.Second
)

// DefaultSpawnPoints is the two-car starting grid.
func DefaultSpawnPoints() []models.Vector3 {
	return []models.Vector3{
		{X: -110, Y: 0.75, Z: 210},
		{X: -110, Y: 0.75, Z: 220},
	}
}

func (o Options) withDefaults() Options {
	if o.MaxClients <= 0 {
		o.MaxClients = DefaultMaxClients
	}
	if o.PatchInterval <= 0 {
		o.PatchInterval = DefaultPatchInterval
	}
	if o.ReservationTimeout <= 0 {
		o.ReservationTimeout = DefaultReservationTimeout
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	o.Logger = telemetry.OrDefault(o.Logger)
	o.SpawnPoints = append([]models.Vector3(nil), o.SpawnPoints...)
	return o
}
