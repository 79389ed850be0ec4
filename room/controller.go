package room

import (
	"fmt"

	"github.com/4cecoder/raceroom/models"
	"github.com/4cecoder/raceroom/protocol"
)

// Phase is the controller lifecycle state.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseOpen
	PhaseDisposing
	PhaseDisposed
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseOpen:
		return "open"
	case PhaseDisposing:
		return "disposing"
	case PhaseDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

type JoinResult struct {
	SessionID string
	// Key is the players-collection key the session now owns.
	Key string
}

type handler func(sessionID, key string, p *models.Player, msg protocol.Message) error

// Controller owns a room's state and every mutation of it. It is not safe
// for concurrent use; Room serializes access to it.
type Controller struct {
	opts     Options
	phase    Phase
	state    *models.RoomState
	handlers map[string]handler
	version  uint64
}

func NewController(opts Options) *Controller {
	return &Controller{opts: opts.withDefaults()}
}

func (c *Controller) Phase() Phase {
	return c.phase
}

func (c *Controller) Options() Options {
	return c.opts
}

// Version increases with every visible state mutation.
func (c *Controller) Version() uint64 {
	return c.version
}

// Open allocates the room state and the message dispatch table.
func (c *Controller) Open() error {
	if c.phase != PhaseUninitialized {
		return fmt.Errorf("open room in phase %s: %w", c.phase, ErrRoomNotOpen)
	}
	c.state = models.NewRoomState()

	switch c.opts.Mode {
	case ModeFixedSlot:
		for i := 0; i < c.opts.MaxClients; i++ {
			p := models.NewPlayer()
			placeInBand(p, c.opts.Rand, slotRotationW)
			c.state.Set(slotKey(i), p)
		}
	case ModeDynamic:
		if len(c.opts.SpawnPoints) > 0 {
			c.state.NextSpawnPosition = c.opts.SpawnPoints[0]
		}
	default:
		return fmt.Errorf("unknown room mode %d", c.opts.Mode)
	}

	c.handlers = map[string]handler{
		protocol.MsgFrameData:    c.onFrameData,
		protocol.MsgPositionData: c.onPositionData,
		protocol.MsgETC:          c.onETC,
	}
	c.phase = PhaseOpen
	c.version++
	return nil
}

func slotKey(i int) string {
	return fmt.Sprintf("player%d", i)
}

// Clients returns the number of admitted sessions.
func (c *Controller) Clients() int {
	if c.state == nil {
		return 0
	}
	if c.opts.Mode == ModeFixedSlot {
		return len(c.state.Indexes)
	}
	return c.state.Len()
}

func (c *Controller) Config() protocol.Config {
	return protocol.Config{MaxPlayerCount: c.opts.MaxClients}
}

func (c *Controller) checkOpen() error {
	switch c.phase {
	case PhaseOpen:
		return nil
	case PhaseUninitialized:
		return ErrRoomNotOpen
	default:
		return ErrRoomDisposed
	}
}

// Join admits sessionID and assigns it a player.
func (c *Controller) Join(sessionID string) (JoinResult, error) {
	if err := c.checkOpen(); err != nil {
		return JoinResult{}, err
	}
	if sessionID == "" {
		return JoinResult{}, ErrEmptySession
	}
	if _, _, ok := c.state.Resolve(sessionID); ok {
		return JoinResult{}, fmt.Errorf("%w: %s", ErrAlreadyJoined, sessionID)
	}
	if c.Clients() >= c.opts.MaxClients {
		return JoinResult{}, ErrRoomFull
	}

	var key string
	switch c.opts.Mode {
	case ModeFixedSlot:
		var slot *models.Player
		c.state.Each(func(k string, p *models.Player) {
			if slot == nil && !p.PlayerPresent {
				key, slot = k, p
			}
		})
		if slot == nil {
			return JoinResult{}, ErrNoVacantSlot
		}
		c.state.Indexes[sessionID] = key
		slot.SessionID = sessionID
		slot.PlayerPresent = true
	default:
		p := models.NewPlayer()
		p.SessionID = sessionID
		p.PlayerPresent = true
		if len(c.opts.SpawnPoints) > 0 {
			spawn := c.state.NextSpawnPosition
			p.SpawnPosition = spawn
			p.Position = spawn
			p.Rotation.Set(0, spawnHeading, 0, 0)
		} else {
			placeInBand(p, c.opts.Rand, 0)
		}
		key = sessionID
		c.state.Set(key, p)
		if len(c.opts.SpawnPoints) > 0 {
			c.state.NextSpawnPosition = advanceSpawn(c.opts.SpawnPoints, p.SpawnPosition, c.spawnHeld)
		}
	}
	c.version++
	c.opts.Logger.Printf("%s joined %s as %s", sessionID, c.opts.Name, key)
	return JoinResult{SessionID: sessionID, Key: key}, nil
}

func (c *Controller) spawnHeld(pt models.Vector3) bool {
	held := false
	c.state.Each(func(_ string, p *models.Player) {
		if p.SpawnPosition == pt {
			held = true
		}
	})
	return held
}

// Leave releases sessionID's player. It reports false when the session was
// not joined, which makes repeated leaves harmless. consented is only
// logged.
func (c *Controller) Leave(sessionID string, consented bool) bool {
	if c.checkOpen() != nil {
		return false
	}
	key, p, ok := c.state.Resolve(sessionID)
	if !ok {
		return false
	}

	switch c.opts.Mode {
	case ModeFixedSlot:
		p.Reset()
		placeInBand(p, c.opts.Rand, slotRotationW)
		delete(c.state.Indexes, sessionID)
	default:
		if len(c.opts.SpawnPoints) > 0 {
			c.state.NextSpawnPosition = p.SpawnPosition
		}
		c.state.Delete(key)
	}
	c.version++
	c.opts.Logger.Printf("%s left %s (consented=%t)", sessionID, c.opts.Name, consented)
	return true
}

// Dispatch applies one client message to the sender's player. The latest
// message always wins.
func (c *Controller) Dispatch(sessionID string, msg protocol.Message) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	key, p, ok := c.state.Resolve(sessionID)
	if !ok {
		c.opts.Logger.Printf("trying to update a player that doesn't exist: %s (%s)", sessionID, msg.Type())
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, sessionID)
	}
	h, ok := c.handlers[msg.Type()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnhandled, msg.Type())
	}
	return h(sessionID, key, p, msg)
}

func (c *Controller) onFrameData(_, _ string, p *models.Player, msg protocol.Message) error {
	m, ok := msg.(protocol.FrameData)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnhandled, msg)
	}
	p.Movement = m.Movement
	c.version++
	return nil
}

func (c *Controller) onPositionData(_, _ string, p *models.Player, msg protocol.Message) error {
	m, ok := msg.(protocol.PositionData)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnhandled, msg)
	}
	p.Position = m.Position
	p.Rotation = m.Rotation
	if m.Direction != nil {
		p.Direction = *m.Direction
	}
	if m.AngularVelocity != nil {
		p.AngularVelocity = *m.AngularVelocity
	}
	c.version++
	return nil
}

func (c *Controller) onETC(sessionID, _ string, p *models.Player, msg protocol.Message) error {
	m, ok := msg.(protocol.ETC)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnhandled, msg)
	}
	if m.Value == 0 {
		return nil
	}
	if p.Finished() {
		c.opts.Logger.Printf("ignoring etc %v from %s: already finished at %v", m.Value, sessionID, p.ETC)
		return ErrAlreadyFinished
	}
	p.ETC = m.Value
	c.version++
	return nil
}

// BeginDispose moves an open room into Disposing. It reports false when the
// room was never opened or is already going away.
func (c *Controller) BeginDispose() bool {
	if c.phase != PhaseOpen {
		return false
	}
	c.phase = PhaseDisposing
	return true
}

// FinishDispose releases the state.
func (c *Controller) FinishDispose() {
	if c.phase != PhaseDisposing {
		return
	}
	c.state = nil
	c.handlers = nil
	c.phase = PhaseDisposed
	c.opts.Logger.Printf("room %s disposed", c.opts.Name)
}

func (c *Controller) Dispose() {
	if c.BeginDispose() {
		c.FinishDispose()
	}
}

// Snapshot copies the current state. A room without state yields an empty
// snapshot.
func (c *Controller) Snapshot() models.Snapshot {
	if c.state == nil {
		return models.NewSnapshot()
	}
	return c.state.Snapshot()
}

func (c *Controller) Standings() []models.Standing {
	return c.Snapshot().Standings()
}
