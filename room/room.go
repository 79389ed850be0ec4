package room

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/4cecoder/raceroom/models"
	"github.com/4cecoder/raceroom/protocol"
	"github.com/4cecoder/raceroom/replication"
	"github.com/4cecoder/raceroom/telemetry"
)

type joinCmd struct {
	sessionID string
	conn      replication.Conn
	codec     protocol.Codec
	reply     chan<- joinReply
}

type joinReply struct {
	result JoinResult
	err    error
}

type leaveCmd struct {
	sessionID string
	consented bool
}

type messageCmd struct {
	sessionID string
	msg       protocol.Message
}

type queryCmd struct {
	fn   func()
	done chan struct{}
}

type disposeCmd struct{}

// Room runs one Controller on its own goroutine. Every join, leave, message
// and flush is handled to completion before the next one starts.
type Room struct {
	ID   string
	Name string

	inbox   chan any
	ctrl    *Controller
	channel *replication.Channel
	opts    Options
	logger  telemetry.Logger

	flushedVersion uint64
	emptyTimer     *time.Timer

	clients   atomic.Int32
	done      chan struct{}
	runOnce   sync.Once
	onDispose func(*Room)
}

// New creates an open room. Call Run to start processing.
func New(id string, opts Options) (*Room, error) {
	ctrl := NewController(opts)
	if err := ctrl.Open(); err != nil {
		return nil, err
	}
	opts = ctrl.Options()
	return &Room{
		ID:      id,
		Name:    opts.Name,
		inbox:   make(chan any, 256),
		ctrl:    ctrl,
		channel: replication.NewChannel(opts.Logger),
		opts:    opts,
		logger:  opts.Logger,
		done:    make(chan struct{}),
	}, nil
}

// Clients returns the number of admitted sessions. Safe from any goroutine.
func (r *Room) Clients() int {
	return int(r.clients.Load())
}

func (r *Room) MaxClients() int {
	return r.opts.MaxClients
}

// Done is closed once the room has disposed.
func (r *Room) Done() <-chan struct{} {
	return r.done
}

func (r *Room) Disposed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Run processes commands until the room disposes or ctx ends.
func (r *Room) Run(ctx context.Context) {
	r.runOnce.Do(func() { r.run(ctx) })
}

func (r *Room) run(ctx context.Context) {
	ticker := time.NewTicker(r.opts.PatchInterval)
	defer ticker.Stop()

	r.emptyTimer = time.NewTimer(r.opts.ReservationTimeout)
	defer r.emptyTimer.Stop()

	r.flush()
	for {
		select {
		case <-ctx.Done():
			r.dispose()
		case cmd := <-r.inbox:
			r.handleCommand(cmd)
		case <-ticker.C:
			r.flush()
		case <-r.emptyTimer.C:
			if r.ctrl.Clients() == 0 {
				r.logger.Printf("room %s empty, disposing", r.ID)
				r.dispose()
			}
		}
		if r.Disposed() {
			return
		}
	}
}

func (r *Room) handleCommand(cmd any) {
	switch c := cmd.(type) {
	case joinCmd:
		res, err := r.join(c)
		c.reply <- joinReply{result: res, err: err}
	case leaveCmd:
		r.leave(c.sessionID, c.consented)
	case messageCmd:
		if err := r.ctrl.Dispatch(c.sessionID, c.msg); err != nil {
			r.logger.Printf("dropped %s from %s: %v", c.msg.Type(), c.sessionID, err)
		}
	case queryCmd:
		c.fn()
		close(c.done)
	case disposeCmd:
		r.dispose()
	}
}

func (r *Room) join(c joinCmd) (JoinResult, error) {
	res, err := r.ctrl.Join(c.sessionID)
	if err != nil {
		return JoinResult{}, err
	}
	codec := c.codec
	if codec == nil {
		codec = protocol.JSONCodec{}
	}

	// Bring everyone else up to date first so the joiner's snapshot is the
	// baseline for the next patch batch.
	r.flush()

	welcome, err := codec.Encode(protocol.MsgWelcome, protocol.Welcome{SessionID: c.sessionID, RoomID: r.ID})
	if err == nil {
		err = c.conn.Send(welcome)
	}
	if err == nil {
		err = r.channel.Attach(c.sessionID, c.conn, codec)
	}
	if err == nil {
		err = r.channel.Unicast(c.sessionID, protocol.MsgConfig, r.ctrl.Config())
	}
	if err != nil {
		r.channel.Detach(c.sessionID)
		r.ctrl.Leave(c.sessionID, false)
		r.syncClients()
		return JoinResult{}, fmt.Errorf("attach %s: %w", c.sessionID, err)
	}

	r.stopEmptyTimer()
	r.syncClients()
	return res, nil
}

func (r *Room) leave(sessionID string, consented bool) {
	conn, attached := r.channel.Detach(sessionID)
	left := r.ctrl.Leave(sessionID, consented)
	if attached {
		_ = conn.Close()
	}
	r.syncClients()
	if !left || r.ctrl.Clients() > 0 {
		return
	}
	if r.opts.EmptyTimeout <= 0 {
		r.logger.Printf("room %s empty, disposing", r.ID)
		r.dispose()
		return
	}
	r.stopEmptyTimer()
	r.emptyTimer.Reset(r.opts.EmptyTimeout)
}

func (r *Room) stopEmptyTimer() {
	if !r.emptyTimer.Stop() {
		select {
		case <-r.emptyTimer.C:
		default:
		}
	}
}

func (r *Room) flush() {
	if r.ctrl.Phase() != PhaseOpen || r.ctrl.Version() == r.flushedVersion {
		return
	}
	r.flushedVersion = r.ctrl.Version()
	_, failed := r.channel.Flush(r.ctrl.Snapshot())
	for _, sessionID := range failed {
		r.logger.Printf("dropping %s after failed send", sessionID)
		r.leave(sessionID, false)
	}
}

func (r *Room) syncClients() {
	r.clients.Store(int32(r.ctrl.Clients()))
}

func (r *Room) dispose() {
	if !r.ctrl.BeginDispose() {
		return
	}
	r.logger.Printf("room %s disposing...", r.ID)
	r.channel.Close()
	r.ctrl.FinishDispose()
	r.clients.Store(0)
	close(r.done)
	if r.onDispose != nil {
		r.onDispose(r)
	}
}

func (r *Room) send(ctx context.Context, cmd any) error {
	select {
	case r.inbox <- cmd:
		return nil
	case <-r.done:
		return ErrRoomDisposed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join admits sessionID, sends it the welcome, full state and config
// messages through conn, and returns the assigned player key. If ctx ends
// after the command was queued the session may still be admitted; callers
// should Leave on error.
func (r *Room) Join(ctx context.Context, sessionID string, conn replication.Conn, codec protocol.Codec) (JoinResult, error) {
	reply := make(chan joinReply, 1)
	if err := r.send(ctx, joinCmd{sessionID: sessionID, conn: conn, codec: codec, reply: reply}); err != nil {
		return JoinResult{}, err
	}
	select {
	case res := <-reply:
		return res.result, res.err
	case <-r.done:
		return JoinResult{}, ErrRoomDisposed
	case <-ctx.Done():
		return JoinResult{}, ctx.Err()
	}
}

// Leave queues a leave. It is a no-op for unknown sessions and disposed
// rooms.
func (r *Room) Leave(sessionID string, consented bool) {
	_ = r.send(context.Background(), leaveCmd{sessionID: sessionID, consented: consented})
}

// Deliver queues a client message for the room.
func (r *Room) Deliver(sessionID string, msg protocol.Message) {
	_ = r.send(context.Background(), messageCmd{sessionID: sessionID, msg: msg})
}

// Dispose asks the room to shut down. It returns immediately.
func (r *Room) Dispose() {
	select {
	case r.inbox <- disposeCmd{}:
	case <-r.done:
	default:
		go func() { _ = r.send(context.Background(), disposeCmd{}) }()
	}
}

func (r *Room) query(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := r.send(ctx, queryCmd{fn: fn, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-r.done:
		return ErrRoomDisposed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a copy of the room state as of now.
func (r *Room) Snapshot(ctx context.Context) (models.Snapshot, error) {
	var snap models.Snapshot
	err := r.query(ctx, func() { snap = r.ctrl.Snapshot() })
	return snap, err
}

func (r *Room) Standings(ctx context.Context) ([]models.Standing, error) {
	var rows []models.Standing
	err := r.query(ctx, func() { rows = r.ctrl.Standings() })
	return rows, err
}

// Phase reports the controller phase as seen from the room goroutine.
func (r *Room) Phase(ctx context.Context) Phase {
	if r.Disposed() {
		return PhaseDisposed
	}
	phase := PhaseDisposed
	if err := r.query(ctx, func() { phase = r.ctrl.Phase() }); err != nil {
		return PhaseDisposed
	}
	return phase
}
