// Package protocol defines the room wire format: an envelope {t, p} carried
// by a pluggable codec, the typed client messages and the server payloads.
package protocol

import "errors"

// Client -> room.
const (
	MsgFrameData    = "frameData"
	MsgPositionData = "positionData"
	// MsgMovementData is the older name for positionData.
	MsgMovementData = "movementData"
	MsgETC          = "etc"
)

// Room -> client.
const (
	MsgWelcome = "welcome"
	MsgState   = "state"
	MsgPatch   = "patch"
	MsgConfig  = "config"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownType = errors.New("unknown message type")
)

// Envelope is a decoded frame whose payload is still in codec form.
type Envelope struct {
	T string
	P []byte
}
