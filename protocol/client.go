package protocol

import (
	"fmt"
	"math"

	"github.com/4cecoder/raceroom/models"
)

// input structs coming in from the client.

// Message is a decoded and validated client message.
type Message interface {
	Type() string
	// Payload returns the wire form a client sends for the message.
	Payload() any
}

// FrameData replaces the sender's movement.
type FrameData struct {
	Movement models.Movement
}

func (FrameData) Type() string { return MsgFrameData }

func (m FrameData) Payload() any { return m.Movement }

// PositionData replaces the sender's transform. Direction and
// AngularVelocity are nil when the client did not send them.
type PositionData struct {
	Position        models.Vector3
	Rotation        models.AxisData
	Direction       *models.Vector3
	AngularVelocity *models.Vector3
}

func (PositionData) Type() string { return MsgPositionData }

func (m PositionData) Payload() any {
	return positionDataOut{
		Position:        m.Position,
		Rotation:        m.Rotation,
		Direction:       m.Direction,
		AngularVelocity: m.AngularVelocity,
	}
}

// ETC reports a race finish. Value is zero when the client sent nothing
// usable.
type ETC struct {
	Value float64
}

func (ETC) Type() string { return MsgETC }

func (m ETC) Payload() any { return etcOut{Value: m.Value} }

type positionDataOut struct {
	Position        models.Vector3  `json:"position"`
	Rotation        models.AxisData `json:"rotation"`
	Direction       *models.Vector3 `json:"direction,omitempty"`
	AngularVelocity *models.Vector3 `json:"angularVelocity,omitempty"`
}

type etcOut struct {
	Value float64 `json:"value"`
}

type frameDataWire struct {
	IsBoosting    *bool    `json:"isBoosting"`
	BoostValue    *float64 `json:"boostValue"`
	Brake         *bool    `json:"brake"`
	EngineValue   *float64 `json:"engineValue"`
	Forward       *bool    `json:"forward"`
	Speed         *float64 `json:"speed"`
	SteeringValue *float64 `json:"steeringValue"`
	SwaySpeed     *float64 `json:"swaySpeed"`
	SwayTarget    *float64 `json:"swayTarget"`
	SwayValue     *float64 `json:"swayValue"`
}

type axisWire struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
	Z *float64 `json:"z"`
	W *float64 `json:"w,omitempty"`
}

type positionDataWire struct {
	Position        *axisWire `json:"position"`
	Rotation        *axisWire `json:"rotation"`
	Direction       *axisWire `json:"direction,omitempty"`
	AngularVelocity *axisWire `json:"angularVelocity,omitempty"`
}

type etcWire struct {
	Value *float64 `json:"value"`
}

// DecodeMessage decodes the payload of env into its typed message. Missing
// required fields and non-finite numbers are rejected with ErrMalformed.
func DecodeMessage(c Codec, env Envelope) (Message, error) {
	switch env.T {
	case MsgFrameData:
		var w frameDataWire
		if err := c.Unmarshal(env.P, &w); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.T, err)
		}
		return w.message()
	case MsgPositionData, MsgMovementData:
		var w positionDataWire
		if err := c.Unmarshal(env.P, &w); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.T, err)
		}
		return w.message()
	case MsgETC:
		var w etcWire
		if err := c.Unmarshal(env.P, &w); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.T, err)
		}
		return w.message()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.T)
	}
}

func (w frameDataWire) message() (Message, error) {
	var m models.Movement
	var err error
	if m.IsBoosting, err = requireBool("isBoosting", w.IsBoosting); err != nil {
		return nil, err
	}
	if m.Brake, err = requireBool("brake", w.Brake); err != nil {
		return nil, err
	}
	if m.Forward, err = requireBool("forward", w.Forward); err != nil {
		return nil, err
	}
	numbers := []struct {
		name string
		src  *float64
		dst  *float64
	}{
		{"boostValue", w.BoostValue, &m.BoostValue},
		{"engineValue", w.EngineValue, &m.EngineValue},
		{"speed", w.Speed, &m.Speed},
		{"steeringValue", w.SteeringValue, &m.SteeringValue},
		{"swaySpeed", w.SwaySpeed, &m.SwaySpeed},
		{"swayTarget", w.SwayTarget, &m.SwayTarget},
		{"swayValue", w.SwayValue, &m.SwayValue},
	}
	for _, n := range numbers {
		if *n.dst, err = requireNumber(n.name, n.src); err != nil {
			return nil, err
		}
	}
	return FrameData{Movement: m}, nil
}

func (w positionDataWire) message() (Message, error) {
	if w.Position == nil {
		return nil, fmt.Errorf("%w: positionData: missing position", ErrMalformed)
	}
	if w.Rotation == nil {
		return nil, fmt.Errorf("%w: positionData: missing rotation", ErrMalformed)
	}
	var msg PositionData
	var err error
	if msg.Position, err = w.Position.vector("position"); err != nil {
		return nil, err
	}
	if msg.Rotation, err = w.Rotation.axis("rotation"); err != nil {
		return nil, err
	}
	if w.Direction != nil {
		v, err := w.Direction.vector("direction")
		if err != nil {
			return nil, err
		}
		msg.Direction = &v
	}
	if w.AngularVelocity != nil {
		v, err := w.AngularVelocity.vector("angularVelocity")
		if err != nil {
			return nil, err
		}
		msg.AngularVelocity = &v
	}
	return msg, nil
}

func (w etcWire) message() (Message, error) {
	if w.Value == nil || *w.Value == 0 {
		return ETC{}, nil
	}
	if !finite(*w.Value) || *w.Value < 0 {
		return nil, fmt.Errorf("%w: etc: invalid value %v", ErrMalformed, *w.Value)
	}
	return ETC{Value: *w.Value}, nil
}

func (a *axisWire) vector(field string) (models.Vector3, error) {
	var v models.Vector3
	var err error
	if v.X, err = requireNumber(field+".x", a.X); err != nil {
		return v, err
	}
	if v.Y, err = requireNumber(field+".y", a.Y); err != nil {
		return v, err
	}
	if v.Z, err = requireNumber(field+".z", a.Z); err != nil {
		return v, err
	}
	return v, nil
}

func (a *axisWire) axis(field string) (models.AxisData, error) {
	v, err := a.vector(field)
	if err != nil {
		return models.AxisData{}, err
	}
	out := models.AxisData{X: v.X, Y: v.Y, Z: v.Z}
	if a.W != nil {
		if !finite(*a.W) {
			return models.AxisData{}, fmt.Errorf("%w: %s.w is not finite", ErrMalformed, field)
		}
		out.W = *a.W
	}
	return out, nil
}

func requireBool(field string, v *bool) (bool, error) {
	if v == nil {
		return false, fmt.Errorf("%w: missing %s", ErrMalformed, field)
	}
	return *v, nil
}

func requireNumber(field string, v *float64) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("%w: missing %s", ErrMalformed, field)
	}
	if !finite(*v) {
		return 0, fmt.Errorf("%w: %s is not finite", ErrMalformed, field)
	}
	return *v, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
