package models

// DefaultBoostValue is the boost reserve a fresh vehicle starts with.
const DefaultBoostValue = 100

// Movement is the driving-input snapshot a client reports every frame. The
// server stores it verbatim; remote clients replay it through their own
// physics.
type Movement struct {
	Brake         bool    `json:"brake"`
	IsBoosting    bool    `json:"isBoosting"`
	Forward       bool    `json:"forward"`
	BoostValue    float64 `json:"boostValue"`
	EngineValue   float64 `json:"engineValue"`
	SteeringValue float64 `json:"steeringValue"`
	Speed         float64 `json:"speed"`
	SwaySpeed     float64 `json:"swaySpeed"`
	SwayTarget    float64 `json:"swayTarget"`
	SwayValue     float64 `json:"swayValue"`
}

func NewMovement() Movement {
	return Movement{BoostValue: DefaultBoostValue}
}
