// Package models holds the replicated room state: value types, the Player
// entity and the room-wide collections.
package models

// Vector3 is a plain 3D tuple used for positions, spawn points and headings.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v *Vector3) Set(x, y, z float64) {
	v.X, v.Y, v.Z = x, y, z
}

func (v *Vector3) SetFrom(other Vector3) {
	*v = other
}

func (v Vector3) Equal(x, y, z float64) bool {
	return v.X == x && v.Y == y && v.Z == z
}

func (v Vector3) Values() [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

// AxisData is a Vector3 with an extra W component, used when a rotation is
// carried as a quaternion. W is zero for euler rotations.
type AxisData struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

func (a *AxisData) Set(x, y, z, w float64) {
	a.X, a.Y, a.Z, a.W = x, y, z, w
}

func (a *AxisData) SetFrom(other AxisData) {
	*a = other
}

func (a AxisData) Equal(x, y, z, w float64) bool {
	return a.X == x && a.Y == y && a.Z == z && a.W == w
}

func (a AxisData) Values() [4]float64 {
	return [4]float64{a.X, a.Y, a.Z, a.W}
}
