package gamemath

import (
	"math"
	"time"

	dmath "github.com/yohamta/donburi/features/math"
)

// Integrate advances pos along dir at speed units per second for dt.
func Integrate(pos, dir dmath.Vec2, speed float64, dt time.Duration) dmath.Vec2 {
	if dt <= 0 || IsZero(dir) {
		return pos
	}
	return pos.Add(dir.MulScalar(speed * dt.Seconds()))
}

// ClampToBounds keeps a body of the given half extents inside [0,w]x[0,h].
// A zero width or height disables that axis.
func ClampToBounds(pos dmath.Vec2, halfW, halfH, w, h float64) dmath.Vec2 {
	if w > 0 {
		pos.X = clamp(pos.X, halfW, w-halfW)
	}
	if h > 0 {
		pos.Y = clamp(pos.Y, halfH, h-halfH)
	}
	return pos
}

// clamp limits v to [lo, hi]. When the range is empty the midpoint wins.
func clamp(v, lo, hi float64) float64 {
	if lo > hi {
		return (lo + hi) / 2
	}
	return math.Max(lo, math.Min(v, hi))
}

// ClampMagnitude scales v down to max length. A non-positive max disables the clamp.
func ClampMagnitude(v dmath.Vec2, max float64) dmath.Vec2 {
	if max <= 0 {
		return v
	}
	mag := v.Magnitude()
	if mag <= max || mag == 0 {
		return v
	}
	return v.MulScalar(max / mag)
}

// NormalizeInput turns a raw stick/keyboard vector into a unit-or-zero direction.
func NormalizeInput(v dmath.Vec2) dmath.Vec2 {
	mag := v.Magnitude()
	if mag < 1e-6 {
		return dmath.Vec2{}
	}
	return v.MulScalar(1 / mag)
}

// IsZero reports whether v is exactly the zero vector.
func IsZero(v dmath.Vec2) bool {
	return v.X == 0 && v.Y == 0
}

// Heading returns the facing angle in radians for a non-zero direction.
func Heading(dir dmath.Vec2) float64 {
	return math.Atan2(dir.Y, dir.X)
}

// Lerp interpolates between two vectors.
func Lerp(from, to dmath.Vec2, t float64) dmath.Vec2 {
	return dmath.Vec2{
		X: from.X + (to.X-from.X)*t,
		Y: from.Y + (to.Y-from.Y)*t,
	}
}

// LerpAngle interpolates rotations along the shortest arc.
func LerpAngle(from, to, t float64) float64 {
	diff := math.Remainder(to-from, 2*math.Pi)
	return from + diff*t
}
