package kinematics

import "math"

// BrakingDistance returns the distance needed to stop from v at deceleration
// maxBraking (negative or positive, only the magnitude is used).
func BrakingDistance(v, maxBraking float64) float64 {
	return BrakingDistanceTo(v, 0, maxBraking)
}

// BrakingDistanceTo returns the distance needed to slow from v to targetV.
// Returns 0 if v ≤ targetV.
func BrakingDistanceTo(v, targetV, maxBraking float64) float64 {
	b := math.Abs(maxBraking)
	if b == 0 {
		return math.Inf(1)
	}
	if v <= targetV {
		return 0
	}
	return 0.5 * (v*v - targetV*targetV) / b
}

// ReservationAcceleration bounds how fast the reservation point may run ahead
// of a train accelerating at a: a + a²/|maxBraking|, zero when the train is
// not accelerating. Empirical, tune with care.
func ReservationAcceleration(a, maxBraking float64) float64 {
	a = math.Max(0, a)
	b := math.Abs(maxBraking)
	if b == 0 {
		return a
	}
	return a + a*a/b
}
