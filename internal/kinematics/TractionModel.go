// Package kinematics defines the TractionModel interface for vehicle traction
// and braking physics, along with built-in implementations.
//
// Adding a new physics model only requires implementing TractionModel and
// registering it in the vehicle decoder of the train package.
package kinematics

import "errors"

var ErrInvalidModel = errors.New("invalid traction model")

const gravity = 9.81 // m/s²

// Demand describes what a train wants from its traction for one time step.
type Demand struct {
	Velocity       float64 // m/s
	TargetVelocity float64 // m/s
	Gradient       float64 // per mille, positive uphill in the direction of travel
	Mass           float64 // tonnes
	Dt             float64 // seconds
}

// Result is the traction available for one time step.
type Result struct {
	Acceleration   float64 // m/s², negative when resistance outweighs traction
	MaxBraking     float64 // m/s², negative
	TractiveEffort float64 // N
}

// TractionModel is the physics contract every traction implementation must
// satisfy. Distances are in metres, velocities in m/s, time in seconds.
type TractionModel interface {
	// MaxVelocity returns the highest velocity at which the vehicle still
	// produces traction.
	MaxVelocity() float64

	// MaxTractiveEffort returns the tractive effort available at velocity v.
	MaxTractiveEffort(v float64) float64

	// Accelerations returns the acceleration achievable towards
	// d.TargetVelocity, the braking deceleration available and the tractive
	// effort used.
	Accelerations(d Demand) Result

	// Validate reports parameters the model cannot work with.
	Validate() error
}
