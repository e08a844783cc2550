package kinematics

import (
	"fmt"
	"math"
)

// RollingStockModelName is the discriminator string for the RollingStock model.
const RollingStockModelName = "rolling_stock"

// RollingStock models traction from a tractive-effort curve and running
// resistance.
//
// Tractive effort is MaxTraction up to VelocityMaxTraction, falls off as
// 1/v above it and vanishes above MaxVelocityVal. Running resistance in N/kN
// is gradient + C + K·(3.6·v)²/1000.
//
// Discriminator: "model": "rolling_stock"
type RollingStock struct {
	MaxTraction         float64 `json:"max_traction" yaml:"max_traction"`                   // N
	VelocityMaxTraction float64 `json:"velocity_max_traction" yaml:"velocity_max_traction"` // m/s
	MaxAcceleration     float64 `json:"max_acceleration" yaml:"max_acceleration"`           // m/s²
	MaxBraking          float64 `json:"max_braking" yaml:"max_braking"`                     // m/s², negative
	MaxVelocityVal      float64 `json:"max_velocity" yaml:"max_velocity"`                   // m/s
	MassFactor          float64 `json:"mass_factor" yaml:"mass_factor"`                     // rotating mass allowance
	K                   float64 `json:"k" yaml:"k"`                                         // N/kN per (km/h)²·1000
	C                   float64 `json:"c" yaml:"c"`                                         // N/kN
}

// DefaultRollingStock returns a mid-sized electric locomotive.
func DefaultRollingStock() RollingStock {
	return RollingStock{
		MaxTraction:         210000,
		VelocityMaxTraction: 90 / 3.6,
		MaxAcceleration:     10,
		MaxBraking:          -0.1,
		MaxVelocityVal:      200 / 3.6,
		MassFactor:          1.05,
		K:                   0.5,
		C:                   2.5,
	}
}

func (r RollingStock) MaxVelocity() float64 { return r.MaxVelocityVal }

func (r RollingStock) MaxTractiveEffort(v float64) float64 {
	switch {
	case v > r.MaxVelocityVal:
		return 0
	case v <= r.VelocityMaxTraction:
		return r.MaxTraction
	}
	return r.MaxTraction * r.VelocityMaxTraction / v
}

// runResistance returns the running resistance in N/kN.
func (r RollingStock) runResistance(v, gradient float64) float64 {
	return gradient + r.C + r.K*v*v*0.01296
}

func (r RollingStock) Accelerations(d Demand) Result {
	run := r.runResistance(d.Velocity, d.Gradient)

	need := 0.0
	if d.Dt > 0 {
		need = math.Min(r.MaxAcceleration, math.Max(0, d.TargetVelocity-d.Velocity)/d.Dt)
	}
	total := run
	if need > 0 {
		total += r.MassFactor * need * 100
	}
	total *= d.Mass * gravity

	te := math.Min(math.Max(0, total), r.MaxTractiveEffort(d.Velocity))
	a := (te/d.Mass - run*gravity) * 0.001 / r.MassFactor

	brake := r.MaxBraking
	if a < 0 {
		brake += a
	}
	return Result{Acceleration: a, MaxBraking: brake, TractiveEffort: te}
}

func (r RollingStock) Validate() error {
	switch {
	case r.MaxTraction < 0:
		return fmt.Errorf("%w: max_traction %v < 0", ErrInvalidModel, r.MaxTraction)
	case r.VelocityMaxTraction < 0:
		return fmt.Errorf("%w: velocity_max_traction %v < 0", ErrInvalidModel, r.VelocityMaxTraction)
	case r.MaxAcceleration < 0:
		return fmt.Errorf("%w: max_acceleration %v < 0", ErrInvalidModel, r.MaxAcceleration)
	case !(r.MaxBraking < 0):
		return fmt.Errorf("%w: max_braking %v must be negative", ErrInvalidModel, r.MaxBraking)
	case !(r.MaxVelocityVal > 0):
		return fmt.Errorf("%w: max_velocity %v must be positive", ErrInvalidModel, r.MaxVelocityVal)
	case !(r.MassFactor > 0):
		return fmt.Errorf("%w: mass_factor %v must be positive", ErrInvalidModel, r.MassFactor)
	}
	return nil
}
