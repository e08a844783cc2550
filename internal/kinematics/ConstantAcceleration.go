package kinematics

import (
	"fmt"
	"math"
)

// ConstantModelName is the discriminator string for the Constant model.
const ConstantModelName = "constant"

// ConstantAcceleration implements TractionModel using fixed acceleration and
// deceleration rates. Gradients still pull on the train.
//
// Discriminator: "model": "constant"
type ConstantAcceleration struct {
	AAcc    float64 `json:"a_acc" yaml:"a_acc"` // traction acceleration, m/s²
	ADcc    float64 `json:"a_dcc" yaml:"a_dcc"` // service braking deceleration, m/s² (positive)
	VMaxVal float64 `json:"v_max" yaml:"v_max"` // maximum speed, m/s
}

func (c ConstantAcceleration) MaxVelocity() float64 { return c.VMaxVal }

// MaxTractiveEffort is unbounded up to VMax; the model has no mass-aware
// traction curve.
func (c ConstantAcceleration) MaxTractiveEffort(v float64) float64 {
	if v > c.VMaxVal {
		return 0
	}
	return math.Inf(1)
}

func (c ConstantAcceleration) Accelerations(d Demand) Result {
	need := 0.0
	if d.Dt > 0 {
		need = math.Min(c.AAcc, math.Max(0, d.TargetVelocity-d.Velocity)/d.Dt)
	}
	a := need - gravity*d.Gradient*0.001
	brake := -c.ADcc
	if a < 0 {
		brake += a
	}
	return Result{Acceleration: a, MaxBraking: brake, TractiveEffort: math.Max(0, need) * d.Mass * 1000}
}

func (c ConstantAcceleration) Validate() error {
	switch {
	case c.AAcc < 0:
		return fmt.Errorf("%w: a_acc %v < 0", ErrInvalidModel, c.AAcc)
	case !(c.ADcc > 0):
		return fmt.Errorf("%w: a_dcc %v must be positive", ErrInvalidModel, c.ADcc)
	case !(c.VMaxVal > 0):
		return fmt.Errorf("%w: v_max %v must be positive", ErrInvalidModel, c.VMaxVal)
	}
	return nil
}
