package train

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/cxd309/movingblock/internal/kinematics"
)

const (
	DefaultLength = 100.0 // metres
	DefaultMass   = 300.0 // tonnes
)

// Vehicle holds the static parameters of a train.
// The physics of traction and braking are encapsulated by the Model field;
// adding a new model only requires implementing kinematics.TractionModel and
// registering it in decodeModel below.
type Vehicle struct {
	Name   string                   `json:"name" yaml:"name"`
	Length float64                  `json:"length" yaml:"length"` // metres
	Mass   float64                  `json:"mass" yaml:"mass"`     // tonnes
	Model  kinematics.TractionModel `json:"-" yaml:"-"`           // set by the decoders
}

// DefaultVehicle returns a vehicle with default dimensions and rolling stock.
func DefaultVehicle() Vehicle {
	return Vehicle{Length: DefaultLength, Mass: DefaultMass, Model: kinematics.DefaultRollingStock()}
}

func (v Vehicle) Validate() error {
	if !(v.Length > 0) {
		return fmt.Errorf("vehicle %q: length %v must be positive", v.Name, v.Length)
	}
	if !(v.Mass > 0) {
		return fmt.Errorf("vehicle %q: mass %v must be positive", v.Name, v.Mass)
	}
	if v.Model == nil {
		return fmt.Errorf("vehicle %q: no traction model", v.Name)
	}
	if err := v.Model.Validate(); err != nil {
		return fmt.Errorf("vehicle %q: %w", v.Name, err)
	}
	return nil
}

// modelDisc is the minimum structure needed to read the model discriminator.
type modelDisc struct {
	Model string `json:"model" yaml:"model"`
}

// vehicleJSON is the raw JSON shape of a Vehicle, before the model is resolved.
type vehicleJSON struct {
	Name   string          `json:"name"`
	Length float64         `json:"length"`
	Mass   float64         `json:"mass"`
	Kinem  json.RawMessage `json:"kinematics"`
}

// UnmarshalJSON implements json.Unmarshaler for Vehicle.
// The optional "kinematics" object carries a "model" discriminator selecting
// the implementation; the rest of the object is decoded over that model's
// defaults. Without it the vehicle gets the default rolling stock.
//
// Supported models:
//   - "rolling_stock": tractive-effort curve with running resistance.
//   - "constant": fixed a_acc / a_dcc rates.
func (v *Vehicle) UnmarshalJSON(data []byte) error {
	aux := vehicleJSON{Length: DefaultLength, Mass: DefaultMass}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	v.Name, v.Length, v.Mass = aux.Name, aux.Length, aux.Mass

	if len(aux.Kinem) == 0 {
		v.Model = kinematics.DefaultRollingStock()
		return nil
	}
	var disc modelDisc
	if err := json.Unmarshal(aux.Kinem, &disc); err != nil {
		return fmt.Errorf("vehicle %q: reading kinematics model discriminator: %w", v.Name, err)
	}
	m, err := decodeModel(disc.Model, func(out any) error { return json.Unmarshal(aux.Kinem, out) })
	if err != nil {
		return fmt.Errorf("vehicle %q: %w", v.Name, err)
	}
	v.Model = m
	return nil
}

// vehicleYAML is the raw YAML shape of a Vehicle.
type vehicleYAML struct {
	Name   string    `yaml:"name"`
	Length float64   `yaml:"length"`
	Mass   float64   `yaml:"mass"`
	Kinem  yaml.Node `yaml:"kinematics"`
}

// UnmarshalYAML mirrors UnmarshalJSON for YAML scenario files.
func (v *Vehicle) UnmarshalYAML(value *yaml.Node) error {
	aux := vehicleYAML{Length: DefaultLength, Mass: DefaultMass}
	if err := value.Decode(&aux); err != nil {
		return err
	}
	v.Name, v.Length, v.Mass = aux.Name, aux.Length, aux.Mass

	if aux.Kinem.Kind == 0 {
		v.Model = kinematics.DefaultRollingStock()
		return nil
	}
	var disc modelDisc
	if err := aux.Kinem.Decode(&disc); err != nil {
		return fmt.Errorf("vehicle %q: reading kinematics model discriminator: %w", v.Name, err)
	}
	m, err := decodeModel(disc.Model, aux.Kinem.Decode)
	if err != nil {
		return fmt.Errorf("vehicle %q: %w", v.Name, err)
	}
	v.Model = m
	return nil
}

func decodeModel(name string, decode func(any) error) (kinematics.TractionModel, error) {
	switch name {
	case kinematics.RollingStockModelName, "":
		k := kinematics.DefaultRollingStock()
		if err := decode(&k); err != nil {
			return nil, fmt.Errorf("parsing rolling stock kinematics: %w", err)
		}
		return k, nil
	case kinematics.ConstantModelName:
		var k kinematics.ConstantAcceleration
		if err := decode(&k); err != nil {
			return nil, fmt.Errorf("parsing constant kinematics: %w", err)
		}
		return k, nil
	}
	return nil, fmt.Errorf("unknown kinematics model %q", name)
}
