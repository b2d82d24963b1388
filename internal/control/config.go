package control

import (
	"fmt"
)

// ServoCalibration maps a drag-extension fraction onto the servo angle the
// actuator understands. Linear between the retracted and extended stops.
type ServoCalibration struct {
	RetractedAngle float64 `yaml:"retractedAngle" json:"retractedAngle"` // degrees at extension 0.0
	ExtendedAngle  float64 `yaml:"extendedAngle" json:"extendedAngle"`   // degrees at extension 1.0
}

// Angle converts an extension fraction to a servo angle.
func (s ServoCalibration) Angle(extension float64) float64 {
	return s.RetractedAngle + extension*(s.ExtendedAngle-s.RetractedAngle)
}

func (s ServoCalibration) Validate() error {
	if s.RetractedAngle == s.ExtendedAngle {
		return fmt.Errorf("control.ServoCalibration: retracted and extended angles must differ: %f", s.RetractedAngle)
	}
	return nil
}

// Config holds the controller gains, the flight target and the physical
// constants of the predicted-apogee model.
type Config struct {
	Kp float64 `yaml:"kp" json:"kp"`
	Ki float64 `yaml:"ki" json:"ki"`
	Kd float64 `yaml:"kd" json:"kd"`

	// TargetApogee is the altitude the coast trajectory is steered toward, m.
	TargetApogee float64 `yaml:"targetApogee" json:"targetApogee"`

	Gravity float64 `yaml:"gravity" json:"gravity"` // m/s²

	// Quadratic drag deceleration factors (a_drag = k·v²) at the two
	// airbrake stops; the predictor interpolates on deployed extension.
	DragRetracted float64 `yaml:"dragRetracted" json:"dragRetracted"` // 1/m
	DragExtended  float64 `yaml:"dragExtended" json:"dragExtended"`   // 1/m

	// ExtensionSlew bounds how fast the deployed-extension state tracked
	// for the apogee prediction follows the commanded extension, in
	// fractions per second. It models the servo stroke rate; the airbrakes
	// cannot jump between the stops within one cycle, and neither may the
	// drag factor fed back into the predictor.
	ExtensionSlew float64 `yaml:"extensionSlew" json:"extensionSlew"` // 1/s

	Servo ServoCalibration `yaml:"servo" json:"servo"`
}

func DefaultConfig() *Config {
	return &Config{
		Kp:            0.02,
		Ki:            0.005,
		Kd:            0.001,
		TargetApogee:  250,
		Gravity:       9.81,
		DragRetracted: 0.0005,
		DragExtended:  0.005,
		ExtensionSlew: 2,
		Servo: ServoCalibration{
			RetractedAngle: 0,
			ExtendedAngle:  75,
		},
	}
}

func (c *Config) Validate() error {
	if c.Kp < 0 || c.Ki < 0 || c.Kd < 0 {
		return fmt.Errorf("control.Config: gains must not be negative: kp=%f ki=%f kd=%f", c.Kp, c.Ki, c.Kd)
	}
	if c.Kp == 0 && c.Ki == 0 {
		return fmt.Errorf("control.Config: at least one of kp, ki must be positive")
	}
	if c.TargetApogee <= 0 {
		return fmt.Errorf("control.Config: target apogee must be positive: %f", c.TargetApogee)
	}
	if c.Gravity <= 0 {
		return fmt.Errorf("control.Config: gravity must be positive: %f", c.Gravity)
	}
	if c.DragRetracted < 0 || c.DragExtended <= c.DragRetracted {
		return fmt.Errorf("control.Config: drag factors must satisfy 0 <= retracted < extended: %f, %f",
			c.DragRetracted, c.DragExtended)
	}
	if c.ExtensionSlew <= 0 {
		return fmt.Errorf("control.Config: extension slew rate must be positive: %f", c.ExtensionSlew)
	}
	return c.Servo.Validate()
}
