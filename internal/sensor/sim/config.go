package sim

import (
	"fmt"
)

// Config is the synthetic ballistic profile source configuration. The
// defaults approximate a mid-power flight to a few hundred meters.
type Config struct {
	Dt          float64 `yaml:"dt" json:"dt"`                   // sample interval in seconds
	ThrustAccel float64 `yaml:"thrustAccel" json:"thrustAccel"` // net upward acceleration during burn, m/s²
	BurnTime    float64 `yaml:"burnTime" json:"burnTime"`       // motor burn duration, seconds
	PadTime     float64 `yaml:"padTime" json:"padTime"`         // idle time on the pad before ignition, seconds
	Gravity     float64 `yaml:"gravity" json:"gravity"`         // m/s²
	DragFactor  float64 `yaml:"dragFactor" json:"dragFactor"`   // quadratic drag, 1/m
	GroundTime  float64 `yaml:"groundTime" json:"groundTime"`   // time to keep sampling after touchdown, seconds

	// SensorGravity is added to the synthesized accelerometer reading to
	// model an uncompensated sensor (a vehicle at rest reads +1 g). Zero
	// models a gravity-compensated source.
	SensorGravity float64 `yaml:"sensorGravity" json:"sensorGravity"`
}

func DefaultConfig() *Config {
	return &Config{
		Dt:          0.02,
		ThrustAccel: 60,
		BurnTime:    1.5,
		PadTime:     1,
		Gravity:     9.81,
		DragFactor:  0.001,
		GroundTime:  2,
	}
}

func (c *Config) Validate() error {
	if c.Dt <= 0 {
		return fmt.Errorf("sim.Config: dt must be positive: %f", c.Dt)
	}
	if c.ThrustAccel <= 0 {
		return fmt.Errorf("sim.Config: thrust acceleration must be positive: %f", c.ThrustAccel)
	}
	if c.BurnTime <= 0 {
		return fmt.Errorf("sim.Config: burn time must be positive: %f", c.BurnTime)
	}
	if c.PadTime < 0 {
		return fmt.Errorf("sim.Config: pad time must not be negative: %f", c.PadTime)
	}
	if c.Gravity <= 0 {
		return fmt.Errorf("sim.Config: gravity must be positive: %f", c.Gravity)
	}
	if c.DragFactor < 0 {
		return fmt.Errorf("sim.Config: drag factor must not be negative: %f", c.DragFactor)
	}
	if c.GroundTime < 0 {
		return fmt.Errorf("sim.Config: ground time must not be negative: %f", c.GroundTime)
	}
	return nil
}
