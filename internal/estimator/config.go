package estimator

import (
	"fmt"
)

const (
	// Default channel names for the filtered estimate published back into
	// the telemetry store.
	FilteredAltitudeChannel = "filtered_altitude"
	FilteredVelocityChannel = "filtered_velocity"
	FilteredAccelChannel    = "filtered_acceleration"
)

// Config holds every filter parameter. Nothing here is hard-coded in the
// filter body; the flight configuration file owns these values.
type Config struct {
	// Source channels
	TimeChannel     string `yaml:"timeChannel" json:"timeChannel"`
	AltitudeChannel string `yaml:"altitudeChannel" json:"altitudeChannel"`
	AccelChannel    string `yaml:"accelChannel" json:"accelChannel"`

	// VerticalAxis selects the accelerometer component aligned with the
	// flight axis; AxisSign flips it when the sensor is mounted inverted.
	VerticalAxis int     `yaml:"verticalAxis" json:"verticalAxis"`
	AxisSign     float64 `yaml:"axisSign" json:"axisSign"`

	// GravityOffset is subtracted from the selected accelerometer component
	// to obtain net vertical acceleration. Use 9.81 for a raw sensor that
	// reads +1 g at rest, 0 for a gravity-compensated source.
	GravityOffset float64 `yaml:"gravityOffset" json:"gravityOffset"`

	// SmoothingAlpha is the EWMA weight given to a new sample, in (0, 1].
	SmoothingAlpha float64 `yaml:"smoothingAlpha" json:"smoothingAlpha"`

	// AccelBlend is the complementary weight toward the accelerometer-
	// integrated velocity; the remainder is the altimeter-derived velocity.
	AccelBlend float64 `yaml:"accelBlend" json:"accelBlend"`

	// MinDt guards the numeric differentiation: a sample interval below it
	// is reported as stale and the velocity estimate is held.
	MinDt float64 `yaml:"minDt" json:"minDt"`

	// Plausibility bounds. A raw sample outside these is rejected and the
	// previous filtered value held.
	AltitudeMin float64 `yaml:"altitudeMin" json:"altitudeMin"`
	AltitudeMax float64 `yaml:"altitudeMax" json:"altitudeMax"`
	AccelMax    float64 `yaml:"accelMax" json:"accelMax"`

	// MaxAltitudeStep bounds the per-cycle change of the smoothed altitude;
	// a larger jump is treated as implausible.
	MaxAltitudeStep float64 `yaml:"maxAltitudeStep" json:"maxAltitudeStep"`
}

func DefaultConfig() *Config {
	return &Config{
		TimeChannel:     "time",
		AltitudeChannel: "mpl_altitude",
		AccelChannel:    "adxl_acceleration",
		VerticalAxis:    2,
		AxisSign:        1,
		GravityOffset:   0,
		SmoothingAlpha:  0.3,
		AccelBlend:      0.8,
		MinDt:           1e-4,
		AltitudeMin:     -100,
		AltitudeMax:     10_000,
		AccelMax:        300,
		MaxAltitudeStep: 50,
	}
}

func (c *Config) Validate() error {
	if c.TimeChannel == "" || c.AltitudeChannel == "" || c.AccelChannel == "" {
		return fmt.Errorf("estimator.Config: time, altitude and acceleration channels are required")
	}
	if c.VerticalAxis < 0 {
		return fmt.Errorf("estimator.Config: vertical axis must not be negative: %d", c.VerticalAxis)
	}
	if c.AxisSign != 1 && c.AxisSign != -1 {
		return fmt.Errorf("estimator.Config: axis sign must be 1 or -1: %f", c.AxisSign)
	}
	if c.SmoothingAlpha <= 0 || c.SmoothingAlpha > 1 {
		return fmt.Errorf("estimator.Config: smoothing alpha must be in (0, 1]: %f", c.SmoothingAlpha)
	}
	if c.AccelBlend < 0 || c.AccelBlend > 1 {
		return fmt.Errorf("estimator.Config: accel blend must be in [0, 1]: %f", c.AccelBlend)
	}
	if c.MinDt <= 0 {
		return fmt.Errorf("estimator.Config: min dt must be positive: %f", c.MinDt)
	}
	if c.AltitudeMax <= c.AltitudeMin {
		return fmt.Errorf("estimator.Config: altitude bounds inverted: [%f, %f]", c.AltitudeMin, c.AltitudeMax)
	}
	if c.AccelMax <= 0 {
		return fmt.Errorf("estimator.Config: max acceleration must be positive: %f", c.AccelMax)
	}
	if c.MaxAltitudeStep <= 0 {
		return fmt.Errorf("estimator.Config: max altitude step must be positive: %f", c.MaxAltitudeStep)
	}
	return nil
}
