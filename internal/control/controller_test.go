package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrocketry/airbrake/internal/estimator"
	"github.com/openrocketry/airbrake/internal/flightstate"
)

func newTestController(t *testing.T) *Controller {
	t.Helper()

	c, err := New(DefaultConfig())
	require.NoError(t, err)
	return c
}

// coasting builds a valid coast-phase estimate.
func coasting(altitude, velocity float64) estimator.Estimate {
	return estimator.Estimate{
		Time:     10,
		Dt:       0.02,
		Altitude: altitude,
		Velocity: velocity,
		Accel:    -9.81,
	}
}

func TestController_SafeOutsideCoast(t *testing.T) {
	c := newTestController(t)

	for _, phase := range []flightstate.Phase{
		flightstate.Idle,
		flightstate.PoweredAscent,
		flightstate.Apogee,
		flightstate.Descent,
		flightstate.Landed,
	} {
		cmd := c.Step(phase, coasting(200, 80))
		assert.Zero(t, cmd.Extension, "phase %s", phase)
		assert.Equal(t, c.config.Servo.Angle(0), cmd.Angle, "phase %s", phase)
	}
}

func TestController_ResetOnCoastExit(t *testing.T) {
	c := newTestController(t)

	// Run a few active cycles with a modest overshoot to accumulate
	// integrator state.
	for i := 0; i < 10; i++ {
		c.Step(flightstate.Coast, coasting(200, 35))
	}
	require.NotZero(t, c.integral)

	cmd := c.Step(flightstate.Apogee, coasting(250, 0))
	assert.Equal(t, c.safe, cmd)
	assert.Zero(t, c.integral)
	assert.False(t, c.haveErr)
}

func TestController_ExtensionBounds(t *testing.T) {
	c := newTestController(t)

	// Massive overshoot saturates high
	cmd := c.Step(flightstate.Coast, coasting(240, 150))
	assert.Equal(t, 1.0, cmd.Extension)
	assert.Equal(t, c.config.Servo.Angle(1), cmd.Angle)

	// Falling far short saturates low
	c.Reset()
	cmd = c.Step(flightstate.Coast, coasting(50, 5))
	assert.Equal(t, 0.0, cmd.Extension)
	assert.Equal(t, c.config.Servo.Angle(0), cmd.Angle)
}

func TestController_ExtendsOnOvershoot(t *testing.T) {
	c := newTestController(t)

	// Predicted apogee beyond the 250 m target commands drag
	predicted := c.PredictApogee(200, 80)
	require.Greater(t, predicted, c.config.TargetApogee)

	cmd := c.Step(flightstate.Coast, coasting(200, 80))
	assert.Greater(t, cmd.Extension, 0.0)
}

func TestController_HoldsOnInvalidEstimate(t *testing.T) {
	c := newTestController(t)

	want := c.Step(flightstate.Coast, coasting(200, 80))
	require.NotZero(t, want.Extension)

	stale := coasting(200, 80)
	stale.Stale = true
	assert.Equal(t, want, c.Step(flightstate.Coast, stale))

	zeroDt := coasting(200, 80)
	zeroDt.Dt = 0
	assert.Equal(t, want, c.Step(flightstate.Coast, zeroDt))
}

func TestController_AntiWindup(t *testing.T) {
	c := newTestController(t)

	// Saturate high for a sustained stretch: conditional integration must
	// keep the integrator from winding up while the output is pinned.
	for i := 0; i < 200; i++ {
		cmd := c.Step(flightstate.Coast, coasting(240, 150))
		require.Equal(t, 1.0, cmd.Extension)
	}
	assert.Zero(t, c.integral)

	// The moment the error flips, the output must come off the stop
	// instead of being held up by accumulated integral.
	cmd := c.Step(flightstate.Coast, coasting(50, 5))
	assert.Equal(t, 0.0, cmd.Extension)
}

func TestController_SteadyCommandUnderConstantEstimate(t *testing.T) {
	c := newTestController(t)

	// A constant overshooting estimate saturates high and must stay
	// there: the drag fed back into the prediction follows the deployed
	// extension, so the command cannot flip between the stops.
	for i := 0; i < 50; i++ {
		cmd := c.Step(flightstate.Coast, coasting(240, 150))
		require.Equal(t, 1.0, cmd.Extension, "cycle %d", i)
	}

	// A constant estimate with an interior operating point converges
	// smoothly instead of oscillating.
	c.Reset()
	var prev float64
	for i := 0; i < 100; i++ {
		cmd := c.Step(flightstate.Coast, coasting(220, 28))
		if i > 0 {
			assert.InDelta(t, prev, cmd.Extension, 0.05, "cycle %d", i)
		}
		prev = cmd.Extension
	}
	assert.Greater(t, prev, 0.0)
	assert.Less(t, prev, 1.0)
}

func TestController_PredictApogee(t *testing.T) {
	c := newTestController(t)

	// Non-positive velocity: apogee is the current altitude
	assert.Equal(t, 123.0, c.PredictApogee(123, 0))
	assert.Equal(t, 123.0, c.PredictApogee(123, -10))

	// Positive velocity: drag model predicts less than the vacuum estimate
	// but more than the current altitude
	alt, vel := 100.0, 80.0
	vacuum := alt + vel*vel/(2*c.config.Gravity)

	predicted := c.PredictApogee(alt, vel)
	assert.Greater(t, predicted, alt)
	assert.Less(t, predicted, vacuum)
}

func TestServoCalibration_Angle(t *testing.T) {
	servo := ServoCalibration{RetractedAngle: 10, ExtendedAngle: 90}

	assert.Equal(t, 10.0, servo.Angle(0))
	assert.Equal(t, 90.0, servo.Angle(1))
	assert.Equal(t, 50.0, servo.Angle(0.5))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"negative gain", func(c *Config) { c.Kp = -1 }, true},
		{"no proportional or integral gain", func(c *Config) { c.Kp, c.Ki = 0, 0 }, true},
		{"zero target", func(c *Config) { c.TargetApogee = 0 }, true},
		{"inverted drag factors", func(c *Config) { c.DragExtended = c.DragRetracted }, true},
		{"zero extension slew", func(c *Config) { c.ExtensionSlew = 0 }, true},
		{"flat servo calibration", func(c *Config) { c.Servo.ExtendedAngle = c.Servo.RetractedAngle }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)

			err := config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
