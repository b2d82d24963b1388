// Package control closes the apogee-targeting loop during coast. Each cycle
// it projects the ballistic apogee from the filtered state, compares it to
// the target and commands an airbrake extension through a PID law. Outside
// the coast phase it emits the safe retracted command and keeps its
// integrator clear.
package control

import (
	"io"
	"log/slog"
	"math"

	"github.com/openrocketry/airbrake/internal/estimator"
	"github.com/openrocketry/airbrake/internal/flightstate"
)

// Command is the controller output for one cycle: the drag-extension
// fraction in [0, 1] and the servo angle it calibrates to.
type Command struct {
	Extension float64
	Angle     float64
}

// WithLogger sets the logger for the controller.
func WithLogger(logger *slog.Logger) func(*Controller) {
	return func(c *Controller) {
		c.logger = logger.With(slog.String("component", "control"))
	}
}

// Controller holds the PID state. Private to the control loop; the rest of
// the system sees only the per-cycle Command.
type Controller struct {
	config *Config
	logger *slog.Logger

	integral  float64
	lastErr   float64
	haveErr   bool
	last      Command
	safe      Command
	wasActive bool

	// dragExt is the deployed extension the predictor sees: it follows
	// the commanded extension at the configured slew rate. Interpolating
	// the drag factor on the raw clamped command would feed the output
	// straight back into the error and chatter rail to rail.
	dragExt float64
}

func New(config *Config, options ...func(*Controller)) (*Controller, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		config: config,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	c.safe = Command{Extension: 0, Angle: config.Servo.Angle(0)}
	c.last = c.safe

	for _, option := range options {
		option(c)
	}
	return c, nil
}

// Safe returns the retracted command the actuator must hold whenever the
// controller is inactive, including shutdown.
func (c *Controller) Safe() Command {
	return c.safe
}

// Last returns the most recently issued command.
func (c *Controller) Last() Command {
	return c.last
}

// Reset clears the integrator and derivative history so a fresh coast entry
// starts from a clean state.
func (c *Controller) Reset() {
	c.integral = 0
	c.lastErr = 0
	c.haveErr = false
	c.wasActive = false
	c.dragExt = 0
}

// PredictApogee projects the remaining altitude gain of an unpowered ascent
// under gravity plus quadratic drag at the currently deployed airbrake
// extension:
//
//	h_gain = ln(1 + k·v²/g) / (2k)
//
// falling back to the vacuum estimate v²/2g as k approaches zero. For
// non-positive velocity the apogee is the current altitude.
func (c *Controller) PredictApogee(altitude, velocity float64) float64 {
	if velocity <= 0 {
		return altitude
	}

	k := c.config.DragRetracted + c.dragExt*(c.config.DragExtended-c.config.DragRetracted)
	g := c.config.Gravity
	if k < 1e-9 {
		return altitude + velocity*velocity/(2*g)
	}
	return altitude + math.Log(1+k*velocity*velocity/g)/(2*k)
}

// Step runs one controller cycle. Active only in coast: every other phase
// yields the safe retracted command and resets the internal state. Invalid
// inputs (stale estimate, non-finite values) hold the previous output.
func (c *Controller) Step(phase flightstate.Phase, est estimator.Estimate) Command {
	if phase != flightstate.Coast {
		if c.wasActive {
			c.logger.Info("leaving coast, commanding safe retraction")
		}
		c.Reset()
		c.last = c.safe
		return c.safe
	}
	c.wasActive = true

	if est.Stale || est.Dt <= 0 ||
		math.IsNaN(est.Altitude) || math.IsNaN(est.Velocity) ||
		math.IsInf(est.Altitude, 0) || math.IsInf(est.Velocity, 0) {
		c.logger.Warn("invalid estimate, holding previous command",
			slog.Float64("extension", c.last.Extension))
		return c.last
	}

	predicted := c.PredictApogee(est.Altitude, est.Velocity)

	// err > 0: predicted apogee beyond target, extend for more drag.
	// err < 0: falling short, retract. The sign is chosen so the PID acts
	// directly on the extension.
	err := predicted - c.config.TargetApogee

	var derivative float64
	if c.haveErr {
		derivative = (err - c.lastErr) / est.Dt
	}

	raw := c.config.Kp*err + c.config.Ki*c.integral + c.config.Kd*derivative
	out := clamp01(raw)

	// Conditional integration: the integral stops accumulating while the
	// output is saturated in the direction of the error.
	if raw == out || (raw > 1 && err < 0) || (raw < 0 && err > 0) {
		c.integral += err * est.Dt
	}

	c.lastErr = err
	c.haveErr = true

	// The deployed extension chases the command at the servo slew rate;
	// the next cycle's prediction uses the deployed state.
	step := c.config.ExtensionSlew * est.Dt
	c.dragExt += math.Min(math.Max(out-c.dragExt, -step), step)

	c.last = Command{Extension: out, Angle: c.config.Servo.Angle(out)}
	return c.last
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}
