// Package flightstate classifies the vehicle's flight phase from the
// filtered estimate. Each transition guard must hold for a configured number
// of consecutive cycles before it is accepted, so a single noisy sample can
// never flip the phase.
package flightstate

import (
	"fmt"
	"io"
	"log/slog"
	"math"
)

// Config holds the transition thresholds and debounce counts.
type Config struct {
	// Idle -> PoweredAscent: filtered vertical acceleration above this for
	// LaunchDebounce consecutive cycles.
	LaunchAccel    float64 `yaml:"launchAccel" json:"launchAccel"`
	LaunchDebounce int     `yaml:"launchDebounce" json:"launchDebounce"`

	// PoweredAscent -> Coast: filtered vertical acceleration below this
	// (near zero or negative net) for BurnoutDebounce consecutive cycles.
	BurnoutAccel    float64 `yaml:"burnoutAccel" json:"burnoutAccel"`
	BurnoutDebounce int     `yaml:"burnoutDebounce" json:"burnoutDebounce"`

	// Apogee -> Descent: filtered vertical velocity negative for
	// DescentDebounce consecutive cycles.
	DescentDebounce int `yaml:"descentDebounce" json:"descentDebounce"`

	// Descent -> Landed: altitude and velocity both within their near-zero
	// bands for LandedDebounce consecutive cycles.
	LandedAltitude float64 `yaml:"landedAltitude" json:"landedAltitude"`
	LandedVelocity float64 `yaml:"landedVelocity" json:"landedVelocity"`
	LandedDebounce int     `yaml:"landedDebounce" json:"landedDebounce"`
}

func DefaultConfig() *Config {
	return &Config{
		LaunchAccel:     30,
		LaunchDebounce:  3,
		BurnoutAccel:    2,
		BurnoutDebounce: 3,
		DescentDebounce: 5,
		LandedAltitude:  10,
		LandedVelocity:  1,
		LandedDebounce:  10,
	}
}

func (c *Config) Validate() error {
	if c.LaunchAccel <= 0 {
		return fmt.Errorf("flightstate.Config: launch acceleration threshold must be positive: %f", c.LaunchAccel)
	}
	if c.BurnoutAccel >= c.LaunchAccel {
		return fmt.Errorf("flightstate.Config: burnout threshold must be below launch threshold: %f >= %f",
			c.BurnoutAccel, c.LaunchAccel)
	}
	if c.LandedAltitude <= 0 || c.LandedVelocity <= 0 {
		return fmt.Errorf("flightstate.Config: landed bands must be positive: alt=%f vel=%f",
			c.LandedAltitude, c.LandedVelocity)
	}
	for _, d := range []int{c.LaunchDebounce, c.BurnoutDebounce, c.DescentDebounce, c.LandedDebounce} {
		if d < 1 {
			return fmt.Errorf("flightstate.Config: debounce counts must be at least 1")
		}
	}
	return nil
}

// Sample is the slice of the filtered estimate the guards evaluate.
type Sample struct {
	Altitude float64
	Velocity float64
	Accel    float64
}

// WithLogger sets the logger for the machine.
func WithLogger(logger *slog.Logger) func(*Machine) {
	return func(m *Machine) {
		m.logger = logger.With(slog.String("component", "flightstate"))
	}
}

// Machine holds the current phase and the debounce counter for the pending
// transition. Guards are evaluated once per cycle; Landed is terminal.
type Machine struct {
	config *Config
	logger *slog.Logger

	phase Phase
	count int
}

func New(config *Config, options ...func(*Machine)) (*Machine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	m := &Machine{
		config: config,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(m)
	}
	return m, nil
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	return m.phase
}

// Update evaluates the transition guard for the current phase against this
// cycle's filtered sample. It returns the (possibly new) phase and whether a
// transition occurred on this cycle.
func (m *Machine) Update(s Sample) (Phase, bool) {
	next := m.phase

	switch m.phase {
	case Idle:
		if m.debounce(s.Accel > m.config.LaunchAccel, m.config.LaunchDebounce) {
			next = PoweredAscent
		}

	case PoweredAscent:
		if m.debounce(s.Accel < m.config.BurnoutAccel, m.config.BurnoutDebounce) {
			next = Coast
		}

	case Coast:
		// Velocity crossing from positive to non-positive, no debounce:
		// apogee is a single instant and the controller must stand down.
		if s.Velocity <= 0 {
			next = Apogee
		}

	case Apogee:
		if m.debounce(s.Velocity < 0, m.config.DescentDebounce) {
			next = Descent
		}

	case Descent:
		grounded := math.Abs(s.Altitude) < m.config.LandedAltitude &&
			math.Abs(s.Velocity) < m.config.LandedVelocity
		if m.debounce(grounded, m.config.LandedDebounce) {
			next = Landed
		}

	case Landed:
		// Terminal
	}

	if next == m.phase {
		return m.phase, false
	}

	m.logger.Info("flight phase transition",
		slog.String("from", m.phase.String()),
		slog.String("to", next.String()))

	m.phase = next
	m.count = 0
	return m.phase, true
}

// debounce counts consecutive cycles the guard holds and reports whether the
// configured count is reached. Any cycle the guard fails resets the counter.
func (m *Machine) debounce(ok bool, need int) bool {
	if !ok {
		m.count = 0
		return false
	}
	m.count++
	return m.count >= need
}
