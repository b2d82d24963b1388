// Package estimator turns raw per-cycle samples into a smoothed estimate of
// altitude, vertical velocity and vertical acceleration. Altimeter noise is
// suppressed with an exponentially weighted average, velocity comes from
// differentiating the smoothed altitude, and a complementary blend with the
// integrated accelerometer damps short-term spikes while the altimeter
// corrects long-term drift.
package estimator

import (
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/openrocketry/airbrake/internal/telemetry"
)

// Estimate is the filtered kinematic state for one cycle.
type Estimate struct {
	Time     float64 // sample timestamp, seconds
	Dt       float64 // interval since the previous estimate, seconds
	Altitude float64 // m
	Velocity float64 // m/s, up positive
	Accel    float64 // m/s², net vertical

	// Stale marks a cycle whose sample interval was below the configured
	// minimum: the velocity estimate was held rather than differentiated.
	Stale bool

	// Held marks a cycle where an implausible raw sample was rejected and
	// the previous filtered value kept.
	Held bool
}

// WithLogger sets the logger for the estimator.
func WithLogger(logger *slog.Logger) func(*Estimator) {
	return func(e *Estimator) {
		e.logger = logger.With(slog.String("component", "estimator"))
	}
}

// Estimator owns the filtered estimate. It reads raw channels from the store
// after the acquisition step and publishes the filtered triple back for the
// state machine and controller to consume read-only.
type Estimator struct {
	config *Config
	store  *telemetry.Store
	logger *slog.Logger

	initialized bool
	smoothAlt   float64
	velocity    float64
	smoothAccel float64
	lastTime    float64
}

// New validates the configuration, checks that every source channel is
// registered and registers the filtered output channels. Store
// misconfiguration here is fatal before flight.
func New(store *telemetry.Store, config *Config, options ...func(*Estimator)) (*Estimator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	for _, name := range []string{config.TimeChannel, config.AltitudeChannel, config.AccelChannel} {
		if !store.Has(name) {
			return nil, fmt.Errorf("estimator: required channel not registered: %s", name)
		}
	}
	arity, err := store.Arity(config.AccelChannel)
	if err != nil {
		return nil, err
	}
	if config.VerticalAxis >= arity {
		return nil, fmt.Errorf("estimator: vertical axis %d out of range for channel %s (arity %d)",
			config.VerticalAxis, config.AccelChannel, arity)
	}

	for _, name := range []string{FilteredAltitudeChannel, FilteredVelocityChannel, FilteredAccelChannel} {
		if err := store.RegisterScalar(name); err != nil {
			return nil, fmt.Errorf("estimator: %w", err)
		}
	}

	return &Estimator{
		config: config,
		store:  store,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// Config returns the estimator configuration.
func (e *Estimator) Config() *Config {
	return e.config
}

// Step recomputes the filtered estimate from the current cycle's raw values
// and publishes it into the store. It never returns an error during flight:
// invalid inputs degrade to holding the last known good state.
func (e *Estimator) Step() Estimate {
	cfg := e.config

	t, _, _ := e.store.Scalar(cfg.TimeChannel)
	rawAlt, _, _ := e.store.Scalar(cfg.AltitudeChannel)
	accelVec, _, _ := e.store.Vector(cfg.AccelChannel)
	rawAccel := cfg.AxisSign*accelVec[cfg.VerticalAxis] - cfg.GravityOffset

	if !e.initialized {
		e.smoothAlt = clamp(rawAlt, cfg.AltitudeMin, cfg.AltitudeMax)
		e.smoothAccel = clamp(rawAccel, -cfg.AccelMax, cfg.AccelMax)
		e.lastTime = t
		e.initialized = true
		return e.publish(Estimate{Time: t, Altitude: e.smoothAlt, Accel: e.smoothAccel})
	}

	est := Estimate{Time: t}

	// Altitude: reject implausible samples, smooth the rest
	switch {
	case math.IsNaN(rawAlt) || rawAlt < cfg.AltitudeMin || rawAlt > cfg.AltitudeMax:
		est.Held = true
		e.logger.Warn("implausible altitude sample rejected", slog.Float64("altitude", rawAlt))

	case math.Abs(rawAlt-e.smoothAlt) > cfg.MaxAltitudeStep:
		est.Held = true
		e.logger.Warn("discontinuous altitude sample rejected",
			slog.Float64("altitude", rawAlt), slog.Float64("filtered", e.smoothAlt))

	default:
		e.smoothAlt += cfg.SmoothingAlpha * (rawAlt - e.smoothAlt)
	}

	// Acceleration: same policy
	if math.IsNaN(rawAccel) || math.Abs(rawAccel) > cfg.AccelMax {
		est.Held = true
		e.logger.Warn("implausible acceleration sample rejected", slog.Float64("accel", rawAccel))
	} else {
		e.smoothAccel += cfg.SmoothingAlpha * (rawAccel - e.smoothAccel)
	}

	// Velocity: differentiate smoothed altitude, fuse with integrated
	// accelerometer. A near-zero dt fails closed: hold and report stale.
	dt := t - e.lastTime
	est.Dt = dt
	if dt < cfg.MinDt {
		est.Stale = true
		e.logger.Warn("stale sample, holding velocity", slog.Float64("dt", dt))
	} else {
		vBaro := (e.smoothAlt - e.prevSmoothAlt()) / dt
		vAccel := e.velocity + e.smoothAccel*dt
		e.velocity = cfg.AccelBlend*vAccel + (1-cfg.AccelBlend)*vBaro
		e.lastTime = t
	}

	est.Altitude = e.smoothAlt
	est.Velocity = e.velocity
	est.Accel = e.smoothAccel
	return e.publish(est)
}

// prevSmoothAlt recovers the prior cycle's filtered altitude from the store,
// which still holds it until this cycle's publish.
func (e *Estimator) prevSmoothAlt() float64 {
	cur, _, _ := e.store.Scalar(FilteredAltitudeChannel)
	return cur
}

func (e *Estimator) publish(est Estimate) Estimate {
	// Registration is checked in New, writes cannot fail here
	_ = e.store.WriteScalar(FilteredAltitudeChannel, est.Altitude)
	_ = e.store.WriteScalar(FilteredVelocityChannel, est.Velocity)
	_ = e.store.WriteScalar(FilteredAccelChannel, est.Accel)
	return est
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
