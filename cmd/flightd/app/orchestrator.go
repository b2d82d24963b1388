package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/openrocketry/airbrake/internal/actuator"
	"github.com/openrocketry/airbrake/internal/control"
	"github.com/openrocketry/airbrake/internal/estimator"
	"github.com/openrocketry/airbrake/internal/flightlog"
	"github.com/openrocketry/airbrake/internal/flightstate"
	"github.com/openrocketry/airbrake/internal/sensor"
	"github.com/openrocketry/airbrake/internal/telemetry"
)

const timeChannel = "time"

// ErrTooManyOverruns is returned when consecutive cycle overruns exceed the
// configured limit and the loop escalates to a safety shutdown.
var ErrTooManyOverruns = errors.New("too many consecutive cycle overruns")

// WithLogger sets the logger for the orchestrator.
func WithLogger(logger *slog.Logger) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.logger = logger.With(slog.String("component", "orchestrator"))
	}
}

// WithWallClock overrides the wall clock, for tests.
func WithWallClock(clock func() time.Time) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.clock = clock
	}
}

// Pipeline bundles the decision-core components the orchestrator drives.
type Pipeline struct {
	Store      *telemetry.Store
	Sources    []sensor.Source
	Estimator  *estimator.Estimator
	Machine    *flightstate.Machine
	Controller *control.Controller
	Actuator   actuator.Actuator
	Writer     flightlog.Writer
}

// Orchestrator runs the synchronous sense-filter-decide-act loop at a fixed
// cadence. One cycle executes start to finish before the next begins:
// acquisition writes, then the estimator, then the state machine, then the
// controller, then the actuator and log. The telemetry store is mutated only
// by the acquisition step and the estimator.
type Orchestrator struct {
	Pipeline

	cadence      time.Duration
	overrunLimit int

	logger *slog.Logger
	clock  func() time.Time

	flightID  int64
	startWall time.Time
	cycles    int64
	overruns  int
}

// NewOrchestrator creates an orchestrator for a fully assembled pipeline.
func NewOrchestrator(p Pipeline, loop LoopConfig, options ...func(*Orchestrator)) (*Orchestrator, error) {
	if len(p.Sources) == 0 {
		return nil, fmt.Errorf("no sources to sample")
	}
	if p.Store == nil || p.Estimator == nil || p.Machine == nil || p.Controller == nil ||
		p.Actuator == nil || p.Writer == nil {
		return nil, fmt.Errorf("incomplete pipeline")
	}
	if loop.OverrunLimit < 1 {
		return nil, fmt.Errorf("overrun limit must be at least 1: %d", loop.OverrunLimit)
	}

	o := &Orchestrator{
		Pipeline:     p,
		cadence:      time.Duration(loop.Cadence),
		overrunLimit: loop.OverrunLimit,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		clock:        time.Now,
	}
	for _, option := range options {
		option(o)
	}
	return o, nil
}

// Cycles returns the number of completed cycles.
func (o *Orchestrator) Cycles() int64 {
	return o.cycles
}

// FlightID returns the flight log identifier of the current run.
func (o *Orchestrator) FlightID() int64 {
	return o.flightID
}

// Run drives the loop until the context is cancelled, the sources are
// exhausted, or an unrecoverable failure escalates. On every exit path the
// actuator is commanded to the safe retracted angle before it is released.
func (o *Orchestrator) Run(ctx context.Context, flightConfig any) (err error) {
	o.flightID, err = o.Writer.CreateFlight(ctx, flightConfig)
	if err != nil {
		return fmt.Errorf("creating flight record: %w", err)
	}

	defer func() {
		safe := o.Controller.Safe()
		if mErr := o.Actuator.Move(safe.Angle); mErr != nil {
			o.logger.Error(fmt.Sprintf("failed to command safe retraction: %s", mErr))
		}
		if cErr := o.Actuator.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	o.startWall = o.clock()
	o.logger.Info("starting control loop",
		slog.Int64("flightID", o.flightID),
		slog.Duration("cadence", o.cadence))

	var ticker *time.Ticker
	if o.cadence > 0 {
		ticker = time.NewTicker(o.cadence)
		defer ticker.Stop()
	}

	for {
		if ticker != nil {
			select {
			case <-ctx.Done():
				o.logger.Info("control loop stopped", slog.Int64("cycles", o.cycles))
				return nil
			case <-ticker.C:
			}
		} else if ctx.Err() != nil {
			o.logger.Info("control loop stopped", slog.Int64("cycles", o.cycles))
			return nil
		}

		start := o.clock()
		done, err := o.runCycle(ctx, start)
		if err != nil {
			return err
		}
		if done {
			o.logger.Info("sources exhausted, control loop finished", slog.Int64("cycles", o.cycles))
			return nil
		}

		if o.cadence > 0 {
			if elapsed := o.clock().Sub(start); elapsed > o.cadence {
				o.overruns++
				o.logger.Warn("cycle overrun",
					slog.Duration("elapsed", elapsed),
					slog.Duration("cadence", o.cadence),
					slog.Int("consecutive", o.overruns))

				if o.overruns >= o.overrunLimit {
					return ErrTooManyOverruns
				}
			} else {
				o.overruns = 0
			}
		}
	}
}

// runCycle executes one full sense-filter-decide-act cycle. It returns done
// when a finite source is exhausted. Acquisition failures are absorbed: the
// affected channels keep the previous cycle's values.
func (o *Orchestrator) runCycle(ctx context.Context, now time.Time) (done bool, err error) {
	o.Store.Advance()

	var sampleTime float64
	var haveTime bool
	for _, src := range o.Sources {
		frame, err := src.Sample(ctx)
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return true, nil
		}
		if err != nil {
			o.logger.Warn(fmt.Sprintf("acquisition failure, holding previous values: %s", err),
				slog.String("source", src.Name()))
			continue
		}

		if frame.HasTime {
			sampleTime = frame.Time
			haveTime = true
		}
		if err = sensor.Apply(o.Store, frame); err != nil {
			return false, fmt.Errorf("source %s: %w", src.Name(), err)
		}
	}

	if !haveTime {
		sampleTime = now.Sub(o.startWall).Seconds()
	}
	if err = o.Store.WriteScalar(timeChannel, sampleTime); err != nil {
		return false, err
	}

	est := o.Estimator.Step()
	phase, edge := o.Machine.Update(flightstate.Sample{
		Altitude: est.Altitude,
		Velocity: est.Velocity,
		Accel:    est.Accel,
	})
	cmd := o.Controller.Step(phase, est)

	if err = o.Actuator.Move(cmd.Angle); err != nil {
		o.logger.Warn(fmt.Sprintf("actuator command failed: %s", err))
	}

	rec := o.buildRecord(now, sampleTime, est, phase, cmd)
	if err = o.Writer.StoreRecord(ctx, o.flightID, rec); err != nil {
		o.logger.Error(fmt.Sprintf("storing cycle record: %s", err))
	}

	if edge {
		o.logger.Info("flight phase entered",
			slog.String("phase", phase.String()),
			slog.Float64("altitude", est.Altitude),
			slog.Float64("velocity", est.Velocity))
	}

	o.cycles++
	return false, nil
}

func (o *Orchestrator) buildRecord(now time.Time, sampleTime float64, est estimator.Estimate, phase flightstate.Phase, cmd control.Command) *flightlog.Record {
	rec := flightlog.Record{
		Timestamp:        now,
		FlightTime:       sampleTime,
		FilteredAltitude: est.Altitude,
		FilteredVelocity: est.Velocity,
		FilteredAccel:    est.Accel,
		Phase:            phase.String(),
		Extension:        cmd.Extension,
		ServoAngle:       cmd.Angle,
		Stale:            est.Stale,
		Overrun:          o.overruns > 0,
	}

	cfg := o.Estimator.Config()
	if o.Store.Has(cfg.AltitudeChannel) {
		if alt, _, err := o.Store.Scalar(cfg.AltitudeChannel); err == nil {
			rec.RawAltitude = &alt
		}
	}
	if o.Store.Has(cfg.AccelChannel) {
		if vec, _, err := o.Store.Vector(cfg.AccelChannel); err == nil && len(vec) >= 3 {
			rec.AccelX, rec.AccelY, rec.AccelZ = &vec[0], &vec[1], &vec[2]
		}
	}
	return &rec
}
