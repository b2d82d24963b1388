package app

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/openrocketry/airbrake/internal/actuator"
	"github.com/openrocketry/airbrake/internal/control"
	"github.com/openrocketry/airbrake/internal/estimator"
	"github.com/openrocketry/airbrake/internal/flightlog"
	"github.com/openrocketry/airbrake/internal/flightstate"
	"github.com/openrocketry/airbrake/internal/sensor"
	"github.com/openrocketry/airbrake/internal/sensor/sim"
	"github.com/openrocketry/airbrake/internal/telemetry"
)

type testPipeline struct {
	Pipeline
	recorder *actuator.Recorder
	writer   *flightlog.MemoryWriter
}

// newSimPipeline assembles a full pipeline around the deterministic flight
// simulation, a recording actuator and an in-memory flight log.
func newSimPipeline(t *testing.T, simConfig *sim.Config) *testPipeline {
	t.Helper()

	src, err := sim.New(simConfig)
	if err != nil {
		t.Fatalf("Failed to create sim source: %v", err)
	}
	return newSourcePipeline(t, src)
}

// newSourcePipeline assembles a full pipeline around an arbitrary source.
func newSourcePipeline(t *testing.T, src sensor.Source) *testPipeline {
	t.Helper()

	store := telemetry.NewStore()
	if err := store.RegisterScalar(timeChannel); err != nil {
		t.Fatalf("Failed to register time channel: %v", err)
	}
	if err := sensor.Register(store, src); err != nil {
		t.Fatalf("Failed to register source channels: %v", err)
	}

	est, err := estimator.New(store, estimator.DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create estimator: %v", err)
	}
	machine, err := flightstate.New(flightstate.DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create state machine: %v", err)
	}
	controller, err := control.New(control.DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create controller: %v", err)
	}

	recorder := actuator.NewRecorder()
	writer := flightlog.NewMemoryWriter()

	return &testPipeline{
		Pipeline: Pipeline{
			Store:      store,
			Sources:    []sensor.Source{src},
			Estimator:  est,
			Machine:    machine,
			Controller: controller,
			Actuator:   recorder,
			Writer:     writer,
		},
		recorder: recorder,
		writer:   writer,
	}
}

func TestOrchestrator_FullSimulatedFlight(t *testing.T) {
	simConfig := sim.DefaultConfig()
	simConfig.GroundTime = 4 // enough ground samples for landing detection

	p := newSimPipeline(t, simConfig)

	orch, err := NewOrchestrator(p.Pipeline, LoopConfig{Cadence: 0, OverrunLimit: 10})
	if err != nil {
		t.Fatalf("Failed to create orchestrator: %v", err)
	}

	if err = orch.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	records := p.writer.FlightRecords(orch.FlightID())
	if len(records) == 0 {
		t.Fatal("Expected cycle records")
	}
	if int64(len(records)) != orch.Cycles() {
		t.Errorf("Expected %d records, got %d", orch.Cycles(), len(records))
	}

	// The phase sequence must walk the flight order without ever moving
	// backwards, and end landed.
	last := flightstate.Idle
	for i, rec := range records {
		phase := flightstate.ParsePhase(rec.Phase)
		if phase < last {
			t.Fatalf("Record %d: phase moved backwards from %s to %s", i, last, phase)
		}
		last = phase
	}
	if last != flightstate.Landed {
		t.Errorf("Expected the flight to end landed, got %s", last)
	}
	for _, want := range []flightstate.Phase{
		flightstate.PoweredAscent, flightstate.Coast, flightstate.Apogee, flightstate.Descent,
	} {
		found := false
		for _, rec := range records {
			if flightstate.ParsePhase(rec.Phase) == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Phase %s never occurred", want)
		}
	}

	// Every command stays within the servo range and the extension in [0, 1]
	retracted := p.Controller.Safe().Angle
	extended := control.DefaultConfig().Servo.Angle(1)
	for i, rec := range records {
		if rec.Extension < 0 || rec.Extension > 1 {
			t.Fatalf("Record %d: extension out of range: %f", i, rec.Extension)
		}
		if rec.ServoAngle < retracted || rec.ServoAngle > extended {
			t.Fatalf("Record %d: servo angle out of range: %f", i, rec.ServoAngle)
		}
		if flightstate.ParsePhase(rec.Phase) != flightstate.Coast && rec.Extension != 0 {
			t.Fatalf("Record %d: airbrakes deployed outside coast in phase %s", i, rec.Phase)
		}
	}

	// The default simulated flight overshoots the target apogee, so the
	// brakes must still be commanded out when coast ends.
	lastCoast := -1
	for i, rec := range records {
		if flightstate.ParsePhase(rec.Phase) == flightstate.Coast {
			lastCoast = i
		}
	}
	if lastCoast < 0 {
		t.Fatal("Expected coast records")
	}
	if ext := records[lastCoast].Extension; ext <= 0 {
		t.Errorf("Expected a positive extension at the end of coast, got %f", ext)
	}

	// The loop must retract on exit and release the actuator
	angles := p.recorder.Angles()
	if len(angles) == 0 {
		t.Fatal("Expected actuator commands")
	}
	if final := angles[len(angles)-1]; final != retracted {
		t.Errorf("Expected final command at the retracted angle %f, got %f", retracted, final)
	}
	if !p.recorder.Closed() {
		t.Error("Expected the actuator to be released")
	}
}

func TestOrchestrator_SafeRetractionOnCancel(t *testing.T) {
	p := newSimPipeline(t, sim.DefaultConfig())

	orch, err := NewOrchestrator(p.Pipeline, LoopConfig{Cadence: 0, OverrunLimit: 10})
	if err != nil {
		t.Fatalf("Failed to create orchestrator: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err = orch.Run(ctx, nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	angles := p.recorder.Angles()
	if len(angles) == 0 {
		t.Fatal("Expected a safe retraction command")
	}
	if final := angles[len(angles)-1]; final != p.Controller.Safe().Angle {
		t.Errorf("Expected final command at the retracted angle, got %f", final)
	}
	if !p.recorder.Closed() {
		t.Error("Expected the actuator to be released")
	}
}

func TestOrchestrator_EscalatesOnConsecutiveOverruns(t *testing.T) {
	p := newSimPipeline(t, sim.DefaultConfig())

	// A wall clock that jumps far past the cadence on every reading makes
	// each cycle an overrun.
	now := time.Unix(0, 0)
	clock := func() time.Time {
		now = now.Add(time.Second)
		return now
	}

	orch, err := NewOrchestrator(p.Pipeline,
		LoopConfig{Cadence: Duration(time.Nanosecond), OverrunLimit: 3},
		WithWallClock(clock))
	if err != nil {
		t.Fatalf("Failed to create orchestrator: %v", err)
	}

	if err = orch.Run(context.Background(), nil); !errors.Is(err, ErrTooManyOverruns) {
		t.Fatalf("Expected ErrTooManyOverruns, got %v", err)
	}

	// Safety shutdown still retracts and releases
	angles := p.recorder.Angles()
	if final := angles[len(angles)-1]; final != p.Controller.Safe().Angle {
		t.Errorf("Expected final command at the retracted angle, got %f", final)
	}
	if !p.recorder.Closed() {
		t.Error("Expected the actuator to be released")
	}
}

func TestNewOrchestrator_ValidatesPipeline(t *testing.T) {
	p := newSimPipeline(t, sim.DefaultConfig())

	incomplete := p.Pipeline
	incomplete.Controller = nil
	if _, err := NewOrchestrator(incomplete, LoopConfig{OverrunLimit: 10}); err == nil {
		t.Error("Expected an error for an incomplete pipeline")
	}

	empty := p.Pipeline
	empty.Sources = nil
	if _, err := NewOrchestrator(empty, LoopConfig{OverrunLimit: 10}); err == nil {
		t.Error("Expected an error for an empty source set")
	}

	if _, err := NewOrchestrator(p.Pipeline, LoopConfig{OverrunLimit: 0}); err == nil {
		t.Error("Expected an error for a zero overrun limit")
	}
}

// scriptedSource emits a fixed sequence of frames, then io.EOF.
type scriptedSource struct {
	frames []sensor.Frame
	next   int
}

func (s *scriptedSource) Name() string { return "scripted" }

func (s *scriptedSource) Channels() []sensor.ChannelSpec {
	return []sensor.ChannelSpec{
		{Name: sim.AltitudeChannel, Arity: 1},
		{Name: sim.AccelChannel, Arity: 3},
	}
}

func (s *scriptedSource) Sample(ctx context.Context) (sensor.Frame, error) {
	if err := ctx.Err(); err != nil {
		return sensor.Frame{}, err
	}
	if s.next >= len(s.frames) {
		return sensor.Frame{}, io.EOF
	}
	f := s.frames[s.next]
	s.next++
	return f, nil
}

func (s *scriptedSource) Close() error { return nil }

func TestOrchestrator_KeepsZeroSourceTimestamp(t *testing.T) {
	frame := func(tm float64) sensor.Frame {
		return sensor.Frame{
			Time:    tm,
			HasTime: true,
			Readings: []sensor.Reading{
				{Channel: sim.AltitudeChannel, Values: []float64{0}, Valid: true},
				{Channel: sim.AccelChannel, Values: []float64{0, 0, 9.81}, Valid: true},
			},
		}
	}

	src := &scriptedSource{frames: []sensor.Frame{frame(0), frame(0.05), frame(0.1)}}
	p := newSourcePipeline(t, src)

	// A wall clock stepping a full second per reading would dominate the
	// recorded time base if it ever leaked in.
	now := time.Unix(0, 0)
	clock := func() time.Time {
		now = now.Add(time.Second)
		return now
	}

	orch, err := NewOrchestrator(p.Pipeline, LoopConfig{Cadence: 0, OverrunLimit: 10},
		WithWallClock(clock))
	if err != nil {
		t.Fatalf("Failed to create orchestrator: %v", err)
	}
	if err = orch.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	records := p.writer.FlightRecords(orch.FlightID())
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}

	// A recording that starts at t=0 keeps its own time base from the
	// first sample.
	if records[0].FlightTime != 0 {
		t.Errorf("Expected the time base to start at zero, got %f", records[0].FlightTime)
	}
	if records[1].FlightTime != 0.05 {
		t.Errorf("Expected the second sample at 0.05, got %f", records[1].FlightTime)
	}
}
