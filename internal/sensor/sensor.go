// Package sensor defines the acquisition boundary of the flight computer.
// A Source owns a fixed set of telemetry channels and produces one Frame of
// readings per control cycle. Hardware bus drivers live behind this interface
// and are out of scope here; the shipped implementations replay recorded
// flights and synthesize ballistic profiles.
package sensor

import (
	"context"
	"fmt"

	"github.com/openrocketry/airbrake/internal/telemetry"
)

// ChannelSpec declares one channel a source owns: its name, arity and any
// named subfields. The active source set is resolved once at initialization,
// so the channel population of the store is statically known for a flight.
type ChannelSpec struct {
	Name      string
	Arity     int
	Subfields []telemetry.Subfield
}

// Reading is a single channel (or subfield) measurement within a frame.
// A failed hardware read is reported with Valid set to false instead of a
// fabricated zero value; the store then keeps the previous cycle's value and
// the estimator holds its state.
type Reading struct {
	Channel  string
	Subfield string // empty for whole-channel writes
	Values   []float64
	Valid    bool
}

// Frame is one cycle's worth of readings from a source. Time is the sample
// timestamp in seconds and HasTime marks that the source supplies its own
// time base; when no sampled source does, the loop driver substitutes its
// own clock. The flag lets a replayed flight keep a recorded time base that
// legitimately starts at zero.
type Frame struct {
	Time     float64
	HasTime  bool
	Readings []Reading
}

// Source produces frames for the channels it declares. Sample may block on
// I/O but must be bounded; it returns io.EOF when a finite source (replay)
// is exhausted.
type Source interface {
	Name() string
	Channels() []ChannelSpec
	Sample(ctx context.Context) (Frame, error)
	Close() error
}

// Register registers every channel a source declares with the store.
// Registration failures are configuration errors and abort initialization.
func Register(store *telemetry.Store, src Source) error {
	for _, spec := range src.Channels() {
		if err := store.RegisterVector(spec.Name, spec.Arity, spec.Subfields...); err != nil {
			return fmt.Errorf("source %s: %w", src.Name(), err)
		}
	}
	return nil
}

// Apply writes a frame's valid readings into the store. Invalid readings are
// skipped, leaving the previous cycle's value in place.
func Apply(store *telemetry.Store, f Frame) error {
	for _, r := range f.Readings {
		if !r.Valid {
			continue
		}

		var err error
		switch {
		case r.Subfield != "":
			err = store.WriteSubfield(r.Channel, r.Subfield, r.Values)
		case len(r.Values) == 1:
			err = store.WriteScalar(r.Channel, r.Values[0])
		default:
			err = store.WriteVector(r.Channel, r.Values)
		}
		if err != nil {
			return fmt.Errorf("applying reading: %w", err)
		}
	}
	return nil
}
