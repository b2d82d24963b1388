// Package flightlog persists one structured record per control cycle to a
// per-flight sqlite database. The field set is fixed so every row of a
// flight is uniform; raw channels a flight's sensor set did not provide are
// stored as NULLs.
package flightlog

import (
	"context"
	"time"
)

// Flight describes one recorded flight.
type Flight struct {
	ID        int64     `json:"id"`
	UUID      string    `json:"uuid"`
	StartTime time.Time `json:"startTime"`
	Config    *string   `json:"config,omitempty"` // flight configuration as JSON
}

// Record is the uniform per-cycle log entry: timestamp, raw and filtered
// channel values, flight phase and the control command.
type Record struct {
	Timestamp  time.Time `json:"timestamp"`  // wall clock
	FlightTime float64   `json:"flightTime"` // sample time base, seconds

	// Raw channels; nil marks a sensor absent from the active set
	RawAltitude *float64 `json:"rawAltitude,omitempty"`
	AccelX      *float64 `json:"accelX,omitempty"`
	AccelY      *float64 `json:"accelY,omitempty"`
	AccelZ      *float64 `json:"accelZ,omitempty"`

	// Filtered estimate
	FilteredAltitude float64 `json:"filteredAltitude"`
	FilteredVelocity float64 `json:"filteredVelocity"`
	FilteredAccel    float64 `json:"filteredAccel"`

	Phase string `json:"phase"`

	// Control command
	Extension  float64 `json:"extension"`
	ServoAngle float64 `json:"servoAngle"`

	// Cycle conditions
	Stale   bool `json:"stale"`
	Overrun bool `json:"overrun"`
}

// Writer is the sink the control loop depends on. Implementations buffer
// internally; Close flushes whatever is pending.
type Writer interface {
	// CreateFlight registers a new flight and returns its identifier.
	// The config may be a string, []byte or any JSON-serializable value.
	CreateFlight(ctx context.Context, config any) (flightID int64, err error)

	// StoreRecord appends one cycle record to a flight.
	StoreRecord(ctx context.Context, flightID int64, rec *Record) error

	// Flush forces buffered records out.
	Flush(ctx context.Context) error

	// Close flushes and releases the underlying resources. Safe to call
	// more than once.
	Close() error
}

// Reader provides post-flight access for analysis tooling.
type Reader interface {
	Flight(ctx context.Context, id int64) (*Flight, error)
	Flights(ctx context.Context) ([]*Flight, error)

	// Records returns a flight's cycle records in flight-time order.
	Records(ctx context.Context, flightID int64) ([]*Record, error)
}
