// Package actuator is the boundary to the airbrake servo. The hardware PWM
// driver is an external collaborator; the loop depends only on this
// interface and the shipped implementations log or record the commanded
// angle. Commands are fire-and-forget: no acknowledgement is expected, but
// the loop guarantees a safe retraction is sent on every exit path.
package actuator

import (
	"log/slog"
	"sync"
)

// Actuator receives one angle per cycle, always within the configured servo
// range.
type Actuator interface {
	Move(angle float64) error
	Close() error
}

// Log is an actuator that reports commanded angles through the logger.
// Used on the bench and whenever no hardware driver is wired in.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger.With(slog.String("component", "actuator"))}
}

func (a *Log) Move(angle float64) error {
	a.logger.Debug("servo command", slog.Float64("angle", angle))
	return nil
}

func (a *Log) Close() error {
	return nil
}

// Recorder captures every commanded angle for inspection in tests.
type Recorder struct {
	mu     sync.Mutex
	angles []float64
	closed bool
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (a *Recorder) Move(angle float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.angles = append(a.angles, angle)
	return nil
}

func (a *Recorder) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

// Angles returns a copy of all commanded angles in order.
func (a *Recorder) Angles() []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]float64, len(a.angles))
	copy(out, a.angles)
	return out
}

// Closed reports whether the actuator was released.
func (a *Recorder) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}
