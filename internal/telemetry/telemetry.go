package telemetry

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateChannel is returned when a channel name is registered twice
	ErrDuplicateChannel = errors.New("duplicate channel")

	// ErrUnknownChannel is returned when reading or writing an unregistered channel
	ErrUnknownChannel = errors.New("unknown channel")

	// ErrArityMismatch is returned when a written tuple does not match the registered arity
	ErrArityMismatch = errors.New("arity mismatch")

	// ErrUnknownSubfield is returned when writing a subfield that was not declared at registration
	ErrUnknownSubfield = errors.New("unknown subfield")
)

// Subfield names a contiguous slice of a vector channel, so that logically
// grouped components (e.g. the accelerometer third of a 9-DoF IMU channel)
// can be written independently.
type Subfield struct {
	Name   string
	Offset int
	Len    int
}

type channel struct {
	name      string
	arity     int
	subfields map[string]Subfield

	cur  []float64
	prev []float64
}

// Store is the process-wide telemetry record: one fixed-arity slot per
// registered channel, holding the current and the immediately prior cycle's
// value. It is owned by the control loop and is not safe for concurrent use;
// the loop's strict acquire-filter-decide-act ordering is what guarantees
// readers never observe a partially written cycle.
type Store struct {
	channels map[string]*channel
	order    []string
	cycle    uint64
}

// NewStore creates an empty store. Channels are registered once during
// initialization and never removed.
func NewStore() *Store {
	return &Store{channels: make(map[string]*channel)}
}

// RegisterScalar registers a single-value channel.
func (s *Store) RegisterScalar(name string) error {
	return s.RegisterVector(name, 1)
}

// RegisterVector registers a fixed-arity tuple channel with optional named
// subfields. The arity is fixed for the lifetime of the store.
func (s *Store) RegisterVector(name string, arity int, subfields ...Subfield) error {
	if _, ok := s.channels[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateChannel, name)
	}
	if arity < 1 {
		return fmt.Errorf("channel %s: arity must be at least 1: %d", name, arity)
	}

	subs := make(map[string]Subfield, len(subfields))
	for _, sub := range subfields {
		if sub.Offset < 0 || sub.Len < 1 || sub.Offset+sub.Len > arity {
			return fmt.Errorf("channel %s: subfield %s out of range [%d:%d) for arity %d",
				name, sub.Name, sub.Offset, sub.Offset+sub.Len, arity)
		}
		if _, ok := subs[sub.Name]; ok {
			return fmt.Errorf("channel %s: %w: subfield %s", name, ErrDuplicateChannel, sub.Name)
		}
		subs[sub.Name] = sub
	}

	s.channels[name] = &channel{
		name:      name,
		arity:     arity,
		subfields: subs,
		cur:       make([]float64, arity),
		prev:      make([]float64, arity),
	}
	s.order = append(s.order, name)
	return nil
}

// Has reports whether a channel is registered.
func (s *Store) Has(name string) bool {
	_, ok := s.channels[name]
	return ok
}

// Arity returns the registered arity of a channel.
func (s *Store) Arity(name string) (int, error) {
	ch, ok := s.channels[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownChannel, name)
	}
	return ch.arity, nil
}

// Advance rotates every channel's current value into its previous slot and
// begins a new cycle. Called by the loop driver before the acquisition step;
// a channel that receives no write this cycle keeps its prior value in the
// current slot, which is the substitute-previous policy for failed readings.
func (s *Store) Advance() {
	for _, name := range s.order {
		ch := s.channels[name]
		copy(ch.prev, ch.cur)
	}
	s.cycle++
}

// Cycle returns the current cycle sequence number. Cycle zero is the
// pre-flight state before the first Advance.
func (s *Store) Cycle() uint64 {
	return s.cycle
}

// WriteScalar overwrites the current value of a scalar channel.
func (s *Store) WriteScalar(name string, value float64) error {
	ch, ok := s.channels[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, name)
	}
	if ch.arity != 1 {
		return fmt.Errorf("%w: channel %s has arity %d, scalar write", ErrArityMismatch, name, ch.arity)
	}
	ch.cur[0] = value
	return nil
}

// WriteVector overwrites the current value of a vector channel. The tuple
// length must match the registered arity exactly.
func (s *Store) WriteVector(name string, values []float64) error {
	ch, ok := s.channels[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, name)
	}
	if len(values) != ch.arity {
		return fmt.Errorf("%w: channel %s has arity %d, got %d values", ErrArityMismatch, name, ch.arity, len(values))
	}
	copy(ch.cur, values)
	return nil
}

// WriteSubfield overwrites one named subfield of a vector channel, leaving
// the rest of the tuple untouched.
func (s *Store) WriteSubfield(name, subfield string, values []float64) error {
	ch, ok := s.channels[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, name)
	}
	sub, ok := ch.subfields[subfield]
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownSubfield, name, subfield)
	}
	if len(values) != sub.Len {
		return fmt.Errorf("%w: subfield %s.%s has length %d, got %d values", ErrArityMismatch, name, subfield, sub.Len, len(values))
	}
	copy(ch.cur[sub.Offset:sub.Offset+sub.Len], values)
	return nil
}

// Scalar returns the current and previous value of a scalar channel.
// Before the first write both are zero.
func (s *Store) Scalar(name string) (cur, prev float64, err error) {
	ch, ok := s.channels[name]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s", ErrUnknownChannel, name)
	}
	if ch.arity != 1 {
		return 0, 0, fmt.Errorf("%w: channel %s has arity %d, scalar read", ErrArityMismatch, name, ch.arity)
	}
	return ch.cur[0], ch.prev[0], nil
}

// Vector returns copies of the current and previous tuple of a channel.
// Scalar channels are returned as single-element tuples.
func (s *Store) Vector(name string) (cur, prev []float64, err error) {
	ch, ok := s.channels[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownChannel, name)
	}
	cur = make([]float64, ch.arity)
	prev = make([]float64, ch.arity)
	copy(cur, ch.cur)
	copy(prev, ch.prev)
	return cur, prev, nil
}

// Value is one channel's current tuple in a snapshot.
type Value struct {
	Name string
	Data []float64
}

// Snapshot returns a copy of every channel's current value in registration
// order. The returned slices are detached from the store, so a snapshot
// handed to the logger stays stable while the next cycle runs.
func (s *Store) Snapshot() []Value {
	out := make([]Value, 0, len(s.order))
	for _, name := range s.order {
		ch := s.channels[name]
		data := make([]float64, ch.arity)
		copy(data, ch.cur)
		out = append(out, Value{Name: name, Data: data})
	}
	return out
}
