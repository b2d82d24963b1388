package flightlog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryWriter keeps records in memory. Used by tests and dry runs where no
// database should be touched.
type MemoryWriter struct {
	mu      sync.Mutex
	flights []*Flight
	records map[int64][]*Record
	closed  bool
}

func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{records: make(map[int64][]*Record)}
}

func (w *MemoryWriter) CreateFlight(_ context.Context, _ any) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := int64(len(w.flights) + 1)
	w.flights = append(w.flights, &Flight{
		ID:        id,
		UUID:      uuid.NewString(),
		StartTime: time.Now().UTC(),
	})
	return id, nil
}

func (w *MemoryWriter) StoreRecord(_ context.Context, flightID int64, rec *Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("memory writer is closed")
	}
	r := *rec
	w.records[flightID] = append(w.records[flightID], &r)
	return nil
}

func (w *MemoryWriter) Flush(_ context.Context) error {
	return nil
}

func (w *MemoryWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

// FlightRecords returns the stored records of a flight in insertion order.
func (w *MemoryWriter) FlightRecords(flightID int64) []*Record {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*Record, len(w.records[flightID]))
	copy(out, w.records[flightID])
	return out
}
