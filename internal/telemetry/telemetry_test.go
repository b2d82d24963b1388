package telemetry

import (
	"errors"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s := NewStore()
	if err := s.RegisterScalar("time"); err != nil {
		t.Fatalf("Failed to register time channel: %v", err)
	}
	if err := s.RegisterScalar("mpl_altitude"); err != nil {
		t.Fatalf("Failed to register altitude channel: %v", err)
	}
	if err := s.RegisterVector("adxl_acceleration", 3); err != nil {
		t.Fatalf("Failed to register acceleration channel: %v", err)
	}
	if err := s.RegisterVector("mpu_9dof", 9,
		Subfield{Name: "acceleration", Offset: 0, Len: 3},
		Subfield{Name: "gyroscope", Offset: 3, Len: 3},
		Subfield{Name: "magnetometer", Offset: 6, Len: 3},
	); err != nil {
		t.Fatalf("Failed to register IMU channel: %v", err)
	}
	return s
}

func TestStore_WriteRead(t *testing.T) {
	s := newTestStore(t)

	if err := s.WriteScalar("mpl_altitude", 123.4); err != nil {
		t.Fatalf("WriteScalar failed: %v", err)
	}
	cur, prev, err := s.Scalar("mpl_altitude")
	if err != nil {
		t.Fatalf("Scalar read failed: %v", err)
	}
	if cur != 123.4 {
		t.Errorf("Expected current value 123.4, got %f", cur)
	}
	if prev != 0 {
		t.Errorf("Expected zero previous value before first cycle, got %f", prev)
	}

	if err := s.WriteVector("adxl_acceleration", []float64{0.1, 0.2, 9.8}); err != nil {
		t.Fatalf("WriteVector failed: %v", err)
	}
	curVec, prevVec, err := s.Vector("adxl_acceleration")
	if err != nil {
		t.Fatalf("Vector read failed: %v", err)
	}
	want := []float64{0.1, 0.2, 9.8}
	for i := range want {
		if curVec[i] != want[i] {
			t.Errorf("Current[%d]: expected %f, got %f", i, want[i], curVec[i])
		}
		if prevVec[i] != 0 {
			t.Errorf("Previous[%d]: expected zero, got %f", i, prevVec[i])
		}
	}
}

func TestStore_PreviousRotation(t *testing.T) {
	s := newTestStore(t)

	s.Advance()
	if err := s.WriteScalar("mpl_altitude", 100); err != nil {
		t.Fatalf("WriteScalar failed: %v", err)
	}

	s.Advance()
	if err := s.WriteScalar("mpl_altitude", 110); err != nil {
		t.Fatalf("WriteScalar failed: %v", err)
	}

	cur, prev, err := s.Scalar("mpl_altitude")
	if err != nil {
		t.Fatalf("Scalar read failed: %v", err)
	}
	if cur != 110 || prev != 100 {
		t.Errorf("Expected (110, 100), got (%f, %f)", cur, prev)
	}

	// A cycle with no write keeps the prior value current
	s.Advance()
	cur, prev, err = s.Scalar("mpl_altitude")
	if err != nil {
		t.Fatalf("Scalar read failed: %v", err)
	}
	if cur != 110 || prev != 110 {
		t.Errorf("Expected held value (110, 110), got (%f, %f)", cur, prev)
	}

	if s.Cycle() != 3 {
		t.Errorf("Expected cycle 3, got %d", s.Cycle())
	}
}

func TestStore_Subfields(t *testing.T) {
	s := newTestStore(t)

	if err := s.WriteSubfield("mpu_9dof", "gyroscope", []float64{1, 2, 3}); err != nil {
		t.Fatalf("WriteSubfield failed: %v", err)
	}
	if err := s.WriteSubfield("mpu_9dof", "magnetometer", []float64{7, 8, 9}); err != nil {
		t.Fatalf("WriteSubfield failed: %v", err)
	}

	cur, _, err := s.Vector("mpu_9dof")
	if err != nil {
		t.Fatalf("Vector read failed: %v", err)
	}
	want := []float64{0, 0, 0, 1, 2, 3, 7, 8, 9}
	for i := range want {
		if cur[i] != want[i] {
			t.Errorf("Tuple[%d]: expected %f, got %f", i, want[i], cur[i])
		}
	}

	if err := s.WriteSubfield("mpu_9dof", "barometer", []float64{1, 2, 3}); err == nil {
		t.Error("Expected error for unknown subfield")
	} else if !errors.Is(err, ErrUnknownSubfield) {
		t.Errorf("Expected ErrUnknownSubfield, got %v", err)
	}
}

func TestStore_Errors(t *testing.T) {
	s := newTestStore(t)

	tests := []struct {
		name string
		fn   func() error
		want error
	}{
		{
			"duplicate registration",
			func() error { return s.RegisterScalar("mpl_altitude") },
			ErrDuplicateChannel,
		},
		{
			"duplicate across variants",
			func() error { return s.RegisterVector("time", 3) },
			ErrDuplicateChannel,
		},
		{
			"write unknown channel",
			func() error { return s.WriteScalar("bmp_pressure", 1013.25) },
			ErrUnknownChannel,
		},
		{
			"read unknown channel",
			func() error { _, _, err := s.Scalar("bmp_pressure"); return err },
			ErrUnknownChannel,
		},
		{
			"vector write short tuple",
			func() error { return s.WriteVector("adxl_acceleration", []float64{1, 2}) },
			ErrArityMismatch,
		},
		{
			"vector write long tuple",
			func() error { return s.WriteVector("adxl_acceleration", []float64{1, 2, 3, 4}) },
			ErrArityMismatch,
		},
		{
			"scalar write to vector channel",
			func() error { return s.WriteScalar("adxl_acceleration", 1) },
			ErrArityMismatch,
		},
		{
			"subfield write wrong length",
			func() error { return s.WriteSubfield("mpu_9dof", "gyroscope", []float64{1}) },
			ErrArityMismatch,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.fn()
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !errors.Is(err, tc.want) {
				t.Errorf("Expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestStore_SnapshotDetached(t *testing.T) {
	s := newTestStore(t)

	if err := s.WriteScalar("mpl_altitude", 50); err != nil {
		t.Fatalf("WriteScalar failed: %v", err)
	}

	snap := s.Snapshot()
	if len(snap) != 4 {
		t.Fatalf("Expected 4 channels in snapshot, got %d", len(snap))
	}
	if snap[0].Name != "time" || snap[1].Name != "mpl_altitude" {
		t.Errorf("Snapshot not in registration order: %s, %s", snap[0].Name, snap[1].Name)
	}

	// Mutating the store must not change an already-taken snapshot
	s.Advance()
	if err := s.WriteScalar("mpl_altitude", 60); err != nil {
		t.Fatalf("WriteScalar failed: %v", err)
	}
	if snap[1].Data[0] != 50 {
		t.Errorf("Snapshot mutated by later write: %f", snap[1].Data[0])
	}
}
