package sim

import (
	"context"
	"errors"
	"io"
	"testing"
)

func TestSource_FlightProfile(t *testing.T) {
	s, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create source: %v", err)
	}
	defer s.Close()

	var apogee, lastAltitude float64
	var frames, groundFrames int

	for {
		frame, err := s.Sample(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Frame %d: %v", frames, err)
		}
		frames++
		if frames > 100_000 {
			t.Fatal("Simulation never terminated")
		}

		if len(frame.Readings) != 2 {
			t.Fatalf("Frame %d: expected 2 readings, got %d", frames, len(frame.Readings))
		}

		lastAltitude = frame.Readings[0].Values[0]
		if lastAltitude > apogee {
			apogee = lastAltitude
		}
		if lastAltitude == 0 && apogee > 0 {
			groundFrames++
		}
	}

	if apogee < 100 {
		t.Errorf("Expected a flight of at least 100 m, got apogee %0.1f m", apogee)
	}
	if lastAltitude != 0 {
		t.Errorf("Expected the flight to end on the ground, got altitude %0.1f m", lastAltitude)
	}

	// Ground samples must continue after touchdown so a consumer can
	// observe the landing.
	config := DefaultConfig()
	expected := int(config.GroundTime / config.Dt)
	if groundFrames < expected-2 {
		t.Errorf("Expected about %d ground frames, got %d", expected, groundFrames)
	}
}

func TestSource_PadIdleBeforeIgnition(t *testing.T) {
	config := DefaultConfig()
	config.SensorGravity = 9.81

	s, err := New(config)
	if err != nil {
		t.Fatalf("Failed to create source: %v", err)
	}
	defer s.Close()

	// On the pad the uncompensated accelerometer reads +1 g and the
	// altimeter holds zero.
	padFrames := int(config.PadTime/config.Dt) - 1
	for i := 0; i < padFrames; i++ {
		frame, err := s.Sample(context.Background())
		if err != nil {
			t.Fatalf("Frame %d: %v", i, err)
		}
		if alt := frame.Readings[0].Values[0]; alt != 0 {
			t.Fatalf("Frame %d: expected pad altitude 0, got %f", i, alt)
		}
		if accel := frame.Readings[1].Values[2]; accel != 9.81 {
			t.Fatalf("Frame %d: expected 1 g at rest, got %f", i, accel)
		}
	}
}

func TestSource_DeterministicReplays(t *testing.T) {
	run := func() []float64 {
		s, err := New(DefaultConfig())
		if err != nil {
			t.Fatalf("Failed to create source: %v", err)
		}
		defer s.Close()

		var altitudes []float64
		for {
			frame, err := s.Sample(context.Background())
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				t.Fatalf("Failed to sample: %v", err)
			}
			altitudes = append(altitudes, frame.Readings[0].Values[0])
		}
		return altitudes
	}

	first, second := run(), run()
	if len(first) != len(second) {
		t.Fatalf("Runs differ in length: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("Frame %d differs: %f vs %f", i, first[i], second[i])
		}
	}
}
