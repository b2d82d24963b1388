package sim

import (
	"context"
	"io"
	"math"

	"github.com/openrocketry/airbrake/internal/sensor"
)

const (
	SourceName = "sim"

	// Channel names match the hardware sensor set the original vehicle flew
	AltitudeChannel = "mpl_altitude"
	AccelChannel    = "adxl_acceleration"
)

// Source synthesizes a single-axis ballistic flight: pad idle, constant
// thrust, quadratic-drag coast, descent and landing. Deterministic, so
// end-to-end tests can assert exact phase sequences.
type Source struct {
	config *Config

	t         float64
	altitude  float64
	velocity  float64
	landedAt  float64
	landed    bool
	exhausted bool
}

func New(config *Config) (*Source, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Source{config: config}, nil
}

func (s *Source) Name() string {
	return SourceName
}

func (s *Source) Channels() []sensor.ChannelSpec {
	return []sensor.ChannelSpec{
		{Name: AltitudeChannel, Arity: 1},
		{Name: AccelChannel, Arity: 3},
	}
}

// Sample advances the simulated vehicle by one interval and returns the
// resulting altimeter and accelerometer readings. Returns io.EOF once the
// vehicle has landed.
func (s *Source) Sample(ctx context.Context) (sensor.Frame, error) {
	if err := ctx.Err(); err != nil {
		return sensor.Frame{}, err
	}
	if s.exhausted {
		return sensor.Frame{}, io.EOF
	}

	cfg := s.config
	s.t += cfg.Dt

	var aNet float64
	switch {
	case s.landed:
		aNet = 0

	case s.t < cfg.PadTime:
		aNet = 0

	case s.t < cfg.PadTime+cfg.BurnTime:
		aNet = cfg.ThrustAccel

	default:
		aNet = -cfg.Gravity - cfg.DragFactor*s.velocity*math.Abs(s.velocity)
	}

	if !s.landed {
		s.velocity += aNet * cfg.Dt
		s.altitude += s.velocity * cfg.Dt

		if s.t > cfg.PadTime+cfg.BurnTime && s.altitude <= 0 {
			s.altitude = 0
			s.velocity = 0
			aNet = 0
			s.landed = true
			s.landedAt = s.t
		}
	} else if s.t-s.landedAt >= cfg.GroundTime {
		s.exhausted = true
	}

	return sensor.Frame{
		Time:    s.t,
		HasTime: true,
		Readings: []sensor.Reading{
			{
				Channel: AltitudeChannel,
				Values:  []float64{s.altitude},
				Valid:   true,
			},
			{
				Channel: AccelChannel,
				Values:  []float64{0, 0, aNet + cfg.SensorGravity},
				Valid:   true,
			},
		},
	}, nil
}

func (s *Source) Close() error {
	return nil
}
