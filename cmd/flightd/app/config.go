package app

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openrocketry/airbrake/internal/control"
	"github.com/openrocketry/airbrake/internal/estimator"
	"github.com/openrocketry/airbrake/internal/flightstate"
	"github.com/openrocketry/airbrake/internal/sensor/replay"
	"github.com/openrocketry/airbrake/internal/sensor/sim"
)

const (
	SourceReplay SourceType = "replay"
	SourceSim    SourceType = "sim"
)

type SourceType string

// Duration wraps time.Duration with YAML parsing ("20ms", "1s").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("app.Duration: failed to parse: %s", err)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// LogLevel wraps slog.Level with YAML parsing ("debug", "info", ...).
type LogLevel slog.Level

func (l *LogLevel) UnmarshalYAML(value *yaml.Node) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(value.Value)); err != nil {
		return fmt.Errorf("app.LogLevel: failed to parse: %s", err)
	}

	*l = LogLevel(level)
	return nil
}

// Config is the full flight configuration, supplied at startup and immutable
// for the duration of a flight.
type Config struct {
	Settings   Settings            `yaml:"settings"`
	Loop       LoopConfig          `yaml:"loop"`
	Sources    []SourceConfig      `yaml:"sources"`
	Filter     *estimator.Config   `yaml:"filter"`
	Phases     *flightstate.Config `yaml:"phases"`
	Controller *control.Config     `yaml:"controller"`
	Storage    StorageConfig       `yaml:"storage"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel LogLevel `yaml:"logLevel"`
}

// LoopConfig controls the fixed-cadence control loop.
type LoopConfig struct {
	// Cadence is the cycle period. Zero runs the loop back to back, which
	// is what replayed flights want.
	Cadence Duration `yaml:"cadence"`

	// OverrunLimit is how many consecutive cycle overruns are tolerated
	// before the loop escalates to a safety shutdown.
	OverrunLimit int `yaml:"overrunLimit"`
}

// SourceConfig describes one acquisition source in the active sensor set.
type SourceConfig struct {
	Name    string         `yaml:"name"`
	Type    SourceType     `yaml:"type"`
	Enabled bool           `yaml:"enabled"`
	Replay  *replay.Config `yaml:"replay,omitempty"`
	Sim     *sim.Config    `yaml:"sim,omitempty"`
}

// StorageConfig represents flight log storage settings
type StorageConfig struct {
	DataDirectory string `yaml:"dataDirectory"`
	MaxBatchSize  int    `yaml:"maxBatchSize"`
}

// LoadConfig reads and validates the YAML configuration file, filling in
// defaults for omitted component sections.
func LoadConfig(path string) (*Config, error) {
	p, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration file: %w", err)
	}

	config := Config{
		Loop: LoopConfig{
			Cadence:      Duration(20 * time.Millisecond),
			OverrunLimit: 10,
		},
	}
	if err = yaml.Unmarshal(p, &config); err != nil {
		return nil, fmt.Errorf("parsing configuration file: %w", err)
	}

	if config.Filter == nil {
		config.Filter = estimator.DefaultConfig()
	}
	if config.Phases == nil {
		config.Phases = flightstate.DefaultConfig()
	}
	if config.Controller == nil {
		config.Controller = control.DefaultConfig()
	}

	if err = config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	if c.Loop.OverrunLimit < 1 {
		return fmt.Errorf("app.Config: overrun limit must be at least 1: %d", c.Loop.OverrunLimit)
	}

	var enabled int
	for i := range c.Sources {
		sc := &c.Sources[i]
		if !sc.Enabled {
			continue
		}
		enabled++

		switch sc.Type {
		case SourceReplay:
			if sc.Replay == nil {
				return fmt.Errorf("app.Config: source %s: replay configuration is required", sc.Name)
			}
			if err := sc.Replay.Validate(); err != nil {
				return fmt.Errorf("app.Config: source %s: %w", sc.Name, err)
			}

		case SourceSim:
			if sc.Sim == nil {
				sc.Sim = sim.DefaultConfig()
			}
			if err := sc.Sim.Validate(); err != nil {
				return fmt.Errorf("app.Config: source %s: %w", sc.Name, err)
			}

		default:
			return fmt.Errorf("app.Config: source %s: unknown type '%s'", sc.Name, sc.Type)
		}
	}
	if enabled == 0 {
		return fmt.Errorf("app.Config: no sources enabled")
	}

	if err := c.Filter.Validate(); err != nil {
		return err
	}
	if err := c.Phases.Validate(); err != nil {
		return err
	}
	return c.Controller.Validate()
}
