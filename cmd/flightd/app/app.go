package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/openrocketry/airbrake/internal/actuator"
	"github.com/openrocketry/airbrake/internal/control"
	"github.com/openrocketry/airbrake/internal/estimator"
	"github.com/openrocketry/airbrake/internal/flightlog"
	"github.com/openrocketry/airbrake/internal/flightstate"
	"github.com/openrocketry/airbrake/internal/sensor"
	"github.com/openrocketry/airbrake/internal/sensor/replay"
	"github.com/openrocketry/airbrake/internal/sensor/sim"
	"github.com/openrocketry/airbrake/internal/telemetry"
)

const (
	storageDir = "data"
)

// Run assembles the pipeline from the configuration and drives the control
// loop until the sources are exhausted or the context is cancelled.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	store, dbPath, err := createStorage(&config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	defer func() {
		if cErr := store.Close(); cErr != nil {
			logger.Error(fmt.Sprintf("failed to close flight log: %s", cErr))
		}
	}()

	sources, err := createSources(config.Sources)
	if err != nil {
		return fmt.Errorf("failed to create sources: %w", err)
	}
	defer func() {
		for _, src := range sources {
			if cErr := src.Close(); cErr != nil {
				logger.Error(fmt.Sprintf("failed to close source %s: %s", src.Name(), cErr))
			}
		}
	}()

	channels := telemetry.NewStore()
	if err = channels.RegisterScalar(timeChannel); err != nil {
		return fmt.Errorf("registering time channel: %w", err)
	}
	for _, src := range sources {
		if err = sensor.Register(channels, src); err != nil {
			return fmt.Errorf("registering source channels: %w", err)
		}
	}

	est, err := estimator.New(channels, config.Filter, estimator.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("creating estimator: %w", err)
	}

	machine, err := flightstate.New(config.Phases, flightstate.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("creating flight state machine: %w", err)
	}

	controller, err := control.New(config.Controller, control.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("creating controller: %w", err)
	}

	orch, err := NewOrchestrator(Pipeline{
		Store:      channels,
		Sources:    sources,
		Estimator:  est,
		Machine:    machine,
		Controller: controller,
		Actuator:   actuator.NewLog(logger),
		Writer:     store,
	}, config.Loop, WithLogger(logger))
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}

	start := time.Now()
	if err = orch.Run(ctx, config); err != nil {
		return err
	}

	logSummary(logger, orch, dbPath, time.Since(start))
	return nil
}

// logSummary reports what the flight produced: cycles flown, final phase and
// the size of the flight log on disk.
func logSummary(logger *slog.Logger, orch *Orchestrator, dbPath string, elapsed time.Duration) {
	size := "unknown"
	if stat, err := os.Stat(dbPath); err == nil {
		size = humanize.Bytes(uint64(stat.Size()))
	}

	logger.Info("flight complete",
		slog.Int64("flightID", orch.FlightID()),
		slog.String("cycles", humanize.Comma(orch.Cycles())),
		slog.String("phase", orch.Machine.Phase().String()),
		slog.Duration("elapsed", elapsed.Round(time.Millisecond)),
		slog.String("logSize", size),
		slog.String("logPath", dbPath))
}

func createSources(config []SourceConfig) ([]sensor.Source, error) {
	var sources []sensor.Source
	for _, sourceConfig := range config {
		if !sourceConfig.Enabled {
			continue
		}

		var src sensor.Source
		var err error
		switch sourceConfig.Type {
		case SourceReplay:
			if src, err = replay.New(sourceConfig.Replay); err != nil {
				return nil, fmt.Errorf("creating replay source: %w", err)
			}

		case SourceSim:
			if src, err = sim.New(sourceConfig.Sim); err != nil {
				return nil, fmt.Errorf("creating sim source: %w", err)
			}

		default:
			return nil, fmt.Errorf("creating source: unknown type '%s'", sourceConfig.Type)
		}

		sources = append(sources, src)
	}

	return sources, nil
}

func createStorage(config *StorageConfig) (*flightlog.SqliteStore, string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get current working directory: %w", err)
	}

	dir := filepath.Join(wd, storageDir)
	if config.DataDirectory != "" {
		if filepath.IsAbs(config.DataDirectory) {
			dir = config.DataDirectory
		} else {
			dir = filepath.Join(wd, config.DataDirectory)
		}
	}

	stat, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("storage directory '%s' does not exist: %w", dir, err)
		}
		return nil, "", fmt.Errorf("checking storage directory '%s': %w", dir, err)
	}
	if !stat.IsDir() {
		return nil, "", fmt.Errorf("invalid storage directory '%s'", dir)
	}

	dbPath := filepath.Join(dir, fmt.Sprintf("flight_%s.sqlite", time.Now().UTC().Format("20060102_150405")))

	var options []func(*flightlog.SqliteStore)
	if config.MaxBatchSize > 0 {
		options = append(options, flightlog.WithMaxBatchSize(config.MaxBatchSize))
	}
	return flightlog.NewSqliteStore(dbPath, options...), dbPath, nil
}
