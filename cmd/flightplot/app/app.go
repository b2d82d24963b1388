package app

import (
	"context"
	"fmt"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/openrocketry/airbrake/internal/flightlog"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := flightlog.NewSqliteStore(config.DBPath)
	defer store.Close()

	return renderFlight(ctx, store, config, logger)
}

func renderFlight(ctx context.Context, store *flightlog.SqliteStore, config *Config, logger *slog.Logger) error {
	flight, err := store.Flight(ctx, config.FlightID)
	if err != nil {
		return fmt.Errorf("reading flight %d: %w", config.FlightID, err)
	}

	records, err := store.Records(ctx, config.FlightID)
	if err != nil {
		return fmt.Errorf("reading cycle records: %w", err)
	}
	if len(records) < 2 {
		return fmt.Errorf("flight %d has too few cycle records to plot: %d", config.FlightID, len(records))
	}

	var apogee float64
	for _, rec := range records {
		if rec.FilteredAltitude > apogee {
			apogee = rec.FilteredAltitude
		}
	}

	logger.Info("loaded flight",
		slog.Int64("flightID", flight.ID),
		slog.String("uuid", flight.UUID),
		slog.String("start", flight.StartTime.Local().Format(time.DateTime)),
		slog.String("cycles", humanize.Comma(int64(len(records)))),
		slog.String("apogee", humanSI(apogee, "m")),
		slog.String("duration", fmt.Sprintf("%0.1fs", records[len(records)-1].FlightTime-records[0].FlightTime)))

	renderer, err := NewFlightRenderer(RenderConfig{
		Width:  config.Width,
		Height: config.Height,
	})
	if err != nil {
		return fmt.Errorf("creating flight renderer: %w", err)
	}

	logger.Info("rendering flight chart",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.Int("width", config.Width),
			slog.Int("height", config.Height),
		))

	img, err := renderer.Render(flight, records)
	if err != nil {
		return fmt.Errorf("rendering flight chart: %w", err)
	}

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}
	defer out.Close()

	switch config.Format {
	case ImagePNG:
		err = png.Encode(out, img)

	case ImageJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{
			Quality: 98,
		})
	}
	return err
}

func humanSI(v float64, unit string) string {
	fract, suffix := humanize.ComputeSI(v)
	return fmt.Sprintf("%0.1f %s%s", fract, suffix, unit)
}
