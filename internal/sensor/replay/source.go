package replay

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/openrocketry/airbrake/internal/sensor"
)

const SourceName = "replay"

var axisSuffixes = map[string]int{"_x": 0, "_y": 1, "_z": 2}

// column maps one CSV column onto a channel component.
type column struct {
	channel string
	index   int
}

// Source replays a recorded flight from a CSV file, one row per cycle.
// Unparsable or empty cells become invalid readings, exercising the same
// substitute-previous path a failed hardware read takes.
type Source struct {
	file    *os.File
	reader  *csv.Reader
	columns []column // column plan, -1 index marks the time column
	timeCol int
	specs   []sensor.ChannelSpec
}

// New opens the CSV file and derives the channel set from its header.
func New(config *Config) (*Source, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	f, err := os.Open(config.Path)
	if err != nil {
		return nil, fmt.Errorf("opening replay file: %w", err)
	}

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("reading replay header: %w", err)
	}

	s := &Source{file: f, reader: r, timeCol: -1}
	if err = s.planColumns(header); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

func (s *Source) planColumns(header []string) error {
	arities := make(map[string]int)
	order := make([]string, 0, len(header))

	for i, raw := range header {
		name := strings.TrimSpace(raw)
		if name == "" {
			return fmt.Errorf("replay header: empty column %d", i)
		}
		if name == "time" {
			if s.timeCol >= 0 {
				return fmt.Errorf("replay header: duplicate time column")
			}
			s.timeCol = i
			s.columns = append(s.columns, column{})
			continue
		}

		channel, index := name, 0
		for suffix, axis := range axisSuffixes {
			if strings.HasSuffix(name, suffix) {
				channel, index = strings.TrimSuffix(name, suffix), axis
				break
			}
		}

		if _, ok := arities[channel]; !ok {
			order = append(order, channel)
		}
		if index+1 > arities[channel] {
			arities[channel] = index + 1
		}
		s.columns = append(s.columns, column{channel: channel, index: index})
	}

	if s.timeCol < 0 {
		return fmt.Errorf("replay header: time column is required")
	}

	for _, channel := range order {
		s.specs = append(s.specs, sensor.ChannelSpec{Name: channel, Arity: arities[channel]})
	}
	return nil
}

func (s *Source) Name() string {
	return SourceName
}

func (s *Source) Channels() []sensor.ChannelSpec {
	return s.specs
}

// Sample reads the next row and assembles it into a frame. Returns io.EOF
// once the recording is exhausted.
func (s *Source) Sample(ctx context.Context) (sensor.Frame, error) {
	if err := ctx.Err(); err != nil {
		return sensor.Frame{}, err
	}

	row, err := s.reader.Read()
	if err == io.EOF {
		return sensor.Frame{}, io.EOF
	}
	if err != nil {
		return sensor.Frame{}, fmt.Errorf("reading replay row: %w", err)
	}

	var frame sensor.Frame
	values := make(map[string][]float64, len(s.specs))
	valid := make(map[string]bool, len(s.specs))
	for _, spec := range s.specs {
		values[spec.Name] = make([]float64, spec.Arity)
		valid[spec.Name] = true
	}

	for i, cell := range row {
		if i >= len(s.columns) {
			break
		}
		if i == s.timeCol {
			t, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return sensor.Frame{}, fmt.Errorf("invalid timestamp %q: %w", cell, err)
			}
			frame.Time = t
			frame.HasTime = true
			continue
		}

		col := s.columns[i]
		v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
		if err != nil {
			valid[col.channel] = false // failed reading, hold previous
			continue
		}
		values[col.channel][col.index] = v
	}

	for _, spec := range s.specs {
		frame.Readings = append(frame.Readings, sensor.Reading{
			Channel: spec.Name,
			Values:  values[spec.Name],
			Valid:   valid[spec.Name],
		})
	}
	return frame, nil
}

func (s *Source) Close() error {
	return s.file.Close()
}
