package replay

import (
	"fmt"
)

// Config is the recorded-flight replay source configuration.
type Config struct {
	// Path to the CSV file. The header row names the channels: a bare name
	// is a scalar channel, while columns suffixed _x, _y, _z form the
	// components of one vector channel. A column named "time" supplies the
	// frame timestamp in seconds.
	Path string `yaml:"path" json:"path"`
}

func (c *Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("replay.Config: path is required")
	}
	return nil
}
