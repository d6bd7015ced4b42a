package memory

import "time"

// Config holds Store and Manager configuration.
type Config struct {
	// DefaultTopK is the number of memories retrieved when a caller does not
	// specify one.
	// Default: 3
	DefaultTopK int

	// MaxTopK caps how many memories a single search may return.
	// Default: 50
	MaxTopK int

	// Location is the time zone used when a relative date ("yesterday") is
	// resolved against the current time of day.
	// Default: UTC
	Location *time.Location
}

// DefaultConfig returns sensible defaults matching the original recall service.
func DefaultConfig() Config {
	return Config{
		DefaultTopK: 3,
		MaxTopK:     50,
		Location:    time.UTC,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DefaultTopK <= 0 {
		c.DefaultTopK = d.DefaultTopK
	}
	if c.MaxTopK <= 0 {
		c.MaxTopK = d.MaxTopK
	}
	if c.MaxTopK < c.DefaultTopK {
		c.MaxTopK = c.DefaultTopK
	}
	if c.Location == nil {
		c.Location = d.Location
	}
	return c
}
