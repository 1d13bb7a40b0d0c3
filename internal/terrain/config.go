package terrain

import "terramesh.dev/internal/tuning"

// Config fixes the shape and pacing of one terrain service.
type Config struct {
	ID              string
	ChunkWidth      int
	Dimensions      int
	ResidencyRadius int
	ChunkScale      float64
	Channel         uint8

	TickRateHz int
	// RemeshPerTick caps how many outdated chunks one tick extracts.
	// The outdated set is unbounded; this is the flow-control knob.
	RemeshPerTick int
}

// FromTuning maps the yaml surface onto a service config.
func FromTuning(t tuning.Tuning) Config {
	return Config{
		ID:              t.WorldID,
		ChunkWidth:      t.ChunkWidth,
		Dimensions:      t.Dimensions,
		ResidencyRadius: t.ResidencyRadius,
		ChunkScale:      t.ChunkScale,
		Channel:         t.Channel,
		TickRateHz:      t.TickRateHz,
		RemeshPerTick:   t.RemeshPerTick,
	}
}

func (c *Config) applyDefaults() {
	if c.ID == "" {
		c.ID = "terrain_1"
	}
	if c.ChunkWidth <= 0 {
		c.ChunkWidth = 64
	}
	if c.Dimensions <= 0 {
		c.Dimensions = 2
	}
	if c.ResidencyRadius <= 0 {
		c.ResidencyRadius = 2
	}
	if c.ChunkScale <= 0 {
		c.ChunkScale = float64(c.ChunkWidth)
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 5
	}
	if c.RemeshPerTick <= 0 {
		c.RemeshPerTick = 8
	}
}
