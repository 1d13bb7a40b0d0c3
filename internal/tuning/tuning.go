package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning is the configuration surface of the terrain service. Read once
// at setup and never mutated by the core.
type Tuning struct {
	WorldID         string  `yaml:"world_id"`
	ChunkWidth      int     `yaml:"chunk_width"`
	Dimensions      int     `yaml:"dimensions"`
	ResidencyRadius int     `yaml:"residency_radius"`
	ChunkScale      float64 `yaml:"chunk_scale"`
	Channel         uint8   `yaml:"channel"`

	TickRateHz    int `yaml:"tick_rate_hz"`
	RemeshPerTick int `yaml:"remesh_per_tick"`
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("terrain.yaml: %w", err)
	}
	t.applyDefaults()
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

func Defaults() Tuning {
	var t Tuning
	t.applyDefaults()
	return t
}

func (t *Tuning) applyDefaults() {
	if t.WorldID == "" {
		t.WorldID = "terrain_1"
	}
	if t.ChunkWidth <= 0 {
		t.ChunkWidth = 64
	}
	if t.Dimensions <= 0 {
		t.Dimensions = 2
	}
	if t.ResidencyRadius <= 0 {
		t.ResidencyRadius = 2
	}
	if t.ChunkScale <= 0 {
		t.ChunkScale = 64
	}
	if t.TickRateHz <= 0 {
		t.TickRateHz = 5
	}
	if t.RemeshPerTick <= 0 {
		t.RemeshPerTick = 8
	}
}

func (t Tuning) Validate() error {
	if t.ChunkWidth < 2 || t.ChunkWidth&(t.ChunkWidth-1) != 0 {
		return fmt.Errorf("chunk_width must be a power of two >= 2, got %d", t.ChunkWidth)
	}
	if t.Dimensions != 2 && t.Dimensions != 3 {
		return fmt.Errorf("dimensions must be 2 or 3, got %d", t.Dimensions)
	}
	return nil
}
