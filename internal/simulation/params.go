// Package simulation models per-zone water levels driven by a tidal cycle,
// stochastic rain events and drainage, and publishes one reading per zone per
// tick.
package simulation

import (
	"time"

	"github.com/couchcryptid/flood-risk-engine/internal/config"
)

// Physical constants of the water level model, in metres per tick unless noted.
const (
	RainMax    = 0.35 // cap on accumulated rain
	AccumRate  = 0.15
	DecayRate  = 0.03
	LevelMin   = 0.03
	LevelMax   = 0.80
	Noise      = 0.02 // half-width of the uniform noise band
	Hysteresis = 0.02 // minimum change for a rising or falling trend
)

// Params are the tunable knobs of a simulation run.
type Params struct {
	TickInterval       time.Duration
	TidalCycle         time.Duration
	TidalAmplitude     float64
	RainChance         float64
	RainDuration       time.Duration
	RainDurationJitter time.Duration
	RainIntensityMin   float64
	RainIntensityMax   float64
	// Seed fixes every random draw. Zero seeds from the clock.
	Seed uint64
}

func DefaultParams() Params {
	return Params{
		TickInterval:       20 * time.Second,
		TidalCycle:         15 * time.Minute,
		TidalAmplitude:     0.25,
		RainChance:         0.02,
		RainDuration:       4 * time.Minute,
		RainDurationJitter: time.Minute,
		RainIntensityMin:   0.6,
		RainIntensityMax:   1.0,
	}
}

// ParamsFromConfig maps SIM_* settings onto Params.
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		TickInterval:       cfg.SimTickInterval,
		TidalCycle:         cfg.SimTidalCycle,
		TidalAmplitude:     cfg.SimTidalAmplitude,
		RainChance:         cfg.SimRainChance,
		RainDuration:       cfg.SimRainDuration,
		RainDurationJitter: cfg.SimRainDurationJitter,
		RainIntensityMin:   cfg.SimRainIntensityMin,
		RainIntensityMax:   cfg.SimRainIntensityMax,
		Seed:               cfg.SimSeed,
	}
}
