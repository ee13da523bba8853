package domain

import (
	"errors"
	"fmt"
)

// ZoneProperties describe the terrain of a flood zone.
type ZoneProperties struct {
	Elevation string `json:"elevation"` // low, medium, high
	NearRiver bool   `json:"nearRiver"`
	Drainage  string `json:"drainage"` // poor, moderate, good
}

// SimulationParams drive the per-zone water level model. Sensitivities and
// drain rate are unitless factors in [0, 1]; BaseLevel is in metres.
type SimulationParams struct {
	BaseLevel        float64 `json:"baseLevel"`
	TidalSensitivity float64 `json:"tidalSensitivity"`
	RainSensitivity  float64 `json:"rainSensitivity"`
	DrainRate        float64 `json:"drainRate"`
}

// FloodZone is a named polygon with simulation parameters. Zones are loaded
// once and never mutated.
type FloodZone struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	District    string           `json:"district"`
	Polygon     Polygon          `json:"polygon"`
	Center      GeoPoint         `json:"center"`
	Properties  ZoneProperties   `json:"properties"`
	Params      SimulationParams `json:"simulation"`
	DefaultRisk Severity         `json:"defaultRisk"`
}

// Validate checks the structural invariants of a zone.
func (z FloodZone) Validate() error {
	if z.ID == "" {
		return errors.New("zone id is required")
	}
	if len(z.Polygon) < 3 {
		return fmt.Errorf("zone %s: polygon needs at least 3 vertices, got %d", z.ID, len(z.Polygon))
	}
	if z.Params.BaseLevel < 0 {
		return fmt.Errorf("zone %s: base_level must be >= 0", z.ID)
	}
	for name, v := range map[string]float64{
		"tidal_sensitivity": z.Params.TidalSensitivity,
		"rain_sensitivity":  z.Params.RainSensitivity,
		"drain_rate":        z.Params.DrainRate,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("zone %s: %s must be in [0, 1], got %g", z.ID, name, v)
		}
	}
	return nil
}
