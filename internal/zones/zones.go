// Package zones loads the flood zone catalogue. The default catalogue is
// embedded; a YAML file with the same schema can replace it.
package zones

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/flood-risk-engine/internal/domain"
)

//go:embed zones.yaml
var embedded []byte

type catalogueFile struct {
	Zones []zoneRecord `yaml:"zones"`
}

type zoneRecord struct {
	ID          string       `yaml:"id"`
	Name        string       `yaml:"name"`
	District    string       `yaml:"district"`
	Center      [2]float64   `yaml:"center"`
	Polygon     [][2]float64 `yaml:"polygon"`
	Properties  struct {
		Elevation string `yaml:"elevation"`
		NearRiver bool   `yaml:"near_river"`
		Drainage  string `yaml:"drainage"`
	} `yaml:"properties"`
	Simulation struct {
		BaseLevel        float64 `yaml:"base_level"`
		TidalSensitivity float64 `yaml:"tidal_sensitivity"`
		RainSensitivity  float64 `yaml:"rain_sensitivity"`
		DrainRate        float64 `yaml:"drain_rate"`
	} `yaml:"simulation"`
	DefaultRisk string `yaml:"default_risk"`
}

// Registry is an immutable, ordered set of zones.
type Registry struct {
	zones []domain.FloodZone
	byID  map[string]int
}

// Default returns the embedded catalogue.
func Default() (*Registry, error) {
	return Parse(embedded)
}

// Load reads a catalogue from path, or the embedded one when path is empty.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read zone catalogue: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalogue.
func Parse(data []byte) (*Registry, error) {
	var file catalogueFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode zone catalogue: %w", err)
	}
	if len(file.Zones) == 0 {
		return nil, fmt.Errorf("zone catalogue is empty")
	}

	r := &Registry{
		zones: make([]domain.FloodZone, 0, len(file.Zones)),
		byID:  make(map[string]int, len(file.Zones)),
	}
	for _, rec := range file.Zones {
		zone, err := rec.toDomain()
		if err != nil {
			return nil, err
		}
		if err := zone.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byID[zone.ID]; dup {
			return nil, fmt.Errorf("duplicate zone id %q", zone.ID)
		}
		r.byID[zone.ID] = len(r.zones)
		r.zones = append(r.zones, zone)
	}
	return r, nil
}

func (rec zoneRecord) toDomain() (domain.FloodZone, error) {
	risk, err := domain.ParseSeverity(rec.DefaultRisk)
	if err != nil {
		return domain.FloodZone{}, fmt.Errorf("zone %s: default_risk: %w", rec.ID, err)
	}

	polygon := make(domain.Polygon, len(rec.Polygon))
	for i, v := range rec.Polygon {
		polygon[i] = domain.GeoPoint{Lat: v[0], Lng: v[1]}
	}

	return domain.FloodZone{
		ID:       rec.ID,
		Name:     rec.Name,
		District: rec.District,
		Polygon:  polygon,
		Center:   domain.GeoPoint{Lat: rec.Center[0], Lng: rec.Center[1]},
		Properties: domain.ZoneProperties{
			Elevation: rec.Properties.Elevation,
			NearRiver: rec.Properties.NearRiver,
			Drainage:  rec.Properties.Drainage,
		},
		Params: domain.SimulationParams{
			BaseLevel:        rec.Simulation.BaseLevel,
			TidalSensitivity: rec.Simulation.TidalSensitivity,
			RainSensitivity:  rec.Simulation.RainSensitivity,
			DrainRate:        rec.Simulation.DrainRate,
		},
		DefaultRisk: risk,
	}, nil
}

// All returns the zones in catalogue order. The slice is a copy.
func (r *Registry) All() []domain.FloodZone {
	out := make([]domain.FloodZone, len(r.zones))
	copy(out, r.zones)
	return out
}

func (r *Registry) Len() int { return len(r.zones) }

func (r *Registry) Get(id string) (domain.FloodZone, bool) {
	i, ok := r.byID[id]
	if !ok {
		return domain.FloodZone{}, false
	}
	return r.zones[i], true
}

func (r *Registry) IDs() []string {
	ids := make([]string, len(r.zones))
	for i, z := range r.zones {
		ids[i] = z.ID
	}
	return ids
}

func (r *Registry) ByDistrict(district string) []domain.FloodZone {
	return r.filter(func(z domain.FloodZone) bool { return z.District == district })
}

func (r *Registry) ByRisk(s domain.Severity) []domain.FloodZone {
	return r.filter(func(z domain.FloodZone) bool { return z.DefaultRisk == s })
}

// TidalSensitive returns zones next to a river, which the tide reaches.
func (r *Registry) TidalSensitive() []domain.FloodZone {
	return r.filter(func(z domain.FloodZone) bool { return z.Properties.NearRiver })
}

// Locate returns the first zone whose polygon contains p.
func (r *Registry) Locate(p domain.GeoPoint) (domain.FloodZone, bool) {
	for _, z := range r.zones {
		if z.Polygon.Contains(p) {
			return z, true
		}
	}
	return domain.FloodZone{}, false
}

func (r *Registry) filter(keep func(domain.FloodZone) bool) []domain.FloodZone {
	var out []domain.FloodZone
	for _, z := range r.zones {
		if keep(z) {
			out = append(out, z)
		}
	}
	return out
}

// Stats summarises the catalogue.
type Stats struct {
	Total         int            `json:"total"`
	ByRisk        map[string]int `json:"byRisk"`
	TidalAffected int            `json:"tidalAffected"`
	Districts     []string       `json:"districts"`
}

func (r *Registry) Stats() Stats {
	s := Stats{
		Total:  len(r.zones),
		ByRisk: make(map[string]int, 4),
	}
	for _, sev := range []domain.Severity{domain.SeverityLow, domain.SeverityModerate, domain.SeverityHigh, domain.SeveritySevere} {
		s.ByRisk[sev.String()] = 0
	}

	seen := make(map[string]bool)
	for _, z := range r.zones {
		s.ByRisk[z.DefaultRisk.String()]++
		if z.Properties.NearRiver {
			s.TidalAffected++
		}
		if !seen[z.District] {
			seen[z.District] = true
			s.Districts = append(s.Districts, z.District)
		}
	}
	sort.Strings(s.Districts)
	return s
}
