// Command zonecheck performs integrity checks on a zone catalogue and,
// optionally, on a readings fixture produced by simreplay. It verifies zone
// geometry, baseline severities against the catalogued default risk, and that
// every fixture reading is consistent with the water level model and the
// scoring rules.
//
// Usage:
//
//	go run ./cmd/zonecheck \
//	  -zones internal/zones/zones.yaml \
//	  -readings data/mock/readings.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/flood-risk-engine/internal/domain"
	"github.com/couchcryptid/flood-risk-engine/internal/ngsi"
	"github.com/couchcryptid/flood-risk-engine/internal/pipeline"
	"github.com/couchcryptid/flood-risk-engine/internal/risk"
	"github.com/couchcryptid/flood-risk-engine/internal/simulation"
	"github.com/couchcryptid/flood-risk-engine/internal/zones"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	zonesFile := flag.String("zones", "", "zone catalogue YAML (defaults to the embedded catalogue)")
	readingsFile := flag.String("readings", "", "optional readings fixture written by simreplay")
	flag.Parse()

	if code := run(*zonesFile, *readingsFile); code != 0 {
		os.Exit(code)
	}
}

func run(zonesFile, readingsFile string) int {
	// Matches simreplay so assessment timestamps are reproducible.
	domain.SetClock(clockwork.NewFakeClockAt(
		time.Date(2025, time.November, 3, 6, 0, 0, 0, time.UTC),
	))
	defer domain.SetClock(nil)

	registry, err := zones.Default()
	if zonesFile != "" {
		registry, err = zones.Load(zonesFile)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load zones: %v\n", err)
		return 1
	}

	var readings []domain.WaterReading
	if readingsFile != "" {
		if readings, err = loadReadings(readingsFile); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load readings: %v\n", err)
			return 1
		}
	}

	// ── Run validation phases ──
	phases := []*phase{
		checkGeometry(registry),
		checkBaseline(registry),
	}
	if readingsFile != "" {
		phases = append(phases,
			checkReadings(registry, readings),
			checkAssessments(registry, readings),
		)
	}

	fmt.Println()
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Zones: %d, readings: %d\n", registry.Len(), len(readings))

	failed := false
	for _, p := range phases {
		if p.passed() {
			continue
		}
		failed = true
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if !failed {
		fmt.Println("\nAll checks passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func loadReadings(path string) ([]domain.WaterReading, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var readings []domain.WaterReading
	if err := json.Unmarshal(data, &readings); err != nil {
		return nil, err
	}
	return readings, nil
}

// checkGeometry verifies every zone center lies in its own polygon, inside
// the operational region, and resolves back to the same zone.
func checkGeometry(r *zones.Registry) *phase {
	p := &phase{name: "Zone geometry"}
	for _, z := range r.All() {
		if !z.Polygon.Contains(z.Center) {
			p.errorf("zone %s: center (%g, %g) outside its polygon", z.ID, z.Center.Lat, z.Center.Lng)
		}
		if !domain.VietnamBounds.Contains(z.Center) {
			p.errorf("zone %s: center (%g, %g) outside the operational region", z.ID, z.Center.Lat, z.Center.Lng)
		}
		if got, ok := r.Locate(z.Center); !ok {
			p.errorf("zone %s: center does not resolve to any zone", z.ID)
		} else if got.ID != z.ID {
			p.errorf("zone %s: center resolves to overlapping zone %s", z.ID, got.ID)
		}
	}
	return p
}

// checkBaseline flags zones whose resting level already scores above the
// catalogued default risk.
func checkBaseline(r *zones.Registry) *phase {
	p := &phase{name: "Baseline severity vs default risk"}
	for _, z := range r.All() {
		if base := risk.BaseSeverity(z.Params.BaseLevel); base > z.DefaultRisk {
			p.errorf("zone %s: base level %.2fm scores %s, above default risk %s",
				z.ID, z.Params.BaseLevel, base, z.DefaultRisk)
		}
	}
	return p
}

// checkReadings re-derives each reading's severity, trend and bounds from the
// water level model.
func checkReadings(r *zones.Registry, readings []domain.WaterReading) *phase {
	p := &phase{name: "Readings fixture"}
	last := make(map[string]time.Time)

	for i, rd := range readings {
		z, ok := r.Get(rd.ZoneID)
		if !ok {
			p.errorf("reading %d: unknown zone %q", i, rd.ZoneID)
			continue
		}
		if rd.Level < simulation.LevelMin || rd.Level > simulation.LevelMax {
			p.errorf("reading %d (%s): level %.2f outside [%.2f, %.2f]",
				i, rd.ZoneID, rd.Level, simulation.LevelMin, simulation.LevelMax)
		}
		if want := risk.BaseSeverity(rd.Level); rd.Severity != want {
			p.errorf("reading %d (%s): severity %s, expected %s for %.2fm", i, rd.ZoneID, rd.Severity, want, rd.Level)
		}
		if want := trendOf(rd.Delta); rd.Trend != want {
			p.errorf("reading %d (%s): trend %s, expected %s for delta %+.2f", i, rd.ZoneID, rd.Trend, want, rd.Delta)
		}
		if rd.Location != z.Center {
			p.errorf("reading %d (%s): location is not the zone center", i, rd.ZoneID)
		}
		if prev, seen := last[rd.ZoneID]; seen && rd.ObservedAt.Before(prev) {
			p.errorf("reading %d (%s): observed_at %s before previous %s",
				i, rd.ZoneID, rd.ObservedAt.Format(time.RFC3339), prev.Format(time.RFC3339))
		}
		last[rd.ZoneID] = rd.ObservedAt
	}
	return p
}

// checkAssessments runs every reading through the sensor assessor and checks
// the result against the scoring rules.
func checkAssessments(r *zones.Registry, readings []domain.WaterReading) *phase {
	p := &phase{name: "Sensor assessments"}
	assessor := pipeline.NewAssessor(r)

	for i, rd := range readings {
		a, err := assessor.Assess(rd.Observation(ngsi.WaterLevelID(rd.ZoneID)))
		if err != nil {
			p.errorf("reading %d (%s): assess: %v", i, rd.ZoneID, err)
			continue
		}
		if a.Severity < rd.Severity {
			p.errorf("reading %d (%s): assessed %s below base %s", i, rd.ZoneID, a.Severity, rd.Severity)
		}
		if a.Sensor == nil {
			p.errorf("reading %d (%s): sensor detail missing", i, rd.ZoneID)
			continue
		}
		if a.Sensor.Alert && a.Severity < domain.SeverityHigh {
			p.errorf("reading %d (%s): alert raised at %s", i, rd.ZoneID, a.Severity)
		}
		if math.Abs(a.WaterLevel-rd.Level) > 1e-9 {
			p.errorf("reading %d (%s): water level %.2f, expected %.2f", i, rd.ZoneID, a.WaterLevel, rd.Level)
		}
	}
	return p
}

func trendOf(delta float64) domain.Trend {
	switch {
	case delta > simulation.Hysteresis:
		return domain.TrendRising
	case delta < -simulation.Hysteresis:
		return domain.TrendFalling
	default:
		return domain.TrendStable
	}
}
