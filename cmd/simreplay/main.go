// Command simreplay runs the zone simulator offline under a fake clock and a
// fixed seed, writes every reading as a JSON fixture, and prints per-zone
// statistics. The same flags always produce the same fixture.
//
// Usage:
//
//	go run ./cmd/simreplay -ticks 180 -seed 42 -out data/mock/readings.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/flood-risk-engine/internal/domain"
	"github.com/couchcryptid/flood-risk-engine/internal/observability"
	"github.com/couchcryptid/flood-risk-engine/internal/pipeline"
	"github.com/couchcryptid/flood-risk-engine/internal/simulation"
	"github.com/couchcryptid/flood-risk-engine/internal/snapshot"
	"github.com/couchcryptid/flood-risk-engine/internal/store"
	"github.com/couchcryptid/flood-risk-engine/internal/zones"
)

var baseTime = time.Date(2025, time.November, 3, 6, 0, 0, 0, time.UTC)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ticks := flag.Int("ticks", 180, "number of simulation ticks to run")
	seed := flag.Uint64("seed", 42, "random seed (must be non-zero)")
	rainChance := flag.Float64("rain-chance", simulation.DefaultParams().RainChance, "per-tick rain start probability")
	zonesFile := flag.String("zones", "", "zone catalogue YAML (defaults to the embedded catalogue)")
	out := flag.String("out", "", "output path for the readings fixture")
	flag.Parse()

	if *out == "" || *ticks <= 0 || *seed == 0 {
		flag.Usage()
		return fmt.Errorf("missing or invalid flags: -out, -ticks > 0, -seed != 0")
	}

	registry, err := zones.Default()
	if *zonesFile != "" {
		registry, err = zones.Load(*zonesFile)
	}
	if err != nil {
		return fmt.Errorf("load zones: %w", err)
	}

	params := simulation.DefaultParams()
	params.Seed = *seed
	params.RainChance = *rainChance

	// Assessment timestamps follow the simulated clock.
	clock := clockwork.NewFakeClockAt(baseTime)
	domain.SetClock(clock)
	defer domain.SetClock(nil)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()

	mem := store.NewMemory()
	assessor := pipeline.NewAssessor(registry)
	sink := pipeline.NewInlineSink(assessor, pipeline.NewLoader(mem, nil))
	sim := simulation.New(registry.All(), params, sink, clock, logger, metrics)

	ctx := context.Background()
	readings := make([]domain.WaterReading, 0, *ticks*registry.Len())
	rainTicks := 0
	for range *ticks {
		readings = append(readings, sim.Step(ctx)...)
		if sim.Rain().Current().ActiveAt(clock.Now()) {
			rainTicks++
		}
		clock.Advance(params.TickInterval)
	}
	log.Printf("simulated %d ticks over %s, %d readings, rain during %d ticks",
		*ticks, time.Duration(*ticks)*params.TickInterval, len(readings), rainTicks)

	if err := writeJSON(*out, readings); err != nil {
		return fmt.Errorf("writing fixture: %w", err)
	}
	log.Printf("wrote fixture: %s", *out)

	printStats(readings)

	// The final sensor snapshot is what a client connecting now would see.
	snapshots := snapshot.New(mem, nil, snapshot.Options{Bounds: domain.VietnamBounds, CoordPrecision: 5}, logger, metrics)
	latest, err := snapshots.Snapshot(ctx, snapshot.StreamSensor)
	if err != nil {
		return fmt.Errorf("final snapshot: %w", err)
	}
	alerts := 0
	for _, a := range latest {
		if a.Sensor != nil && a.Sensor.Alert {
			alerts++
		}
	}
	fmt.Printf("\n  final sensor snapshot: %d records, %d above threshold\n", len(latest), alerts)
	return nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

// zoneStats aggregates one zone's readings.
type zoneStats struct {
	min, max, sum float64
	n             int
	severity      map[domain.Severity]int
	rising        int
}

func printStats(readings []domain.WaterReading) {
	byZone := map[string]*zoneStats{}
	for _, r := range readings {
		s, ok := byZone[r.ZoneID]
		if !ok {
			s = &zoneStats{min: r.Level, max: r.Level, severity: map[domain.Severity]int{}}
			byZone[r.ZoneID] = s
		}
		s.min = min(s.min, r.Level)
		s.max = max(s.max, r.Level)
		s.sum += r.Level
		s.n++
		s.severity[r.Severity]++
		if r.Trend == domain.TrendRising {
			s.rising++
		}
	}

	ids := make([]string, 0, len(byZone))
	for id := range byZone {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Println()
	fmt.Printf("  %-10s %6s %6s %6s %7s  %s\n", "zone", "min", "mean", "max", "rising", "severity (L/M/H/S)")
	for _, id := range ids {
		s := byZone[id]
		fmt.Printf("  %-10s %6.2f %6.2f %6.2f %7d  %d/%d/%d/%d\n",
			id, s.min, s.sum/float64(s.n), s.max, s.rising,
			s.severity[domain.SeverityLow], s.severity[domain.SeverityModerate],
			s.severity[domain.SeverityHigh], s.severity[domain.SeveritySevere])
	}
}
