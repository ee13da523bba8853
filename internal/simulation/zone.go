package simulation

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/couchcryptid/flood-risk-engine/internal/domain"
	"github.com/couchcryptid/flood-risk-engine/internal/risk"
)

// zoneState is owned by exactly one goroutine.
type zoneState struct {
	zone      domain.FloodZone
	rng       *rand.Rand
	level     float64
	rainAccum float64
	trend     domain.Trend
	ensured   bool
}

func newZoneState(z domain.FloodZone, rng *rand.Rand) *zoneState {
	return &zoneState{
		zone:  z,
		rng:   rng,
		level: z.Params.BaseLevel,
		trend: domain.TrendStable,
	}
}

// initialReading is the entity created before the first tick: base level, stable.
func (s *zoneState) initialReading(now time.Time) domain.WaterReading {
	return s.reading(s.zone.Params.BaseLevel, 0, domain.TrendStable, now)
}

// step advances the zone by one tick.
func (s *zoneState) step(p Params, elapsed time.Duration, rain *RainEvent, now time.Time) domain.WaterReading {
	zp := s.zone.Params

	tidal := 0.0
	if p.TidalCycle > 0 {
		tidal = p.TidalAmplitude * math.Sin(2*math.Pi*elapsed.Seconds()/p.TidalCycle.Seconds()) * zp.TidalSensitivity
	}

	if rain.ActiveAt(now) {
		s.rainAccum = math.Min(s.rainAccum+rain.IntensityAt(now)*zp.RainSensitivity*AccumRate, RainMax)
	} else {
		s.rainAccum = math.Max(s.rainAccum-zp.DrainRate*DecayRate, 0)
	}

	noise := (s.rng.Float64()*2 - 1) * Noise
	level := roundCM(clamp(zp.BaseLevel+tidal+s.rainAccum+noise, LevelMin, LevelMax))

	delta := roundCM(level - s.level)
	trend := domain.TrendStable
	switch {
	case delta > Hysteresis:
		trend = domain.TrendRising
	case delta < -Hysteresis:
		trend = domain.TrendFalling
	}

	s.level = level
	s.trend = trend
	return s.reading(level, delta, trend, now)
}

func (s *zoneState) reading(level, delta float64, trend domain.Trend, now time.Time) domain.WaterReading {
	return domain.WaterReading{
		ZoneID:     s.zone.ID,
		ZoneName:   s.zone.Name,
		District:   s.zone.District,
		Level:      level,
		Delta:      delta,
		Trend:      trend,
		Severity:   risk.BaseSeverity(level),
		Location:   s.zone.Center,
		ObservedAt: now.UTC(),
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

func roundCM(v float64) float64 {
	return math.Round(v*100) / 100
}
