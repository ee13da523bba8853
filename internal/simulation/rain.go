package simulation

import (
	"math"
	"math/rand/v2"
	"sync/atomic"
	"time"
)

// RainEvent is an immutable description of one storm. Intensity follows a
// parabola that peaks halfway through the event.
type RainEvent struct {
	Start    time.Time
	Duration time.Duration
	Peak     float64
}

// ActiveAt reports whether now falls within [Start, Start+Duration]. A nil
// event is never active.
func (e *RainEvent) ActiveAt(now time.Time) bool {
	if e == nil {
		return false
	}
	elapsed := now.Sub(e.Start)
	return elapsed >= 0 && elapsed <= e.Duration
}

// IntensityAt returns peak·4p(1−p) with p the elapsed fraction, or zero
// outside the event.
func (e *RainEvent) IntensityAt(now time.Time) float64 {
	if !e.ActiveAt(now) || e.Duration <= 0 {
		return 0
	}
	p := float64(now.Sub(e.Start)) / float64(e.Duration)
	return e.Peak * 4 * p * (1 - p)
}

// RainGenerator owns the single global rain event. Check is called by one
// goroutine; Current may be read from any number of zone goroutines.
type RainGenerator struct {
	params   Params
	rng      *rand.Rand
	current  atomic.Pointer[RainEvent]
	cooldown int
}

func NewRainGenerator(params Params, rng *rand.Rand) *RainGenerator {
	return &RainGenerator{params: params, rng: rng}
}

// Current returns the event in progress or the one that just ended and has
// not been cleared yet; callers test ActiveAt.
func (g *RainGenerator) Current() *RainEvent {
	return g.current.Load()
}

// Check advances the generator by one tick and returns the event it started,
// if any. An ended event is cleared and starts a cooldown of twice its
// duration, in ticks.
func (g *RainGenerator) Check(now time.Time) *RainEvent {
	if ev := g.current.Load(); ev != nil {
		if ev.ActiveAt(now) {
			return nil
		}
		g.current.Store(nil)
		g.cooldown = int(math.Ceil(2 * float64(ev.Duration) / float64(g.params.TickInterval)))
		return nil
	}

	if g.cooldown > 0 {
		g.cooldown--
		return nil
	}
	if g.rng.Float64() >= g.params.RainChance {
		return nil
	}

	ev := &RainEvent{
		Start:    now,
		Duration: g.drawDuration(),
		Peak:     g.params.RainIntensityMin + g.rng.Float64()*(g.params.RainIntensityMax-g.params.RainIntensityMin),
	}
	g.current.Store(ev)
	return ev
}

func (g *RainGenerator) drawDuration() time.Duration {
	jitter := g.params.RainDurationJitter
	if jitter <= 0 {
		return g.params.RainDuration
	}
	offset := time.Duration((g.rng.Float64()*2 - 1) * float64(jitter))
	return g.params.RainDuration + offset
}

// Cooldown returns the remaining cooldown ticks.
func (g *RainGenerator) Cooldown() int {
	return g.cooldown
}
