package simulation

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, time.November, 3, 6, 0, 0, 0, time.UTC)

func TestRainEvent_Intensity(t *testing.T) {
	ev := &RainEvent{Start: t0, Duration: 4 * time.Minute, Peak: 0.8}

	assert.InDelta(t, 0, ev.IntensityAt(t0), 1e-9)
	assert.InDelta(t, 0.8, ev.IntensityAt(t0.Add(2*time.Minute)), 1e-9)
	assert.InDelta(t, 0.6, ev.IntensityAt(t0.Add(time.Minute)), 1e-9)
	assert.InDelta(t, 0, ev.IntensityAt(t0.Add(4*time.Minute)), 1e-9)
	assert.Zero(t, ev.IntensityAt(t0.Add(-time.Second)))
	assert.Zero(t, ev.IntensityAt(t0.Add(5*time.Minute)))

	assert.True(t, ev.ActiveAt(t0.Add(4*time.Minute)))
	assert.False(t, ev.ActiveAt(t0.Add(4*time.Minute+time.Nanosecond)))
}

func TestRainEvent_NilIsInactive(t *testing.T) {
	var ev *RainEvent
	assert.False(t, ev.ActiveAt(t0))
	assert.Zero(t, ev.IntensityAt(t0))
}

func alwaysRain() Params {
	p := DefaultParams()
	p.RainChance = 1
	p.RainDurationJitter = 0
	return p
}

func TestRainGenerator_StartsWithinConfiguredRanges(t *testing.T) {
	p := DefaultParams()
	p.RainChance = 1
	for seed := range uint64(50) {
		g := NewRainGenerator(p, rand.New(rand.NewPCG(seed, 0)))
		ev := g.Check(t0)
		require.NotNil(t, ev)
		assert.GreaterOrEqual(t, ev.Peak, p.RainIntensityMin)
		assert.LessOrEqual(t, ev.Peak, p.RainIntensityMax)
		assert.GreaterOrEqual(t, ev.Duration, p.RainDuration-p.RainDurationJitter)
		assert.LessOrEqual(t, ev.Duration, p.RainDuration+p.RainDurationJitter)
		assert.Same(t, ev, g.Current())
	}
}

func TestRainGenerator_NeverStartsWithZeroChance(t *testing.T) {
	p := DefaultParams()
	p.RainChance = 0
	g := NewRainGenerator(p, rand.New(rand.NewPCG(1, 0)))
	for i := range 500 {
		assert.Nil(t, g.Check(t0.Add(time.Duration(i)*p.TickInterval)))
	}
}

func TestRainGenerator_CooldownAfterEvent(t *testing.T) {
	p := alwaysRain()
	g := NewRainGenerator(p, rand.New(rand.NewPCG(1, 0)))
	tick := p.TickInterval

	require.NotNil(t, g.Check(t0))
	now := t0
	for now.Sub(t0) <= p.RainDuration {
		now = now.Add(tick)
		if now.Sub(t0) <= p.RainDuration {
			assert.Nil(t, g.Check(now), "no second event while one is active")
		}
	}

	// First tick past the end clears the event and starts the cooldown.
	assert.Nil(t, g.Check(now))
	assert.Nil(t, g.Current())
	assert.Equal(t, 24, g.Cooldown(), "ceil(2·4m / 20s)")

	for range 24 {
		now = now.Add(tick)
		assert.Nil(t, g.Check(now))
	}
	now = now.Add(tick)
	assert.NotNil(t, g.Check(now), "cooldown elapsed")
}
