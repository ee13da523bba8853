package simulation

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/flood-risk-engine/internal/domain"
	"github.com/couchcryptid/flood-risk-engine/internal/observability"
)

// Simulator drives every zone. Run starts one goroutine per zone plus one for
// the rain generator; Step runs a single synchronous tick and must not be
// mixed with Run.
type Simulator struct {
	params  Params
	sink    Sink
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	rain   *RainGenerator
	states []*zoneState
	start  time.Time
	ready  atomic.Bool
}

// New creates a simulator over zones. A nil clock uses real time.
func New(zones []domain.FloodZone, params Params, sink Sink, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Simulator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	seed := params.Seed
	if seed == 0 {
		seed = uint64(clock.Now().UnixNano())
	}

	states := make([]*zoneState, len(zones))
	for i, z := range zones {
		states[i] = newZoneState(z, rand.New(rand.NewPCG(seed, uint64(i+1))))
	}

	return &Simulator{
		params:  params,
		sink:    sink,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
		rain:    NewRainGenerator(params, rand.New(rand.NewPCG(seed, 0))),
		states:  states,
	}
}

// CheckReadiness returns nil once at least one reading has been published.
func (s *Simulator) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("simulator has not published any readings yet")
	}
	return nil
}

// Run ticks every zone until ctx is cancelled. Sink failures are logged and
// counted; they never stop a zone.
func (s *Simulator) Run(ctx context.Context) error {
	s.start = s.clock.Now()
	s.logger.Info("simulator started", "zones", len(s.states), "tick", s.params.TickInterval)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.every(ctx, func() { s.checkRain(s.clock.Now()) })
		return nil
	})
	for _, st := range s.states {
		g.Go(func() error {
			s.every(ctx, func() { s.tickZone(ctx, st, s.clock.Now()) })
			return nil
		})
	}

	err := g.Wait()
	s.logger.Info("simulator stopped", "reason", context.Cause(ctx))
	return err
}

// every runs fn immediately and then on each tick until ctx is done.
func (s *Simulator) every(ctx context.Context, fn func()) {
	ticker := s.clock.NewTicker(s.params.TickInterval)
	defer ticker.Stop()
	for {
		fn()
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}
	}
}

// Step performs one global tick synchronously: the rain check, then every
// zone in catalogue order.
func (s *Simulator) Step(ctx context.Context) []domain.WaterReading {
	now := s.clock.Now()
	if s.start.IsZero() {
		s.start = now
	}
	s.checkRain(now)

	out := make([]domain.WaterReading, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, s.tickZone(ctx, st, now))
	}
	return out
}

// Rain exposes the generator, mainly for reporting.
func (s *Simulator) Rain() *RainGenerator {
	return s.rain
}

func (s *Simulator) checkRain(now time.Time) {
	if ev := s.rain.Check(now); ev != nil {
		s.metrics.RainEvents.Inc()
		s.logger.Info("rain event started", "peak", ev.Peak, "duration", ev.Duration)
	}
	if s.rain.Current().ActiveAt(now) {
		s.metrics.RainActive.Set(1)
	} else {
		s.metrics.RainActive.Set(0)
	}
}

func (s *Simulator) tickZone(ctx context.Context, st *zoneState, now time.Time) domain.WaterReading {
	if !st.ensured {
		if err := s.sink.Ensure(ctx, st.initialReading(now)); err != nil {
			s.metrics.SinkErrors.WithLabelValues("ensure").Inc()
			s.logger.Warn("ensure zone entity failed", "zone", st.zone.ID, "error", err)
		} else {
			st.ensured = true
		}
	}

	r := st.step(s.params, now.Sub(s.start), s.rain.Current(), now)
	s.metrics.WaterLevel.WithLabelValues(r.ZoneID).Set(r.Level)

	if err := s.sink.Publish(ctx, r); err != nil {
		s.metrics.SinkErrors.WithLabelValues("publish").Inc()
		s.logger.Warn("publish reading failed", "zone", r.ZoneID, "error", err)
		return r
	}
	s.metrics.ReadingsEmitted.Inc()
	s.ready.Store(true)
	s.logger.Debug("reading published",
		"zone", r.ZoneID, "level", r.Level, "trend", r.Trend, "severity", r.Severity)
	return r
}
