package distribution

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-risk-engine/internal/domain"
	"github.com/couchcryptid/flood-risk-engine/internal/ngsi"
	"github.com/couchcryptid/flood-risk-engine/internal/observability"
	"github.com/couchcryptid/flood-risk-engine/internal/snapshot"
	"github.com/couchcryptid/flood-risk-engine/internal/store"
)

var t0 = time.Date(2025, time.November, 3, 8, 0, 0, 0, time.UTC)

type fixture struct {
	mem   *store.Memory
	snaps *snapshot.Store
	clock *clockwork.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	opts := snapshot.Options{Bounds: domain.VietnamBounds, CoordPrecision: 5, DeltaPageSize: 100}
	return &fixture{
		mem:   mem,
		snaps: snapshot.New(mem, snapshot.NopCache{}, opts, slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting()),
		clock: clockwork.NewFakeClockAt(t0.Add(time.Hour)),
	}
}

func (f *fixture) addCrowd(t *testing.T, report string, lat, lng float64, at time.Time) {
	t.Helper()
	a := domain.Assessment{
		ID:        ngsi.CrowdAssessmentID(report),
		Kind:      domain.KindCrowd,
		Location:  domain.GeoPoint{Lat: lat, Lng: lng},
		CreatedAt: at,
		Severity:  domain.SeverityHigh,
		SourceRef: report,
		Crowd:     &domain.CrowdDetail{Score: 0.6},
	}
	require.NoError(t, store.Upsert(context.Background(), f.mem, ngsi.AssessmentEntity(a)))
}

func (f *fixture) addSensor(t *testing.T, zone string, lat, lng float64, at time.Time) {
	t.Helper()
	a := domain.Assessment{
		ID:        ngsi.SensorAssessmentID(zone),
		Kind:      domain.KindSensor,
		Location:  domain.GeoPoint{Lat: lat, Lng: lng},
		CreatedAt: at,
		Severity:  domain.SeverityModerate,
		SourceRef: ngsi.WaterLevelID(zone),
		Sensor:    &domain.SensorDetail{ZoneID: zone, Trend: domain.TrendStable},
	}
	require.NoError(t, store.Upsert(context.Background(), f.mem, ngsi.AssessmentEntity(a)))
}

func handle(t *testing.T, s *Session, msg string) *OutboundMessage {
	t.Helper()
	out, err := s.Handle(context.Background(), []byte(msg))
	require.NoError(t, err)
	return out
}

func TestSession_InitSendsSnapshotAndSetsCursor(t *testing.T) {
	f := newFixture(t)
	f.addCrowd(t, "r1", 10.77, 106.69, t0)
	f.addCrowd(t, "r2", 10.78, 106.70, t0.Add(time.Minute))
	f.addSensor(t, "Q1_001", 10.776, 106.700, t0.Add(2*time.Minute))

	s := NewSession(f.snaps, domain.VietnamBounds, f.clock)
	assert.Equal(t, AwaitingInit, s.State())

	out := handle(t, s, `{"type":"init"}`)
	require.NotNil(t, out)
	assert.Equal(t, TypeSnapshot, out.Type)
	assert.Len(t, out.Crowd, 2)
	assert.Len(t, out.Sensor, 1)
	assert.Equal(t, f.clock.Now(), out.Timestamp)

	assert.Equal(t, Steady, s.State())
	assert.Equal(t, Cursor{Crowd: t0.Add(time.Minute), Sensor: t0.Add(2 * time.Minute)}, s.Cursor())
}

func TestSession_PollWithoutNewDataIsSilent(t *testing.T) {
	f := newFixture(t)
	f.addCrowd(t, "r1", 10.77, 106.69, t0)

	s := NewSession(f.snaps, domain.VietnamBounds, f.clock)
	handle(t, s, `{"type":"init"}`)

	assert.Nil(t, handle(t, s, `{"type":"poll"}`))
	assert.Nil(t, handle(t, s, `{"type":"poll"}`))
}

func TestSession_PollSendsOnlyNewRecords(t *testing.T) {
	f := newFixture(t)
	f.addCrowd(t, "r1", 10.77, 106.69, t0)
	f.addSensor(t, "Q1_001", 10.776, 106.700, t0)

	s := NewSession(f.snaps, domain.VietnamBounds, f.clock)
	handle(t, s, `{"type":"init"}`)

	f.addCrowd(t, "r2", 10.80, 106.71, t0.Add(time.Minute))
	out := handle(t, s, `{"type":"poll"}`)
	require.NotNil(t, out)
	assert.Equal(t, TypeUpdate, out.Type)
	require.Len(t, out.Crowd, 1)
	assert.Equal(t, "r2", out.Crowd[0].SourceRef)
	assert.Empty(t, out.Sensor)
	assert.NotNil(t, out.Sensor, "empty streams encode as []")

	assert.Equal(t, t0.Add(time.Minute), s.Cursor().Crowd)
	assert.Equal(t, t0, s.Cursor().Sensor)
	assert.Nil(t, handle(t, s, `{"type":"poll"}`), "cursor advanced past r2")
}

func TestSession_SensorUpdateReplacesZone(t *testing.T) {
	f := newFixture(t)
	f.addSensor(t, "Q1_001", 10.776, 106.700, t0)

	s := NewSession(f.snaps, domain.VietnamBounds, f.clock)
	handle(t, s, `{"type":"init"}`)

	f.addSensor(t, "Q1_001", 10.776, 106.700, t0.Add(20*time.Second))
	out := handle(t, s, `{"type":"poll"}`)
	require.NotNil(t, out)
	require.Len(t, out.Sensor, 1)
	assert.Equal(t, t0.Add(20*time.Second), out.Sensor[0].CreatedAt)
}

func TestSession_InitWithRadius(t *testing.T) {
	f := newFixture(t)
	f.addCrowd(t, "far", 10.90, 106.80, t0)
	f.addCrowd(t, "near", 10.7630, 106.6605, t0)
	f.addCrowd(t, "mid", 10.78, 106.68, t0)

	s := NewSession(f.snaps, domain.VietnamBounds, f.clock)
	out := handle(t, s, `{"type":"init","lat":10.7626,"lng":106.6602,"radius":5}`)
	require.NotNil(t, out)
	require.Len(t, out.Crowd, 2)
	assert.Equal(t, "near", out.Crowd[0].SourceRef)
	assert.Equal(t, "mid", out.Crowd[1].SourceRef)
	for _, r := range out.Crowd {
		require.NotNil(t, r.DistanceKm)
		assert.LessOrEqual(t, *r.DistanceKm, 5.0)
	}

	// Deltas honour the session's area.
	f.addCrowd(t, "far-new", 10.95, 106.85, t0.Add(time.Minute))
	assert.Nil(t, handle(t, s, `{"type":"poll"}`))
	f.addCrowd(t, "near-new", 10.7640, 106.6610, t0.Add(2*time.Minute))
	out = handle(t, s, `{"type":"poll"}`)
	require.NotNil(t, out)
	require.Len(t, out.Crowd, 1)
	assert.Equal(t, "near-new", out.Crowd[0].SourceRef)
}

func TestSession_EmptySnapshotCursorStartsAtZero(t *testing.T) {
	f := newFixture(t)
	s := NewSession(f.snaps, domain.VietnamBounds, f.clock)

	out := handle(t, s, `{"type":"init"}`)
	require.NotNil(t, out)
	assert.Empty(t, out.Crowd)
	assert.True(t, s.Cursor().Crowd.IsZero())

	f.addCrowd(t, "first", 10.77, 106.69, t0)
	out = handle(t, s, `{"type":"poll"}`)
	require.NotNil(t, out)
	assert.Len(t, out.Crowd, 1)
}

func TestSession_ReinitResetsCursor(t *testing.T) {
	f := newFixture(t)
	f.addCrowd(t, "r1", 10.77, 106.69, t0)
	s := NewSession(f.snaps, domain.VietnamBounds, f.clock)
	handle(t, s, `{"type":"init"}`)

	f.addCrowd(t, "r2", 10.80, 106.71, t0.Add(time.Minute))
	out := handle(t, s, `{"type":"init"}`)
	require.NotNil(t, out)
	assert.Equal(t, TypeSnapshot, out.Type)
	assert.Len(t, out.Crowd, 2)
	assert.Nil(t, handle(t, s, `{"type":"poll"}`))
}

func TestSession_ProtocolViolations(t *testing.T) {
	tests := []struct {
		name string
		msg  string
	}{
		{"malformed json", `{"type":`},
		{"unknown type", `{"type":"subscribe"}`},
		{"missing type", `{}`},
		{"lat without lng", `{"type":"init","lat":10.7}`},
		{"radius without center", `{"type":"init","radius":3}`},
		{"radius too small", `{"type":"init","lat":10.7,"lng":106.6,"radius":0.01}`},
		{"radius too large", `{"type":"init","lat":10.7,"lng":106.6,"radius":250}`},
		{"latitude out of range", `{"type":"init","lat":97,"lng":106.6}`},
		{"center outside region", `{"type":"init","lat":48.85,"lng":2.35}`},
		{"center outside region with radius", `{"type":"init","lat":35.0,"lng":-97.0,"radius":50}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			s := NewSession(f.snaps, domain.VietnamBounds, f.clock)

			out, err := s.Handle(context.Background(), []byte(tt.msg))
			require.ErrorIs(t, err, ErrProtocol)
			assert.Nil(t, out)
			assert.Equal(t, AwaitingInit, s.State(), "violations leave the session unchanged")
		})
	}
}

func TestSession_PollBeforeInit(t *testing.T) {
	f := newFixture(t)
	s := NewSession(f.snaps, domain.VietnamBounds, f.clock)

	_, err := s.Handle(context.Background(), []byte(`{"type":"poll"}`))
	require.ErrorIs(t, err, ErrProtocol)

	handle(t, s, `{"type":"init"}`)
	_, err = s.Handle(context.Background(), []byte(`{"type":"bogus"}`))
	require.ErrorIs(t, err, ErrProtocol)
	assert.Equal(t, Steady, s.State(), "a bad message after init keeps the session steady")
}

// failingSource returns err from every read.
type failingSource struct{ err error }

func (f failingSource) Snapshot(context.Context, snapshot.Stream) ([]domain.Assessment, error) {
	return nil, f.err
}

func (f failingSource) Nearby(context.Context, snapshot.Stream, snapshot.Area, int) ([]domain.Assessment, error) {
	return nil, f.err
}

func (f failingSource) Delta(context.Context, snapshot.Stream, time.Time, *snapshot.Area) ([]domain.Assessment, error) {
	return nil, f.err
}

func TestSession_SourceErrorIsNotProtocolError(t *testing.T) {
	s := NewSession(failingSource{err: errors.New("broker down")}, domain.VietnamBounds, clockwork.NewFakeClock())

	_, err := s.Handle(context.Background(), []byte(`{"type":"init"}`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrProtocol)
	assert.Equal(t, AwaitingInit, s.State())
}

func TestOutboundMessage_JSONShape(t *testing.T) {
	f := newFixture(t)
	s := NewSession(f.snaps, domain.VietnamBounds, f.clock)
	out := handle(t, s, `{"type":"init"}`)

	data, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"snapshot","crowd":[],"sensor":[],"timestamp":"2025-11-03T09:00:00Z"}`, string(data))
}

func TestNewArea(t *testing.T) {
	a, err := NewArea(10.7, 106.6, nil)
	require.NoError(t, err)
	assert.InDelta(t, DefaultRadiusKm, a.RadiusKm, 1e-9)

	nan, inf := math.NaN(), math.Inf(1)
	tests := []struct {
		name     string
		lat, lng float64
		radius   float64
		wantErr  bool
	}{
		{"min radius", 10.7, 106.6, MinRadiusKm, false},
		{"max radius", 10.7, 106.6, MaxRadiusKm, false},
		{"radius above max", 10.7, 106.6, 100.01, true},
		{"NaN radius", 10.7, 106.6, nan, true},
		{"infinite radius", 10.7, 106.6, inf, true},
		{"NaN latitude", nan, 106.6, 1, true},
		{"NaN longitude", 10.7, nan, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.radius
			_, err := NewArea(tt.lat, tt.lng, &r)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}
