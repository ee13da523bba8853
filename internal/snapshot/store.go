package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/flood-risk-engine/internal/domain"
	"github.com/couchcryptid/flood-risk-engine/internal/ngsi"
	"github.com/couchcryptid/flood-risk-engine/internal/observability"
	"github.com/couchcryptid/flood-risk-engine/internal/store"
)

// Reader is the query side of the entity store.
type Reader interface {
	Query(ctx context.Context, q store.Query) ([]ngsi.Entity, error)
}

// Options configures validity filtering, dedup and paging.
type Options struct {
	Bounds         domain.BoundingBox
	CoordPrecision int
	DeltaPageSize  int
	QueryLimit     int
}

// Area restricts results to a circle around Center.
type Area struct {
	Center   domain.GeoPoint
	RadiusKm float64
}

// Store builds snapshots from the entity store, caching them per stream.
type Store struct {
	reader  Reader
	cache   Cache
	opts    Options
	logger  *slog.Logger
	metrics *observability.Metrics
	builds  singleflight.Group
}

func New(reader Reader, cache Cache, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Store {
	if cache == nil {
		cache = NopCache{}
	}
	return &Store{reader: reader, cache: cache, opts: opts, logger: logger, metrics: metrics}
}

// Snapshot returns the valid, deduplicated records of the stream, newest
// first. Concurrent misses for the same stream share one build.
func (s *Store) Snapshot(ctx context.Context, stream Stream) ([]domain.Assessment, error) {
	records, ok, err := s.cache.Get(ctx, stream)
	if err != nil {
		s.logger.Warn("snapshot cache read failed", "stream", stream, "error", err)
	}
	if ok {
		s.metrics.SnapshotCache.WithLabelValues(string(stream), "hit").Inc()
		return records, nil
	}
	s.metrics.SnapshotCache.WithLabelValues(string(stream), "miss").Inc()

	v, err, _ := s.builds.Do(string(stream), func() (any, error) {
		return s.build(ctx, stream)
	})
	if err != nil {
		return nil, err
	}
	built := v.([]domain.Assessment)
	out := make([]domain.Assessment, len(built))
	copy(out, built)
	return out, nil
}

func (s *Store) build(ctx context.Context, stream Stream) ([]domain.Assessment, error) {
	start := time.Now()

	entities, err := s.reader.Query(ctx, store.Query{Type: stream.EntityType(), Limit: s.opts.QueryLimit})
	if err != nil {
		return nil, fmt.Errorf("query %s assessments: %w", stream, err)
	}

	decoded := make([]domain.Assessment, 0, len(entities))
	for _, e := range entities {
		a, err := ngsi.DecodeAssessment(e)
		if err != nil {
			s.logger.Debug("skipping undecodable assessment", "stream", stream, "error", err)
			continue
		}
		decoded = append(decoded, a)
	}
	records := Dedup(stream, FilterValid(decoded, s.opts.Bounds), s.opts.CoordPrecision)

	if err := s.cache.Put(ctx, stream, records); err != nil {
		s.logger.Warn("snapshot cache write failed", "stream", stream, "error", err)
	}
	s.metrics.SnapshotBuildDuration.WithLabelValues(string(stream)).Observe(time.Since(start).Seconds())
	s.metrics.SnapshotRecords.WithLabelValues(string(stream)).Set(float64(len(records)))
	return records, nil
}

// Nearby returns snapshot records within the area, nearest first, at most
// limit of them when limit > 0.
func (s *Store) Nearby(ctx context.Context, stream Stream, area Area, limit int) ([]domain.Assessment, error) {
	records, err := s.Snapshot(ctx, stream)
	if err != nil {
		return nil, err
	}
	out := WithinRadius(records, area.Center, area.RadiusKm)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Delta returns records strictly newer than since, newest first, capped at the
// configured page size. A nil area disables radius filtering.
func (s *Store) Delta(ctx context.Context, stream Stream, since time.Time, area *Area) ([]domain.Assessment, error) {
	records, err := s.Snapshot(ctx, stream)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Assessment, 0)
	for _, r := range records {
		if r.CreatedAt.After(since) {
			out = append(out, r)
		}
	}
	if area != nil {
		out = WithinRadius(out, area.Center, area.RadiusKm)
		SortNewest(out)
	}
	if s.opts.DeltaPageSize > 0 && len(out) > s.opts.DeltaPageSize {
		out = out[:s.opts.DeltaPageSize]
	}
	return out, nil
}

// Invalidate drops cached snapshots so the next read rebuilds them.
func (s *Store) Invalidate(ctx context.Context, streams ...Stream) {
	for _, stream := range streams {
		if err := s.cache.Invalidate(ctx, stream); err != nil {
			s.logger.Warn("snapshot cache invalidation failed", "stream", stream, "error", err)
		}
	}
}
