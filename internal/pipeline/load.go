package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/couchcryptid/flood-risk-engine/internal/domain"
	"github.com/couchcryptid/flood-risk-engine/internal/ngsi"
	"github.com/couchcryptid/flood-risk-engine/internal/snapshot"
	"github.com/couchcryptid/flood-risk-engine/internal/store"
)

// Invalidator drops cached snapshots after a write.
type Invalidator interface {
	Invalidate(ctx context.Context, streams ...snapshot.Stream)
}

// AssessmentLoader implements BatchLoader by upserting assessment entities.
// Streams that received a write are invalidated even when a later write in
// the same batch fails.
//
// Writes are serialized and each assessment's CreatedAt is set at commit, so
// CreatedAt strictly increases in the order records become visible. Delta
// cursors rely on that order.
type AssessmentLoader struct {
	store       store.EntityStore
	invalidator Invalidator

	mu   sync.Mutex
	last time.Time
}

func NewLoader(s store.EntityStore, invalidator Invalidator) *AssessmentLoader {
	return &AssessmentLoader{store: s, invalidator: invalidator}
}

// LoadBatch stamps and writes the assessments in place; callers see the
// committed CreatedAt in the slice.
func (l *AssessmentLoader) LoadBatch(ctx context.Context, assessments []domain.Assessment) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	touched := make(map[snapshot.Stream]bool, len(snapshot.Streams))
	var errs []error

	for i := range assessments {
		a := &assessments[i]
		a.CreatedAt = l.stamp()
		if err := store.Upsert(ctx, l.store, ngsi.AssessmentEntity(*a)); err != nil {
			errs = append(errs, fmt.Errorf("upsert %s: %w", a.ID, err))
			continue
		}
		touched[snapshot.StreamOf(a.Kind)] = true
	}

	if l.invalidator != nil && len(touched) > 0 {
		streams := make([]snapshot.Stream, 0, len(touched))
		for _, s := range snapshot.Streams {
			if touched[s] {
				streams = append(streams, s)
			}
		}
		l.invalidator.Invalidate(ctx, streams...)
	}
	return errors.Join(errs...)
}

// stamp returns the clock time, bumped past the previous stamp when the clock
// has not moved.
func (l *AssessmentLoader) stamp() time.Time {
	now := domain.Now()
	if !now.After(l.last) {
		now = l.last.Add(time.Nanosecond)
	}
	l.last = now
	return now
}
