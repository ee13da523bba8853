package simulation

import (
	"context"
	"errors"

	"github.com/couchcryptid/flood-risk-engine/internal/domain"
	"github.com/couchcryptid/flood-risk-engine/internal/ngsi"
	"github.com/couchcryptid/flood-risk-engine/internal/store"
)

// Sink receives simulated readings. Ensure is called with the zone's initial
// reading until it succeeds once; Publish is called every tick.
type Sink interface {
	Ensure(ctx context.Context, initial domain.WaterReading) error
	Publish(ctx context.Context, r domain.WaterReading) error
}

// StoreSink writes WaterLevelObserved entities to the entity store.
type StoreSink struct {
	store store.EntityStore
}

func NewStoreSink(s store.EntityStore) *StoreSink {
	return &StoreSink{store: s}
}

func (s *StoreSink) Ensure(ctx context.Context, initial domain.WaterReading) error {
	return store.Ensure(ctx, s.store, ngsi.WaterLevelEntity(initial))
}

func (s *StoreSink) Publish(ctx context.Context, r domain.WaterReading) error {
	return store.Upsert(ctx, s.store, ngsi.WaterLevelEntity(r))
}

// MultiSink fans readings out to every sink. One failing sink does not stop
// the others.
type MultiSink []Sink

func (m MultiSink) Ensure(ctx context.Context, initial domain.WaterReading) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Ensure(ctx, initial))
	}
	return errors.Join(errs...)
}

func (m MultiSink) Publish(ctx context.Context, r domain.WaterReading) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Publish(ctx, r))
	}
	return errors.Join(errs...)
}
