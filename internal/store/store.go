// Package store defines the durable entity store and the helpers shared by its
// implementations.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/couchcryptid/flood-risk-engine/internal/ngsi"
)

var (
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
)

// StatusError is returned for unexpected responses from a remote store.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("store: status %d: %s", e.Code, e.Body)
}

// Query selects entities of one type.
type Query struct {
	Type  string
	Limit int
}

// EntityStore creates, patches and queries NGSI-LD entities.
type EntityStore interface {
	Create(ctx context.Context, e ngsi.Entity) error
	Patch(ctx context.Context, id string, attrs ngsi.Entity) error
	Get(ctx context.Context, id string) (ngsi.Entity, error)
	Query(ctx context.Context, q Query) ([]ngsi.Entity, error)
}

// Upsert patches the entity's attributes, creating it when absent. A create
// that loses a race with another writer falls back to a patch.
func Upsert(ctx context.Context, s EntityStore, e ngsi.Entity) error {
	err := s.Patch(ctx, e.ID(), e.Attrs())
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	err = s.Create(ctx, e)
	if errors.Is(err, ErrAlreadyExists) {
		return s.Patch(ctx, e.ID(), e.Attrs())
	}
	return err
}

// Ensure creates the entity only when it does not exist yet.
func Ensure(ctx context.Context, s EntityStore, e ngsi.Entity) error {
	_, err := s.Get(ctx, e.ID())
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	if err := s.Create(ctx, e); err != nil && !errors.Is(err, ErrAlreadyExists) {
		return err
	}
	return nil
}
