package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/couchcryptid/flood-risk-engine/internal/ngsi"
)

// Memory is an in-process EntityStore used when no context broker is
// configured and in tests. Entities are stored as JSON so callers never share
// mutable maps with the store.
type Memory struct {
	mu       sync.RWMutex
	entities map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{entities: make(map[string][]byte)}
}

func (m *Memory) Create(_ context.Context, e ngsi.Entity) error {
	id := e.ID()
	if id == "" {
		return &StatusError{Code: 400, Body: "entity id is required"}
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entity %s: %w", id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entities[id]; ok {
		return fmt.Errorf("%s: %w", id, ErrAlreadyExists)
	}
	m.entities[id] = data
	return nil
}

func (m *Memory) Patch(_ context.Context, id string, attrs ngsi.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.entities[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	current, err := ngsi.Decode(data)
	if err != nil {
		return err
	}
	merged, err := json.Marshal(current.Merge(attrs.Attrs()))
	if err != nil {
		return fmt.Errorf("encode entity %s: %w", id, err)
	}
	m.entities[id] = merged
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (ngsi.Entity, error) {
	m.mu.RLock()
	data, ok := m.entities[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return ngsi.Decode(data)
}

// Query returns matching entities ordered by id.
func (m *Memory) Query(_ context.Context, q Query) ([]ngsi.Entity, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.entities))
	for id := range m.entities {
		ids = append(ids, id)
	}
	snapshot := make(map[string][]byte, len(ids))
	for _, id := range ids {
		snapshot[id] = m.entities[id]
	}
	m.mu.RUnlock()

	sort.Strings(ids)
	out := make([]ngsi.Entity, 0, len(ids))
	for _, id := range ids {
		e, err := ngsi.Decode(snapshot[id])
		if err != nil {
			return nil, err
		}
		if q.Type != "" && e.Type() != q.Type {
			continue
		}
		out = append(out, e)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// Len reports the number of stored entities.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entities)
}
