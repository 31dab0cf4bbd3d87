// Package meta provides a schema-free attribute overlay for existing
// entities.
//
// Effects need to attach arbitrary state to teams, players, and games without
// migrating the underlying schema. The store is a process-local cache with
// dirty tracking so callers can persist only the entities that changed.
package meta

import (
	"fmt"
	"sort"
	"sync"
)

// EntityKey identifies one entity within the overlay.
type EntityKey struct {
	EntityType string
	EntityID   string
}

// Store is an in-memory key/value overlay keyed by entity and field.
type Store struct {
	mu      sync.Mutex
	entries map[EntityKey]map[string]any
	dirty   map[EntityKey]struct{}
}

// NewStore creates an empty overlay.
func NewStore() *Store {
	return &Store{
		entries: make(map[EntityKey]map[string]any),
		dirty:   make(map[EntityKey]struct{}),
	}
}

// Get returns the value of a field.
func (s *Store) Get(entityType, entityID, field string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fields, ok := s.entries[EntityKey{entityType, entityID}]
	if !ok {
		return nil, false
	}
	value, ok := fields[field]
	return value, ok
}

// Set stores a field value and marks the entity dirty.
func (s *Store) Set(entityType, entityID, field string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(EntityKey{entityType, entityID}, field, value)
}

// Increment adds delta to a numeric field, treating a missing field as zero,
// and returns the new value. Non-numeric existing values are an error.
func (s *Store) Increment(entityType, entityID, field string, delta float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := EntityKey{entityType, entityID}
	current := 0.0
	if existing, ok := s.entries[key][field]; ok {
		number, ok := asNumber(existing)
		if !ok {
			return 0, fmt.Errorf("field %s.%s.%s holds %T, not a number", entityType, entityID, field, existing)
		}
		current = number
	}
	next := current + delta
	s.setLocked(key, field, next)
	return next, nil
}

// Decrement subtracts delta from a numeric field.
func (s *Store) Decrement(entityType, entityID, field string, delta float64) (float64, error) {
	return s.Increment(entityType, entityID, field, -delta)
}

// Toggle flips a boolean field, treating a missing field as false, and
// returns the new value. Non-boolean existing values are an error.
func (s *Store) Toggle(entityType, entityID, field string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := EntityKey{entityType, entityID}
	current := false
	if existing, ok := s.entries[key][field]; ok {
		flag, ok := existing.(bool)
		if !ok {
			return false, fmt.Errorf("field %s.%s.%s holds %T, not a bool", entityType, entityID, field, existing)
		}
		current = flag
	}
	s.setLocked(key, field, !current)
	return !current, nil
}

// LoadEntity seeds an entity's fields without marking it dirty. Used when
// hydrating the overlay from persisted state.
func (s *Store) LoadEntity(entityType, entityID string, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := EntityKey{entityType, entityID}
	if s.entries[key] == nil {
		s.entries[key] = make(map[string]any, len(fields))
	}
	for field, value := range fields {
		s.entries[key][field] = value
	}
}

// Entity returns a copy of all fields for one entity.
func (s *Store) Entity(entityType, entityID string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields := s.entries[EntityKey{entityType, entityID}]
	copied := make(map[string]any, len(fields))
	for field, value := range fields {
		copied[field] = value
	}
	return copied
}

// Dirty returns the entities changed since the last Flush, in a stable order.
func (s *Store) Dirty() []EntityKey {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]EntityKey, 0, len(s.dirty))
	for key := range s.dirty {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].EntityType != keys[j].EntityType {
			return keys[i].EntityType < keys[j].EntityType
		}
		return keys[i].EntityID < keys[j].EntityID
	})
	return keys
}

// Flush clears the dirty set and returns what was pending, so a caller can
// persist exactly those entities.
func (s *Store) Flush() []EntityKey {
	keys := s.Dirty()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = make(map[EntityKey]struct{})
	return keys
}

func (s *Store) setLocked(key EntityKey, field string, value any) {
	if s.entries[key] == nil {
		s.entries[key] = make(map[string]any)
	}
	s.entries[key][field] = value
	s.dirty[key] = struct{}{}
}

func asNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}
