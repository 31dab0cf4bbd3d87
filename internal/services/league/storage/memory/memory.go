// Package memory implements the journal storage contracts in process memory.
//
// It honors the same sequencing and validation rules as the SQLite store and
// backs tests and ephemeral seasons that never need to survive a restart.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hardwoodsim/league/internal/services/league/domain/event"
	"github.com/hardwoodsim/league/internal/services/league/storage"
)

// Store keeps season journals in memory, one ordered slice per season.
type Store struct {
	mu            sync.Mutex
	eventRegistry *event.Registry
	seasons       map[string][]event.Event
	now           func() time.Time
}

// New creates an empty in-memory journal store.
func New(eventRegistry *event.Registry) *Store {
	return &Store{
		eventRegistry: eventRegistry,
		seasons:       make(map[string][]event.Event),
		now:           time.Now,
	}
}

// AppendEvent atomically appends an event and returns it with its sequence set.
func (s *Store) AppendEvent(ctx context.Context, evt event.Event) (event.Event, error) {
	stored, err := s.BatchAppendEvents(ctx, []event.Event{evt})
	if err != nil {
		return event.Event{}, err
	}
	return stored[0], nil
}

// BatchAppendEvents atomically appends multiple events for one season.
func (s *Store) BatchAppendEvents(ctx context.Context, events []event.Event) ([]event.Event, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("at least one event is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.eventRegistry == nil {
		return nil, fmt.Errorf("event registry is required")
	}

	validated := make([]event.Event, len(events))
	for i, evt := range events {
		v, err := s.eventRegistry.ValidateForAppend(evt)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		if v.Timestamp.IsZero() {
			v.Timestamp = s.now().UTC()
		}
		v.Timestamp = v.Timestamp.UTC().Truncate(time.Millisecond)
		validated[i] = v
	}
	seasonID := validated[0].SeasonID
	for i, evt := range validated[1:] {
		if evt.SeasonID != seasonID {
			return nil, fmt.Errorf("event %d: batch spans seasons %q and %q", i+1, seasonID, evt.SeasonID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	baseSeq := uint64(len(s.seasons[seasonID])) + 1
	for i := range validated {
		validated[i].Seq = baseSeq + uint64(i)
	}
	s.seasons[seasonID] = append(s.seasons[seasonID], validated...)
	return slices.Clone(validated), nil
}

// GetEventBySeq retrieves a specific event by sequence number.
func (s *Store) GetEventBySeq(ctx context.Context, seasonID string, seq uint64) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.seasons[seasonID]
	if seq == 0 || seq > uint64(len(events)) {
		return event.Event{}, storage.ErrNotFound
	}
	return events[seq-1], nil
}

// ListEvents returns events ordered by sequence ascending.
func (s *Store) ListEvents(ctx context.Context, seasonID string, afterSeq uint64, limit int) ([]event.Event, error) {
	return s.ListEventsFiltered(ctx, seasonID, storage.EventFilter{}, afterSeq, limit)
}

// ListEventsFiltered returns filtered events in append order.
func (s *Store) ListEventsFiltered(ctx context.Context, seasonID string, filter storage.EventFilter, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(seasonID) == "" {
		return nil, fmt.Errorf("season id is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	matched := make([]event.Event, 0, limit)
	for _, evt := range s.seasons[seasonID] {
		if evt.Seq <= afterSeq || !matchesFilter(evt, filter) {
			continue
		}
		matched = append(matched, evt)
		if len(matched) == limit {
			break
		}
	}
	return matched, nil
}

// GetLatestEventSeq returns the latest event sequence number for a season.
func (s *Store) GetLatestEventSeq(ctx context.Context, seasonID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(len(s.seasons[seasonID])), nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

func matchesFilter(evt event.Event, filter storage.EventFilter) bool {
	if len(filter.Types) > 0 && !slices.Contains(filter.Types, evt.Type) {
		return false
	}
	if actorID := strings.TrimSpace(filter.ActorID); actorID != "" && evt.ActorID != actorID {
		return false
	}
	if entityType := strings.TrimSpace(filter.EntityType); entityType != "" && evt.EntityType != entityType {
		return false
	}
	if entityID := strings.TrimSpace(filter.EntityID); entityID != "" && evt.EntityID != entityID {
		return false
	}
	if filter.Round != nil && evt.Round != *filter.Round {
		return false
	}
	return true
}

var _ storage.Store = (*Store)(nil)
