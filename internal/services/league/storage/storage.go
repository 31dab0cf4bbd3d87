// Package storage defines the persistence contracts for the governance core.
//
// The event journal is the only durable source of truth. Every other view of
// state (balances, proposal statuses, the live effect registry) is derived by
// replaying events and must be reconstructible from this boundary alone.
package storage

import (
	"context"

	apperrors "github.com/hardwoodsim/league/internal/platform/errors"
	"github.com/hardwoodsim/league/internal/services/league/domain/event"
)

// ErrNotFound indicates a requested persistence record is missing.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ErrAppendFailed indicates the journal rejected an append. The operation is
// considered not to have happened; callers surface this as a hard failure.
var ErrAppendFailed = apperrors.New(apperrors.CodeEventAppendFailed, "event append failed")

// EventFilter narrows ListEventsFiltered results. Zero values match everything.
type EventFilter struct {
	// Types restricts results to the given event types.
	Types []event.Type
	// ActorID restricts results to events triggered by one actor.
	ActorID string
	// EntityType and EntityID restrict results to one affected entity.
	EntityType string
	EntityID   string
	// Round restricts results to one simulation round when set. Round zero is
	// a valid round, hence the pointer.
	Round *int
}

// EventStore owns the season journal boundary that drives every derived view.
type EventStore interface {
	// AppendEvent atomically appends an event and returns it with its
	// sequence number set. Sequence assignment is serialized across
	// concurrent appenders within a season.
	AppendEvent(ctx context.Context, evt event.Event) (event.Event, error)
	// BatchAppendEvents atomically appends multiple events for one season in
	// a single transaction with contiguous sequence numbers. Either every
	// event in the batch becomes durable or none does.
	BatchAppendEvents(ctx context.Context, events []event.Event) ([]event.Event, error)
	// GetEventBySeq retrieves a specific event by sequence number.
	GetEventBySeq(ctx context.Context, seasonID string, seq uint64) (event.Event, error)
	// ListEvents returns events ordered by sequence ascending.
	ListEvents(ctx context.Context, seasonID string, afterSeq uint64, limit int) ([]event.Event, error)
	// ListEventsFiltered returns filtered events in append order.
	ListEventsFiltered(ctx context.Context, seasonID string, filter EventFilter, afterSeq uint64, limit int) ([]event.Event, error)
	// GetLatestEventSeq returns the latest sequence number for a season.
	// Returns 0 if no events exist.
	GetLatestEventSeq(ctx context.Context, seasonID string) (uint64, error)
}

// Store is the composite persistence interface the service wires at startup.
type Store interface {
	EventStore
	Close() error
}
