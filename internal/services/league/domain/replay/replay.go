// Package replay provides shared helpers for deriving state from the journal.
//
// Every derived view (token balances, proposal statuses, the effect registry)
// is a fold over an ordered event sequence. Replaying the same events must
// always produce the same state.
package replay

import (
	"context"
	"fmt"

	"github.com/hardwoodsim/league/internal/services/league/domain/event"
	"github.com/hardwoodsim/league/internal/services/league/storage"
)

// pageSize bounds how many events a single journal query returns.
const pageSize = 200

// Source is the read side of the journal that folds consume.
type Source interface {
	ListEventsFiltered(ctx context.Context, seasonID string, filter storage.EventFilter, afterSeq uint64, limit int) ([]event.Event, error)
}

// Collect pages through a season journal and returns all matching events in
// append order.
func Collect(ctx context.Context, src Source, seasonID string, filter storage.EventFilter) ([]event.Event, error) {
	var (
		collected []event.Event
		afterSeq  uint64
	)
	for {
		page, err := src.ListEventsFiltered(ctx, seasonID, filter, afterSeq, pageSize)
		if err != nil {
			return nil, fmt.Errorf("list events season_id=%s: %w", seasonID, err)
		}
		if len(page) == 0 {
			return collected, nil
		}
		collected = append(collected, page...)
		afterSeq = page[len(page)-1].Seq
	}
}

// Fold reduces events in order into a derived state.
func Fold[S any](events []event.Event, initial S, step func(S, event.Event) S) S {
	state := initial
	for _, evt := range events {
		state = step(state, evt)
	}
	return state
}

// FoldErr is Fold for steps that can reject an event, stopping at the first
// error.
func FoldErr[S any](events []event.Event, initial S, step func(S, event.Event) (S, error)) (S, error) {
	state := initial
	for _, evt := range events {
		next, err := step(state, evt)
		if err != nil {
			return state, fmt.Errorf("fold event seq=%d type=%s: %w", evt.Seq, evt.Type, err)
		}
		state = next
	}
	return state, nil
}
