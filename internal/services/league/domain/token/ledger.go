package token

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/hardwoodsim/league/internal/platform/errors"
	"github.com/hardwoodsim/league/internal/services/league/domain/event"
	"github.com/hardwoodsim/league/internal/services/league/domain/replay"
	"github.com/hardwoodsim/league/internal/services/league/storage"
)

var tokenEventTypes = []event.Type{
	event.TypeTokenGranted,
	event.TypeTokenSpent,
	event.TypeTokenRegenerated,
}

// Ledger provides balance derivation and balance-adjusting operations on top
// of the journal.
type Ledger struct {
	store       storage.EventStore
	idGenerator func() (string, error)
}

// NewLedger creates a ledger backed by the given journal store.
func NewLedger(store storage.EventStore, idGenerator func() (string, error)) *Ledger {
	return &Ledger{
		store:       store,
		idGenerator: idGenerator,
	}
}

// Balance replays an actor's token events for a season and returns the
// derived counts.
func (l *Ledger) Balance(ctx context.Context, seasonID, actorID string) (Balance, error) {
	if strings.TrimSpace(seasonID) == "" {
		return Balance{}, apperrors.New(apperrors.CodeSeasonEmptyID, "season id is required")
	}
	if strings.TrimSpace(actorID) == "" {
		return Balance{}, fmt.Errorf("actor id is required")
	}

	events, err := replay.Collect(ctx, l.store, seasonID, storage.EventFilter{
		Types:   tokenEventTypes,
		ActorID: actorID,
	})
	if err != nil {
		return Balance{}, fmt.Errorf("replay token events: %w", err)
	}
	balance, err := FoldBalance(events)
	if err != nil {
		return Balance{}, fmt.Errorf("fold balance actor_id=%s: %w", actorID, err)
	}
	return balance, nil
}

// Grant holds one positive adjustment within a regeneration batch.
type Grant struct {
	Resource Resource
	Amount   int
}

// RegenerateParams describe a window-start or season-start token grant.
type RegenerateParams struct {
	SeasonID string
	Round    int
	WindowID string
	ActorID  string
	TeamID   string
	Grants   []Grant
	Reason   string
}

// GrantEvents builds the token.granted events for one actor without
// appending them. The season window opener batches these together with its
// own events so a window and its grants land atomically.
func GrantEvents(params RegenerateParams) ([]event.Event, error) {
	if len(params.Grants) == 0 {
		return nil, fmt.Errorf("at least one grant is required")
	}

	reason := params.Reason
	if reason == "" {
		reason = "window_grant"
	}
	events := make([]event.Event, 0, len(params.Grants))
	for _, grant := range params.Grants {
		if !grant.Resource.IsValid() {
			return nil, unknownResourceError(grant.Resource)
		}
		if grant.Amount <= 0 {
			return nil, invalidAmountError(grant.Resource, grant.Amount)
		}
		payload, err := json.Marshal(event.TokenAdjustedPayload{
			Resource: string(grant.Resource),
			Amount:   grant.Amount,
			Reason:   reason,
		})
		if err != nil {
			return nil, fmt.Errorf("encode grant payload: %w", err)
		}
		events = append(events, event.Event{
			SeasonID:    params.SeasonID,
			Type:        event.TypeTokenGranted,
			Round:       params.Round,
			WindowID:    params.WindowID,
			ActorType:   event.ActorTypeSystem,
			ActorID:     params.ActorID,
			TeamID:      params.TeamID,
			PayloadJSON: payload,
		})
	}
	return events, nil
}

// Regenerate appends a batch of token.granted events for one actor. The batch
// is atomic: either every grant lands or none does.
func (l *Ledger) Regenerate(ctx context.Context, params RegenerateParams) ([]event.Event, error) {
	events, err := GrantEvents(params)
	if err != nil {
		return nil, err
	}

	stored, err := l.store.BatchAppendEvents(ctx, events)
	if err != nil {
		return nil, fmt.Errorf("append grants: %w", err)
	}
	return stored, nil
}

// SpendParams describe a single token debit.
type SpendParams struct {
	SeasonID  string
	Round     int
	WindowID  string
	ActorID   string
	TeamID    string
	Resource  Resource
	Amount    int
	Reason    string
	RequestID string
}

// Spend checks the derived balance covers the amount and appends a
// token.spent event. The check is optimistic: the journal itself never
// rejects a debit, so callers must not race spends for the same actor.
func (l *Ledger) Spend(ctx context.Context, params SpendParams) (event.Event, error) {
	if !params.Resource.IsValid() {
		return event.Event{}, unknownResourceError(params.Resource)
	}
	if params.Amount <= 0 {
		return event.Event{}, invalidAmountError(params.Resource, params.Amount)
	}

	balance, err := l.Balance(ctx, params.SeasonID, params.ActorID)
	if err != nil {
		return event.Event{}, err
	}
	if balance.Get(params.Resource) < params.Amount {
		return event.Event{}, insufficientBalanceError(params.ActorID, params.Resource, balance.Get(params.Resource), params.Amount)
	}

	payload, err := json.Marshal(event.TokenAdjustedPayload{
		Resource: string(params.Resource),
		Amount:   params.Amount,
		Reason:   params.Reason,
	})
	if err != nil {
		return event.Event{}, fmt.Errorf("encode spend payload: %w", err)
	}
	stored, err := l.store.AppendEvent(ctx, event.Event{
		SeasonID:    params.SeasonID,
		Type:        event.TypeTokenSpent,
		Round:       params.Round,
		WindowID:    params.WindowID,
		RequestID:   params.RequestID,
		ActorType:   event.ActorTypeActor,
		ActorID:     params.ActorID,
		TeamID:      params.TeamID,
		PayloadJSON: payload,
	})
	if err != nil {
		return event.Event{}, fmt.Errorf("append spend: %w", err)
	}
	return stored, nil
}

// RefundParams describe a compensating credit for an earlier debit.
type RefundParams struct {
	SeasonID string
	Round    int
	ActorID  string
	TeamID   string
	Resource Resource
	Amount   int
	Reason   string
	// RefundOf references the request id of the original debit so replays can
	// pair refunds with the spends they compensate.
	RefundOf string
}

// Refund appends a token.regenerated event crediting the actor back.
func (l *Ledger) Refund(ctx context.Context, params RefundParams) (event.Event, error) {
	if !params.Resource.IsValid() {
		return event.Event{}, unknownResourceError(params.Resource)
	}
	if params.Amount <= 0 {
		return event.Event{}, invalidAmountError(params.Resource, params.Amount)
	}

	payload, err := json.Marshal(event.TokenAdjustedPayload{
		Resource: string(params.Resource),
		Amount:   params.Amount,
		Reason:   params.Reason,
		RefundOf: params.RefundOf,
	})
	if err != nil {
		return event.Event{}, fmt.Errorf("encode refund payload: %w", err)
	}
	stored, err := l.store.AppendEvent(ctx, event.Event{
		SeasonID:    params.SeasonID,
		Type:        event.TypeTokenRegenerated,
		Round:       params.Round,
		ActorType:   event.ActorTypeSystem,
		ActorID:     params.ActorID,
		TeamID:      params.TeamID,
		PayloadJSON: payload,
	})
	if err != nil {
		return event.Event{}, fmt.Errorf("append refund: %w", err)
	}
	return stored, nil
}

func unknownResourceError(resource Resource) error {
	return apperrors.WithMetadata(apperrors.CodeTokenUnknownResource,
		fmt.Sprintf("unknown token resource %q", resource),
		map[string]string{"resource": string(resource)},
	)
}

func invalidAmountError(resource Resource, amount int) error {
	return apperrors.WithMetadata(apperrors.CodeTokenInvalidAmount,
		fmt.Sprintf("token amount must be positive, got %d", amount),
		map[string]string{
			"resource": string(resource),
			"amount":   strconv.Itoa(amount),
		},
	)
}

func insufficientBalanceError(actorID string, resource Resource, have, want int) error {
	return apperrors.WithMetadata(apperrors.CodeTokenInsufficientBalance,
		fmt.Sprintf("actor %s has %d %s, needs %d", actorID, have, resource, want),
		map[string]string{
			"actor_id": actorID,
			"resource": string(resource),
			"have":     strconv.Itoa(have),
			"want":     strconv.Itoa(want),
		},
	)
}
