package token

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/hardwoodsim/league/internal/platform/errors"
	"github.com/hardwoodsim/league/internal/services/league/domain/event"
	"github.com/hardwoodsim/league/internal/services/league/domain/replay"
	"github.com/hardwoodsim/league/internal/services/league/storage"
)

// TradeStatus is the derived state of a two-party token exchange.
type TradeStatus string

const (
	// TradeStatusPending means the offer awaits a response.
	TradeStatusPending TradeStatus = "pending"
	// TradeStatusAccepted means the exchange was applied.
	TradeStatusAccepted TradeStatus = "accepted"
	// TradeStatusDeclined means the receiver rejected the offer.
	TradeStatusDeclined TradeStatus = "declined"
)

// Trade is the derived view of a trade aggregate, rebuilt from its events.
type Trade struct {
	TradeID         string
	SeasonID        string
	Status          TradeStatus
	OffererActorID  string
	OffererTeamID   string
	ReceiverActorID string
	OfferResource   Resource
	OfferAmount     int
	AskResource     Resource
	AskAmount       int
	OfferedRound    int
}

// OfferParams describe a new trade offer.
type OfferParams struct {
	SeasonID        string
	Round           int
	OffererActorID  string
	OffererTeamID   string
	ReceiverActorID string
	OfferResource   Resource
	OfferAmount     int
	AskResource     Resource
	AskAmount       int
}

// Offer records a pending token exchange. The offerer's balance must cover
// the offered amount at offer time; it is checked again at acceptance.
func (l *Ledger) Offer(ctx context.Context, params OfferParams) (Trade, error) {
	if !params.OfferResource.IsValid() {
		return Trade{}, unknownResourceError(params.OfferResource)
	}
	if !params.AskResource.IsValid() {
		return Trade{}, unknownResourceError(params.AskResource)
	}
	if params.OfferAmount <= 0 {
		return Trade{}, invalidAmountError(params.OfferResource, params.OfferAmount)
	}
	if params.AskAmount <= 0 {
		return Trade{}, invalidAmountError(params.AskResource, params.AskAmount)
	}
	offerer := strings.TrimSpace(params.OffererActorID)
	receiver := strings.TrimSpace(params.ReceiverActorID)
	if offerer == "" || receiver == "" {
		return Trade{}, fmt.Errorf("offerer and receiver actor ids are required")
	}
	if offerer == receiver {
		return Trade{}, apperrors.WithMetadata(apperrors.CodeTradeSelfDirected,
			"a trade cannot target its own offerer",
			map[string]string{"actor_id": offerer},
		)
	}

	balance, err := l.Balance(ctx, params.SeasonID, offerer)
	if err != nil {
		return Trade{}, err
	}
	if balance.Get(params.OfferResource) < params.OfferAmount {
		return Trade{}, insufficientBalanceError(offerer, params.OfferResource, balance.Get(params.OfferResource), params.OfferAmount)
	}

	tradeID, err := l.idGenerator()
	if err != nil {
		return Trade{}, fmt.Errorf("generate trade id: %w", err)
	}
	payload, err := json.Marshal(event.TradeOfferedPayload{
		TradeID:         tradeID,
		OffererActorID:  offerer,
		ReceiverActorID: receiver,
		OfferResource:   string(params.OfferResource),
		OfferAmount:     params.OfferAmount,
		AskResource:     string(params.AskResource),
		AskAmount:       params.AskAmount,
	})
	if err != nil {
		return Trade{}, fmt.Errorf("encode offer payload: %w", err)
	}
	if _, err := l.store.AppendEvent(ctx, event.Event{
		SeasonID:    params.SeasonID,
		Type:        event.TypeTradeOffered,
		Round:       params.Round,
		ActorType:   event.ActorTypeActor,
		ActorID:     offerer,
		TeamID:      params.OffererTeamID,
		EntityType:  "trade",
		EntityID:    tradeID,
		PayloadJSON: payload,
	}); err != nil {
		return Trade{}, fmt.Errorf("append offer: %w", err)
	}

	return Trade{
		TradeID:         tradeID,
		SeasonID:        params.SeasonID,
		Status:          TradeStatusPending,
		OffererActorID:  offerer,
		OffererTeamID:   params.OffererTeamID,
		ReceiverActorID: receiver,
		OfferResource:   params.OfferResource,
		OfferAmount:     params.OfferAmount,
		AskResource:     params.AskResource,
		AskAmount:       params.AskAmount,
		OfferedRound:    params.Round,
	}, nil
}

// GetTrade rebuilds a trade's derived state from its events.
func (l *Ledger) GetTrade(ctx context.Context, seasonID, tradeID string) (Trade, error) {
	if strings.TrimSpace(tradeID) == "" {
		return Trade{}, fmt.Errorf("trade id is required")
	}
	events, err := replay.Collect(ctx, l.store, seasonID, storage.EventFilter{
		EntityType: "trade",
		EntityID:   tradeID,
	})
	if err != nil {
		return Trade{}, fmt.Errorf("replay trade events: %w", err)
	}

	trade, err := replay.FoldErr(events, Trade{}, func(trade Trade, evt event.Event) (Trade, error) {
		switch evt.Type {
		case event.TypeTradeOffered:
			var payload event.TradeOfferedPayload
			if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
				return trade, fmt.Errorf("decode offer payload: %w", err)
			}
			return Trade{
				TradeID:         payload.TradeID,
				SeasonID:        evt.SeasonID,
				Status:          TradeStatusPending,
				OffererActorID:  payload.OffererActorID,
				OffererTeamID:   evt.TeamID,
				ReceiverActorID: payload.ReceiverActorID,
				OfferResource:   Resource(payload.OfferResource),
				OfferAmount:     payload.OfferAmount,
				AskResource:     Resource(payload.AskResource),
				AskAmount:       payload.AskAmount,
				OfferedRound:    evt.Round,
			}, nil
		case event.TypeTradeAccepted:
			trade.Status = TradeStatusAccepted
			return trade, nil
		case event.TypeTradeDeclined:
			trade.Status = TradeStatusDeclined
			return trade, nil
		}
		return trade, nil
	})
	if err != nil {
		return Trade{}, err
	}
	if trade.TradeID == "" {
		return Trade{}, apperrors.WithMetadata(apperrors.CodeTradeNotFound,
			fmt.Sprintf("trade %s not found", tradeID),
			map[string]string{"trade_id": tradeID},
		)
	}
	return trade, nil
}

// AcceptParams describe acceptance of a pending trade.
type AcceptParams struct {
	SeasonID       string
	Round          int
	TradeID        string
	ReceiverTeamID string
}

// Accept applies a pending trade. The acceptance and the four balance
// adjustments are appended in one batch so replayers never observe a
// half-applied exchange.
func (l *Ledger) Accept(ctx context.Context, params AcceptParams) ([]event.Event, error) {
	trade, err := l.GetTrade(ctx, params.SeasonID, params.TradeID)
	if err != nil {
		return nil, err
	}
	if trade.Status != TradeStatusPending {
		return nil, tradeNotPendingError(trade)
	}

	offererBalance, err := l.Balance(ctx, params.SeasonID, trade.OffererActorID)
	if err != nil {
		return nil, err
	}
	if offererBalance.Get(trade.OfferResource) < trade.OfferAmount {
		return nil, insufficientBalanceError(trade.OffererActorID, trade.OfferResource, offererBalance.Get(trade.OfferResource), trade.OfferAmount)
	}
	receiverBalance, err := l.Balance(ctx, params.SeasonID, trade.ReceiverActorID)
	if err != nil {
		return nil, err
	}
	if receiverBalance.Get(trade.AskResource) < trade.AskAmount {
		return nil, insufficientBalanceError(trade.ReceiverActorID, trade.AskResource, receiverBalance.Get(trade.AskResource), trade.AskAmount)
	}

	accepted, err := json.Marshal(event.TradeResolvedPayload{TradeID: trade.TradeID})
	if err != nil {
		return nil, fmt.Errorf("encode acceptance payload: %w", err)
	}
	batch := []event.Event{{
		SeasonID:    params.SeasonID,
		Type:        event.TypeTradeAccepted,
		Round:       params.Round,
		ActorType:   event.ActorTypeActor,
		ActorID:     trade.ReceiverActorID,
		TeamID:      params.ReceiverTeamID,
		EntityType:  "trade",
		EntityID:    trade.TradeID,
		PayloadJSON: accepted,
	}}

	adjustments := []struct {
		eventType event.Type
		actorID   string
		teamID    string
		resource  Resource
		amount    int
	}{
		{event.TypeTokenSpent, trade.OffererActorID, trade.OffererTeamID, trade.OfferResource, trade.OfferAmount},
		{event.TypeTokenGranted, trade.ReceiverActorID, params.ReceiverTeamID, trade.OfferResource, trade.OfferAmount},
		{event.TypeTokenSpent, trade.ReceiverActorID, params.ReceiverTeamID, trade.AskResource, trade.AskAmount},
		{event.TypeTokenGranted, trade.OffererActorID, trade.OffererTeamID, trade.AskResource, trade.AskAmount},
	}
	for _, adj := range adjustments {
		payload, err := json.Marshal(event.TokenAdjustedPayload{
			Resource: string(adj.resource),
			Amount:   adj.amount,
			Reason:   "trade",
		})
		if err != nil {
			return nil, fmt.Errorf("encode trade adjustment: %w", err)
		}
		batch = append(batch, event.Event{
			SeasonID:    params.SeasonID,
			Type:        adj.eventType,
			Round:       params.Round,
			RequestID:   trade.TradeID,
			ActorType:   event.ActorTypeActor,
			ActorID:     adj.actorID,
			TeamID:      adj.teamID,
			PayloadJSON: payload,
		})
	}

	stored, err := l.store.BatchAppendEvents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("append trade acceptance: %w", err)
	}
	return stored, nil
}

// Decline rejects a pending trade without touching balances.
func (l *Ledger) Decline(ctx context.Context, seasonID, tradeID string, round int) (event.Event, error) {
	trade, err := l.GetTrade(ctx, seasonID, tradeID)
	if err != nil {
		return event.Event{}, err
	}
	if trade.Status != TradeStatusPending {
		return event.Event{}, tradeNotPendingError(trade)
	}

	payload, err := json.Marshal(event.TradeResolvedPayload{TradeID: trade.TradeID})
	if err != nil {
		return event.Event{}, fmt.Errorf("encode decline payload: %w", err)
	}
	stored, err := l.store.AppendEvent(ctx, event.Event{
		SeasonID:    seasonID,
		Type:        event.TypeTradeDeclined,
		Round:       round,
		ActorType:   event.ActorTypeActor,
		ActorID:     trade.ReceiverActorID,
		EntityType:  "trade",
		EntityID:    trade.TradeID,
		PayloadJSON: payload,
	})
	if err != nil {
		return event.Event{}, fmt.Errorf("append decline: %w", err)
	}
	return stored, nil
}

func tradeNotPendingError(trade Trade) error {
	return apperrors.WithMetadata(apperrors.CodeTradeNotPending,
		fmt.Sprintf("trade %s is %s, not pending", trade.TradeID, trade.Status),
		map[string]string{
			"trade_id": trade.TradeID,
			"status":   string(trade.Status),
		},
	)
}
