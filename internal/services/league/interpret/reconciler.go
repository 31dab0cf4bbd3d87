package interpret

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hardwoodsim/league/internal/services/league/domain/event"
	"github.com/hardwoodsim/league/internal/services/league/domain/replay"
	"github.com/hardwoodsim/league/internal/services/league/domain/ruleset"
	"github.com/hardwoodsim/league/internal/services/league/domain/token"
	"github.com/hardwoodsim/league/internal/services/league/storage"
)

// DefaultMaxPendingAge is the ceiling after which a stuck interpretation is
// force-expired and its debit refunded.
const DefaultMaxPendingAge = 24 * time.Hour

// Reconciler repairs partial failures of the interpretation dependency. Each
// pass retries pending interpretations and expires anything older than the
// age ceiling with a compensating refund. Passes are idempotent: an item
// with a ready or expired counterpart is never touched again.
type Reconciler struct {
	store       storage.EventStore
	interpreter Interpreter
	config      *ruleset.Config
	catalog     *ruleset.Catalog
	seasonID    string
	maxAge      time.Duration
	now         func() time.Time
}

// ReconcilerParams wire a Reconciler.
type ReconcilerParams struct {
	Store       storage.EventStore
	Interpreter Interpreter
	Config      *ruleset.Config
	Catalog     *ruleset.Catalog
	SeasonID    string
	// MaxAge overrides DefaultMaxPendingAge when positive.
	MaxAge time.Duration
}

// NewReconciler creates a reconciler for one season journal.
func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	if params.Store == nil || params.Interpreter == nil || params.Config == nil || params.Catalog == nil {
		return nil, fmt.Errorf("store, interpreter, config, and catalog are required")
	}
	if strings.TrimSpace(params.SeasonID) == "" {
		return nil, fmt.Errorf("season id is required")
	}
	maxAge := params.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxPendingAge
	}
	return &Reconciler{
		store:       params.Store,
		interpreter: params.Interpreter,
		config:      params.Config,
		catalog:     params.Catalog,
		seasonID:    params.SeasonID,
		maxAge:      maxAge,
		now:         time.Now,
	}, nil
}

// Stats summarize one reconciliation pass.
type Stats struct {
	Retried int
	Ready   int
	Expired int
}

// Reconcile runs one pass: find pending interpretations with no counterpart,
// retry them, and expire the ones past the age ceiling with a refund.
func (r *Reconciler) Reconcile(ctx context.Context) (Stats, error) {
	var stats Stats

	events, err := replay.Collect(ctx, r.store, r.seasonID, storage.EventFilter{
		Types: []event.Type{
			event.TypeInterpretationPending,
			event.TypeInterpretationReady,
			event.TypeInterpretationExpired,
		},
	})
	if err != nil {
		return stats, fmt.Errorf("replay interpretation events: %w", err)
	}

	pending := make(map[string]event.Event)
	order := make([]string, 0)
	resolved := make(map[string]bool)
	for _, evt := range events {
		proposalID := evt.EntityID
		switch evt.Type {
		case event.TypeInterpretationPending:
			if _, seen := pending[proposalID]; !seen {
				order = append(order, proposalID)
			}
			pending[proposalID] = evt
		case event.TypeInterpretationReady, event.TypeInterpretationExpired:
			resolved[proposalID] = true
		}
	}

	now := r.now().UTC()
	for _, proposalID := range order {
		if resolved[proposalID] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		pendingEvt := pending[proposalID]
		if now.Sub(pendingEvt.Timestamp) > r.maxAge {
			if err := r.expire(ctx, pendingEvt); err != nil {
				return stats, err
			}
			stats.Expired++
			continue
		}

		stats.Retried++
		if r.retry(ctx, pendingEvt) {
			stats.Ready++
		}
	}
	return stats, nil
}

// retry re-invokes the interpreter for one pending proposal. Failures and
// degraded responses leave the item pending for the next pass.
func (r *Reconciler) retry(ctx context.Context, pendingEvt event.Event) bool {
	proposalID := pendingEvt.EntityID
	submitted, err := r.submission(ctx, proposalID)
	if err != nil {
		log.Printf("[RECONCILER] skipping %s: %v", proposalID, err)
		return false
	}

	result, err := r.interpreter.Interpret(ctx, submitted.SanitizedText, r.config)
	if err != nil {
		log.Printf("[RECONCILER] retry for %s failed: %v", proposalID, err)
		return false
	}
	if result.Fallback || result.RejectionReason != "" || result.Interpretation == nil {
		log.Printf("[RECONCILER] retry for %s returned a degraded response, leaving pending", proposalID)
		return false
	}
	if err := ValidateInterpretation(result.Interpretation); err != nil {
		log.Printf("[RECONCILER] retry for %s returned invalid output: %v", proposalID, err)
		return false
	}
	if result.Interpretation.Kind == "parameter" {
		if _, err := r.config.Validate(ruleset.Change{
			Parameter: result.Interpretation.Parameter,
			NewValue:  result.Interpretation.NewValue,
		}); err != nil {
			log.Printf("[RECONCILER] retry for %s proposed an invalid value: %v", proposalID, err)
			return false
		}
	}

	tier := ruleset.MaxTier
	if result.Interpretation.Kind == "parameter" {
		tier = r.catalog.TierFor(result.Interpretation.Parameter)
	}
	payload, err := json.Marshal(event.InterpretationReadyPayload{
		ProposalID:     proposalID,
		Interpretation: result.Interpretation,
		Confidence:     result.Confidence,
		Tier:           tier,
	})
	if err != nil {
		log.Printf("[RECONCILER] encode ready payload for %s: %v", proposalID, err)
		return false
	}
	if _, err := r.store.AppendEvent(ctx, event.Event{
		SeasonID:    r.seasonID,
		Type:        event.TypeInterpretationReady,
		Round:       pendingEvt.Round,
		RequestID:   proposalID,
		ActorType:   event.ActorTypeSystem,
		EntityType:  "proposal",
		EntityID:    proposalID,
		PayloadJSON: payload,
	}); err != nil {
		log.Printf("[RECONCILER] append ready for %s: %v", proposalID, err)
		return false
	}
	return true
}

// expire voids a stuck proposal: the expiry, the compensating refund, and the
// cancellation land in one batch so no token is ever lost to an unreachable
// interpreter.
func (r *Reconciler) expire(ctx context.Context, pendingEvt event.Event) error {
	proposalID := pendingEvt.EntityID
	submitted, err := r.submission(ctx, proposalID)
	if err != nil {
		return err
	}

	expiredPayload, err := json.Marshal(event.InterpretationExpiredPayload{
		ProposalID:     proposalID,
		PendingSeq:     pendingEvt.Seq,
		RefundResource: string(token.ResourcePropose),
		RefundAmount:   submitted.TokenCost,
	})
	if err != nil {
		return fmt.Errorf("encode expiry payload: %w", err)
	}
	refundPayload, err := json.Marshal(event.TokenAdjustedPayload{
		Resource: string(token.ResourcePropose),
		Amount:   submitted.TokenCost,
		Reason:   "interpretation_expired",
		RefundOf: proposalID,
	})
	if err != nil {
		return fmt.Errorf("encode refund payload: %w", err)
	}
	cancelledPayload, err := json.Marshal(event.ProposalCancelledPayload{
		ProposalID: proposalID,
		Refunded:   true,
		Reason:     "interpretation_expired",
	})
	if err != nil {
		return fmt.Errorf("encode cancellation payload: %w", err)
	}

	if _, err := r.store.BatchAppendEvents(ctx, []event.Event{
		{
			SeasonID:    r.seasonID,
			Type:        event.TypeInterpretationExpired,
			Round:       pendingEvt.Round,
			RequestID:   proposalID,
			ActorType:   event.ActorTypeSystem,
			EntityType:  "proposal",
			EntityID:    proposalID,
			PayloadJSON: expiredPayload,
		},
		{
			SeasonID:    r.seasonID,
			Type:        event.TypeTokenRegenerated,
			Round:       pendingEvt.Round,
			RequestID:   proposalID,
			ActorType:   event.ActorTypeSystem,
			ActorID:     submitted.ActorID,
			TeamID:      submitted.TeamID,
			PayloadJSON: refundPayload,
		},
		{
			SeasonID:    r.seasonID,
			Type:        event.TypeProposalCancelled,
			Round:       pendingEvt.Round,
			RequestID:   proposalID,
			ActorType:   event.ActorTypeSystem,
			EntityType:  "proposal",
			EntityID:    proposalID,
			PayloadJSON: cancelledPayload,
		},
	}); err != nil {
		return fmt.Errorf("append expiry for %s: %w", proposalID, err)
	}
	return nil
}

type submissionView struct {
	ActorID       string
	TeamID        string
	SanitizedText string
	TokenCost     int
}

// submission loads the original proposal.submitted event for a proposal.
func (r *Reconciler) submission(ctx context.Context, proposalID string) (submissionView, error) {
	events, err := r.store.ListEventsFiltered(ctx, r.seasonID, storage.EventFilter{
		Types:      []event.Type{event.TypeProposalSubmitted},
		EntityType: "proposal",
		EntityID:   proposalID,
	}, 0, 1)
	if err != nil {
		return submissionView{}, fmt.Errorf("find submission for %s: %w", proposalID, err)
	}
	if len(events) == 0 {
		return submissionView{}, fmt.Errorf("no submission event for %s", proposalID)
	}

	var payload event.ProposalSubmittedPayload
	if err := json.Unmarshal(events[0].PayloadJSON, &payload); err != nil {
		return submissionView{}, fmt.Errorf("decode submission for %s: %w", proposalID, err)
	}
	return submissionView{
		ActorID:       events[0].ActorID,
		TeamID:        events[0].TeamID,
		SanitizedText: payload.SanitizedText,
		TokenCost:     payload.TokenCost,
	}, nil
}

// Run executes Reconcile on a fixed interval until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("[RECONCILER] polling every %s", interval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			stats, err := r.Reconcile(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("[RECONCILER] pass failed: %v", err)
				continue
			}
			if stats.Retried > 0 || stats.Expired > 0 {
				log.Printf("[RECONCILER] retried=%d ready=%d expired=%d", stats.Retried, stats.Ready, stats.Expired)
			}
		}
	}
}
