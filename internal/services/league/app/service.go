// Package app wires the governance core together and runs its process
// lifecycle: journal store, ledger, rule config, effect registry, proposal
// lifecycle, season calendar, and the interpretation reconciler.
package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	apperrors "github.com/hardwoodsim/league/internal/platform/errors"
	"github.com/hardwoodsim/league/internal/platform/id"
	"github.com/hardwoodsim/league/internal/services/league/domain/effect"
	"github.com/hardwoodsim/league/internal/services/league/domain/event"
	"github.com/hardwoodsim/league/internal/services/league/domain/meta"
	"github.com/hardwoodsim/league/internal/services/league/domain/proposal"
	"github.com/hardwoodsim/league/internal/services/league/domain/replay"
	"github.com/hardwoodsim/league/internal/services/league/domain/ruleset"
	"github.com/hardwoodsim/league/internal/services/league/domain/season"
	"github.com/hardwoodsim/league/internal/services/league/domain/token"
	"github.com/hardwoodsim/league/internal/services/league/interpret"
	"github.com/hardwoodsim/league/internal/services/league/storage"
)

// Service bundles the governance core for one season journal. Construction
// replays the journal so the in-memory rule config and effect index match
// what the events say.
type Service struct {
	Store      storage.EventStore
	Ledger     *token.Ledger
	Catalog    *ruleset.Catalog
	Config     *ruleset.Config
	Effects    *effect.Registry
	Meta       *meta.Store
	Lifecycle  *proposal.Lifecycle
	Season     *season.Manager
	Reconciler *interpret.Reconciler

	interpreter interpret.Interpreter
	classifier  interpret.Classifier
	seasonID    string
}

// ServiceParams wire a Service.
type ServiceParams struct {
	Store    storage.EventStore
	SeasonID string
	// Interpreter defaults to interpret.Unavailable, which parks every
	// submission on the deferred retry path.
	Interpreter interpret.Interpreter
	// Classifier may be nil; classification fails open.
	Classifier interpret.Classifier
	// MaxPendingAge bounds how long an interpretation stays pending before the
	// reconciler voids the proposal and refunds the debit.
	MaxPendingAge time.Duration
	IDGenerator   func() (string, error)
}

// NewService builds the core and rebuilds derived state from the journal.
func NewService(ctx context.Context, params ServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	seasonID := strings.TrimSpace(params.SeasonID)
	if seasonID == "" {
		return nil, apperrors.New(apperrors.CodeSeasonEmptyID, "season id is required")
	}
	idGenerator := params.IDGenerator
	if idGenerator == nil {
		idGenerator = id.NewID
	}
	interpreter := params.Interpreter
	if interpreter == nil {
		interpreter = interpret.Unavailable{}
	}

	catalog, err := ruleset.LoadCatalog()
	if err != nil {
		return nil, fmt.Errorf("load parameter catalog: %w", err)
	}
	ruleEvents, err := replay.Collect(ctx, params.Store, seasonID, storage.EventFilter{
		Types: []event.Type{event.TypeRuleChanged},
	})
	if err != nil {
		return nil, fmt.Errorf("replay rule changes: %w", err)
	}
	config, err := ruleset.Rebuild(catalog, ruleEvents)
	if err != nil {
		return nil, fmt.Errorf("rebuild rule config: %w", err)
	}

	effects, err := effect.NewRegistry(params.Store, idGenerator, seasonID)
	if err != nil {
		return nil, err
	}
	if err := effects.Rebuild(ctx); err != nil {
		return nil, fmt.Errorf("rebuild effect registry: %w", err)
	}

	ledger := token.NewLedger(params.Store, idGenerator)
	lifecycle, err := proposal.NewLifecycle(proposal.Params{
		Store:       params.Store,
		Ledger:      ledger,
		Catalog:     catalog,
		Config:      config,
		Effects:     effects,
		IDGenerator: idGenerator,
		SeasonID:    seasonID,
	})
	if err != nil {
		return nil, err
	}
	seasons, err := season.NewManager(season.Params{
		Store:    params.Store,
		Config:   config,
		Effects:  effects,
		SeasonID: seasonID,
	})
	if err != nil {
		return nil, err
	}
	reconciler, err := interpret.NewReconciler(interpret.ReconcilerParams{
		Store:       params.Store,
		Interpreter: interpreter,
		Config:      config,
		Catalog:     catalog,
		SeasonID:    seasonID,
		MaxAge:      params.MaxPendingAge,
	})
	if err != nil {
		return nil, err
	}

	return &Service{
		Store:       params.Store,
		Ledger:      ledger,
		Catalog:     catalog,
		Config:      config,
		Effects:     effects,
		Meta:        meta.NewStore(),
		Lifecycle:   lifecycle,
		Season:      seasons,
		Reconciler:  reconciler,
		interpreter: interpreter,
		classifier:  params.Classifier,
		seasonID:    seasonID,
	}, nil
}

// SubmitRequest carries raw proposal text into the intake pipeline.
type SubmitRequest struct {
	Round    int
	WindowID string
	ActorID  string
	TeamID   string
	RawText  string
}

// SubmitProposal runs the full intake pipeline: sanitize, pre-flight
// classification, synchronous interpretation, and the journaled submission.
// Interpreter failures park the proposal for the reconciler instead of
// failing the intake.
func (s *Service) SubmitProposal(ctx context.Context, req SubmitRequest) (proposal.Proposal, error) {
	sanitized := interpret.Sanitize(req.RawText)
	if sanitized == "" {
		return proposal.Proposal{}, apperrors.New(apperrors.CodeProposalTextEmpty, "proposal text is empty")
	}

	classification := interpret.ClassifySafe(ctx, s.classifier, sanitized)
	if classification.Label != interpret.LabelLegitimate {
		log.Printf("[GOVERNANCE] classifier flagged submission by %s as %s (%.2f)",
			req.ActorID, classification.Label, classification.Confidence)
	}

	params := proposal.SubmitParams{
		Round:    req.Round,
		WindowID: req.WindowID,
		ActorID:  req.ActorID,
		TeamID:   req.TeamID,
		RawText:  req.RawText,
	}
	result, err := s.interpreter.Interpret(ctx, sanitized, s.Config)
	switch {
	case err != nil:
		log.Printf("[GOVERNANCE] interpretation failed, deferring: %v", err)
		params.InterpretationError = err.Error()
	case result.InjectionFlagged || result.RejectionReason != "":
		reason := result.RejectionReason
		if reason == "" {
			reason = "injection flagged"
		}
		return proposal.Proposal{}, apperrors.WithMetadata(apperrors.CodeInterpretationRejected,
			fmt.Sprintf("interpretation rejected: %s", reason),
			map[string]string{"reason": reason},
		)
	case result.Fallback || result.Interpretation == nil:
		params.InterpretationError = "interpreter returned a fallback response"
	case interpret.ValidateInterpretation(result.Interpretation) != nil:
		params.InterpretationError = "interpreter output failed schema validation"
	default:
		params.Interpretation = result.Interpretation
		params.Confidence = result.Confidence
	}

	return s.Lifecycle.Submit(ctx, params)
}

// HookEffects returns the effects live at a hook for a simulation consumer,
// seeding the condition input with the entity's meta attributes.
func (s *Service) HookEffects(ctx context.Context, hook string, teamID string, entity meta.EntityKey) ([]effect.Effect, error) {
	round, err := s.Season.CurrentRound(ctx)
	if err != nil {
		return nil, err
	}
	return s.Effects.EffectsForHook(hook, effect.ConditionInput{
		Round:  round,
		TeamID: teamID,
		Meta:   s.Meta.Entity(entity.EntityType, entity.EntityID),
	}), nil
}
