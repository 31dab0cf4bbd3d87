package proposal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/hardwoodsim/league/internal/platform/errors"
	"github.com/hardwoodsim/league/internal/services/league/domain/effect"
	"github.com/hardwoodsim/league/internal/services/league/domain/event"
	"github.com/hardwoodsim/league/internal/services/league/domain/replay"
	"github.com/hardwoodsim/league/internal/services/league/domain/ruleset"
	"github.com/hardwoodsim/league/internal/services/league/domain/token"
	"github.com/hardwoodsim/league/internal/services/league/interpret"
	"github.com/hardwoodsim/league/internal/services/league/storage"
)

// Lifecycle sequences proposals through submission, voting, tallying, and
// enactment for one season. Every transition appends to the journal; the
// lifecycle holds no authoritative state of its own.
type Lifecycle struct {
	store       storage.EventStore
	ledger      *token.Ledger
	catalog     *ruleset.Catalog
	config      *ruleset.Config
	effects     *effect.Registry
	idGenerator func() (string, error)
	seasonID    string
}

// Params wire a Lifecycle.
type Params struct {
	Store       storage.EventStore
	Ledger      *token.Ledger
	Catalog     *ruleset.Catalog
	Config      *ruleset.Config
	Effects     *effect.Registry
	IDGenerator func() (string, error)
	SeasonID    string
}

// NewLifecycle creates a lifecycle bound to one season journal.
func NewLifecycle(params Params) (*Lifecycle, error) {
	if strings.TrimSpace(params.SeasonID) == "" {
		return nil, apperrors.New(apperrors.CodeSeasonEmptyID, "season id is required")
	}
	if params.Store == nil || params.Ledger == nil || params.Catalog == nil || params.Config == nil || params.Effects == nil {
		return nil, fmt.Errorf("store, ledger, catalog, config, and effects are required")
	}
	if params.IDGenerator == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	return &Lifecycle{
		store:       params.Store,
		ledger:      params.Ledger,
		catalog:     params.Catalog,
		config:      params.Config,
		effects:     params.Effects,
		idGenerator: params.IDGenerator,
		seasonID:    params.SeasonID,
	}, nil
}

// Get rebuilds a proposal's derived view from its events.
func (l *Lifecycle) Get(ctx context.Context, proposalID string) (Proposal, error) {
	if strings.TrimSpace(proposalID) == "" {
		return Proposal{}, fmt.Errorf("proposal id is required")
	}
	events, err := replay.Collect(ctx, l.store, l.seasonID, storage.EventFilter{
		EntityType: "proposal",
		EntityID:   proposalID,
	})
	if err != nil {
		return Proposal{}, fmt.Errorf("replay proposal events: %w", err)
	}

	view, err := replay.FoldErr(events, Proposal{Status: StatusDraft}, foldProposal)
	if err != nil {
		return Proposal{}, err
	}
	if view.ProposalID == "" {
		return Proposal{}, apperrors.WithMetadata(apperrors.CodeProposalNotFound,
			fmt.Sprintf("proposal %s not found", proposalID),
			map[string]string{"proposal_id": proposalID},
		)
	}
	return view, nil
}

func foldProposal(view Proposal, evt event.Event) (Proposal, error) {
	switch evt.Type {
	case event.TypeProposalSubmitted:
		var payload event.ProposalSubmittedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return view, fmt.Errorf("decode submission: %w", err)
		}
		return Proposal{
			ProposalID:     payload.ProposalID,
			SeasonID:       evt.SeasonID,
			ActorID:        evt.ActorID,
			TeamID:         evt.TeamID,
			WindowID:       payload.WindowID,
			RawText:        payload.RawText,
			SanitizedText:  payload.SanitizedText,
			Tier:           payload.Tier,
			TokenCost:      payload.TokenCost,
			Status:         StatusSubmitted,
			SubmittedRound: evt.Round,
		}, nil
	case event.TypeInterpretationReady:
		var payload event.InterpretationReadyPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return view, fmt.Errorf("decode interpretation: %w", err)
		}
		view.Interpretation = payload.Interpretation
		if payload.Tier > 0 {
			view.Tier = payload.Tier
		}
		return view, nil
	case event.TypeProposalConfirmed:
		view.Status = StatusConfirmed
		return view, nil
	case event.TypeProposalAmended:
		var payload event.ProposalAmendedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return view, fmt.Errorf("decode amendment: %w", err)
		}
		view.Interpretation = payload.Interpretation
		view.Tier = payload.Tier
		view.Status = StatusAmended
		return view, nil
	case event.TypeVoteCast:
		if view.Status.votable() {
			view.Status = StatusVoting
		}
		return view, nil
	case event.TypeProposalCancelled:
		view.Status = StatusCancelled
		return view, nil
	case event.TypeProposalPassed:
		view.Status = StatusPassed
		return view, nil
	case event.TypeProposalFailed:
		view.Status = StatusFailed
		return view, nil
	}
	return view, nil
}

// SubmitParams carry a sanitize-and-intake request. Interpretation is the
// synchronous interpreter outcome when one arrived; a nil interpretation
// parks the proposal for the deferred retry path.
type SubmitParams struct {
	Round    int
	WindowID string
	ActorID  string
	TeamID   string
	RawText  string
	// Interpretation and Confidence come from a successful synchronous
	// interpretation.
	Interpretation *event.Interpretation
	Confidence     float64
	// InterpretationError notes why the synchronous attempt failed.
	InterpretationError string
}

// Submit sanitizes the text, detects the tier, debits the propose cost, and
// journals the submission in one batch. The debit, the submission, and the
// interpretation outcome land atomically.
func (l *Lifecycle) Submit(ctx context.Context, params SubmitParams) (Proposal, error) {
	sanitized := interpret.Sanitize(params.RawText)
	if sanitized == "" {
		return Proposal{}, apperrors.New(apperrors.CodeProposalTextEmpty, "proposal text is empty")
	}
	actorID := strings.TrimSpace(params.ActorID)
	if actorID == "" {
		return Proposal{}, fmt.Errorf("actor id is required")
	}

	tier := TierOf(l.catalog, params.Interpretation)
	cost := CostForTier(tier)
	if err := l.checkBalance(ctx, actorID, token.ResourcePropose, cost); err != nil {
		return Proposal{}, err
	}

	proposalID, err := l.idGenerator()
	if err != nil {
		return Proposal{}, fmt.Errorf("generate proposal id: %w", err)
	}

	spend, err := tokenEvent(event.TypeTokenSpent, l.seasonID, params.Round, actorID, params.TeamID,
		event.TokenAdjustedPayload{
			Resource: string(token.ResourcePropose),
			Amount:   cost,
			Reason:   "submission",
		})
	if err != nil {
		return Proposal{}, err
	}
	spend.RequestID = proposalID
	spend.WindowID = params.WindowID

	submittedPayload, err := json.Marshal(event.ProposalSubmittedPayload{
		ProposalID:    proposalID,
		RawText:       params.RawText,
		SanitizedText: sanitized,
		Tier:          tier,
		TokenCost:     cost,
		WindowID:      params.WindowID,
	})
	if err != nil {
		return Proposal{}, fmt.Errorf("encode submission payload: %w", err)
	}
	batch := []event.Event{spend, {
		SeasonID:    l.seasonID,
		Type:        event.TypeProposalSubmitted,
		Round:       params.Round,
		WindowID:    params.WindowID,
		RequestID:   proposalID,
		ActorType:   event.ActorTypeActor,
		ActorID:     actorID,
		TeamID:      params.TeamID,
		EntityType:  "proposal",
		EntityID:    proposalID,
		PayloadJSON: submittedPayload,
	}}

	if params.Interpretation != nil {
		ready, err := json.Marshal(event.InterpretationReadyPayload{
			ProposalID:     proposalID,
			Interpretation: params.Interpretation,
			Confidence:     params.Confidence,
			Tier:           tier,
		})
		if err != nil {
			return Proposal{}, fmt.Errorf("encode interpretation payload: %w", err)
		}
		batch = append(batch, event.Event{
			SeasonID:    l.seasonID,
			Type:        event.TypeInterpretationReady,
			Round:       params.Round,
			RequestID:   proposalID,
			ActorType:   event.ActorTypeSystem,
			EntityType:  "proposal",
			EntityID:    proposalID,
			PayloadJSON: ready,
		})
	} else {
		pending, err := json.Marshal(event.InterpretationPendingPayload{
			ProposalID: proposalID,
			Attempts:   1,
			LastError:  params.InterpretationError,
		})
		if err != nil {
			return Proposal{}, fmt.Errorf("encode pending payload: %w", err)
		}
		batch = append(batch, event.Event{
			SeasonID:    l.seasonID,
			Type:        event.TypeInterpretationPending,
			Round:       params.Round,
			RequestID:   proposalID,
			ActorType:   event.ActorTypeSystem,
			EntityType:  "proposal",
			EntityID:    proposalID,
			PayloadJSON: pending,
		})
	}

	if _, err := l.store.BatchAppendEvents(ctx, batch); err != nil {
		return Proposal{}, fmt.Errorf("append submission: %w", err)
	}

	return Proposal{
		ProposalID:     proposalID,
		SeasonID:       l.seasonID,
		ActorID:        actorID,
		TeamID:         params.TeamID,
		WindowID:       params.WindowID,
		RawText:        params.RawText,
		SanitizedText:  sanitized,
		Interpretation: params.Interpretation,
		Tier:           tier,
		TokenCost:      cost,
		Status:         StatusSubmitted,
		SubmittedRound: params.Round,
	}, nil
}

// Confirm records the proposer approving the interpreted effect.
func (l *Lifecycle) Confirm(ctx context.Context, proposalID string, round int, actorID string) (Proposal, error) {
	view, err := l.Get(ctx, proposalID)
	if err != nil {
		return Proposal{}, err
	}
	if view.Status != StatusSubmitted && view.Status != StatusAmended {
		return Proposal{}, invalidTransitionError(view, "confirm")
	}
	if view.Interpretation == nil {
		return Proposal{}, notInterpretedError(proposalID)
	}

	payload, err := json.Marshal(event.ProposalConfirmedPayload{ProposalID: proposalID})
	if err != nil {
		return Proposal{}, fmt.Errorf("encode confirmation payload: %w", err)
	}
	if _, err := l.store.AppendEvent(ctx, event.Event{
		SeasonID:    l.seasonID,
		Type:        event.TypeProposalConfirmed,
		Round:       round,
		WindowID:    view.WindowID,
		ActorType:   event.ActorTypeActor,
		ActorID:     actorID,
		TeamID:      view.TeamID,
		EntityType:  "proposal",
		EntityID:    proposalID,
		PayloadJSON: payload,
	}); err != nil {
		return Proposal{}, fmt.Errorf("append confirmation: %w", err)
	}
	view.Status = StatusConfirmed
	return view, nil
}

// AmendParams replace a proposal's interpretation at the cost of an amend
// token.
type AmendParams struct {
	ProposalID     string
	Round          int
	ActorID        string
	Interpretation *event.Interpretation
}

// Amend debits an amend token and replaces the interpretation in place. The
// tier is re-detected from the new interpretation.
func (l *Lifecycle) Amend(ctx context.Context, params AmendParams) (Proposal, error) {
	if params.Interpretation == nil {
		return Proposal{}, apperrors.New(apperrors.CodeInterpretationInvalid,
			"amendment requires a replacement interpretation")
	}
	view, err := l.Get(ctx, params.ProposalID)
	if err != nil {
		return Proposal{}, err
	}
	if view.Status != StatusSubmitted && view.Status != StatusConfirmed {
		return Proposal{}, invalidTransitionError(view, "amend")
	}
	actorID := strings.TrimSpace(params.ActorID)
	if actorID == "" {
		actorID = view.ActorID
	}
	if err := l.checkBalance(ctx, actorID, token.ResourceAmend, 1); err != nil {
		return Proposal{}, err
	}

	tier := TierOf(l.catalog, params.Interpretation)
	spend, err := tokenEvent(event.TypeTokenSpent, l.seasonID, params.Round, actorID, view.TeamID,
		event.TokenAdjustedPayload{
			Resource: string(token.ResourceAmend),
			Amount:   1,
			Reason:   "amendment",
		})
	if err != nil {
		return Proposal{}, err
	}
	spend.RequestID = params.ProposalID

	amended, err := json.Marshal(event.ProposalAmendedPayload{
		ProposalID:     params.ProposalID,
		Interpretation: params.Interpretation,
		Tier:           tier,
	})
	if err != nil {
		return Proposal{}, fmt.Errorf("encode amendment payload: %w", err)
	}
	if _, err := l.store.BatchAppendEvents(ctx, []event.Event{spend, {
		SeasonID:    l.seasonID,
		Type:        event.TypeProposalAmended,
		Round:       params.Round,
		WindowID:    view.WindowID,
		ActorType:   event.ActorTypeActor,
		ActorID:     actorID,
		TeamID:      view.TeamID,
		EntityType:  "proposal",
		EntityID:    params.ProposalID,
		PayloadJSON: amended,
	}}); err != nil {
		return Proposal{}, fmt.Errorf("append amendment: %w", err)
	}

	view.Interpretation = params.Interpretation
	view.Tier = tier
	view.Status = StatusAmended
	return view, nil
}

// Cancel withdraws a proposal before its tally. Submissions cancelled before
// any vote get their propose tokens back; once voting started, the stake is
// forfeit.
func (l *Lifecycle) Cancel(ctx context.Context, proposalID string, round int, reason string) (Proposal, error) {
	view, err := l.Get(ctx, proposalID)
	if err != nil {
		return Proposal{}, err
	}
	if !view.Status.votable() {
		return Proposal{}, invalidTransitionError(view, "cancel")
	}
	refund := view.Status != StatusVoting && view.TokenCost > 0

	cancelled, err := json.Marshal(event.ProposalCancelledPayload{
		ProposalID: proposalID,
		Refunded:   refund,
		Reason:     reason,
	})
	if err != nil {
		return Proposal{}, fmt.Errorf("encode cancellation payload: %w", err)
	}
	batch := []event.Event{{
		SeasonID:    l.seasonID,
		Type:        event.TypeProposalCancelled,
		Round:       round,
		WindowID:    view.WindowID,
		ActorType:   event.ActorTypeActor,
		ActorID:     view.ActorID,
		TeamID:      view.TeamID,
		EntityType:  "proposal",
		EntityID:    proposalID,
		PayloadJSON: cancelled,
	}}
	if refund {
		regenerated, err := tokenEvent(event.TypeTokenRegenerated, l.seasonID, round, view.ActorID, view.TeamID,
			event.TokenAdjustedPayload{
				Resource: string(token.ResourcePropose),
				Amount:   view.TokenCost,
				Reason:   "cancellation_refund",
				RefundOf: proposalID,
			})
		if err != nil {
			return Proposal{}, err
		}
		batch = append(batch, regenerated)
	}

	if _, err := l.store.BatchAppendEvents(ctx, batch); err != nil {
		return Proposal{}, fmt.Errorf("append cancellation: %w", err)
	}
	view.Status = StatusCancelled
	return view, nil
}

// VoteParams carry one weighted vote.
type VoteParams struct {
	ProposalID string
	Round      int
	ActorID    string
	TeamID     string
	Choice     string
	// UseBoost doubles the vote weight at the cost of a boost token.
	UseBoost bool
	// ActiveVotersOnTeam splits one unit of team voice equally.
	ActiveVotersOnTeam int
}

// CastVote journals a weighted vote. Re-votes are legal at the log level;
// the tally keeps only each actor's latest vote.
func (l *Lifecycle) CastVote(ctx context.Context, params VoteParams) (float64, error) {
	choice := strings.ToLower(strings.TrimSpace(params.Choice))
	if choice != "yes" && choice != "no" {
		return 0, apperrors.WithMetadata(apperrors.CodeVoteInvalidChoice,
			fmt.Sprintf("vote choice must be yes or no, got %q", params.Choice),
			map[string]string{"choice": params.Choice},
		)
	}
	if params.ActiveVotersOnTeam < 1 {
		return 0, fmt.Errorf("active voters on team must be at least 1, got %d", params.ActiveVotersOnTeam)
	}

	view, err := l.Get(ctx, params.ProposalID)
	if err != nil {
		return 0, err
	}
	if !view.Status.votable() {
		return 0, apperrors.WithMetadata(apperrors.CodeVoteWindowClosed,
			fmt.Sprintf("proposal %s is %s, voting is closed", params.ProposalID, view.Status),
			map[string]string{"proposal_id": params.ProposalID, "status": string(view.Status)},
		)
	}

	weight := 1.0 / float64(params.ActiveVotersOnTeam)
	var batch []event.Event
	if params.UseBoost {
		if err := l.checkBalance(ctx, params.ActorID, token.ResourceBoost, 1); err != nil {
			return 0, err
		}
		weight *= 2
		spend, err := tokenEvent(event.TypeTokenSpent, l.seasonID, params.Round, params.ActorID, params.TeamID,
			event.TokenAdjustedPayload{
				Resource: string(token.ResourceBoost),
				Amount:   1,
				Reason:   "boost",
			})
		if err != nil {
			return 0, err
		}
		spend.RequestID = params.ProposalID
		batch = append(batch, spend)
	}

	votePayload, err := json.Marshal(event.VoteCastPayload{
		ProposalID: params.ProposalID,
		Choice:     choice,
		Weight:     weight,
		BoostUsed:  params.UseBoost,
	})
	if err != nil {
		return 0, fmt.Errorf("encode vote payload: %w", err)
	}
	batch = append(batch, event.Event{
		SeasonID:    l.seasonID,
		Type:        event.TypeVoteCast,
		Round:       params.Round,
		WindowID:    view.WindowID,
		ActorType:   event.ActorTypeActor,
		ActorID:     params.ActorID,
		TeamID:      params.TeamID,
		EntityType:  "proposal",
		EntityID:    params.ProposalID,
		PayloadJSON: votePayload,
	})

	if _, err := l.store.BatchAppendEvents(ctx, batch); err != nil {
		return 0, fmt.Errorf("append vote: %w", err)
	}
	return weight, nil
}

// TallyResult summarizes a completed tally.
type TallyResult struct {
	Passed      bool
	YesWeight   float64
	TotalWeight float64
	Threshold   float64
	// Enacted reports whether a passed tally committed its rule change or
	// registered its effect.
	Enacted bool
	// RolledBack reports that a passed tally was reverted by enactment-time
	// validation and the proposal marked failed.
	RolledBack bool
	// EffectID is set when enactment registered an effect.
	EffectID string
}

// Tally computes pass/fail for a proposal and enacts the outcome. It runs at
// most once per proposal: a terminal status rejects re-entry. A weighted yes
// share exactly at the threshold fails; ties never pass.
func (l *Lifecycle) Tally(ctx context.Context, proposalID string, round int) (TallyResult, error) {
	view, err := l.Get(ctx, proposalID)
	if err != nil {
		return TallyResult{}, err
	}
	if view.Status.IsTerminal() {
		return TallyResult{}, apperrors.WithMetadata(apperrors.CodeProposalAlreadyTallied,
			fmt.Sprintf("proposal %s is already %s", proposalID, view.Status),
			map[string]string{"proposal_id": proposalID, "status": string(view.Status)},
		)
	}
	if view.Interpretation == nil {
		return TallyResult{}, notInterpretedError(proposalID)
	}

	yes, total, err := l.countVotes(ctx, proposalID)
	if err != nil {
		return TallyResult{}, err
	}
	threshold := ThresholdForTier(view.Tier, l.config.Float("vote_base_threshold"))
	passed := total > 0 && yes/total > threshold

	result := TallyResult{
		Passed:      passed,
		YesWeight:   yes,
		TotalWeight: total,
		Threshold:   threshold,
	}
	if !passed {
		if err := l.appendTallyOutcome(ctx, view, round, event.TypeProposalFailed, result, false); err != nil {
			return TallyResult{}, err
		}
		return result, nil
	}

	if err := l.appendTallyOutcome(ctx, view, round, event.TypeProposalPassed, result, false); err != nil {
		return TallyResult{}, err
	}
	return l.enact(ctx, view, round, result)
}

// countVotes folds vote.cast events keeping only each actor's latest vote.
func (l *Lifecycle) countVotes(ctx context.Context, proposalID string) (yes, total float64, err error) {
	events, err := replay.Collect(ctx, l.store, l.seasonID, storage.EventFilter{
		Types:      []event.Type{event.TypeVoteCast},
		EntityType: "proposal",
		EntityID:   proposalID,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("replay votes: %w", err)
	}

	type ballot struct {
		choice string
		weight float64
	}
	latest := make(map[string]ballot, len(events))
	order := make([]string, 0, len(events))
	for _, evt := range events {
		var payload event.VoteCastPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return 0, 0, fmt.Errorf("decode vote seq=%d: %w", evt.Seq, err)
		}
		if _, seen := latest[evt.ActorID]; !seen {
			order = append(order, evt.ActorID)
		}
		latest[evt.ActorID] = ballot{choice: payload.Choice, weight: payload.Weight}
	}
	for _, actorID := range order {
		vote := latest[actorID]
		total += vote.weight
		if vote.choice == "yes" {
			yes += vote.weight
		}
	}
	return yes, total, nil
}

// enact applies a passed proposal: parameter interpretations mutate the rule
// config, anything else registers an effect. An expected validation rejection
// journals a rollback and marks the proposal failed; internal errors abort
// without masking.
func (l *Lifecycle) enact(ctx context.Context, view Proposal, round int, result TallyResult) (TallyResult, error) {
	interp := view.Interpretation
	if interp.Kind == "parameter" {
		applied, err := l.config.Apply(ruleset.Change{
			Parameter:        interp.Parameter,
			NewValue:         interp.NewValue,
			SourceProposalID: view.ProposalID,
			Round:            round,
		})
		if err != nil {
			if !ruleset.IsValidationRejection(err) {
				return TallyResult{}, fmt.Errorf("apply rule change: %w", err)
			}
			if rollbackErr := l.rollback(ctx, view, round, result, err); rollbackErr != nil {
				return TallyResult{}, rollbackErr
			}
			result.RolledBack = true
			return result, nil
		}

		changed, err := json.Marshal(event.RuleChangedPayload{
			Parameter:        applied.Parameter,
			OldValue:         applied.OldValue,
			NewValue:         applied.NewValue,
			SourceProposalID: applied.SourceProposalID,
			RoundEnacted:     applied.RoundEnacted,
			ConfigVersion:    applied.Version,
		})
		if err != nil {
			return TallyResult{}, fmt.Errorf("encode rule change payload: %w", err)
		}
		if _, err := l.store.AppendEvent(ctx, event.Event{
			SeasonID:    l.seasonID,
			Type:        event.TypeRuleChanged,
			Round:       round,
			ActorType:   event.ActorTypeSystem,
			EntityType:  "rule",
			EntityID:    applied.Parameter,
			PayloadJSON: changed,
		}); err != nil {
			return TallyResult{}, fmt.Errorf("append rule change: %w", err)
		}
		result.Enacted = true
		return result, nil
	}

	registered, err := l.effects.Register(ctx, effectParams(view, round))
	if err != nil {
		if !isEffectRejection(err) {
			return TallyResult{}, fmt.Errorf("register effect: %w", err)
		}
		if rollbackErr := l.rollback(ctx, view, round, result, err); rollbackErr != nil {
			return TallyResult{}, rollbackErr
		}
		result.RolledBack = true
		return result, nil
	}
	result.Enacted = true
	result.EffectID = registered.EffectID
	return result, nil
}

// rollback journals the rejection and flips the proposal to failed so the
// system never sits in an ambiguous passed-but-unenacted state.
func (l *Lifecycle) rollback(ctx context.Context, view Proposal, round int, result TallyResult, cause error) error {
	code := apperrors.CodeUnknown
	message := cause.Error()
	var domainErr *apperrors.Error
	if errors.As(cause, &domainErr) {
		code = domainErr.Code
	}

	rolledBack, err := json.Marshal(event.RuleRolledBackPayload{
		Parameter:        view.Interpretation.Parameter,
		AttemptedValue:   view.Interpretation.NewValue,
		SourceProposalID: view.ProposalID,
		RejectionCode:    string(code),
		Message:          message,
	})
	if err != nil {
		return fmt.Errorf("encode rollback payload: %w", err)
	}
	failed, err := json.Marshal(event.ProposalTalliedPayload{
		ProposalID:  view.ProposalID,
		YesWeight:   result.YesWeight,
		TotalWeight: result.TotalWeight,
		Threshold:   result.Threshold,
		RolledBack:  true,
	})
	if err != nil {
		return fmt.Errorf("encode failure payload: %w", err)
	}

	if _, err := l.store.BatchAppendEvents(ctx, []event.Event{
		{
			SeasonID:    l.seasonID,
			Type:        event.TypeRuleRolledBack,
			Round:       round,
			ActorType:   event.ActorTypeSystem,
			EntityType:  "proposal",
			EntityID:    view.ProposalID,
			PayloadJSON: rolledBack,
		},
		{
			SeasonID:    l.seasonID,
			Type:        event.TypeProposalFailed,
			Round:       round,
			WindowID:    view.WindowID,
			ActorType:   event.ActorTypeSystem,
			EntityType:  "proposal",
			EntityID:    view.ProposalID,
			PayloadJSON: failed,
		},
	}); err != nil {
		return fmt.Errorf("append rollback: %w", err)
	}
	return nil
}

func (l *Lifecycle) appendTallyOutcome(ctx context.Context, view Proposal, round int, outcome event.Type, result TallyResult, rolledBack bool) error {
	payload, err := json.Marshal(event.ProposalTalliedPayload{
		ProposalID:  view.ProposalID,
		YesWeight:   result.YesWeight,
		TotalWeight: result.TotalWeight,
		Threshold:   result.Threshold,
		RolledBack:  rolledBack,
	})
	if err != nil {
		return fmt.Errorf("encode tally payload: %w", err)
	}
	if _, err := l.store.AppendEvent(ctx, event.Event{
		SeasonID:    l.seasonID,
		Type:        outcome,
		Round:       round,
		WindowID:    view.WindowID,
		ActorType:   event.ActorTypeSystem,
		EntityType:  "proposal",
		EntityID:    view.ProposalID,
		PayloadJSON: payload,
	}); err != nil {
		return fmt.Errorf("append tally outcome: %w", err)
	}
	return nil
}

func (l *Lifecycle) checkBalance(ctx context.Context, actorID string, resource token.Resource, amount int) error {
	balance, err := l.ledger.Balance(ctx, l.seasonID, actorID)
	if err != nil {
		return err
	}
	if balance.Get(resource) < amount {
		return apperrors.WithMetadata(apperrors.CodeTokenInsufficientBalance,
			fmt.Sprintf("actor %s has %d %s, needs %d", actorID, balance.Get(resource), resource, amount),
			map[string]string{
				"actor_id": actorID,
				"resource": string(resource),
			},
		)
	}
	return nil
}

// effectParams maps a non-parametric interpretation to a registration. The
// interpreter output was schema-validated upstream; the registry still
// validates lifetimes, hooks, and conditions.
func effectParams(view Proposal, round int) effect.RegisterParams {
	spec := view.Interpretation.Effect
	params := effect.RegisterParams{
		SourceProposalID: view.ProposalID,
		Lifetime:         effect.LifetimeUntilRepealed,
		EffectType:       view.Interpretation.Kind,
		Round:            round,
	}
	if spec == nil {
		return params
	}
	if hooks, ok := spec["hook_points"].([]any); ok {
		for _, hook := range hooks {
			if s, ok := hook.(string); ok {
				params.HookPoints = append(params.HookPoints, s)
			}
		}
	}
	if lifetime, ok := spec["lifetime"].(string); ok {
		params.Lifetime = effect.Lifetime(lifetime)
	}
	if rounds, ok := spec["rounds"].(float64); ok {
		params.Rounds = int(rounds)
	}
	if effectType, ok := spec["effect_type"].(string); ok {
		params.EffectType = effectType
	}
	if condition, ok := spec["condition"].(string); ok {
		params.Condition = condition
	}
	if payload, ok := spec["action_payload"].(map[string]any); ok {
		params.ActionPayload = payload
	}
	return params
}

func isEffectRejection(err error) bool {
	var domainErr *apperrors.Error
	if !errors.As(err, &domainErr) {
		return false
	}
	switch domainErr.Code {
	case apperrors.CodeEffectInvalidLifetime,
		apperrors.CodeEffectInvalidCondition,
		apperrors.CodeEffectMissingHooks:
		return true
	}
	return false
}

func tokenEvent(eventType event.Type, seasonID string, round int, actorID, teamID string, payload event.TokenAdjustedPayload) (event.Event, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return event.Event{}, fmt.Errorf("encode token payload: %w", err)
	}
	actorType := event.ActorTypeActor
	if eventType == event.TypeTokenRegenerated {
		actorType = event.ActorTypeSystem
	}
	return event.Event{
		SeasonID:    seasonID,
		Type:        eventType,
		Round:       round,
		ActorType:   actorType,
		ActorID:     actorID,
		TeamID:      teamID,
		PayloadJSON: encoded,
	}, nil
}

func invalidTransitionError(view Proposal, action string) error {
	return apperrors.WithMetadata(apperrors.CodeProposalInvalidTransition,
		fmt.Sprintf("cannot %s proposal %s in status %s", action, view.ProposalID, view.Status),
		map[string]string{
			"proposal_id": view.ProposalID,
			"status":      string(view.Status),
		},
	)
}

func notInterpretedError(proposalID string) error {
	return apperrors.WithMetadata(apperrors.CodeProposalNotInterpreted,
		fmt.Sprintf("proposal %s has no interpretation yet", proposalID),
		map[string]string{"proposal_id": proposalID},
	)
}

