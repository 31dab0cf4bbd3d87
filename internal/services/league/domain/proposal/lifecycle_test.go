package proposal

import (
	"context"
	"errors"
	"fmt"
	"testing"

	apperrors "github.com/hardwoodsim/league/internal/platform/errors"
	"github.com/hardwoodsim/league/internal/services/league/domain/effect"
	"github.com/hardwoodsim/league/internal/services/league/domain/event"
	"github.com/hardwoodsim/league/internal/services/league/domain/replay"
	"github.com/hardwoodsim/league/internal/services/league/domain/ruleset"
	"github.com/hardwoodsim/league/internal/services/league/domain/token"
	"github.com/hardwoodsim/league/internal/services/league/storage"
	"github.com/hardwoodsim/league/internal/services/league/storage/memory"
)

type testEnv struct {
	store     *memory.Store
	ledger    *token.Ledger
	config    *ruleset.Config
	effects   *effect.Registry
	lifecycle *Lifecycle
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.New(event.NewRegistry())
	next := 0
	idGenerator := func() (string, error) {
		next++
		return fmt.Sprintf("id-%d", next), nil
	}
	ledger := token.NewLedger(store, idGenerator)

	catalog, err := ruleset.LoadCatalog()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	config, err := ruleset.NewConfig(catalog)
	if err != nil {
		t.Fatalf("new config: %v", err)
	}
	effects, err := effect.NewRegistry(store, idGenerator, "s1")
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	lifecycle, err := NewLifecycle(Params{
		Store:       store,
		Ledger:      ledger,
		Catalog:     catalog,
		Config:      config,
		Effects:     effects,
		IDGenerator: idGenerator,
		SeasonID:    "s1",
	})
	if err != nil {
		t.Fatalf("new lifecycle: %v", err)
	}
	return &testEnv{store: store, ledger: ledger, config: config, effects: effects, lifecycle: lifecycle}
}

func (env *testEnv) grant(t *testing.T, actorID string, propose, amend, boost int) {
	t.Helper()
	grants := []token.Grant{}
	if propose > 0 {
		grants = append(grants, token.Grant{Resource: token.ResourcePropose, Amount: propose})
	}
	if amend > 0 {
		grants = append(grants, token.Grant{Resource: token.ResourceAmend, Amount: amend})
	}
	if boost > 0 {
		grants = append(grants, token.Grant{Resource: token.ResourceBoost, Amount: boost})
	}
	if _, err := env.ledger.Regenerate(context.Background(), token.RegenerateParams{
		SeasonID: "s1",
		ActorID:  actorID,
		Grants:   grants,
	}); err != nil {
		t.Fatalf("grant %s: %v", actorID, err)
	}
}

func (env *testEnv) submit(t *testing.T, actorID string, interp *event.Interpretation) Proposal {
	t.Helper()
	view, err := env.lifecycle.Submit(context.Background(), SubmitParams{
		ActorID:        actorID,
		TeamID:         "t1",
		RawText:        "make three pointers worth four",
		Interpretation: interp,
		Confidence:     0.9,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return view
}

func paramInterp(name string, value any) *event.Interpretation {
	return &event.Interpretation{Kind: "parameter", Parameter: name, NewValue: value}
}

func effectInterp() *event.Interpretation {
	return &event.Interpretation{
		Kind: "effect",
		Effect: map[string]any{
			"hook_points":    []any{"pregame"},
			"lifetime":       "until_repealed",
			"effect_type":    "stat_modifier",
			"action_payload": map[string]any{"modifier": 1.1},
		},
	}
}

func TestCostAndThresholdAreMonotone(t *testing.T) {
	lastCost := 0
	lastThreshold := 0.0
	for tier := 1; tier <= 7; tier++ {
		cost := CostForTier(tier)
		threshold := ThresholdForTier(tier, 0.5)
		if cost < lastCost {
			t.Fatalf("cost decreased at tier %d: %d < %d", tier, cost, lastCost)
		}
		if threshold < lastThreshold {
			t.Fatalf("threshold decreased at tier %d: %v < %v", tier, threshold, lastThreshold)
		}
		lastCost, lastThreshold = cost, threshold
	}

	if got := CostForTier(1); got != 1 {
		t.Fatalf("tier 1 cost: %d", got)
	}
	if got := CostForTier(5); got != 2 {
		t.Fatalf("tier 5 cost: %d", got)
	}
	if got := CostForTier(7); got != 3 {
		t.Fatalf("tier 7 cost: %d", got)
	}
	if got := ThresholdForTier(3, 0.7); got != 0.7 {
		t.Fatalf("base above floor must win: %v", got)
	}
	if got := ThresholdForTier(7, 0.5); got != 0.75 {
		t.Fatalf("tier 7 threshold: %v", got)
	}
}

func TestSubmitDebitsTierCost(t *testing.T) {
	env := newTestEnv(t)
	env.grant(t, "a1", 2, 0, 0)

	view := env.submit(t, "a1", paramInterp("three_point_value", 4))
	if view.Tier != 2 || view.TokenCost != 1 {
		t.Fatalf("expected tier 2 cost 1, got tier %d cost %d", view.Tier, view.TokenCost)
	}
	if view.Status != StatusSubmitted {
		t.Fatalf("expected submitted status, got %s", view.Status)
	}

	balance, err := env.ledger.Balance(context.Background(), "s1", "a1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Propose != 1 {
		t.Fatalf("expected 1 propose token left, got %d", balance.Propose)
	}
}

func TestSubmitRejectsEmptyText(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.lifecycle.Submit(context.Background(), SubmitParams{
		ActorID: "a1",
		RawText: " \t\n ",
	})
	if !errors.Is(err, apperrors.New(apperrors.CodeProposalTextEmpty, "")) {
		t.Fatalf("expected empty text error, got %v", err)
	}
}

func TestSubmitRejectsUncoveredActor(t *testing.T) {
	env := newTestEnv(t)
	env.grant(t, "a1", 1, 0, 0)

	// A non-parametric proposal is top tier and costs 3.
	_, err := env.lifecycle.Submit(context.Background(), SubmitParams{
		ActorID:        "a1",
		RawText:        "every dunk triggers a fireworks show",
		Interpretation: effectInterp(),
	})
	if !errors.Is(err, apperrors.New(apperrors.CodeTokenInsufficientBalance, "")) {
		t.Fatalf("expected insufficient balance error, got %v", err)
	}
}

func TestSubmitWithoutInterpretationParksForRetry(t *testing.T) {
	env := newTestEnv(t)
	env.grant(t, "a1", 3, 0, 0)

	view, err := env.lifecycle.Submit(context.Background(), SubmitParams{
		ActorID:             "a1",
		RawText:             "make the fourth quarter twice as long",
		InterpretationError: "interpreter timeout",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if view.Tier != ruleset.MaxTier || view.TokenCost != 3 {
		t.Fatalf("uninterpreted submission defaults to top tier, got tier %d cost %d", view.Tier, view.TokenCost)
	}

	pending, err := replay.Collect(context.Background(), env.store, "s1", storage.EventFilter{
		Types: []event.Type{event.TypeInterpretationPending},
	})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(pending) != 1 || pending[0].EntityID != view.ProposalID {
		t.Fatalf("expected one pending event for %s, got %+v", view.ProposalID, pending)
	}
}

func TestConfirmRequiresInterpretation(t *testing.T) {
	env := newTestEnv(t)
	env.grant(t, "a1", 3, 0, 0)

	view, err := env.lifecycle.Submit(context.Background(), SubmitParams{
		ActorID: "a1",
		RawText: "shorten the shot clock somehow",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err = env.lifecycle.Confirm(context.Background(), view.ProposalID, 0, "a1")
	if !errors.Is(err, apperrors.New(apperrors.CodeProposalNotInterpreted, "")) {
		t.Fatalf("expected not-interpreted error, got %v", err)
	}
}

func TestConfirmTransition(t *testing.T) {
	env := newTestEnv(t)
	env.grant(t, "a1", 1, 0, 0)
	ctx := context.Background()

	view := env.submit(t, "a1", paramInterp("three_point_value", 4))
	confirmed, err := env.lifecycle.Confirm(ctx, view.ProposalID, 0, "a1")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", confirmed.Status)
	}

	// Confirming twice is an invalid transition.
	_, err = env.lifecycle.Confirm(ctx, view.ProposalID, 0, "a1")
	if !errors.Is(err, apperrors.New(apperrors.CodeProposalInvalidTransition, "")) {
		t.Fatalf("expected invalid transition error, got %v", err)
	}
}

func TestAmendReplacesInterpretation(t *testing.T) {
	env := newTestEnv(t)
	env.grant(t, "a1", 1, 1, 0)
	ctx := context.Background()

	view := env.submit(t, "a1", paramInterp("three_point_value", 4))
	amended, err := env.lifecycle.Amend(ctx, AmendParams{
		ProposalID:     view.ProposalID,
		ActorID:        "a1",
		Interpretation: paramInterp("vote_base_threshold", 0.6),
	})
	if err != nil {
		t.Fatalf("amend: %v", err)
	}
	if amended.Status != StatusAmended {
		t.Fatalf("expected amended status, got %s", amended.Status)
	}
	if amended.Tier != 7 || amended.Interpretation.Parameter != "vote_base_threshold" {
		t.Fatalf("amendment did not retarget: %+v", amended)
	}

	balance, err := env.ledger.Balance(ctx, "s1", "a1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Amend != 0 {
		t.Fatalf("expected amend token spent, got %d", balance.Amend)
	}
}

func TestAmendRequiresAmendToken(t *testing.T) {
	env := newTestEnv(t)
	env.grant(t, "a1", 1, 0, 0)

	view := env.submit(t, "a1", paramInterp("three_point_value", 4))
	_, err := env.lifecycle.Amend(context.Background(), AmendParams{
		ProposalID:     view.ProposalID,
		ActorID:        "a1",
		Interpretation: paramInterp("three_point_value", 5),
	})
	if !errors.Is(err, apperrors.New(apperrors.CodeTokenInsufficientBalance, "")) {
		t.Fatalf("expected insufficient balance error, got %v", err)
	}
}

func TestCancelBeforeVotingRefunds(t *testing.T) {
	env := newTestEnv(t)
	env.grant(t, "a1", 2, 0, 0)
	ctx := context.Background()

	view := env.submit(t, "a1", paramInterp("three_point_value", 4))
	cancelled, err := env.lifecycle.Cancel(ctx, view.ProposalID, 0, "changed my mind")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}

	balance, err := env.ledger.Balance(ctx, "s1", "a1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Propose != 2 {
		t.Fatalf("expected full refund to 2, got %d", balance.Propose)
	}
}

func TestCancelAfterVotingForfeitsStake(t *testing.T) {
	env := newTestEnv(t)
	env.grant(t, "a1", 1, 0, 0)
	ctx := context.Background()

	view := env.submit(t, "a1", paramInterp("three_point_value", 4))
	if _, err := env.lifecycle.CastVote(ctx, VoteParams{
		ProposalID:         view.ProposalID,
		ActorID:            "a2",
		TeamID:             "t2",
		Choice:             "yes",
		ActiveVotersOnTeam: 1,
	}); err != nil {
		t.Fatalf("vote: %v", err)
	}

	if _, err := env.lifecycle.Cancel(ctx, view.ProposalID, 0, "too late"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	balance, err := env.ledger.Balance(ctx, "s1", "a1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Propose != 0 {
		t.Fatalf("expected no refund once voting started, got %d", balance.Propose)
	}
}

func TestCastVoteValidation(t *testing.T) {
	env := newTestEnv(t)
	env.grant(t, "a1", 1, 0, 0)
	ctx := context.Background()

	view := env.submit(t, "a1", paramInterp("three_point_value", 4))

	_, err := env.lifecycle.CastVote(ctx, VoteParams{
		ProposalID:         view.ProposalID,
		ActorID:            "a2",
		Choice:             "abstain",
		ActiveVotersOnTeam: 1,
	})
	if !errors.Is(err, apperrors.New(apperrors.CodeVoteInvalidChoice, "")) {
		t.Fatalf("expected invalid choice error, got %v", err)
	}

	if _, err := env.lifecycle.Cancel(ctx, view.ProposalID, 0, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_, err = env.lifecycle.CastVote(ctx, VoteParams{
		ProposalID:         view.ProposalID,
		ActorID:            "a2",
		Choice:             "yes",
		ActiveVotersOnTeam: 1,
	})
	if !errors.Is(err, apperrors.New(apperrors.CodeVoteWindowClosed, "")) {
		t.Fatalf("expected closed window error, got %v", err)
	}
}

func TestBoostDoublesWeightAndDebits(t *testing.T) {
	env := newTestEnv(t)
	env.grant(t, "a1", 1, 0, 0)
	env.grant(t, "a2", 0, 0, 1)
	ctx := context.Background()

	view := env.submit(t, "a1", paramInterp("three_point_value", 4))
	weight, err := env.lifecycle.CastVote(ctx, VoteParams{
		ProposalID:         view.ProposalID,
		ActorID:            "a2",
		TeamID:             "t2",
		Choice:             "yes",
		UseBoost:           true,
		ActiveVotersOnTeam: 4,
	})
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if weight != 0.5 {
		t.Fatalf("expected boosted weight 0.5, got %v", weight)
	}

	balance, err := env.ledger.Balance(ctx, "s1", "a2")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Boost != 0 {
		t.Fatalf("expected boost token spent, got %d", balance.Boost)
	}

	// Without a boost token the boosted vote is rejected outright.
	_, err = env.lifecycle.CastVote(ctx, VoteParams{
		ProposalID:         view.ProposalID,
		ActorID:            "a3",
		Choice:             "yes",
		UseBoost:           true,
		ActiveVotersOnTeam: 1,
	})
	if !errors.Is(err, apperrors.New(apperrors.CodeTokenInsufficientBalance, "")) {
		t.Fatalf("expected insufficient balance error, got %v", err)
	}
}

func castVotes(t *testing.T, env *testEnv, proposalID string, yes, no, teamSize int) {
	t.Helper()
	for i := 0; i < yes+no; i++ {
		choice := "yes"
		if i >= yes {
			choice = "no"
		}
		if _, err := env.lifecycle.CastVote(context.Background(), VoteParams{
			ProposalID:         proposalID,
			ActorID:            fmt.Sprintf("voter-%d", i),
			TeamID:             "t1",
			Choice:             choice,
			ActiveVotersOnTeam: teamSize,
		}); err != nil {
			t.Fatalf("vote %d: %v", i, err)
		}
	}
}

func TestTallyStrictlyAboveThresholdPasses(t *testing.T) {
	env := newTestEnv(t)
	env.grant(t, "a1", 3, 0, 0)
	ctx := context.Background()

	// Top tier, threshold 0.75. Nineteen of twenty-five yes is 0.76.
	view := env.submit(t, "a1", effectInterp())
	castVotes(t, env, view.ProposalID, 19, 6, 25)

	result, err := env.lifecycle.Tally(ctx, view.ProposalID, 1)
	if err != nil {
		t.Fatalf("tally: %v", err)
	}
	if !result.Passed {
		t.Fatalf("expected 0.76 > 0.75 to pass: %+v", result)
	}
	if !result.Enacted || result.EffectID == "" {
		t.Fatalf("expected effect enactment, got %+v", result)
	}
	if effects := env.effects.EffectsForHook("pregame", effect.ConditionInput{}); len(effects) != 1 {
		t.Fatalf("expected registered effect on pregame hook, got %d", len(effects))
	}

	tallied, err := env.lifecycle.Get(ctx, view.ProposalID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if tallied.Status != StatusPassed {
		t.Fatalf("expected passed status, got %s", tallied.Status)
	}
}

func TestTallyTieFails(t *testing.T) {
	env := newTestEnv(t)
	env.grant(t, "a1", 3, 0, 0)
	ctx := context.Background()

	// Exactly the 0.75 threshold: three of four yes. Ties fail.
	view := env.submit(t, "a1", effectInterp())
	castVotes(t, env, view.ProposalID, 3, 1, 4)

	result, err := env.lifecycle.Tally(ctx, view.ProposalID, 1)
	if err != nil {
		t.Fatalf("tally: %v", err)
	}
	if result.Passed {
		t.Fatalf("expected 0.75 == 0.75 to fail: %+v", result)
	}

	tallied, err := env.lifecycle.Get(ctx, view.ProposalID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if tallied.Status != StatusFailed {
		t.Fatalf("expected failed status, got %s", tallied.Status)
	}
}

func TestTallyNoVotesFails(t *testing.T) {
	env := newTestEnv(t)
	env.grant(t, "a1", 1, 0, 0)

	view := env.submit(t, "a1", paramInterp("three_point_value", 4))
	result, err := env.lifecycle.Tally(context.Background(), view.ProposalID, 1)
	if err != nil {
		t.Fatalf("tally: %v", err)
	}
	if result.Passed {
		t.Fatal("a proposal with no votes must fail")
	}
}

func TestTallyKeepsLatestVotePerActor(t *testing.T) {
	env := newTestEnv(t)
	env.grant(t, "a1", 1, 0, 0)
	ctx := context.Background()

	view := env.submit(t, "a1", paramInterp("three_point_value", 4))
	for _, choice := range []string{"no", "yes"} {
		if _, err := env.lifecycle.CastVote(ctx, VoteParams{
			ProposalID:         view.ProposalID,
			ActorID:            "a2",
			Choice:             choice,
			ActiveVotersOnTeam: 1,
		}); err != nil {
			t.Fatalf("vote %s: %v", choice, err)
		}
	}

	result, err := env.lifecycle.Tally(ctx, view.ProposalID, 1)
	if err != nil {
		t.Fatalf("tally: %v", err)
	}
	if result.YesWeight != 1 || result.TotalWeight != 1 {
		t.Fatalf("expected only the latest vote to count, got %+v", result)
	}
	if !result.Passed {
		t.Fatalf("expected 1.0 > 0.5 to pass: %+v", result)
	}
}

func TestTallyRunsAtMostOnce(t *testing.T) {
	env := newTestEnv(t)
	env.grant(t, "a1", 1, 0, 0)
	ctx := context.Background()

	view := env.submit(t, "a1", paramInterp("three_point_value", 4))
	if _, err := env.lifecycle.Tally(ctx, view.ProposalID, 1); err != nil {
		t.Fatalf("tally: %v", err)
	}

	_, err := env.lifecycle.Tally(ctx, view.ProposalID, 1)
	if !errors.Is(err, apperrors.New(apperrors.CodeProposalAlreadyTallied, "")) {
		t.Fatalf("expected already tallied error, got %v", err)
	}
}

func TestPassedParameterChangeMutatesConfig(t *testing.T) {
	env := newTestEnv(t)
	env.grant(t, "a1", 1, 0, 0)
	ctx := context.Background()

	view := env.submit(t, "a1", paramInterp("three_point_value", 4))
	castVotes(t, env, view.ProposalID, 1, 0, 1)

	result, err := env.lifecycle.Tally(ctx, view.ProposalID, 5)
	if err != nil {
		t.Fatalf("tally: %v", err)
	}
	if !result.Passed || !result.Enacted {
		t.Fatalf("expected enacted pass, got %+v", result)
	}
	if got := env.config.Int("three_point_value"); got != 4 {
		t.Fatalf("expected committed value 4, got %d", got)
	}

	changes, err := replay.Collect(ctx, env.store, "s1", storage.EventFilter{
		Types: []event.Type{event.TypeRuleChanged},
	})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("expected one rule.changed event, got %d", len(changes))
	}
}

func TestPassedInvalidChangeRollsBack(t *testing.T) {
	env := newTestEnv(t)
	env.grant(t, "a1", 1, 0, 0)
	ctx := context.Background()

	// In range for nothing: three_point_value max is 5.
	view := env.submit(t, "a1", paramInterp("three_point_value", 50))
	castVotes(t, env, view.ProposalID, 1, 0, 1)

	result, err := env.lifecycle.Tally(ctx, view.ProposalID, 5)
	if err != nil {
		t.Fatalf("tally: %v", err)
	}
	if !result.Passed || !result.RolledBack || result.Enacted {
		t.Fatalf("expected rolled-back pass, got %+v", result)
	}
	if got := env.config.Int("three_point_value"); got != 3 {
		t.Fatalf("expected untouched config, got %d", got)
	}

	tallied, err := env.lifecycle.Get(ctx, view.ProposalID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if tallied.Status != StatusFailed {
		t.Fatalf("rollback must mark the proposal failed, got %s", tallied.Status)
	}

	rollbacks, err := replay.Collect(ctx, env.store, "s1", storage.EventFilter{
		Types: []event.Type{event.TypeRuleRolledBack},
	})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(rollbacks) != 1 {
		t.Fatalf("expected one rollback event, got %d", len(rollbacks))
	}
}
