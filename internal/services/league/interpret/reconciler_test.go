package interpret

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hardwoodsim/league/internal/services/league/domain/event"
	"github.com/hardwoodsim/league/internal/services/league/domain/ruleset"
	"github.com/hardwoodsim/league/internal/services/league/domain/token"
	"github.com/hardwoodsim/league/internal/services/league/storage"
	"github.com/hardwoodsim/league/internal/services/league/storage/memory"
)

type interpretFunc func(ctx context.Context, sanitizedText string, config *ruleset.Config) (Result, error)

func (f interpretFunc) Interpret(ctx context.Context, sanitizedText string, config *ruleset.Config) (Result, error) {
	return f(ctx, sanitizedText, config)
}

func newTestReconciler(t *testing.T, interpreter Interpreter) (*Reconciler, *memory.Store) {
	t.Helper()
	store := memory.New(event.NewRegistry())
	catalog, err := ruleset.LoadCatalog()
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	config, err := ruleset.NewConfig(catalog)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	reconciler, err := NewReconciler(ReconcilerParams{
		Store:       store,
		Interpreter: interpreter,
		Config:      config,
		Catalog:     catalog,
		SeasonID:    "s1",
	})
	if err != nil {
		t.Fatalf("NewReconciler: %v", err)
	}
	return reconciler, store
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

// seedPending replays the journal trail a submission without a synchronous
// interpretation leaves behind: the grant, the debit, the submission, and the
// pending marker.
func seedPending(t *testing.T, store *memory.Store, proposalID string, cost int, pendingAt time.Time) uint64 {
	t.Helper()
	ctx := context.Background()
	events := []event.Event{
		{
			SeasonID:  "s1",
			Type:      event.TypeTokenGranted,
			ActorType: event.ActorTypeSystem,
			ActorID:   "a1",
			TeamID:    "t1",
			PayloadJSON: mustJSON(t, event.TokenAdjustedPayload{
				Resource: string(token.ResourcePropose),
				Amount:   cost,
				Reason:   "window_grant",
			}),
		},
		{
			SeasonID:  "s1",
			Type:      event.TypeTokenSpent,
			RequestID: proposalID,
			ActorType: event.ActorTypeActor,
			ActorID:   "a1",
			TeamID:    "t1",
			PayloadJSON: mustJSON(t, event.TokenAdjustedPayload{
				Resource: string(token.ResourcePropose),
				Amount:   cost,
				Reason:   "submission",
			}),
		},
		{
			SeasonID:   "s1",
			Type:       event.TypeProposalSubmitted,
			ActorType:  event.ActorTypeActor,
			ActorID:    "a1",
			TeamID:     "t1",
			EntityType: "proposal",
			EntityID:   proposalID,
			PayloadJSON: mustJSON(t, event.ProposalSubmittedPayload{
				ProposalID:    proposalID,
				RawText:       "Make three pointers worth four points",
				SanitizedText: "Make three pointers worth four points",
				Tier:          ruleset.MaxTier,
				TokenCost:     cost,
			}),
		},
		{
			SeasonID:   "s1",
			Type:       event.TypeInterpretationPending,
			ActorType:  event.ActorTypeSystem,
			EntityType: "proposal",
			EntityID:   proposalID,
			Timestamp:  pendingAt,
			PayloadJSON: mustJSON(t, event.InterpretationPendingPayload{
				ProposalID: proposalID,
				Attempts:   1,
			}),
		},
	}
	stored, err := store.BatchAppendEvents(ctx, events)
	if err != nil {
		t.Fatalf("seed pending: %v", err)
	}
	return stored[len(stored)-1].Seq
}

func listEvents(t *testing.T, store *memory.Store, types ...event.Type) []event.Event {
	t.Helper()
	events, err := store.ListEventsFiltered(context.Background(), "s1", storage.EventFilter{Types: types}, 0, 100)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	return events
}

func TestReconcileRetriesPendingToReady(t *testing.T) {
	calls := 0
	reconciler, store := newTestReconciler(t, interpretFunc(func(ctx context.Context, text string, config *ruleset.Config) (Result, error) {
		calls++
		return Result{
			Interpretation: &event.Interpretation{
				Kind:      "parameter",
				Parameter: "three_point_value",
				NewValue:  4,
			},
			Confidence: 0.9,
		}, nil
	}))
	seedPending(t, store, "p1", 3, time.Time{})

	stats, err := reconciler.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if stats.Retried != 1 || stats.Ready != 1 || stats.Expired != 0 {
		t.Fatalf("stats = %+v, want retried=1 ready=1 expired=0", stats)
	}

	ready := listEvents(t, store, event.TypeInterpretationReady)
	if len(ready) != 1 {
		t.Fatalf("got %d ready events, want 1", len(ready))
	}
	var payload event.InterpretationReadyPayload
	if err := json.Unmarshal(ready[0].PayloadJSON, &payload); err != nil {
		t.Fatalf("decode ready payload: %v", err)
	}
	if payload.ProposalID != "p1" {
		t.Errorf("ProposalID = %q, want p1", payload.ProposalID)
	}
	if payload.Tier != 2 {
		t.Errorf("Tier = %d, want 2 for three_point_value", payload.Tier)
	}
	if payload.Interpretation == nil || payload.Interpretation.Parameter != "three_point_value" {
		t.Errorf("Interpretation = %+v, want three_point_value", payload.Interpretation)
	}

	// A resolved item is never retried again.
	stats, err = reconciler.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}
	if stats != (Stats{}) {
		t.Errorf("second pass stats = %+v, want zero", stats)
	}
	if calls != 1 {
		t.Errorf("interpreter called %d times, want 1", calls)
	}
}

func TestReconcileNonParametricGetsTopTier(t *testing.T) {
	reconciler, store := newTestReconciler(t, interpretFunc(func(ctx context.Context, text string, config *ruleset.Config) (Result, error) {
		return Result{
			Interpretation: &event.Interpretation{
				Kind: "effect",
				Effect: map[string]any{
					"hook_points": []any{"pregame"},
					"lifetime":    "until_repealed",
					"effect_type": "stat_modifier",
				},
			},
			Confidence: 0.8,
		}, nil
	}))
	seedPending(t, store, "p1", 3, time.Time{})

	if _, err := reconciler.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	ready := listEvents(t, store, event.TypeInterpretationReady)
	if len(ready) != 1 {
		t.Fatalf("got %d ready events, want 1", len(ready))
	}
	var payload event.InterpretationReadyPayload
	if err := json.Unmarshal(ready[0].PayloadJSON, &payload); err != nil {
		t.Fatalf("decode ready payload: %v", err)
	}
	if payload.Tier != ruleset.MaxTier {
		t.Errorf("Tier = %d, want %d", payload.Tier, ruleset.MaxTier)
	}
}

func TestReconcileLeavesUnusableResultsPending(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		err    error
	}{
		{name: "interpreter error", err: errors.New("upstream timeout")},
		{name: "fallback response", result: Result{Interpretation: &event.Interpretation{Kind: "parameter", Parameter: "three_point_value", NewValue: 4}, Fallback: true}},
		{name: "rejection reason", result: Result{RejectionReason: "off topic"}},
		{name: "missing interpretation", result: Result{Confidence: 0.9}},
		{name: "schema invalid", result: Result{Interpretation: &event.Interpretation{Kind: "parameter"}}},
		{name: "value out of range", result: Result{Interpretation: &event.Interpretation{Kind: "parameter", Parameter: "three_point_value", NewValue: 50}}},
		{name: "unknown parameter", result: Result{Interpretation: &event.Interpretation{Kind: "parameter", Parameter: "dunk_bonus", NewValue: 1}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			reconciler, store := newTestReconciler(t, interpretFunc(func(ctx context.Context, text string, config *ruleset.Config) (Result, error) {
				calls++
				return tc.result, tc.err
			}))
			seedPending(t, store, "p1", 3, time.Time{})

			stats, err := reconciler.Reconcile(context.Background())
			if err != nil {
				t.Fatalf("Reconcile: %v", err)
			}
			if stats.Retried != 1 || stats.Ready != 0 {
				t.Fatalf("stats = %+v, want retried=1 ready=0", stats)
			}
			if ready := listEvents(t, store, event.TypeInterpretationReady); len(ready) != 0 {
				t.Fatalf("got %d ready events, want none", len(ready))
			}

			// Still pending, so the next pass tries again.
			if _, err := reconciler.Reconcile(context.Background()); err != nil {
				t.Fatalf("second Reconcile: %v", err)
			}
			if calls != 2 {
				t.Errorf("interpreter called %d times, want 2", calls)
			}
		})
	}
}

func TestReconcileExpiresStalePendingWithRefund(t *testing.T) {
	calls := 0
	reconciler, store := newTestReconciler(t, interpretFunc(func(ctx context.Context, text string, config *ruleset.Config) (Result, error) {
		calls++
		return Result{}, nil
	}))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reconciler.now = func() time.Time { return now }
	pendingSeq := seedPending(t, store, "p1", 3, now.Add(-25*time.Hour))

	ctx := context.Background()
	ledger := token.NewLedger(store, nil)
	before, err := ledger.Balance(ctx, "s1", "a1")
	if err != nil {
		t.Fatalf("Balance before: %v", err)
	}
	if before.Propose != 0 {
		t.Fatalf("propose balance before = %d, want 0", before.Propose)
	}

	stats, err := reconciler.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if stats.Expired != 1 || stats.Retried != 0 {
		t.Fatalf("stats = %+v, want expired=1 retried=0", stats)
	}
	if calls != 0 {
		t.Errorf("interpreter called %d times for a stale item, want 0", calls)
	}

	after, err := ledger.Balance(ctx, "s1", "a1")
	if err != nil {
		t.Fatalf("Balance after: %v", err)
	}
	if after.Propose != 3 {
		t.Errorf("propose balance after expiry = %d, want 3", after.Propose)
	}

	expired := listEvents(t, store, event.TypeInterpretationExpired)
	if len(expired) != 1 {
		t.Fatalf("got %d expired events, want 1", len(expired))
	}
	var expiredPayload event.InterpretationExpiredPayload
	if err := json.Unmarshal(expired[0].PayloadJSON, &expiredPayload); err != nil {
		t.Fatalf("decode expired payload: %v", err)
	}
	if expiredPayload.PendingSeq != pendingSeq {
		t.Errorf("PendingSeq = %d, want %d", expiredPayload.PendingSeq, pendingSeq)
	}
	if expiredPayload.RefundAmount != 3 || expiredPayload.RefundResource != string(token.ResourcePropose) {
		t.Errorf("refund = %d %s, want 3 propose", expiredPayload.RefundAmount, expiredPayload.RefundResource)
	}

	cancelled := listEvents(t, store, event.TypeProposalCancelled)
	if len(cancelled) != 1 {
		t.Fatalf("got %d cancelled events, want 1", len(cancelled))
	}
	var cancelledPayload event.ProposalCancelledPayload
	if err := json.Unmarshal(cancelled[0].PayloadJSON, &cancelledPayload); err != nil {
		t.Fatalf("decode cancelled payload: %v", err)
	}
	if !cancelledPayload.Refunded || cancelledPayload.Reason != "interpretation_expired" {
		t.Errorf("cancellation payload = %+v, want refunded interpretation_expired", cancelledPayload)
	}

	// A second pass must not refund twice.
	stats, err = reconciler.Reconcile(ctx)
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}
	if stats != (Stats{}) {
		t.Errorf("second pass stats = %+v, want zero", stats)
	}
	again, err := ledger.Balance(ctx, "s1", "a1")
	if err != nil {
		t.Fatalf("Balance after second pass: %v", err)
	}
	if again.Propose != 3 {
		t.Errorf("propose balance after second pass = %d, want 3", again.Propose)
	}
}

func TestNewReconcilerRequiresDependencies(t *testing.T) {
	store := memory.New(event.NewRegistry())
	catalog, err := ruleset.LoadCatalog()
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	config, err := ruleset.NewConfig(catalog)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	noop := interpretFunc(func(ctx context.Context, text string, config *ruleset.Config) (Result, error) {
		return Result{}, nil
	})

	if _, err := NewReconciler(ReconcilerParams{Interpreter: noop, Config: config, Catalog: catalog, SeasonID: "s1"}); err == nil {
		t.Error("expected error without store")
	}
	if _, err := NewReconciler(ReconcilerParams{Store: store, Interpreter: noop, Config: config, Catalog: catalog, SeasonID: "  "}); err == nil {
		t.Error("expected error without season id")
	}
}
