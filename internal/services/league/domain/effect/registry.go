package effect

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"

	apperrors "github.com/hardwoodsim/league/internal/platform/errors"
	"github.com/hardwoodsim/league/internal/services/league/domain/event"
	"github.com/hardwoodsim/league/internal/services/league/domain/replay"
	"github.com/hardwoodsim/league/internal/services/league/storage"
)

var effectEventTypes = []event.Type{
	event.TypeEffectRegistered,
	event.TypeEffectActivated,
	event.TypeEffectExpired,
	event.TypeEffectRepealed,
}

// Registry indexes the active effects of one season. It is a process-local
// cache over the journal: Rebuild replays effect events and reproduces the
// exact same state every time.
type Registry struct {
	store       storage.EventStore
	idGenerator func() (string, error)
	conditions  *ConditionEvaluator
	seasonID    string

	mu      sync.Mutex
	effects map[string]*Effect
	order   []string
}

// NewRegistry creates an empty registry bound to one season journal.
func NewRegistry(store storage.EventStore, idGenerator func() (string, error), seasonID string) (*Registry, error) {
	if strings.TrimSpace(seasonID) == "" {
		return nil, apperrors.New(apperrors.CodeSeasonEmptyID, "season id is required")
	}
	conditions, err := NewConditionEvaluator()
	if err != nil {
		return nil, err
	}
	return &Registry{
		store:       store,
		idGenerator: idGenerator,
		conditions:  conditions,
		seasonID:    seasonID,
		effects:     make(map[string]*Effect),
	}, nil
}

// Rebuild discards the in-memory index and replays the season's effect
// events: registrations and activations add state, expiries and repeals
// remove it. Round markers are replayed too, so an n_rounds effect comes
// back with the rounds it already consumed subtracted, not a fresh countdown.
func (r *Registry) Rebuild(ctx context.Context) error {
	events, err := replay.Collect(ctx, r.store, r.seasonID, storage.EventFilter{
		Types: append(slices.Clone(effectEventTypes), event.TypeRoundAdvanced),
	})
	if err != nil {
		return fmt.Errorf("replay effect events: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.effects = make(map[string]*Effect)
	r.order = nil

	for _, evt := range events {
		switch evt.Type {
		case event.TypeEffectRegistered:
			var payload event.EffectRegisteredPayload
			if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
				return fmt.Errorf("decode registration seq=%d: %w", evt.Seq, err)
			}
			condition := payload.Condition
			if err := r.conditions.Compile(condition); err != nil {
				// A historical condition that no longer compiles is disabled,
				// not fatal: the journal must always replay.
				log.Printf("[EFFECTS] disabling condition for effect %s: %v", payload.EffectID, err)
				condition = "false"
			}
			r.insertLocked(&Effect{
				EffectID:         payload.EffectID,
				SourceProposalID: payload.SourceProposalID,
				HookPoints:       payload.HookPoints,
				Lifetime:         Lifetime(payload.Lifetime),
				RoundsRemaining:  payload.RoundsRemaining,
				EffectType:       payload.EffectType,
				Condition:        condition,
				ActionPayload:    payload.ActionPayload,
				RegisteredRound:  payload.RegisteredRound,
			})
		case event.TypeEffectActivated:
			var payload event.EffectActivatedPayload
			if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
				return fmt.Errorf("decode activation seq=%d: %w", evt.Seq, err)
			}
			if active, ok := r.effects[payload.EffectID]; ok {
				active.HookPoints = payload.HookPoints
				active.ActionPayload = payload.ActionPayload
			}
		case event.TypeEffectExpired, event.TypeEffectRepealed:
			var payload event.EffectEndedPayload
			if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
				return fmt.Errorf("decode effect end seq=%d: %w", evt.Seq, err)
			}
			r.removeLocked(payload.EffectID)
		case event.TypeRoundAdvanced:
			// TickRound runs once per round marker, so replaying the markers
			// reproduces the countdown of every n_rounds effect.
			var exhausted []string
			for _, effectID := range r.order {
				active := r.effects[effectID]
				if active.Lifetime != LifetimeNRounds {
					continue
				}
				active.RoundsRemaining--
				if active.RoundsRemaining <= 0 {
					exhausted = append(exhausted, effectID)
				}
			}
			for _, effectID := range exhausted {
				r.removeLocked(effectID)
			}
		}
	}
	return nil
}

// RegisterParams describe a new effect produced by a passed proposal.
type RegisterParams struct {
	SourceProposalID string
	HookPoints       []string
	Lifetime         Lifetime
	// Rounds is the countdown for n_rounds effects.
	Rounds        int
	EffectType    string
	Condition     string
	ActionPayload map[string]any
	Round         int
}

// Register validates, journals, and indexes a new effect.
func (r *Registry) Register(ctx context.Context, params RegisterParams) (Effect, error) {
	if !params.Lifetime.IsValid() {
		return Effect{}, apperrors.WithMetadata(apperrors.CodeEffectInvalidLifetime,
			fmt.Sprintf("unknown effect lifetime %q", params.Lifetime),
			map[string]string{"lifetime": string(params.Lifetime)},
		)
	}
	if params.Lifetime == LifetimeNRounds && params.Rounds <= 0 {
		return Effect{}, apperrors.WithMetadata(apperrors.CodeEffectInvalidLifetime,
			fmt.Sprintf("n_rounds lifetime needs a positive round count, got %d", params.Rounds),
			map[string]string{"rounds": fmt.Sprint(params.Rounds)},
		)
	}
	hooks := normalizeHooks(params.HookPoints)
	if len(hooks) == 0 && params.EffectType != EffectTypeCustom {
		return Effect{}, apperrors.New(apperrors.CodeEffectMissingHooks,
			"at least one hook point is required")
	}
	if err := r.conditions.Compile(params.Condition); err != nil {
		return Effect{}, err
	}

	effectID, err := r.idGenerator()
	if err != nil {
		return Effect{}, fmt.Errorf("generate effect id: %w", err)
	}
	rounds := 0
	if params.Lifetime == LifetimeNRounds {
		rounds = params.Rounds
	}
	payload, err := json.Marshal(event.EffectRegisteredPayload{
		EffectID:         effectID,
		SourceProposalID: params.SourceProposalID,
		HookPoints:       hooks,
		Lifetime:         string(params.Lifetime),
		RoundsRemaining:  rounds,
		EffectType:       params.EffectType,
		Condition:        params.Condition,
		ActionPayload:    params.ActionPayload,
		RegisteredRound:  params.Round,
	})
	if err != nil {
		return Effect{}, fmt.Errorf("encode registration payload: %w", err)
	}
	if _, err := r.store.AppendEvent(ctx, event.Event{
		SeasonID:    r.seasonID,
		Type:        event.TypeEffectRegistered,
		Round:       params.Round,
		ActorType:   event.ActorTypeSystem,
		EntityType:  "effect",
		EntityID:    effectID,
		PayloadJSON: payload,
	}); err != nil {
		return Effect{}, fmt.Errorf("append registration: %w", err)
	}

	registered := &Effect{
		EffectID:         effectID,
		SourceProposalID: params.SourceProposalID,
		HookPoints:       hooks,
		Lifetime:         params.Lifetime,
		RoundsRemaining:  rounds,
		EffectType:       params.EffectType,
		Condition:        params.Condition,
		ActionPayload:    params.ActionPayload,
		RegisteredRound:  params.Round,
	}
	r.mu.Lock()
	r.insertLocked(registered)
	r.mu.Unlock()
	return registered.clone(), nil
}

// ActivateParams attach concrete hooks and payload to a pending custom effect.
type ActivateParams struct {
	EffectID      string
	HookPoints    []string
	ActionPayload map[string]any
	Round         int
}

// Activate upgrades a custom effect in place. The effect keeps its id,
// lifetime, and registration history.
func (r *Registry) Activate(ctx context.Context, params ActivateParams) (Effect, error) {
	hooks := normalizeHooks(params.HookPoints)
	if len(hooks) == 0 {
		return Effect{}, apperrors.New(apperrors.CodeEffectMissingHooks,
			"activation requires at least one hook point")
	}

	r.mu.Lock()
	active, ok := r.effects[params.EffectID]
	if !ok {
		r.mu.Unlock()
		return Effect{}, effectNotFoundError(params.EffectID)
	}
	if active.EffectType != EffectTypeCustom {
		effectType := active.EffectType
		r.mu.Unlock()
		return Effect{}, apperrors.WithMetadata(apperrors.CodeEffectNotCustom,
			fmt.Sprintf("effect %s is %q, only custom effects can be activated", params.EffectID, effectType),
			map[string]string{"effect_id": params.EffectID},
		)
	}
	r.mu.Unlock()

	payload, err := json.Marshal(event.EffectActivatedPayload{
		EffectID:      params.EffectID,
		HookPoints:    hooks,
		ActionPayload: params.ActionPayload,
	})
	if err != nil {
		return Effect{}, fmt.Errorf("encode activation payload: %w", err)
	}
	if _, err := r.store.AppendEvent(ctx, event.Event{
		SeasonID:    r.seasonID,
		Type:        event.TypeEffectActivated,
		Round:       params.Round,
		ActorType:   event.ActorTypeGovernor,
		EntityType:  "effect",
		EntityID:    params.EffectID,
		PayloadJSON: payload,
	}); err != nil {
		return Effect{}, fmt.Errorf("append activation: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	active, ok = r.effects[params.EffectID]
	if !ok {
		return Effect{}, effectNotFoundError(params.EffectID)
	}
	active.HookPoints = hooks
	active.ActionPayload = params.ActionPayload
	return active.clone(), nil
}

// EffectsForHook returns clones of the active effects attached to a hook, in
// registration order, filtered by their conditions. A condition that fails to
// evaluate disables its effect for this dispatch only.
func (r *Registry) EffectsForHook(hook string, input ConditionInput) []Effect {
	input.Hook = hook
	input.SeasonID = r.seasonID

	r.mu.Lock()
	candidates := make([]Effect, 0, len(r.order))
	for _, effectID := range r.order {
		if active, ok := r.effects[effectID]; ok && active.HasHook(hook) {
			candidates = append(candidates, active.clone())
		}
	}
	r.mu.Unlock()

	matched := candidates[:0]
	for _, candidate := range candidates {
		ok, err := r.conditions.Eval(candidate.Condition, input)
		if err != nil {
			log.Printf("[EFFECTS] condition for effect %s failed on hook %s: %v", candidate.EffectID, hook, err)
			continue
		}
		if ok {
			matched = append(matched, candidate)
		}
	}
	return matched
}

// ActiveEffects returns clones of every indexed effect in registration order.
func (r *Registry) ActiveEffects() []Effect {
	r.mu.Lock()
	defer r.mu.Unlock()
	active := make([]Effect, 0, len(r.order))
	for _, effectID := range r.order {
		if e, ok := r.effects[effectID]; ok {
			active = append(active, e.clone())
		}
	}
	return active
}

// Get returns a clone of one indexed effect.
func (r *Registry) Get(effectID string) (Effect, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if active, ok := r.effects[effectID]; ok {
		return active.clone(), true
	}
	return Effect{}, false
}

// TickRound decrements n_rounds lifetimes, prunes anything that reached
// zero, journals one effect.expired per pruned effect, and returns their ids.
// The journal commits before the cache moves: a failed append leaves every
// counter untouched.
func (r *Registry) TickRound(ctx context.Context, round int) ([]string, error) {
	r.mu.Lock()
	var ticking, expired []string
	for _, effectID := range r.order {
		active, ok := r.effects[effectID]
		if !ok || active.Lifetime != LifetimeNRounds {
			continue
		}
		ticking = append(ticking, effectID)
		if active.RoundsRemaining <= 1 {
			expired = append(expired, effectID)
		}
	}
	r.mu.Unlock()

	if len(expired) > 0 {
		batch := make([]event.Event, 0, len(expired))
		for _, effectID := range expired {
			payload, err := json.Marshal(event.EffectEndedPayload{
				EffectID: effectID,
				Round:    round,
				Reason:   "rounds_exhausted",
			})
			if err != nil {
				return nil, fmt.Errorf("encode expiry payload: %w", err)
			}
			batch = append(batch, event.Event{
				SeasonID:    r.seasonID,
				Type:        event.TypeEffectExpired,
				Round:       round,
				ActorType:   event.ActorTypeSystem,
				EntityType:  "effect",
				EntityID:    effectID,
				PayloadJSON: payload,
			})
		}
		if _, err := r.store.BatchAppendEvents(ctx, batch); err != nil {
			return nil, fmt.Errorf("append expiries: %w", err)
		}
	}

	r.mu.Lock()
	for _, effectID := range ticking {
		active, ok := r.effects[effectID]
		if !ok {
			continue
		}
		active.RoundsRemaining--
		if active.RoundsRemaining <= 0 {
			r.removeLocked(effectID)
		}
	}
	r.mu.Unlock()
	return expired, nil
}

// MarkUsed records a use of an effect. One-game effects expire on first use;
// other lifetimes ignore the call. Returns whether the effect expired.
func (r *Registry) MarkUsed(ctx context.Context, effectID string, round int) (bool, error) {
	r.mu.Lock()
	active, ok := r.effects[effectID]
	if !ok {
		r.mu.Unlock()
		return false, effectNotFoundError(effectID)
	}
	oneGame := active.Lifetime == LifetimeOneGame
	r.mu.Unlock()
	if !oneGame {
		return false, nil
	}

	payload, err := json.Marshal(event.EffectEndedPayload{
		EffectID: effectID,
		Round:    round,
		Reason:   "used",
	})
	if err != nil {
		return false, fmt.Errorf("encode expiry payload: %w", err)
	}
	if _, err := r.store.AppendEvent(ctx, event.Event{
		SeasonID:    r.seasonID,
		Type:        event.TypeEffectExpired,
		Round:       round,
		ActorType:   event.ActorTypeSystem,
		EntityType:  "effect",
		EntityID:    effectID,
		PayloadJSON: payload,
	}); err != nil {
		return false, fmt.Errorf("append expiry: %w", err)
	}

	r.mu.Lock()
	r.removeLocked(effectID)
	r.mu.Unlock()
	return true, nil
}

// Repeal journals an effect.repealed event and drops the effect from the
// index. It always appends, even when the effect is already gone, so a later
// rebuild can never resurrect the id.
func (r *Registry) Repeal(ctx context.Context, effectID string, round int, reason string) error {
	payload, err := json.Marshal(event.EffectEndedPayload{
		EffectID: effectID,
		Round:    round,
		Reason:   reason,
	})
	if err != nil {
		return fmt.Errorf("encode repeal payload: %w", err)
	}
	if _, err := r.store.AppendEvent(ctx, event.Event{
		SeasonID:    r.seasonID,
		Type:        event.TypeEffectRepealed,
		Round:       round,
		ActorType:   event.ActorTypeGovernor,
		EntityType:  "effect",
		EntityID:    effectID,
		PayloadJSON: payload,
	}); err != nil {
		return fmt.Errorf("append repeal: %w", err)
	}

	r.mu.Lock()
	r.removeLocked(effectID)
	r.mu.Unlock()
	return nil
}

// Deregister drops an effect from the in-memory index only. Callers must
// pair it with a journaled expiry or repeal, or the next Rebuild brings the
// effect back.
func (r *Registry) Deregister(effectID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.effects[effectID]
	r.removeLocked(effectID)
	return ok
}

func (r *Registry) insertLocked(e *Effect) {
	if _, exists := r.effects[e.EffectID]; !exists {
		r.order = append(r.order, e.EffectID)
	}
	r.effects[e.EffectID] = e
}

func (r *Registry) removeLocked(effectID string) {
	if _, ok := r.effects[effectID]; !ok {
		return
	}
	delete(r.effects, effectID)
	r.order = slices.DeleteFunc(r.order, func(id string) bool { return id == effectID })
}

func normalizeHooks(hooks []string) []string {
	normalized := make([]string, 0, len(hooks))
	for _, hook := range hooks {
		hook = strings.TrimSpace(hook)
		if hook != "" && !slices.Contains(normalized, hook) {
			normalized = append(normalized, hook)
		}
	}
	return normalized
}

func effectNotFoundError(effectID string) error {
	return apperrors.WithMetadata(apperrors.CodeEffectNotFound,
		fmt.Sprintf("effect %s not found", effectID),
		map[string]string{"effect_id": effectID},
	)
}
