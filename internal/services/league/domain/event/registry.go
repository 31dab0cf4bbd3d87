package event

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Registry validates events before they reach the append boundary.
//
// The journal is append-only and never repaired in place, so malformed
// events must be rejected before a sequence number is assigned.
type Registry struct {
	known map[Type]struct{}
}

// NewRegistry returns a registry covering every event type the core emits.
func NewRegistry() *Registry {
	known := make(map[Type]struct{})
	for _, t := range []Type{
		TypeProposalSubmitted, TypeProposalConfirmed, TypeProposalAmended,
		TypeProposalCancelled, TypeProposalPassed, TypeProposalFailed,
		TypeVoteCast,
		TypeTokenGranted, TypeTokenSpent, TypeTokenRegenerated,
		TypeTradeOffered, TypeTradeAccepted, TypeTradeDeclined,
		TypeRuleChanged, TypeRuleRolledBack,
		TypeEffectRegistered, TypeEffectActivated, TypeEffectExpired, TypeEffectRepealed,
		TypeInterpretationPending, TypeInterpretationReady, TypeInterpretationExpired,
		TypeSeasonStarted, TypeWindowOpened, TypeWindowClosed, TypeRoundAdvanced,
	} {
		known[t] = struct{}{}
	}
	return &Registry{known: known}
}

// Known reports whether the registry accepts the given event type.
func (r *Registry) Known(t Type) bool {
	if r == nil {
		return false
	}
	_, ok := r.known[t]
	return ok
}

// ValidateForAppend normalizes and validates an event prior to append.
// It returns the event with trimmed identifiers; storage assigns Seq.
func (r *Registry) ValidateForAppend(evt Event) (Event, error) {
	if r == nil {
		return Event{}, fmt.Errorf("event registry is required")
	}

	evt.SeasonID = strings.TrimSpace(evt.SeasonID)
	if evt.SeasonID == "" {
		return Event{}, fmt.Errorf("season id is required")
	}
	if !evt.Type.IsValid() {
		return Event{}, fmt.Errorf("event type is required")
	}
	if !r.Known(evt.Type) {
		return Event{}, fmt.Errorf("unknown event type %q", evt.Type)
	}
	if evt.Seq != 0 {
		return Event{}, fmt.Errorf("sequence number is assigned by storage")
	}
	if evt.Round < 0 {
		return Event{}, fmt.Errorf("round must not be negative")
	}

	evt.ActorID = strings.TrimSpace(evt.ActorID)
	evt.TeamID = strings.TrimSpace(evt.TeamID)
	evt.WindowID = strings.TrimSpace(evt.WindowID)
	evt.RequestID = strings.TrimSpace(evt.RequestID)
	evt.EntityType = strings.TrimSpace(evt.EntityType)
	evt.EntityID = strings.TrimSpace(evt.EntityID)

	switch evt.ActorType {
	case ActorTypeSystem, ActorTypeGovernor:
	case ActorTypeActor:
		if evt.ActorID == "" {
			return Event{}, fmt.Errorf("actor id is required for actor events")
		}
	case "":
		evt.ActorType = ActorTypeSystem
	default:
		return Event{}, fmt.Errorf("unknown actor type %q", evt.ActorType)
	}

	if len(evt.PayloadJSON) > 0 && !json.Valid(evt.PayloadJSON) {
		return Event{}, fmt.Errorf("payload must be valid JSON")
	}

	return evt, nil
}
