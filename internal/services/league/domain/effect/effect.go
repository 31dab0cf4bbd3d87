// Package effect maintains the registry of active governance effects.
//
// Effects are the non-parametric outcome of passed proposals: data-only
// behaviors attached to named hook points that the simulator and the report
// generator query every round. The journal is authoritative; the in-memory
// registry is a cache rebuilt by replaying effect events.
package effect

import (
	"maps"
	"slices"
)

// Lifetime governs automatic expiry of an effect.
type Lifetime string

const (
	// LifetimePermanent never expires automatically.
	LifetimePermanent Lifetime = "permanent"
	// LifetimeNRounds expires after a fixed number of round ticks.
	LifetimeNRounds Lifetime = "n_rounds"
	// LifetimeOneGame expires after its first use.
	LifetimeOneGame Lifetime = "one_game"
	// LifetimeUntilRepealed persists until an explicit governance repeal.
	LifetimeUntilRepealed Lifetime = "until_repealed"
)

// IsValid reports whether the lifetime is a known kind.
func (l Lifetime) IsValid() bool {
	switch l {
	case LifetimePermanent, LifetimeNRounds, LifetimeOneGame, LifetimeUntilRepealed:
		return true
	}
	return false
}

// EffectTypeCustom marks an effect registered without concrete hooks or
// payload, to be activated later without losing its identity.
const EffectTypeCustom = "custom"

// Effect is a registered, hook-triggered behavior.
type Effect struct {
	EffectID         string
	SourceProposalID string
	HookPoints       []string
	Lifetime         Lifetime
	// RoundsRemaining counts down for n_rounds effects; ignored otherwise.
	RoundsRemaining int
	EffectType      string
	// Condition is a CEL expression gating dispatch; empty means always on.
	Condition       string
	ActionPayload   map[string]any
	RegisteredRound int
}

// HasHook reports whether the effect is attached to the given hook point.
func (e Effect) HasHook(hook string) bool {
	return slices.Contains(e.HookPoints, hook)
}

// clone returns a deep enough copy that callers cannot mutate registry state.
func (e Effect) clone() Effect {
	e.HookPoints = slices.Clone(e.HookPoints)
	e.ActionPayload = maps.Clone(e.ActionPayload)
	return e
}
