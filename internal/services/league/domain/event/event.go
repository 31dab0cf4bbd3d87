package event

import (
	"strings"
	"time"
)

// Type identifies the type of a league governance event.
type Type string

// Proposal lifecycle events.
const (
	// TypeProposalSubmitted records intake of a sanitized proposal.
	TypeProposalSubmitted Type = "proposal.submitted"
	// TypeProposalConfirmed records the proposer approving the interpreted effect.
	TypeProposalConfirmed Type = "proposal.confirmed"
	// TypeProposalAmended records an interpretation replacement paid with an amend token.
	TypeProposalAmended Type = "proposal.amended"
	// TypeProposalCancelled records a pre-tally withdrawal.
	TypeProposalCancelled Type = "proposal.cancelled"
	// TypeProposalPassed records a successful tally.
	TypeProposalPassed Type = "proposal.passed"
	// TypeProposalFailed records a failed tally or a rolled-back enactment.
	TypeProposalFailed Type = "proposal.failed"
)

// Voting events.
const (
	// TypeVoteCast records one weighted vote on a proposal.
	TypeVoteCast Type = "vote.cast"
)

// Token economy events. Balances are the signed fold of these three kinds.
const (
	// TypeTokenGranted records a positive balance adjustment.
	TypeTokenGranted Type = "token.granted"
	// TypeTokenSpent records a negative balance adjustment.
	TypeTokenSpent Type = "token.spent"
	// TypeTokenRegenerated records a compensating refund.
	TypeTokenRegenerated Type = "token.regenerated"
)

// Trade events.
const (
	// TypeTradeOffered records a pending two-party token exchange offer.
	TypeTradeOffered Type = "trade.offered"
	// TypeTradeAccepted records acceptance; the four balance events follow in the same batch.
	TypeTradeAccepted Type = "trade.accepted"
	// TypeTradeDeclined records rejection of a pending offer.
	TypeTradeDeclined Type = "trade.declined"
)

// Rule configuration events.
const (
	// TypeRuleChanged records an enacted parameter mutation.
	TypeRuleChanged Type = "rule.changed"
	// TypeRuleRolledBack records a rejected mutation that reached enactment.
	TypeRuleRolledBack Type = "rule.rolled_back"
)

// Effect registry events. The journal, not the live registry, is authoritative.
const (
	// TypeEffectRegistered records registration of a passed non-parametric effect.
	TypeEffectRegistered Type = "effect.registered"
	// TypeEffectActivated records a custom effect gaining concrete hooks and payload.
	TypeEffectActivated Type = "effect.activated"
	// TypeEffectExpired records lifetime-driven expiry.
	TypeEffectExpired Type = "effect.expired"
	// TypeEffectRepealed records an explicit governance repeal.
	TypeEffectRepealed Type = "effect.repealed"
)

// Interpretation reconciliation events.
const (
	// TypeInterpretationPending records a failed interpretation attempt parked for retry.
	TypeInterpretationPending Type = "interpretation.pending"
	// TypeInterpretationReady records a successful deferred interpretation.
	TypeInterpretationReady Type = "interpretation.ready"
	// TypeInterpretationExpired records a pending item aged past the ceiling.
	TypeInterpretationExpired Type = "interpretation.expired"
)

// Season structure events.
const (
	// TypeSeasonStarted records the first event of a season journal.
	TypeSeasonStarted Type = "season.started"
	// TypeWindowOpened records the start of a governance window.
	TypeWindowOpened Type = "window.opened"
	// TypeWindowClosed records the end of a governance window.
	TypeWindowClosed Type = "window.closed"
	// TypeRoundAdvanced records the simulation round counter moving forward.
	TypeRoundAdvanced Type = "round.advanced"
)

// ActorType identifies who or what triggered an event.
type ActorType string

const (
	// ActorTypeSystem indicates the event was triggered by the core itself.
	ActorTypeSystem ActorType = "system"
	// ActorTypeActor indicates the event was triggered by a league actor.
	ActorTypeActor ActorType = "actor"
	// ActorTypeGovernor indicates the event was triggered by the league governor.
	ActorTypeGovernor ActorType = "governor"
)

// Event represents an immutable fact in the season journal.
type Event struct {
	// SeasonID is the season journal this event belongs to.
	SeasonID string
	// Seq is the event sequence number within the season (starts at 1).
	// Assigned by storage on append; strictly increasing, never reused.
	Seq uint64
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Type identifies the kind of event.
	Type Type
	// Round is the simulation round current when the event was appended.
	Round int
	// WindowID groups proposal events into governance windows (may be empty).
	WindowID string
	// RequestID correlates related events (e.g. submission to interpretation).
	RequestID string
	// ActorType identifies who triggered the event.
	ActorType ActorType
	// ActorID is the league actor ID when ActorType is actor or governor.
	ActorID string
	// TeamID is the team of the triggering actor, when known.
	TeamID string
	// EntityType is the type of entity affected (proposal, effect, trade, ...).
	EntityType string
	// EntityID is the ID of the entity affected.
	EntityID string
	// PayloadJSON holds event-specific data as JSON.
	PayloadJSON []byte
}

// IsValid reports whether the event type is usable.
func (t Type) IsValid() bool {
	return strings.TrimSpace(string(t)) != ""
}

// Domain returns the domain prefix of the event type (e.g. "proposal", "token").
func (t Type) Domain() string {
	for i, c := range t {
		if c == '.' {
			return string(t[:i])
		}
	}
	return string(t)
}
