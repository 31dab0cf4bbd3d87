// Package proposal implements the governance proposal lifecycle: submission,
// confirmation, amendment, weighted voting, tiered tallying, and enactment.
package proposal

import (
	"github.com/hardwoodsim/league/internal/services/league/domain/event"
	"github.com/hardwoodsim/league/internal/services/league/domain/ruleset"
)

// Status is a proposal's derived lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusConfirmed Status = "confirmed"
	StatusAmended   Status = "amended"
	StatusVoting    Status = "voting"
	StatusPassed    Status = "passed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether the status ends the lifecycle.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// votable statuses accept vote.cast events; tallyable statuses accept a tally.
func (s Status) votable() bool {
	switch s {
	case StatusSubmitted, StatusConfirmed, StatusAmended, StatusVoting:
		return true
	}
	return false
}

// Proposal is the derived view of one proposal aggregate.
type Proposal struct {
	ProposalID     string
	SeasonID       string
	ActorID        string
	TeamID         string
	WindowID       string
	RawText        string
	SanitizedText  string
	Interpretation *event.Interpretation
	Tier           int
	TokenCost      int
	Status         Status
	SubmittedRound int
}

// CostForTier returns the propose-token cost of a proposal tier. Cost is
// non-decreasing in tier.
func CostForTier(tier int) int {
	switch {
	case tier <= 4:
		return 1
	case tier <= 6:
		return 2
	default:
		return 3
	}
}

// ThresholdForTier returns the pass threshold for a tier given the governable
// base threshold. The threshold is non-decreasing in tier.
func ThresholdForTier(tier int, base float64) float64 {
	switch {
	case tier <= 2:
		return base
	case tier <= 4:
		return max(base, 0.6)
	case tier <= 6:
		return 0.67
	default:
		return 0.75
	}
}

// TierOf maps an interpretation to a proposal tier. Parameter changes take
// the catalog tier of their target; everything else, including a missing
// interpretation, is top tier.
func TierOf(catalog *ruleset.Catalog, interp *event.Interpretation) int {
	if interp == nil || interp.Kind != "parameter" {
		return ruleset.MaxTier
	}
	return catalog.TierFor(interp.Parameter)
}
