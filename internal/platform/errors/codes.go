// Package errors provides structured error handling for the governance core.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Proposal errors
	CodeProposalTextEmpty         Code = "PROPOSAL_TEXT_EMPTY"
	CodeProposalNotFound          Code = "PROPOSAL_NOT_FOUND"
	CodeProposalInvalidTransition Code = "PROPOSAL_INVALID_STATUS_TRANSITION"
	CodeProposalAlreadyTallied    Code = "PROPOSAL_ALREADY_TALLIED"
	CodeProposalNotInterpreted    Code = "PROPOSAL_NOT_INTERPRETED"

	// Vote errors
	CodeVoteInvalidChoice Code = "VOTE_INVALID_CHOICE"
	CodeVoteWindowClosed  Code = "VOTE_WINDOW_CLOSED"

	// Token errors
	CodeTokenInsufficientBalance Code = "TOKEN_INSUFFICIENT_BALANCE"
	CodeTokenUnknownResource     Code = "TOKEN_UNKNOWN_RESOURCE"
	CodeTokenInvalidAmount       Code = "TOKEN_INVALID_AMOUNT"

	// Trade errors
	CodeTradeNotFound     Code = "TRADE_NOT_FOUND"
	CodeTradeSelfDirected Code = "TRADE_SELF_DIRECTED"
	CodeTradeNotPending   Code = "TRADE_NOT_PENDING"

	// Rule errors
	CodeRuleUnknownParameter Code = "RULE_UNKNOWN_PARAMETER"
	CodeRuleValueInvalid     Code = "RULE_VALUE_INVALID"
	CodeRuleValueOutOfRange  Code = "RULE_VALUE_OUT_OF_RANGE"

	// Effect errors
	CodeEffectNotFound         Code = "EFFECT_NOT_FOUND"
	CodeEffectInvalidLifetime  Code = "EFFECT_INVALID_LIFETIME"
	CodeEffectInvalidCondition Code = "EFFECT_INVALID_CONDITION"
	CodeEffectMissingHooks     Code = "EFFECT_MISSING_HOOK_POINTS"
	CodeEffectNotCustom        Code = "EFFECT_NOT_CUSTOM"

	// Interpretation errors
	CodeInterpretationInvalid  Code = "INTERPRETATION_INVALID"
	CodeInterpretationRejected Code = "INTERPRETATION_REJECTED"

	// Storage errors
	CodeNotFound          Code = "NOT_FOUND"
	CodeEventAppendFailed Code = "EVENT_APPEND_FAILED"

	// Season/window errors
	CodeSeasonEmptyID        Code = "SEASON_EMPTY_ID"
	CodeSeasonAlreadyStarted Code = "SEASON_ALREADY_STARTED"
	CodeWindowEmptyID        Code = "WINDOW_EMPTY_ID"
	CodeWindowAlreadyOpen    Code = "WINDOW_ALREADY_OPEN"
	CodeWindowNotOpen        Code = "WINDOW_NOT_OPEN"
	CodeRoundOutOfRange      Code = "ROUND_OUT_OF_RANGE"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeProposalTextEmpty,
		CodeVoteInvalidChoice,
		CodeTokenUnknownResource,
		CodeTokenInvalidAmount,
		CodeTradeSelfDirected,
		CodeRuleUnknownParameter,
		CodeRuleValueInvalid,
		CodeRuleValueOutOfRange,
		CodeEffectInvalidLifetime,
		CodeEffectInvalidCondition,
		CodeEffectMissingHooks,
		CodeInterpretationInvalid,
		CodeSeasonEmptyID,
		CodeWindowEmptyID,
		CodeRoundOutOfRange:
		return codes.InvalidArgument

	// FailedPrecondition - state disallows the operation
	case CodeProposalInvalidTransition,
		CodeProposalAlreadyTallied,
		CodeProposalNotInterpreted,
		CodeVoteWindowClosed,
		CodeTokenInsufficientBalance,
		CodeTradeNotPending,
		CodeEffectNotCustom,
		CodeInterpretationRejected,
		CodeSeasonAlreadyStarted,
		CodeWindowAlreadyOpen,
		CodeWindowNotOpen:
		return codes.FailedPrecondition

	// NotFound
	case CodeProposalNotFound,
		CodeTradeNotFound,
		CodeEffectNotFound,
		CodeNotFound:
		return codes.NotFound

	// Unavailable - persistence boundary failures
	case CodeEventAppendFailed:
		return codes.Unavailable

	default:
		return codes.Internal
	}
}
