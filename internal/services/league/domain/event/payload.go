package event

// ProposalSubmittedPayload captures the payload for proposal.submitted events.
type ProposalSubmittedPayload struct {
	ProposalID    string `json:"proposal_id"`
	RawText       string `json:"raw_text"`
	SanitizedText string `json:"sanitized_text"`
	Tier          int    `json:"tier"`
	TokenCost     int    `json:"token_cost"`
	WindowID      string `json:"window_id,omitempty"`
}

// ProposalConfirmedPayload captures the payload for proposal.confirmed events.
type ProposalConfirmedPayload struct {
	ProposalID string `json:"proposal_id"`
}

// ProposalAmendedPayload captures the payload for proposal.amended events.
type ProposalAmendedPayload struct {
	ProposalID     string          `json:"proposal_id"`
	Interpretation *Interpretation `json:"interpretation"`
	Tier           int             `json:"tier"`
}

// ProposalCancelledPayload captures the payload for proposal.cancelled events.
type ProposalCancelledPayload struct {
	ProposalID string `json:"proposal_id"`
	Refunded   bool   `json:"refunded"`
	Reason     string `json:"reason,omitempty"`
}

// ProposalTalliedPayload captures the payload for proposal.passed and
// proposal.failed events.
type ProposalTalliedPayload struct {
	ProposalID  string  `json:"proposal_id"`
	YesWeight   float64 `json:"yes_weight"`
	TotalWeight float64 `json:"total_weight"`
	Threshold   float64 `json:"threshold"`
	// RolledBack is set on proposal.failed when a passed tally was reverted
	// by rule validation at enactment time.
	RolledBack bool `json:"rolled_back,omitempty"`
}

// VoteCastPayload captures the payload for vote.cast events.
type VoteCastPayload struct {
	ProposalID string  `json:"proposal_id"`
	Choice     string  `json:"choice"`
	Weight     float64 `json:"weight"`
	BoostUsed  bool    `json:"boost_used,omitempty"`
}

// TokenAdjustedPayload captures the payload for token.granted, token.spent,
// and token.regenerated events.
type TokenAdjustedPayload struct {
	Resource string `json:"resource"`
	Amount   int    `json:"amount"`
	// Reason names the operation that produced the adjustment
	// (submission, amendment, boost, trade, window_grant, refund).
	Reason string `json:"reason,omitempty"`
	// RefundOf references the request id of the original debit for
	// token.regenerated events emitted by the reconciler.
	RefundOf string `json:"refund_of,omitempty"`
}

// TradeOfferedPayload captures the payload for trade.offered events.
type TradeOfferedPayload struct {
	TradeID         string `json:"trade_id"`
	OffererActorID  string `json:"offerer_actor_id"`
	ReceiverActorID string `json:"receiver_actor_id"`
	OfferResource   string `json:"offer_resource"`
	OfferAmount     int    `json:"offer_amount"`
	AskResource     string `json:"ask_resource"`
	AskAmount       int    `json:"ask_amount"`
}

// TradeResolvedPayload captures the payload for trade.accepted and
// trade.declined events.
type TradeResolvedPayload struct {
	TradeID string `json:"trade_id"`
}

// RuleChangedPayload captures the payload for rule.changed events.
type RuleChangedPayload struct {
	Parameter        string `json:"parameter"`
	OldValue         any    `json:"old_value"`
	NewValue         any    `json:"new_value"`
	SourceProposalID string `json:"source_proposal_id"`
	RoundEnacted     int    `json:"round_enacted"`
	ConfigVersion    int    `json:"config_version"`
}

// RuleRolledBackPayload captures the payload for rule.rolled_back events.
type RuleRolledBackPayload struct {
	Parameter        string `json:"parameter"`
	AttemptedValue   any    `json:"attempted_value"`
	SourceProposalID string `json:"source_proposal_id"`
	RejectionCode    string `json:"rejection_code"`
	Message          string `json:"message,omitempty"`
}

// EffectRegisteredPayload captures the payload for effect.registered events.
type EffectRegisteredPayload struct {
	EffectID         string         `json:"effect_id"`
	SourceProposalID string         `json:"source_proposal_id"`
	HookPoints       []string       `json:"hook_points"`
	Lifetime         string         `json:"lifetime"`
	RoundsRemaining  int            `json:"rounds_remaining,omitempty"`
	EffectType       string         `json:"effect_type"`
	Condition        string         `json:"condition,omitempty"`
	ActionPayload    map[string]any `json:"action_payload,omitempty"`
	RegisteredRound  int            `json:"registered_round"`
}

// EffectActivatedPayload captures the payload for effect.activated events.
type EffectActivatedPayload struct {
	EffectID      string         `json:"effect_id"`
	HookPoints    []string       `json:"hook_points"`
	ActionPayload map[string]any `json:"action_payload,omitempty"`
}

// EffectEndedPayload captures the payload for effect.expired and
// effect.repealed events.
type EffectEndedPayload struct {
	EffectID string `json:"effect_id"`
	Round    int    `json:"round,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// InterpretationPendingPayload captures the payload for
// interpretation.pending events.
type InterpretationPendingPayload struct {
	ProposalID string `json:"proposal_id"`
	Attempts   int    `json:"attempts"`
	LastError  string `json:"last_error,omitempty"`
}

// Interpretation is the structured result of the external interpretation
// service after core-side re-validation.
type Interpretation struct {
	// Kind is "parameter" for rule changes, anything else registers an effect.
	Kind      string         `json:"kind"`
	Parameter string         `json:"parameter,omitempty"`
	NewValue  any            `json:"new_value,omitempty"`
	Effect    map[string]any `json:"effect,omitempty"`
	Summary   string         `json:"summary,omitempty"`
}

// InterpretationReadyPayload captures the payload for interpretation.ready events.
type InterpretationReadyPayload struct {
	ProposalID     string          `json:"proposal_id"`
	Interpretation *Interpretation `json:"interpretation"`
	Confidence     float64         `json:"confidence"`
	Tier           int             `json:"tier"`
}

// InterpretationExpiredPayload captures the payload for interpretation.expired events.
type InterpretationExpiredPayload struct {
	ProposalID     string `json:"proposal_id"`
	PendingSeq     uint64 `json:"pending_seq"`
	RefundResource string `json:"refund_resource"`
	RefundAmount   int    `json:"refund_amount"`
}

// SeasonStartedPayload captures the payload for season.started events.
type SeasonStartedPayload struct {
	SeasonName string `json:"season_name,omitempty"`
}

// WindowPayload captures the payload for window.opened and window.closed events.
type WindowPayload struct {
	WindowID string `json:"window_id"`
}

// RoundAdvancedPayload captures the payload for round.advanced events.
type RoundAdvancedPayload struct {
	Round int `json:"round"`
}
