// Package token derives the scarce-resource economy from the season journal.
//
// Balances are never stored as mutable state. Every balance is the signed
// fold of token.granted, token.regenerated (+) and token.spent (-) events for
// one actor, replayed on each call. Callers needing hot-path performance must
// cache outside the core.
package token

import (
	"encoding/json"
	"fmt"

	"github.com/hardwoodsim/league/internal/services/league/domain/event"
	"github.com/hardwoodsim/league/internal/services/league/domain/replay"
)

// Resource identifies a governance token type.
type Resource string

const (
	// ResourcePropose pays for proposal submission.
	ResourcePropose Resource = "propose"
	// ResourceAmend pays for replacing a proposal's interpretation.
	ResourceAmend Resource = "amend"
	// ResourceBoost doubles a vote's weight when spent.
	ResourceBoost Resource = "boost"
)

// Resources lists every valid resource type in a stable order.
var Resources = []Resource{ResourcePropose, ResourceAmend, ResourceBoost}

// IsValid reports whether the resource is a known token type.
func (r Resource) IsValid() bool {
	switch r {
	case ResourcePropose, ResourceAmend, ResourceBoost:
		return true
	}
	return false
}

// Balance holds one actor's token counts per resource type.
type Balance struct {
	Propose int
	Amend   int
	Boost   int
}

// Get returns the count for a resource type.
func (b Balance) Get(resource Resource) int {
	switch resource {
	case ResourcePropose:
		return b.Propose
	case ResourceAmend:
		return b.Amend
	case ResourceBoost:
		return b.Boost
	}
	return 0
}

func (b Balance) add(resource Resource, delta int) Balance {
	switch resource {
	case ResourcePropose:
		b.Propose += delta
	case ResourceAmend:
		b.Amend += delta
	case ResourceBoost:
		b.Boost += delta
	}
	return b
}

// FoldBalance derives a balance from one actor's token events in append order.
// Unknown resources in historical payloads are skipped rather than failing the
// replay.
func FoldBalance(events []event.Event) (Balance, error) {
	return replay.FoldErr(events, Balance{}, func(balance Balance, evt event.Event) (Balance, error) {
		var payload event.TokenAdjustedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return balance, fmt.Errorf("decode token payload: %w", err)
		}
		resource := Resource(payload.Resource)
		if !resource.IsValid() {
			return balance, nil
		}
		switch evt.Type {
		case event.TypeTokenGranted, event.TypeTokenRegenerated:
			return balance.add(resource, payload.Amount), nil
		case event.TypeTokenSpent:
			return balance.add(resource, -payload.Amount), nil
		}
		return balance, nil
	})
}
