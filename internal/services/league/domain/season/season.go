// Package season marks the calendar boundaries governance hangs off: the
// season start, proposal windows, and simulation rounds. The markers are
// journal events like everything else, so a replay can attribute any
// proposal or grant to the window it happened in.
package season

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/hardwoodsim/league/internal/platform/errors"
	"github.com/hardwoodsim/league/internal/services/league/domain/effect"
	"github.com/hardwoodsim/league/internal/services/league/domain/event"
	"github.com/hardwoodsim/league/internal/services/league/domain/replay"
	"github.com/hardwoodsim/league/internal/services/league/domain/ruleset"
	"github.com/hardwoodsim/league/internal/services/league/domain/token"
	"github.com/hardwoodsim/league/internal/services/league/storage"
)

// Member is one governance participant eligible for window grants.
type Member struct {
	ActorID string
	TeamID  string
}

// Manager drives season, window, and round transitions for one season journal.
type Manager struct {
	store    storage.EventStore
	config   *ruleset.Config
	effects  *effect.Registry
	seasonID string
}

// Params wire a Manager.
type Params struct {
	Store    storage.EventStore
	Config   *ruleset.Config
	Effects  *effect.Registry
	SeasonID string
}

// NewManager creates a season manager.
func NewManager(params Params) (*Manager, error) {
	if params.Store == nil || params.Config == nil || params.Effects == nil {
		return nil, fmt.Errorf("store, config, and effects are required")
	}
	if strings.TrimSpace(params.SeasonID) == "" {
		return nil, apperrors.New(apperrors.CodeSeasonEmptyID, "season id is required")
	}
	return &Manager{
		store:    params.Store,
		config:   params.Config,
		effects:  params.Effects,
		seasonID: params.SeasonID,
	}, nil
}

// state is the calendar view folded from the journal markers.
type state struct {
	started     bool
	openWindows map[string]bool
	everOpened  map[string]bool
	round       int
}

func (m *Manager) fold(ctx context.Context) (state, error) {
	events, err := replay.Collect(ctx, m.store, m.seasonID, storage.EventFilter{
		Types: []event.Type{
			event.TypeSeasonStarted,
			event.TypeWindowOpened,
			event.TypeWindowClosed,
			event.TypeRoundAdvanced,
		},
	})
	if err != nil {
		return state{}, fmt.Errorf("replay season markers: %w", err)
	}
	initial := state{openWindows: make(map[string]bool), everOpened: make(map[string]bool)}
	return replay.Fold(events, initial, func(s state, evt event.Event) state {
		switch evt.Type {
		case event.TypeSeasonStarted:
			s.started = true
		case event.TypeWindowOpened:
			s.openWindows[evt.WindowID] = true
			s.everOpened[evt.WindowID] = true
		case event.TypeWindowClosed:
			delete(s.openWindows, evt.WindowID)
		case event.TypeRoundAdvanced:
			if evt.Round > s.round {
				s.round = evt.Round
			}
		}
		return s
	}), nil
}

// CurrentRound returns the highest round marker in the journal.
func (m *Manager) CurrentRound(ctx context.Context) (int, error) {
	s, err := m.fold(ctx)
	if err != nil {
		return 0, err
	}
	return s.round, nil
}

// Start appends the season.started marker. A season starts at most once.
func (m *Manager) Start(ctx context.Context, seasonName string) error {
	s, err := m.fold(ctx)
	if err != nil {
		return err
	}
	if s.started {
		return apperrors.WithMetadata(apperrors.CodeSeasonAlreadyStarted,
			fmt.Sprintf("season %s already started", m.seasonID),
			map[string]string{"season_id": m.seasonID},
		)
	}

	payload, err := json.Marshal(event.SeasonStartedPayload{SeasonName: strings.TrimSpace(seasonName)})
	if err != nil {
		return fmt.Errorf("encode season payload: %w", err)
	}
	if _, err := m.store.AppendEvent(ctx, event.Event{
		SeasonID:    m.seasonID,
		Type:        event.TypeSeasonStarted,
		ActorType:   event.ActorTypeSystem,
		PayloadJSON: payload,
	}); err != nil {
		return fmt.Errorf("append season start: %w", err)
	}
	return nil
}

// OpenWindowParams describe a proposal window opening.
type OpenWindowParams struct {
	Round    int
	WindowID string
	// Roster lists the participants receiving window grants.
	Roster []Member
}

// OpenWindow appends window.opened plus the per-member token grants in one
// atomic batch. Grant sizes come from the governable rule configuration, so a
// passed proposal changing tokens_per_window shows up at the next window.
func (m *Manager) OpenWindow(ctx context.Context, params OpenWindowParams) error {
	windowID := strings.TrimSpace(params.WindowID)
	if windowID == "" {
		return apperrors.New(apperrors.CodeWindowEmptyID, "window id is required")
	}
	s, err := m.fold(ctx)
	if err != nil {
		return err
	}
	if s.everOpened[windowID] {
		return apperrors.WithMetadata(apperrors.CodeWindowAlreadyOpen,
			fmt.Sprintf("window %s already opened", windowID),
			map[string]string{"window_id": windowID},
		)
	}

	payload, err := json.Marshal(event.WindowPayload{WindowID: windowID})
	if err != nil {
		return fmt.Errorf("encode window payload: %w", err)
	}
	batch := []event.Event{{
		SeasonID:    m.seasonID,
		Type:        event.TypeWindowOpened,
		Round:       params.Round,
		WindowID:    windowID,
		ActorType:   event.ActorTypeSystem,
		PayloadJSON: payload,
	}}

	proposeGrant := m.config.Int("tokens_per_window")
	for _, member := range params.Roster {
		grants, err := token.GrantEvents(token.RegenerateParams{
			SeasonID: m.seasonID,
			Round:    params.Round,
			WindowID: windowID,
			ActorID:  member.ActorID,
			TeamID:   member.TeamID,
			Grants: []token.Grant{
				{Resource: token.ResourcePropose, Amount: proposeGrant},
				{Resource: token.ResourceAmend, Amount: 1},
				{Resource: token.ResourceBoost, Amount: 1},
			},
		})
		if err != nil {
			return fmt.Errorf("build grants for %s: %w", member.ActorID, err)
		}
		batch = append(batch, grants...)
	}

	if _, err := m.store.BatchAppendEvents(ctx, batch); err != nil {
		return fmt.Errorf("append window open: %w", err)
	}
	return nil
}

// CloseWindow appends window.closed for an open window.
func (m *Manager) CloseWindow(ctx context.Context, round int, windowID string) error {
	windowID = strings.TrimSpace(windowID)
	if windowID == "" {
		return apperrors.New(apperrors.CodeWindowEmptyID, "window id is required")
	}
	s, err := m.fold(ctx)
	if err != nil {
		return err
	}
	if !s.openWindows[windowID] {
		return apperrors.WithMetadata(apperrors.CodeWindowNotOpen,
			fmt.Sprintf("window %s is not open", windowID),
			map[string]string{"window_id": windowID},
		)
	}

	payload, err := json.Marshal(event.WindowPayload{WindowID: windowID})
	if err != nil {
		return fmt.Errorf("encode window payload: %w", err)
	}
	if _, err := m.store.AppendEvent(ctx, event.Event{
		SeasonID:    m.seasonID,
		Type:        event.TypeWindowClosed,
		Round:       round,
		WindowID:    windowID,
		ActorType:   event.ActorTypeSystem,
		PayloadJSON: payload,
	}); err != nil {
		return fmt.Errorf("append window close: %w", err)
	}
	return nil
}

// AdvanceRound appends the round marker and ticks round-limited effects.
// It returns the ids of effects that expired this round.
func (m *Manager) AdvanceRound(ctx context.Context, round int) ([]string, error) {
	s, err := m.fold(ctx)
	if err != nil {
		return nil, err
	}
	if round <= s.round {
		return nil, apperrors.WithMetadata(apperrors.CodeRoundOutOfRange,
			fmt.Sprintf("round %d does not advance past %d", round, s.round),
			map[string]string{"round": fmt.Sprintf("%d", round)},
		)
	}

	payload, err := json.Marshal(event.RoundAdvancedPayload{Round: round})
	if err != nil {
		return nil, fmt.Errorf("encode round payload: %w", err)
	}
	if _, err := m.store.AppendEvent(ctx, event.Event{
		SeasonID:    m.seasonID,
		Type:        event.TypeRoundAdvanced,
		Round:       round,
		ActorType:   event.ActorTypeSystem,
		PayloadJSON: payload,
	}); err != nil {
		return nil, fmt.Errorf("append round marker: %w", err)
	}

	expired, err := m.effects.TickRound(ctx, round)
	if err != nil {
		return nil, fmt.Errorf("tick effects for round %d: %w", round, err)
	}
	return expired, nil
}
