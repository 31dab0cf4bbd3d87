package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/hardwoodsim/league/internal/platform/errors"
	"github.com/hardwoodsim/league/internal/services/league/domain/event"
	"github.com/hardwoodsim/league/internal/services/league/storage"
)

const eventColumns = "season_id, seq, timestamp, event_type, round, window_id, request_id, actor_type, actor_id, team_id, entity_type, entity_id, payload_json"

// AppendEvent atomically appends an event and returns it with its sequence set.
func (s *Store) AppendEvent(ctx context.Context, evt event.Event) (event.Event, error) {
	stored, err := s.BatchAppendEvents(ctx, []event.Event{evt})
	if err != nil {
		return event.Event{}, err
	}
	return stored[0], nil
}

// BatchAppendEvents atomically appends multiple events in a single transaction.
//
// All events must belong to the same season. Sequence numbers are allocated
// contiguously from the season counter, which is read and advanced inside the
// transaction so concurrent appenders can never share a number.
func (s *Store) BatchAppendEvents(ctx context.Context, events []event.Event) ([]event.Event, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("at least one event is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if s.eventRegistry == nil {
		return nil, fmt.Errorf("event registry is required")
	}

	// Validate all events before opening a transaction.
	validated := make([]event.Event, len(events))
	for i, evt := range events {
		v, err := s.eventRegistry.ValidateForAppend(evt)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		if v.Timestamp.IsZero() {
			v.Timestamp = time.Now().UTC()
		}
		v.Timestamp = v.Timestamp.UTC().Truncate(time.Millisecond)
		validated[i] = v
	}
	seasonID := validated[0].SeasonID
	for i, evt := range validated[1:] {
		if evt.SeasonID != seasonID {
			return nil, fmt.Errorf("event %d: batch spans seasons %q and %q", i+1, seasonID, evt.SeasonID)
		}
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeEventAppendFailed, "begin tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO event_seq (season_id, next_seq) VALUES (?, 1)",
		seasonID,
	); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeEventAppendFailed, "init event seq", err)
	}

	var baseSeq int64
	if err := tx.QueryRowContext(ctx,
		"SELECT next_seq FROM event_seq WHERE season_id = ?",
		seasonID,
	).Scan(&baseSeq); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeEventAppendFailed, "get event seq", err)
	}

	stored := make([]event.Event, len(validated))
	for i, evt := range validated {
		evt.Seq = uint64(baseSeq) + uint64(i)
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO events ("+eventColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			evt.SeasonID,
			int64(evt.Seq),
			toMillis(evt.Timestamp),
			string(evt.Type),
			evt.Round,
			evt.WindowID,
			evt.RequestID,
			string(evt.ActorType),
			evt.ActorID,
			evt.TeamID,
			evt.EntityType,
			evt.EntityID,
			evt.PayloadJSON,
		); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeEventAppendFailed, fmt.Sprintf("append event %d", i), err)
		}
		stored[i] = evt
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE event_seq SET next_seq = ? WHERE season_id = ?",
		baseSeq+int64(len(validated)), seasonID,
	); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeEventAppendFailed, "advance event seq", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeEventAppendFailed, "commit", err)
	}
	return stored, nil
}

// GetEventBySeq retrieves a specific event by sequence number.
func (s *Store) GetEventBySeq(ctx context.Context, seasonID string, seq uint64) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if s == nil || s.sqlDB == nil {
		return event.Event{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(seasonID) == "" {
		return event.Event{}, fmt.Errorf("season id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE season_id = ? AND seq = ?",
		seasonID, int64(seq),
	)
	evt, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return event.Event{}, storage.ErrNotFound
		}
		return event.Event{}, fmt.Errorf("get event by seq: %w", err)
	}
	return evt, nil
}

// ListEvents returns events ordered by sequence ascending.
func (s *Store) ListEvents(ctx context.Context, seasonID string, afterSeq uint64, limit int) ([]event.Event, error) {
	return s.ListEventsFiltered(ctx, seasonID, storage.EventFilter{}, afterSeq, limit)
}

// ListEventsFiltered returns filtered events in append order.
func (s *Store) ListEventsFiltered(ctx context.Context, seasonID string, filter storage.EventFilter, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(seasonID) == "" {
		return nil, fmt.Errorf("season id is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	where := []string{"season_id = ?", "seq > ?"}
	params := []any{seasonID, int64(afterSeq)}
	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			placeholders[i] = "?"
			params = append(params, string(t))
		}
		where = append(where, "event_type IN ("+strings.Join(placeholders, ", ")+")")
	}
	if actorID := strings.TrimSpace(filter.ActorID); actorID != "" {
		where = append(where, "actor_id = ?")
		params = append(params, actorID)
	}
	if entityType := strings.TrimSpace(filter.EntityType); entityType != "" {
		where = append(where, "entity_type = ?")
		params = append(params, entityType)
	}
	if entityID := strings.TrimSpace(filter.EntityID); entityID != "" {
		where = append(where, "entity_id = ?")
		params = append(params, entityID)
	}
	if filter.Round != nil {
		where = append(where, "round = ?")
		params = append(params, *filter.Round)
	}
	params = append(params, int64(limit))

	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE "+strings.Join(where, " AND ")+" ORDER BY seq ASC LIMIT ?",
		params...,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := make([]event.Event, 0, limit)
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// GetLatestEventSeq returns the latest event sequence number for a season.
func (s *Store) GetLatestEventSeq(ctx context.Context, seasonID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(seasonID) == "" {
		return 0, fmt.Errorf("season id is required")
	}

	var seq sql.NullInt64
	if err := s.sqlDB.QueryRowContext(ctx,
		"SELECT MAX(seq) FROM events WHERE season_id = ?",
		seasonID,
	).Scan(&seq); err != nil {
		return 0, fmt.Errorf("get latest event seq: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return uint64(seq.Int64), nil
}

// VerifySequenceIntegrity walks a season journal and reports gaps or
// duplicates in the sequence numbering.
func (s *Store) VerifySequenceIntegrity(ctx context.Context, seasonID string) error {
	var lastSeq uint64
	for {
		events, err := s.ListEvents(ctx, seasonID, lastSeq, 200)
		if err != nil {
			return fmt.Errorf("list events season_id=%s: %w", seasonID, err)
		}
		if len(events) == 0 {
			return nil
		}
		for _, evt := range events {
			if evt.Seq != lastSeq+1 {
				return fmt.Errorf("event sequence gap season_id=%s expected=%d got=%d", seasonID, lastSeq+1, evt.Seq)
			}
			lastSeq = evt.Seq
		}
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (event.Event, error) {
	var (
		evt       event.Event
		seq       int64
		timestamp int64
		eventType string
		actorType string
	)
	if err := row.Scan(
		&evt.SeasonID,
		&seq,
		&timestamp,
		&eventType,
		&evt.Round,
		&evt.WindowID,
		&evt.RequestID,
		&actorType,
		&evt.ActorID,
		&evt.TeamID,
		&evt.EntityType,
		&evt.EntityID,
		&evt.PayloadJSON,
	); err != nil {
		return event.Event{}, err
	}
	evt.Seq = uint64(seq)
	evt.Timestamp = fromMillis(timestamp)
	evt.Type = event.Type(eventType)
	evt.ActorType = event.ActorType(actorType)
	return evt, nil
}
