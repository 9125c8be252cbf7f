package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"proctorexam/internal/apperrors"
	"proctorexam/internal/database"
	"proctorexam/internal/models"
)

// ViolationRepository handles proctoring violation database operations
type ViolationRepository struct {
	db database.DBTX
}

// NewViolationRepository creates a new violation repository
func NewViolationRepository(db database.DBTX) *ViolationRepository {
	return &ViolationRepository{db: db}
}

// Insert appends a violation event. Events are keyed by (attempt_id, event_id);
// a duplicate that slipped past a prior lookup surfaces as a concurrency conflict.
func (r *ViolationRepository) Insert(ctx context.Context, ev *models.ViolationEvent) error {
	var payload interface{}
	if len(ev.Payload) > 0 {
		payload = string(ev.Payload)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO violation_events (id, attempt_id, event_id, kind, occurred_at, payload, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.AttemptID, ev.EventID, string(ev.Kind), ev.OccurredAt, payload, ev.RecordedAt)
	if err != nil {
		if r.db.GetDialect().IsUniqueViolation(err) {
			return apperrors.ErrConcurrencyConflict.With("violation %s on attempt %s was recorded concurrently", ev.EventID, ev.AttemptID)
		}
		return fmt.Errorf("failed to insert violation: %w", err)
	}
	return nil
}

const violationColumns = "id, attempt_id, event_id, kind, occurred_at, payload, recorded_at"

// Get returns a previously recorded event, or nil when it has not been seen
func (r *ViolationRepository) Get(ctx context.Context, attemptID, eventID string) (*models.ViolationEvent, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+violationColumns+" FROM violation_events WHERE attempt_id = ? AND event_id = ?",
		attemptID, eventID)
	ev, err := scanViolation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get violation: %w", err)
	}
	return ev, nil
}

// CountByKind counts an attempt's distinct events of one kind
func (r *ViolationRepository) CountByKind(ctx context.Context, attemptID string, kind models.ViolationKind) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM violation_events WHERE attempt_id = ? AND kind = ?",
		attemptID, string(kind)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count violations: %w", err)
	}
	return count, nil
}

// ListByAttempt returns an attempt's events in the order they occurred
func (r *ViolationRepository) ListByAttempt(ctx context.Context, attemptID string) ([]*models.ViolationEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+violationColumns+" FROM violation_events WHERE attempt_id = ? ORDER BY occurred_at, event_id",
		attemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to list violations: %w", err)
	}
	defer rows.Close()

	var events []*models.ViolationEvent
	for rows.Next() {
		ev, err := scanViolation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan violation: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func scanViolation(s scanner) (*models.ViolationEvent, error) {
	ev := &models.ViolationEvent{}
	var kind string
	var payload sql.NullString
	err := s.Scan(&ev.ID, &ev.AttemptID, &ev.EventID, &kind, &ev.OccurredAt, &payload, &ev.RecordedAt)
	if err != nil {
		return nil, err
	}
	ev.Kind = models.ViolationKind(kind)
	if payload.Valid && payload.String != "" {
		ev.Payload = []byte(payload.String)
	}
	return ev, nil
}
