package repository

import (
	"context"
	"database/sql"
	"fmt"

	"proctorexam/internal/database"
	"proctorexam/internal/models"
)

// AuditRepository appends and reads the attempt audit log
type AuditRepository struct {
	db database.DBTX
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db database.DBTX) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append writes an audit entry and sets its ID
func (r *AuditRepository) Append(ctx context.Context, e *models.AuditEntry) error {
	id, err := r.db.ExecReturningID(ctx, `
		INSERT INTO attempt_audit (attempt_id, action, actor, from_status, to_status, stage, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.AttemptID, string(e.Action), e.Actor, string(e.FromStatus), string(e.ToStatus), e.Stage, e.Detail, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	e.ID = id
	return nil
}

// ListByAttempt returns an attempt's audit entries oldest first
func (r *AuditRepository) ListByAttempt(ctx context.Context, attemptID string) ([]*models.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, attempt_id, action, actor, from_status, to_status, stage, detail, created_at
		FROM attempt_audit
		WHERE attempt_id = ?
		ORDER BY id`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		e := &models.AuditEntry{}
		var action, from, to string
		var detail sql.NullString
		if err := rows.Scan(&e.ID, &e.AttemptID, &action, &e.Actor, &from, &to, &e.Stage, &detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Action = models.AuditAction(action)
		e.FromStatus = models.AttemptStatus(from)
		e.ToStatus = models.AttemptStatus(to)
		e.Detail = detail.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
