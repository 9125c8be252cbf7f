package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"proctorexam/internal/apperrors"
	"proctorexam/internal/database"
	"proctorexam/internal/models"
)

// AttemptRepository handles attempt database operations
type AttemptRepository struct {
	db database.DBTX
}

// NewAttemptRepository creates a new attempt repository
func NewAttemptRepository(db database.DBTX) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// activeKey is only set while an attempt is in progress; the unique index
// on it enforces a single in-progress attempt per student and test.
func activeKey(a *models.Attempt) interface{} {
	if a.Status != models.AttemptInProgress {
		return nil
	}
	return a.StudentID + ":" + a.TestID
}

// Create inserts a new attempt. A unique-constraint failure (a concurrent
// start for the same student and test) is reported as a concurrency conflict.
func (r *AttemptRepository) Create(ctx context.Context, a *models.Attempt) error {
	stages, err := json.Marshal(a.Stages)
	if err != nil {
		return fmt.Errorf("failed to encode stages: %w", err)
	}
	if a.Version == 0 {
		a.Version = 1
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO attempts (id, student_id, test_id, overall_status, current_stage, stages, attempt_number,
		                      shuffle_seed, failure_reason, active_key, version, completed_at,
		                      time_limit_started_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.StudentID, a.TestID, string(a.Status), a.CurrentStage, string(stages), a.AttemptNumber,
		a.ShuffleSeed, a.FailureReason, activeKey(a), a.Version, a.CompletedAt,
		a.TimeLimitStartedAt, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if r.db.GetDialect().IsUniqueViolation(err) {
			return apperrors.ErrConcurrencyConflict.With("attempt for student %s on test %s was created concurrently", a.StudentID, a.TestID)
		}
		return fmt.Errorf("failed to create attempt: %w", err)
	}
	return nil
}

// Update writes a modified attempt if nobody else has written it since it
// was read, and bumps its version.
func (r *AttemptRepository) Update(ctx context.Context, a *models.Attempt) error {
	stages, err := json.Marshal(a.Stages)
	if err != nil {
		return fmt.Errorf("failed to encode stages: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE attempts
		SET overall_status = ?, current_stage = ?, stages = ?, failure_reason = ?, active_key = ?,
		    completed_at = ?, time_limit_started_at = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		string(a.Status), a.CurrentStage, string(stages), a.FailureReason, activeKey(a),
		a.CompletedAt, a.TimeLimitStartedAt, a.UpdatedAt, a.ID, a.Version)
	if err != nil {
		if r.db.GetDialect().IsUniqueViolation(err) {
			return apperrors.ErrAttemptAlreadyActive.With("another attempt is in progress for student %s on test %s", a.StudentID, a.TestID)
		}
		return fmt.Errorf("failed to update attempt: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if n == 0 {
		return apperrors.ErrConcurrencyConflict.With("attempt %s changed since version %d", a.ID, a.Version)
	}
	a.Version++
	return nil
}

const attemptColumns = `id, student_id, test_id, overall_status, current_stage, stages, attempt_number,
	shuffle_seed, failure_reason, version, completed_at, time_limit_started_at, created_at, updated_at`

// GetByID retrieves an attempt by ID
func (r *AttemptRepository) GetByID(ctx context.Context, id string) (*models.Attempt, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+attemptColumns+" FROM attempts WHERE id = ?", id)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrAttemptNotFound.With("attempt %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return a, nil
}

// FindActive returns the in-progress attempt for a student and test, or nil
func (r *AttemptRepository) FindActive(ctx context.Context, studentID, testID string) (*models.Attempt, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+attemptColumns+" FROM attempts WHERE student_id = ? AND test_id = ? AND overall_status = ?",
		studentID, testID, string(models.AttemptInProgress))
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active attempt: %w", err)
	}
	return a, nil
}

// ListByStudentTest returns a student's attempts on a test in attempt order
func (r *AttemptRepository) ListByStudentTest(ctx context.Context, studentID, testID string) ([]*models.Attempt, error) {
	return r.list(ctx,
		"SELECT "+attemptColumns+" FROM attempts WHERE student_id = ? AND test_id = ? ORDER BY attempt_number",
		studentID, testID)
}

// ListByStatus returns all attempts with the given overall status
func (r *AttemptRepository) ListByStatus(ctx context.Context, status models.AttemptStatus) ([]*models.Attempt, error) {
	return r.list(ctx,
		"SELECT "+attemptColumns+" FROM attempts WHERE overall_status = ? ORDER BY created_at",
		string(status))
}

func (r *AttemptRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.Attempt, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*models.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func scanAttempt(s scanner) (*models.Attempt, error) {
	a := &models.Attempt{}
	var status, stages string
	var completedAt, limitStartedAt sql.NullTime

	err := s.Scan(
		&a.ID,
		&a.StudentID,
		&a.TestID,
		&status,
		&a.CurrentStage,
		&stages,
		&a.AttemptNumber,
		&a.ShuffleSeed,
		&a.FailureReason,
		&a.Version,
		&completedAt,
		&limitStartedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Status = models.AttemptStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		a.CompletedAt = &t
	}
	if limitStartedAt.Valid {
		t := limitStartedAt.Time
		a.TimeLimitStartedAt = &t
	}
	if err := json.Unmarshal([]byte(stages), &a.Stages); err != nil {
		return nil, fmt.Errorf("failed to decode stages for attempt %s: %w", a.ID, err)
	}
	return a, nil
}
