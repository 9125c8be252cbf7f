package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"proctorexam/internal/apperrors"
	"proctorexam/internal/database"
	"proctorexam/internal/models"
)

// TestRepository handles test definition database operations
type TestRepository struct {
	db database.DBTX
}

// NewTestRepository creates a new test repository
func NewTestRepository(db database.DBTX) *TestRepository {
	return &TestRepository{db: db}
}

// Save inserts a test definition or replaces an existing one with the same ID
func (r *TestRepository) Save(ctx context.Context, def *models.TestDefinition) error {
	stages, err := json.Marshal(def.Stages)
	if err != nil {
		return fmt.Errorf("failed to encode stages: %w", err)
	}
	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now().UTC()
	}

	p := def.Proctoring
	res, err := r.db.ExecContext(ctx, `
		UPDATE test_definitions
		SET title = ?, stages = ?, proctoring_enabled = ?, require_video_audio = ?, disable_copy_paste = ?,
		    track_tab_switches = ?, max_tab_switches = ?, max_attempts = ?, time_limit_minutes = ?
		WHERE id = ?`,
		def.Title, string(stages), p.Enabled, p.RequireVideoAudio, p.DisableCopyPaste,
		p.TrackTabSwitches, p.MaxTabSwitches, def.MaxAttempts, def.TimeLimitMinutes, def.ID)
	if err != nil {
		return fmt.Errorf("failed to update test definition: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check test definition update: %w", err)
	}
	if n > 0 {
		return nil
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO test_definitions (id, title, stages, proctoring_enabled, require_video_audio, disable_copy_paste,
		                              track_tab_switches, max_tab_switches, max_attempts, time_limit_minutes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		def.ID, def.Title, string(stages), p.Enabled, p.RequireVideoAudio, p.DisableCopyPaste,
		p.TrackTabSwitches, p.MaxTabSwitches, def.MaxAttempts, def.TimeLimitMinutes, def.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert test definition: %w", err)
	}
	return nil
}

const testColumns = `id, title, stages, proctoring_enabled, require_video_audio, disable_copy_paste,
	track_tab_switches, max_tab_switches, max_attempts, time_limit_minutes, created_at`

// GetByID retrieves a test definition by ID
func (r *TestRepository) GetByID(ctx context.Context, id string) (*models.TestDefinition, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+testColumns+" FROM test_definitions WHERE id = ?", id)
	def, err := scanTest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrTestNotFound.With("test %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get test definition: %w", err)
	}
	return def, nil
}

// List returns all test definitions ordered by ID
func (r *TestRepository) List(ctx context.Context) ([]*models.TestDefinition, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+testColumns+" FROM test_definitions ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list test definitions: %w", err)
	}
	defer rows.Close()

	var defs []*models.TestDefinition
	for rows.Next() {
		def, err := scanTest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan test definition: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTest(s scanner) (*models.TestDefinition, error) {
	def := &models.TestDefinition{}
	var stages string
	p := &def.Proctoring
	err := s.Scan(
		&def.ID,
		&def.Title,
		&stages,
		&p.Enabled,
		&p.RequireVideoAudio,
		&p.DisableCopyPaste,
		&p.TrackTabSwitches,
		&p.MaxTabSwitches,
		&def.MaxAttempts,
		&def.TimeLimitMinutes,
		&def.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(stages), &def.Stages); err != nil {
		return nil, fmt.Errorf("failed to decode stages for test %s: %w", def.ID, err)
	}
	return def, nil
}
