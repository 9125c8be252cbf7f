package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"proctorexam/internal/apperrors"
	"proctorexam/internal/database"
	"proctorexam/internal/models"
	"proctorexam/internal/proctoring"
	"proctorexam/internal/repository"
)

// EvidenceBundle is everything a reviewer needs to judge one attempt
type EvidenceBundle struct {
	Version    string                     `json:"version"`
	ExportedAt time.Time                  `json:"exported_at"`
	Attempt    *models.Attempt            `json:"attempt"`
	Test       *models.TestDefinition     `json:"test"`
	Violations []*models.ViolationEvent   `json:"violations"`
	Summary    models.ViolationSummary    `json:"violation_summary"`
	Audit      []*models.AuditEntry       `json:"audit"`
	Plagiarism []*models.PlagiarismReport `json:"plagiarism_reports"`
}

// EvidenceService exports review bundles
type EvidenceService struct {
	db  *database.DB
	now func() time.Time
}

// NewEvidenceService creates a new evidence service
func NewEvidenceService(db *database.DB, now func() time.Time) *EvidenceService {
	if now == nil {
		now = time.Now
	}
	return &EvidenceService{db: db, now: now}
}

// Export collects an attempt with its violations, audit log and the
// plagiarism reports of its coding submissions from one transaction.
func (s *EvidenceService) Export(ctx context.Context, caller models.Caller, attemptID string) (*EvidenceBundle, error) {
	if !caller.CanReview() {
		return nil, apperrors.ErrNotAuthorized.With("evidence export is restricted to reviewers")
	}

	bundle := &EvidenceBundle{Version: "1", ExportedAt: s.now().UTC()}
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		var err error
		if bundle.Attempt, err = repository.NewAttemptRepository(tx).GetByID(ctx, attemptID); err != nil {
			return err
		}
		if bundle.Test, err = repository.NewTestRepository(tx).GetByID(ctx, bundle.Attempt.TestID); err != nil {
			return err
		}
		if bundle.Violations, err = repository.NewViolationRepository(tx).ListByAttempt(ctx, attemptID); err != nil {
			return err
		}
		if bundle.Audit, err = repository.NewAuditRepository(tx).ListByAttempt(ctx, attemptID); err != nil {
			return err
		}

		reports := repository.NewPlagiarismRepository(tx)
		for _, st := range bundle.Attempt.Stages {
			if st.SubmissionID == "" {
				continue
			}
			rep, err := reports.FindReport(ctx, st.SubmissionID)
			if err != nil {
				return err
			}
			if rep != nil {
				bundle.Plagiarism = append(bundle.Plagiarism, rep)
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Persistence(err)
	}

	bundle.Summary = proctoring.Summarize(attemptID, bundle.Test.Proctoring, bundle.Violations)
	if bundle.Violations == nil {
		bundle.Violations = []*models.ViolationEvent{}
	}
	if bundle.Plagiarism == nil {
		bundle.Plagiarism = []*models.PlagiarismReport{}
	}
	return bundle, nil
}

// ExportToWriter writes the evidence bundle for an attempt as indented JSON
func (s *EvidenceService) ExportToWriter(ctx context.Context, caller models.Caller, attemptID string, w io.Writer) error {
	bundle, err := s.Export(ctx, caller, attemptID)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(bundle); err != nil {
		return fmt.Errorf("failed to encode evidence: %w", err)
	}
	return nil
}
