package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"proctorexam/internal/apperrors"
	"proctorexam/internal/database"
	"proctorexam/internal/models"
)

// PlagiarismRepository handles similarity results and plagiarism reports
type PlagiarismRepository struct {
	db database.DBTX
}

// NewPlagiarismRepository creates a new plagiarism repository
func NewPlagiarismRepository(db database.DBTX) *PlagiarismRepository {
	return &PlagiarismRepository{db: db}
}

// SaveSimilarity records one algorithm's result, replacing an earlier result
// from the same algorithm against the same matched submission.
func (r *PlagiarismRepository) SaveSimilarity(ctx context.Context, res *models.SimilarityResult) error {
	upd, err := r.db.ExecContext(ctx, `
		UPDATE similarity_results
		SET similarity_score = ?, student_id = ?, problem_id = ?, matched_student_id = ?, recorded_at = ?
		WHERE submission_id = ? AND match_type = ? AND matched_submission_id = ?`,
		res.SimilarityScore, res.StudentID, res.ProblemID, res.MatchedStudentID, res.RecordedAt,
		res.SubmissionID, res.MatchType, res.MatchedSubmissionID)
	if err != nil {
		return fmt.Errorf("failed to update similarity result: %w", err)
	}
	n, err := upd.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check similarity update: %w", err)
	}
	if n > 0 {
		return nil
	}

	_, err = r.db.ExecReturningID(ctx, `
		INSERT INTO similarity_results (submission_id, student_id, problem_id, match_type, matched_submission_id,
		                                matched_student_id, similarity_score, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		res.SubmissionID, res.StudentID, res.ProblemID, res.MatchType, res.MatchedSubmissionID,
		res.MatchedStudentID, res.SimilarityScore, res.RecordedAt)
	if err != nil {
		if r.db.GetDialect().IsUniqueViolation(err) {
			return apperrors.ErrConcurrencyConflict.With("similarity result for %s recorded concurrently", res.SubmissionID)
		}
		return fmt.Errorf("failed to insert similarity result: %w", err)
	}
	return nil
}

// ListSimilarities returns every stored result for a submission
func (r *PlagiarismRepository) ListSimilarities(ctx context.Context, submissionID string) ([]models.SimilarityResult, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT submission_id, student_id, problem_id, match_type, matched_submission_id, matched_student_id,
		       similarity_score, recorded_at
		FROM similarity_results
		WHERE submission_id = ?
		ORDER BY id`, submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list similarity results: %w", err)
	}
	defer rows.Close()

	var results []models.SimilarityResult
	for rows.Next() {
		var s models.SimilarityResult
		if err := rows.Scan(&s.SubmissionID, &s.StudentID, &s.ProblemID, &s.MatchType, &s.MatchedSubmissionID,
			&s.MatchedStudentID, &s.SimilarityScore, &s.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan similarity result: %w", err)
		}
		results = append(results, s)
	}
	return results, rows.Err()
}

// SaveReport inserts a new report or rewrites the scoring fields and matches
// of an existing one. Review fields of an existing report are only changed
// by UpdateReview.
func (r *PlagiarismRepository) SaveReport(ctx context.Context, rep *models.PlagiarismReport) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE plagiarism_reports
		SET student_id = ?, problem_id = ?, suspicion_score = ?, max_similarity = ?, intensity_level = ?,
		    recommendation = ?, suspicious_match_count = ?, updated_at = ?
		WHERE id = ?`,
		rep.StudentID, rep.ProblemID, rep.SuspicionScore, rep.MaxSimilarity, string(rep.Intensity),
		rep.Recommendation, rep.SuspiciousMatchCount, rep.UpdatedAt, rep.ID)
	if err != nil {
		return fmt.Errorf("failed to update plagiarism report: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check report update: %w", err)
	}
	if n == 0 {
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO plagiarism_reports (id, submission_id, student_id, problem_id, suspicion_score, max_similarity,
			                                intensity_level, recommendation, suspicious_match_count, review_status,
			                                review_notes, reviewed_by, reviewed_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rep.ID, rep.SubmissionID, rep.StudentID, rep.ProblemID, rep.SuspicionScore, rep.MaxSimilarity,
			string(rep.Intensity), rep.Recommendation, rep.SuspiciousMatchCount, string(rep.ReviewStatus),
			rep.ReviewNotes, rep.ReviewedBy, rep.ReviewedAt, rep.CreatedAt, rep.UpdatedAt)
		if err != nil {
			if r.db.GetDialect().IsUniqueViolation(err) {
				return apperrors.ErrConcurrencyConflict.With("report for submission %s created concurrently", rep.SubmissionID)
			}
			return fmt.Errorf("failed to insert plagiarism report: %w", err)
		}
	}

	if _, err := r.db.ExecContext(ctx, "DELETE FROM plagiarism_matches WHERE report_id = ?", rep.ID); err != nil {
		return fmt.Errorf("failed to clear plagiarism matches: %w", err)
	}
	for i, m := range rep.Matches {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO plagiarism_matches (report_id, position, matched_submission_id, matched_student_id, similarity_score, match_type)
			VALUES (?, ?, ?, ?, ?, ?)`,
			rep.ID, i, m.MatchedSubmissionID, m.MatchedStudentID, m.SimilarityScore, m.MatchType)
		if err != nil {
			return fmt.Errorf("failed to insert plagiarism match: %w", err)
		}
	}
	return nil
}

const reportColumns = `id, submission_id, student_id, problem_id, suspicion_score, max_similarity, intensity_level,
	recommendation, suspicious_match_count, review_status, review_notes, reviewed_by, reviewed_at, created_at, updated_at`

// GetReport retrieves the report for a submission along with its ordered matches
func (r *PlagiarismRepository) GetReport(ctx context.Context, submissionID string) (*models.PlagiarismReport, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+reportColumns+" FROM plagiarism_reports WHERE submission_id = ?", submissionID)
	rep, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrReportNotFound.With("no plagiarism report for submission %s", submissionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plagiarism report: %w", err)
	}
	if rep.Matches, err = r.matches(ctx, rep.ID); err != nil {
		return nil, err
	}
	return rep, nil
}

// FindReport is GetReport returning nil instead of a not-found error
func (r *PlagiarismRepository) FindReport(ctx context.Context, submissionID string) (*models.PlagiarismReport, error) {
	rep, err := r.GetReport(ctx, submissionID)
	if errors.Is(err, apperrors.ErrReportNotFound) {
		return nil, nil
	}
	return rep, err
}

// ReportFilter narrows ListReports; empty fields match everything
type ReportFilter struct {
	Intensity     models.Intensity
	ReviewStatus  models.ReviewStatus
	StudentID     string
	SubmissionIDs []string
}

// ListReports returns reports ordered by descending suspicion, without matches
func (r *PlagiarismRepository) ListReports(ctx context.Context, f ReportFilter) ([]*models.PlagiarismReport, error) {
	var where []string
	var args []interface{}
	if f.Intensity != "" {
		where = append(where, "intensity_level = ?")
		args = append(args, string(f.Intensity))
	}
	if f.ReviewStatus != "" {
		where = append(where, "review_status = ?")
		args = append(args, string(f.ReviewStatus))
	}
	if f.StudentID != "" {
		where = append(where, "student_id = ?")
		args = append(args, f.StudentID)
	}
	if f.SubmissionIDs != nil {
		if len(f.SubmissionIDs) == 0 {
			return nil, nil
		}
		where = append(where, "submission_id IN (?"+strings.Repeat(", ?", len(f.SubmissionIDs)-1)+")")
		for _, id := range f.SubmissionIDs {
			args = append(args, id)
		}
	}

	query := "SELECT " + reportColumns + " FROM plagiarism_reports"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY suspicion_score DESC, submission_id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list plagiarism reports: %w", err)
	}
	defer rows.Close()

	var reports []*models.PlagiarismReport
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plagiarism report: %w", err)
		}
		reports = append(reports, rep)
	}
	return reports, rows.Err()
}

// UpdateReview records a reviewer's decision on a report
func (r *PlagiarismRepository) UpdateReview(ctx context.Context, submissionID string, status models.ReviewStatus, notes, reviewer string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE plagiarism_reports
		SET review_status = ?, review_notes = ?, reviewed_by = ?, reviewed_at = ?, updated_at = ?
		WHERE submission_id = ?`,
		string(status), notes, reviewer, at, at, submissionID)
	if err != nil {
		return fmt.Errorf("failed to update review: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check review update: %w", err)
	}
	if n == 0 {
		return apperrors.ErrReportNotFound.With("no plagiarism report for submission %s", submissionID)
	}
	return nil
}

func (r *PlagiarismRepository) matches(ctx context.Context, reportID string) ([]models.PlagiarismMatch, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT matched_submission_id, matched_student_id, similarity_score, match_type
		FROM plagiarism_matches
		WHERE report_id = ?
		ORDER BY position`, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to list plagiarism matches: %w", err)
	}
	defer rows.Close()

	matches := []models.PlagiarismMatch{}
	for rows.Next() {
		var m models.PlagiarismMatch
		if err := rows.Scan(&m.MatchedSubmissionID, &m.MatchedStudentID, &m.SimilarityScore, &m.MatchType); err != nil {
			return nil, fmt.Errorf("failed to scan plagiarism match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func scanReport(s scanner) (*models.PlagiarismReport, error) {
	rep := &models.PlagiarismReport{}
	var intensity, review string
	var notes sql.NullString
	var reviewedAt sql.NullTime
	err := s.Scan(
		&rep.ID,
		&rep.SubmissionID,
		&rep.StudentID,
		&rep.ProblemID,
		&rep.SuspicionScore,
		&rep.MaxSimilarity,
		&intensity,
		&rep.Recommendation,
		&rep.SuspiciousMatchCount,
		&review,
		&notes,
		&rep.ReviewedBy,
		&reviewedAt,
		&rep.CreatedAt,
		&rep.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rep.Intensity = models.Intensity(intensity)
	rep.ReviewStatus = models.ReviewStatus(review)
	rep.ReviewNotes = notes.String
	if reviewedAt.Valid {
		t := reviewedAt.Time
		rep.ReviewedAt = &t
	}
	return rep, nil
}
