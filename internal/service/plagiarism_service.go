package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"proctorexam/internal/apperrors"
	"proctorexam/internal/database"
	"proctorexam/internal/models"
	"proctorexam/internal/plagiarism"
	"proctorexam/internal/repository"
	"proctorexam/internal/validation"
)

// SimilarityInput is one detection algorithm's finding against another submission
type SimilarityInput struct {
	MatchType           string  `json:"match_type" validate:"required,notblank,max=191"`
	MatchedSubmissionID string  `json:"matched_submission_id" validate:"required,notblank,max=191"`
	MatchedStudentID    string  `json:"matched_student_id" validate:"max=191"`
	SimilarityScore     float64 `json:"similarity_score" validate:"gte=0,lte=1"`
}

// SimilarityBatch carries the results of the detection algorithms for one submission
type SimilarityBatch struct {
	SubmissionID string            `json:"submission_id" validate:"required,notblank,max=191"`
	StudentID    string            `json:"student_id" validate:"max=191"`
	ProblemID    string            `json:"problem_id" validate:"max=191"`
	Results      []SimilarityInput `json:"results" validate:"dive"`
}

// ReviewInput is a reviewer's decision on a report
type ReviewInput struct {
	Status models.ReviewStatus `json:"review_status" validate:"required,oneof=reviewed dismissed confirmed"`
	Notes  string              `json:"review_notes" validate:"max=4000"`
}

// PlagiarismService owns plagiarism reports
type PlagiarismService struct {
	db    *database.DB
	agg   *plagiarism.Aggregator
	locks *KeyedLock
	queue JobQueue
	now   func() time.Time
}

// NewPlagiarismService creates a new plagiarism service
func NewPlagiarismService(db *database.DB, agg *plagiarism.Aggregator, now func() time.Time) *PlagiarismService {
	if now == nil {
		now = time.Now
	}
	return &PlagiarismService{
		db:    db,
		agg:   agg,
		locks: NewKeyedLock(),
		now:   now,
	}
}

// UseQueue routes aggregation through q instead of running it inline
func (s *PlagiarismService) UseQueue(q JobQueue) {
	s.queue = q
}

func (s *PlagiarismService) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// RecordSimilarities stores algorithm results for a submission and schedules
// its report to be rebuilt.
func (s *PlagiarismService) RecordSimilarities(ctx context.Context, caller models.Caller, batch SimilarityBatch) error {
	if !caller.CanReview() {
		return apperrors.ErrNotAuthorized.With("recording similarity results requires a reviewer")
	}
	if err := validation.Struct(batch); err != nil {
		return err
	}

	now := s.clock()
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		repo := repository.NewPlagiarismRepository(tx)
		for _, in := range batch.Results {
			err := repo.SaveSimilarity(ctx, &models.SimilarityResult{
				SubmissionID:        batch.SubmissionID,
				StudentID:           batch.StudentID,
				ProblemID:           batch.ProblemID,
				MatchType:           in.MatchType,
				MatchedSubmissionID: in.MatchedSubmissionID,
				MatchedStudentID:    in.MatchedStudentID,
				SimilarityScore:     in.SimilarityScore,
				RecordedAt:          now,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.Persistence(err)
	}

	job := plagiarism.Job{SubmissionID: batch.SubmissionID, StudentID: batch.StudentID, ProblemID: batch.ProblemID}
	if s.queue != nil {
		err := s.queue.Enqueue(job)
		if err == nil {
			return nil
		}
		log.Warn().Err(err).Str("submission_id", job.SubmissionID).Msg("Aggregating inline")
	}
	return s.Aggregate(ctx, job)
}

// Aggregate rebuilds the report for a submission from its stored similarity
// results. It is the plagiarism worker's handler.
func (s *PlagiarismService) Aggregate(ctx context.Context, job plagiarism.Job) error {
	release, err := s.locks.Acquire(ctx, "report:"+job.SubmissionID, 30*time.Second)
	if err != nil {
		return err
	}
	defer release()

	var report *models.PlagiarismReport
	err = s.db.WithTx(ctx, func(tx *database.Tx) error {
		repo := repository.NewPlagiarismRepository(tx)
		results, err := repo.ListSimilarities(ctx, job.SubmissionID)
		if err != nil {
			return err
		}

		studentID, problemID := job.StudentID, job.ProblemID
		for _, r := range results {
			if studentID == "" {
				studentID = r.StudentID
			}
			if problemID == "" {
				problemID = r.ProblemID
			}
		}

		existing, err := repo.FindReport(ctx, job.SubmissionID)
		if err != nil {
			return err
		}
		now := s.clock()
		report = plagiarism.Merge(existing, s.agg.Build(job.SubmissionID, studentID, problemID, results))
		if existing == nil {
			report.ID = uuid.NewString()
			report.CreatedAt = now
		} else {
			if studentID == "" {
				report.StudentID = existing.StudentID
			}
			if problemID == "" {
				report.ProblemID = existing.ProblemID
			}
		}
		report.UpdatedAt = now
		return repo.SaveReport(ctx, report)
	})
	if err != nil {
		return apperrors.Persistence(err)
	}

	event := log.Info()
	if report.Intensity == models.IntensityHigh || report.Intensity == models.IntensityCritical {
		event = log.Warn()
	}
	event.Str("submission_id", report.SubmissionID).Float64("suspicion_score", report.SuspicionScore).
		Str("intensity", string(report.Intensity)).Int("matches", len(report.Matches)).Msg("Plagiarism report updated")
	return nil
}

// GetReport returns the report for a submission
func (s *PlagiarismService) GetReport(ctx context.Context, caller models.Caller, submissionID string) (*models.PlagiarismReport, error) {
	if !caller.CanReview() {
		return nil, apperrors.ErrNotAuthorized.With("plagiarism reports are restricted to reviewers")
	}
	rep, err := repository.NewPlagiarismRepository(s.db).GetReport(ctx, submissionID)
	if err != nil {
		return nil, apperrors.Persistence(err)
	}
	return rep, nil
}

// ListReports returns reports matching the filter, most suspicious first
func (s *PlagiarismService) ListReports(ctx context.Context, caller models.Caller, filter repository.ReportFilter) ([]*models.PlagiarismReport, error) {
	if !caller.CanReview() {
		return nil, apperrors.ErrNotAuthorized.With("plagiarism reports are restricted to reviewers")
	}
	reports, err := repository.NewPlagiarismRepository(s.db).ListReports(ctx, filter)
	if err != nil {
		return nil, apperrors.Persistence(err)
	}
	if reports == nil {
		reports = []*models.PlagiarismReport{}
	}
	return reports, nil
}

// Review records a human decision on a report. Reports cannot be reset to pending.
func (s *PlagiarismService) Review(ctx context.Context, caller models.Caller, submissionID string, in ReviewInput) (*models.PlagiarismReport, error) {
	if !caller.CanReview() {
		return nil, apperrors.ErrNotAuthorized.With("reviewing requires a reviewer")
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	release, err := s.locks.Acquire(ctx, "report:"+submissionID, 5*time.Second)
	if err != nil {
		return nil, err
	}
	defer release()

	var rep *models.PlagiarismReport
	err = s.db.WithTx(ctx, func(tx *database.Tx) error {
		repo := repository.NewPlagiarismRepository(tx)
		if err := repo.UpdateReview(ctx, submissionID, in.Status, in.Notes, actorOf(caller), s.clock()); err != nil {
			return err
		}
		var err error
		rep, err = repo.GetReport(ctx, submissionID)
		return err
	})
	if err != nil {
		return nil, apperrors.Persistence(err)
	}

	log.Info().Str("submission_id", submissionID).Str("review_status", string(in.Status)).
		Str("reviewer", actorOf(caller)).Msg("Plagiarism report reviewed")
	return rep, nil
}
