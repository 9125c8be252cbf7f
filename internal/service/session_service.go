package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/rs/zerolog/log"

	"proctorexam/internal/apperrors"
	"proctorexam/internal/attempt"
	"proctorexam/internal/database"
	"proctorexam/internal/models"
	"proctorexam/internal/plagiarism"
	"proctorexam/internal/proctoring"
	"proctorexam/internal/repository"
	"proctorexam/internal/shuffle"
	"proctorexam/internal/validation"
)

// ActorSystem is recorded in the audit log for transitions nobody requested
const ActorSystem = "system"

// JobQueue accepts coding submissions for background plagiarism aggregation
type JobQueue interface {
	Enqueue(job plagiarism.Job) error
}

// SessionOptions configures a SessionService
type SessionOptions struct {
	// LockWait bounds how long a call waits for another mutation on the same attempt
	LockWait time.Duration
	// Now overrides the clock; defaults to time.Now
	Now   func() time.Time
	Queue JobQueue
}

// SessionService is the only writer of attempt state. Every mutation runs
// under a per-attempt lock and commits the attempt with its audit entry in
// one transaction.
type SessionService struct {
	db       *database.DB
	locks    *KeyedLock
	lockWait time.Duration
	now      func() time.Time
	queue    JobQueue
}

// NewSessionService creates a new session service
func NewSessionService(db *database.DB, opts SessionOptions) *SessionService {
	if opts.LockWait <= 0 {
		opts.LockWait = 2 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &SessionService{
		db:       db,
		locks:    NewKeyedLock(),
		lockWait: opts.LockWait,
		now:      opts.Now,
		queue:    opts.Queue,
	}
}

func (s *SessionService) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// ProblemID names the plagiarism problem for a coding stage of a test
func ProblemID(testID string, stage int) string {
	return fmt.Sprintf("%s#%d", testID, stage)
}

// StartAttempt opens a new attempt for studentID on testID. An empty
// studentID means the caller's own.
func (s *SessionService) StartAttempt(ctx context.Context, caller models.Caller, testID, studentID string) (*models.AttemptView, error) {
	if studentID == "" {
		studentID = caller.StudentID
	}
	if strings.TrimSpace(testID) == "" {
		return nil, apperrors.Invalid("test_id", "is required")
	}
	if strings.TrimSpace(studentID) == "" {
		return nil, apperrors.Invalid("student_id", "is required")
	}
	if !caller.Owns(studentID) {
		return nil, apperrors.ErrNotAuthorized.With("cannot start an attempt for another student")
	}

	release, err := s.locks.Acquire(ctx, "start:"+studentID+":"+testID, s.lockWait)
	if err != nil {
		return nil, err
	}
	defer release()

	var a *models.Attempt
	var def *models.TestDefinition
	err = s.db.WithTx(ctx, func(tx *database.Tx) error {
		var err error
		def, err = repository.NewTestRepository(tx).GetByID(ctx, testID)
		if err != nil {
			return err
		}

		attempts := repository.NewAttemptRepository(tx)
		active, err := attempts.FindActive(ctx, studentID, testID)
		if err != nil {
			return err
		}
		if active != nil {
			return apperrors.ErrAttemptAlreadyActive.With("attempt %s is already in progress", active.ID)
		}

		existing, err := attempts.ListByStudentTest(ctx, studentID, testID)
		if err != nil {
			return err
		}
		used := 0
		for _, e := range existing {
			if e.IsTerminal() {
				used++
			}
		}
		if !def.Unlimited() && used >= def.MaxAttempts {
			return apperrors.ErrAttemptLimitExceeded.With("%d of %d attempts used", used, def.MaxAttempts)
		}

		now := s.clock()
		a = attempt.New(uuid.NewString(), def, studentID, len(existing)+1, shuffle.GenerateSeed(studentID, testID), now)
		if err := attempts.Create(ctx, a); err != nil {
			return err
		}
		return s.audit(ctx, tx, a, "", models.AuditStarted, caller, 0, "", now)
	})
	if err != nil {
		return nil, apperrors.Persistence(err)
	}

	log.Info().Str("attempt_id", a.ID).Str("student_id", studentID).Str("test_id", testID).
		Int("attempt_number", a.AttemptNumber).Msg("Attempt started")
	return s.view(a, def, false)
}

// SubmitAnswers records the answers for one stage. Retrying an accepted
// submission with the same submission key returns the stored result.
func (s *SessionService) SubmitAnswers(ctx context.Context, caller models.Caller, attemptID string, sub attempt.Submission) (*models.AttemptView, error) {
	var view *models.AttemptView
	var job *plagiarism.Job

	err := s.withAttempt(ctx, attemptID, func(tx *database.Tx, a *models.Attempt, def *models.TestDefinition) error {
		if !caller.Owns(a.StudentID) {
			return apperrors.ErrNotAuthorized.With("attempt %s belongs to another student", a.ID)
		}

		now := s.clock()
		from := a.Status
		out, err := attempt.SubmitStage(a, def, sub, now)
		if err != nil {
			return err
		}
		if out.Replayed {
			view, err = s.view(a, def, true)
			return err
		}

		if err := repository.NewAttemptRepository(tx).Update(ctx, a); err != nil {
			return err
		}
		detail := fmt.Sprintf("score %.2f", out.Score)
		if !out.Passed {
			detail = a.FailureReason
		}
		if err := s.audit(ctx, tx, a, from, models.AuditStageSubmitted, caller, sub.StageIndex, detail, now); err != nil {
			return err
		}

		if def.Stages[sub.StageIndex].Kind == models.StageCoding && sub.SubmissionID != "" {
			job = &plagiarism.Job{
				SubmissionID: sub.SubmissionID,
				StudentID:    a.StudentID,
				ProblemID:    ProblemID(def.ID, sub.StageIndex),
			}
		}
		view, err = s.view(a, def, false)
		return err
	})
	if err != nil {
		return nil, apperrors.Persistence(err)
	}

	if job != nil && s.queue != nil {
		if err := s.queue.Enqueue(*job); err != nil {
			log.Warn().Err(err).Str("submission_id", job.SubmissionID).Msg("Plagiarism aggregation not queued")
		}
	}
	return view, nil
}

// ViolationInput is a proctoring signal reported by the client
type ViolationInput struct {
	// EventID deduplicates retried deliveries of the same event
	EventID    string               `json:"event_id" validate:"max=191"`
	Kind       models.ViolationKind `json:"kind" validate:"required"`
	OccurredAt time.Time            `json:"occurred_at"`
	Payload    json.RawMessage      `json:"payload,omitempty"`
}

// ReportViolation appends a violation and applies the test's proctoring
// policy. A repeated event ID is accepted without being counted again.
func (s *SessionService) ReportViolation(ctx context.Context, caller models.Caller, attemptID string, in ViolationInput) (*models.AttemptView, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if !proctoring.KnownKind(in.Kind) {
		return nil, apperrors.Invalid("kind", fmt.Sprintf("unknown violation kind %q", in.Kind))
	}

	var view *models.AttemptView
	err := s.withAttempt(ctx, attemptID, func(tx *database.Tx, a *models.Attempt, def *models.TestDefinition) error {
		if !caller.Owns(a.StudentID) {
			return apperrors.ErrNotAuthorized.With("attempt %s belongs to another student", a.ID)
		}

		violations := repository.NewViolationRepository(tx)
		if in.EventID != "" {
			seen, err := violations.Get(ctx, a.ID, in.EventID)
			if err != nil {
				return err
			}
			if seen != nil {
				view, err = s.view(a, def, true)
				return err
			}
		} else {
			in.EventID = uuid.NewString()
		}

		now := s.clock()
		occurred := in.OccurredAt.UTC()
		if in.OccurredAt.IsZero() {
			occurred = now
		}
		ev := &models.ViolationEvent{
			ID:         uuid.NewString(),
			AttemptID:  a.ID,
			EventID:    in.EventID,
			Kind:       in.Kind,
			OccurredAt: occurred,
			Payload:    in.Payload,
			RecordedAt: now,
		}
		if err := violations.Insert(ctx, ev); err != nil {
			return err
		}

		tabSwitches := 0
		if in.Kind == models.ViolationTabSwitch {
			n, err := violations.CountByKind(ctx, a.ID, models.ViolationTabSwitch)
			if err != nil {
				return err
			}
			tabSwitches = n
		}

		decision := proctoring.Evaluate(def.Proctoring, in.Kind, tabSwitches)
		from := a.Status
		if decision.ForceFail && attempt.ForceFail(a, decision.Reason, now) {
			if err := repository.NewAttemptRepository(tx).Update(ctx, a); err != nil {
				return err
			}
			detail := fmt.Sprintf("%s (%d tab switches, limit %d)", decision.Reason, tabSwitches, def.Proctoring.MaxTabSwitches)
			if err := s.audit(ctx, tx, a, from, models.AuditProctoringFail, caller, a.CurrentStage, detail, now); err != nil {
				return err
			}
			log.Warn().Str("attempt_id", a.ID).Int("stage", a.CurrentStage).Int("tab_switches", tabSwitches).
				Msg("Attempt failed by proctoring policy")
		}

		var err error
		view, err = s.view(a, def, false)
		return err
	})
	if err != nil {
		return nil, apperrors.Persistence(err)
	}
	return view, nil
}

// RequestCurrentState returns the last committed state of an attempt,
// with the current stage's items in the attempt's stable order.
func (s *SessionService) RequestCurrentState(ctx context.Context, caller models.Caller, attemptID string) (*models.AttemptView, error) {
	a, err := repository.NewAttemptRepository(s.db).GetByID(ctx, attemptID)
	if err != nil {
		return nil, apperrors.Persistence(err)
	}
	if !caller.Owns(a.StudentID) && !caller.CanReview() {
		return nil, apperrors.ErrNotAuthorized.With("attempt %s belongs to another student", a.ID)
	}
	def, err := repository.NewTestRepository(s.db).GetByID(ctx, a.TestID)
	if err != nil {
		return nil, apperrors.Persistence(err)
	}
	return s.view(a, def, false)
}

// AdminOverride resumes a failed attempt at the stage after targetStage,
// recording overrideScore for the failed stage.
func (s *SessionService) AdminOverride(ctx context.Context, caller models.Caller, attemptID string, targetStage int, overrideScore float64) (*models.AttemptView, error) {
	if !caller.IsPrivileged() {
		return nil, apperrors.ErrNotAuthorized.With("administrative resume requires a privileged caller")
	}

	var view *models.AttemptView
	err := s.withAttempt(ctx, attemptID, func(tx *database.Tx, a *models.Attempt, def *models.TestDefinition) error {
		now := s.clock()
		from := a.Status
		priorReason := a.FailureReason
		if err := attempt.AdministrativeResume(a, def, caller, targetStage, overrideScore, now); err != nil {
			return err
		}
		// Update fails with AttemptAlreadyActive if the student has since started another attempt
		if err := repository.NewAttemptRepository(tx).Update(ctx, a); err != nil {
			return err
		}
		detail := fmt.Sprintf("stage %d set to %.2f (was: %s)", targetStage, overrideScore, priorReason)
		if err := s.audit(ctx, tx, a, from, models.AuditResumed, caller, targetStage, detail, now); err != nil {
			return err
		}

		var err error
		view, err = s.view(a, def, false)
		return err
	})
	if err != nil {
		return nil, apperrors.Persistence(err)
	}

	log.Info().Str("attempt_id", attemptID).Int("stage", targetStage).Float64("score", overrideScore).
		Str("actor", caller.StudentID).Msg("Attempt resumed by administrator")
	return view, nil
}

// ExpireAttempt ends the attempt if it is past its deadline. It is a no-op
// for attempts that are terminal or still within time.
func (s *SessionService) ExpireAttempt(ctx context.Context, attemptID string) (bool, error) {
	expired := false
	err := s.withAttempt(ctx, attemptID, func(tx *database.Tx, a *models.Attempt, def *models.TestDefinition) error {
		now := s.clock()
		from := a.Status
		if !attempt.Expire(a, def, now) {
			return nil
		}
		if err := repository.NewAttemptRepository(tx).Update(ctx, a); err != nil {
			return err
		}
		expired = true
		return s.audit(ctx, tx, a, from, models.AuditExpired, models.Caller{StudentID: ActorSystem}, a.CurrentStage, a.FailureReason, now)
	})
	if err != nil {
		return false, apperrors.Persistence(err)
	}
	if expired {
		log.Warn().Str("attempt_id", attemptID).Msg("Attempt expired")
	}
	return expired, nil
}

// SweepExpired expires every overdue in-progress attempt and returns how
// many changed. Failures on single attempts are logged and skipped.
func (s *SessionService) SweepExpired(ctx context.Context) (int, error) {
	active, err := repository.NewAttemptRepository(s.db).ListByStatus(ctx, models.AttemptInProgress)
	if err != nil {
		return 0, apperrors.Persistence(err)
	}

	defs := make(map[string]*models.TestDefinition)
	tests := repository.NewTestRepository(s.db)
	now := s.clock()
	count := 0
	for _, a := range active {
		def, ok := defs[a.TestID]
		if !ok {
			if def, err = tests.GetByID(ctx, a.TestID); err != nil {
				log.Error().Err(err).Str("test_id", a.TestID).Msg("Failed to load test for expiry")
				continue
			}
			defs[a.TestID] = def
		}
		if !attempt.Overdue(a, def, now) {
			continue
		}

		expired, err := s.ExpireAttempt(ctx, a.ID)
		if err != nil {
			if ctx.Err() != nil {
				return count, ctx.Err()
			}
			log.Error().Err(err).Str("attempt_id", a.ID).Msg("Failed to expire attempt")
			continue
		}
		if expired {
			count++
		}
	}
	return count, nil
}

// ListAttempts reports a student's attempts on a test and how many remain
func (s *SessionService) ListAttempts(ctx context.Context, caller models.Caller, testID, studentID string) (*models.AttemptSummary, error) {
	if studentID == "" {
		studentID = caller.StudentID
	}
	if !caller.Owns(studentID) && !caller.CanReview() {
		return nil, apperrors.ErrNotAuthorized.With("cannot list attempts of another student")
	}

	def, err := repository.NewTestRepository(s.db).GetByID(ctx, testID)
	if err != nil {
		return nil, apperrors.Persistence(err)
	}
	attempts, err := repository.NewAttemptRepository(s.db).ListByStudentTest(ctx, studentID, testID)
	if err != nil {
		return nil, apperrors.Persistence(err)
	}

	summary := &models.AttemptSummary{
		TestID:            testID,
		StudentID:         studentID,
		MaxAttempts:       def.MaxAttempts,
		AttemptsRemaining: -1,
		Attempts:          attempts,
	}
	if summary.Attempts == nil {
		summary.Attempts = []*models.Attempt{}
	}
	for _, a := range attempts {
		if a.IsTerminal() {
			summary.AttemptsUsed++
		}
		if a.Status == models.AttemptInProgress {
			summary.ActiveAttemptID = a.ID
		}
	}
	if !def.Unlimited() {
		summary.AttemptsRemaining = max(def.MaxAttempts-summary.AttemptsUsed, 0)
	}
	summary.CanAttempt = summary.ActiveAttemptID == "" && summary.AttemptsRemaining != 0
	return summary, nil
}

// withAttempt runs fn on a freshly loaded attempt inside the attempt's
// critical section and a single transaction.
func (s *SessionService) withAttempt(ctx context.Context, attemptID string, fn func(tx *database.Tx, a *models.Attempt, def *models.TestDefinition) error) error {
	if strings.TrimSpace(attemptID) == "" {
		return apperrors.Invalid("attempt_id", "is required")
	}
	release, err := s.locks.Acquire(ctx, "attempt:"+attemptID, s.lockWait)
	if err != nil {
		return err
	}
	defer release()

	return s.db.WithTx(ctx, func(tx *database.Tx) error {
		a, err := repository.NewAttemptRepository(tx).GetByID(ctx, attemptID)
		if err != nil {
			return err
		}
		def, err := repository.NewTestRepository(tx).GetByID(ctx, a.TestID)
		if err != nil {
			return err
		}
		return fn(tx, a, def)
	})
}

func (s *SessionService) audit(ctx context.Context, tx database.DBTX, a *models.Attempt, from models.AttemptStatus, action models.AuditAction, caller models.Caller, stage int, detail string, now time.Time) error {
	return repository.NewAuditRepository(tx).Append(ctx, &models.AuditEntry{
		AttemptID:  a.ID,
		Action:     action,
		Actor:      actorOf(caller),
		FromStatus: from,
		ToStatus:   a.Status,
		Stage:      stage,
		Detail:     detail,
		CreatedAt:  now,
	})
}

func actorOf(c models.Caller) string {
	if c.StudentID == "" {
		return string(c.Role)
	}
	return c.StudentID
}

// view builds the snapshot returned to callers. Answer keys never leave
// the engine.
func (s *SessionService) view(a *models.Attempt, def *models.TestDefinition, replayed bool) (*models.AttemptView, error) {
	v := &models.AttemptView{}
	if err := copier.Copy(v, a); err != nil {
		return nil, fmt.Errorf("failed to build attempt view: %w", err)
	}
	v.Stages = append([]models.StageState(nil), a.Stages...)
	v.Replayed = replayed

	if a.Status != models.AttemptInProgress || a.CurrentStage >= len(def.Stages) {
		return v, nil
	}
	for _, item := range shuffle.Items(def.Stages[a.CurrentStage], a.ShuffleSeed) {
		v.Items = append(v.Items, models.ItemView{ID: item.ID, Prompt: item.Prompt, Options: item.Options})
	}
	if deadline, ok := attempt.Deadline(a, def); ok {
		v.Deadline = &deadline
	}
	return v, nil
}
