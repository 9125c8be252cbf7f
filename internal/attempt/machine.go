// Package attempt implements the state machine for a single attempt.
// Functions here mutate the attempt in memory only; persistence and
// mutual exclusion belong to the caller.
package attempt

import (
	"fmt"
	"time"

	"proctorexam/internal/apperrors"
	"proctorexam/internal/models"
)

// ReasonTimeLimit is recorded when an attempt is expired by the clock
const ReasonTimeLimit = "time limit exceeded"

// Submission carries a student's answers for one stage
type Submission struct {
	StageIndex int
	// Answers maps MCQ item IDs to the chosen option
	Answers map[string]string
	// Score is the externally judged score for coding and interview stages
	Score *float64
	// SubmissionID identifies a coding submission for plagiarism checks
	SubmissionID string
	// SubmissionKey makes retries of the same submission idempotent
	SubmissionKey string
}

// Outcome describes the effect of an accepted submission
type Outcome struct {
	Score    float64
	Passed   bool
	Replayed bool
}

// New creates an attempt positioned at the first stage
func New(id string, def *models.TestDefinition, studentID string, number int, seed int64, now time.Time) *models.Attempt {
	a := &models.Attempt{
		ID:            id,
		StudentID:     studentID,
		TestID:        def.ID,
		Status:        models.AttemptInProgress,
		CurrentStage:  0,
		Stages:        make([]models.StageState, len(def.Stages)),
		AttemptNumber: number,
		ShuffleSeed:   seed,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for i, stageDef := range def.Stages {
		a.Stages[i] = models.StageState{Kind: stageDef.Kind, Status: models.StagePending}
	}
	enterStage(a, 0, now)
	return a
}

// SubmitStage scores and records the answers for the current stage.
// A rejected submission leaves the attempt unmodified.
func SubmitStage(a *models.Attempt, def *models.TestDefinition, sub Submission, now time.Time) (Outcome, error) {
	if sub.StageIndex < 0 || sub.StageIndex >= len(def.Stages) || sub.StageIndex >= len(a.Stages) {
		return Outcome{}, apperrors.Invalid("stage_index", fmt.Sprintf("must be between 0 and %d", len(def.Stages)-1))
	}

	prior := a.Stages[sub.StageIndex]
	if sub.SubmissionKey != "" && prior.SubmissionKey == sub.SubmissionKey && prior.SubmittedAt != nil {
		out := Outcome{Replayed: true, Passed: prior.Status == models.StageCompleted}
		if prior.Score != nil {
			out.Score = *prior.Score
		}
		return out, nil
	}

	if a.Status != models.AttemptInProgress {
		return Outcome{}, apperrors.ErrStageMismatch.With("attempt is %s", a.Status)
	}
	if sub.StageIndex != a.CurrentStage {
		return Outcome{}, apperrors.ErrStageMismatch.With("stage %d is not the current stage (%d)", sub.StageIndex, a.CurrentStage)
	}
	if Overdue(a, def, now) {
		return Outcome{}, apperrors.ErrStageMismatch.With("stage %d deadline has passed", sub.StageIndex)
	}

	stageDef := def.Stages[sub.StageIndex]
	score, err := stageScore(stageDef, sub)
	if err != nil {
		return Outcome{}, err
	}

	st := &a.Stages[sub.StageIndex]
	st.Score = &score
	st.SubmittedAt = timePtr(now)
	st.SubmissionKey = sub.SubmissionKey
	st.SubmissionID = sub.SubmissionID
	a.UpdatedAt = now

	if score < stageDef.PassThreshold {
		st.Status = models.StageFailed
		fail(a, fmt.Sprintf("%s stage score %.2f below pass threshold %.2f", stageDef.Kind, score, stageDef.PassThreshold), now)
		return Outcome{Score: score}, nil
	}

	st.Status = models.StageCompleted
	advance(a, now)
	return Outcome{Score: score, Passed: true}, nil
}

func stageScore(stageDef models.StageSpec, sub Submission) (float64, error) {
	if stageDef.Kind == models.StageMCQ {
		return ScoreMCQ(stageDef.Items, sub.Answers), nil
	}
	if sub.Score == nil {
		return 0, apperrors.Invalid("score", fmt.Sprintf("a judged score is required for %s stages", stageDef.Kind))
	}
	if *sub.Score < 0 || *sub.Score > 100 {
		return 0, apperrors.Invalid("score", "must be between 0 and 100")
	}
	return *sub.Score, nil
}

// Deadline returns the earliest of the current stage's deadline and the
// test's overall time limit. ok is false when neither applies.
func Deadline(a *models.Attempt, def *models.TestDefinition) (deadline time.Time, ok bool) {
	if def.TimeLimitMinutes > 0 {
		deadline = timeLimitStart(a).Add(time.Duration(def.TimeLimitMinutes) * time.Minute)
		ok = true
	}
	cur := a.Current()
	if cur == nil || cur.StartedAt == nil || a.CurrentStage >= len(def.Stages) {
		return deadline, ok
	}
	if d := def.Stages[a.CurrentStage].DurationMinutes; d > 0 {
		stageDeadline := cur.StartedAt.Add(time.Duration(d) * time.Minute)
		if !ok || stageDeadline.Before(deadline) {
			deadline = stageDeadline
		}
		ok = true
	}
	return deadline, ok
}

// timeLimitStart is when the overall time limit began counting. It is the
// attempt's creation until an administrative resume restarts it.
func timeLimitStart(a *models.Attempt) time.Time {
	if a.TimeLimitStartedAt != nil {
		return *a.TimeLimitStartedAt
	}
	return a.CreatedAt
}

// Overdue reports whether an in-progress attempt has passed its deadline
func Overdue(a *models.Attempt, def *models.TestDefinition, now time.Time) bool {
	if a.Status != models.AttemptInProgress {
		return false
	}
	deadline, ok := Deadline(a, def)
	return ok && now.After(deadline)
}

// Expire ends an overdue attempt. An attempt with no submitted answers is
// abandoned, any other is failed. It reports whether the attempt changed and
// is a no-op on terminal or still-running attempts.
func Expire(a *models.Attempt, def *models.TestDefinition, now time.Time) bool {
	if !Overdue(a, def, now) {
		return false
	}
	if cur := a.Current(); cur != nil {
		cur.Status = models.StageFailed
	}
	if a.AnySubmitted() {
		a.Status = models.AttemptFailed
	} else {
		a.Status = models.AttemptAbandoned
	}
	a.FailureReason = ReasonTimeLimit
	a.CompletedAt = timePtr(now)
	a.UpdatedAt = now
	return true
}

// ForceFail fails an in-progress attempt with the given reason. It reports
// whether the attempt changed.
func ForceFail(a *models.Attempt, reason string, now time.Time) bool {
	if a.Status != models.AttemptInProgress {
		return false
	}
	if cur := a.Current(); cur != nil {
		cur.Status = models.StageFailed
	}
	fail(a, reason, now)
	return true
}

// AdministrativeResume repairs a failed attempt: the failed stage is marked
// completed with overrideScore and the attempt resumes at the next stage.
// The overall time limit restarts at now.
func AdministrativeResume(a *models.Attempt, def *models.TestDefinition, caller models.Caller, targetStage int, overrideScore float64, now time.Time) error {
	if !caller.IsPrivileged() {
		return apperrors.ErrNotAuthorized.With("administrative resume requires a privileged caller")
	}
	if a.Status != models.AttemptFailed {
		return apperrors.ErrNotAuthorized.With("administrative resume requires a failed attempt, attempt is %s", a.Status)
	}
	if targetStage != a.CurrentStage || targetStage < 0 || targetStage >= len(a.Stages) {
		return apperrors.Invalid("target_stage", fmt.Sprintf("must be the failed stage (%d)", a.CurrentStage))
	}
	if overrideScore < 0 || overrideScore > 100 {
		return apperrors.Invalid("override_score", "must be between 0 and 100")
	}

	st := &a.Stages[targetStage]
	st.Status = models.StageCompleted
	st.Score = &overrideScore
	st.Overridden = true
	if st.SubmittedAt == nil {
		st.SubmittedAt = timePtr(now)
	}

	a.Status = models.AttemptInProgress
	a.FailureReason = ""
	a.CompletedAt = nil
	a.TimeLimitStartedAt = timePtr(now)
	a.UpdatedAt = now
	advance(a, now)
	return nil
}

func advance(a *models.Attempt, now time.Time) {
	a.CurrentStage++
	if a.CurrentStage >= len(a.Stages) {
		a.CurrentStage = len(a.Stages)
		a.Status = models.AttemptCompleted
		a.CompletedAt = timePtr(now)
		return
	}
	enterStage(a, a.CurrentStage, now)
}

func enterStage(a *models.Attempt, idx int, now time.Time) {
	if idx >= len(a.Stages) {
		a.CurrentStage = len(a.Stages)
		a.Status = models.AttemptCompleted
		a.CompletedAt = timePtr(now)
		return
	}
	a.Stages[idx].Status = models.StageInProgress
	a.Stages[idx].StartedAt = timePtr(now)
}

func fail(a *models.Attempt, reason string, now time.Time) {
	a.Status = models.AttemptFailed
	a.FailureReason = reason
	a.CompletedAt = timePtr(now)
	a.UpdatedAt = now
}

func timePtr(t time.Time) *time.Time {
	return &t
}
