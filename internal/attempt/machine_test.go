package attempt

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proctorexam/internal/apperrors"
	"proctorexam/internal/models"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testDefinition() *models.TestDefinition {
	return &models.TestDefinition{
		ID: "test-1",
		Stages: []models.StageSpec{
			{
				Kind: models.StageMCQ,
				Items: []models.StageItem{
					{ID: "q1", Options: []string{"2", "3", "4"}, Answer: "C"},
					{ID: "q2", Options: []string{"red", "blue"}, Answer: "blue"},
					{ID: "q3", Options: []string{"yes", "no"}, Answer: "0"},
					{ID: "q4", Options: []string{"a", "b"}, Answer: "A"},
				},
				DurationMinutes: 30,
				PassThreshold:   60,
			},
			{Kind: models.StageCoding, DurationMinutes: 60, PassThreshold: 50},
			{Kind: models.StageInterview},
		},
		MaxAttempts: 2,
	}
}

func score(v float64) *float64 { return &v }

func newAttempt(def *models.TestDefinition) *models.Attempt {
	return New("att-1", def, "student-1", 1, 1234, t0)
}

func TestNew(t *testing.T) {
	a := newAttempt(testDefinition())

	assert.Equal(t, models.AttemptInProgress, a.Status)
	assert.Equal(t, 0, a.CurrentStage)
	require.Len(t, a.Stages, 3)
	assert.Equal(t, models.StageInProgress, a.Stages[0].Status)
	assert.Equal(t, t0, *a.Stages[0].StartedAt)
	assert.Equal(t, models.StagePending, a.Stages[1].Status)
	assert.Equal(t, int64(1234), a.ShuffleSeed)
}

func TestSubmitStageFullRun(t *testing.T) {
	def := testDefinition()
	a := newAttempt(def)

	out, err := SubmitStage(a, def, Submission{
		StageIndex: 0,
		Answers:    map[string]string{"q1": "c", "q2": "1", "q3": "yes"},
	}, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, out.Passed)
	assert.Equal(t, 75.0, out.Score)
	assert.Equal(t, 1, a.CurrentStage)
	assert.Equal(t, models.StageCompleted, a.Stages[0].Status)
	assert.Equal(t, models.StageInProgress, a.Stages[1].Status)

	_, err = SubmitStage(a, def, Submission{StageIndex: 1, Score: score(80), SubmissionID: "sub-9"}, t0.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "sub-9", a.Stages[1].SubmissionID)

	_, err = SubmitStage(a, def, Submission{StageIndex: 2, Score: score(0)}, t0.Add(20*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.AttemptCompleted, a.Status)
	assert.Equal(t, 3, a.CurrentStage)
	require.NotNil(t, a.CompletedAt)
}

func TestSubmitStageFailsBelowThreshold(t *testing.T) {
	def := testDefinition()
	a := newAttempt(def)

	out, err := SubmitStage(a, def, Submission{StageIndex: 0, Answers: map[string]string{"q1": "A"}}, t0)
	require.NoError(t, err)
	assert.False(t, out.Passed)
	assert.Equal(t, 0.0, out.Score)
	assert.Equal(t, models.AttemptFailed, a.Status)
	assert.Equal(t, models.StageFailed, a.Stages[0].Status)
	assert.Equal(t, 0, a.CurrentStage, "failed attempts stay on the failed stage")
	assert.Contains(t, a.FailureReason, "below pass threshold")
}

func TestSubmitStageRejections(t *testing.T) {
	tests := []struct {
		name     string
		prepare  func(a *models.Attempt)
		sub      Submission
		wantErr  error
		wantKind apperrors.Kind
	}{
		{
			name:     "wrong stage",
			sub:      Submission{StageIndex: 1, Score: score(90)},
			wantErr:  apperrors.ErrStageMismatch,
			wantKind: apperrors.KindPolicy,
		},
		{
			name:     "stage out of range",
			sub:      Submission{StageIndex: 7},
			wantKind: apperrors.KindValidation,
		},
		{
			name:     "terminal attempt",
			prepare:  func(a *models.Attempt) { a.Status = models.AttemptFailed },
			sub:      Submission{StageIndex: 0},
			wantErr:  apperrors.ErrStageMismatch,
			wantKind: apperrors.KindPolicy,
		},
		{
			name:     "coding stage without judged score",
			prepare:  func(a *models.Attempt) { a.CurrentStage = 1 },
			sub:      Submission{StageIndex: 1},
			wantKind: apperrors.KindValidation,
		},
		{
			name:     "judged score out of range",
			prepare:  func(a *models.Attempt) { a.CurrentStage = 1 },
			sub:      Submission{StageIndex: 1, Score: score(140)},
			wantKind: apperrors.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := testDefinition()
			a := newAttempt(def)
			if tt.prepare != nil {
				tt.prepare(a)
			}
			before := *a
			beforeStages := append([]models.StageState(nil), a.Stages...)

			_, err := SubmitStage(a, def, tt.sub, t0.Add(time.Minute))
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
			}
			assert.Equal(t, tt.wantKind, apperrors.KindOf(err))

			assert.Equal(t, before.Status, a.Status)
			assert.Equal(t, before.CurrentStage, a.CurrentStage)
			assert.Equal(t, before.UpdatedAt, a.UpdatedAt)
			assert.Equal(t, beforeStages, a.Stages)
		})
	}
}

func TestSubmitStageReplay(t *testing.T) {
	def := testDefinition()
	a := newAttempt(def)
	sub := Submission{StageIndex: 0, Answers: map[string]string{"q1": "C", "q2": "B", "q3": "A", "q4": "A"}, SubmissionKey: "k-1"}

	first, err := SubmitStage(a, def, sub, t0)
	require.NoError(t, err)
	assert.Equal(t, 100.0, first.Score)
	updated := a.UpdatedAt

	second, err := SubmitStage(a, def, sub, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, 1, a.CurrentStage)
	assert.Equal(t, updated, a.UpdatedAt)

	sub.SubmissionKey = "k-2"
	_, err = SubmitStage(a, def, sub, t0.Add(time.Minute))
	assert.True(t, errors.Is(err, apperrors.ErrStageMismatch))
}

func TestDeadlineAndExpire(t *testing.T) {
	t.Run("abandoned without answers", func(t *testing.T) {
		def := testDefinition()
		a := newAttempt(def)

		assert.False(t, Expire(a, def, t0.Add(29*time.Minute)))
		assert.True(t, Expire(a, def, t0.Add(31*time.Minute)))
		assert.Equal(t, models.AttemptAbandoned, a.Status)
		assert.Equal(t, ReasonTimeLimit, a.FailureReason)
		assert.False(t, Expire(a, def, t0.Add(40*time.Minute)), "expire is idempotent")
	})

	t.Run("failed after answers", func(t *testing.T) {
		def := testDefinition()
		a := newAttempt(def)
		_, err := SubmitStage(a, def, Submission{StageIndex: 0, Answers: map[string]string{"q1": "C", "q2": "B", "q3": "A"}}, t0.Add(5*time.Minute))
		require.NoError(t, err)

		deadline, ok := Deadline(a, def)
		require.True(t, ok)
		assert.Equal(t, t0.Add(65*time.Minute), deadline)

		assert.True(t, Expire(a, def, t0.Add(66*time.Minute)))
		assert.Equal(t, models.AttemptFailed, a.Status)
		assert.Equal(t, models.StageFailed, a.Stages[1].Status)
	})

	t.Run("late submission is rejected without changes", func(t *testing.T) {
		def := testDefinition()
		a := newAttempt(def)

		_, err := SubmitStage(a, def, Submission{StageIndex: 0, Answers: map[string]string{"q1": "C"}}, t0.Add(31*time.Minute))
		assert.True(t, errors.Is(err, apperrors.ErrStageMismatch))
		assert.Equal(t, models.AttemptInProgress, a.Status)
		assert.Nil(t, a.Stages[0].SubmittedAt)
	})

	t.Run("overall time limit wins when earlier", func(t *testing.T) {
		def := testDefinition()
		def.TimeLimitMinutes = 10
		a := newAttempt(def)

		deadline, ok := Deadline(a, def)
		require.True(t, ok)
		assert.Equal(t, t0.Add(10*time.Minute), deadline)
	})

	t.Run("untimed stage never expires", func(t *testing.T) {
		def := testDefinition()
		def.Stages[0].DurationMinutes = 0
		a := newAttempt(def)

		_, ok := Deadline(a, def)
		assert.False(t, ok)
		assert.False(t, Expire(a, def, t0.Add(1000*time.Hour)))
	})
}

func TestForceFail(t *testing.T) {
	def := testDefinition()
	a := newAttempt(def)

	assert.True(t, ForceFail(a, "proctoring violation: tab-switch limit exceeded", t0))
	assert.Equal(t, models.AttemptFailed, a.Status)
	assert.Equal(t, models.StageFailed, a.Stages[0].Status)
	assert.False(t, ForceFail(a, "again", t0))
	assert.Equal(t, "proctoring violation: tab-switch limit exceeded", a.FailureReason)
}

func TestAdministrativeResume(t *testing.T) {
	admin := models.Caller{StudentID: "ops", Role: models.RoleAdmin}
	student := models.Caller{StudentID: "student-1", Role: models.RoleStudent}

	failedAttempt := func(def *models.TestDefinition) *models.Attempt {
		a := newAttempt(def)
		_, err := SubmitStage(a, def, Submission{StageIndex: 0, Answers: map[string]string{}}, t0)
		require.NoError(t, err)
		require.Equal(t, models.AttemptFailed, a.Status)
		return a
	}

	t.Run("resumes at next stage", func(t *testing.T) {
		def := testDefinition()
		a := failedAttempt(def)

		require.NoError(t, AdministrativeResume(a, def, admin, 0, 72.5, t0.Add(time.Hour)))
		assert.Equal(t, models.AttemptInProgress, a.Status)
		assert.Equal(t, 1, a.CurrentStage)
		assert.Equal(t, models.StageCompleted, a.Stages[0].Status)
		assert.Equal(t, 72.5, *a.Stages[0].Score)
		assert.True(t, a.Stages[0].Overridden)
		assert.Equal(t, models.StageInProgress, a.Stages[1].Status)
		assert.Empty(t, a.FailureReason)
		assert.Nil(t, a.CompletedAt)
	})

	t.Run("student is not authorized", func(t *testing.T) {
		def := testDefinition()
		a := failedAttempt(def)
		err := AdministrativeResume(a, def, student, 0, 70, t0)
		assert.True(t, errors.Is(err, apperrors.ErrNotAuthorized))
		assert.Equal(t, models.AttemptFailed, a.Status)
	})

	t.Run("non-failed attempt is rejected", func(t *testing.T) {
		def := testDefinition()
		a := newAttempt(def)
		err := AdministrativeResume(a, def, admin, 0, 70, t0)
		assert.True(t, errors.Is(err, apperrors.ErrNotAuthorized))
		assert.Equal(t, 0, a.CurrentStage)
	})

	t.Run("target must be the failed stage", func(t *testing.T) {
		def := testDefinition()
		a := failedAttempt(def)
		err := AdministrativeResume(a, def, admin, 1, 70, t0)
		assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	})

	t.Run("overall time limit restarts", func(t *testing.T) {
		def := testDefinition()
		def.TimeLimitMinutes = 90
		a := newAttempt(def)
		_, err := SubmitStage(a, def, Submission{StageIndex: 0, Answers: map[string]string{}}, t0.Add(20*time.Minute))
		require.NoError(t, err)
		require.Equal(t, models.AttemptFailed, a.Status)

		resumedAt := t0.Add(3 * time.Hour)
		require.NoError(t, AdministrativeResume(a, def, admin, 0, 70, resumedAt))
		assert.Equal(t, resumedAt, *a.TimeLimitStartedAt)
		assert.False(t, Overdue(a, def, resumedAt.Add(time.Second)))

		deadline, ok := Deadline(a, def)
		require.True(t, ok)
		assert.Equal(t, resumedAt.Add(60*time.Minute), deadline)
		assert.False(t, Expire(a, def, resumedAt.Add(time.Second)))

		out, err := SubmitStage(a, def, Submission{StageIndex: 1, Score: score(80)}, resumedAt.Add(10*time.Minute))
		require.NoError(t, err)
		assert.True(t, out.Passed)
		assert.Equal(t, 2, a.CurrentStage)

		deadline, ok = Deadline(a, def)
		require.True(t, ok)
		assert.Equal(t, resumedAt.Add(90*time.Minute), deadline)
		assert.True(t, Expire(a, def, resumedAt.Add(91*time.Minute)))
	})

	t.Run("resuming the last stage completes", func(t *testing.T) {
		def := &models.TestDefinition{ID: "t", Stages: []models.StageSpec{{Kind: models.StageMCQ, PassThreshold: 101}}}
		a := New("a", def, "s", 1, 0, t0)
		_, err := SubmitStage(a, def, Submission{StageIndex: 0}, t0)
		require.NoError(t, err)
		require.Equal(t, models.AttemptFailed, a.Status)

		require.NoError(t, AdministrativeResume(a, def, admin, 0, 90, t0))
		assert.Equal(t, models.AttemptCompleted, a.Status)
		assert.Equal(t, 1, a.CurrentStage)
	})
}
