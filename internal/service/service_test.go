package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"proctorexam/internal/database"
	"proctorexam/internal/database/dbtest"
	"proctorexam/internal/models"
	"proctorexam/internal/plagiarism"
	"proctorexam/internal/repository"
)

var (
	student  = models.Caller{StudentID: "student-1", Role: models.RoleStudent}
	other    = models.Caller{StudentID: "student-2", Role: models.RoleStudent}
	admin    = models.Caller{StudentID: "admin-1", Role: models.RoleAdmin}
	reviewer = models.Caller{StudentID: "reviewer-1", Role: models.RoleReviewer}
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []plagiarism.Job
	err  error
}

func (q *recordingQueue) Enqueue(job plagiarism.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) Jobs() []plagiarism.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]plagiarism.Job(nil), q.jobs...)
}

// screeningTest has an MCQ stage (q1=B, q2=A, q3=C, q4=A), a coding stage and
// an untimed interview.
func screeningTest(id string) *models.TestDefinition {
	return &models.TestDefinition{
		ID:    id,
		Title: "Screening",
		Stages: []models.StageSpec{
			{
				Kind:            models.StageMCQ,
				DurationMinutes: 30,
				PassThreshold:   50,
				Items: []models.StageItem{
					{ID: "q1", Prompt: "2+2", Options: []string{"3", "4"}, Answer: "B"},
					{ID: "q2", Prompt: "Go keyword for goroutines", Options: []string{"go", "async"}, Answer: "A"},
					{ID: "q3", Prompt: "Zero value of int", Options: []string{"nil", "1", "0"}, Answer: "C"},
					{ID: "q4", Prompt: "Channel close panics on", Options: []string{"closed channel", "open channel"}, Answer: "A"},
				},
			},
			{Kind: models.StageCoding, DurationMinutes: 60, PassThreshold: 40},
			{Kind: models.StageInterview},
		},
		Proctoring: models.ProctoringConfig{
			Enabled:           true,
			RequireVideoAudio: true,
			TrackTabSwitches:  true,
			MaxTabSwitches:    2,
		},
		MaxAttempts: 2,
	}
}

var passingMCQ = map[string]string{"q1": "B", "q2": "A", "q3": "C", "q4": "B"}

type fixture struct {
	db    *database.DB
	clock *fakeClock
	queue *recordingQueue
	svc   *SessionService
}

func newFixture(t *testing.T, defs ...*models.TestDefinition) *fixture {
	t.Helper()
	db := dbtest.New(t)
	if len(defs) == 0 {
		defs = []*models.TestDefinition{screeningTest("test-1")}
	}
	for _, def := range defs {
		require.NoError(t, repository.NewTestRepository(db).Save(context.Background(), def))
	}

	clock := newFakeClock()
	queue := &recordingQueue{}
	svc := NewSessionService(db, SessionOptions{LockWait: 5 * time.Second, Now: clock.Now, Queue: queue})
	return &fixture{db: db, clock: clock, queue: queue, svc: svc}
}

func score(v float64) *float64 { return &v }
