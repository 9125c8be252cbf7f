package models

import "time"

// AttemptStatus is the overall status of an attempt
type AttemptStatus string

const (
	AttemptNotStarted AttemptStatus = "not_started"
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
	AttemptFailed     AttemptStatus = "failed"
	AttemptAbandoned  AttemptStatus = "abandoned"
)

// Terminal reports whether no further transitions are allowed from s
// (other than an administrative resume from failed).
func (s AttemptStatus) Terminal() bool {
	return s == AttemptCompleted || s == AttemptFailed || s == AttemptAbandoned
}

// StageStatus is the status of a single stage within an attempt
type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageInProgress StageStatus = "in_progress"
	StageCompleted  StageStatus = "completed"
	StageFailed     StageStatus = "failed"
)

// StageState records the progress and score of one stage
type StageState struct {
	Kind          StageKind   `json:"kind"`
	Status        StageStatus `json:"status"`
	Score         *float64    `json:"score,omitempty"`
	StartedAt     *time.Time  `json:"started_at,omitempty"`
	SubmittedAt   *time.Time  `json:"submitted_at,omitempty"`
	SubmissionKey string      `json:"submission_key,omitempty"`
	SubmissionID  string      `json:"submission_id,omitempty"`
	Overridden    bool        `json:"overridden,omitempty"`
}

// Attempt is one student's run of one test
type Attempt struct {
	ID        string        `json:"id"`
	StudentID string        `json:"student_id"`
	TestID    string        `json:"test_id"`
	Status    AttemptStatus `json:"overall_status"`
	// CurrentStage indexes Stages; it equals len(Stages) once the attempt completes
	CurrentStage  int          `json:"current_stage"`
	Stages        []StageState `json:"stages"`
	AttemptNumber int          `json:"attempt_number"`
	ShuffleSeed   int64        `json:"shuffle_seed"`
	FailureReason string       `json:"failure_reason,omitempty"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
	// TimeLimitStartedAt restarts the test's overall time limit; nil means CreatedAt
	TimeLimitStartedAt *time.Time `json:"time_limit_started_at,omitempty"`
	Version            int        `json:"version"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// IsTerminal reports whether the attempt has finished
func (a *Attempt) IsTerminal() bool {
	return a.Status.Terminal()
}

// AnySubmitted reports whether any stage has received answers
func (a *Attempt) AnySubmitted() bool {
	for _, s := range a.Stages {
		if s.SubmittedAt != nil {
			return true
		}
	}
	return false
}

// Current returns the state of the current stage, or nil once completed
func (a *Attempt) Current() *StageState {
	if a.CurrentStage < 0 || a.CurrentStage >= len(a.Stages) {
		return nil
	}
	return &a.Stages[a.CurrentStage]
}

// AttemptSummary reports how many attempts a student has used on a test
type AttemptSummary struct {
	TestID            string     `json:"test_id"`
	StudentID         string     `json:"student_id"`
	MaxAttempts       int        `json:"max_attempts"`
	AttemptsUsed      int        `json:"attempts_used"`
	AttemptsRemaining int        `json:"attempts_remaining"` // -1 when unlimited
	CanAttempt        bool       `json:"can_attempt"`
	ActiveAttemptID   string     `json:"active_attempt_id,omitempty"`
	Attempts          []*Attempt `json:"attempts"`
}
