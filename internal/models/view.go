package models

import "time"

// ItemView is a stage item as shown to the student, without its answer key
type ItemView struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options,omitempty"`
}

// AttemptView is a consistent snapshot of an attempt returned to callers
type AttemptView struct {
	ID            string        `json:"id"`
	StudentID     string        `json:"student_id"`
	TestID        string        `json:"test_id"`
	Status        AttemptStatus `json:"overall_status"`
	CurrentStage  int           `json:"current_stage"`
	Stages        []StageState  `json:"stages"`
	AttemptNumber int           `json:"attempt_number"`
	FailureReason string        `json:"failure_reason,omitempty"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
	Version       int           `json:"version"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`

	// Items holds the current stage's items in the attempt's stable order
	Items    []ItemView `json:"items,omitempty"`
	Deadline *time.Time `json:"deadline,omitempty"`
	Replayed bool       `json:"replayed,omitempty"`
}
