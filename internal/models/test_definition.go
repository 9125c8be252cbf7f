package models

import "time"

// StageKind identifies the kind of a test stage
type StageKind string

const (
	StageMCQ       StageKind = "mcq"
	StageCoding    StageKind = "coding"
	StageInterview StageKind = "interview"
)

// Valid reports whether k is a recognized stage kind
func (k StageKind) Valid() bool {
	switch k {
	case StageMCQ, StageCoding, StageInterview:
		return true
	}
	return false
}

// StageItem is one question in a stage's item pool
type StageItem struct {
	ID      string   `json:"id" validate:"required"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options,omitempty"`
	// Answer is the MCQ answer key: an option letter, an option index or the option text
	Answer string `json:"answer,omitempty"`
}

// StageSpec describes one stage of a test
type StageSpec struct {
	Kind            StageKind   `json:"kind" validate:"required,oneof=mcq coding interview"`
	Items           []StageItem `json:"items" validate:"dive"`
	DurationMinutes int         `json:"duration_minutes" validate:"gte=0"`
	// PassThreshold is the minimum score (0-100) needed to pass; 0 accepts any score
	PassThreshold float64 `json:"pass_threshold" validate:"gte=0,lte=100"`
}

// ProctoringConfig holds the recognized proctoring options for a test.
// Absent options default to disabled.
type ProctoringConfig struct {
	Enabled           bool `json:"enabled"`
	RequireVideoAudio bool `json:"require_video_audio"`
	DisableCopyPaste  bool `json:"disable_copy_paste"`
	TrackTabSwitches  bool `json:"track_tab_switches"`
	MaxTabSwitches    int  `json:"max_tab_switches" validate:"gte=0"`
}

// TestDefinition is an authored test. It is read-only to the engine.
type TestDefinition struct {
	ID          string           `json:"id" validate:"required"`
	Title       string           `json:"title"`
	Stages      []StageSpec      `json:"stages" validate:"required,min=1,dive"`
	Proctoring  ProctoringConfig `json:"proctoring"`
	MaxAttempts int              `json:"max_attempts" validate:"gte=0"` // 0 = unlimited
	// TimeLimitMinutes bounds the whole attempt; 0 means only stage durations apply
	TimeLimitMinutes int       `json:"time_limit_minutes" validate:"gte=0"`
	CreatedAt        time.Time `json:"created_at"`
}

// Unlimited reports whether the test allows any number of attempts
func (t *TestDefinition) Unlimited() bool {
	return t.MaxAttempts == 0
}
