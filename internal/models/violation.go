package models

import (
	"encoding/json"
	"time"
)

// ViolationKind identifies a proctoring signal
type ViolationKind string

const (
	ViolationTabSwitch    ViolationKind = "tab_switch"
	ViolationCopyPaste    ViolationKind = "copy_paste"
	ViolationNoFace       ViolationKind = "no_face"
	ViolationMultiFace    ViolationKind = "multi_face"
	ViolationAudioAnomaly ViolationKind = "audio_anomaly"
)

// ViolationEvent is an append-only proctoring record owned by an attempt
type ViolationEvent struct {
	ID         string          `json:"id"`
	AttemptID  string          `json:"attempt_id"`
	EventID    string          `json:"event_id"`
	Kind       ViolationKind   `json:"kind"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// ViolationSummary aggregates the evidence recorded against an attempt
type ViolationSummary struct {
	AttemptID   string                `json:"attempt_id"`
	Total       int                   `json:"total"`
	ByKind      map[ViolationKind]int `json:"by_kind"`
	Score       int                   `json:"score"`
	Severity    string                `json:"severity"`
	FlagReasons []string              `json:"flag_reasons"`
}
