package models

import "time"

// AuditAction names an attempt transition recorded in the audit log
type AuditAction string

const (
	AuditStarted        AuditAction = "started"
	AuditStageSubmitted AuditAction = "stage_submitted"
	AuditProctoringFail AuditAction = "proctoring_failed"
	AuditExpired        AuditAction = "expired"
	AuditResumed        AuditAction = "administrative_resume"
)

// AuditEntry records one transition of an attempt and who caused it
type AuditEntry struct {
	ID         int64         `json:"id"`
	AttemptID  string        `json:"attempt_id"`
	Action     AuditAction   `json:"action"`
	Actor      string        `json:"actor"`
	FromStatus AttemptStatus `json:"from_status"`
	ToStatus   AttemptStatus `json:"to_status"`
	Stage      int           `json:"stage"`
	Detail     string        `json:"detail,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}
