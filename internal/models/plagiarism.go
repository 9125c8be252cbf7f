package models

import "time"

// Intensity is the banded classification of a suspicion score
type Intensity string

const (
	IntensityLow      Intensity = "LOW"
	IntensityMedium   Intensity = "MEDIUM"
	IntensityHigh     Intensity = "HIGH"
	IntensityCritical Intensity = "CRITICAL"
)

// ReviewStatus is set by human reviewers
type ReviewStatus string

const (
	ReviewPending   ReviewStatus = "pending"
	ReviewReviewed  ReviewStatus = "reviewed"
	ReviewDismissed ReviewStatus = "dismissed"
	ReviewConfirmed ReviewStatus = "confirmed"
)

// SimilarityResult is one detection algorithm's finding for a submission
type SimilarityResult struct {
	SubmissionID        string    `json:"submission_id" validate:"required"`
	StudentID           string    `json:"student_id"`
	ProblemID           string    `json:"problem_id"`
	MatchType           string    `json:"match_type" validate:"required"`
	MatchedSubmissionID string    `json:"matched_submission_id" validate:"required"`
	MatchedStudentID    string    `json:"matched_student_id"`
	SimilarityScore     float64   `json:"similarity_score" validate:"gte=0,lte=1"`
	RecordedAt          time.Time `json:"recorded_at"`
}

// PlagiarismMatch is one matched submission listed on a report
type PlagiarismMatch struct {
	MatchedSubmissionID string  `json:"matched_submission_id"`
	MatchedStudentID    string  `json:"matched_student_id"`
	SimilarityScore     float64 `json:"similarity_score"`
	MatchType           string  `json:"match_type"`
}

// PlagiarismReport is the aggregated suspicion for one submission
type PlagiarismReport struct {
	ID                   string            `json:"id"`
	SubmissionID         string            `json:"submission_id"`
	StudentID            string            `json:"student_id"`
	ProblemID            string            `json:"problem_id"`
	SuspicionScore       float64           `json:"suspicion_score"`
	MaxSimilarity        float64           `json:"max_similarity"`
	Intensity            Intensity         `json:"intensity_level"`
	Recommendation       string            `json:"recommendation"`
	SuspiciousMatchCount int               `json:"suspicious_match_count"`
	ReviewStatus         ReviewStatus      `json:"review_status"`
	ReviewNotes          string            `json:"review_notes,omitempty"`
	ReviewedBy           string            `json:"reviewed_by,omitempty"`
	ReviewedAt           *time.Time        `json:"reviewed_at,omitempty"`
	Matches              []PlagiarismMatch `json:"matches"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}
