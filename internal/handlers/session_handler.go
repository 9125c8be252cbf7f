package handlers

import (
	"net/http"
	"strconv"

	"proctorexam/internal/apperrors"
	"proctorexam/internal/attempt"
	"proctorexam/internal/service"
)

// SessionHandler exposes the attempt lifecycle to students
type SessionHandler struct {
	sessions *service.SessionService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions *service.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

type startRequest struct {
	StudentID string `json:"student_id"`
}

type submitRequest struct {
	Answers       map[string]string `json:"answers"`
	Score         *float64          `json:"score"`
	SubmissionID  string            `json:"submission_id"`
	SubmissionKey string            `json:"submission_key"`
}

// StartAttempt handles POST /api/tests/{testId}/attempts
func (h *SessionHandler) StartAttempt(w http.ResponseWriter, r *http.Request) {
	caller, _ := GetCallerFromContext(r.Context())

	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, r, err)
		return
	}

	view, err := h.sessions.StartAttempt(r.Context(), caller, r.PathValue("testId"), req.StudentID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, view)
}

// ListAttempts handles GET /api/tests/{testId}/attempts
func (h *SessionHandler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	caller, _ := GetCallerFromContext(r.Context())

	summary, err := h.sessions.ListAttempts(r.Context(), caller, r.PathValue("testId"), r.URL.Query().Get("student_id"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// SubmitAnswers handles POST /api/attempts/{id}/stages/{stage}/answers
func (h *SessionHandler) SubmitAnswers(w http.ResponseWriter, r *http.Request) {
	caller, _ := GetCallerFromContext(r.Context())

	stage, err := strconv.Atoi(r.PathValue("stage"))
	if err != nil {
		respondWithError(w, r, apperrors.Invalid("stage_index", "must be an integer"))
		return
	}

	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, r, err)
		return
	}
	if req.SubmissionKey == "" {
		req.SubmissionKey = r.Header.Get("Idempotency-Key")
	}

	view, err := h.sessions.SubmitAnswers(r.Context(), caller, r.PathValue("id"), attempt.Submission{
		StageIndex:    stage,
		Answers:       req.Answers,
		Score:         req.Score,
		SubmissionID:  req.SubmissionID,
		SubmissionKey: req.SubmissionKey,
	})
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// ReportViolation handles POST /api/attempts/{id}/violations
func (h *SessionHandler) ReportViolation(w http.ResponseWriter, r *http.Request) {
	caller, _ := GetCallerFromContext(r.Context())

	var in service.ViolationInput
	if err := decodeJSON(r, &in); err != nil {
		respondWithError(w, r, err)
		return
	}

	view, err := h.sessions.ReportViolation(r.Context(), caller, r.PathValue("id"), in)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, view)
}

// GetAttempt handles GET /api/attempts/{id}
func (h *SessionHandler) GetAttempt(w http.ResponseWriter, r *http.Request) {
	caller, _ := GetCallerFromContext(r.Context())

	view, err := h.sessions.RequestCurrentState(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}
