package handlers

import (
	"net/http"

	"proctorexam/internal/apperrors"
	"proctorexam/internal/service"
)

// AdminHandler handles administrative overrides and evidence export
type AdminHandler struct {
	sessions *service.SessionService
	evidence *service.EvidenceService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(sessions *service.SessionService, evidence *service.EvidenceService) *AdminHandler {
	return &AdminHandler{
		sessions: sessions,
		evidence: evidence,
	}
}

type resumeRequest struct {
	TargetStage   *int     `json:"target_stage"`
	OverrideScore *float64 `json:"override_score"`
}

// ResumeAttempt handles POST /api/admin/attempts/{id}/resume
func (h *AdminHandler) ResumeAttempt(w http.ResponseWriter, r *http.Request) {
	caller, _ := GetCallerFromContext(r.Context())

	var req resumeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, r, err)
		return
	}
	if req.TargetStage == nil {
		respondWithError(w, r, apperrors.Invalid("target_stage", "is required"))
		return
	}
	if req.OverrideScore == nil {
		respondWithError(w, r, apperrors.Invalid("override_score", "is required"))
		return
	}

	view, err := h.sessions.AdminOverride(r.Context(), caller, r.PathValue("id"), *req.TargetStage, *req.OverrideScore)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// ExpireAttempt handles POST /api/admin/attempts/{id}/expire
func (h *AdminHandler) ExpireAttempt(w http.ResponseWriter, r *http.Request) {
	caller, _ := GetCallerFromContext(r.Context())
	if !caller.IsPrivileged() {
		respondWithError(w, r, apperrors.ErrNotAuthorized.With("only administrators can expire attempts"))
		return
	}

	expired, err := h.sessions.ExpireAttempt(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"expired": expired})
}

// ExportEvidence handles GET /api/admin/attempts/{id}/evidence
func (h *AdminHandler) ExportEvidence(w http.ResponseWriter, r *http.Request) {
	caller, _ := GetCallerFromContext(r.Context())

	bundle, err := h.evidence.Export(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, bundle)
}
