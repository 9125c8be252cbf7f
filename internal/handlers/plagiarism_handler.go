package handlers

import (
	"net/http"

	"proctorexam/internal/models"
	"proctorexam/internal/repository"
	"proctorexam/internal/service"
)

// PlagiarismHandler handles similarity intake and report review
type PlagiarismHandler struct {
	plagiarism *service.PlagiarismService
}

// NewPlagiarismHandler creates a new plagiarism handler
func NewPlagiarismHandler(plagiarism *service.PlagiarismService) *PlagiarismHandler {
	return &PlagiarismHandler{plagiarism: plagiarism}
}

// RecordSimilarities handles POST /api/plagiarism/similarities
func (h *PlagiarismHandler) RecordSimilarities(w http.ResponseWriter, r *http.Request) {
	caller, _ := GetCallerFromContext(r.Context())

	var batch service.SimilarityBatch
	if err := decodeJSON(r, &batch); err != nil {
		respondWithError(w, r, err)
		return
	}

	if err := h.plagiarism.RecordSimilarities(r.Context(), caller, batch); err != nil {
		respondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"submission_id": batch.SubmissionID})
}

// GetReport handles GET /api/plagiarism/reports/{submissionId}
func (h *PlagiarismHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	caller, _ := GetCallerFromContext(r.Context())

	report, err := h.plagiarism.GetReport(r.Context(), caller, r.PathValue("submissionId"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// ListReports handles GET /api/plagiarism/reports
func (h *PlagiarismHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	caller, _ := GetCallerFromContext(r.Context())

	q := r.URL.Query()
	reports, err := h.plagiarism.ListReports(r.Context(), caller, repository.ReportFilter{
		Intensity:    models.Intensity(q.Get("intensity")),
		ReviewStatus: models.ReviewStatus(q.Get("review_status")),
		StudentID:    q.Get("student_id"),
	})
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, reports)
}

// ReviewReport handles POST /api/plagiarism/reports/{submissionId}/review
func (h *PlagiarismHandler) ReviewReport(w http.ResponseWriter, r *http.Request) {
	caller, _ := GetCallerFromContext(r.Context())

	var in service.ReviewInput
	if err := decodeJSON(r, &in); err != nil {
		respondWithError(w, r, err)
		return
	}

	report, err := h.plagiarism.Review(r.Context(), caller, r.PathValue("submissionId"), in)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}
