package handlers

import "net/http"

// Handlers bundles everything the router needs
type Handlers struct {
	Middleware *Middleware
	Session    *SessionHandler
	Admin      *AdminHandler
	Plagiarism *PlagiarismHandler
}

// NewRouter registers the API routes and wraps them in request logging
func NewRouter(h Handlers) http.Handler {
	mux := http.NewServeMux()
	m := h.Middleware

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Attempt lifecycle
	mux.HandleFunc("POST /api/tests/{testId}/attempts", m.RequireCaller(h.Session.StartAttempt))
	mux.HandleFunc("GET /api/tests/{testId}/attempts", m.RequireCaller(h.Session.ListAttempts))
	mux.HandleFunc("GET /api/attempts/{id}", m.RequireCaller(h.Session.GetAttempt))
	mux.HandleFunc("POST /api/attempts/{id}/stages/{stage}/answers", m.RequireCaller(h.Session.SubmitAnswers))
	mux.HandleFunc("POST /api/attempts/{id}/violations", m.RequireCaller(m.RateLimit(h.Session.ReportViolation)))

	// Administration
	mux.HandleFunc("POST /api/admin/attempts/{id}/resume", m.RequireCaller(h.Admin.ResumeAttempt))
	mux.HandleFunc("POST /api/admin/attempts/{id}/expire", m.RequireCaller(h.Admin.ExpireAttempt))
	mux.HandleFunc("GET /api/admin/attempts/{id}/evidence", m.RequireCaller(h.Admin.ExportEvidence))

	// Plagiarism
	mux.HandleFunc("POST /api/plagiarism/similarities", m.RequireCaller(h.Plagiarism.RecordSimilarities))
	mux.HandleFunc("GET /api/plagiarism/reports", m.RequireCaller(h.Plagiarism.ListReports))
	mux.HandleFunc("GET /api/plagiarism/reports/{submissionId}", m.RequireCaller(h.Plagiarism.GetReport))
	mux.HandleFunc("POST /api/plagiarism/reports/{submissionId}/review", m.RequireCaller(h.Plagiarism.ReviewReport))

	return Logging(mux)
}
