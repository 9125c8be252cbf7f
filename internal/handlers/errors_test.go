package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"proctorexam/internal/apperrors"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "validation", err: apperrors.Invalid("kind", "is required"), want: http.StatusBadRequest},
		{name: "limit", err: apperrors.ErrAttemptLimitExceeded, want: http.StatusConflict},
		{name: "stage mismatch", err: apperrors.ErrStageMismatch.With("stage 2 is not current"), want: http.StatusConflict},
		{name: "not authorized", err: apperrors.ErrNotAuthorized, want: http.StatusForbidden},
		{name: "conflict", err: apperrors.ErrConcurrencyConflict, want: http.StatusConflict},
		{name: "not found", err: apperrors.ErrAttemptNotFound, want: http.StatusNotFound},
		{name: "persistence", err: apperrors.Persistence(errors.New("disk full")), want: http.StatusServiceUnavailable},
		{name: "unclassified", err: errors.New("boom"), want: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestRespondWithErrorHidesPersistenceDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/attempts/a-1", nil)

	respondWithError(rec, req, apperrors.Persistence(errors.New("connection refused to 10.0.0.3")))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.3")
	assert.Contains(t, rec.Body.String(), `"retryable":true`)
}

func TestRespondWithErrorMarksConflictRetryable(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/attempts/a-1/violations", nil)

	respondWithError(rec, req, apperrors.ErrConcurrencyConflict.With("attempt a-1 is busy"))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"concurrency_conflict"`)
	assert.Contains(t, rec.Body.String(), `"retryable":true`)
}
