package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"proctorexam/internal/apperrors"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error     string                 `json:"error"`
	Code      string                 `json:"code"`
	Retryable bool                   `json:"retryable,omitempty"`
	Fields    []apperrors.FieldError `json:"fields,omitempty"`
}

// statusFor maps an engine error to an HTTP status
func statusFor(err error) int {
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindPolicy:
		if errors.Is(err, apperrors.ErrNotAuthorized) {
			return http.StatusForbidden
		}
		return http.StatusConflict
	}
	return http.StatusServiceUnavailable
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error(), Code: apperrors.CodeOf(err)}

	var ve *apperrors.ValidationError
	if errors.As(err, &ve) {
		resp.Fields = ve.Fields
	}
	var ae *apperrors.Error
	if errors.As(err, &ae) {
		resp.Retryable = ae.Retryable()
	}
	if status == http.StatusServiceUnavailable {
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Request failed")
		resp.Error = "service temporarily unavailable"
		resp.Retryable = true
	}

	respondJSON(w, status, resp)
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// decodeJSON reads a JSON body into v. An empty body leaves v unchanged.
func decodeJSON(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperrors.Invalid("body", fmt.Sprintf("malformed JSON: %v", err))
	}
	return nil
}
