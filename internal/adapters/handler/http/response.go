package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/vncsmyrnk/tally/internal/core/domain"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}

// statusFor maps service errors onto HTTP status codes. Not-found and
// closed checks come first because both also count as validation errors.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrTargetNotFound), errors.Is(err, domain.ErrVoteNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrVotingClosed),
		errors.Is(err, domain.ErrDuplicateVote),
		errors.Is(err, domain.ErrTargetExists):
		return http.StatusConflict
	case domain.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger, err error) {
	status := statusFor(err)
	message := err.Error()

	switch status {
	case http.StatusServiceUnavailable:
		log.WithError(err).WithField("path", r.URL.Path).Warn("storage unavailable")
		message = "storage is temporarily unavailable, try again"
	case http.StatusInternalServerError:
		log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		message = "internal error"
	}

	writeError(w, status, message)
}
