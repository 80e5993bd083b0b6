package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/traincore/traincore-lms/internal/assessment"
	"github.com/traincore/traincore-lms/internal/catalog"
	"github.com/traincore/traincore-lms/internal/progress"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain sentinels onto HTTP statuses. Anything unmapped
// is a 500 and gets logged server-side; the client sees a generic message.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, assessment.ErrValidation),
		errors.Is(err, progress.ErrBadRequest):
		writeJSON(w, http.StatusBadRequest, errBody(err))
	case errors.Is(err, assessment.ErrNotEnrolled),
		errors.Is(err, progress.ErrNotEnrolled):
		writeJSON(w, http.StatusForbidden, errBody(err))
	case errors.Is(err, assessment.ErrNotFound),
		errors.Is(err, progress.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errBody(err))
	case errors.Is(err, assessment.ErrAttemptLimitExceeded),
		errors.Is(err, assessment.ErrAlreadySubmitted),
		errors.Is(err, assessment.ErrDeadlinePassed):
		writeJSON(w, http.StatusConflict, errBody(err))
	default:
		log.Printf("internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func errBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
