package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/traincore/traincore-lms/internal/assessment"
	"github.com/traincore/traincore-lms/internal/progress"
)

// POST /enrollments/{enrollmentID}/contents/{contentID}/complete
// Explicit acknowledgment for document/text/link items. Idempotent.
func CompleteContentHandler(tracker *progress.Tracker, enrollments progress.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		enrID := chi.URLParam(r, "enrollmentID")
		if !canActOnEnrollment(r, enrollments, enrID) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		rec, err := tracker.CompleteContent(r.Context(), enrID, chi.URLParam(r, "contentID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// POST /enrollments/{enrollmentID}/contents/{contentID}/video-progress
// { "watched_sec": N }  Completes the video at >=80% of its duration.
func VideoProgressHandler(tracker *progress.Tracker, enrollments progress.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		enrID := chi.URLParam(r, "enrollmentID")
		if !canActOnEnrollment(r, enrollments, enrID) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		var req struct {
			WatchedSec int `json:"watched_sec"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, fmt.Errorf("%w: bad json", assessment.ErrValidation))
			return
		}
		rec, err := tracker.RecordVideoProgress(r.Context(), enrID, chi.URLParam(r, "contentID"), req.WatchedSec)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// GET /enrollments/{enrollmentID}/progress
// Always the aggregator's stored output, never recomputed inline.
func GetProgressHandler(agg *progress.Aggregator, enrollments progress.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		enrID := chi.URLParam(r, "enrollmentID")
		if !canActOnEnrollment(r, enrollments, enrID) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		snap, err := agg.Progress(r.Context(), enrID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// POST /enrollments/{enrollmentID}/drop
func DropEnrollmentHandler(store progress.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		enrID := chi.URLParam(r, "enrollmentID")
		if !canActOnEnrollment(r, store, enrID) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		enr, err := store.DropEnrollment(r.Context(), enrID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, enr)
	}
}

// GET /courses/{courseID}/progress
func CourseProgressHandler(agg *progress.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sum, err := agg.CourseSummary(r.Context(), chi.URLParam(r, "courseID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}
