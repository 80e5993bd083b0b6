package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/traincore/traincore-lms/internal/assessment"
	auth "github.com/traincore/traincore-lms/internal/auth/middleware"
	"github.com/traincore/traincore-lms/internal/progress"
	"github.com/traincore/traincore-lms/internal/rbac"
)

// POST /assessments/{assessmentID}/attempts  { "enrollment_id": "..." }
// Opens (or resumes) the attempt; the server clock and auto-submit timer
// start here.
func StartAttemptHandler(svc *assessment.Service, auto *assessment.AutoSubmitter, enrollments progress.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			EnrollmentID string `json:"enrollment_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EnrollmentID == "" {
			writeError(w, fmt.Errorf("%w: enrollment_id required", assessment.ErrValidation))
			return
		}
		if !canActOnEnrollment(r, enrollments, req.EnrollmentID) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		at, created, err := svc.Start(r.Context(), chi.URLParam(r, "assessmentID"), req.EnrollmentID)
		if err != nil {
			writeError(w, err)
			return
		}
		if auto != nil {
			auto.Watch(at)
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, at)
	}
}

// POST /attempts/{attemptID}/responses  { "answers": {...} }
func SaveResponsesHandler(svc *assessment.Service, enrollments progress.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "attemptID")
		var req struct {
			Answers assessment.AnswerSet `json:"answers"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, fmt.Errorf("%w: bad json", assessment.ErrValidation))
			return
		}
		if !ownsAttempt(r, svc, enrollments, id) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		at, err := svc.SaveResponses(r.Context(), id, req.Answers)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, at)
	}
}

// POST /attempts/{attemptID}/submit  { "answers": {...}, "time_taken_sec": N }
// Idempotent: a repeat call, or one racing the auto-submit, returns the
// stored attempt unchanged.
func SubmitAttemptHandler(svc *assessment.Service, auto *assessment.AutoSubmitter, enrollments progress.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "attemptID")
		var req struct {
			Answers      assessment.AnswerSet `json:"answers"`
			TimeTakenSec int                  `json:"time_taken_sec"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, fmt.Errorf("%w: bad json", assessment.ErrValidation))
			return
		}
		if !ownsAttempt(r, svc, enrollments, id) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		at, err := svc.SubmitAttempt(r.Context(), id, req.Answers, req.TimeTakenSec)
		if err != nil {
			writeError(w, err)
			return
		}
		if auto != nil {
			auto.Cancel(at.ID)
		}
		writeJSON(w, http.StatusOK, at)
	}
}

// GET /attempts/{attemptID}
// Finalized attempts include per-question outcomes. Trainees can only
// fetch their own.
func GetAttemptHandler(svc *assessment.Service, enrollments progress.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "attemptID")
		role := rbac.RoleFromContext(r.Context())
		if role == "trainee" && !ownsAttempt(r, svc, enrollments, id) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		at, results, err := svc.Review(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			assessment.Attempt
			Results []assessment.QuestionResult `json:"results,omitempty"`
		}{Attempt: at, Results: results})
	}
}

// GET /attempts?assessment_id=...&enrollment_id=...&status=...&limit=50&offset=0
// Roles without attempt:view-all are confined to enrollments they own.
func ListAttemptsHandler(svc *assessment.Service, enrollments progress.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		opts := assessment.AttemptListOpts{
			AssessmentID: strings.TrimSpace(q.Get("assessment_id")),
			EnrollmentID: strings.TrimSpace(q.Get("enrollment_id")),
			Status:       strings.TrimSpace(q.Get("status")),
			Limit:        parseIntDefault(q.Get("limit"), 50),
			Offset:       parseIntDefault(q.Get("offset"), 0),
		}
		role := rbac.RoleFromContext(r.Context())
		if role == "trainee" {
			if opts.EnrollmentID == "" || !canActOnEnrollment(r, enrollments, opts.EnrollmentID) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
		}
		list, err := svc.ListAttempts(r.Context(), opts)
		if err != nil {
			writeError(w, err)
			return
		}
		if list == nil {
			list = []assessment.Attempt{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// canActOnEnrollment reports whether the caller may act on the enrollment:
// its trainee, or a role with progress:view-all.
func canActOnEnrollment(r *http.Request, store progress.Store, enrollmentID string) bool {
	role := rbac.RoleFromContext(r.Context())
	if role != "trainee" {
		return true
	}
	enr, err := store.GetEnrollment(r.Context(), enrollmentID)
	if err != nil {
		return false
	}
	return enr.TraineeID == auth.SubjectFromContext(r.Context())
}

func ownsAttempt(r *http.Request, svc *assessment.Service, store progress.Store, attemptID string) bool {
	at, err := svc.GetAttempt(r.Context(), attemptID)
	if err != nil {
		// Let the handler surface the not-found.
		return true
	}
	return canActOnEnrollment(r, store, at.EnrollmentID)
}
