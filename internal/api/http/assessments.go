package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/traincore/traincore-lms/internal/assessment"
	auth "github.com/traincore/traincore-lms/internal/auth/middleware"
	"github.com/traincore/traincore-lms/internal/progress"
	"github.com/traincore/traincore-lms/internal/rbac"
)

var validate = validator.New()

type questionReq struct {
	ID             string   `json:"id"`
	Type           string   `json:"type" validate:"required,oneof=multiple-choice true-false multiple-select"`
	Prompt         string   `json:"prompt" validate:"required"`
	Options        []string `json:"options" validate:"required,min=2"`
	CorrectAnswers []int    `json:"correct_answers" validate:"required,min=1"`
	Points         int      `json:"points" validate:"min=0"`
	Explanation    string   `json:"explanation"`
}

type createAssessmentReq struct {
	CourseID     string        `json:"course_id" validate:"required"`
	ModuleID     string        `json:"module_id"`
	Title        string        `json:"title" validate:"required"`
	Description  string        `json:"description"`
	Type         string        `json:"type" validate:"required,oneof=quiz assignment exam"`
	PassingScore int           `json:"passing_score" validate:"min=0,max=100"`
	MaxAttempts  int           `json:"max_attempts" validate:"min=0"`
	TimeLimitSec int           `json:"time_limit_sec" validate:"min=0"`
	Required     bool          `json:"required"`
	Questions    []questionReq `json:"questions" validate:"dive"`
}

// POST /assessments
func CreateAssessmentHandler(svc *assessment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createAssessmentReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, fmt.Errorf("%w: bad json", assessment.ErrValidation))
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, fmt.Errorf("%w: %v", assessment.ErrValidation, err))
			return
		}
		a := assessment.Assessment{
			CourseID:     req.CourseID,
			ModuleID:     req.ModuleID,
			Title:        req.Title,
			Description:  req.Description,
			Type:         req.Type,
			PassingScore: req.PassingScore,
			MaxAttempts:  req.MaxAttempts,
			TimeLimitSec: req.TimeLimitSec,
			Required:     req.Required,
		}
		for _, q := range req.Questions {
			a.Questions = append(a.Questions, assessment.Question{
				ID:             q.ID,
				Type:           q.Type,
				Prompt:         q.Prompt,
				Options:        q.Options,
				CorrectAnswers: q.CorrectAnswers,
				Points:         q.Points,
				Explanation:    q.Explanation,
			})
		}
		created, err := svc.CreateAssessment(r.Context(), a)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

// GET /assessments/{assessmentID}
// Trainees get a redacted payload (no answer keys or explanations) plus
// their own prior attempts for the assessment.
func GetAssessmentHandler(svc *assessment.Service, enrollments progress.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := svc.GetAssessment(r.Context(), chi.URLParam(r, "assessmentID"))
		if err != nil {
			writeError(w, err)
			return
		}
		role := rbac.RoleFromContext(r.Context())
		if role != "trainee" {
			writeJSON(w, http.StatusOK, a)
			return
		}

		out := struct {
			assessment.Assessment
			Attempts []assessment.Attempt `json:"attempts"`
		}{Assessment: a.Redacted(), Attempts: []assessment.Attempt{}}

		if enrID := callerEnrollment(r, enrollments, a.CourseID); enrID != "" {
			list, err := svc.ListAttempts(r.Context(), assessment.AttemptListOpts{
				AssessmentID: a.ID,
				EnrollmentID: enrID,
			})
			if err != nil {
				writeError(w, err)
				return
			}
			out.Attempts = list
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// callerEnrollment resolves the caller's enrollment in a course, "" when
// they have none.
func callerEnrollment(r *http.Request, store progress.Store, courseID string) string {
	sub := auth.SubjectFromContext(r.Context())
	enrs, err := store.ListEnrollmentsByCourse(r.Context(), courseID)
	if err != nil {
		return ""
	}
	for _, e := range enrs {
		if e.TraineeID == sub {
			return e.ID
		}
	}
	return ""
}
