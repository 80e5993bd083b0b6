package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/traincore/traincore-lms/internal/assessment"
	"github.com/traincore/traincore-lms/internal/catalog"
	"github.com/traincore/traincore-lms/internal/progress"
)

type seedEnrollmentReq struct {
	TraineeID string `json:"trainee_id" validate:"required"`
	DueDate   int64  `json:"due_date"`
}

type seedCourseReq struct {
	Course      catalog.Course      `json:"course" validate:"required"`
	Enrollments []seedEnrollmentReq `json:"enrollments" validate:"dive"`
}

// POST /courses/seed
// Minimal authoring surface: one payload creates the course, its modules
// and contents, and the trainee enrollments to run the engine against.
func SeedCourseHandler(cat catalog.Store, enrollments progress.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req seedCourseReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, fmt.Errorf("%w: bad json", assessment.ErrValidation))
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, fmt.Errorf("%w: %v", assessment.ErrValidation, err))
			return
		}
		if req.Course.Title == "" {
			writeError(w, fmt.Errorf("%w: course title required", assessment.ErrValidation))
			return
		}

		c := req.Course
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		for mi := range c.Modules {
			m := &c.Modules[mi]
			if m.ID == "" {
				m.ID = uuid.NewString()
			}
			m.CourseID = c.ID
			for ci := range m.Contents {
				it := &m.Contents[ci]
				if it.ID == "" {
					it.ID = uuid.NewString()
				}
				it.CourseID = c.ID
				it.ModuleID = m.ID
			}
		}
		if err := cat.SaveCourse(r.Context(), c); err != nil {
			writeError(w, err)
			return
		}

		enrolled := make([]progress.Enrollment, 0, len(req.Enrollments))
		for _, e := range req.Enrollments {
			enr, err := enrollments.CreateEnrollment(r.Context(), progress.Enrollment{
				TraineeID: e.TraineeID,
				CourseID:  c.ID,
				DueDate:   e.DueDate,
			})
			if err != nil {
				writeError(w, err)
				return
			}
			enrolled = append(enrolled, enr)
		}
		writeJSON(w, http.StatusCreated, struct {
			Course      catalog.Course        `json:"course"`
			Enrollments []progress.Enrollment `json:"enrollments"`
		}{Course: c, Enrollments: enrolled})
	}
}

// GET /courses/{courseID}
func GetCourseHandler(cat catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := cat.GetCourse(r.Context(), chi.URLParam(r, "courseID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}
