package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/traincore/traincore-lms/internal/assessment"
	auth "github.com/traincore/traincore-lms/internal/auth/middleware"
	"github.com/traincore/traincore-lms/internal/catalog"
	"github.com/traincore/traincore-lms/internal/progress"
	"github.com/traincore/traincore-lms/internal/rbac"
)

type apiFixture struct {
	router    *chi.Mux
	svc       *assessment.Service
	progStore progress.Store
	enr       progress.Enrollment
}

type enrollmentSource struct{ store progress.Store }

func (s enrollmentSource) Enrollment(ctx context.Context, id string) (assessment.Enrollment, error) {
	e, err := s.store.GetEnrollment(ctx, id)
	if err != nil {
		return assessment.Enrollment{}, err
	}
	return assessment.Enrollment{ID: e.ID, CourseID: e.CourseID, TraineeID: e.TraineeID, Status: e.Status}, nil
}

// asUser injects the subject and role a JWT middleware would attach.
func asUser(sub, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := auth.WithSubject(r.Context(), sub)
			ctx = rbac.WithRole(ctx, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()

	cat := catalog.NewMemStore()
	if err := cat.SaveCourse(ctx, catalog.Course{
		ID: "course-1", Title: "Onboarding",
		Modules: []catalog.Module{{
			ID: "m1", CourseID: "course-1", Title: "Intro",
			Contents: []catalog.ContentItem{
				{ID: "c1", CourseID: "course-1", ModuleID: "m1", Type: catalog.ContentDocument, Required: true},
			},
		}},
	}); err != nil {
		t.Fatalf("save course: %v", err)
	}

	progStore := progress.NewMemStore()
	enr, err := progStore.CreateEnrollment(ctx, progress.Enrollment{TraineeID: "u1", CourseID: "course-1"})
	if err != nil {
		t.Fatalf("create enrollment: %v", err)
	}

	assessStore := assessment.NewMemStore()
	svc := assessment.NewService(assessStore, enrollmentSource{progStore}, nil, nil, 5, nil)
	if _, err := svc.CreateAssessment(ctx, assessment.Assessment{
		ID: "a1", CourseID: "course-1", Title: "Quiz", Type: "quiz", PassingScore: 50,
		Questions: []assessment.Question{{
			ID: "q1", Type: "multiple-choice", Prompt: "?",
			Options: []string{"a", "b"}, CorrectAnswers: []int{0}, Points: 1,
			Explanation: "because a",
		}},
	}); err != nil {
		t.Fatalf("create assessment: %v", err)
	}

	f := &apiFixture{svc: svc, progStore: progStore, enr: enr}
	f.router = chi.NewRouter()
	f.router.Get("/assessments/{assessmentID}", GetAssessmentHandler(svc, progStore))
	f.router.Post("/assessments/{assessmentID}/attempts", StartAttemptHandler(svc, nil, progStore))
	f.router.Post("/attempts/{attemptID}/responses", SaveResponsesHandler(svc, progStore))
	f.router.Post("/attempts/{attemptID}/submit", SubmitAttemptHandler(svc, nil, progStore))
	f.router.Get("/attempts/{attemptID}", GetAttemptHandler(svc, progStore))
	return f
}

func (f *apiFixture) do(t *testing.T, sub, role, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	asUser(sub, role)(f.router).ServeHTTP(rec, req)
	return rec
}

func TestAssessmentRedactedForTrainees(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, "u1", "trainee", http.MethodGet, "/assessments/a1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("correct_answers")) ||
		bytes.Contains(rec.Body.Bytes(), []byte("because a")) {
		t.Fatalf("trainee payload leaks answer key: %s", rec.Body)
	}

	rec = f.do(t, "i1", "instructor", http.MethodGet, "/assessments/a1", nil)
	if !bytes.Contains(rec.Body.Bytes(), []byte("correct_answers")) {
		t.Fatalf("instructor payload missing answer key: %s", rec.Body)
	}
}

func TestAttemptFlowOverHTTP(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, "u1", "trainee", http.MethodPost, "/assessments/a1/attempts",
		map[string]string{"enrollment_id": f.enr.ID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("start: status %d: %s", rec.Code, rec.Body)
	}
	var at assessment.Attempt
	if err := json.Unmarshal(rec.Body.Bytes(), &at); err != nil {
		t.Fatalf("decode attempt: %v", err)
	}

	rec = f.do(t, "u1", "trainee", http.MethodPost, fmt.Sprintf("/attempts/%s/responses", at.ID),
		map[string]interface{}{"answers": map[string]int{"q1": 0}})
	if rec.Code != http.StatusOK {
		t.Fatalf("save: status %d: %s", rec.Code, rec.Body)
	}

	rec = f.do(t, "u1", "trainee", http.MethodPost, fmt.Sprintf("/attempts/%s/submit", at.ID),
		map[string]interface{}{"time_taken_sec": 10})
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: status %d: %s", rec.Code, rec.Body)
	}
	var sub assessment.Attempt
	if err := json.Unmarshal(rec.Body.Bytes(), &sub); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sub.Score != 100 || !sub.Passed {
		t.Fatalf("score=%d passed=%v", sub.Score, sub.Passed)
	}

	rec = f.do(t, "u1", "trainee", http.MethodGet, "/attempts/"+at.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status %d: %s", rec.Code, rec.Body)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"results"`)) {
		t.Fatalf("finalized attempt missing per-question results: %s", rec.Body)
	}
}

func TestTraineeCannotTouchForeignAttempt(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, "u1", "trainee", http.MethodPost, "/assessments/a1/attempts",
		map[string]string{"enrollment_id": f.enr.ID})
	var at assessment.Attempt
	if err := json.Unmarshal(rec.Body.Bytes(), &at); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = f.do(t, "u2", "trainee", http.MethodGet, "/attempts/"+at.ID, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign get: status %d, want 403", rec.Code)
	}
	rec = f.do(t, "u2", "trainee", http.MethodPost, fmt.Sprintf("/attempts/%s/submit", at.ID),
		map[string]interface{}{})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign submit: status %d, want 403", rec.Code)
	}
	// Instructors can read any attempt.
	rec = f.do(t, "i1", "instructor", http.MethodGet, "/attempts/"+at.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("instructor get: status %d: %s", rec.Code, rec.Body)
	}
}

func TestStartAttemptConflictStatuses(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	// Unknown assessment is a 404.
	rec := f.do(t, "u1", "trainee", http.MethodPost, "/assessments/nope/attempts",
		map[string]string{"enrollment_id": f.enr.ID})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown assessment: status %d, want 404", rec.Code)
	}

	// Dropped enrollment is a 403.
	dropped, err := f.progStore.CreateEnrollment(ctx, progress.Enrollment{TraineeID: "u2", CourseID: "course-1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.progStore.DropEnrollment(ctx, dropped.ID); err != nil {
		t.Fatalf("drop: %v", err)
	}
	rec = f.do(t, "u2", "trainee", http.MethodPost, "/assessments/a1/attempts",
		map[string]string{"enrollment_id": dropped.ID})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("dropped enrollment: status %d, want 403: %s", rec.Code, rec.Body)
	}
}
