package assessment

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/traincore/traincore-lms/internal/db"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	dbh, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = dbh.Close() })
	for _, stmt := range []string{
		`INSERT INTO courses (id,title,description,created_at) VALUES ('course-1','Course 1','',0)`,
		`INSERT INTO enrollments (id,trainee_id,course_id,status,progress_pct,started_at,completed_at,due_date)
			VALUES ('enr-1','u1','course-1','enrolled',0,0,0,0)`,
		`INSERT INTO enrollments (id,trainee_id,course_id,status,progress_pct,started_at,completed_at,due_date)
			VALUES ('enr-2','u2','course-1','enrolled',0,0,0,0)`,
	} {
		if _, err := dbh.ExecContext(context.Background(), stmt); err != nil {
			t.Fatalf("seed fixture: %v", err)
		}
	}
	return NewSQLStore(dbh)
}

func TestSQLOpenAttemptUniqueness(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	if err := store.PutAssessment(ctx, testAssessment("a1")); err != nil {
		t.Fatalf("put: %v", err)
	}

	first, created, err := store.OpenAttempt(ctx, Attempt{
		ID: "at-1", AssessmentID: "a1", EnrollmentID: "enr-1",
		Answers: AnswerSet{}, StartedAt: 100,
	}, 0)
	if err != nil || !created {
		t.Fatalf("first open: created=%v err=%v", created, err)
	}
	second, created, err := store.OpenAttempt(ctx, Attempt{
		ID: "at-2", AssessmentID: "a1", EnrollmentID: "enr-1",
		Answers: AnswerSet{}, StartedAt: 101,
	}, 0)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	if created || second.ID != first.ID {
		t.Fatalf("second open created a row: created=%v id=%s", created, second.ID)
	}
}

func TestSQLOpenAttemptEnforcesLimit(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	if err := store.PutAssessment(ctx, testAssessment("a1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	at, _, err := store.OpenAttempt(ctx, Attempt{
		ID: "at-1", AssessmentID: "a1", EnrollmentID: "enr-1",
		Answers: AnswerSet{}, StartedAt: 100,
	}, 1)
	if err != nil {
		t.Fatalf("open under limit: %v", err)
	}
	at.SubmittedAt = 150
	at.EndReason = EndReasonSubmitted
	if _, _, err := store.FinalizeAttempt(ctx, at); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	// One submitted attempt with max 1: the open must fail, not insert.
	_, _, err = store.OpenAttempt(ctx, Attempt{
		ID: "at-2", AssessmentID: "a1", EnrollmentID: "enr-1",
		Answers: AnswerSet{}, StartedAt: 200,
	}, 1)
	if !errors.Is(err, ErrAttemptLimitExceeded) {
		t.Fatalf("open at limit: got %v, want ErrAttemptLimitExceeded", err)
	}
	if _, err := store.GetAttempt(ctx, "at-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rejected open left a row behind: %v", err)
	}

	// The limit is scoped per (assessment, enrollment).
	if _, _, err := store.OpenAttempt(ctx, Attempt{
		ID: "at-3", AssessmentID: "a1", EnrollmentID: "enr-2",
		Answers: AnswerSet{}, StartedAt: 300,
	}, 1); err != nil {
		t.Fatalf("open for other enrollment: %v", err)
	}
}

func TestSQLFinalizeAttemptCAS(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	if err := store.PutAssessment(ctx, testAssessment("a1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	at, _, err := store.OpenAttempt(ctx, Attempt{
		ID: "at-1", AssessmentID: "a1", EnrollmentID: "enr-1",
		Answers: AnswerSet{}, StartedAt: 100,
	}, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	at.Score = 100
	at.Passed = true
	at.EndReason = EndReasonSubmitted
	at.SubmittedAt = 150
	first, won, err := store.FinalizeAttempt(ctx, at)
	if err != nil || !won {
		t.Fatalf("first finalize: won=%v err=%v", won, err)
	}
	if first.Status != StatusSubmitted {
		t.Fatalf("status=%s, want submitted", first.Status)
	}

	// A losing finalize returns the stored row untouched.
	at.Score = 0
	at.Passed = false
	second, won, err := store.FinalizeAttempt(ctx, at)
	if err != nil {
		t.Fatalf("second finalize: %v", err)
	}
	if won || second.Score != 100 || !second.Passed {
		t.Fatalf("second finalize won=%v score=%d", won, second.Score)
	}
}

func TestSQLCountSubmittedExcludesAbandoned(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	if err := store.PutAssessment(ctx, testAssessment("a1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	open := func(id string, started int64) Attempt {
		a, _, err := store.OpenAttempt(ctx, Attempt{
			ID: id, AssessmentID: "a1", EnrollmentID: "enr-1",
			Answers: AnswerSet{}, StartedAt: started,
		}, 0)
		if err != nil {
			t.Fatalf("open %s: %v", id, err)
		}
		return a
	}

	a1 := open("at-1", 100)
	a1.SubmittedAt = 110
	a1.EndReason = EndReasonSubmitted
	if _, _, err := store.FinalizeAttempt(ctx, a1); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	a2 := open("at-2", 200)
	if err := store.AbandonAttempt(ctx, a2.ID); err != nil {
		t.Fatalf("abandon: %v", err)
	}

	n, err := store.CountSubmitted(ctx, "a1", "enr-1")
	if err != nil || n != 1 {
		t.Fatalf("count=%d err=%v, want 1", n, err)
	}
}

func TestSQLListAttemptsOrderAndFilter(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	if err := store.PutAssessment(ctx, testAssessment("a1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	for i, started := range []int64{100, 300, 200} {
		id := fmt.Sprintf("at-%d", i)
		a, _, err := store.OpenAttempt(ctx, Attempt{
			ID: id, AssessmentID: "a1", EnrollmentID: "enr-1",
			Answers: AnswerSet{"q1": {0}}, StartedAt: started,
		}, 0)
		if err != nil {
			t.Fatalf("open %s: %v", id, err)
		}
		a.SubmittedAt = started + 50
		a.EndReason = EndReasonSubmitted
		if _, _, err := store.FinalizeAttempt(ctx, a); err != nil {
			t.Fatalf("finalize %s: %v", id, err)
		}
	}

	list, err := store.ListAttempts(ctx, AttemptListOpts{AssessmentID: "a1", EnrollmentID: "enr-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("len=%d, want 3", len(list))
	}
	// Most recent first.
	if list[0].StartedAt != 300 || list[2].StartedAt != 100 {
		t.Fatalf("order: %d, %d, %d", list[0].StartedAt, list[1].StartedAt, list[2].StartedAt)
	}
	if list[0].Answers["q1"][0] != 0 {
		t.Fatalf("answers not round-tripped: %+v", list[0].Answers)
	}

	limited, err := store.ListAttempts(ctx, AttemptListOpts{AssessmentID: "a1", Limit: 1, Offset: 1})
	if err != nil || len(limited) != 1 || limited[0].StartedAt != 200 {
		t.Fatalf("limit/offset: %+v err=%v", limited, err)
	}
}

func TestSQLPassedAssessmentIDs(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	pass := testAssessment("a1")
	fail := testAssessment("a2")
	for _, a := range []Assessment{pass, fail} {
		if err := store.PutAssessment(ctx, a); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	submit := func(id, assessmentID string, passed bool) {
		a, _, err := store.OpenAttempt(ctx, Attempt{
			ID: id, AssessmentID: assessmentID, EnrollmentID: "enr-1",
			Answers: AnswerSet{}, StartedAt: 100,
		}, 0)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		a.Passed = passed
		a.SubmittedAt = 150
		a.EndReason = EndReasonSubmitted
		if _, _, err := store.FinalizeAttempt(ctx, a); err != nil {
			t.Fatalf("finalize: %v", err)
		}
	}
	submit("at-1", "a1", true)
	submit("at-2", "a2", false)

	ids, err := store.PassedAssessmentIDs(ctx, "enr-1")
	if err != nil {
		t.Fatalf("passed ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != "a1" {
		t.Fatalf("got %v, want [a1]", ids)
	}
}
