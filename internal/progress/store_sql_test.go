package progress

import (
	"context"
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
		`INSERT INTO courses (id,title,description,created_at) VALUES ('course-2','Course 2','',0)`,
	} {
		if _, err := dbh.ExecContext(context.Background(), stmt); err != nil {
			t.Fatalf("seed fixture: %v", err)
		}
	}
	return NewSQLStore(dbh)
}

func TestSQLCreateEnrollmentPairUnique(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	first, err := store.CreateEnrollment(ctx, Enrollment{TraineeID: "u1", CourseID: "course-1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Re-enrolling the same pair returns the existing row.
	second, err := store.CreateEnrollment(ctx, Enrollment{TraineeID: "u1", CourseID: "course-1"})
	if err != nil {
		t.Fatalf("re-create: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("duplicate enrollment: %s vs %s", second.ID, first.ID)
	}
	// A different course is a new enrollment.
	other, err := store.CreateEnrollment(ctx, Enrollment{TraineeID: "u1", CourseID: "course-2"})
	if err != nil || other.ID == first.ID {
		t.Fatalf("other course: id=%s err=%v", other.ID, err)
	}
}

func TestSQLMarkCompletedFirstTime(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	enr, err := store.CreateEnrollment(ctx, Enrollment{TraineeID: "u1", CourseID: "course-1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	rec, first, err := store.MarkCompleted(ctx, ProgressRecord{EnrollmentID: enr.ID, ContentID: "c1"})
	if err != nil || !first {
		t.Fatalf("first mark: first=%v err=%v", first, err)
	}
	if rec.Status != RecordCompleted || rec.CompletedAt == 0 {
		t.Fatalf("record %+v", rec)
	}

	again, first, err := store.MarkCompleted(ctx, ProgressRecord{EnrollmentID: enr.ID, ContentID: "c1"})
	if err != nil || first {
		t.Fatalf("repeat mark: first=%v err=%v", first, err)
	}
	if again.CompletedAt != rec.CompletedAt {
		t.Fatalf("completed_at moved: %d -> %d", rec.CompletedAt, again.CompletedAt)
	}
}

func TestSQLMarkCompletedFlipsStartedRecord(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	enr, err := store.CreateEnrollment(ctx, Enrollment{TraineeID: "u1", CourseID: "course-1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.EnsureStarted(ctx, ProgressRecord{EnrollmentID: enr.ID, ContentID: "c1"}); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	_, first, err := store.MarkCompleted(ctx, ProgressRecord{EnrollmentID: enr.ID, ContentID: "c1"})
	if err != nil || !first {
		t.Fatalf("flip: first=%v err=%v", first, err)
	}

	ids, err := store.CompletedContentIDs(ctx, enr.ID)
	if err != nil || len(ids) != 1 || ids[0] != "c1" {
		t.Fatalf("completed ids %v err=%v", ids, err)
	}
}

func TestSQLDropEnrollmentResetsProgress(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	enr, err := store.CreateEnrollment(ctx, Enrollment{TraineeID: "u1", CourseID: "course-1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.UpdateProgress(ctx, enr.ID, 60, StatusInProgress, 0); err != nil {
		t.Fatalf("update: %v", err)
	}

	dropped, err := store.DropEnrollment(ctx, enr.ID)
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if dropped.Status != StatusDropped || dropped.ProgressPct != 0 || dropped.CompletedAt != 0 {
		t.Fatalf("dropped row %+v", dropped)
	}
	// Dropped enrollments leave the reconciliation list.
	ids, err := store.ListEnrollmentIDs(ctx)
	if err != nil || len(ids) != 0 {
		t.Fatalf("ids=%v err=%v, want empty", ids, err)
	}
}
