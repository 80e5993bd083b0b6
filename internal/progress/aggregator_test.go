package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/traincore/traincore-lms/internal/catalog"
	"github.com/traincore/traincore-lms/internal/eventlog"
)

type fakeAssessments struct {
	required map[string][]string // courseID -> assessment ids
	passed   map[string][]string // enrollmentID -> assessment ids
}

func (f *fakeAssessments) RequiredAssessmentIDs(_ context.Context, courseID string) ([]string, error) {
	return f.required[courseID], nil
}

func (f *fakeAssessments) PassedAssessmentIDs(_ context.Context, enrollmentID string) ([]string, error) {
	return f.passed[enrollmentID], nil
}

type captureSink struct {
	mu     sync.Mutex
	events []eventlog.Event
}

func (s *captureSink) Append(_ context.Context, e eventlog.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *captureSink) countType(typ string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

// testCourse has 4 content items (3 required) and leaves room for 2
// required assessments: denominator 5 when both are registered.
func testCourse() catalog.Course {
	return catalog.Course{
		ID:    "course-1",
		Title: "Forklift certification",
		Modules: []catalog.Module{
			{
				ID:       "m1",
				CourseID: "course-1",
				Title:    "Basics",
				Contents: []catalog.ContentItem{
					{ID: "c1", CourseID: "course-1", ModuleID: "m1", Type: catalog.ContentVideo, Required: true, DurationSec: 600},
					{ID: "c2", CourseID: "course-1", ModuleID: "m1", Type: catalog.ContentDocument, Required: true},
					{ID: "c3", CourseID: "course-1", ModuleID: "m1", Type: catalog.ContentText, Required: false},
				},
			},
			{
				ID:       "m2",
				CourseID: "course-1",
				Title:    "Practice",
				Contents: []catalog.ContentItem{
					{ID: "c4", CourseID: "course-1", ModuleID: "m2", Type: catalog.ContentLink, Required: true},
				},
			},
		},
	}
}

type aggFixture struct {
	agg         *Aggregator
	store       Store
	assessments *fakeAssessments
	sink        *captureSink
	enr         Enrollment
}

func newAggFixture(t *testing.T) *aggFixture {
	t.Helper()
	ctx := context.Background()
	cat := catalog.NewMemStore()
	if err := cat.SaveCourse(ctx, testCourse()); err != nil {
		t.Fatalf("save course: %v", err)
	}
	store := NewMemStore()
	assessments := &fakeAssessments{
		required: map[string][]string{"course-1": {"a1", "a2"}},
		passed:   map[string][]string{},
	}
	sink := &captureSink{}
	agg := NewAggregator(cat, store, assessments, sink, nil)

	enr, err := store.CreateEnrollment(ctx, Enrollment{TraineeID: "u1", CourseID: "course-1"})
	if err != nil {
		t.Fatalf("create enrollment: %v", err)
	}
	return &aggFixture{agg: agg, store: store, assessments: assessments, sink: sink, enr: enr}
}

func (f *aggFixture) complete(t *testing.T, contentIDs ...string) {
	t.Helper()
	for _, id := range contentIDs {
		if _, _, err := f.store.MarkCompleted(context.Background(), ProgressRecord{
			EnrollmentID: f.enr.ID,
			ContentID:    id,
		}); err != nil {
			t.Fatalf("mark %s: %v", id, err)
		}
	}
}

func TestRecomputeFormula(t *testing.T) {
	f := newAggFixture(t)
	ctx := context.Background()

	// 2 of 3 required contents plus 1 of 2 required assessments: 3/5 = 60.
	f.complete(t, "c1", "c2")
	f.assessments.passed[f.enr.ID] = []string{"a1"}

	snap, err := f.agg.Recompute(ctx, f.enr.ID)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if snap.ProgressPct != 60 {
		t.Fatalf("pct=%d, want 60", snap.ProgressPct)
	}
	if snap.Status != StatusInProgress {
		t.Fatalf("status=%s, want in_progress", snap.Status)
	}
	if snap.CompletedAt != 0 {
		t.Fatalf("completed_at stamped early: %d", snap.CompletedAt)
	}
}

func TestRecomputeIgnoresOptionalContent(t *testing.T) {
	f := newAggFixture(t)

	// c3 is optional: completing it moves nothing.
	f.complete(t, "c3")
	snap, err := f.agg.Recompute(context.Background(), f.enr.ID)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if snap.ProgressPct != 0 {
		t.Fatalf("pct=%d, want 0", snap.ProgressPct)
	}
	if snap.Status != StatusEnrolled {
		t.Fatalf("status=%s, want enrolled", snap.Status)
	}
}

func TestRecomputeZeroDenominator(t *testing.T) {
	ctx := context.Background()
	cat := catalog.NewMemStore()
	if err := cat.SaveCourse(ctx, catalog.Course{ID: "empty", Title: "Empty"}); err != nil {
		t.Fatalf("save course: %v", err)
	}
	store := NewMemStore()
	agg := NewAggregator(cat, store, &fakeAssessments{}, nil, nil)
	enr, err := store.CreateEnrollment(ctx, Enrollment{TraineeID: "u1", CourseID: "empty"})
	if err != nil {
		t.Fatalf("create enrollment: %v", err)
	}

	snap, err := agg.Recompute(ctx, enr.ID)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if snap.ProgressPct != 0 || snap.Status != StatusEnrolled {
		t.Fatalf("got pct=%d status=%s, want 0/enrolled", snap.ProgressPct, snap.Status)
	}
}

func TestRecomputeMonotonic(t *testing.T) {
	f := newAggFixture(t)
	ctx := context.Background()

	f.complete(t, "c1", "c2")
	if _, err := f.agg.Recompute(ctx, f.enr.ID); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	// Simulate a stale writer having stored a higher value.
	if err := f.store.UpdateProgress(ctx, f.enr.ID, 80, StatusInProgress, 0); err != nil {
		t.Fatalf("update: %v", err)
	}
	snap, err := f.agg.Recompute(ctx, f.enr.ID)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if snap.ProgressPct != 80 {
		t.Fatalf("pct regressed to %d", snap.ProgressPct)
	}
}

func TestRecomputeCompletionStampedOnce(t *testing.T) {
	f := newAggFixture(t)
	ctx := context.Background()
	clock := time.Unix(1_700_000_000, 0)
	f.agg.now = func() time.Time { return clock }

	f.complete(t, "c1", "c2", "c4")
	f.assessments.passed[f.enr.ID] = []string{"a1", "a2"}

	first, err := f.agg.Recompute(ctx, f.enr.ID)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if first.ProgressPct != 100 || first.Status != StatusCompleted {
		t.Fatalf("got pct=%d status=%s, want 100/completed", first.ProgressPct, first.Status)
	}
	if first.CompletedAt != clock.Unix() {
		t.Fatalf("completed_at=%d, want %d", first.CompletedAt, clock.Unix())
	}

	clock = clock.Add(time.Hour)
	second, err := f.agg.Recompute(ctx, f.enr.ID)
	if err != nil {
		t.Fatalf("second recompute: %v", err)
	}
	if second.CompletedAt != first.CompletedAt {
		t.Fatalf("completed_at moved: %d -> %d", first.CompletedAt, second.CompletedAt)
	}
	if got := f.sink.countType(eventlog.TypeEnrollmentCompleted); got != 1 {
		t.Fatalf("EnrollmentCompleted emitted %d times, want 1", got)
	}
}

func TestRecomputeSkipsDropped(t *testing.T) {
	f := newAggFixture(t)
	ctx := context.Background()

	f.complete(t, "c1", "c2", "c4")
	if _, err := f.store.DropEnrollment(ctx, f.enr.ID); err != nil {
		t.Fatalf("drop: %v", err)
	}
	snap, err := f.agg.Recompute(ctx, f.enr.ID)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if snap.Status != StatusDropped || snap.ProgressPct != 0 {
		t.Fatalf("got %+v, want dropped with 0%%", snap)
	}
}

func TestAssessmentPassedHookRecomputes(t *testing.T) {
	f := newAggFixture(t)
	ctx := context.Background()

	f.assessments.passed[f.enr.ID] = []string{"a1"}
	if err := f.agg.AssessmentPassed(ctx, f.enr.ID, "a1"); err != nil {
		t.Fatalf("hook: %v", err)
	}
	snap, err := f.agg.Progress(ctx, f.enr.ID)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if snap.ProgressPct != 20 {
		t.Fatalf("pct=%d, want 20 (1/5)", snap.ProgressPct)
	}
}

func TestCourseSummary(t *testing.T) {
	f := newAggFixture(t)
	ctx := context.Background()

	second, err := f.store.CreateEnrollment(ctx, Enrollment{TraineeID: "u2", CourseID: "course-1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	third, err := f.store.CreateEnrollment(ctx, Enrollment{TraineeID: "u3", CourseID: "course-1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	f.complete(t, "c1", "c2")
	f.assessments.passed[f.enr.ID] = []string{"a1"}
	if _, err := f.agg.Recompute(ctx, f.enr.ID); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if _, err := f.store.DropEnrollment(ctx, third.ID); err != nil {
		t.Fatalf("drop: %v", err)
	}
	_ = second

	sum, err := f.agg.CourseSummary(ctx, "course-1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Enrollments != 3 {
		t.Fatalf("enrollments=%d, want 3", sum.Enrollments)
	}
	if sum.InProgress != 1 || sum.NotStarted != 1 || sum.Dropped != 1 {
		t.Fatalf("got in_progress=%d not_started=%d dropped=%d, want 1/1/1",
			sum.InProgress, sum.NotStarted, sum.Dropped)
	}
	if sum.AvgProgress != 20 { // (60+0+0)/3
		t.Fatalf("avg=%d, want 20", sum.AvgProgress)
	}

	if _, err := f.agg.CourseSummary(ctx, "missing"); err == nil {
		t.Fatalf("summary for unknown course succeeded")
	}
}

func TestRecomputeAll(t *testing.T) {
	f := newAggFixture(t)
	ctx := context.Background()

	f.complete(t, "c1")
	n, err := f.agg.RecomputeAll(ctx)
	if err != nil {
		t.Fatalf("recompute all: %v", err)
	}
	if n != 1 {
		t.Fatalf("recomputed %d, want 1", n)
	}
	snap, err := f.agg.Progress(ctx, f.enr.ID)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if snap.ProgressPct != 20 {
		t.Fatalf("pct=%d, want 20", snap.ProgressPct)
	}
}
