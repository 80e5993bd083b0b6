package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/traincore/traincore-lms/internal/catalog"
	"github.com/traincore/traincore-lms/internal/eventlog"
)

// AssessmentSource is the slice of the assessment store the aggregator
// reads: which assessments count toward the denominator, and which ones
// this enrollment has passed.
type AssessmentSource interface {
	RequiredAssessmentIDs(ctx context.Context, courseID string) ([]string, error)
	PassedAssessmentIDs(ctx context.Context, enrollmentID string) ([]string, error)
}

type Clock func() time.Time

// Aggregator is the single owner of the progress formula. Every consumer
// reads its stored output; nothing else recomputes percentages.
type Aggregator struct {
	catalog     catalog.Store
	store       Store
	assessments AssessmentSource
	events      eventlog.Sink
	now         Clock
}

func NewAggregator(cat catalog.Store, store Store, assessments AssessmentSource, events eventlog.Sink, now Clock) *Aggregator {
	if now == nil {
		now = time.Now
	}
	if events == nil {
		events = eventlog.Nop{}
	}
	return &Aggregator{catalog: cat, store: store, assessments: assessments, events: events, now: now}
}

// Recompute derives the enrollment's percentage and status from durable
// completion records and passed attempts. Idempotent and safe to call out
// of order with the events that triggered it: the result depends only on
// stored state, and the percentage never regresses.
func (g *Aggregator) Recompute(ctx context.Context, enrollmentID string) (Snapshot, error) {
	enr, err := g.store.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return Snapshot{}, err
	}
	if enr.Status == StatusDropped {
		return snapshotOf(enr), nil
	}

	reqContents, err := g.catalog.RequiredContentIDs(ctx, enr.CourseID)
	if err != nil {
		return Snapshot{}, err
	}
	reqAssessments, err := g.assessments.RequiredAssessmentIDs(ctx, enr.CourseID)
	if err != nil {
		return Snapshot{}, err
	}
	doneContents, err := g.store.CompletedContentIDs(ctx, enrollmentID)
	if err != nil {
		return Snapshot{}, err
	}
	passed, err := g.assessments.PassedAssessmentIDs(ctx, enrollmentID)
	if err != nil {
		return Snapshot{}, err
	}

	completed := intersect(reqContents, doneContents) + intersect(reqAssessments, passed)
	denom := len(reqContents) + len(reqAssessments)

	pct := 0
	if denom > 0 {
		pct = int(math.Round(100 * float64(completed) / float64(denom)))
	}
	// Monotonic: a recompute never lowers the stored percentage. A lost
	// concurrent update self-heals on the next recompute.
	if pct < enr.ProgressPct {
		pct = enr.ProgressPct
	}

	status := enr.Status
	completedAt := enr.CompletedAt
	switch {
	case pct >= 100 && denom > 0:
		pct = 100
		status = StatusCompleted
		if completedAt == 0 {
			completedAt = g.now().Unix()
			g.emitCompleted(ctx, enr.ID)
		}
	case completed > 0 || pct > 0:
		if status != StatusCompleted {
			status = StatusInProgress
		}
	}

	if pct != enr.ProgressPct || status != enr.Status || completedAt != enr.CompletedAt {
		if err := g.store.UpdateProgress(ctx, enrollmentID, pct, status, completedAt); err != nil {
			return Snapshot{}, err
		}
	}
	return Snapshot{EnrollmentID: enr.ID, ProgressPct: pct, Status: status, CompletedAt: completedAt}, nil
}

// AssessmentPassed is the completion event hook the attempt manager calls
// after a passed submission.
func (g *Aggregator) AssessmentPassed(ctx context.Context, enrollmentID, _ string) error {
	_, err := g.Recompute(ctx, enrollmentID)
	return err
}

// Progress returns the stored snapshot without recomputing.
func (g *Aggregator) Progress(ctx context.Context, enrollmentID string) (Snapshot, error) {
	enr, err := g.store.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return Snapshot{}, err
	}
	return snapshotOf(enr), nil
}

// CourseSummary aggregates stored snapshots across a course's enrollments.
func (g *Aggregator) CourseSummary(ctx context.Context, courseID string) (CourseSummary, error) {
	if _, err := g.catalog.GetCourse(ctx, courseID); err != nil {
		return CourseSummary{}, fmt.Errorf("course %s: %w", courseID, ErrNotFound)
	}
	enrs, err := g.store.ListEnrollmentsByCourse(ctx, courseID)
	if err != nil {
		return CourseSummary{}, err
	}
	sum := CourseSummary{CourseID: courseID, Enrollments: len(enrs), PerTrainee: enrs}
	total := 0
	for _, e := range enrs {
		total += e.ProgressPct
		switch e.Status {
		case StatusEnrolled:
			sum.NotStarted++
		case StatusInProgress:
			sum.InProgress++
		case StatusCompleted:
			sum.Completed++
		case StatusDropped:
			sum.Dropped++
		}
	}
	if len(enrs) > 0 {
		sum.AvgProgress = int(math.Round(float64(total) / float64(len(enrs))))
	}
	return sum, nil
}

// RecomputeAll reconciles every active enrollment. Run from cron so any
// update lost to a concurrent write heals without manual intervention.
func (g *Aggregator) RecomputeAll(ctx context.Context) (int, error) {
	ids, err := g.store.ListEnrollmentIDs(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		if _, err := g.Recompute(ctx, id); err != nil {
			log.Printf("[progress-sweep] recompute %s: %v", id, err)
			continue
		}
		n++
	}
	return n, nil
}

func (g *Aggregator) emitCompleted(ctx context.Context, enrollmentID string) {
	data, _ := json.Marshal(map[string]string{"enrollment_id": enrollmentID})
	if err := g.events.Append(ctx, eventlog.Event{
		Type:     eventlog.TypeEnrollmentCompleted,
		Key:      enrollmentID,
		DataJSON: string(data),
	}); err != nil {
		log.Printf("event log append failed for enrollment %s: %v", enrollmentID, err)
	}
}

func snapshotOf(e Enrollment) Snapshot {
	return Snapshot{EnrollmentID: e.ID, ProgressPct: e.ProgressPct, Status: e.Status, CompletedAt: e.CompletedAt}
}

func intersect(required, have []string) int {
	set := make(map[string]bool, len(have))
	for _, id := range have {
		set[id] = true
	}
	n := 0
	for _, id := range required {
		if set[id] {
			n++
		}
	}
	return n
}
