package progress

import (
	"context"
	"errors"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrNotEnrolled = errors.New("not enrolled in this course")
)

type Store interface {
	CreateEnrollment(ctx context.Context, e Enrollment) (Enrollment, error)
	GetEnrollment(ctx context.Context, id string) (Enrollment, error)
	ListEnrollmentsByCourse(ctx context.Context, courseID string) ([]Enrollment, error)
	ListEnrollmentIDs(ctx context.Context) ([]string, error)

	// UpdateProgress overwrites the derived fields. Monotonicity is the
	// aggregator's job; last-writer-wins here is fine because recompute is
	// idempotent over durable records.
	UpdateProgress(ctx context.Context, enrollmentID string, pct int, status string, completedAt int64) error
	DropEnrollment(ctx context.Context, enrollmentID string) (Enrollment, error)

	// EnsureStarted creates the not_started record on first interaction;
	// existing records are returned unchanged.
	EnsureStarted(ctx context.Context, rec ProgressRecord) (ProgressRecord, error)
	// MarkCompleted flips (or creates) the record as completed.
	// firstTime=false means it was already completed: the stored record
	// comes back untouched and no event should be emitted.
	MarkCompleted(ctx context.Context, rec ProgressRecord) (out ProgressRecord, firstTime bool, err error)
	CompletedContentIDs(ctx context.Context, enrollmentID string) ([]string, error)
}
