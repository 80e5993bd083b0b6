package assessment

import (
	"context"
	"errors"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrValidation           = errors.New("validation failed")
	ErrAttemptLimitExceeded = errors.New("attempt limit exceeded")
	ErrAlreadySubmitted     = errors.New("attempt already submitted")
	ErrNotEnrolled          = errors.New("not enrolled in this course")
	ErrDeadlinePassed       = errors.New("attempt deadline passed")
)

type AttemptListOpts struct {
	AssessmentID string
	EnrollmentID string
	Status       string // default: finalized attempts only (submitted)
	Limit        int
	Offset       int
}

type Store interface {
	PutAssessment(ctx context.Context, a Assessment) error
	// GetAssessment returns the full assessment including answer keys. The
	// engine always scores from this; callers redact before serving learners.
	GetAssessment(ctx context.Context, id string) (Assessment, error)

	// OpenAttempt inserts an in_progress attempt, or returns the existing
	// open attempt for the pair (created=false). At most one open attempt
	// may exist per (assessment, enrollment). When maxAttempts > 0 the
	// submitted count is checked inside the same critical section as the
	// insert, so a finalize committing concurrently can never let the pair
	// exceed the limit; ErrAttemptLimitExceeded is returned at the limit.
	OpenAttempt(ctx context.Context, a Attempt, maxAttempts int) (out Attempt, created bool, err error)
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	GetOpenAttempt(ctx context.Context, assessmentID, enrollmentID string) (Attempt, error)
	SaveResponses(ctx context.Context, attemptID string, answers AnswerSet) (Attempt, error)

	// FinalizeAttempt atomically flips the attempt from in_progress to the
	// final state carried by a (compare-and-swap on status). won=false means
	// a racing submit already finalized it; the stored attempt is returned
	// unchanged in that case.
	FinalizeAttempt(ctx context.Context, a Attempt) (out Attempt, won bool, err error)
	AbandonAttempt(ctx context.Context, attemptID string) error

	// CountSubmitted counts finalized attempts for the pair. Abandoned
	// attempts never count toward the limit.
	CountSubmitted(ctx context.Context, assessmentID, enrollmentID string) (int, error)
	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error)
	// ListStaleOpen returns open attempts whose deadline passed before
	// deadlineBefore, plus untimed open attempts started before idleBefore.
	ListStaleOpen(ctx context.Context, deadlineBefore, idleBefore int64) ([]Attempt, error)

	// PassedAssessmentIDs returns the distinct assessments this enrollment
	// has at least one passed attempt for. Feeds the progress aggregator.
	PassedAssessmentIDs(ctx context.Context, enrollmentID string) ([]string, error)
	// RequiredAssessmentIDs feeds the progress denominator.
	RequiredAssessmentIDs(ctx context.Context, courseID string) ([]string, error)
}
