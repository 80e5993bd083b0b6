package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/traincore/traincore-lms/internal/eventlog"
)

// Enrollment is the narrow view of an enrollment the attempt manager needs
// for eligibility checks.
type Enrollment struct {
	ID        string
	CourseID  string
	TraineeID string
	Status    string
}

// EnrollmentSource resolves enrollments. Satisfied by an adapter over the
// progress store; the attempt manager never touches enrollment state itself.
type EnrollmentSource interface {
	Enrollment(ctx context.Context, id string) (Enrollment, error)
}

// ProgressNotifier receives the completion event a passed attempt emits.
type ProgressNotifier interface {
	AssessmentPassed(ctx context.Context, enrollmentID, assessmentID string) error
}

type Clock func() time.Time

// Service orchestrates assessment attempts: eligibility, the server-side
// clock, scoring, and finalization. Scoring always uses the stored answer
// keys; nothing client-supplied ever reaches the scorer as truth.
type Service struct {
	store       Store
	enrollments EnrollmentSource
	notifier    ProgressNotifier
	events      eventlog.Sink
	graceSec    int64
	now         Clock
}

func NewService(store Store, enrollments EnrollmentSource, notifier ProgressNotifier, events eventlog.Sink, graceSec int, now Clock) *Service {
	if now == nil {
		now = time.Now
	}
	if events == nil {
		events = eventlog.Nop{}
	}
	return &Service{
		store:       store,
		enrollments: enrollments,
		notifier:    notifier,
		events:      events,
		graceSec:    int64(graceSec),
		now:         now,
	}
}

func (s *Service) CreateAssessment(ctx context.Context, a Assessment) (Assessment, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	for i := range a.Questions {
		if a.Questions[i].Points == 0 {
			a.Questions[i].Points = 1
		}
		if a.Questions[i].ID == "" {
			a.Questions[i].ID = uuid.NewString()
		}
	}
	if err := a.Validate(); err != nil {
		return Assessment{}, err
	}
	if err := s.store.PutAssessment(ctx, a); err != nil {
		return Assessment{}, err
	}
	return a, nil
}

func (s *Service) GetAssessment(ctx context.Context, id string) (Assessment, error) {
	return s.store.GetAssessment(ctx, id)
}

func (s *Service) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	return s.store.ListAttempts(ctx, opts)
}

func (s *Service) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	return s.store.GetAttempt(ctx, id)
}

// Start opens an attempt (or returns the already-open one) after checking
// eligibility. The server records started_at and the deadline here; the
// client countdown is cosmetic.
func (s *Service) Start(ctx context.Context, assessmentID, enrollmentID string) (Attempt, bool, error) {
	a, err := s.store.GetAssessment(ctx, assessmentID)
	if err != nil {
		return Attempt{}, false, err
	}
	if err := s.checkEligibility(ctx, a, enrollmentID); err != nil {
		return Attempt{}, false, err
	}
	now := s.now().Unix()
	at := Attempt{
		ID:           uuid.NewString(),
		AssessmentID: assessmentID,
		EnrollmentID: enrollmentID,
		Answers:      AnswerSet{},
		StartedAt:    now,
	}
	if a.TimeLimitSec > 0 {
		at.DeadlineAt = now + int64(a.TimeLimitSec)
	}
	// The store checks max_attempts inside the open critical section; a
	// count done out here could miss a finalize committing in between.
	return s.store.OpenAttempt(ctx, at, a.MaxAttempts)
}

func (s *Service) checkEligibility(ctx context.Context, a Assessment, enrollmentID string) error {
	enr, err := s.enrollments.Enrollment(ctx, enrollmentID)
	if err != nil {
		return err
	}
	if enr.CourseID != a.CourseID || enr.Status == "dropped" {
		return fmt.Errorf("enrollment %s: %w", enrollmentID, ErrNotEnrolled)
	}
	return nil
}

// SaveResponses merges partial answers into the open attempt. Saves are
// rejected once the deadline has passed so a late submission can only be
// graded from what arrived in time.
func (s *Service) SaveResponses(ctx context.Context, attemptID string, answers AnswerSet) (Attempt, error) {
	at, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if !at.Open() {
		return Attempt{}, fmt.Errorf("attempt %s: %w", attemptID, ErrAlreadySubmitted)
	}
	if at.DeadlineAt > 0 && s.now().Unix() > at.DeadlineAt {
		return Attempt{}, fmt.Errorf("attempt %s: %w", attemptID, ErrDeadlinePassed)
	}
	a, err := s.store.GetAssessment(ctx, at.AssessmentID)
	if err != nil {
		return Attempt{}, err
	}
	if err := a.ValidateAnswers(answers); err != nil {
		return Attempt{}, err
	}
	return s.store.SaveResponses(ctx, attemptID, answers)
}

// Submit finalizes the open attempt for the pair, creating one first when
// the caller never explicitly started (single-shot submission).
func (s *Service) Submit(ctx context.Context, assessmentID, enrollmentID string, answers AnswerSet, timeTakenSec int) (Attempt, error) {
	at, err := s.store.GetOpenAttempt(ctx, assessmentID, enrollmentID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			// A storage failure is not "no open attempt"; surface it so
			// the caller can retry instead of opening a duplicate.
			return Attempt{}, err
		}
		a, aerr := s.store.GetAssessment(ctx, assessmentID)
		if aerr != nil {
			return Attempt{}, aerr
		}
		if err := s.checkEligibility(ctx, a, enrollmentID); err != nil {
			return Attempt{}, err
		}
		now := s.now().Unix()
		opened := Attempt{
			ID:           uuid.NewString(),
			AssessmentID: assessmentID,
			EnrollmentID: enrollmentID,
			Answers:      AnswerSet{},
			StartedAt:    now,
		}
		if a.TimeLimitSec > 0 {
			opened.DeadlineAt = now + int64(a.TimeLimitSec)
		}
		at, _, err = s.store.OpenAttempt(ctx, opened, a.MaxAttempts)
		if err != nil {
			return Attempt{}, err
		}
	}
	return s.finalize(ctx, at, answers, timeTakenSec)
}

// SubmitAttempt finalizes an already-started attempt by id. A second call,
// or an auto-submit racing a manual one, returns the stored attempt
// unchanged instead of producing a duplicate.
func (s *Service) SubmitAttempt(ctx context.Context, attemptID string, answers AnswerSet, timeTakenSec int) (Attempt, error) {
	at, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if !at.Open() {
		return at, nil
	}
	return s.finalize(ctx, at, answers, timeTakenSec)
}

func (s *Service) finalize(ctx context.Context, at Attempt, answers AnswerSet, reportedSec int) (Attempt, error) {
	a, err := s.store.GetAssessment(ctx, at.AssessmentID)
	if err != nil {
		return Attempt{}, err
	}
	now := s.now().Unix()

	forced := at.DeadlineAt > 0 && now > at.DeadlineAt+s.graceSec
	if forced {
		// Late submission: treated as a forced auto-submit. Only answers
		// saved before the deadline count; the inline payload is dropped.
		at.TimeTakenSec = a.TimeLimitSec
		at.EndReason = EndReasonTimeOut
	} else {
		if err := a.ValidateAnswers(answers); err != nil {
			return Attempt{}, err
		}
		if at.Answers == nil {
			at.Answers = AnswerSet{}
		}
		for k, v := range answers {
			at.Answers[k] = v
		}
		at.TimeTakenSec, at.EndReason = s.clampTime(a, at, reportedSec, now)
	}

	at.Score, _, _ = ScoreAnswers(a.Questions, at.Answers)
	at.Passed = at.Score >= a.PassingScore
	at.SubmittedAt = now

	stored, won, err := s.store.FinalizeAttempt(ctx, at)
	if err != nil {
		return Attempt{}, err
	}
	if !won {
		return stored, nil
	}
	s.emitSubmitted(ctx, stored)
	if stored.Passed && s.notifier != nil {
		if err := s.notifier.AssessmentPassed(ctx, stored.EnrollmentID, stored.AssessmentID); err != nil {
			// The attempt is durable; the reconciliation sweep will pick
			// this enrollment up on its next pass.
			log.Printf("progress notify failed for enrollment %s: %v", stored.EnrollmentID, err)
		}
	}
	return stored, nil
}

// clampTime reconciles the client-reported duration with the server clock.
// The server measurement wins when the client claims more; overruns are
// clamped to the limit and flagged.
func (s *Service) clampTime(a Assessment, at Attempt, reportedSec int, now int64) (int, string) {
	elapsed := int(now - at.StartedAt)
	taken := reportedSec
	if taken <= 0 || taken > elapsed {
		taken = elapsed
	}
	if a.TimeLimitSec > 0 && taken > a.TimeLimitSec {
		return a.TimeLimitSec, EndReasonTimeOut
	}
	return taken, EndReasonSubmitted
}

// ExpireAttempt is the auto-submit path: invoked when an attempt's clock
// runs out. Attempts with saved answers are finalized as timed out; an
// attempt nothing was ever saved to is abandoned and does not count toward
// the attempt limit. Safe to call repeatedly and alongside a manual submit.
func (s *Service) ExpireAttempt(ctx context.Context, attemptID string) error {
	at, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	if !at.Open() || at.DeadlineAt == 0 {
		return nil
	}
	now := s.now().Unix()
	if now < at.DeadlineAt {
		return nil
	}
	if len(at.Answers) == 0 {
		return s.store.AbandonAttempt(ctx, attemptID)
	}
	a, err := s.store.GetAssessment(ctx, at.AssessmentID)
	if err != nil {
		return err
	}
	at.TimeTakenSec = a.TimeLimitSec
	at.EndReason = EndReasonTimeOut
	at.Score, _, _ = ScoreAnswers(a.Questions, at.Answers)
	at.Passed = at.Score >= a.PassingScore
	at.SubmittedAt = now

	stored, won, err := s.store.FinalizeAttempt(ctx, at)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}
	s.emitSubmitted(ctx, stored)
	if stored.Passed && s.notifier != nil {
		if err := s.notifier.AssessmentPassed(ctx, stored.EnrollmentID, stored.AssessmentID); err != nil {
			log.Printf("progress notify failed for enrollment %s: %v", stored.EnrollmentID, err)
		}
	}
	return nil
}

// SweepStale finalizes expired open attempts (covers timers lost to a
// restart) and abandons untimed attempts idle past the cutoff.
func (s *Service) SweepStale(ctx context.Context, idleBefore int64) (expired, abandoned int, err error) {
	stale, err := s.store.ListStaleOpen(ctx, s.now().Unix(), idleBefore)
	if err != nil {
		return 0, 0, err
	}
	for _, at := range stale {
		if at.DeadlineAt == 0 || len(at.Answers) == 0 {
			if err := s.store.AbandonAttempt(ctx, at.ID); err != nil {
				log.Printf("abandon attempt %s: %v", at.ID, err)
				continue
			}
			abandoned++
			continue
		}
		if err := s.ExpireAttempt(ctx, at.ID); err != nil {
			log.Printf("expire attempt %s: %v", at.ID, err)
			continue
		}
		expired++
	}
	return expired, abandoned, nil
}

// QuestionResult is one line of a post-submission review.
type QuestionResult struct {
	QuestionID   string `json:"question_id"`
	Correct      bool   `json:"correct"`
	PointsEarned int    `json:"points_earned"`
	Points       int    `json:"points"`
}

// Review returns the attempt with per-question outcomes. Correct-answer
// indices are not part of the result; redaction policy for the surrounding
// payload is the caller's concern.
func (s *Service) Review(ctx context.Context, attemptID string) (Attempt, []QuestionResult, error) {
	at, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, nil, err
	}
	if at.Open() {
		return at, nil, nil
	}
	a, err := s.store.GetAssessment(ctx, at.AssessmentID)
	if err != nil {
		return Attempt{}, nil, err
	}
	results := make([]QuestionResult, 0, len(a.Questions))
	for _, q := range a.Questions {
		r := ScoreQuestion(q, at.Answers[q.ID])
		results = append(results, QuestionResult{
			QuestionID:   q.ID,
			Correct:      r.Correct,
			PointsEarned: r.PointsEarned,
			Points:       q.Points,
		})
	}
	return at, results, nil
}

func (s *Service) emitSubmitted(ctx context.Context, at Attempt) {
	data, _ := json.Marshal(map[string]interface{}{
		"assessment_id": at.AssessmentID,
		"enrollment_id": at.EnrollmentID,
		"score":         at.Score,
		"passed":        at.Passed,
		"end_reason":    at.EndReason,
	})
	if err := s.events.Append(ctx, eventlog.Event{
		Type:     eventlog.TypeAttemptSubmitted,
		Key:      at.ID,
		DataJSON: string(data),
	}); err != nil {
		log.Printf("event log append failed for attempt %s: %v", at.ID, err)
	}
}
