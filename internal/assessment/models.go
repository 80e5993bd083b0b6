package assessment

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Assessment types.
const (
	TypeQuiz       = "quiz"
	TypeAssignment = "assignment"
	TypeExam       = "exam"
)

// Question types.
const (
	QuestionMultipleChoice = "multiple-choice"
	QuestionTrueFalse      = "true-false"
	QuestionMultipleSelect = "multiple-select"
)

// Attempt statuses.
const (
	StatusInProgress = "in_progress"
	StatusSubmitted  = "submitted"
	StatusAbandoned  = "abandoned"
)

// End reasons for finalized attempts.
const (
	EndReasonSubmitted = "submitted"
	EndReasonTimeOut   = "time_out"
)

type Question struct {
	ID      string   `json:"id"`
	Type    string   `json:"type"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
	// CorrectAnswers holds option indices: a single element for
	// multiple-choice/true-false, the full set for multiple-select.
	CorrectAnswers []int  `json:"correct_answers,omitempty"`
	Points         int    `json:"points"`
	Explanation    string `json:"explanation,omitempty"`
}

type Assessment struct {
	ID           string     `json:"id"`
	CourseID     string     `json:"course_id"`
	ModuleID     string     `json:"module_id,omitempty"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Type         string     `json:"type"`
	PassingScore int        `json:"passing_score"`
	MaxAttempts  int        `json:"max_attempts,omitempty"`   // 0 = unlimited
	TimeLimitSec int        `json:"time_limit_sec,omitempty"` // 0 = unlimited
	Required     bool       `json:"required"`
	Questions    []Question `json:"questions"`
	CreatedAt    int64      `json:"created_at,omitempty"`
}

// Answer is the learner's selection for one question: a single option index
// for multiple-choice/true-false, an index set for multiple-select. The wire
// form accepts either a bare number or an array of numbers.
type Answer []int

func (a *Answer) UnmarshalJSON(b []byte) error {
	var single int
	if err := json.Unmarshal(b, &single); err == nil {
		*a = Answer{single}
		return nil
	}
	var many []int
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("answer must be an option index or an array of indices")
	}
	*a = Answer(many)
	return nil
}

// AnswerSet maps question id to the submitted answer.
type AnswerSet map[string]Answer

type Attempt struct {
	ID           string    `json:"id"`
	AssessmentID string    `json:"assessment_id"`
	EnrollmentID string    `json:"enrollment_id"`
	Status       string    `json:"status"`
	Answers      AnswerSet `json:"answers"`
	Score        int       `json:"score"`  // percentage, 0-100
	Passed       bool      `json:"passed"` // score >= passing_score
	TimeTakenSec int       `json:"time_taken_sec"`
	EndReason    string    `json:"end_reason,omitempty"`
	StartedAt    int64     `json:"started_at"`
	DeadlineAt   int64     `json:"deadline_at,omitempty"` // 0 when no time limit
	SubmittedAt  int64     `json:"submitted_at,omitempty"`
}

// Open reports whether the attempt is still accepting responses.
func (a Attempt) Open() bool { return a.Status == StatusInProgress }

// Redacted returns a copy safe to serve to the learner taking the
// assessment: answer keys and explanations stripped.
func (a Assessment) Redacted() Assessment {
	out := a
	out.Questions = make([]Question, len(a.Questions))
	for i, q := range a.Questions {
		q.CorrectAnswers = nil
		q.Explanation = ""
		out.Questions[i] = q
	}
	return out
}

// Validate checks authoring invariants that validator tags cannot express.
func (a Assessment) Validate() error {
	switch a.Type {
	case TypeQuiz, TypeAssignment, TypeExam:
	default:
		return fmt.Errorf("%w: unknown assessment type %q", ErrValidation, a.Type)
	}
	if a.PassingScore < 0 || a.PassingScore > 100 {
		return fmt.Errorf("%w: passing_score must be 0-100", ErrValidation)
	}
	if a.MaxAttempts < 0 {
		return fmt.Errorf("%w: max_attempts must be positive", ErrValidation)
	}
	if len(a.Questions) == 0 && a.Type != TypeAssignment {
		return fmt.Errorf("%w: %s requires at least one question", ErrValidation, a.Type)
	}
	seen := make(map[string]bool, len(a.Questions))
	for _, q := range a.Questions {
		if q.ID == "" || seen[q.ID] {
			return fmt.Errorf("%w: question ids must be unique and non-empty", ErrValidation)
		}
		seen[q.ID] = true
		if err := q.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (q Question) validate() error {
	if q.Points <= 0 {
		return fmt.Errorf("%w: question %s: points must be positive", ErrValidation, q.ID)
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("%w: question %s: at least 2 options required", ErrValidation, q.ID)
	}
	switch q.Type {
	case QuestionMultipleChoice:
		if len(q.CorrectAnswers) != 1 {
			return fmt.Errorf("%w: question %s: exactly one correct answer required", ErrValidation, q.ID)
		}
	case QuestionTrueFalse:
		if len(q.Options) != 2 {
			return fmt.Errorf("%w: question %s: true-false needs exactly 2 options", ErrValidation, q.ID)
		}
		if len(q.CorrectAnswers) != 1 {
			return fmt.Errorf("%w: question %s: exactly one correct answer required", ErrValidation, q.ID)
		}
	case QuestionMultipleSelect:
		if len(q.CorrectAnswers) == 0 {
			return fmt.Errorf("%w: question %s: correct answer set must be non-empty", ErrValidation, q.ID)
		}
	default:
		return fmt.Errorf("%w: question %s: unknown type %q", ErrValidation, q.ID, q.Type)
	}
	for _, idx := range q.CorrectAnswers {
		if idx < 0 || idx >= len(q.Options) {
			return fmt.Errorf("%w: question %s: correct answer index %d out of range", ErrValidation, q.ID, idx)
		}
	}
	return nil
}

// ValidateAnswers rejects answers referencing unknown question ids. Malformed
// shapes are caught earlier at decode; unknown ids here, so a bad payload is
// never silently coerced into a wrong-answer score.
func (a Assessment) ValidateAnswers(ans AnswerSet) error {
	known := make(map[string]bool, len(a.Questions))
	for _, q := range a.Questions {
		known[q.ID] = true
	}
	var bad []string
	for id := range ans {
		if !known[id] {
			bad = append(bad, id)
		}
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		return fmt.Errorf("%w: unknown question ids %v", ErrValidation, bad)
	}
	return nil
}
