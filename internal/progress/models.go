package progress

// Enrollment statuses.
const (
	StatusEnrolled   = "enrolled"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusDropped    = "dropped"
)

// Progress record statuses.
const (
	RecordNotStarted = "not_started"
	RecordCompleted  = "completed"
)

type Enrollment struct {
	ID          string `json:"id"`
	TraineeID   string `json:"trainee_id"`
	CourseID    string `json:"course_id"`
	Status      string `json:"status"`
	ProgressPct int    `json:"progress_percentage"`
	StartedAt   int64  `json:"started_at"`
	CompletedAt int64  `json:"completed_at,omitempty"`
	DueDate     int64  `json:"due_date,omitempty"`
}

// ProgressRecord marks one (enrollment, content item) interaction. It is
// created on first touch and flips to completed at most once.
type ProgressRecord struct {
	ID           string `json:"id"`
	EnrollmentID string `json:"enrollment_id"`
	ContentID    string `json:"content_id"`
	ModuleID     string `json:"module_id,omitempty"`
	Status       string `json:"status"`
	CompletedAt  int64  `json:"completed_at,omitempty"`
}

// Snapshot is the aggregator's derived output for one enrollment.
type Snapshot struct {
	EnrollmentID string `json:"enrollment_id"`
	ProgressPct  int    `json:"progress_percentage"`
	Status       string `json:"status"`
	CompletedAt  int64  `json:"completed_at,omitempty"`
}

// CourseSummary aggregates enrollment progress across one course.
type CourseSummary struct {
	CourseID    string       `json:"course_id"`
	Enrollments int          `json:"enrollments"`
	NotStarted  int          `json:"not_started"`
	InProgress  int          `json:"in_progress"`
	Completed   int          `json:"completed"`
	Dropped     int          `json:"dropped"`
	AvgProgress int          `json:"avg_progress"`
	PerTrainee  []Enrollment `json:"per_trainee,omitempty"`
}
