package assessment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) PutAssessment(ctx context.Context, a Assessment) error {
	qj, err := json.Marshal(a.Questions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO assessments
		(id,course_id,module_id,title,description,type,passing_score,max_attempts,time_limit_sec,required,questions_json,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
			title=EXCLUDED.title, description=EXCLUDED.description,
			passing_score=EXCLUDED.passing_score, max_attempts=EXCLUDED.max_attempts,
			time_limit_sec=EXCLUDED.time_limit_sec, required=EXCLUDED.required,
			questions_json=EXCLUDED.questions_json`,
		a.ID, a.CourseID, a.ModuleID, a.Title, a.Description, a.Type,
		a.PassingScore, a.MaxAttempts, a.TimeLimitSec, a.Required, string(qj), time.Now().Unix())
	return err
}

func (s *SQLStore) GetAssessment(ctx context.Context, id string) (Assessment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,course_id,module_id,title,description,type,
		passing_score,max_attempts,time_limit_sec,required,questions_json,created_at
		FROM assessments WHERE id=$1`, id)
	var a Assessment
	var moduleID sql.NullString
	var qjson string
	err := row.Scan(&a.ID, &a.CourseID, &moduleID, &a.Title, &a.Description, &a.Type,
		&a.PassingScore, &a.MaxAttempts, &a.TimeLimitSec, &a.Required, &qjson, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Assessment{}, fmt.Errorf("assessment %s: %w", id, ErrNotFound)
		}
		return Assessment{}, err
	}
	a.ModuleID = moduleID.String
	if err := json.Unmarshal([]byte(qjson), &a.Questions); err != nil {
		return Assessment{}, err
	}
	return a, nil
}

func (s *SQLStore) OpenAttempt(ctx context.Context, a Attempt, maxAttempts int) (Attempt, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Attempt{}, false, err
	}
	defer func() { _ = tx.Rollback() }()

	// Lock the pair's rows before counting. A finalize in flight on one of
	// them either committed already (and is counted below) or blocks until
	// this transaction ends, so the count and the insert see one
	// consistent state. On sqlite the write lock serializes the whole
	// transaction the same way.
	if _, err := tx.ExecContext(ctx,
		`UPDATE attempts SET status=status WHERE assessment_id=$1 AND enrollment_id=$2`,
		a.AssessmentID, a.EnrollmentID); err != nil {
		return Attempt{}, false, err
	}
	if maxAttempts > 0 {
		var n int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM attempts WHERE assessment_id=$1 AND enrollment_id=$2 AND status=$3`,
			a.AssessmentID, a.EnrollmentID, StatusSubmitted).Scan(&n); err != nil {
			return Attempt{}, false, err
		}
		if n >= maxAttempts {
			return Attempt{}, false, fmt.Errorf("assessment %s: %w", a.AssessmentID, ErrAttemptLimitExceeded)
		}
	}

	aj, _ := json.Marshal(a.Answers)
	_, err = tx.ExecContext(ctx, `INSERT INTO attempts
		(id,assessment_id,enrollment_id,status,score,passed,answers_json,time_taken_sec,end_reason,started_at,deadline_at,submitted_at)
		VALUES ($1,$2,$3,$4,0,$5,$6,0,'',$7,$8,0)`,
		a.ID, a.AssessmentID, a.EnrollmentID, StatusInProgress, false, string(aj), a.StartedAt, a.DeadlineAt)
	if err != nil {
		// The partial unique index rejects a second open attempt for the
		// pair; hand back the one that won.
		if isUniqueViolation(err) {
			_ = tx.Rollback()
			existing, gerr := s.GetOpenAttempt(ctx, a.AssessmentID, a.EnrollmentID)
			if gerr != nil {
				return Attempt{}, false, err
			}
			return existing, false, nil
		}
		return Attempt{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return Attempt{}, false, err
	}
	a.Status = StatusInProgress
	return a, true, nil
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	return s.scanAttempt(s.db.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM attempts WHERE id=$1`, id))
}

func (s *SQLStore) GetOpenAttempt(ctx context.Context, assessmentID, enrollmentID string) (Attempt, error) {
	return s.scanAttempt(s.db.QueryRowContext(ctx,
		`SELECT `+attemptCols+` FROM attempts
		 WHERE assessment_id=$1 AND enrollment_id=$2 AND status=$3`,
		assessmentID, enrollmentID, StatusInProgress))
}

func (s *SQLStore) SaveResponses(ctx context.Context, attemptID string, answers AnswerSet) (Attempt, error) {
	a, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if !a.Open() {
		return Attempt{}, fmt.Errorf("attempt %s: %w", attemptID, ErrAlreadySubmitted)
	}
	if a.Answers == nil {
		a.Answers = AnswerSet{}
	}
	for k, v := range answers {
		a.Answers[k] = v
	}
	buf, _ := json.Marshal(a.Answers)
	res, err := s.db.ExecContext(ctx,
		`UPDATE attempts SET answers_json=$1 WHERE id=$2 AND status=$3`,
		string(buf), attemptID, StatusInProgress)
	if err != nil {
		return Attempt{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// finalized between read and write
		return Attempt{}, fmt.Errorf("attempt %s: %w", attemptID, ErrAlreadySubmitted)
	}
	return a, nil
}

func (s *SQLStore) FinalizeAttempt(ctx context.Context, a Attempt) (Attempt, bool, error) {
	buf, _ := json.Marshal(a.Answers)
	res, err := s.db.ExecContext(ctx, `UPDATE attempts
		SET status=$1, score=$2, passed=$3, answers_json=$4, time_taken_sec=$5, end_reason=$6, submitted_at=$7
		WHERE id=$8 AND status=$9`,
		StatusSubmitted, a.Score, a.Passed, string(buf), a.TimeTakenSec, a.EndReason, a.SubmittedAt,
		a.ID, StatusInProgress)
	if err != nil {
		return Attempt{}, false, err
	}
	n, _ := res.RowsAffected()
	stored, err := s.GetAttempt(ctx, a.ID)
	if err != nil {
		return Attempt{}, false, err
	}
	return stored, n == 1, nil
}

func (s *SQLStore) AbandonAttempt(ctx context.Context, attemptID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE attempts SET status=$1 WHERE id=$2 AND status=$3`,
		StatusAbandoned, attemptID, StatusInProgress)
	return err
}

func (s *SQLStore) CountSubmitted(ctx context.Context, assessmentID, enrollmentID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attempts WHERE assessment_id=$1 AND enrollment_id=$2 AND status=$3`,
		assessmentID, enrollmentID, StatusSubmitted).Scan(&n)
	return n, err
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	q := `SELECT ` + attemptCols + ` FROM attempts WHERE 1=1`
	args := []interface{}{}
	n := 0
	add := func(cond string, v interface{}) {
		n++
		q += fmt.Sprintf(" AND %s=$%d", cond, n)
		args = append(args, v)
	}
	if opts.AssessmentID != "" {
		add("assessment_id", opts.AssessmentID)
	}
	if opts.EnrollmentID != "" {
		add("enrollment_id", opts.EnrollmentID)
	}
	status := opts.Status
	if status == "" {
		status = StatusSubmitted
	}
	add("status", status)
	q += " ORDER BY started_at DESC"
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	q += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Attempt
	for rows.Next() {
		a, err := s.scanAttemptRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListStaleOpen(ctx context.Context, deadlineBefore, idleBefore int64) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attemptCols+` FROM attempts
		 WHERE status=$1 AND (
		   (deadline_at > 0 AND deadline_at < $2) OR
		   (deadline_at = 0 AND started_at < $3)
		 )`,
		StatusInProgress, deadlineBefore, idleBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Attempt
	for rows.Next() {
		a, err := s.scanAttemptRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) PassedAssessmentIDs(ctx context.Context, enrollmentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT assessment_id FROM attempts
		 WHERE enrollment_id=$1 AND status=$2 AND passed=$3`,
		enrollmentID, StatusSubmitted, true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLStore) RequiredAssessmentIDs(ctx context.Context, courseID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM assessments WHERE course_id=$1 AND required=$2 ORDER BY id`,
		courseID, true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

const attemptCols = `id,assessment_id,enrollment_id,status,score,passed,answers_json,time_taken_sec,end_reason,started_at,deadline_at,submitted_at`

type rowScanner interface{ Scan(dest ...interface{}) error }

func (s *SQLStore) scanAttempt(row *sql.Row) (Attempt, error) {
	a, err := scanAttemptFrom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attempt{}, fmt.Errorf("attempt: %w", ErrNotFound)
		}
		return Attempt{}, err
	}
	return a, nil
}

func (s *SQLStore) scanAttemptRows(rows *sql.Rows) (Attempt, error) {
	return scanAttemptFrom(rows)
}

func scanAttemptFrom(r rowScanner) (Attempt, error) {
	var a Attempt
	var ajson string
	err := r.Scan(&a.ID, &a.AssessmentID, &a.EnrollmentID, &a.Status, &a.Score, &a.Passed,
		&ajson, &a.TimeTakenSec, &a.EndReason, &a.StartedAt, &a.DeadlineAt, &a.SubmittedAt)
	if err != nil {
		return Attempt{}, err
	}
	if err := json.Unmarshal([]byte(ajson), &a.Answers); err != nil {
		a.Answers = AnswerSet{}
	}
	return a, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || // sqlite
		strings.Contains(msg, "duplicate key") // postgres
}
