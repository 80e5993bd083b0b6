package progress

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

const enrollmentCols = `id,trainee_id,course_id,status,progress_pct,started_at,completed_at,due_date`

func (s *SQLStore) CreateEnrollment(ctx context.Context, e Enrollment) (Enrollment, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = StatusEnrolled
	}
	if e.StartedAt == 0 {
		e.StartedAt = time.Now().Unix()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO enrollments
		(id,trainee_id,course_id,status,progress_pct,started_at,completed_at,due_date)
		VALUES ($1,$2,$3,$4,0,$5,0,$6)
		ON CONFLICT (trainee_id, course_id) DO NOTHING`,
		e.ID, e.TraineeID, e.CourseID, e.Status, e.StartedAt, e.DueDate)
	if err != nil {
		return Enrollment{}, err
	}
	// Re-read: a concurrent (or prior) enrollment for the pair wins.
	row := s.db.QueryRowContext(ctx,
		`SELECT `+enrollmentCols+` FROM enrollments WHERE trainee_id=$1 AND course_id=$2`,
		e.TraineeID, e.CourseID)
	return scanEnrollment(row)
}

func (s *SQLStore) GetEnrollment(ctx context.Context, id string) (Enrollment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+enrollmentCols+` FROM enrollments WHERE id=$1`, id)
	e, err := scanEnrollment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Enrollment{}, fmt.Errorf("enrollment %s: %w", id, ErrNotFound)
		}
		return Enrollment{}, err
	}
	return e, nil
}

func (s *SQLStore) ListEnrollmentsByCourse(ctx context.Context, courseID string) ([]Enrollment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+enrollmentCols+` FROM enrollments WHERE course_id=$1 ORDER BY started_at`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListEnrollmentIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM enrollments WHERE status != $1`, StatusDropped)
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

func (s *SQLStore) UpdateProgress(ctx context.Context, enrollmentID string, pct int, status string, completedAt int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE enrollments SET progress_pct=$1, status=$2, completed_at=$3 WHERE id=$4`,
		pct, status, completedAt, enrollmentID)
	return err
}

func (s *SQLStore) DropEnrollment(ctx context.Context, enrollmentID string) (Enrollment, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE enrollments SET status=$1, progress_pct=0, completed_at=0 WHERE id=$2`,
		StatusDropped, enrollmentID)
	if err != nil {
		return Enrollment{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Enrollment{}, fmt.Errorf("enrollment %s: %w", enrollmentID, ErrNotFound)
	}
	return s.GetEnrollment(ctx, enrollmentID)
}

func (s *SQLStore) EnsureStarted(ctx context.Context, rec ProgressRecord) (ProgressRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO progress_records
		(id,enrollment_id,content_id,module_id,status,completed_at)
		VALUES ($1,$2,$3,$4,$5,0)
		ON CONFLICT (enrollment_id, content_id) DO NOTHING`,
		rec.ID, rec.EnrollmentID, rec.ContentID, rec.ModuleID, RecordNotStarted)
	if err != nil {
		return ProgressRecord{}, err
	}
	return s.getRecord(ctx, rec.EnrollmentID, rec.ContentID)
}

func (s *SQLStore) MarkCompleted(ctx context.Context, rec ProgressRecord) (ProgressRecord, bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().Unix()
	ins, err := s.db.ExecContext(ctx, `INSERT INTO progress_records
		(id,enrollment_id,content_id,module_id,status,completed_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (enrollment_id, content_id) DO NOTHING`,
		rec.ID, rec.EnrollmentID, rec.ContentID, rec.ModuleID, RecordCompleted, now)
	if err != nil {
		return ProgressRecord{}, false, err
	}
	inserted, _ := ins.RowsAffected()

	// Flip a pre-existing not_started row; completed rows stay untouched,
	// which is what makes re-marking a no-op.
	res, err := s.db.ExecContext(ctx,
		`UPDATE progress_records SET status=$1, completed_at=$2
		 WHERE enrollment_id=$3 AND content_id=$4 AND status=$5`,
		RecordCompleted, now, rec.EnrollmentID, rec.ContentID, RecordNotStarted)
	if err != nil {
		return ProgressRecord{}, false, err
	}
	flipped, _ := res.RowsAffected()

	stored, err := s.getRecord(ctx, rec.EnrollmentID, rec.ContentID)
	if err != nil {
		return ProgressRecord{}, false, err
	}
	return stored, inserted == 1 || flipped == 1, nil
}

func (s *SQLStore) CompletedContentIDs(ctx context.Context, enrollmentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT content_id FROM progress_records WHERE enrollment_id=$1 AND status=$2`,
		enrollmentID, RecordCompleted)
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

func (s *SQLStore) getRecord(ctx context.Context, enrollmentID, contentID string) (ProgressRecord, error) {
	var rec ProgressRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT id,enrollment_id,content_id,module_id,status,completed_at
		 FROM progress_records WHERE enrollment_id=$1 AND content_id=$2`,
		enrollmentID, contentID).
		Scan(&rec.ID, &rec.EnrollmentID, &rec.ContentID, &rec.ModuleID, &rec.Status, &rec.CompletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ProgressRecord{}, fmt.Errorf("progress record: %w", ErrNotFound)
		}
		return ProgressRecord{}, err
	}
	return rec, nil
}

type rowScanner interface{ Scan(dest ...interface{}) error }

func scanEnrollment(r rowScanner) (Enrollment, error) {
	var e Enrollment
	err := r.Scan(&e.ID, &e.TraineeID, &e.CourseID, &e.Status, &e.ProgressPct,
		&e.StartedAt, &e.CompletedAt, &e.DueDate)
	return e, err
}
