package progress

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memStore struct {
	mu          sync.Mutex
	enrollments map[string]Enrollment
	records     map[string]ProgressRecord // key: enrollmentID|contentID
}

func NewMemStore() Store {
	return &memStore{
		enrollments: map[string]Enrollment{},
		records:     map[string]ProgressRecord{},
	}
}

func recKey(enrollmentID, contentID string) string { return enrollmentID + "|" + contentID }

func (m *memStore) CreateEnrollment(_ context.Context, e Enrollment) (Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ex := range m.enrollments {
		if ex.TraineeID == e.TraineeID && ex.CourseID == e.CourseID {
			return ex, nil
		}
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = StatusEnrolled
	}
	if e.StartedAt == 0 {
		e.StartedAt = time.Now().Unix()
	}
	m.enrollments[e.ID] = e
	return e, nil
}

func (m *memStore) GetEnrollment(_ context.Context, id string) (Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[id]
	if !ok {
		return Enrollment{}, fmt.Errorf("enrollment %s: %w", id, ErrNotFound)
	}
	return e, nil
}

func (m *memStore) ListEnrollmentsByCourse(_ context.Context, courseID string) ([]Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Enrollment
	for _, e := range m.enrollments {
		if e.CourseID == courseID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt < out[j].StartedAt })
	return out, nil
}

func (m *memStore) ListEnrollmentIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id, e := range m.enrollments {
		if e.Status != StatusDropped {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memStore) UpdateProgress(_ context.Context, enrollmentID string, pct int, status string, completedAt int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[enrollmentID]
	if !ok {
		return fmt.Errorf("enrollment %s: %w", enrollmentID, ErrNotFound)
	}
	e.ProgressPct = pct
	e.Status = status
	e.CompletedAt = completedAt
	m.enrollments[enrollmentID] = e
	return nil
}

func (m *memStore) DropEnrollment(_ context.Context, enrollmentID string) (Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[enrollmentID]
	if !ok {
		return Enrollment{}, fmt.Errorf("enrollment %s: %w", enrollmentID, ErrNotFound)
	}
	e.Status = StatusDropped
	e.ProgressPct = 0
	e.CompletedAt = 0
	m.enrollments[enrollmentID] = e
	return e, nil
}

func (m *memStore) EnsureStarted(_ context.Context, rec ProgressRecord) (ProgressRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := recKey(rec.EnrollmentID, rec.ContentID)
	if ex, ok := m.records[k]; ok {
		return ex, nil
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.Status = RecordNotStarted
	rec.CompletedAt = 0
	m.records[k] = rec
	return rec, nil
}

func (m *memStore) MarkCompleted(_ context.Context, rec ProgressRecord) (ProgressRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := recKey(rec.EnrollmentID, rec.ContentID)
	if ex, ok := m.records[k]; ok {
		if ex.Status == RecordCompleted {
			return ex, false, nil
		}
		ex.Status = RecordCompleted
		ex.CompletedAt = time.Now().Unix()
		m.records[k] = ex
		return ex, true, nil
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.Status = RecordCompleted
	rec.CompletedAt = time.Now().Unix()
	m.records[k] = rec
	return rec, true, nil
}

func (m *memStore) CompletedContentIDs(_ context.Context, enrollmentID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, r := range m.records {
		if r.EnrollmentID == enrollmentID && r.Status == RecordCompleted {
			out = append(out, r.ContentID)
		}
	}
	sort.Strings(out)
	return out, nil
}
