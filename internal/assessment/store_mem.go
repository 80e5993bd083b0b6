package assessment

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// memStore mirrors SQLStore semantics, including the one-open-attempt
// constraint and the compare-and-swap finalize. Used by tests and dev mode.
type memStore struct {
	mu          sync.Mutex
	assessments map[string]Assessment
	attempts    map[string]Attempt
}

func NewMemStore() Store {
	return &memStore{
		assessments: map[string]Assessment{},
		attempts:    map[string]Attempt{},
	}
}

func (m *memStore) PutAssessment(_ context.Context, a Assessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assessments[a.ID] = a
	return nil
}

func (m *memStore) GetAssessment(_ context.Context, id string) (Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assessments[id]
	if !ok {
		return Assessment{}, fmt.Errorf("assessment %s: %w", id, ErrNotFound)
	}
	return a, nil
}

func (m *memStore) OpenAttempt(_ context.Context, a Attempt, maxAttempts int) (Attempt, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if maxAttempts > 0 {
		n := 0
		for _, ex := range m.attempts {
			if ex.AssessmentID == a.AssessmentID && ex.EnrollmentID == a.EnrollmentID && ex.Status == StatusSubmitted {
				n++
			}
		}
		if n >= maxAttempts {
			return Attempt{}, false, fmt.Errorf("assessment %s: %w", a.AssessmentID, ErrAttemptLimitExceeded)
		}
	}
	for _, ex := range m.attempts {
		if ex.AssessmentID == a.AssessmentID && ex.EnrollmentID == a.EnrollmentID && ex.Open() {
			return ex.clone(), false, nil
		}
	}
	a.Status = StatusInProgress
	if a.Answers == nil {
		a.Answers = AnswerSet{}
	}
	m.attempts[a.ID] = a.clone()
	return a, true, nil
}

func (m *memStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, fmt.Errorf("attempt %s: %w", id, ErrNotFound)
	}
	return a.clone(), nil
}

func (m *memStore) GetOpenAttempt(_ context.Context, assessmentID, enrollmentID string) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attempts {
		if a.AssessmentID == assessmentID && a.EnrollmentID == enrollmentID && a.Open() {
			return a.clone(), nil
		}
	}
	return Attempt{}, fmt.Errorf("open attempt: %w", ErrNotFound)
}

func (m *memStore) SaveResponses(_ context.Context, attemptID string, answers AnswerSet) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return Attempt{}, fmt.Errorf("attempt %s: %w", attemptID, ErrNotFound)
	}
	if !a.Open() {
		return Attempt{}, fmt.Errorf("attempt %s: %w", attemptID, ErrAlreadySubmitted)
	}
	for k, v := range answers {
		a.Answers[k] = v
	}
	m.attempts[attemptID] = a
	return a.clone(), nil
}

func (m *memStore) FinalizeAttempt(_ context.Context, a Attempt) (Attempt, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.attempts[a.ID]
	if !ok {
		return Attempt{}, false, fmt.Errorf("attempt %s: %w", a.ID, ErrNotFound)
	}
	if !cur.Open() {
		return cur.clone(), false, nil
	}
	a.Status = StatusSubmitted
	m.attempts[a.ID] = a.clone()
	return a, true, nil
}

func (m *memStore) AbandonAttempt(_ context.Context, attemptID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok || !a.Open() {
		return nil
	}
	a.Status = StatusAbandoned
	m.attempts[attemptID] = a
	return nil
}

func (m *memStore) CountSubmitted(_ context.Context, assessmentID, enrollmentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.attempts {
		if a.AssessmentID == assessmentID && a.EnrollmentID == enrollmentID && a.Status == StatusSubmitted {
			n++
		}
	}
	return n, nil
}

func (m *memStore) ListAttempts(_ context.Context, opts AttemptListOpts) ([]Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := opts.Status
	if status == "" {
		status = StatusSubmitted
	}
	var out []Attempt
	for _, a := range m.attempts {
		if opts.AssessmentID != "" && a.AssessmentID != opts.AssessmentID {
			continue
		}
		if opts.EnrollmentID != "" && a.EnrollmentID != opts.EnrollmentID {
			continue
		}
		if a.Status != status {
			continue
		}
		out = append(out, a.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt > out[j].StartedAt })
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *memStore) ListStaleOpen(_ context.Context, deadlineBefore, idleBefore int64) ([]Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Attempt
	for _, a := range m.attempts {
		if !a.Open() {
			continue
		}
		if (a.DeadlineAt > 0 && a.DeadlineAt < deadlineBefore) ||
			(a.DeadlineAt == 0 && a.StartedAt < idleBefore) {
			out = append(out, a.clone())
		}
	}
	return out, nil
}

func (m *memStore) PassedAssessmentIDs(_ context.Context, enrollmentID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	for _, a := range m.attempts {
		if a.EnrollmentID == enrollmentID && a.Status == StatusSubmitted && a.Passed {
			seen[a.AssessmentID] = true
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memStore) RequiredAssessmentIDs(_ context.Context, courseID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, a := range m.assessments {
		if a.CourseID == courseID && a.Required {
			out = append(out, a.ID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (a Attempt) clone() Attempt {
	out := a
	out.Answers = make(AnswerSet, len(a.Answers))
	for k, v := range a.Answers {
		c := make(Answer, len(v))
		copy(c, v)
		out.Answers[k] = c
	}
	return out
}
