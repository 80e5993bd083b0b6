package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type memStore struct {
	mu      sync.RWMutex
	courses map[string]Course
}

func NewMemStore() Store {
	return &memStore{courses: map[string]Course{}}
}

func (m *memStore) SaveCourse(_ context.Context, c Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.courses[c.ID] = c
	return nil
}

func (m *memStore) GetCourse(_ context.Context, id string) (Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.courses[id]
	if !ok {
		return Course{}, fmt.Errorf("course %s: %w", id, ErrNotFound)
	}
	return c, nil
}

func (m *memStore) GetContent(_ context.Context, contentID string) (ContentItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.courses {
		for _, mod := range c.Modules {
			for _, ci := range mod.Contents {
				if ci.ID == contentID {
					ci.CourseID = c.ID
					ci.ModuleID = mod.ID
					return ci, nil
				}
			}
		}
	}
	return ContentItem{}, fmt.Errorf("content %s: %w", contentID, ErrNotFound)
}

func (m *memStore) RequiredContentIDs(_ context.Context, courseID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.courses[courseID]
	if !ok {
		return nil, fmt.Errorf("course %s: %w", courseID, ErrNotFound)
	}
	var out []string
	for _, mod := range c.Modules {
		for _, ci := range mod.Contents {
			if ci.Required {
				out = append(out, ci.ID)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}
