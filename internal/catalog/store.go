package catalog

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

type Store interface {
	SaveCourse(ctx context.Context, c Course) error
	GetCourse(ctx context.Context, id string) (Course, error)
	GetContent(ctx context.Context, contentID string) (ContentItem, error)
	// RequiredContentIDs feeds the progress denominator: only required
	// items count toward completion percentage.
	RequiredContentIDs(ctx context.Context, courseID string) ([]string, error)
}
