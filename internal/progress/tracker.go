package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/traincore/traincore-lms/internal/catalog"
	"github.com/traincore/traincore-lms/internal/eventlog"
)

var ErrBadRequest = errors.New("bad request")

// videoCompleteRatio is the watched fraction at which a video counts as
// completed without an explicit complete call.
const videoCompleteRatio = 0.8

// Tracker records content completion. Completion is permanent: once a
// record flips to completed it never reverts, and repeat calls are no-ops.
type Tracker struct {
	catalog catalog.Store
	store   Store
	agg     *Aggregator
	events  eventlog.Sink
}

func NewTracker(cat catalog.Store, store Store, agg *Aggregator, events eventlog.Sink) *Tracker {
	if events == nil {
		events = eventlog.Nop{}
	}
	return &Tracker{catalog: cat, store: store, agg: agg, events: events}
}

// CompleteContent marks a content item completed for an enrollment and,
// on the first completion only, emits the event and recomputes progress.
func (t *Tracker) CompleteContent(ctx context.Context, enrollmentID, contentID string) (ProgressRecord, error) {
	enr, item, err := t.resolve(ctx, enrollmentID, contentID)
	if err != nil {
		return ProgressRecord{}, err
	}

	rec, firstTime, err := t.store.MarkCompleted(ctx, ProgressRecord{
		EnrollmentID: enr.ID,
		ContentID:    item.ID,
		ModuleID:     item.ModuleID,
	})
	if err != nil {
		return ProgressRecord{}, err
	}
	if !firstTime {
		return rec, nil
	}

	t.emitCompleted(ctx, enr.ID, item.ID)
	if t.agg != nil {
		if _, err := t.agg.Recompute(ctx, enr.ID); err != nil {
			// The record is durable; the periodic sweep recomputes it.
			log.Printf("recompute after content %s: %v", item.ID, err)
		}
	}
	return rec, nil
}

// RecordVideoProgress reports watch position for a video item. Crossing
// the completion threshold completes the item; below it, the record is
// only ensured so the item shows as started.
func (t *Tracker) RecordVideoProgress(ctx context.Context, enrollmentID, contentID string, watchedSec int) (ProgressRecord, error) {
	enr, item, err := t.resolve(ctx, enrollmentID, contentID)
	if err != nil {
		return ProgressRecord{}, err
	}
	if item.Type != catalog.ContentVideo {
		return ProgressRecord{}, fmt.Errorf("content %s is not a video: %w", contentID, ErrBadRequest)
	}
	if watchedSec < 0 {
		return ProgressRecord{}, fmt.Errorf("negative watched seconds: %w", ErrBadRequest)
	}

	if item.DurationSec > 0 && float64(watchedSec) >= videoCompleteRatio*float64(item.DurationSec) {
		return t.CompleteContent(ctx, enrollmentID, contentID)
	}
	return t.store.EnsureStarted(ctx, ProgressRecord{
		EnrollmentID: enr.ID,
		ContentID:    item.ID,
		ModuleID:     item.ModuleID,
	})
}

func (t *Tracker) resolve(ctx context.Context, enrollmentID, contentID string) (Enrollment, catalog.ContentItem, error) {
	enr, err := t.store.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return Enrollment{}, catalog.ContentItem{}, err
	}
	item, err := t.catalog.GetContent(ctx, contentID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return Enrollment{}, catalog.ContentItem{}, fmt.Errorf("content %s: %w", contentID, ErrNotFound)
		}
		return Enrollment{}, catalog.ContentItem{}, err
	}
	if item.CourseID != enr.CourseID || enr.Status == StatusDropped {
		return Enrollment{}, catalog.ContentItem{}, fmt.Errorf("enrollment %s / content %s: %w", enrollmentID, contentID, ErrNotEnrolled)
	}
	return enr, item, nil
}

func (t *Tracker) emitCompleted(ctx context.Context, enrollmentID, contentID string) {
	data, _ := json.Marshal(map[string]string{
		"enrollment_id": enrollmentID,
		"content_id":    contentID,
	})
	if err := t.events.Append(ctx, eventlog.Event{
		Type:     eventlog.TypeContentCompleted,
		Key:      enrollmentID,
		DataJSON: string(data),
	}); err != nil {
		log.Printf("event log append failed for content %s: %v", contentID, err)
	}
}
