// Package eventlog appends domain events (attempt submissions, content
// completions, enrollment completions) to an append-only audit table.
package eventlog

import (
	"context"
	"database/sql"
	"time"
)

const (
	TypeAttemptSubmitted    = "AttemptSubmitted"
	TypeContentCompleted    = "ContentCompleted"
	TypeEnrollmentCompleted = "EnrollmentCompleted"
)

type Event struct {
	Seq       int64
	Type      string
	Key       string // natural key: attemptID, enrollmentID|contentID, enrollmentID
	DataJSON  string
	CreatedAt int64
}

// Sink is the write side. Services only ever append.
type Sink interface {
	Append(ctx context.Context, e Event) error
}

type Repo struct{ db *sql.DB }

func NewRepo(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4)`,
		e.Type, e.Key, e.DataJSON, time.Now().Unix())
	return err
}

// Nop discards events. Used by tests and by stores running without a DB.
type Nop struct{}

func (Nop) Append(context.Context, Event) error { return nil }
