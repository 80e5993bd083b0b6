package eventlog

import (
	"context"
	"fmt"
	"testing"

	"github.com/traincore/traincore-lms/internal/db"
)

func TestAppendAssignsIncreasingSeq(t *testing.T) {
	ctx := context.Background()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	dbh, err := db.Open(ctx, db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = dbh.Close() })

	repo := NewRepo(dbh)
	events := []Event{
		{Type: TypeAttemptSubmitted, Key: "at-1", DataJSON: `{"score":80}`},
		{Type: TypeEnrollmentCompleted, Key: "enr-1", DataJSON: `{}`},
	}
	for _, e := range events {
		if err := repo.Append(ctx, e); err != nil {
			t.Fatalf("append %s: %v", e.Type, err)
		}
	}

	rows, err := dbh.QueryContext(ctx, `SELECT seq, typ, key FROM event_log ORDER BY seq`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	var seqs []int64
	var types []string
	for rows.Next() {
		var seq int64
		var typ, key string
		if err := rows.Scan(&seq, &typ, &key); err != nil {
			t.Fatalf("scan: %v", err)
		}
		seqs = append(seqs, seq)
		types = append(types, typ)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(seqs) != 2 || seqs[1] <= seqs[0] {
		t.Fatalf("seqs=%v, want two increasing values", seqs)
	}
	if types[0] != TypeAttemptSubmitted || types[1] != TypeEnrollmentCompleted {
		t.Fatalf("types=%v, want append order preserved", types)
	}
}
