package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) SaveCourse(ctx context.Context, c Course) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO courses (id,title,description,created_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, description=EXCLUDED.description`,
		c.ID, c.Title, c.Description, time.Now().Unix())
	if err != nil {
		return err
	}
	for _, m := range c.Modules {
		_, err = tx.ExecContext(ctx, `INSERT INTO modules (id,course_id,title,sort_order)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, sort_order=EXCLUDED.sort_order`,
			m.ID, c.ID, m.Title, m.SortOrder)
		if err != nil {
			return err
		}
		for _, ci := range m.Contents {
			_, err = tx.ExecContext(ctx, `INSERT INTO contents
				(id,course_id,module_id,title,type,required,duration_sec,sort_order)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
				ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, type=EXCLUDED.type,
					required=EXCLUDED.required, duration_sec=EXCLUDED.duration_sec,
					sort_order=EXCLUDED.sort_order`,
				ci.ID, c.ID, m.ID, ci.Title, ci.Type, ci.Required, ci.DurationSec, ci.SortOrder)
			if err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func (s *SQLStore) GetCourse(ctx context.Context, id string) (Course, error) {
	var c Course
	err := s.db.QueryRowContext(ctx,
		`SELECT id,title,description,created_at FROM courses WHERE id=$1`, id).
		Scan(&c.ID, &c.Title, &c.Description, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Course{}, fmt.Errorf("course %s: %w", id, ErrNotFound)
		}
		return Course{}, err
	}

	mods, err := s.db.QueryContext(ctx,
		`SELECT id,title,sort_order FROM modules WHERE course_id=$1 ORDER BY sort_order`, id)
	if err != nil {
		return Course{}, err
	}
	defer mods.Close()
	byID := map[string]int{}
	for mods.Next() {
		var m Module
		if err := mods.Scan(&m.ID, &m.Title, &m.SortOrder); err != nil {
			return Course{}, err
		}
		m.CourseID = id
		byID[m.ID] = len(c.Modules)
		c.Modules = append(c.Modules, m)
	}
	if err := mods.Err(); err != nil {
		return Course{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id,module_id,title,type,required,duration_sec,sort_order
		 FROM contents WHERE course_id=$1 ORDER BY sort_order`, id)
	if err != nil {
		return Course{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var ci ContentItem
		if err := rows.Scan(&ci.ID, &ci.ModuleID, &ci.Title, &ci.Type, &ci.Required, &ci.DurationSec, &ci.SortOrder); err != nil {
			return Course{}, err
		}
		ci.CourseID = id
		if i, ok := byID[ci.ModuleID]; ok {
			c.Modules[i].Contents = append(c.Modules[i].Contents, ci)
		}
	}
	return c, rows.Err()
}

func (s *SQLStore) GetContent(ctx context.Context, contentID string) (ContentItem, error) {
	var ci ContentItem
	err := s.db.QueryRowContext(ctx,
		`SELECT id,course_id,module_id,title,type,required,duration_sec,sort_order
		 FROM contents WHERE id=$1`, contentID).
		Scan(&ci.ID, &ci.CourseID, &ci.ModuleID, &ci.Title, &ci.Type, &ci.Required, &ci.DurationSec, &ci.SortOrder)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ContentItem{}, fmt.Errorf("content %s: %w", contentID, ErrNotFound)
		}
		return ContentItem{}, err
	}
	return ci, nil
}

func (s *SQLStore) RequiredContentIDs(ctx context.Context, courseID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM contents WHERE course_id=$1 AND required=$2 ORDER BY id`,
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
