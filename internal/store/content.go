package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"gainfair/internal/content"
)

// ContentRepository is the SQLite implementation of content.Repository.
type ContentRepository struct {
	st *Store
}

func (s *Store) Content() *ContentRepository { return &ContentRepository{st: s} }

func (r *ContentRepository) Get(ctx context.Context, key content.PageKey) (content.Record, error) {
	return getContent(ctx, r.st.db, key)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getContent(ctx context.Context, q queryer, key content.PageKey) (content.Record, error) {
	var rec content.Record
	var t, raw string
	err := q.QueryRowContext(ctx,
		`SELECT id,page_name,content_key,content_type,content_value,description,updated_at FROM page_content WHERE page_name=? AND content_key=?`,
		key.Page, key.Key,
	).Scan(&rec.ID, &rec.Page, &rec.Key, &t, &raw, &rec.Description, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return content.Record{}, content.ErrNotFound
	}
	if err != nil {
		return content.Record{}, err
	}
	v, err := content.Decode(content.Type(t), raw)
	if err != nil {
		return content.Record{}, fmt.Errorf("content %s: %w", key, err)
	}
	rec.Value = v
	return rec, nil
}

// Upsert merges f into the stored row inside one transaction; concurrent
// editors of the same key resolve as last write wins.
func (r *ContentRepository) Upsert(ctx context.Context, key content.PageKey, f content.Fields) (content.Record, error) {
	tx, err := r.st.db.BeginTx(ctx, nil)
	if err != nil {
		return content.Record{}, err
	}
	defer tx.Rollback()

	var cur *content.Record
	existing, err := getContent(ctx, tx, key)
	switch {
	case err == nil:
		cur = &existing
	case err == content.ErrNotFound:
	default:
		return content.Record{}, err
	}
	rec, err := content.Merge(cur, key, f)
	if err != nil {
		return content.Record{}, err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.UpdatedAt = r.st.now()
	if _, err := tx.ExecContext(ctx, `INSERT INTO page_content(id,page_name,content_key,content_type,content_value,description,updated_at)
VALUES(?,?,?,?,?,?,?)
ON CONFLICT(page_name,content_key) DO UPDATE SET
  content_type=excluded.content_type,
  content_value=excluded.content_value,
  description=excluded.description,
  updated_at=excluded.updated_at`,
		rec.ID, rec.Page, rec.Key, string(rec.Value.Type()), rec.Value.Raw(), rec.Description, rec.UpdatedAt,
	); err != nil {
		return content.Record{}, err
	}
	if err := tx.Commit(); err != nil {
		return content.Record{}, err
	}
	return rec, nil
}

func (r *ContentRepository) ListByPage(ctx context.Context, page string) ([]content.Record, error) {
	rows, err := r.st.db.QueryContext(ctx,
		`SELECT id,page_name,content_key,content_type,content_value,description,updated_at FROM page_content WHERE page_name=? ORDER BY content_key`,
		page,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []content.Record
	for rows.Next() {
		var rec content.Record
		var t, raw string
		if err := rows.Scan(&rec.ID, &rec.Page, &rec.Key, &t, &raw, &rec.Description, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		v, err := content.Decode(content.Type(t), raw)
		if err != nil {
			return nil, fmt.Errorf("content %s/%s: %w", rec.Page, rec.Key, err)
		}
		rec.Value = v
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *ContentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.st.db.ExecContext(ctx, `DELETE FROM page_content WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return content.ErrNotFound
	}
	return nil
}
