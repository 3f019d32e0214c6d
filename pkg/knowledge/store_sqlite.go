package knowledge

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = &SQLiteStore{}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, errors.New("sqlite knowledge store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS knowledge_entries (
	  id TEXT PRIMARY KEY,
	  question TEXT NOT NULL,
	  answer TEXT NOT NULL,
	  created_at_ms INTEGER NOT NULL,
	  updated_at_ms INTEGER NOT NULL
	);`)
	return errors.Wrap(err, "sqlite knowledge store: migrate")
}

func (s *SQLiteStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, question, answer, created_at_ms, updated_at_ms
		FROM knowledge_entries
		ORDER BY created_at_ms ASC, rowid ASC
	`)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite knowledge store: list")
	}
	defer func() { _ = rows.Close() }()
	var out []Entry
	for rows.Next() {
		var (
			e         Entry
			createdMs int64
			updatedMs int64
		)
		if err := rows.Scan(&e.ID, &e.Question, &e.Answer, &createdMs, &updatedMs); err != nil {
			return nil, errors.Wrap(err, "sqlite knowledge store: scan")
		}
		e.CreatedAt = time.UnixMilli(createdMs)
		e.UpdatedAt = time.UnixMilli(updatedMs)
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "sqlite knowledge store: rows")
}

func (s *SQLiteStore) Add(ctx context.Context, question, answer string) (Entry, error) {
	q, a, err := validate(question, answer)
	if err != nil {
		return Entry{}, err
	}
	now := time.Now()
	e := Entry{ID: uuid.NewString(), Question: q, Answer: a, CreatedAt: now, UpdatedAt: now}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO knowledge_entries (id, question, answer, created_at_ms, updated_at_ms)
		VALUES (?, ?, ?, ?, ?)
	`, e.ID, e.Question, e.Answer, now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return Entry{}, errors.Wrap(err, "sqlite knowledge store: insert")
	}
	return e, nil
}

func (s *SQLiteStore) Update(ctx context.Context, id, question, answer string) (Entry, error) {
	q, a, err := validate(question, answer)
	if err != nil {
		return Entry{}, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE knowledge_entries SET question = ?, answer = ?, updated_at_ms = ? WHERE id = ?
	`, q, a, time.Now().UnixMilli(), id)
	if err != nil {
		return Entry{}, errors.Wrap(err, "sqlite knowledge store: update")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Entry{}, errors.Wrap(ErrEntryNotFound, id)
	}
	var (
		e         Entry
		createdMs int64
		updatedMs int64
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT id, question, answer, created_at_ms, updated_at_ms FROM knowledge_entries WHERE id = ?
	`, id).Scan(&e.ID, &e.Question, &e.Answer, &createdMs, &updatedMs)
	if err != nil {
		return Entry{}, errors.Wrap(err, "sqlite knowledge store: reload")
	}
	e.CreatedAt = time.UnixMilli(createdMs)
	e.UpdatedAt = time.UnixMilli(updatedMs)
	return e, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM knowledge_entries WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "sqlite knowledge store: delete")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrap(ErrEntryNotFound, id)
	}
	return nil
}
