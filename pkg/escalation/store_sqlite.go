package escalation

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = &SQLiteStore{}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, errors.New("sqlite ticket store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db, now: time.Now}
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
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS escalation_tickets (
		  id TEXT PRIMARY KEY,
		  question TEXT NOT NULL,
		  call_sid TEXT NOT NULL DEFAULT '',
		  status TEXT NOT NULL DEFAULT 'pending',
		  answer TEXT NOT NULL DEFAULT '',
		  created_at_ms INTEGER NOT NULL,
		  updated_at_ms INTEGER NOT NULL,
		  resolved_at_ms INTEGER
		);`,
		`CREATE INDEX IF NOT EXISTS escalation_tickets_by_status
		  ON escalation_tickets(status, created_at_ms DESC);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite ticket store: migrate")
		}
	}
	return nil
}

func (s *SQLiteStore) Create(ctx context.Context, question, callSid string) (Ticket, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Ticket{}, errors.New("sqlite ticket store: empty question")
	}
	now := s.now()
	t := Ticket{
		ID:        uuid.NewString(),
		Question:  question,
		CallSid:   callSid,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO escalation_tickets (id, question, call_sid, status, created_at_ms, updated_at_ms)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.ID, t.Question, t.CallSid, string(t.Status), now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return Ticket{}, errors.Wrap(err, "sqlite ticket store: insert")
	}
	return t, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (Ticket, error) {
	var (
		t          Ticket
		status     string
		createdMs  int64
		updMs      int64
		resolvedMs sql.NullInt64
	)
	if err := row.Scan(&t.ID, &t.Question, &t.CallSid, &status, &t.Answer, &createdMs, &updMs, &resolvedMs); err != nil {
		return Ticket{}, err
	}
	t.Status = Status(status)
	t.CreatedAt = time.UnixMilli(createdMs)
	t.UpdatedAt = time.UnixMilli(updMs)
	if resolvedMs.Valid {
		ra := time.UnixMilli(resolvedMs.Int64)
		t.ResolvedAt = &ra
	}
	return t, nil
}

const ticketColumns = `id, question, call_sid, status, answer, created_at_ms, updated_at_ms, resolved_at_ms`

func (s *SQLiteStore) Get(ctx context.Context, id string) (Ticket, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM escalation_tickets WHERE id = ?`, id)
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Ticket{}, errors.Wrap(ErrTicketNotFound, id)
	}
	if err != nil {
		return Ticket{}, errors.Wrap(err, "sqlite ticket store: get")
	}
	return t, nil
}

func (s *SQLiteStore) Resolve(ctx context.Context, id, answer string) (Ticket, error) {
	now := s.now().UnixMilli()
	res, err := s.db.ExecContext(ctx, `
		UPDATE escalation_tickets
		SET status = ?, answer = ?, updated_at_ms = ?, resolved_at_ms = ?
		WHERE id = ?
	`, string(StatusResolved), answer, now, now, id)
	if err != nil {
		return Ticket{}, errors.Wrap(err, "sqlite ticket store: resolve")
	}
	if err := requireAffected(res, id); err != nil {
		return Ticket{}, err
	}
	return s.Get(ctx, id)
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE escalation_tickets SET status = ?, updated_at_ms = ? WHERE id = ?
	`, string(status), s.now().UnixMilli(), id)
	if err != nil {
		return errors.Wrap(err, "sqlite ticket store: update status")
	}
	return requireAffected(res, id)
}

func (s *SQLiteStore) MarkUnresolved(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE escalation_tickets SET status = ?, updated_at_ms = ?
		WHERE id = ? AND status = ?
	`, string(StatusUnresolved), s.now().UnixMilli(), id, string(StatusPending))
	if err != nil {
		return false, errors.Wrap(err, "sqlite ticket store: mark unresolved")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "sqlite ticket store: rows affected")
	}
	if n > 0 {
		return true, nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM escalation_tickets WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "sqlite ticket store: delete")
	}
	return requireAffected(res, id)
}

func (s *SQLiteStore) List(ctx context.Context, status Status) ([]Ticket, error) {
	q := `SELECT ` + ticketColumns + ` FROM escalation_tickets`
	var args []any
	if status != "" {
		q += ` WHERE status = ?`
		args = append(args, string(status))
	}
	q += ` ORDER BY created_at_ms DESC, id ASC`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite ticket store: list")
	}
	defer func() { _ = rows.Close() }()
	var out []Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, errors.Wrap(err, "sqlite ticket store: scan")
		}
		out = append(out, t)
	}
	return out, errors.Wrap(rows.Err(), "sqlite ticket store: rows")
}

func requireAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "sqlite ticket store: rows affected")
	}
	if n == 0 {
		return errors.Wrap(ErrTicketNotFound, id)
	}
	return nil
}
