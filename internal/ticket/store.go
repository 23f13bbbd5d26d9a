package ticket

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS tickets (
	id            TEXT PRIMARY KEY,
	user_email    TEXT NOT NULL,
	subject       TEXT NOT NULL,
	description   TEXT NOT NULL,
	priority      TEXT NOT NULL,
	status        TEXT NOT NULL,
	pinned        INTEGER NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL,
	messages_json TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_tickets_updated ON tickets (updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_tickets_user ON tickets (user_email);
`

const selectColumns = `id, user_email, subject, description, priority, status, pinned, created_at, updated_at, messages_json`

// Store persists tickets in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides time.Now for timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// Open opens (creating if needed) the ticket database at path.
func Open(path string, opts ...StoreOption) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("ticket: storage path is required")
	}
	clean := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(clean), 0o755); err != nil {
		return nil, fmt.Errorf("ticket: creating storage dir: %w", err)
	}

	dsn := clean + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ticket: open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ticket: ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ticket: apply schema: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) stamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// Create validates n and stores a new open ticket.
func (s *Store) Create(ctx context.Context, n NewTicket) (Ticket, error) {
	if err := n.Validate(); err != nil {
		return Ticket{}, err
	}
	now := s.stamp()
	t := Ticket{
		ID:          uuid.NewString(),
		User:        strings.TrimSpace(n.User),
		Subject:     strings.TrimSpace(n.Subject),
		Description: strings.TrimSpace(n.Description),
		Priority:    n.Priority,
		Status:      StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
		Messages:    []Message{},
	}
	msgs, err := json.Marshal(t.Messages)
	if err != nil {
		return Ticket{}, fmt.Errorf("ticket: encoding messages: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tickets (`+selectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.User, t.Subject, t.Description, string(t.Priority), string(t.Status),
		0, t.CreatedAt.UnixMilli(), t.UpdatedAt.UnixMilli(), string(msgs),
	)
	if err != nil {
		return Ticket{}, fmt.Errorf("ticket: insert: %w", err)
	}
	return t, nil
}

// Get loads one ticket.
func (s *Store) Get(ctx context.Context, id string) (Ticket, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM tickets WHERE id = ?`, id)
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Ticket{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Ticket{}, fmt.Errorf("ticket: get %s: %w", id, err)
	}
	return t, nil
}

// List returns every ticket, newest update first.
func (s *Store) List(ctx context.Context) ([]Ticket, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM tickets ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("ticket: list: %w", err)
	}
	defer rows.Close()

	var out []Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("ticket: list: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ticket: list: %w", err)
	}
	return out, nil
}

// Update applies u and bumps UpdatedAt. Closing a ticket unpins it.
func (s *Store) Update(ctx context.Context, id string, u Update) (Ticket, error) {
	return s.modify(ctx, id, func(t *Ticket) error {
		if u.Priority != nil {
			if u.Priority.rank() == 0 {
				return fmt.Errorf("%w: unknown priority %q", ErrInvalid, *u.Priority)
			}
			t.Priority = *u.Priority
		}
		if u.Status != nil {
			if _, ok := userStatusOrder[*u.Status]; !ok {
				return fmt.Errorf("%w: unknown status %q", ErrInvalid, *u.Status)
			}
			t.Status = *u.Status
			if t.Closed() {
				t.Pinned = false
			}
		}
		t.UpdatedAt = s.stamp()
		return nil
	})
}

// TogglePin flips the pinned flag. UpdatedAt is unchanged.
func (s *Store) TogglePin(ctx context.Context, id string) (Ticket, error) {
	return s.modify(ctx, id, func(t *Ticket) error {
		if !t.Pinned && t.Closed() {
			return ErrPinClosed
		}
		t.Pinned = !t.Pinned
		return nil
	})
}

// AddMessage appends a message and bumps UpdatedAt.
func (s *Store) AddMessage(ctx context.Context, id, sender, text string) (Ticket, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Ticket{}, fmt.Errorf("%w: message text is required", ErrInvalid)
	}
	return s.modify(ctx, id, func(t *Ticket) error {
		now := s.stamp()
		t.Messages = append(t.Messages, Message{Sender: sender, Text: text, Timestamp: now})
		t.UpdatedAt = now
		return nil
	})
}

// modify loads id, applies fn, and writes the result in one transaction.
func (s *Store) modify(ctx context.Context, id string, fn func(*Ticket) error) (Ticket, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Ticket{}, fmt.Errorf("ticket: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	t, err := scanTicket(tx.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM tickets WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Ticket{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Ticket{}, fmt.Errorf("ticket: load %s: %w", id, err)
	}
	if err := fn(&t); err != nil {
		return Ticket{}, err
	}

	msgs, err := json.Marshal(t.Messages)
	if err != nil {
		return Ticket{}, fmt.Errorf("ticket: encoding messages: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE tickets SET priority = ?, status = ?, pinned = ?, updated_at = ?, messages_json = ? WHERE id = ?`,
		string(t.Priority), string(t.Status), boolToInt(t.Pinned), t.UpdatedAt.UnixMilli(), string(msgs), t.ID,
	)
	if err != nil {
		return Ticket{}, fmt.Errorf("ticket: update %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return Ticket{}, fmt.Errorf("ticket: commit: %w", err)
	}
	return t, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTicket(row scanner) (Ticket, error) {
	var t Ticket
	var priority, status, messagesJSON string
	var pinned, created, updated int64
	if err := row.Scan(&t.ID, &t.User, &t.Subject, &t.Description, &priority, &status,
		&pinned, &created, &updated, &messagesJSON); err != nil {
		return Ticket{}, err
	}
	t.Priority = Priority(priority)
	t.Status = Status(status)
	t.Pinned = pinned != 0
	t.CreatedAt = time.UnixMilli(created).UTC()
	t.UpdatedAt = time.UnixMilli(updated).UTC()
	if err := json.Unmarshal([]byte(messagesJSON), &t.Messages); err != nil {
		return Ticket{}, fmt.Errorf("decoding messages: %w", err)
	}
	if t.Messages == nil {
		t.Messages = []Message{}
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
