// Package repository provides data access for the session journal.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agent-sandbox/smux/internal/model"
)

// JournalEntry is one row of the session journal: a session created
// through smux, from creation until it was observed killed.
type JournalEntry struct {
	ID          string
	Name        string
	Command     string
	LogFilePath string
	CreatedAt   time.Time
	KilledAt    *time.Time
}

// Journal records session lifecycle metadata. It is strictly an
// enrichment store for the observation API: allocation and existence
// decisions always query the multiplexer, never this table.
type Journal struct {
	db *sql.DB
}

// NewJournal creates a Journal over the given database.
func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// RecordCreated inserts a journal row for a newly created session and
// returns its generated id.
func (j *Journal) RecordCreated(ctx context.Context, name, command, logFilePath string) (string, error) {
	id := uuid.New().String()

	query := `
		INSERT INTO session_journal (id, name, command, log_file_path, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := j.db.ExecContext(ctx, query, id, name, command, logFilePath, time.Now())
	if err != nil {
		return "", fmt.Errorf("failed to record session %q: %w", name, err)
	}

	return id, nil
}

// RecordKilled closes out the newest open journal row for the named
// session. A name with no open row is not an error: sessions created
// outside smux have no journal entry.
func (j *Journal) RecordKilled(ctx context.Context, name string) error {
	query := `
		UPDATE session_journal
		SET killed_at = ?
		WHERE id = (
			SELECT id FROM session_journal
			WHERE name = ? AND killed_at IS NULL
			ORDER BY created_at DESC
			LIMIT 1
		)
	`
	if _, err := j.db.ExecContext(ctx, query, time.Now(), name); err != nil {
		return fmt.Errorf("failed to record kill of %q: %w", name, err)
	}
	return nil
}

// Current returns the newest open journal row for the named session.
func (j *Journal) Current(ctx context.Context, name string) (*JournalEntry, error) {
	query := `
		SELECT id, name, command, log_file_path, created_at, killed_at
		FROM session_journal
		WHERE name = ? AND killed_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`
	entry, err := j.scanOne(j.db.QueryRowContext(ctx, query, name))
	if err == sql.ErrNoRows {
		return nil, model.ErrSessionNotFound
	}
	return entry, err
}

// Open returns all open journal rows, newest first.
func (j *Journal) Open(ctx context.Context) ([]*JournalEntry, error) {
	query := `
		SELECT id, name, command, log_file_path, created_at, killed_at
		FROM session_journal
		WHERE killed_at IS NULL
		ORDER BY created_at DESC
	`
	rows, err := j.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list open journal rows: %w", err)
	}
	defer rows.Close()

	var entries []*JournalEntry
	for rows.Next() {
		entry, err := j.scanOne(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal rows: %w", err)
	}

	return entries, nil
}

// History returns every journal row for a name, newest first. Names from
// the phonetic pool recycle, so this is the full lineage of "alpha", not
// one session.
func (j *Journal) History(ctx context.Context, name string) ([]*JournalEntry, error) {
	query := `
		SELECT id, name, command, log_file_path, created_at, killed_at
		FROM session_journal
		WHERE name = ?
		ORDER BY created_at DESC
	`
	rows, err := j.db.QueryContext(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal history: %w", err)
	}
	defer rows.Close()

	var entries []*JournalEntry
	for rows.Next() {
		entry, err := j.scanOne(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal rows: %w", err)
	}

	return entries, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (j *Journal) scanOne(row scanner) (*JournalEntry, error) {
	entry := &JournalEntry{}
	var logPath sql.NullString
	var killedAt sql.NullTime

	err := row.Scan(
		&entry.ID,
		&entry.Name,
		&entry.Command,
		&logPath,
		&entry.CreatedAt,
		&killedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan journal row: %w", err)
	}

	if logPath.Valid {
		entry.LogFilePath = logPath.String
	}
	if killedAt.Valid {
		t := killedAt.Time
		entry.KilledAt = &t
	}

	return entry, nil
}
