// Package store is the document-store persistence layer: one row per
// event, keyed by id, upserted on every non-final transition and deleted
// on finalize.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/semyonkozlov/teave-eventmanager/internal/event"
)

//go:embed schema.sql
var schemaSQL string

// Store is a SQLite-backed document store for events.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at path, applies the required
// pragmas, and creates the schema if absent. Idempotent.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, and the manager is
	// itself single-writer, so there is never a reason to pool.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("exec %q: %w", p, err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Upsert writes e's current snapshot, replacing any prior document for
// the same id.
func (s *Store) Upsert(ctx context.Context, e *event.Event) error {
	document, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", e.ID, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (id, state, document, updated_at)
		 VALUES (?, ?, ?, unixepoch())
		 ON CONFLICT(id) DO UPDATE SET
		   state = excluded.state,
		   document = excluded.document,
		   updated_at = excluded.updated_at`,
		e.ID, string(e.State), document,
	)
	if err != nil {
		return fmt.Errorf("upsert event %s: %w", e.ID, err)
	}
	return nil
}

// Delete removes the document for id, if any.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	return nil
}

// FetchAll returns every stored event, for recovery at process start.
func (s *Store) FetchAll(ctx context.Context) ([]*event.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT document FROM events`)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []*event.Event
	for rows.Next() {
		var document []byte
		if err := rows.Scan(&document); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		var e event.Event
		if err := json.Unmarshal(document, &e); err != nil {
			return nil, fmt.Errorf("unmarshal event document: %w", err)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return out, nil
}
