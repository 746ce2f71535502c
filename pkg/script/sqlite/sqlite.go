// Package sqlite provides a [script.Repository] stored in a local SQLite
// file, using the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MrWong99/recita/pkg/script"

	_ "modernc.org/sqlite"
)

const ddl = `
CREATE TABLE IF NOT EXISTS practice_scripts (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  content TEXT NOT NULL UNIQUE,
  level TEXT NOT NULL DEFAULT '2',
  enabled INTEGER NOT NULL DEFAULT 1
);
`

var _ script.Repository = (*Store)(nil)

// Store is a SQLite-backed [script.Repository].
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path and ensures the
// schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	s := &Store{db: db}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create scripts table: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// List implements [script.Repository.List].
func (s *Store) List(ctx context.Context) ([]script.Script, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT content, level
FROM practice_scripts
WHERE enabled = 1
ORDER BY id;
`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list scripts: %w", err)
	}
	defer rows.Close()

	var out []script.Script
	for rows.Next() {
		var content, level string
		if err := rows.Scan(&content, &level); err != nil {
			return nil, fmt.Errorf("sqlite: scan script: %w", err)
		}
		out = append(out, script.Script{Content: content, Level: script.Level(level)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate scripts: %w", err)
	}
	return out, nil
}

// Insert adds scripts, ignoring duplicates by content. It returns the number
// of rows inserted.
func (s *Store) Insert(ctx context.Context, scripts ...script.Script) (int, error) {
	const stmt = `
INSERT INTO practice_scripts (content, level)
VALUES (?, ?)
ON CONFLICT(content) DO NOTHING;
`
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	n := 0
	for i, sc := range scripts {
		if err := sc.Validate(); err != nil {
			return 0, fmt.Errorf("sqlite: script %d: %w", i, err)
		}
		res, err := tx.ExecContext(ctx, stmt, sc.Content, string(sc.Level))
		if err != nil {
			return 0, fmt.Errorf("sqlite: insert script %d: %w", i, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("sqlite: rows affected: %w", err)
		}
		n += int(affected)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return n, nil
}

// SetEnabled toggles whether a script is offered to new sessions.
func (s *Store) SetEnabled(ctx context.Context, content string, enabled bool) error {
	v := 0
	if enabled {
		v = 1
	}
	res, err := s.db.ExecContext(ctx, `UPDATE practice_scripts SET enabled = ? WHERE content = ?;`, v, content)
	if err != nil {
		return fmt.Errorf("sqlite: update script: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlite: script %q not found", content)
	}
	return nil
}
