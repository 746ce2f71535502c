// Package postgres provides a PostgreSQL-backed [script.Repository].
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrWong99/recita/pkg/script"
)

// Schema is the SQL DDL for the practice_scripts table. Execute it via
// [Store.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS practice_scripts (
    id         BIGSERIAL PRIMARY KEY,
    content    TEXT NOT NULL,
    level      TEXT NOT NULL DEFAULT '2',
    enabled    BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_practice_scripts_content ON practice_scripts(content);
`

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is a [script.Repository] backed by PostgreSQL.
type Store struct {
	db DB
}

var _ script.Repository = (*Store)(nil)

// New creates a [Store] on db. The caller is responsible for calling
// [Store.Migrate] before the first List.
func New(db DB) *Store {
	return &Store{db: db}
}

// Open connects to dsn with a single pgx connection.
func Open(ctx context.Context, dsn string) (*Store, func(context.Context) error, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: connect: %w", err)
	}
	return New(conn), conn.Close, nil
}

// Migrate executes [Schema].
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

// List implements [script.Repository.List]. Disabled scripts are excluded.
func (s *Store) List(ctx context.Context) ([]script.Script, error) {
	const query = `SELECT content, level FROM practice_scripts WHERE enabled ORDER BY id`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list scripts: %w", err)
	}
	defer rows.Close()

	var out []script.Script
	for rows.Next() {
		var sc script.Script
		var level string
		if err := rows.Scan(&sc.Content, &level); err != nil {
			return nil, fmt.Errorf("postgres: scan script: %w", err)
		}
		sc.Level = script.Level(level)
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate scripts: %w", err)
	}
	return out, nil
}

// Insert adds scripts, skipping any whose content already exists. It returns
// the number of rows inserted.
func (s *Store) Insert(ctx context.Context, scripts ...script.Script) (int, error) {
	const query = `
		INSERT INTO practice_scripts (content, level) VALUES ($1, $2)
		ON CONFLICT (content) DO NOTHING`

	n := 0
	for i, sc := range scripts {
		if err := sc.Validate(); err != nil {
			return n, fmt.Errorf("postgres: script %d: %w", i, err)
		}
		tag, err := s.db.Exec(ctx, query, sc.Content, string(sc.Level))
		if err != nil {
			return n, fmt.Errorf("postgres: insert script %d: %w", i, err)
		}
		n += int(tag.RowsAffected())
	}
	return n, nil
}
