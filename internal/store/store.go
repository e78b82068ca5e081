package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pavelanni/quizsolver/internal/model"

	_ "modernc.org/sqlite"
)

// DefaultListLimit caps list queries when the caller passes no limit.
const DefaultListLimit = 100

// Backend is the record store used by the solver, the HTTP layer and the CLI.
// Store (SQLite) and postgres.Storage both implement it.
type Backend interface {
	GetConfig(ctx context.Context, email string) (*model.StudentConfig, error)
	UpsertConfig(ctx context.Context, cfg model.StudentConfig) error
	InsertAttempt(ctx context.Context, a *model.Attempt) error
	ListAttempts(ctx context.Context, email string, limit int) ([]model.Attempt, error)
	InsertLog(ctx context.Context, e *model.LogEntry) error
	ListLogs(ctx context.Context, email string, limit int) ([]model.LogEntry, error)
	Ping(ctx context.Context) error
	Close() error
}

type Store struct {
	db *sql.DB
}

var _ Backend = (*Store)(nil)

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer at a time; also keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS student_config (
		email TEXT PRIMARY KEY,
		secret TEXT NOT NULL,
		system_prompt TEXT NOT NULL DEFAULT '',
		user_prompt TEXT NOT NULL DEFAULT '',
		api_endpoint TEXT NOT NULL DEFAULT '',
		github_repo TEXT NOT NULL DEFAULT '',
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS quiz_attempts (
		id TEXT PRIMARY KEY,
		chain_id TEXT NOT NULL DEFAULT '',
		round INTEGER NOT NULL DEFAULT 1,
		email TEXT NOT NULL,
		quiz_url TEXT NOT NULL,
		question TEXT NOT NULL DEFAULT '',
		answer TEXT NOT NULL DEFAULT 'null',
		correct INTEGER,
		response TEXT,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		attempt_time DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_quiz_attempts_email ON quiz_attempts (email, attempt_time);

	CREATE TABLE IF NOT EXISTS quiz_logs (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		quiz_url TEXT NOT NULL DEFAULT '',
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_quiz_logs_email ON quiz_logs (email, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
