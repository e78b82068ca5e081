// Package postgres is the PostgreSQL record store, selected with a postgres:// database URL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/pavelanni/quizsolver/internal/model"
	"github.com/pavelanni/quizsolver/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS student_config (
	email TEXT PRIMARY KEY,
	secret TEXT NOT NULL,
	system_prompt TEXT NOT NULL DEFAULT '',
	user_prompt TEXT NOT NULL DEFAULT '',
	api_endpoint TEXT NOT NULL DEFAULT '',
	github_repo TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS quiz_attempts (
	id UUID PRIMARY KEY,
	seq BIGSERIAL,
	chain_id TEXT NOT NULL DEFAULT '',
	round INTEGER NOT NULL DEFAULT 1,
	email TEXT NOT NULL,
	quiz_url TEXT NOT NULL,
	question TEXT NOT NULL DEFAULT '',
	answer JSONB NOT NULL DEFAULT 'null',
	correct BOOLEAN,
	response JSONB,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	attempt_time TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_quiz_attempts_email ON quiz_attempts (email, attempt_time);

CREATE TABLE IF NOT EXISTS quiz_logs (
	id UUID PRIMARY KEY,
	seq BIGSERIAL,
	email TEXT NOT NULL,
	quiz_url TEXT NOT NULL DEFAULT '',
	level TEXT NOT NULL,
	message TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_quiz_logs_email ON quiz_logs (email, created_at);
`

type Storage struct {
	pool *pgxpool.Pool
}

var _ store.Backend = (*Storage)(nil)

func NewStorage(ctx context.Context, dsn string) (*Storage, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	s := &Storage{pool: pool}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Storage) GetConfig(ctx context.Context, email string) (*model.StudentConfig, error) {
	query := `
	SELECT email, secret, system_prompt, user_prompt, api_endpoint, github_repo, updated_at
	FROM student_config WHERE email = $1
	`
	var c model.StudentConfig
	err := s.pool.QueryRow(ctx, query, email).Scan(
		&c.Email, &c.Secret, &c.SystemPrompt, &c.UserPrompt, &c.APIEndpoint, &c.GithubRepo, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Storage) UpsertConfig(ctx context.Context, cfg model.StudentConfig) error {
	query := `
	INSERT INTO student_config (email, secret, system_prompt, user_prompt, api_endpoint, github_repo, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (email) DO UPDATE SET
		secret = EXCLUDED.secret,
		system_prompt = EXCLUDED.system_prompt,
		user_prompt = EXCLUDED.user_prompt,
		api_endpoint = EXCLUDED.api_endpoint,
		github_repo = EXCLUDED.github_repo,
		updated_at = EXCLUDED.updated_at
	`
	_, err := s.pool.Exec(ctx, query,
		cfg.Email, cfg.Secret, cfg.SystemPrompt, cfg.UserPrompt, cfg.APIEndpoint, cfg.GithubRepo, time.Now().UTC())
	return err
}

func (s *Storage) InsertAttempt(ctx context.Context, a *model.Attempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	answer, err := json.Marshal(a.Answer)
	if err != nil {
		return fmt.Errorf("encode answer: %w", err)
	}
	var response *string
	if len(a.Response) > 0 {
		r := string(a.Response)
		response = &r
	}
	query := `
	INSERT INTO quiz_attempts (id, chain_id, round, email, quiz_url, question, answer, correct, response, duration_ms, attempt_time)
	VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9::jsonb, $10, $11)
	`
	_, err = s.pool.Exec(ctx, query,
		a.ID, a.ChainID, a.Round, a.Email, a.QuizURL, a.Question, string(answer), a.Correct, response, a.DurationMS, a.CreatedAt)
	return err
}

func (s *Storage) ListAttempts(ctx context.Context, email string, limit int) ([]model.Attempt, error) {
	query := `
	SELECT id::text, chain_id, round, email, quiz_url, question, answer::text, correct, response::text, duration_ms, attempt_time
	FROM quiz_attempts
	WHERE ($1::text = '' OR email = $1::text)
	ORDER BY attempt_time DESC, seq DESC
	LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, email, limitOrDefault(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		var (
			a        model.Attempt
			answer   string
			correct  sql.NullBool
			response sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.ChainID, &a.Round, &a.Email, &a.QuizURL, &a.Question,
			&answer, &correct, &response, &a.DurationMS, &a.CreatedAt); err != nil {
			return nil, err
		}
		if a.Answer, err = store.DecodeAnswer([]byte(answer)); err != nil {
			return nil, fmt.Errorf("decode answer of attempt %s: %w", a.ID, err)
		}
		if correct.Valid {
			a.Correct = &correct.Bool
		}
		if response.Valid {
			a.Response = json.RawMessage(response.String)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func (s *Storage) InsertLog(ctx context.Context, e *model.LogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	meta, err := store.EncodeMetadata(e.Metadata)
	if err != nil {
		return err
	}
	query := `
	INSERT INTO quiz_logs (id, email, quiz_url, level, message, metadata, created_at)
	VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)
	`
	_, err = s.pool.Exec(ctx, query, e.ID, e.Email, e.QuizURL, string(e.Level), e.Message, meta, e.CreatedAt)
	return err
}

func (s *Storage) ListLogs(ctx context.Context, email string, limit int) ([]model.LogEntry, error) {
	query := `
	SELECT id::text, email, quiz_url, level, message, metadata::text, created_at
	FROM quiz_logs
	WHERE ($1::text = '' OR email = $1::text)
	ORDER BY created_at DESC, seq DESC
	LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, email, limitOrDefault(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.LogEntry
	for rows.Next() {
		var (
			e     model.LogEntry
			level string
			meta  string
		)
		if err := rows.Scan(&e.ID, &e.Email, &e.QuizURL, &level, &e.Message, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Level = model.LogLevel(level)
		if e.Metadata, err = store.DecodeMetadata([]byte(meta)); err != nil {
			return nil, fmt.Errorf("decode metadata of log %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return store.DefaultListLimit
	}
	return limit
}
