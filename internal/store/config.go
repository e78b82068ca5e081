package store

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/pavelanni/quizsolver/internal/model"
)

// UpsertConfig inserts or replaces the configuration record for cfg.Email.
func (s *Store) UpsertConfig(ctx context.Context, cfg model.StudentConfig) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO student_config (email, secret, system_prompt, user_prompt, api_endpoint, github_repo, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(email) DO UPDATE SET
		   secret = excluded.secret,
		   system_prompt = excluded.system_prompt,
		   user_prompt = excluded.user_prompt,
		   api_endpoint = excluded.api_endpoint,
		   github_repo = excluded.github_repo,
		   updated_at = excluded.updated_at`,
		cfg.Email, cfg.Secret, cfg.SystemPrompt, cfg.UserPrompt, cfg.APIEndpoint, cfg.GithubRepo, now,
	)
	if err != nil {
		slog.Error("failed to upsert config", "email", cfg.Email, "error", err)
		return err
	}
	slog.Info("saved config", "email", cfg.Email)
	return nil
}

// GetConfig returns the configuration record for email, or nil if there is none.
func (s *Store) GetConfig(ctx context.Context, email string) (*model.StudentConfig, error) {
	var c model.StudentConfig
	err := s.db.QueryRowContext(ctx,
		`SELECT email, secret, system_prompt, user_prompt, api_endpoint, github_repo, updated_at
		 FROM student_config WHERE email = ?`, email,
	).Scan(&c.Email, &c.Secret, &c.SystemPrompt, &c.UserPrompt, &c.APIEndpoint, &c.GithubRepo, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
