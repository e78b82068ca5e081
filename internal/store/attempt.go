package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/quizsolver/internal/model"
)

// InsertAttempt appends an attempt record. ID and CreatedAt are filled in when empty.
func (s *Store) InsertAttempt(ctx context.Context, a *model.Attempt) error {
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
	var response sql.NullString
	if len(a.Response) > 0 {
		response = sql.NullString{String: string(a.Response), Valid: true}
	}
	var correct sql.NullBool
	if a.Correct != nil {
		correct = sql.NullBool{Bool: *a.Correct, Valid: true}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO quiz_attempts (id, chain_id, round, email, quiz_url, question, answer, correct, response, duration_ms, attempt_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ChainID, a.Round, a.Email, a.QuizURL, a.Question, string(answer), correct, response, a.DurationMS, a.CreatedAt,
	)
	return err
}

// ListAttempts returns attempts newest first. An empty email lists all emails.
func (s *Store) ListAttempts(ctx context.Context, email string, limit int) ([]model.Attempt, error) {
	query := `SELECT id, chain_id, round, email, quiz_url, question, answer, correct, response, duration_ms, attempt_time
		FROM quiz_attempts`
	var args []any
	if email != "" {
		query += ` WHERE email = ?`
		args = append(args, email)
	}
	query += ` ORDER BY attempt_time DESC, rowid DESC LIMIT ?`
	args = append(args, listLimit(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
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
		if a.Answer, err = DecodeAnswer([]byte(answer)); err != nil {
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

// DecodeAnswer turns a stored JSON answer back into a value, keeping numbers as json.Number.
func DecodeAnswer(data []byte) (model.Answer, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
