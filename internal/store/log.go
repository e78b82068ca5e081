package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/quizsolver/internal/model"
)

// InsertLog appends a quiz log record.
func (s *Store) InsertLog(ctx context.Context, e *model.LogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	meta, err := EncodeMetadata(e.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO quiz_logs (id, email, quiz_url, level, message, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Email, e.QuizURL, e.Level, e.Message, meta, e.CreatedAt,
	)
	return err
}

// ListLogs returns log records newest first. An empty email lists all emails.
func (s *Store) ListLogs(ctx context.Context, email string, limit int) ([]model.LogEntry, error) {
	query := `SELECT id, email, quiz_url, level, message, metadata, created_at FROM quiz_logs`
	var args []any
	if email != "" {
		query += ` WHERE email = ?`
		args = append(args, email)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, listLimit(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []model.LogEntry
	for rows.Next() {
		var (
			e    model.LogEntry
			meta string
		)
		if err := rows.Scan(&e.ID, &e.Email, &e.QuizURL, &e.Level, &e.Message, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		if e.Metadata, err = DecodeMetadata([]byte(meta)); err != nil {
			return nil, fmt.Errorf("decode metadata of log %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// EncodeMetadata serializes log metadata. Values that cannot be encoded as JSON are an error.
func EncodeMetadata(meta map[string]any) (string, error) {
	if len(meta) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(data), nil
}

// DecodeMetadata is the inverse of EncodeMetadata.
func DecodeMetadata(data []byte) (map[string]any, error) {
	v, err := DecodeAnswer(data)
	if err != nil {
		return nil, err
	}
	m, _ := v.(map[string]any)
	return m, nil
}
