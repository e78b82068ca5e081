package postgres

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/quizsolver/internal/model"
)

// Runs against a live server only when QUIZSOLVER_TEST_DATABASE_URL is set.
func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	dsn := os.Getenv("QUIZSOLVER_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("QUIZSOLVER_TEST_DATABASE_URL not set")
	}
	s, err := NewStorage(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStorageRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	email := "pg-" + uuid.NewString() + "@example.com"

	cfg, err := s.GetConfig(ctx, email)
	require.NoError(t, err)
	assert.Nil(t, cfg)

	require.NoError(t, s.UpsertConfig(ctx, model.StudentConfig{Email: email, Secret: "s"}))
	cfg, err = s.GetConfig(ctx, email)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "s", cfg.Secret)

	correct := false
	require.NoError(t, s.InsertAttempt(ctx, &model.Attempt{
		Email:    email,
		QuizURL:  "https://q/1",
		Answer:   map[string]any{"total": json.Number("12")},
		Correct:  &correct,
		Response: json.RawMessage(`{"correct":false}`),
	}))
	attempts, err := s.ListAttempts(ctx, email, 10)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	require.NotNil(t, attempts[0].Correct)
	assert.False(t, *attempts[0].Correct)
	assert.Equal(t, map[string]any{"total": json.Number("12")}, attempts[0].Answer)

	require.NoError(t, s.InsertLog(ctx, &model.LogEntry{
		Email: email, Level: model.LevelInfo, Message: "hello", Metadata: map[string]any{"k": "v"},
	}))
	logs, err := s.ListLogs(ctx, email, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "v", logs[0].Metadata["k"])
}
