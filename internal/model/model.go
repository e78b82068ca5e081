package model

import (
	"encoding/json"
	"time"
)

// LogLevel is the severity of a quiz log record.
type LogLevel string

const (
	// LevelInfo marks a progress milestone.
	LevelInfo LogLevel = "info"
	// LevelError marks a failure or an incorrect answer.
	LevelError LogLevel = "error"
	// LevelDebug marks diagnostic detail.
	LevelDebug LogLevel = "debug"
)

// Valid reports whether l is one of the known levels.
func (l LogLevel) Valid() bool {
	switch l {
	case LevelInfo, LevelError, LevelDebug:
		return true
	}
	return false
}

// StudentConfig is the per-email configuration record. The core only reads it.
type StudentConfig struct {
	Email        string    `json:"email"`
	Secret       string    `json:"-"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	UserPrompt   string    `json:"user_prompt,omitempty"`
	APIEndpoint  string    `json:"api_endpoint,omitempty"`
	GithubRepo   string    `json:"github_repo,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// QuizRequest is the inbound request that starts a chain.
type QuizRequest struct {
	Email  string `json:"email"`
	Secret string `json:"secret"`
	URL    string `json:"url"`
}

// Missing returns the names of required fields that are empty.
func (r QuizRequest) Missing() []string {
	var missing []string
	if r.Email == "" {
		missing = append(missing, "email")
	}
	if r.Secret == "" {
		missing = append(missing, "secret")
	}
	if r.URL == "" {
		missing = append(missing, "url")
	}
	return missing
}

// Answer is a derived answer: a string, json.Number, bool, map[string]any or []any.
type Answer = any

// Attempt is the durable record of one completed round.
type Attempt struct {
	ID         string          `json:"id"`
	ChainID    string          `json:"chain_id"`
	Round      int             `json:"round"`
	Email      string          `json:"email"`
	QuizURL    string          `json:"quiz_url"`
	Question   string          `json:"question"`
	Answer     Answer          `json:"answer"`
	Correct    *bool           `json:"correct"`
	Response   json.RawMessage `json:"response,omitempty"`
	DurationMS int64           `json:"duration_ms"`
	CreatedAt  time.Time       `json:"created_at"`
}

// LogEntry is one record in the quiz log stream.
type LogEntry struct {
	ID        string         `json:"id"`
	Email     string         `json:"email"`
	QuizURL   string         `json:"quiz_url"`
	Level     LogLevel       `json:"level"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// GradingResult is the grader's verdict on a submission.
type GradingResult struct {
	Correct    *bool           `json:"correct"`
	NextURL    string          `json:"url,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	StatusCode int             `json:"-"`
	Raw        json.RawMessage `json:"-"`
}

// ServeConfig holds server-wide settings for the HTTP layer.
type ServeConfig struct {
	AllowedOrigins []string
	RateLimit      int
	RateWindow     time.Duration
	AdminUser      string
	AdminPassword  string
	DefaultLang    string
}
