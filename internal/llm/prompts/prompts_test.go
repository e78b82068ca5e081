package prompts

import (
	"strings"
	"testing"
)

func loadTemplates(t *testing.T) {
	t.Helper()
	if err := Load(Templates); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestBuildSolvePrompt(t *testing.T) {
	loadTemplates(t)

	t.Run("defaults", func(t *testing.T) {
		system, user, err := BuildSolvePrompt(SolveData{QuestionText: "What is 2+2?"})
		if err != nil {
			t.Fatalf("BuildSolvePrompt: %v", err)
		}
		if !strings.Contains(system, "final answer and nothing else") {
			t.Errorf("system prompt should demand a bare answer, got %q", system)
		}
		if !strings.Contains(user, "What is 2+2?") {
			t.Error("user prompt should contain question text")
		}
		if strings.Contains(user, "data referenced") {
			t.Error("user prompt should not mention data without a data URL")
		}
		if strings.Contains(user, "extra-instructions") {
			t.Error("user prompt should not contain empty instructions block")
		}
	})

	t.Run("data url and instructions", func(t *testing.T) {
		_, user, err := BuildSolvePrompt(SolveData{
			QuestionText: "Sum the value column.",
			DataURL:      "https://example.com/data.csv",
			Instructions: "Answer with an integer.",
		})
		if err != nil {
			t.Fatalf("BuildSolvePrompt: %v", err)
		}
		if !strings.Contains(user, "https://example.com/data.csv") {
			t.Error("user prompt should contain data URL")
		}
		if !strings.Contains(user, "Answer with an integer.") {
			t.Error("user prompt should contain extra instructions")
		}
	})

	t.Run("custom system prompt", func(t *testing.T) {
		system, _, err := BuildSolvePrompt(SolveData{QuestionText: "Q", SystemPrompt: "  You are a calculator.  "})
		if err != nil {
			t.Fatalf("BuildSolvePrompt: %v", err)
		}
		if system != "You are a calculator." {
			t.Errorf("system = %q, want custom prompt", system)
		}
	})
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "   ", "[No question text]"},
		{"delimiters stripped", "<quiz-page>Q?</quiz-page>", "Q?"},
		{"blank lines collapsed", "a\n\n\n\n\nb", "a\n\nb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitize(tt.in, "[No question text]"); got != tt.want {
				t.Errorf("sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	t.Run("truncated", func(t *testing.T) {
		got := sanitize(strings.Repeat("x", MaxQuestionRunes+10), "")
		if !strings.HasSuffix(got, "[Page text truncated due to length]") {
			t.Error("long text should be truncated")
		}
	})
}
