package prompts

import (
	"bytes"
	"embed"
	"errors"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"
)

// MaxQuestionRunes bounds the page text placed in a prompt.
const MaxQuestionRunes = 20000

//go:embed templates/*.txt
var Templates embed.FS

var (
	quizPageRegex    = regexp.MustCompile(`(?i)</?\s*quiz-page\b[^>]*>`)
	extraInstrRegex  = regexp.MustCompile(`(?i)</?\s*extra-instructions\b[^>]*>`)
	collapseNewlines = regexp.MustCompile(`\n{3,}`)
)

var (
	loadOnce     sync.Once
	loadErr      error
	systemPrompt string
	userTemplate *template.Template
)

// SolveData holds template data for the solve prompt.
type SolveData struct {
	QuestionText string
	DataURL      string
	// SystemPrompt replaces the built-in system message when set.
	SystemPrompt string
	// Instructions are appended to the user message when set.
	Instructions string
}

// Load loads prompt templates from fsys.
// It uses sync.Once to ensure templates are loaded only once.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		sys, err := fs.ReadFile(fsys, "templates/solve_system.txt")
		if err != nil {
			loadErr = errors.New("failed to read prompt file templates/solve_system.txt: " + err.Error())
			return
		}
		systemPrompt = strings.TrimSpace(string(sys))

		user, err := fs.ReadFile(fsys, "templates/solve_user.txt")
		if err != nil {
			loadErr = errors.New("failed to read prompt file templates/solve_user.txt: " + err.Error())
			return
		}
		tmpl, err := template.New("solve").Parse(string(user))
		if err != nil {
			loadErr = errors.New("failed to parse prompt template templates/solve_user.txt: " + err.Error())
			return
		}
		userTemplate = tmpl
	})
	return loadErr
}

// BuildSolvePrompt returns the system and user messages for one question.
func BuildSolvePrompt(data SolveData) (system, user string, err error) {
	if userTemplate == nil {
		if loadErr != nil {
			return "", "", loadErr
		}
		return "", "", errors.New("templates not initialized: call Load first")
	}

	system = systemPrompt
	if custom := strings.TrimSpace(data.SystemPrompt); custom != "" {
		system = custom
	}

	data.QuestionText = sanitize(data.QuestionText, "[No question text]")
	data.Instructions = strings.TrimSpace(extraInstrRegex.ReplaceAllString(data.Instructions, ""))

	var buf bytes.Buffer
	if err := userTemplate.Execute(&buf, data); err != nil {
		return "", "", err
	}
	return system, strings.TrimSpace(buf.String()), nil
}

// sanitize strips prompt delimiters from page text and bounds its length.
func sanitize(text, empty string) string {
	text = quizPageRegex.ReplaceAllString(text, "")
	text = extraInstrRegex.ReplaceAllString(text, "")
	text = collapseNewlines.ReplaceAllString(strings.TrimSpace(text), "\n\n")

	if text == "" {
		return empty
	}

	if utf8.RuneCountInString(text) > MaxQuestionRunes {
		runes := []rune(text)
		text = string(runes[:MaxQuestionRunes]) + "\n\n[Page text truncated due to length]"
	}
	return text
}
