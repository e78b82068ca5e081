// Package derive computes a candidate answer for an extracted question.
package derive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/pavelanni/quizsolver/internal/model"
)

// ErrDerivation wraps every failure to produce an answer.
var ErrDerivation = errors.New("derivation failed")

// Question is the input to a Deriver.
type Question struct {
	Text    string
	DataURL string
	// SystemPrompt and UserPrompt come from the requester's configuration record.
	SystemPrompt string
	UserPrompt   string
}

// Deriver produces an answer for a question.
type Deriver interface {
	Derive(ctx context.Context, q Question) (model.Answer, error)
	Name() string
}

// NumberMode selects how a bare numeric reply is submitted.
type NumberMode string

const (
	// NumbersAsNumber submits "42" as the JSON number 42.
	NumbersAsNumber NumberMode = "number"
	// NumbersAsString submits "42" as the JSON string "42".
	NumbersAsString NumberMode = "string"
)

// ParseNumberMode validates a mode name. Empty selects NumbersAsNumber.
func ParseNumberMode(s string) (NumberMode, error) {
	switch NumberMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", NumbersAsNumber:
		return NumbersAsNumber, nil
	case NumbersAsString:
		return NumbersAsString, nil
	}
	return "", fmt.Errorf("unknown answer number mode %q (want number or string)", s)
}

var codeFence = regexp.MustCompile("(?s)^```[a-zA-Z0-9_-]*\\s*\\n?(.*?)\\n?```$")

// ParseAnswer interprets raw model output as a JSON value when the whole reply is
// valid JSON, and as its trimmed text otherwise. A reply wrapped in a Markdown
// code fence is unwrapped first.
func ParseAnswer(raw string, mode NumberMode) model.Answer {
	text := strings.TrimSpace(raw)
	if m := codeFence.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return text
	}
	// Trailing content means the reply was not a single JSON value.
	if _, err := dec.Token(); err != io.EOF {
		return text
	}
	if n, ok := v.(json.Number); ok && mode == NumbersAsString {
		return n.String()
	}
	return v
}

// FormatAnswer renders an answer for log metadata and CLI output.
func FormatAnswer(a model.Answer) string {
	if s, ok := a.(string); ok {
		return s
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(a); err != nil {
		return fmt.Sprint(a)
	}
	return strings.TrimSpace(buf.String())
}
