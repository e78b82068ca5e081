package derive

import (
	"context"
	"fmt"
	"strings"

	"github.com/pavelanni/quizsolver/internal/llm/prompts"
	"github.com/pavelanni/quizsolver/internal/model"
)

// Completer is the model call used by LLM. *llm.Client implements it.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// LLM derives answers by asking a language model once per question.
type LLM struct {
	client  Completer
	numbers NumberMode
}

// NewLLM creates an LLM deriver and loads the embedded prompt templates.
func NewLLM(client Completer, numbers NumberMode) (*LLM, error) {
	if err := prompts.Load(prompts.Templates); err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	return &LLM{client: client, numbers: numbers}, nil
}

func (d *LLM) Name() string { return "llm" }

func (d *LLM) Derive(ctx context.Context, q Question) (model.Answer, error) {
	system, user, err := prompts.BuildSolvePrompt(prompts.SolveData{
		QuestionText: q.Text,
		DataURL:      q.DataURL,
		SystemPrompt: q.SystemPrompt,
		Instructions: q.UserPrompt,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: build prompt: %v", ErrDerivation, err)
	}

	raw, err := d.client.Complete(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDerivation, err)
	}
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: language model returned an empty answer", ErrDerivation)
	}
	return ParseAnswer(raw, d.numbers), nil
}
