package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pavelanni/quizsolver/internal/model"
)

// AttemptLister is the read side needed by ExportAttempts.
type AttemptLister interface {
	ListAttempts(ctx context.Context, email string, limit int) ([]model.Attempt, error)
}

// ExportAttempts builds an export grouping the most recent attempts by chain.
// Chains are ordered by start time, rounds by round number.
func ExportAttempts(ctx context.Context, src AttemptLister, email string, limit int) (*model.AttemptsExport, error) {
	attempts, err := src.ListAttempts(ctx, email, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	export := &model.AttemptsExport{
		ExportedAt: time.Now().UTC(),
		Email:      email,
		Total:      len(attempts),
		Chains:     []model.ChainExport{},
	}

	byChain := make(map[string]*model.ChainExport)
	var order []string
	for _, a := range attempts {
		if a.Correct != nil && *a.Correct {
			export.Correct++
		}
		key := a.ChainID
		if key == "" {
			// Attempts without a chain id stand alone.
			key = "attempt:" + a.ID
		}
		ch, ok := byChain[key]
		if !ok {
			ch = &model.ChainExport{ChainID: a.ChainID, Email: a.Email}
			byChain[key] = ch
			order = append(order, key)
		}
		ch.Rounds = append(ch.Rounds, a)
	}

	for _, key := range order {
		ch := byChain[key]
		sort.SliceStable(ch.Rounds, func(i, j int) bool {
			if ch.Rounds[i].Round != ch.Rounds[j].Round {
				return ch.Rounds[i].Round < ch.Rounds[j].Round
			}
			return ch.Rounds[i].CreatedAt.Before(ch.Rounds[j].CreatedAt)
		})
		ch.StartURL = ch.Rounds[0].QuizURL
		ch.StartedAt = ch.Rounds[0].CreatedAt
		export.Chains = append(export.Chains, *ch)
	}
	sort.SliceStable(export.Chains, func(i, j int) bool {
		return export.Chains[i].StartedAt.Before(export.Chains[j].StartedAt)
	})
	return export, nil
}
