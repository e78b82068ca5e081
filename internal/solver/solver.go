// Package solver drives quiz chains: extract, derive, submit, record, and follow
// the grader's next URL until none remains or a round fails.
package solver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pavelanni/quizsolver/internal/derive"
	"github.com/pavelanni/quizsolver/internal/extract"
	"github.com/pavelanni/quizsolver/internal/metrics"
	"github.com/pavelanni/quizsolver/internal/model"
	"github.com/pavelanni/quizsolver/internal/submit"
	"github.com/pavelanni/quizsolver/internal/tracing"
)

// DefaultMaxRounds bounds a chain when no limit is configured.
const DefaultMaxRounds = 50

var (
	// ErrChainLimit stops a chain that reached its round limit.
	ErrChainLimit = errors.New("chain round limit reached")
	// ErrChainCycle stops a chain whose grader pointed back at a quiz it already visited.
	ErrChainCycle = errors.New("chain revisited a quiz URL")
)

type Extractor interface {
	Extract(ctx context.Context, pageURL string) (*extract.Page, error)
}

type Submitter interface {
	Submit(ctx context.Context, submitURL string, p submit.Payload) (*model.GradingResult, error)
}

// Recorder is the append-only side of the record store.
type Recorder interface {
	InsertAttempt(ctx context.Context, a *model.Attempt) error
	InsertLog(ctx context.Context, e *model.LogEntry) error
}

// Config bounds chains and rounds.
type Config struct {
	// MaxRounds caps rounds per chain; zero or less means no cap.
	MaxRounds int
	// RoundTimeout bounds extraction, derivation and submission of one round; zero means none.
	RoundTimeout time.Duration
}

// Deps are the collaborators of a Solver. Metrics and Logger are optional.
type Deps struct {
	Extractor Extractor
	Deriver   derive.Deriver
	Submitter Submitter
	Records   Recorder
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

type Solver struct {
	extractor Extractor
	deriver   derive.Deriver
	submitter Submitter
	records   Recorder
	metrics   *metrics.Metrics
	logger    *slog.Logger
	cfg       Config
}

func New(d Deps, cfg Config) *Solver {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Solver{
		extractor: d.Extractor,
		deriver:   d.Deriver,
		submitter: d.Submitter,
		records:   d.Records,
		metrics:   d.Metrics,
		logger:    logger,
		cfg:       cfg,
	}
}

// Summary describes a chain after it stops.
type Summary struct {
	ChainID     string `json:"chain_id"`
	Rounds      int    `json:"rounds"`
	LastURL     string `json:"last_url,omitempty"`
	LastCorrect *bool  `json:"last_correct,omitempty"`
	// Phase is PhaseChaining while the chain runs, then PhaseDone or PhaseFailed.
	Phase Phase `json:"phase"`
}

type round struct {
	chainID string
	n       int
	email   string
	secret  string
	url     string
	config  *model.StudentConfig
}

// Solve runs a chain starting at req.URL. Rounds run one after another; the chain
// ends without error when the grader supplies no next URL.
func (s *Solver) Solve(ctx context.Context, req model.QuizRequest, cfg *model.StudentConfig) (sum *Summary, err error) {
	if cfg == nil {
		cfg = &model.StudentConfig{Email: req.Email}
	}
	sum = &Summary{ChainID: uuid.NewString(), Phase: PhaseStart}
	defer func() {
		if err != nil {
			sum.Phase = PhaseFailed
			return
		}
		sum.Phase = PhaseDone
	}()
	visited := make(map[string]bool)
	next := req.URL

	for n := 1; ; n++ {
		rd := round{chainID: sum.ChainID, n: n, email: req.Email, secret: req.Secret, url: next, config: cfg}

		if s.cfg.MaxRounds > 0 && n > s.cfg.MaxRounds {
			err := fmt.Errorf("%w: stopped after %d rounds", ErrChainLimit, s.cfg.MaxRounds)
			s.record(ctx, rd, model.LevelError, "Chain stopped: round limit reached",
				map[string]any{"error": err.Error(), "max_rounds": s.cfg.MaxRounds, "chain_id": rd.chainID})
			return sum, err
		}
		if visited[next] {
			err := fmt.Errorf("%w: %s", ErrChainCycle, next)
			s.record(ctx, rd, model.LevelError, "Chain stopped: quiz URL already visited",
				map[string]any{"error": err.Error(), "round": n, "chain_id": rd.chainID})
			return sum, err
		}
		visited[next] = true
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		res, err := s.playRound(ctx, rd)
		if err != nil {
			return sum, err
		}
		sum.Rounds++
		sum.LastURL = next
		sum.LastCorrect = res.Correct

		if res.NextURL == "" {
			s.logger.Info("quiz chain complete", "chain_id", sum.ChainID, "email", req.Email, "rounds", sum.Rounds)
			return sum, nil
		}
		sum.Phase = PhaseChaining
		s.logger.Debug("chaining to next quiz", "chain_id", sum.ChainID, "phase", sum.Phase.String(), "next_url", res.NextURL)
		next = res.NextURL
	}
}

func (s *Solver) playRound(ctx context.Context, rd round) (res *model.GradingResult, err error) {
	ctx, span := tracing.Tracer().Start(ctx, "quiz.round", trace.WithAttributes(
		attribute.String("quiz.url", rd.url),
		attribute.Int("quiz.round", rd.n),
		attribute.String("quiz.chain_id", rd.chainID),
	))
	defer span.End()

	logger := s.logger.With(slog.Group("meta",
		"email", rd.email, "url", rd.url, "round", rd.n, "chain_id", rd.chainID))
	phase := PhaseStart
	started := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.metrics.ObserveRound(metrics.OutcomeFailed)
			logger.Error("round failed", "phase", phase.String(), "state", PhaseFailed.String(), "error", err)
		}
	}()

	s.record(ctx, rd, model.LevelInfo, "Starting quiz solver",
		map[string]any{"url": rd.url, "round": rd.n, "chain_id": rd.chainID})
	logger.Info("starting round")

	if s.cfg.RoundTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RoundTimeout)
		defer cancel()
	}

	phase = PhaseExtracting
	t := time.Now()
	page, err := s.extractor.Extract(ctx, rd.url)
	s.metrics.ObservePhase(phase.String(), time.Since(t))
	if err != nil {
		s.fail(ctx, rd, phase, "Extraction failed", err)
		return nil, err
	}
	span.SetAttributes(attribute.String("quiz.page_kind", string(page.Kind)))
	s.record(ctx, rd, model.LevelInfo, "Successfully extracted page content.", map[string]any{
		"contentLength": len(page.QuestionText),
		"mode":          string(page.Kind),
		"submit_url":    page.SubmitURL,
		"data_url":      page.DataURL,
	})
	logger.Debug("extracted page", "kind", page.Kind, "submit_url", page.SubmitURL, "data_url", page.DataURL)

	phase = PhaseDeriving
	t = time.Now()
	answer, err := s.deriver.Derive(ctx, derive.Question{
		Text:         page.QuestionText,
		DataURL:      page.DataURL,
		SystemPrompt: rd.config.SystemPrompt,
		UserPrompt:   rd.config.UserPrompt,
	})
	s.metrics.ObservePhase(phase.String(), time.Since(t))
	if err != nil {
		s.fail(ctx, rd, phase, "Answer derivation failed", err)
		return nil, err
	}
	s.record(ctx, rd, model.LevelInfo, "Received answer.",
		map[string]any{"answer": answer, "deriver": s.deriver.Name()})

	phase = PhaseSubmitting
	t = time.Now()
	res, err = s.submitter.Submit(ctx, page.SubmitURL, submit.Payload{
		Email:  rd.email,
		Secret: rd.secret,
		URL:    rd.url,
		Answer: answer,
	})
	s.metrics.ObservePhase(phase.String(), time.Since(t))
	if err != nil {
		s.fail(ctx, rd, phase, "Submission failed", err)
		return nil, err
	}

	phase = PhaseLoggingResult
	attempt := &model.Attempt{
		ChainID:    rd.chainID,
		Round:      rd.n,
		Email:      rd.email,
		QuizURL:    rd.url,
		Question:   page.QuestionText,
		Answer:     answer,
		Correct:    res.Correct,
		Response:   res.Raw,
		DurationMS: time.Since(started).Milliseconds(),
	}
	if recErr := s.records.InsertAttempt(context.WithoutCancel(ctx), attempt); recErr != nil {
		err = fmt.Errorf("record attempt: %w", recErr)
		s.fail(ctx, rd, phase, "Failed to record attempt", err)
		return nil, err
	}

	level, msg, outcome := model.LevelError, "Answer incorrect", metrics.OutcomeIncorrect
	switch {
	case res.Correct == nil:
		outcome = metrics.OutcomeUnknown
	case *res.Correct:
		level, msg, outcome = model.LevelInfo, "Answer correct", metrics.OutcomeCorrect
	}
	s.record(ctx, rd, level, msg, map[string]any{
		"submitResult": res.Raw,
		"answer":       answer,
		"duration_ms":  attempt.DurationMS,
	})
	s.metrics.ObserveRound(outcome)
	span.SetAttributes(attribute.String("quiz.outcome", outcome))
	logger.Info("round complete", "outcome", outcome, "next_url", res.NextURL, "duration_ms", attempt.DurationMS)
	return res, nil
}

// fail writes the single error record of a failed round.
func (s *Solver) fail(ctx context.Context, rd round, phase Phase, msg string, err error) {
	s.record(ctx, rd, model.LevelError, msg, map[string]any{"error": err.Error(), "phase": phase.String()})
}

// record appends a quiz log. Write failures go to the process log only and never abort a round.
func (s *Solver) record(ctx context.Context, rd round, level model.LogLevel, msg string, meta map[string]any) {
	entry := &model.LogEntry{Email: rd.email, QuizURL: rd.url, Level: level, Message: msg, Metadata: meta}
	if err := s.records.InsertLog(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Warn("failed to write quiz log", "message", msg, "email", rd.email, "error", err)
	}
}
