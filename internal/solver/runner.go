package solver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/pavelanni/quizsolver/internal/metrics"
	"github.com/pavelanni/quizsolver/internal/model"
)

// Chain results reported to metrics and the completion hook.
const (
	ResultDone      = "done"
	ResultFailed    = "failed"
	ResultLimit     = "limit"
	ResultCycle     = "cycle"
	ResultCancelled = "cancelled"
	ResultPanic     = "panic"
)

// ChainSolver runs one chain to completion.
type ChainSolver interface {
	Solve(ctx context.Context, req model.QuizRequest, cfg *model.StudentConfig) (*Summary, error)
}

// Result is handed to the completion hook once a background chain stops.
type Result struct {
	Email    string
	StartURL string
	Summary  *Summary
	Err      error
	Status   string
	Duration time.Duration
}

type RunnerOptions struct {
	// ChainTimeout bounds a whole chain; zero means none.
	ChainTimeout time.Duration
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	// OnDone, when set, is called after every chain.
	OnDone func(Result)
}

// Runner starts chains in the background, detached from the request that asked
// for them, and tracks them until shutdown.
type Runner struct {
	solver  ChainSolver
	records Recorder
	opts    RunnerOptions
	logger  *slog.Logger

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRunner(s ChainSolver, records Recorder, opts RunnerOptions) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Runner{
		solver:  s,
		records: records,
		opts:    opts,
		logger:  logger,
		base:    base,
		cancel:  cancel,
	}
}

// Spawn starts a chain and returns immediately.
func (r *Runner) Spawn(req model.QuizRequest, cfg *model.StudentConfig) {
	r.wg.Add(1)
	r.opts.Metrics.ChainStarted()
	go r.run(req, cfg)
}

func (r *Runner) run(req model.QuizRequest, cfg *model.StudentConfig) {
	defer r.wg.Done()

	ctx := r.base
	if r.opts.ChainTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.ChainTimeout)
		defer cancel()
	}

	start := time.Now()
	res := Result{Email: req.Email, StartURL: req.URL}
	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("panic: %v", p)
			res.Status = ResultPanic
			stack := string(debug.Stack())
			r.logger.Error("quiz chain panicked", "email", req.Email, "url", req.URL, "panic", p, "stack", stack)
			entry := &model.LogEntry{
				Email:    req.Email,
				QuizURL:  req.URL,
				Level:    model.LevelError,
				Message:  "Quiz solving failed",
				Metadata: map[string]any{"error": res.Err.Error()},
			}
			if err := r.records.InsertLog(context.Background(), entry); err != nil {
				r.logger.Warn("failed to write quiz log", "message", entry.Message, "error", err)
			}
		}
		res.Duration = time.Since(start)
		r.complete(res)
	}()

	res.Summary, res.Err = r.solver.Solve(ctx, req, cfg)
	res.Status = status(res.Err)
}

func status(err error) string {
	switch {
	case err == nil:
		return ResultDone
	case errors.Is(err, ErrChainLimit):
		return ResultLimit
	case errors.Is(err, ErrChainCycle):
		return ResultCycle
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ResultCancelled
	default:
		return ResultFailed
	}
}

func (r *Runner) complete(res Result) {
	r.opts.Metrics.ChainFinished(res.Status)
	attrs := []any{
		"email", res.Email,
		"url", res.StartURL,
		"status", res.Status,
		"duration", res.Duration.Round(time.Millisecond),
	}
	if res.Summary != nil {
		attrs = append(attrs, "chain_id", res.Summary.ChainID, "rounds", res.Summary.Rounds)
	}
	if res.Err != nil {
		r.logger.Error("quiz chain stopped", append(attrs, "error", res.Err)...)
	} else {
		r.logger.Info("quiz chain finished", attrs...)
	}
	if r.opts.OnDone != nil {
		r.opts.OnDone(res)
	}
}

// Wait blocks until every spawned chain has stopped.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown waits for running chains until ctx expires, then cancels them and
// returns ctx's error.
func (r *Runner) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}
