package solver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/quizsolver/internal/metrics"
	"github.com/pavelanni/quizsolver/internal/model"
)

type solveFunc func(ctx context.Context, req model.QuizRequest, cfg *model.StudentConfig) (*Summary, error)

func (f solveFunc) Solve(ctx context.Context, req model.QuizRequest, cfg *model.StudentConfig) (*Summary, error) {
	return f(ctx, req, cfg)
}

func collect(n int) (func(Result), <-chan Result) {
	ch := make(chan Result, n)
	return func(r Result) { ch <- r }, ch
}

func waitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("chain did not finish")
		return Result{}
	}
}

func TestSpawnReturnsImmediately(t *testing.T) {
	release := make(chan struct{})
	onDone, results := collect(1)
	r := NewRunner(solveFunc(func(context.Context, model.QuizRequest, *model.StudentConfig) (*Summary, error) {
		<-release
		return &Summary{ChainID: "c1", Rounds: 1}, nil
	}), &memRecorder{}, RunnerOptions{OnDone: onDone})

	start := time.Now()
	r.Spawn(request, nil)
	assert.Less(t, time.Since(start), time.Second)

	close(release)
	res := waitResult(t, results)
	assert.Equal(t, ResultDone, res.Status)
	assert.Equal(t, request.Email, res.Email)
	assert.Equal(t, request.URL, res.StartURL)
	assert.Equal(t, "c1", res.Summary.ChainID)
}

func TestSpawnRecoversPanic(t *testing.T) {
	rec := &memRecorder{}
	onDone, results := collect(1)
	r := NewRunner(solveFunc(func(context.Context, model.QuizRequest, *model.StudentConfig) (*Summary, error) {
		panic("nil map")
	}), rec, RunnerOptions{OnDone: onDone})

	r.Spawn(request, nil)
	res := waitResult(t, results)
	r.Wait()

	assert.Equal(t, ResultPanic, res.Status)
	require.Error(t, res.Err)
	errs := rec.errorLogs()
	require.Len(t, errs, 1)
	assert.Equal(t, "Quiz solving failed", errs[0].Message)
	assert.Contains(t, errs[0].Metadata["error"], "nil map")
}

func TestRunnerStatus(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ResultDone},
		{ErrChainLimit, ResultLimit},
		{ErrChainCycle, ResultCycle},
		{context.Canceled, ResultCancelled},
		{context.DeadlineExceeded, ResultCancelled},
		{errors.New("boom"), ResultFailed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, status(tt.err), "status(%v)", tt.err)
	}
}

func TestRunnerChainTimeout(t *testing.T) {
	onDone, results := collect(1)
	r := NewRunner(solveFunc(func(ctx context.Context, _ model.QuizRequest, _ *model.StudentConfig) (*Summary, error) {
		<-ctx.Done()
		return &Summary{}, ctx.Err()
	}), &memRecorder{}, RunnerOptions{ChainTimeout: 20 * time.Millisecond, OnDone: onDone})

	r.Spawn(request, nil)
	res := waitResult(t, results)
	assert.Equal(t, ResultCancelled, res.Status)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestRunnerShutdown(t *testing.T) {
	t.Run("waits for running chains", func(t *testing.T) {
		r := NewRunner(solveFunc(func(context.Context, model.QuizRequest, *model.StudentConfig) (*Summary, error) {
			time.Sleep(20 * time.Millisecond)
			return &Summary{}, nil
		}), &memRecorder{}, RunnerOptions{})
		r.Spawn(request, nil)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, r.Shutdown(ctx))
	})

	t.Run("cancels chains after the deadline", func(t *testing.T) {
		onDone, results := collect(1)
		r := NewRunner(solveFunc(func(ctx context.Context, _ model.QuizRequest, _ *model.StudentConfig) (*Summary, error) {
			<-ctx.Done()
			return &Summary{}, ctx.Err()
		}), &memRecorder{}, RunnerOptions{OnDone: onDone})
		r.Spawn(request, nil)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, r.Shutdown(ctx), context.DeadlineExceeded)
		assert.Equal(t, ResultCancelled, waitResult(t, results).Status)
	})
}

func TestRunnerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	onDone, results := collect(2)
	r := NewRunner(solveFunc(func(_ context.Context, req model.QuizRequest, _ *model.StudentConfig) (*Summary, error) {
		if req.URL == "bad" {
			return nil, errors.New("boom")
		}
		return &Summary{}, nil
	}), &memRecorder{}, RunnerOptions{Metrics: m, OnDone: onDone})

	r.Spawn(request, nil)
	r.Spawn(model.QuizRequest{Email: request.Email, URL: "bad"}, nil)
	waitResult(t, results)
	waitResult(t, results)
	r.Wait()

	assert.Equal(t, 0.0, testutil.ToFloat64(m.ChainsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChainsTotal.WithLabelValues(ResultDone)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChainsTotal.WithLabelValues(ResultFailed)))
}
