package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pavelanni/quizsolver/internal/derive"
	"github.com/pavelanni/quizsolver/internal/extract"
	"github.com/pavelanni/quizsolver/internal/llm"
	"github.com/pavelanni/quizsolver/internal/metrics"
	"github.com/pavelanni/quizsolver/internal/solver"
	"github.com/pavelanni/quizsolver/internal/store"
	"github.com/pavelanni/quizsolver/internal/store/postgres"
	"github.com/pavelanni/quizsolver/internal/submit"
)

// openStore opens PostgreSQL when --database-url is a postgres URL, SQLite otherwise.
func openStore(ctx context.Context, v *viper.Viper) (store.Backend, error) {
	if dsn := v.GetString("database-url"); dsn != "" {
		if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
			return nil, fmt.Errorf("unsupported database URL scheme in %q", redactDSN(dsn))
		}
		db, err := postgres.NewStorage(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		slog.Info("using PostgreSQL record store")
		return db, nil
	}
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	slog.Debug("using SQLite record store", "path", v.GetString("db"))
	return db, nil
}

func redactDSN(dsn string) string {
	if i := strings.Index(dsn, "@"); i >= 0 {
		if j := strings.Index(dsn, "://"); j >= 0 && j < i {
			return dsn[:j+3] + "***" + dsn[i:]
		}
	}
	return dsn
}

// buildSolver wires extraction, derivation and submission from flags.
func buildSolver(ctx context.Context, v *viper.Viper, db store.Backend, m *metrics.Metrics) (*solver.Solver, error) {
	httpClient := &http.Client{Timeout: v.GetDuration("http-timeout")}

	detector, err := extract.DetectorForMode(v.GetString("extract-mode"))
	if err != nil {
		return nil, err
	}
	opts := []extract.Option{extract.WithDetector(detector)}
	if key := v.GetString("scrapingbee-key"); key != "" {
		opts = append(opts, extract.WithRenderer(extract.NewScrapingBee(httpClient, key, v.GetString("scrapingbee-url"))))
	} else {
		slog.Warn("no renderer configured: pages without an encoded script will fail")
	}

	numbers, err := derive.ParseNumberMode(v.GetString("answer-numbers"))
	if err != nil {
		return nil, err
	}
	deriver, err := buildDeriver(ctx, v, httpClient, numbers)
	if err != nil {
		return nil, err
	}

	return solver.New(solver.Deps{
		Extractor: extract.New(httpClient, opts...),
		Deriver:   deriver,
		Submitter: submit.New(httpClient),
		Records:   db,
		Metrics:   m,
	}, solver.Config{
		MaxRounds:    v.GetInt("max-rounds"),
		RoundTimeout: v.GetDuration("round-timeout"),
	}), nil
}

// buildDeriver picks the answer source. Auto mode uses the LLM when a key is
// set or --llm-url points somewhere other than the default, and the heuristic
// deriver otherwise. A selected LLM that fails its health check is fatal.
func buildDeriver(ctx context.Context, v *viper.Viper, httpClient *http.Client, numbers derive.NumberMode) (derive.Deriver, error) {
	mode := strings.ToLower(strings.TrimSpace(v.GetString("deriver")))
	switch mode {
	case "heuristic":
		return derive.NewHeuristic(httpClient, numbers), nil
	case "llm", "auto", "":
	default:
		return nil, fmt.Errorf("unknown deriver %q (want auto, llm or heuristic)", mode)
	}

	key := v.GetString("llm-key")
	url := v.GetString("llm-url")
	if mode != "llm" && key == "" && (url == "" || url == defaultLLMURL) {
		slog.Info("no LLM key or endpoint configured, using heuristic answers")
		return derive.NewHeuristic(httpClient, numbers), nil
	}

	client := llm.New(url, key, v.GetString("llm-model"), v.GetDuration("llm-timeout"))
	pingTimeout := v.GetDuration("http-timeout")
	if pingTimeout <= 0 {
		pingTimeout = 30 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("LLM health check at %s: %w (use --deriver heuristic to run without a model)", url, err)
	}
	slog.Info("LLM endpoint OK", "url", url, "model", client.Model())

	return derive.NewLLM(client, numbers)
}
