package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/quizsolver/internal/handler"
	appI18n "github.com/pavelanni/quizsolver/internal/i18n"
	"github.com/pavelanni/quizsolver/internal/logging"
	"github.com/pavelanni/quizsolver/internal/metrics"
	"github.com/pavelanni/quizsolver/internal/model"
	"github.com/pavelanni/quizsolver/internal/solver"
	"github.com/pavelanni/quizsolver/internal/store"
	"github.com/pavelanni/quizsolver/internal/tracing"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "quizsolver",
		Short: "Solve chained web quizzes and submit the answers to their grader",
	}

	serve := serveCmd()
	root.AddCommand(serve, solveCmd(), configCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `quizsolver --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func storeFlags(f *pflag.FlagSet) {
	f.String("db", "quizsolver.db", "SQLite database path")
	f.String("database-url", "", "PostgreSQL URL (postgres://...); overrides --db")
}

func logFlags(f *pflag.FlagSet) {
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json, color)")
	f.String("log-file", "", "Also write JSON logs to this file, rotated by size")
}

// defaultLLMURL is the --llm-url default. Auto mode treats any other value as a configured endpoint.
const defaultLLMURL = "https://api.openai.com/v1"

func solverFlags(f *pflag.FlagSet) {
	f.String("llm-url", defaultLLMURL, "OpenAI-compatible API base URL")
	f.String("llm-key", "", "API key for the LLM (or set QUIZSOLVER_LLM_KEY)")
	f.String("llm-model", "gpt-3.5-turbo", "LLM model name")
	f.String("deriver", "auto", "Answer source (auto, llm, heuristic)")
	f.String("answer-numbers", "number", "Submit numeric answers as JSON numbers or strings (number, string)")
	f.String("extract-mode", "auto", "Page handling (auto, rendered, encoded)")
	f.String("scrapingbee-key", "", "ScrapingBee API key for rendering script-built pages")
	f.String("scrapingbee-url", "", "ScrapingBee endpoint override")
	f.Duration("http-timeout", 60*time.Second, "Timeout for page, data, render and grader requests")
	f.Duration("llm-timeout", 120*time.Second, "Timeout for one LLM completion")
	f.Duration("round-timeout", 0, "Timeout for one round (0 = none)")
	f.Int("max-rounds", solver.DefaultMaxRounds, "Maximum rounds per chain (0 = unbounded)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP quiz endpoint",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	storeFlags(f)
	solverFlags(f)
	f.Duration("chain-timeout", 0, "Timeout for a whole chain (0 = none)")
	f.Duration("shutdown-timeout", 30*time.Second, "How long to wait for running chains on shutdown")
	f.StringSlice("allowed-origins", nil, "CORS origins (default any)")
	f.Int("rate-limit", 30, "Quiz requests per client IP per window (0 = unlimited)")
	f.Duration("rate-window", time.Minute, "Rate limit window")
	f.String("admin-user", "admin", "User name for the read-only /api endpoints")
	f.String("admin-password", "", "Password for the /api endpoints; empty disables them")
	f.StringP("lang", "l", "en", "Default response language (en, ru)")
	f.String("jaeger-endpoint", "", "Jaeger collector endpoint; empty disables tracing")
	logFlags(f)
	return cmd
}

func solveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Run one chain in the foreground and print its summary",
		RunE:  runSolve,
	}
	f := cmd.Flags()
	f.String("email", "", "Student email (required)")
	f.String("secret", "", "Student secret; defaults to the stored config")
	f.String("url", "", "First quiz URL (required)")
	storeFlags(f)
	solverFlags(f)
	logFlags(f)
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage per-student configuration",
	}

	set := &cobra.Command{
		Use:   "set",
		Short: "Create or update a student configuration",
		RunE:  runConfigSet,
	}
	f := set.Flags()
	f.String("email", "", "Student email (required)")
	f.String("secret", "", "Shared secret (required)")
	f.String("system-prompt", "", "Replacement system prompt for the LLM")
	f.String("user-prompt", "", "Extra instructions appended to the question")
	f.String("api-endpoint", "", "Student API endpoint")
	f.String("github-repo", "", "Student repository URL")
	storeFlags(f)
	logFlags(f)
	_ = set.MarkFlagRequired("email")
	_ = set.MarkFlagRequired("secret")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print a student configuration without its secret",
		RunE:  runConfigShow,
	}
	f = show.Flags()
	f.String("email", "", "Student email (required)")
	storeFlags(f)
	logFlags(f)
	_ = show.MarkFlagRequired("email")

	cmd.AddCommand(set, show)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export recorded attempts as JSON grouped by chain",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("email", "", "Only export attempts for this email")
	f.Int("limit", 1000, "Maximum number of attempts")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	storeFlags(f)
	logFlags(f)
	return cmd
}

// setupLogging installs the default logger. Close the returned closer on exit.
func setupLogging(cmd *cobra.Command) io.Closer {
	v := viperForCmd(cmd)
	logger, closer := logging.New(os.Stderr, logging.Options{
		Level:  v.GetString("log-level"),
		Format: v.GetString("log-format"),
		File:   v.GetString("log-file"),
	})
	slog.SetDefault(logger)
	return closer
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("QUIZSOLVER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("quizsolver")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/quizsolver")
	v.AddConfigPath("/etc/quizsolver")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	defer setupLogging(cmd).Close()
	v := viperForCmd(cmd)
	ctx := context.Background()

	if endpoint := v.GetString("jaeger-endpoint"); endpoint != "" {
		tp, err := tracing.InitTracer("quizsolver", endpoint)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				slog.Warn("tracer shutdown", "error", err)
			}
		}()
	}

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	s, err := buildSolver(ctx, v, db, m)
	if err != nil {
		return err
	}
	runner := solver.NewRunner(s, db, solver.RunnerOptions{
		ChainTimeout: v.GetDuration("chain-timeout"),
		Metrics:      m,
	})

	h, err := handler.New(db, runner, model.ServeConfig{
		AllowedOrigins: v.GetStringSlice("allowed-origins"),
		RateLimit:      v.GetInt("rate-limit"),
		RateWindow:     v.GetDuration("rate-window"),
		AdminUser:      v.GetString("admin-user"),
		AdminPassword:  v.GetString("admin-password"),
		DefaultLang:    lang,
	})
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(m.Middleware)
	r.Use(tracing.Middleware)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)
	r.Handle("/metrics", metrics.Handler(prometheus.DefaultGatherer))

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", addr,
			"deriver", v.GetString("deriver"),
			"model", v.GetString("llm-model"),
			"extract_mode", v.GetString("extract-mode"),
			"max_rounds", v.GetInt("max-rounds"),
			"lang", lang,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case sig := <-quit:
		slog.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), v.GetDuration("shutdown-timeout"))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown", "error", err)
	}
	if err := runner.Shutdown(shutdownCtx); err != nil {
		slog.Warn("running chains cancelled", "error", err)
	}
	slog.Info("server stopped")
	return nil
}

func runSolve(cmd *cobra.Command, _ []string) error {
	defer setupLogging(cmd).Close()
	v := viperForCmd(cmd)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	req := model.QuizRequest{
		Email:  v.GetString("email"),
		Secret: v.GetString("secret"),
		URL:    v.GetString("url"),
	}
	cfg, err := db.GetConfig(ctx, req.Email)
	if err != nil {
		return fmt.Errorf("get config: %w", err)
	}
	if req.Secret == "" && cfg != nil {
		req.Secret = cfg.Secret
	}
	if req.Secret == "" {
		return fmt.Errorf("no secret for %s: pass --secret or run `quizsolver config set`", req.Email)
	}

	s, err := buildSolver(ctx, v, db, nil)
	if err != nil {
		return err
	}
	sum, solveErr := s.Solve(ctx, req, cfg)
	if sum != nil {
		if err := writeJSON(os.Stdout, sum); err != nil {
			return err
		}
	}
	return solveErr
}

func runConfigSet(cmd *cobra.Command, _ []string) error {
	defer setupLogging(cmd).Close()
	v := viperForCmd(cmd)
	ctx := context.Background()

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.UpsertConfig(ctx, model.StudentConfig{
		Email:        v.GetString("email"),
		Secret:       v.GetString("secret"),
		SystemPrompt: v.GetString("system-prompt"),
		UserPrompt:   v.GetString("user-prompt"),
		APIEndpoint:  v.GetString("api-endpoint"),
		GithubRepo:   v.GetString("github-repo"),
	})
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	defer setupLogging(cmd).Close()
	v := viperForCmd(cmd)
	ctx := context.Background()

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	email := v.GetString("email")
	cfg, err := db.GetConfig(ctx, email)
	if err != nil {
		return fmt.Errorf("get config: %w", err)
	}
	if cfg == nil {
		return fmt.Errorf("no configuration for %s", email)
	}
	return writeJSON(os.Stdout, cfg)
}

func runExport(cmd *cobra.Command, _ []string) error {
	defer setupLogging(cmd).Close()
	v := viperForCmd(cmd)
	ctx := context.Background()

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	export, err := store.ExportAttempts(ctx, db, v.GetString("email"), v.GetInt("limit"))
	if err != nil {
		return fmt.Errorf("export attempts: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return writeJSON(w, export)
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)
	return nil
}
