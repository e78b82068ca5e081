package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/pavelanni/quizsolver/internal/i18n"
	"github.com/pavelanni/quizsolver/internal/model"
)

const maxBodyBytes = 1 << 20

// Store is the part of the record store the HTTP layer needs.
type Store interface {
	GetConfig(ctx context.Context, email string) (*model.StudentConfig, error)
	InsertLog(ctx context.Context, e *model.LogEntry) error
	ListAttempts(ctx context.Context, email string, limit int) ([]model.Attempt, error)
	ListLogs(ctx context.Context, email string, limit int) ([]model.LogEntry, error)
	Ping(ctx context.Context) error
}

// Spawner starts a chain in the background and returns at once.
type Spawner interface {
	Spawn(req model.QuizRequest, cfg *model.StudentConfig)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store     Store
	spawner   Spawner
	config    model.ServeConfig
	adminHash []byte
	limiter   *rateLimiter
}

// New creates a new Handler. The admin password, if any, is kept only as a bcrypt hash.
func New(s Store, sp Spawner, cfg model.ServeConfig) (*Handler, error) {
	h := &Handler{store: s, spawner: sp, config: cfg}
	if cfg.AdminPassword != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		h.adminHash = hash
		h.config.AdminPassword = ""
	}
	if h.config.AdminUser == "" {
		h.config.AdminUser = "admin"
	}
	if cfg.RateLimit > 0 {
		h.limiter = newRateLimiter(cfg.RateLimit, cfg.RateWindow)
	}
	return h, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Use(h.cors)
	r.Get("/healthz", h.handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(h.rateLimit)
		r.Post("/", h.handleQuiz)
		r.Post("/quiz", h.handleQuiz)
	})
	r.Route("/api", func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Get("/attempts", h.handleListAttempts)
		r.Get("/logs", h.handleListLogs)
		r.Get("/export", h.handleExport)
	})
}

func (h *Handler) handleQuiz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.QuizRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, appI18n.T(ctx, "InvalidJSON"), "")
		return
	}
	if _, err := dec.Token(); err != io.EOF {
		writeError(w, http.StatusBadRequest, appI18n.T(ctx, "InvalidJSON"), "")
		return
	}
	if missing := req.Missing(); len(missing) > 0 {
		writeError(w, http.StatusBadRequest,
			appI18n.Td(ctx, "MissingFields", map[string]any{"Fields": strings.Join(missing, ", ")}), "")
		return
	}

	cfg, err := h.store.GetConfig(ctx, req.Email)
	if err != nil {
		slog.Error("failed to get student config", "email", req.Email, "error", err)
		writeError(w, http.StatusInternalServerError, appI18n.T(ctx, "InternalError"), err.Error())
		return
	}
	if cfg == nil {
		slog.Warn("quiz request for unknown email", "email", req.Email)
		writeError(w, http.StatusForbidden, appI18n.T(ctx, "ConfigNotFound"), "")
		return
	}
	if subtle.ConstantTimeCompare([]byte(cfg.Secret), []byte(req.Secret)) != 1 {
		slog.Warn("quiz request with invalid secret", "email", req.Email)
		writeError(w, http.StatusForbidden, appI18n.T(ctx, "InvalidSecret"), "")
		return
	}

	if err := h.store.InsertLog(ctx, &model.LogEntry{
		Email:    req.Email,
		QuizURL:  req.URL,
		Level:    model.LevelInfo,
		Message:  "Received quiz request",
		Metadata: map[string]any{"url": req.URL},
	}); err != nil {
		slog.Warn("failed to write quiz log", "email", req.Email, "error", err)
	}

	h.spawner.Spawn(req, cfg)
	slog.Info("quiz chain started", "email", req.Email, "url", req.URL)

	writeJSON(w, http.StatusOK, map[string]string{
		"message": appI18n.T(ctx, "QuizStarted"),
		"url":     req.URL,
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		slog.Error("health check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, appI18n.T(r.Context(), "StoreUnavailable"), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, errorResponse{Error: msg, Details: details})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
