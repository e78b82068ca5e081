package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	appI18n "github.com/pavelanni/quizsolver/internal/i18n"
	"github.com/pavelanni/quizsolver/internal/store"
)

const maxListLimit = 1000

// parseLimit reads the limit query parameter. Zero means the store default.
func parseLimit(r *http.Request) (int, bool) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return 0, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	return min(n, maxListLimit), true
}

func (h *Handler) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r)
	if !ok {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "InvalidLimit"), "")
		return
	}
	email := r.URL.Query().Get("email")
	attempts, err := h.store.ListAttempts(r.Context(), email, limit)
	if err != nil {
		slog.Error("failed to list attempts", "email", email, "error", err)
		writeError(w, http.StatusInternalServerError, appI18n.T(r.Context(), "InternalError"), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (h *Handler) handleListLogs(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r)
	if !ok {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "InvalidLimit"), "")
		return
	}
	email := r.URL.Query().Get("email")
	logs, err := h.store.ListLogs(r.Context(), email, limit)
	if err != nil {
		slog.Error("failed to list logs", "email", email, "error", err)
		writeError(w, http.StatusInternalServerError, appI18n.T(r.Context(), "InternalError"), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r)
	if !ok {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "InvalidLimit"), "")
		return
	}
	email := r.URL.Query().Get("email")
	export, err := store.ExportAttempts(r.Context(), h.store, email, limit)
	if err != nil {
		slog.Error("failed to export attempts", "email", email, "error", err)
		writeError(w, http.StatusInternalServerError, appI18n.T(r.Context(), "InternalError"), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, export)
}
