package handler

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/pavelanni/quizsolver/internal/i18n"
)

// cors answers preflight requests and sets the allow headers on every response.
func (h *Handler) cors(next http.Handler) http.Handler {
	allowAll := len(h.config.AllowedOrigins) == 0
	origins := make(map[string]bool, len(h.config.AllowedOrigins))
	for _, o := range h.config.AllowedOrigins {
		o = strings.TrimSpace(o)
		if o == "*" {
			allowAll = true
		}
		origins[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := w.Header()
		switch origin := r.Header.Get("Origin"); {
		case allowAll:
			hdr.Set("Access-Control-Allow-Origin", "*")
		case origin != "" && origins[origin]:
			hdr.Set("Access-Control-Allow-Origin", origin)
			hdr.Add("Vary", "Origin")
		}
		hdr.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		hdr.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin guards the read-only API with HTTP basic auth. Without an admin
// password the API does not exist.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.adminHash == nil {
			writeError(w, http.StatusNotFound, appI18n.T(r.Context(), "AdminDisabled"), "")
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(h.config.AdminUser)) != 1 ||
			bcrypt.CompareHashAndPassword(h.adminHash, []byte(pass)) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="quizsolver"`)
			writeError(w, http.StatusUnauthorized, appI18n.T(r.Context(), "Unauthorized"), "")
			return
		}
		next.ServeHTTP(w, r)
	})
}
