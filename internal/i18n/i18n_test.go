package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "ConfigNotFound"); got != "Configuration not found" {
		t.Errorf("T(ConfigNotFound) = %q, want 'Configuration not found'", got)
	}
	if got := T(ctx, "QuizStarted"); got != "Quiz processing started" {
		t.Errorf("T(QuizStarted) = %q, want 'Quiz processing started'", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	if got := T(ctx, "InvalidSecret"); got != "Неверный секрет" {
		t.Errorf("T(InvalidSecret) = %q, want 'Неверный секрет'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "RateLimited", 1); got != "Too many requests, retry in 1 second" {
		t.Errorf("Tp(RateLimited, 1) = %q", got)
	}
	if got := Tp(ctx, "RateLimited", 30); got != "Too many requests, retry in 30 seconds" {
		t.Errorf("Tp(RateLimited, 30) = %q", got)
	}

	ctx = initLang(t, "ru")
	if got := Tp(ctx, "RateLimited", 5); got != "Слишком много запросов, повторите через 5 секунд" {
		t.Errorf("Tp(RateLimited, 5) ru = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "MissingFields", map[string]any{"Fields": "email, url"})
	if got != "Missing required fields: email, url" {
		t.Errorf("Td(MissingFields) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestMiddlewareAcceptLanguage(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	var got string
	h := Middleware("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "InvalidSecret")
	}))

	tests := []struct {
		accept string
		want   string
	}{
		{"", "Invalid secret"},
		{"ru-RU,ru;q=0.9,en;q=0.8", "Неверный секрет"},
		{"fr-FR", "Invalid secret"},
		{"garbage;;;", "Invalid secret"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if tt.accept != "" {
			req.Header.Set("Accept-Language", tt.accept)
		}
		h.ServeHTTP(httptest.NewRecorder(), req)
		if got != tt.want {
			t.Errorf("Accept-Language %q: got %q, want %q", tt.accept, got, tt.want)
		}
	}
}
