package i18n

import (
	"net/http"

	"golang.org/x/text/language"
)

// Middleware picks the best supported language from Accept-Language, falling
// back to lang, and stores its localizer in the request context.
func Middleware(lang string) func(http.Handler) http.Handler {
	supported := Languages()
	matcher := language.NewMatcher(supported)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			chosen := lang
			if accept := r.Header.Get("Accept-Language"); accept != "" && len(supported) > 0 {
				if tags, _, err := language.ParseAcceptLanguage(accept); err == nil && len(tags) > 0 {
					if _, idx, conf := matcher.Match(tags...); conf != language.No {
						chosen = supported[idx].String()
					}
				}
			}
			ctx := WithLocalizer(r.Context(), NewLocalizer(chosen, lang))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
