package middleware

import (
	"net/http"

	"github.com/diewo77/ejaar/i18n"
)

const langCookie = "lang"

// Prefs resolves the response language (query > cookie > Accept-Language)
// and stores it in the request context. A language passed in the query is
// persisted in a cookie for ~30 days.
func Prefs(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lang := ""
		if c, err := r.Cookie(langCookie); err == nil && c.Value != "" {
			lang = c.Value
		}
		if ql := r.URL.Query().Get("lang"); ql != "" {
			lang = ql
			http.SetCookie(w, &http.Cookie{Name: langCookie, Value: i18n.Normalize(ql), Path: "/", MaxAge: 86400 * 30, SameSite: http.SameSiteLaxMode})
		}
		if lang != "fr" && lang != "en" {
			lang = i18n.DetectLanguage(r.Header.Get("Accept-Language"))
		}
		w.Header().Set("Content-Language", lang)
		next.ServeHTTP(w, r.WithContext(i18n.WithLang(r.Context(), lang)))
	})
}

// LangFrom returns language preference from context or fallback.
func LangFrom(r *http.Request) string {
	return i18n.LangFromContext(r.Context())
}
