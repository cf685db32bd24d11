package httpapi

import (
	"net/http"
	"strings"

	"github.com/quinticechen/alchemist-resume-sub001/internal/locale"
)

// LocaleMiddleware redirects page paths that lack a locale segment to the
// same path prefixed with the best locale for the request, resolved from the
// Accept-Language header. API and operational endpoints pass through
// untouched.
func LocaleMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || skipLocale(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if _, ok := locale.ExtractLanguage(r.URL.Path); ok {
			next.ServeHTTP(w, r)
			return
		}

		lang := locale.ResolveDefaultLanguage(r.Header.Get("Accept-Language"))
		target := locale.InjectLanguage(r.URL.Path, lang)
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		// Replace-style redirect so the locale-less URL does not stay in
		// browser history.
		http.Redirect(w, r, target, http.StatusFound)
	})
}

func skipLocale(path string) bool {
	for _, prefix := range []string{"/api/", "/ws/", "/debug/"} {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	switch path {
	case "/healthz", "/metrics", "/api", "/ws":
		return true
	}
	return false
}
