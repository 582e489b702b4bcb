package middleware

import (
	"log/slog"
	"mime"
	"net/http"
	"strings"
)

// ValidateJSONContentType rejects write requests whose non-empty body is not
// declared as application/json.
func ValidateJSONContentType(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch:
			default:
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength == 0 {
				next.ServeHTTP(w, r)
				return
			}

			raw := r.Header.Get("Content-Type")
			mediaType, _, err := mime.ParseMediaType(raw)
			if err != nil || mediaType != "application/json" {
				log.Warn("rejected request body type",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("content_type", raw),
				)
				writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SanitizePath rejects dot segments and empty segments. Client ids travel
// escaped, so the check runs on the escaped path: an id such as "a..b" or
// "x%2Fy" is allowed.
func SanitizePath(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cleanPath(r.URL.EscapedPath()) {
				log.Warn("rejected path", slog.String("path", r.URL.EscapedPath()))
				writeError(w, http.StatusBadRequest, "invalid path")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func cleanPath(p string) bool {
	if p == "" || p == "/" {
		return true
	}
	segments := strings.Split(strings.TrimPrefix(p, "/"), "/")
	for i, seg := range segments {
		switch seg {
		case ".", "..", "%2e", "%2E", "%2e%2e", "%2E%2E", ".%2e", "%2e.":
			return false
		case "":
			// a single trailing slash is fine
			if i != len(segments)-1 {
				return false
			}
		}
	}
	return true
}
