package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// maxRequestIDLen bounds caller-supplied request ids.
const maxRequestIDLen = 128

// correlationID makes sure every request carries an X-Request-Id before chi's
// RequestID middleware reads it, and echoes it back to the caller. Ids that are too
// long or contain characters outside [A-Za-z0-9._:-] are replaced.
func correlationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(middleware.RequestIDHeader)
		if !validRequestID(rid) {
			rid = uuid.NewString()
		}
		r.Header.Set(middleware.RequestIDHeader, rid)
		w.Header().Set(middleware.RequestIDHeader, rid)
		next.ServeHTTP(w, r)
	})
}

func validRequestID(s string) bool {
	if s == "" || len(s) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.', c == ':':
		default:
			return false
		}
	}
	return true
}
