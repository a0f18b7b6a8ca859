package web

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/ff-monheim/ams-console/internal/auth"
	"github.com/ff-monheim/ams-console/internal/session"
)

// accessLog writes one line per request to the request's logger.
func accessLog(r *http.Request, status, size int, duration time.Duration) {
	if status == 0 {
		status = http.StatusOK
	}
	logger := hlog.FromRequest(r)
	event := logger.Info()
	if status >= http.StatusInternalServerError {
		event = logger.Error()
	}
	event.
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Int("bytes", size).
		Dur("duration", duration).
		Msg("request")
}

// recoverer turns a panic into the error page.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			hlog.FromRequest(r).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("handler panicked")
			s.renderError(w, r, http.StatusInternalServerError, "Ein unerwarteter Fehler ist aufgetreten.")
		}()
		next.ServeHTTP(w, r)
	})
}

// decodePath routes on the decoded path so "/lehrgänge" matches whether the
// browser sent it escaped or not.
func decodePath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.URL.RawPath = ""
		next.ServeHTTP(w, r)
	})
}

// loadUser puts the signed-in user, if any, into the request context.
func (s *Server) loadUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := auth.CurrentUser(s.provider, session.FromContext(r.Context()))
		if err == nil {
			r = r.WithContext(auth.WithUser(r.Context(), user))
		}
		next.ServeHTTP(w, r)
	})
}

// requireLogin shows the login prompt to anonymous visitors.
func (s *Server) requireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.UserFromContext(r.Context()); !ok {
			s.render(w, r, http.StatusUnauthorized, pageLogin, s.newPage(r, "Anmeldung", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}
