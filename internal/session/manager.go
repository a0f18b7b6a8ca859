package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultCookieName names the session cookie.
	DefaultCookieName = "ams_session"

	storeTimeout = 5 * time.Second
)

// Options configures a Manager.
type Options struct {
	CookieName string
	Secure     bool
	Logger     zerolog.Logger
}

// Manager loads the request's session and writes it back before the
// response goes out.
type Manager struct {
	store  Store
	opts   Options
	logger zerolog.Logger
}

// NewManager returns a Manager over store.
func NewManager(store Store, opts Options) *Manager {
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	return &Manager{store: store, opts: opts, logger: opts.Logger}
}

// Store returns the underlying store.
func (m *Manager) Store() Store {
	return m.store
}

// Middleware attaches the session to the request context. Changes are saved
// when the handler first writes its response.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := m.load(r)
		cw := &commitWriter{ResponseWriter: w, manager: m, ctx: r.Context(), sess: sess}
		next.ServeHTTP(cw, r.WithContext(NewContext(r.Context(), sess)))
		cw.commit()
	})
}

func (m *Manager) load(r *http.Request) *Session {
	cookie, err := r.Cookie(m.opts.CookieName)
	if err != nil || cookie.Value == "" {
		return New()
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	sess, err := m.store.Load(ctx, cookie.Value)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.logger.Warn().Err(err).Msg("loading session failed; starting a new one")
		}
		return New()
	}
	return sess
}

// save persists sess and returns the cookie to send, if any.
func (m *Manager) save(ctx context.Context, sess *Session) *http.Cookie {
	sess.mu.Lock()
	destroyed := sess.destroyed
	dirty := sess.dirty
	isNew := sess.isNew
	previousID := sess.previousID
	id := sess.id
	sess.dirty = false
	sess.isNew = false
	sess.previousID = ""
	sess.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()

	if previousID != "" {
		if err := m.store.Delete(ctx, previousID); err != nil {
			m.logger.Warn().Err(err).Msg("deleting renewed session failed")
		}
	}

	if destroyed {
		if !isNew {
			if err := m.store.Delete(ctx, id); err != nil {
				m.logger.Warn().Err(err).Msg("deleting session failed")
			}
		}
		return m.cookie("", -1)
	}

	if !dirty {
		return nil
	}
	if err := m.store.Save(ctx, sess); err != nil {
		m.logger.Error().Err(err).Msg("saving session failed")
		return nil
	}
	if isNew {
		return m.cookie(id, 0)
	}
	return nil
}

func (m *Manager) cookie(value string, maxAge int) *http.Cookie {
	// No Expires: the cookie lives as long as the browser session.
	return &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// commitWriter saves the session right before the first byte of the response.
type commitWriter struct {
	http.ResponseWriter
	manager *Manager
	ctx     context.Context
	sess    *Session
	once    sync.Once
}

func (w *commitWriter) commit() {
	w.once.Do(func() {
		if cookie := w.manager.save(w.ctx, w.sess); cookie != nil {
			http.SetCookie(w.ResponseWriter, cookie)
		}
	})
}

func (w *commitWriter) WriteHeader(status int) {
	w.commit()
	w.ResponseWriter.WriteHeader(status)
}

func (w *commitWriter) Write(b []byte) (int, error) {
	w.commit()
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *commitWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
