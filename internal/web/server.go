// Package web provides the console's HTTP server: the page routes for the
// AMS entities, the login flow and the operational endpoints.
package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/ff-monheim/ams-console/internal/auth"
	"github.com/ff-monheim/ams-console/internal/metrics"
	"github.com/ff-monheim/ams-console/internal/policy"
	"github.com/ff-monheim/ams-console/internal/resources"
	"github.com/ff-monheim/ams-console/internal/session"
)

const (
	defaultRenderTimeout = 3 * time.Second
	maxFormBytes         = 64 << 10
)

// Deps are the collaborators of the server.
type Deps struct {
	Provider      auth.Provider
	Sessions      *session.Manager
	Entities      []resources.Entity
	Guard         *policy.Guard
	Confirmations *policy.Confirmations
	Metrics       *metrics.Metrics
	Logger        zerolog.Logger
}

// Server wraps HTTP routes and dependencies.
type Server struct {
	provider      auth.Provider
	sessions      *session.Manager
	entities      []resources.Entity
	guard         *policy.Guard
	confirmations *policy.Confirmations
	metrics       *metrics.Metrics
	logger        zerolog.Logger

	version   string
	commit    string
	buildDate string

	// renderTimeout bounds how long a page waits for a first load.
	renderTimeout time.Duration
	readiness     func(ctx context.Context) error
	templates     tmplCache
	subscriptions []string
	router        chi.Router
}

// Option configures server construction.
type Option func(*Server)

// WithReadinessCheck sets the check behind /readiness.
func WithReadinessCheck(check func(ctx context.Context) error) Option {
	return func(s *Server) {
		s.readiness = check
	}
}

// WithRenderTimeout sets how long list pages wait for data before rendering
// the loading state.
func WithRenderTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.renderTimeout = d
		}
	}
}

// New constructs the console server.
func New(deps Deps, version, commit, buildDate string, opts ...Option) (*Server, error) {
	if deps.Provider == nil {
		return nil, fmt.Errorf("web: auth provider is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("web: session manager is required")
	}
	if deps.Confirmations == nil {
		return nil, fmt.Errorf("web: confirmation store is required")
	}

	templates, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	s := &Server{
		provider:      deps.Provider,
		sessions:      deps.Sessions,
		entities:      deps.Entities,
		guard:         deps.Guard,
		confirmations: deps.Confirmations,
		metrics:       deps.Metrics,
		logger:        deps.Logger.With().Str("component", "web").Logger(),
		version:       version,
		commit:        commit,
		buildDate:     buildDate,
		renderTimeout: defaultRenderTimeout,
		templates:     templates,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.subscribe()
	s.router = s.buildRouter()
	return s, nil
}

// Router returns the configured router.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close removes the provider subscriptions.
func (s *Server) Close() {
	for _, id := range s.subscriptions {
		s.provider.Unsubscribe(id)
	}
	s.subscriptions = nil
}

// subscribe keeps the session's active account and open forms in step with
// the login state.
func (s *Server) subscribe() {
	s.subscriptions = append(s.subscriptions,
		s.provider.Subscribe(auth.EventLoginSuccess, func(ev auth.Event) {
			if ev.Session == nil {
				return
			}
			if _, ok := auth.ActiveAccount(ev.Session); !ok {
				if accounts := s.provider.Accounts(ev.Session); len(accounts) > 0 {
					auth.SetActiveAccount(ev.Session, accounts[0].HomeAccountID)
				}
			}
			s.logger.Info().Str("account", ev.Account.HomeAccountID).Msg("login succeeded")
		}),
		s.provider.Subscribe(auth.EventLogout, func(ev auth.Event) {
			if ev.Session == nil {
				return
			}
			for _, e := range s.entities {
				e.DropSession(ev.Session.ID())
			}
			s.logger.Info().Str("account", ev.Account.HomeAccountID).Msg("logged out")
		}),
	)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.RequestIDHandler("request_id", "X-Request-Id"))
	r.Use(hlog.RemoteAddrHandler("remote_addr"))
	r.Use(hlog.AccessHandler(accessLog))
	r.Use(s.recoverer)
	r.Use(decodePath)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}

	r.Group(func(r chi.Router) {
		s.registerHealthRoutes(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.sessions.Middleware)
		r.Use(s.loadUser)

		r.Get("/login", s.provider.LoginRedirect)
		r.Get("/auth/callback", s.handleCallback)
		r.Get("/logout", s.provider.LogoutRedirect)

		r.Group(func(r chi.Router) {
			r.Use(s.requireLogin)
			r.Use(middleware.RequestSize(maxFormBytes))

			r.Get("/", s.handleHome)
			for _, e := range s.entities {
				h := &entityHandler{server: s, entity: e}
				r.Route(e.Meta().Path, h.routes)
			}
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.renderError(w, r, http.StatusNotFound, "Die Seite wurde nicht gefunden.")
	})
	return r
}
