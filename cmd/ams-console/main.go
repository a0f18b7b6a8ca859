// Package main is the entry point for the ams-console service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ff-monheim/ams-console/internal/audit"
	"github.com/ff-monheim/ams-console/internal/auth"
	"github.com/ff-monheim/ams-console/internal/config"
	"github.com/ff-monheim/ams-console/internal/forms"
	"github.com/ff-monheim/ams-console/internal/metrics"
	"github.com/ff-monheim/ams-console/internal/notify"
	"github.com/ff-monheim/ams-console/internal/policy"
	"github.com/ff-monheim/ams-console/internal/query"
	"github.com/ff-monheim/ams-console/internal/resources"
	"github.com/ff-monheim/ams-console/internal/session"
	"github.com/ff-monheim/ams-console/internal/web"
	"github.com/ff-monheim/ams-console/pkg/client"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// closers are released in reverse order on shutdown.
type closers []func() error

func (c *closers) add(fn func() error) {
	*c = append(*c, fn)
}

func (c closers) close() error {
	var result *multierror.Error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// readinessChecks passes only when every check passes.
type readinessChecks []func(ctx context.Context) error

func (r readinessChecks) check(ctx context.Context) error {
	var result *multierror.Error
	for _, check := range r {
		if err := check(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Str("service", "ams-console").Str("version", version).Logger()

	logger := log.With().Str("component", "main").Logger()
	logger.Info().Str("addr", cfg.ListenAddr).Msg("starting ams-console")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var toClose closers
	var ready readinessChecks

	modeGuard, err := policy.NewGuard(cfg.Mode)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid mode configuration")
	}
	logger.Info().Str("mode", modeGuard.Mode()).Msg("execution policy initialized")

	tokenOpts := auth.TokenSourceOptions{
		StaticToken:    cfg.APIToken,
		AllowTokenFile: cfg.AllowTokenFile,
	}
	resolvedToken, err := auth.ResolveToken(tokenOpts)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to resolve token source")
	}
	if resolvedToken.Token == "" {
		logger.Warn().Msg("no upstream token resolved from AMS_CONSOLE_API_TOKEN or token file")
	} else {
		logger.Info().Str("token_source", string(resolvedToken.Source)).Msg("resolved upstream token source")
	}

	clientCfg := client.Config{
		BaseURL:    cfg.APIURL,
		Token:      resolvedToken.Token,
		Timeout:    cfg.APITimeout,
		MaxRetries: cfg.APIMaxRetries,
	}
	if resolvedToken.Source == auth.TokenSourceConfigFile {
		// Re-read the file per request so rotated tokens apply without a restart.
		clientCfg.Token = ""
		clientCfg.TokenRefresh = auth.TokenRefresher(tokenOpts)
	}
	api, err := client.New(clientCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create AMS client")
	}

	var m *metrics.Metrics
	var mutationCounter resources.MutationCounter
	var cacheObserver query.Observer
	if cfg.MetricsEnabled {
		m = metrics.New()
		mutationCounter = m
		cacheObserver = m
	}

	cache := query.New(query.Options{
		StaleTime:    cfg.CacheStaleTime,
		GCTime:       cfg.CacheGCTime,
		FetchTimeout: cfg.CacheFetchTimeout,
		Logger:       log.With().Str("component", "query").Logger(),
		Observer:     cacheObserver,
	})
	toClose.add(func() error { cache.Close(); return nil })

	var store session.Store
	switch cfg.SessionBackend {
	case config.SessionBackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		redisStore := session.NewRedisStore(rdb, cfg.SessionIdleTTL)
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if pingErr := redisStore.Ping(pingCtx); pingErr != nil {
			logger.Warn().Err(pingErr).Str("addr", cfg.RedisAddr).Msg("redis not reachable yet")
		}
		pingCancel()
		ready = append(ready, redisStore.Ping)
		toClose.add(redisStore.Close)
		store = redisStore
	default:
		memoryStore := session.NewMemoryStore(cfg.SessionIdleTTL)
		toClose.add(memoryStore.Close)
		store = memoryStore
	}
	logger.Info().Str("backend", cfg.SessionBackend).Dur("idle_ttl", cfg.SessionIdleTTL).Msg("session store initialized")

	sessions := session.NewManager(store, session.Options{
		Secure: cfg.CookieSecure,
		Logger: log.With().Str("component", "session").Logger(),
	})

	var provider auth.Provider
	if cfg.DevMode {
		logger.Warn().Str("user", cfg.DevUserEmail).Msg("dev mode: every visitor is signed in without an identity provider")
		provider = auth.NewDevProvider(auth.User{ID: cfg.DevUserID, Name: cfg.DevUserName, Email: cfg.DevUserEmail})
	} else {
		oidcProvider, oidcErr := auth.NewOIDCProvider(ctx, auth.OIDCConfig{
			Authority:             cfg.OIDCAuthority,
			ClientID:              cfg.OIDCClientID,
			ClientSecret:          cfg.OIDCClientSecret,
			RedirectURL:           cfg.OIDCRedirectURL,
			PostLogoutRedirectURL: cfg.OIDCPostLogoutRedirectURL,
			Logger:                log.With().Str("component", "auth").Logger(),
		})
		if oidcErr != nil {
			logger.Fatal().Err(oidcErr).Msg("failed to initialize OIDC provider")
		}
		ready = append(ready, oidcProvider.Ready)
		toClose.add(func() error { oidcProvider.Close(); return nil })
		provider = oidcProvider
	}

	confirmations := policy.NewConfirmations(cfg.ConfirmTTL)
	toClose.add(func() error { confirmations.Close(); return nil })

	entities := resources.All(resources.Deps{
		API:         api,
		Cache:       cache,
		Validator:   forms.NewValidator(),
		Notifier:    notify.SessionNotifier{},
		Guard:       modeGuard,
		Audit:       audit.NewLogger(log.Logger),
		Metrics:     mutationCounter,
		Logger:      log.With().Str("component", "resources").Logger(),
		FormIdleTTL: cfg.FormIdleTTL,
	})
	for _, e := range entities {
		toClose.add(func() error { e.Close(); return nil })
	}

	console, err := web.New(web.Deps{
		Provider:      provider,
		Sessions:      sessions,
		Entities:      entities,
		Guard:         modeGuard,
		Confirmations: confirmations,
		Metrics:       m,
		Logger:        log.Logger,
	}, version, commit, buildDate, web.WithReadinessCheck(ready.check))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build HTTP server")
	}
	toClose.add(func() error { console.Close(); return nil })

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           console.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Str("public_url", cfg.PublicURL).Msg("HTTP server listening")
		if serveErr := srv.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			errCh <- serveErr
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case serveErr := <-errCh:
		logger.Error().Err(serveErr).Msg("HTTP server error")
		exitCode = 1
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error().Err(shutdownErr).Msg("HTTP server shutdown error")
		exitCode = 1
	}
	if closeErr := toClose.close(); closeErr != nil {
		logger.Error().Err(closeErr).Msg("releasing resources failed")
		exitCode = 1
	}
	if exitCode != 0 {
		shutdownCancel()
		os.Exit(exitCode)
	}
	logger.Info().Msg("server stopped gracefully")
}
