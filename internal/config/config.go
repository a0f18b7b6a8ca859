// Package config loads ams-console configuration from environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// SessionBackendMemory keeps sessions in process memory.
	SessionBackendMemory = "memory"
	// SessionBackendRedis keeps sessions in Redis.
	SessionBackendRedis = "redis"

	defaultListenAddr     = ":8080"
	defaultMode           = "read-write"
	defaultPublicURL      = "http://localhost:8080"
	defaultAPIURL         = "http://localhost:3000"
	defaultAPITimeout     = 30 * time.Second
	defaultAPIRetries     = 3
	defaultStaleTime      = 0
	defaultGCTime         = 5 * time.Minute
	defaultFetchTimeout   = 15 * time.Second
	defaultSessionIdleTTL = 8 * time.Hour
	defaultFormIdleTTL    = 30 * time.Minute
	defaultConfirmTTL     = 5 * time.Minute
	defaultRedisAddr      = "localhost:6379"
	defaultDevUserID      = "00000000-0000-0000-0000-000000000001"
	defaultDevUserName    = "Entwickler"
	defaultDevUserEmail   = "dev@localhost"
)

// Config holds console runtime configuration.
type Config struct {
	ListenAddr string
	PublicURL  string
	LogLevel   string

	// Mode is read-only or read-write; policy.NewGuard validates it.
	Mode string

	APIURL        string
	APIToken      string
	APITimeout    time.Duration
	APIMaxRetries int

	// AllowTokenFile lets the upstream token resolver fall back to ~/.ams/config.yaml.
	AllowTokenFile bool

	OIDCAuthority             string
	OIDCClientID              string
	OIDCClientSecret          string
	OIDCRedirectURL           string
	OIDCPostLogoutRedirectURL string

	SessionBackend string
	SessionIdleTTL time.Duration
	CookieSecure   bool
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	CacheStaleTime    time.Duration
	CacheGCTime       time.Duration
	CacheFetchTimeout time.Duration
	FormIdleTTL       time.Duration
	ConfirmTTL        time.Duration

	MetricsEnabled bool
	DevMode        bool

	DevUserID    string
	DevUserName  string
	DevUserEmail string
}

// Load returns configuration parsed from environment variables.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:                envOrDefault("AMS_CONSOLE_LISTEN_ADDR", defaultListenAddr),
		PublicURL:                 strings.TrimRight(envOrDefault("AMS_CONSOLE_PUBLIC_URL", defaultPublicURL), "/"),
		LogLevel:                  strings.ToLower(strings.TrimSpace(envOrDefault("AMS_CONSOLE_LOG_LEVEL", "info"))),
		Mode:                      strings.ToLower(strings.TrimSpace(envOrDefault("AMS_CONSOLE_MODE", defaultMode))),
		APIURL:                    strings.TrimSpace(envOrDefault("AMS_CONSOLE_API_URL", defaultAPIURL)),
		APIToken:                  strings.TrimSpace(os.Getenv("AMS_CONSOLE_API_TOKEN")),
		APITimeout:                envPositiveDuration("AMS_CONSOLE_API_TIMEOUT", defaultAPITimeout),
		APIMaxRetries:             envPositiveInt("AMS_CONSOLE_API_MAX_RETRIES", defaultAPIRetries),
		AllowTokenFile:            envBool("AMS_CONSOLE_ALLOW_TOKEN_FILE", false),
		OIDCAuthority:             strings.TrimSpace(os.Getenv("AMS_CONSOLE_OIDC_AUTHORITY")),
		OIDCClientID:              strings.TrimSpace(os.Getenv("AMS_CONSOLE_OIDC_CLIENT_ID")),
		OIDCClientSecret:          strings.TrimSpace(os.Getenv("AMS_CONSOLE_OIDC_CLIENT_SECRET")),
		OIDCRedirectURL:           strings.TrimSpace(os.Getenv("AMS_CONSOLE_OIDC_REDIRECT_URL")),
		OIDCPostLogoutRedirectURL: strings.TrimSpace(os.Getenv("AMS_CONSOLE_OIDC_POST_LOGOUT_REDIRECT_URL")),
		SessionBackend:            strings.ToLower(strings.TrimSpace(envOrDefault("AMS_CONSOLE_SESSION_BACKEND", SessionBackendMemory))),
		SessionIdleTTL:            envPositiveDuration("AMS_CONSOLE_SESSION_IDLE_TTL", defaultSessionIdleTTL),
		CookieSecure:              envBool("AMS_CONSOLE_COOKIE_SECURE", true),
		RedisAddr:                 envOrDefault("AMS_CONSOLE_REDIS_ADDR", defaultRedisAddr),
		RedisPassword:             os.Getenv("AMS_CONSOLE_REDIS_PASSWORD"),
		RedisDB:                   envNonNegativeInt("AMS_CONSOLE_REDIS_DB", 0),
		CacheStaleTime:            envNonNegativeDuration("AMS_CONSOLE_CACHE_STALE_TIME", defaultStaleTime),
		CacheGCTime:               envPositiveDuration("AMS_CONSOLE_CACHE_GC_TIME", defaultGCTime),
		CacheFetchTimeout:         envPositiveDuration("AMS_CONSOLE_CACHE_FETCH_TIMEOUT", defaultFetchTimeout),
		FormIdleTTL:               envPositiveDuration("AMS_CONSOLE_FORM_IDLE_TTL", defaultFormIdleTTL),
		ConfirmTTL:                envPositiveDuration("AMS_CONSOLE_CONFIRM_TTL", defaultConfirmTTL),
		MetricsEnabled:            envBool("AMS_CONSOLE_METRICS_ENABLED", true),
		DevMode:                   envBool("AMS_CONSOLE_DEV_MODE", false),
		DevUserID:                 envOrDefault("AMS_CONSOLE_DEV_USER_ID", defaultDevUserID),
		DevUserName:               envOrDefault("AMS_CONSOLE_DEV_USER_NAME", defaultDevUserName),
		DevUserEmail:              envOrDefault("AMS_CONSOLE_DEV_USER_EMAIL", defaultDevUserEmail),
	}

	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if cfg.APIURL == "" {
		return Config{}, fmt.Errorf("AMS_CONSOLE_API_URL is required")
	}
	if err := requireAbsoluteURL("AMS_CONSOLE_API_URL", cfg.APIURL); err != nil {
		return Config{}, err
	}
	if err := requireAbsoluteURL("AMS_CONSOLE_PUBLIC_URL", cfg.PublicURL); err != nil {
		return Config{}, err
	}

	switch cfg.SessionBackend {
	case SessionBackendMemory:
	case SessionBackendRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return Config{}, fmt.Errorf("AMS_CONSOLE_REDIS_ADDR is required when AMS_CONSOLE_SESSION_BACKEND=%s", SessionBackendRedis)
		}
	default:
		return Config{}, fmt.Errorf(
			"invalid AMS_CONSOLE_SESSION_BACKEND %q (allowed: %s|%s)",
			cfg.SessionBackend, SessionBackendMemory, SessionBackendRedis,
		)
	}

	if !cfg.DevMode {
		if cfg.OIDCAuthority == "" {
			return Config{}, fmt.Errorf("AMS_CONSOLE_OIDC_AUTHORITY is required unless AMS_CONSOLE_DEV_MODE=true")
		}
		if cfg.OIDCClientID == "" {
			return Config{}, fmt.Errorf("AMS_CONSOLE_OIDC_CLIENT_ID is required unless AMS_CONSOLE_DEV_MODE=true")
		}
		if err := requireAbsoluteURL("AMS_CONSOLE_OIDC_AUTHORITY", cfg.OIDCAuthority); err != nil {
			return Config{}, err
		}
	}
	if cfg.OIDCRedirectURL == "" {
		cfg.OIDCRedirectURL = cfg.PublicURL + "/auth/callback"
	}
	if cfg.OIDCPostLogoutRedirectURL == "" {
		cfg.OIDCPostLogoutRedirectURL = cfg.PublicURL + "/"
	}

	return cfg, nil
}

func requireAbsoluteURL(key, raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid %s %q (expected absolute http(s) URL)", key, raw)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid %s %q (expected absolute http(s) URL)", key, raw)
	}
	return nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		switch strings.ToLower(v) {
		case "yes", "on", "ja":
			return true
		case "no", "off", "nein":
			return false
		default:
			return defaultVal
		}
	}
	return b
}

func envPositiveInt(key string, defaultVal int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return defaultVal
	}
	return parsed
}

func envNonNegativeInt(key string, defaultVal int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed < 0 {
		return defaultVal
	}
	return parsed
}

func envPositiveDuration(key string, defaultVal time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	parsed, err := time.ParseDuration(v)
	if err != nil || parsed <= 0 {
		return defaultVal
	}
	return parsed
}

// envNonNegativeDuration accepts zero, which the cache uses to mean "stale immediately".
func envNonNegativeDuration(key string, defaultVal time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	parsed, err := time.ParseDuration(v)
	if err != nil || parsed < 0 {
		return defaultVal
	}
	return parsed
}
