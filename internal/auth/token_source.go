package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// TokenSource identifies where the upstream API token was resolved from.
type TokenSource string

const (
	// TokenSourceEnv is AMS_CONSOLE_API_TOKEN.
	TokenSourceEnv TokenSource = "ams_console_api_token"
	// TokenSourceConfigFile is ~/.ams/config.yaml auth.token.
	TokenSourceConfigFile TokenSource = "config_file"
	// TokenSourceNone means the API is called without a bearer token.
	TokenSourceNone TokenSource = "none"

	defaultTokenFilePath = "~/.ams/config.yaml"
)

// TokenResolution contains the resolved token and source.
type TokenResolution struct {
	Token  string
	Source TokenSource
}

// TokenSourceOptions controls token resolution.
type TokenSourceOptions struct {
	// StaticToken wins over everything else; main passes the configured token.
	StaticToken    string
	AllowTokenFile bool
	TokenFilePath  string
}

type tokenFile struct {
	Auth struct {
		Token string `yaml:"token"`
	} `yaml:"auth"`
}

// ResolveToken resolves the AMS API token using deterministic precedence:
// 1) StaticToken
// 2) AMS_CONSOLE_API_TOKEN
// 3) token file auth.token (only when AllowTokenFile=true)
func ResolveToken(opts TokenSourceOptions) (TokenResolution, error) {
	if token := strings.TrimSpace(opts.StaticToken); token != "" {
		return TokenResolution{Token: token, Source: TokenSourceEnv}, nil
	}

	if token := strings.TrimSpace(os.Getenv("AMS_CONSOLE_API_TOKEN")); token != "" {
		return TokenResolution{Token: token, Source: TokenSourceEnv}, nil
	}

	if !opts.AllowTokenFile {
		return TokenResolution{Source: TokenSourceNone}, nil
	}

	path := expandPath(defaultIfEmpty(strings.TrimSpace(opts.TokenFilePath), defaultTokenFilePath))
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		return TokenResolution{Source: TokenSourceNone}, nil
	default:
		return TokenResolution{}, fmt.Errorf("reading token file: %w", err)
	}

	var cfg tokenFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return TokenResolution{}, fmt.Errorf("decoding token file: %w", err)
	}

	token := strings.TrimSpace(cfg.Auth.Token)
	if token == "" {
		return TokenResolution{Source: TokenSourceNone}, nil
	}
	return TokenResolution{Token: token, Source: TokenSourceConfigFile}, nil
}

// TokenRefresher re-reads the token file on every call so a rotated token is
// picked up without a restart. It fits client.Config.TokenRefresh.
func TokenRefresher(opts TokenSourceOptions) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		resolved, err := ResolveToken(opts)
		if err != nil {
			return "", err
		}
		return resolved.Token, nil
	}
}

func defaultIfEmpty(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~/"))
	}
	return filepath.Clean(path)
}
