package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveToken_PrefersStaticToken(t *testing.T) {
	t.Setenv("AMS_CONSOLE_API_TOKEN", "env-token")

	resolved, err := ResolveToken(TokenSourceOptions{StaticToken: " static "})
	require.NoError(t, err)
	require.Equal(t, "static", resolved.Token)
	require.Equal(t, TokenSourceEnv, resolved.Source)
}

func TestResolveToken_FallsBackToEnv(t *testing.T) {
	t.Setenv("AMS_CONSOLE_API_TOKEN", "env-token")

	resolved, err := ResolveToken(TokenSourceOptions{})
	require.NoError(t, err)
	require.Equal(t, "env-token", resolved.Token)
	require.Equal(t, TokenSourceEnv, resolved.Source)
}

func TestResolveToken_UsesTokenFileWhenAllowed(t *testing.T) {
	t.Setenv("AMS_CONSOLE_API_TOKEN", "")

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, writeFile(configPath, []byte("auth:\n  token: file-token\n")))

	resolved, err := ResolveToken(TokenSourceOptions{AllowTokenFile: true, TokenFilePath: configPath})
	require.NoError(t, err)
	require.Equal(t, "file-token", resolved.Token)
	require.Equal(t, TokenSourceConfigFile, resolved.Source)
}

func TestResolveToken_IgnoresTokenFileWhenNotAllowed(t *testing.T) {
	t.Setenv("AMS_CONSOLE_API_TOKEN", "")

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, writeFile(configPath, []byte("auth:\n  token: file-token\n")))

	resolved, err := ResolveToken(TokenSourceOptions{TokenFilePath: configPath})
	require.NoError(t, err)
	require.Equal(t, "", resolved.Token)
	require.Equal(t, TokenSourceNone, resolved.Source)
}

func TestResolveToken_MissingAndBrokenFiles(t *testing.T) {
	t.Setenv("AMS_CONSOLE_API_TOKEN", "")
	dir := t.TempDir()

	resolved, err := ResolveToken(TokenSourceOptions{AllowTokenFile: true, TokenFilePath: filepath.Join(dir, "missing.yaml")})
	require.NoError(t, err)
	require.Equal(t, TokenSourceNone, resolved.Source)

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, writeFile(broken, []byte("auth: [unclosed\n")))
	_, err = ResolveToken(TokenSourceOptions{AllowTokenFile: true, TokenFilePath: broken})
	require.Error(t, err)
	require.Contains(t, err.Error(), "decoding token file")
}

func TestTokenRefresher_PicksUpRotation(t *testing.T) {
	t.Setenv("AMS_CONSOLE_API_TOKEN", "")

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, writeFile(configPath, []byte("auth:\n  token: first\n")))
	refresh := TokenRefresher(TokenSourceOptions{AllowTokenFile: true, TokenFilePath: configPath})

	token, err := refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, "first", token)

	require.NoError(t, writeFile(configPath, []byte("auth:\n  token: second\n")))
	token, err = refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, "second", token)
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o600)
}
