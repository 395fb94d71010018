package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadValidTwitchConfig(t *testing.T) {
	path := writeConfig(t, `{
		"twitch": {
			"username": "bot",
			"oauth_token": "oauth:abc",
			"channels": [{"name": "chan", "command_prefix": "!"}]
		},
		"global": {"console_port": 7777}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "bot", cfg.Twitch.Username)
	require.Equal(t, 2, cfg.Global.MinMarkovLength)
	require.Equal(t, 5, cfg.Global.MaxMarkovRetries)
}

func TestLoadMissingRequiredKeyFails(t *testing.T) {
	path := writeConfig(t, `{"twitch": {"username": "bot"}, "global": {"console_port": 1}}`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingConsolePortFails(t *testing.T) {
	path := writeConfig(t, `{"global": {}}`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadUnknownKeysIgnored(t *testing.T) {
	path := writeConfig(t, `{"global": {"console_port": 1, "bogus_key": 42}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 1, cfg.Global.ConsolePort)
}

func TestEnvOverlayOverridesSecret(t *testing.T) {
	path := writeConfig(t, `{
		"twitch": {"username": "bot", "oauth_token": "oauth:placeholder"},
		"global": {"console_port": 1}
	}`)
	t.Setenv("IKURA_TWITCH_OAUTH_TOKEN", "oauth:real")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "oauth:real", cfg.Twitch.OAuthToken)
}
