package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.APIURL)
	assert.Equal(t, "general", cfg.ChatTopic)
	assert.Equal(t, ModePoll, cfg.EntitlementMode)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Zero(t, cfg.PollInterval)
	assert.Equal(t, filepath.Join(os.Getenv("HOME"), ".aqua", "token"), cfg.TokenFile)
	assert.Equal(t, zerolog.InfoLevel, cfg.Level())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("AQUA_API_URL", "https://api.example.com/")
	t.Setenv("AQUA_ENTITLEMENT_MODE", "stream")
	t.Setenv("AQUA_POLL_INTERVAL", "1m")
	t.Setenv("AQUA_TOKEN_FILE", "/tmp/aqua-token")
	t.Setenv("AQUA_LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", cfg.APIURL)
	assert.Equal(t, ModeStream, cfg.EntitlementMode)
	assert.Equal(t, time.Minute, cfg.PollInterval)
	assert.Equal(t, "/tmp/aqua-token", cfg.TokenFile)
	assert.Equal(t, zerolog.DebugLevel, cfg.Level())
}

func TestLoad_InvalidMode(t *testing.T) {
	t.Setenv("AQUA_ENTITLEMENT_MODE", "carrier-pigeon")
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("AQUA_CHAT_TOPIC=hoa\n"), 0o600))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		_ = os.Chdir(wd)
		_ = os.Unsetenv("AQUA_CHAT_TOPIC")
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "hoa", cfg.ChatTopic)
}

func TestLoadDevServer(t *testing.T) {
	t.Setenv("AQUA_DEV_HTTP_PORT", "9001")
	cfg, err := LoadDevServer()
	require.NoError(t, err)
	assert.Equal(t, ":9001", cfg.HTTPAddr())
	assert.Equal(t, "aqua-devserver", cfg.JWTIssuer)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("nonsense"))
	assert.Equal(t, zerolog.DebugLevel, ParseLevel(" DEBUG "))
	assert.Equal(t, zerolog.Disabled, ParseLevel("off"))
}

func TestInitLogger(t *testing.T) {
	prev, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})

	var buf bytes.Buffer
	InitLogger(&buf, zerolog.WarnLevel)
	log.Info().Msg("hidden")
	log.Warn().Str("k", "v").Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "k=v")
}
