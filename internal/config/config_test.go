package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"PORT", "CORS_ALLOWED_ORIGINS", "COOKIE_SECURE", "LOG_LEVEL", "LLM_PROVIDER", "ALLOW_SESSION_API_KEY",
	"GEMINI_API_KEY", "GEMINI_MODEL", "GEMINI_TEMPERATURE",
	"ARK_API_KEY", "ARK_ACCESS_KEY", "ARK_SECRET_KEY", "ARK_MODEL", "ARK_TEMPERATURE", "ARK_TOP_P", "ARK_MAX_TOKENS",
	"PREDICTOR_ARTIFACT", "PREDICTOR_URL", "PREDICTOR_TIMEOUT",
	"CHAT_TYPING_DELAY", "CHAT_RATE_LIMIT", "CHAT_RATE_BURST", "SESSION_TTL", "AUDIT_DB_PATH",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.False(t, cfg.Server.SecureCookies)
	assert.Equal(t, ProviderGemini, cfg.LLM.Provider)
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM.Gemini.Model)
	assert.True(t, cfg.LLM.AllowSessionKey)
	assert.Equal(t, "model.yaml", cfg.Predictor.ArtifactPath)
	assert.Equal(t, 10*time.Second, cfg.Predictor.Timeout)
	assert.Equal(t, time.Second, cfg.Chat.TypingDelay)
	assert.Equal(t, 1.0, cfg.Chat.RateLimit)
	assert.Equal(t, 5, cfg.Chat.RateBurst)
	assert.Equal(t, time.Hour, cfg.Session.TTL)
	assert.False(t, cfg.Audit.Enabled())
	assert.False(t, cfg.Log.Development())
}

func TestLoadPicksArkWhenOnlyArkConfigured(t *testing.T) {
	clearEnv(t)
	t.Setenv("ARK_API_KEY", "k")
	t.Setenv("ARK_MODEL", "doubao")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ProviderArk, cfg.LLM.Provider)
	assert.True(t, cfg.LLM.Ark.Enabled())
}

func TestLoadPrefersGeminiKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "g")
	t.Setenv("ARK_API_KEY", "k")
	t.Setenv("ARK_MODEL", "doubao")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ProviderGemini, cfg.LLM.Provider)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"PORT":              "80 80",
		"LLM_PROVIDER":      "openai",
		"CHAT_TYPING_DELAY": "soon",
		"ARK_MAX_TOKENS":    "many",
		"SESSION_TTL":       "-1m",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("CHAT_TYPING_DELAY", "0s")
	t.Setenv("CHAT_RATE_BURST", "0")
	t.Setenv("AUDIT_DB_PATH", "/tmp/audit.db")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("GEMINI_TEMPERATURE", "0.4")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
	assert.Equal(t, time.Duration(0), cfg.Chat.TypingDelay)
	assert.Equal(t, 1, cfg.Chat.RateBurst)
	assert.True(t, cfg.Audit.Enabled())
	assert.True(t, cfg.Log.Development())
	require.NotNil(t, cfg.LLM.Gemini.Temperature)
	assert.Equal(t, 0.4, *cfg.LLM.Gemini.Temperature)
}
