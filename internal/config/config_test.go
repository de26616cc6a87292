package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("FUNPAY_GOLDEN_KEY", "abc123")
	t.Setenv("FUNPAY_USER_AGENT", "Mozilla/5.0")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "abc123", cfg.GoldenKey)
	assert.Equal(t, 6, cfg.PollInterval)
	assert.True(t, cfg.ResumeOnError)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "Europe/Moscow", cfg.Timezone)
	assert.False(t, cfg.TelegramEnabled())
	assert.False(t, cfg.SupabaseEnabled())
	assert.False(t, cfg.GeminiEnabled())
}

func TestLoadRequiresGoldenKey(t *testing.T) {
	t.Setenv("FUNPAY_GOLDEN_KEY", "")
	t.Setenv("FUNPAY_USER_AGENT", "Mozilla/5.0")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	setRequired(t)
	t.Setenv("LOG_LEVEL", "verbose")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadTelegramNeedsChatID(t *testing.T) {
	setRequired(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("TELEGRAM_CHAT_ID", "42")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.TelegramEnabled())
	assert.Equal(t, int64(42), cfg.TelegramChatID)
}

func TestLoadParsesOptionalSettings(t *testing.T) {
	setRequired(t)
	t.Setenv("POLL_INTERVAL", "10")
	t.Setenv("DISABLE_ORDER_REQUESTS", "true")
	t.Setenv("RESUME_ON_ERROR", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.PollInterval)
	assert.True(t, cfg.DisableOrderRequests)
	assert.False(t, cfg.ResumeOnError)
}
