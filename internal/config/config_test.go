package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("DATABASE_URL", "sqlite://data/ledger.db")
	t.Setenv("ADMIN_ID", "123456789012345678")
}

func TestParse_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "token", cfg.Discord.Token)
	assert.Equal(t, int64(559879519087886356), cfg.Discord.GuildID)
	assert.Equal(t, int64(123456789012345678), cfg.Discord.AdminID)
	assert.Empty(t, cfg.Discord.LogFile)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Store.Timeout)
	assert.Equal(t, time.Minute, cfg.Store.ReconnectInterval)
	assert.Equal(t, 8, cfg.Store.WorkerPoolSize)
	assert.Equal(t, "America/New_York", cfg.Location().String())
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, 10*time.Minute, cfg.Redis.TTL)
	assert.False(t, cfg.Debug)
}

func TestParse_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "8080")
	t.Setenv("GUILD_ID", "42")
	t.Setenv("STORE_TIMEOUT", "3s")
	t.Setenv("ACTIVITY_TIMEZONE", "Europe/London")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("DEBUG", "true")
	t.Setenv("DISCORD_LOG_FILE", "discord.log")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(42), cfg.Discord.GuildID)
	assert.Equal(t, 3*time.Second, cfg.Store.Timeout)
	assert.Equal(t, "Europe/London", cfg.Location().String())
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "discord.log", cfg.Discord.LogFile)
}

func TestParse_MissingRequired(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("ADMIN_ID", "")

	_, err := Parse()
	assert.Error(t, err)
}

func TestParse_InvalidValues(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"bad timezone", "ACTIVITY_TIMEZONE", "Mars/Olympus_Mons"},
		{"port out of range", "PORT", "70000"},
		{"zero pool", "WORKER_POOL_SIZE", "0"},
		{"negative admin", "ADMIN_ID", "-1"},
		{"non-numeric guild", "GUILD_ID", "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.value)

			_, err := Parse()
			assert.Error(t, err)
		})
	}
}
