package discord

import (
	"bytes"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithGatewayLog(t *testing.T) {
	prev := discordgo.Logger
	t.Cleanup(func() { discordgo.Logger = prev })

	var buf bytes.Buffer
	b, err := New("token", 1, nil, zerolog.Nop(), WithGatewayLog(zerolog.New(&buf), true))
	require.NoError(t, err)
	assert.Equal(t, discordgo.LogDebug, b.session.LogLevel)

	discordgo.Logger(discordgo.LogWarning, 1, "heartbeat %d missed", 3)
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), "heartbeat 3 missed")

	b, err = New("token", 1, nil, zerolog.Nop(), WithGatewayLog(zerolog.Nop(), false))
	require.NoError(t, err)
	assert.Equal(t, discordgo.LogWarning, b.session.LogLevel)
}

func TestGatewayLevel(t *testing.T) {
	assert.Equal(t, zerolog.ErrorLevel, gatewayLevel(discordgo.LogError))
	assert.Equal(t, zerolog.WarnLevel, gatewayLevel(discordgo.LogWarning))
	assert.Equal(t, zerolog.InfoLevel, gatewayLevel(discordgo.LogInformational))
	assert.Equal(t, zerolog.DebugLevel, gatewayLevel(discordgo.LogDebug))
}
