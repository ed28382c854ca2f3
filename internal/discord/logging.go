package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

// Option customizes a Bot.
type Option func(*Bot)

// WithGatewayLog sends discordgo's own log output (heartbeats, reconnects,
// rate limits) to l. verbose turns on its debug chatter, which is only worth
// it when l writes somewhere other than the main log.
//
// discordgo has one package-level logger, so the last Bot created wins.
func WithGatewayLog(l zerolog.Logger, verbose bool) Option {
	return func(b *Bot) {
		b.session.LogLevel = discordgo.LogWarning
		if verbose {
			b.session.LogLevel = discordgo.LogDebug
		}
		discordgo.Logger = libraryLogger(l)
	}
}

func libraryLogger(l zerolog.Logger) func(msgL, caller int, format string, a ...interface{}) {
	return func(msgL, _ int, format string, a ...interface{}) {
		l.WithLevel(gatewayLevel(msgL)).Msg(fmt.Sprintf(format, a...))
	}
}

func gatewayLevel(msgL int) zerolog.Level {
	switch msgL {
	case discordgo.LogError:
		return zerolog.ErrorLevel
	case discordgo.LogWarning:
		return zerolog.WarnLevel
	case discordgo.LogInformational:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}
