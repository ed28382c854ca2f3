// Package discord connects the command router to a Discord guild.
package discord

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/sakif/ledgerbot/internal/bot"
)

// Bot owns the gateway session.
type Bot struct {
	session *discordgo.Session
	router  *bot.Router
	guildID string
	logger  zerolog.Logger
}

// New prepares a session; Open connects it.
func New(token string, guildID int64, router *bot.Router, logger zerolog.Logger, opts ...Option) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: creating session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers

	b := &Bot{
		session: session,
		router:  router,
		guildID: strconv.FormatInt(guildID, 10),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	session.AddHandler(b.onReady)
	session.AddHandler(b.onInteraction)
	return b, nil
}

// Open connects to the gateway. Commands are synced once Ready arrives.
func (b *Bot) Open() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("discord: opening gateway: %w", err)
	}
	return nil
}

func (b *Bot) Close() error {
	return b.session.Close()
}

// onReady replaces the guild's command set with the router's.
func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info().
		Str("user", r.User.Username).
		Str("guild", b.guildID).
		Msg("connected to gateway")

	cmds := applicationCommands(b.router.Definitions())
	synced, err := s.ApplicationCommandBulkOverwrite(r.User.ID, b.guildID, cmds)
	if err != nil {
		b.logger.Error().Err(err).Msg("syncing guild commands failed")
		return
	}
	b.logger.Info().Int("commands", len(synced)).Msg("guild commands synced")
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	id := xid.New().String()
	log := b.logger.With().Str("request_id", id).Logger()

	req, err := newRequest(i, id)
	if err != nil {
		log.Warn().Err(err).Msg("ignoring interaction")
		return
	}

	ctx := log.WithContext(context.Background())
	if err := b.router.Dispatch(ctx, req, newResponder(s, i.Interaction)); err != nil {
		log.Error().Err(err).Str("command", req.Command).Msg("dispatch failed")
	}
}
