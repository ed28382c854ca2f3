package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/sakif/ledgerbot/internal/bot"
)

// interactionAPI is the part of *discordgo.Session the responder calls.
type interactionAPI interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// responder answers one interaction.
type responder struct {
	api         interactionAPI
	interaction *discordgo.Interaction
}

var _ bot.Responder = (*responder)(nil)

// allowedMentions lets replies ping the users they name with <@id> and
// nothing else. Handles are free text, so "@everyone" or a role mention can
// end up in a public message.
func allowedMentions() *discordgo.MessageAllowedMentions {
	return &discordgo.MessageAllowedMentions{
		Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers},
	}
}

func newResponder(api interactionAPI, in *discordgo.Interaction) *responder {
	return &responder{api: api, interaction: in}
}

func (r *responder) Reply(ctx context.Context, msg bot.Message) error {
	return r.api.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:         msg.Content,
			Flags:           messageFlags(msg.Ephemeral),
			AllowedMentions: allowedMentions(),
		},
	}, discordgo.WithContext(ctx))
}

func (r *responder) Defer(ctx context.Context, ephemeral bool) error {
	return r.api.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: messageFlags(ephemeral),
		},
	}, discordgo.WithContext(ctx))
}

// FollowUp edits the deferred response. Visibility was fixed by Defer.
func (r *responder) FollowUp(ctx context.Context, msg bot.Message) error {
	content := msg.Content
	_, err := r.api.InteractionResponseEdit(r.interaction, &discordgo.WebhookEdit{
		Content:         &content,
		AllowedMentions: allowedMentions(),
	}, discordgo.WithContext(ctx))
	return err
}

func (r *responder) OpenModal(ctx context.Context, modal bot.Modal) error {
	return r.api.InteractionRespond(r.interaction, modalResponse(modal), discordgo.WithContext(ctx))
}
