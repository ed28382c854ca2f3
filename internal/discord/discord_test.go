package discord

import (
	"context"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/ledgerbot/internal/bot"
)

func TestApplicationCommand(t *testing.T) {
	def := bot.Definition{
		Name:        "add-reward",
		Description: "Gives a reward.",
		AdminOnly:   true,
		Options: []bot.OptionDef{
			{Name: "reward", Description: "Reward type", Type: bot.OptionString, Required: true,
				Choices: []bot.Choice{{Name: "Tier List", Value: "tier_list_count"}}},
			{Name: "user", Description: "Registered user", Type: bot.OptionUser},
		},
	}

	cmd := applicationCommand(def)

	assert.Equal(t, "add-reward", cmd.Name)
	assert.Equal(t, "Gives a reward.", cmd.Description)
	require.Len(t, cmd.Options, 2)
	assert.Equal(t, discordgo.ApplicationCommandOptionString, cmd.Options[0].Type)
	assert.True(t, cmd.Options[0].Required)
	require.Len(t, cmd.Options[0].Choices, 1)
	assert.Equal(t, "tier_list_count", cmd.Options[0].Choices[0].Value)
	assert.Equal(t, discordgo.ApplicationCommandOptionUser, cmd.Options[1].Type)
	assert.False(t, cmd.Options[1].Required)
}

func TestNewRequest_Command(t *testing.T) {
	i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: discordgo.InteractionApplicationCommand,
		Member: &discordgo.Member{
			Nick: "Ali",
			User: &discordgo.User{ID: "1001", Username: "alice"},
		},
		Data: discordgo.ApplicationCommandInteractionData{
			Name: "add-reward",
			Options: []*discordgo.ApplicationCommandInteractionDataOption{
				{Name: "reward", Type: discordgo.ApplicationCommandOptionString, Value: "tier_list_count"},
				{Name: "user", Type: discordgo.ApplicationCommandOptionUser, Value: "2002"},
			},
			Resolved: &discordgo.ApplicationCommandInteractionDataResolved{
				Users: map[string]*discordgo.User{
					"2002": {ID: "2002", Username: "bob", GlobalName: "Bobby"},
				},
			},
		},
	}}

	req, err := newRequest(i, "req-1")
	require.NoError(t, err)

	assert.Equal(t, "req-1", req.ID)
	assert.Equal(t, "add-reward", req.Command)
	assert.Equal(t, bot.User{ID: 1001, Name: "alice", DisplayName: "Ali"}, req.Caller)
	assert.Equal(t, "tier_list_count", req.Option("reward"))

	u, ok := req.UserOption("user")
	require.True(t, ok)
	assert.Equal(t, bot.User{ID: 2002, Name: "bob", DisplayName: "Bobby"}, u)
}

func TestNewRequest_ModalSubmit(t *testing.T) {
	i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: discordgo.InteractionModalSubmit,
		User: &discordgo.User{ID: "1001", Username: "alice"},
		Data: discordgo.ModalSubmitInteractionData{
			CustomID: "register",
			Components: []discordgo.MessageComponent{
				&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					&discordgo.TextInput{CustomID: "handle", Value: "Shroud"},
				}},
			},
		},
	}}

	req, err := newRequest(i, "req-2")
	require.NoError(t, err)

	assert.Equal(t, "register", req.ModalID)
	assert.Equal(t, "Shroud", req.Fields["handle"])
	assert.Equal(t, int64(1001), req.Caller.ID)
}

func TestNewRequest_Errors(t *testing.T) {
	_, err := newRequest(nil, "x")
	assert.Error(t, err)

	_, err = newRequest(&discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: discordgo.InteractionPing,
		User: &discordgo.User{ID: "1"},
	}}, "x")
	assert.ErrorIs(t, err, errUnsupportedInteraction)

	_, err = newRequest(&discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: discordgo.InteractionApplicationCommand,
		Data: discordgo.ApplicationCommandInteractionData{Name: "hello"},
	}}, "x")
	assert.Error(t, err, "interaction without a user")

	_, err = newRequest(&discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: discordgo.InteractionApplicationCommand,
		User: &discordgo.User{ID: "not-a-snowflake"},
		Data: discordgo.ApplicationCommandInteractionData{Name: "hello"},
	}}, "x")
	assert.Error(t, err)
}

// fakeAPI records responses.
type fakeAPI struct {
	responses []*discordgo.InteractionResponse
	edits     []*discordgo.WebhookEdit
}

func (f *fakeAPI) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	f.responses = append(f.responses, resp)
	return nil
}

func (f *fakeAPI) InteractionResponseEdit(_ *discordgo.Interaction, edit *discordgo.WebhookEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.edits = append(f.edits, edit)
	return &discordgo.Message{}, nil
}

func TestResponder(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{}
	r := newResponder(api, &discordgo.Interaction{})

	require.NoError(t, r.Reply(ctx, bot.Message{Content: "hi", Ephemeral: true}))
	require.NoError(t, r.Defer(ctx, false))
	require.NoError(t, r.FollowUp(ctx, bot.Message{Content: "done"}))
	require.NoError(t, r.OpenModal(ctx, bot.Modal{
		ID:     "register",
		Title:  "Register",
		Fields: []bot.TextField{{ID: "handle", Label: "Handle", Required: true, MaxLength: 50}},
	}))

	require.Len(t, api.responses, 3)
	assert.Equal(t, discordgo.InteractionResponseChannelMessageWithSource, api.responses[0].Type)
	assert.Equal(t, "hi", api.responses[0].Data.Content)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, api.responses[0].Data.Flags)

	assert.Equal(t, discordgo.InteractionResponseDeferredChannelMessageWithSource, api.responses[1].Type)
	assert.Equal(t, discordgo.MessageFlags(0), api.responses[1].Data.Flags)

	modal := api.responses[2]
	assert.Equal(t, discordgo.InteractionResponseModal, modal.Type)
	assert.Equal(t, "register", modal.Data.CustomID)
	require.Len(t, modal.Data.Components, 1)
	row := modal.Data.Components[0].(discordgo.ActionsRow)
	input := row.Components[0].(discordgo.TextInput)
	assert.Equal(t, "handle", input.CustomID)
	assert.Equal(t, 50, input.MaxLength)

	require.Len(t, api.edits, 1)
	assert.Equal(t, "done", *api.edits[0].Content)
}

func TestResponder_OnlyUserMentionsPing(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{}
	r := newResponder(api, &discordgo.Interaction{})

	require.NoError(t, r.Reply(ctx, bot.Message{Content: "@everyone"}))
	require.NoError(t, r.FollowUp(ctx, bot.Message{Content: "**Rewards for Alice** (@everyone)"}))

	want := []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers}

	require.Len(t, api.responses, 1)
	require.NotNil(t, api.responses[0].Data.AllowedMentions)
	assert.Equal(t, want, api.responses[0].Data.AllowedMentions.Parse)

	require.Len(t, api.edits, 1)
	require.NotNil(t, api.edits[0].AllowedMentions)
	assert.Equal(t, want, api.edits[0].AllowedMentions.Parse)
}
