package discord

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/bwmarrin/discordgo"

	"github.com/sakif/ledgerbot/internal/bot"
)

// applicationCommand converts a command definition to its registration form.
func applicationCommand(def bot.Definition) *discordgo.ApplicationCommand {
	cmd := &discordgo.ApplicationCommand{
		Name:        def.Name,
		Description: def.Description,
	}
	for _, o := range def.Options {
		opt := &discordgo.ApplicationCommandOption{
			Name:        o.Name,
			Description: o.Description,
			Required:    o.Required,
			Type:        discordgo.ApplicationCommandOptionString,
		}
		if o.Type == bot.OptionUser {
			opt.Type = discordgo.ApplicationCommandOptionUser
		}
		for _, c := range o.Choices {
			opt.Choices = append(opt.Choices, &discordgo.ApplicationCommandOptionChoice{Name: c.Name, Value: c.Value})
		}
		cmd.Options = append(cmd.Options, opt)
	}
	return cmd
}

func applicationCommands(defs []bot.Definition) []*discordgo.ApplicationCommand {
	cmds := make([]*discordgo.ApplicationCommand, 0, len(defs))
	for _, d := range defs {
		cmds = append(cmds, applicationCommand(d))
	}
	return cmds
}

var errUnsupportedInteraction = errors.New("discord: unsupported interaction type")

// newRequest converts a command invocation or modal submission.
func newRequest(i *discordgo.InteractionCreate, id string) (*bot.Request, error) {
	if i == nil || i.Interaction == nil {
		return nil, errors.New("discord: empty interaction")
	}

	caller, err := interactionUser(i.Interaction)
	if err != nil {
		return nil, err
	}

	req := &bot.Request{
		ID:      id,
		Caller:  caller,
		Options: make(map[string]string),
		Users:   make(map[string]bot.User),
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		req.Command = data.Name
		for _, o := range data.Options {
			if err := addOption(req, o, data.Resolved); err != nil {
				return nil, err
			}
		}
	case discordgo.InteractionModalSubmit:
		data := i.ModalSubmitData()
		req.ModalID = data.CustomID
		req.Fields = make(map[string]string)
		collectInputs(data.Components, req.Fields)
	default:
		return nil, fmt.Errorf("%w: %v", errUnsupportedInteraction, i.Type)
	}
	return req, nil
}

func interactionUser(in *discordgo.Interaction) (bot.User, error) {
	var (
		u    *discordgo.User
		nick string
	)
	switch {
	case in.Member != nil && in.Member.User != nil:
		u, nick = in.Member.User, in.Member.Nick
	case in.User != nil:
		u = in.User
	default:
		return bot.User{}, errors.New("discord: interaction has no user")
	}
	return convertUser(u, nick)
}

func convertUser(u *discordgo.User, nick string) (bot.User, error) {
	id, err := strconv.ParseInt(u.ID, 10, 64)
	if err != nil {
		return bot.User{}, fmt.Errorf("discord: bad user id %q: %w", u.ID, err)
	}
	display := nick
	if display == "" {
		display = u.GlobalName
	}
	return bot.User{ID: id, Name: u.Username, DisplayName: display}, nil
}

func addOption(req *bot.Request, o *discordgo.ApplicationCommandInteractionDataOption, resolved *discordgo.ApplicationCommandInteractionDataResolved) error {
	switch o.Type {
	case discordgo.ApplicationCommandOptionUser:
		raw, _ := o.Value.(string)
		u := &discordgo.User{ID: raw}
		nick := ""
		if resolved != nil {
			if ru, ok := resolved.Users[raw]; ok && ru != nil {
				u = ru
			}
			if m, ok := resolved.Members[raw]; ok && m != nil {
				nick = m.Nick
			}
		}
		user, err := convertUser(u, nick)
		if err != nil {
			return err
		}
		req.Users[o.Name] = user
	default:
		req.Options[o.Name] = fmt.Sprint(o.Value)
	}
	return nil
}

// collectInputs walks modal components and records text input values.
func collectInputs(components []discordgo.MessageComponent, out map[string]string) {
	for _, c := range components {
		switch v := c.(type) {
		case *discordgo.ActionsRow:
			collectInputs(v.Components, out)
		case discordgo.ActionsRow:
			collectInputs(v.Components, out)
		case *discordgo.TextInput:
			out[v.CustomID] = v.Value
		case discordgo.TextInput:
			out[v.CustomID] = v.Value
		}
	}
}

// modalResponse converts a form to its interaction response.
func modalResponse(m bot.Modal) *discordgo.InteractionResponse {
	rows := make([]discordgo.MessageComponent, 0, len(m.Fields))
	for _, f := range m.Fields {
		rows = append(rows, discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.TextInput{
					CustomID:    f.ID,
					Label:       f.Label,
					Style:       discordgo.TextInputShort,
					Placeholder: f.Placeholder,
					Required:    f.Required,
					MinLength:   f.MinLength,
					MaxLength:   f.MaxLength,
				},
			},
		})
	}
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID:   m.ID,
			Title:      m.Title,
			Components: rows,
		},
	}
}

func messageFlags(ephemeral bool) discordgo.MessageFlags {
	if ephemeral {
		return discordgo.MessageFlagsEphemeral
	}
	return 0
}
