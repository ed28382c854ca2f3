package bot

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sakif/ledgerbot/internal/model"
)

// Command and option names.
const (
	cmdHello          = "hello"
	cmdGoodbye        = "goodbye"
	cmdHelp           = "help"
	cmdRegister       = "register"
	cmdMyHandle       = "my-handle"
	cmdMyRewards      = "my-rewards"
	cmdDisplayRewards = "display-rewards"
	cmdAddReward      = "add-reward"
	cmdRemoveReward   = "remove-reward"

	optUser   = "user"
	optHandle = "handle"
	optReward = "reward"

	fieldHandle = "handle"
)

// simpleCommand adapts a function to Command.
type simpleCommand struct {
	def    Definition
	handle func(ctx context.Context, req *Request, resp Responder) error
}

func (c simpleCommand) Definition() Definition { return c.def }

func (c simpleCommand) Handle(ctx context.Context, req *Request, resp Responder) error {
	return c.handle(ctx, req, resp)
}

func builtinCommands(r *Router) []Command {
	return []Command{
		simpleCommand{
			def: Definition{Name: cmdHello, Description: "Says hello back to you."},
			handle: func(ctx context.Context, req *Request, resp Responder) error {
				return resp.Reply(ctx, Message{Content: msgHello(req.Caller)})
			},
		},
		simpleCommand{
			def: Definition{Name: cmdGoodbye, Description: "Says goodbye back to you."},
			handle: func(ctx context.Context, req *Request, resp Responder) error {
				return resp.Reply(ctx, Message{Content: msgGoodbye(req.Caller)})
			},
		},
		simpleCommand{
			def: Definition{Name: cmdHelp, Description: "Lists the available commands."},
			handle: func(ctx context.Context, _ *Request, resp Responder) error {
				return resp.Reply(ctx, Message{Content: renderHelp(r.Definitions()), Ephemeral: true})
			},
		},
		&registerCommand{r: r},
		simpleCommand{
			def:    Definition{Name: cmdMyHandle, Description: "Shows your registered streaming handle."},
			handle: r.myHandle,
		},
		simpleCommand{
			def:    Definition{Name: cmdMyRewards, Description: "Shows your rewards and recent activity."},
			handle: r.myRewards,
		},
		simpleCommand{
			def: Definition{
				Name:        cmdDisplayRewards,
				Description: "Shows another user's rewards.",
				Options: []OptionDef{
					{Name: optUser, Description: "Whose rewards to show", Type: OptionUser, Required: true},
				},
			},
			handle: r.displayRewards,
		},
		simpleCommand{
			def:    adjustDefinition(cmdAddReward, "Gives a reward to a registered user."),
			handle: func(ctx context.Context, req *Request, resp Responder) error { return r.adjust(ctx, req, resp, 1) },
		},
		simpleCommand{
			def:    adjustDefinition(cmdRemoveReward, "Takes a reward away from a registered user."),
			handle: func(ctx context.Context, req *Request, resp Responder) error { return r.adjust(ctx, req, resp, -1) },
		},
	}
}

func rewardChoices() []Choice {
	kinds := model.RewardKinds()
	choices := make([]Choice, 0, len(kinds))
	for _, k := range kinds {
		choices = append(choices, Choice{Name: k.DisplayName(), Value: k.Name()})
	}
	return choices
}

func adjustDefinition(name, description string) Definition {
	return Definition{
		Name:        name,
		Description: description,
		AdminOnly:   true,
		Options: []OptionDef{
			{Name: optReward, Description: "Reward type", Type: OptionString, Required: true, Choices: rewardChoices()},
			{Name: optUser, Description: "Registered user", Type: OptionUser},
			{Name: optHandle, Description: "Registered streaming handle", Type: OptionString},
		},
	}
}

// registerCommand opens the handle form and stores its submission.
type registerCommand struct {
	r *Router
}

func (c *registerCommand) Definition() Definition {
	return Definition{Name: cmdRegister, Description: "Registers your streaming handle."}
}

func (c *registerCommand) Handle(ctx context.Context, _ *Request, resp Responder) error {
	return resp.OpenModal(ctx, Modal{
		ID:    cmdRegister,
		Title: "Register your streaming handle",
		Fields: []TextField{{
			ID:          fieldHandle,
			Label:       "Streaming username",
			Placeholder: "e.g. shroud",
			Required:    true,
			MinLength:   1,
			MaxLength:   model.MaxHandleLength,
		}},
	})
}

func (c *registerCommand) HandleModal(ctx context.Context, req *Request, resp Responder) error {
	raw := req.Fields[fieldHandle]
	return c.r.deferred(ctx, resp, true, func(ctx context.Context) Message {
		reg, err := c.r.ledger.Register(ctx, req.Caller.ID, raw)
		if err != nil {
			return Message{Content: errorText(err, model.NormalizeHandle(raw), 0)}
		}
		return Message{Content: msgRegistered(reg)}
	})
}

func (r *Router) myHandle(ctx context.Context, req *Request, resp Responder) error {
	return r.deferred(ctx, resp, true, func(ctx context.Context) Message {
		handle, ok, err := r.ledger.GetHandle(ctx, req.Caller.ID)
		switch {
		case err != nil:
			return Message{Content: errorText(err, "", 0)}
		case !ok:
			return Message{Content: msgNotRegistered}
		}
		return Message{Content: msgYourHandle(handle)}
	})
}

func (r *Router) myRewards(ctx context.Context, req *Request, resp Responder) error {
	return r.deferred(ctx, resp, true, func(ctx context.Context) Message {
		snap, ok, err := r.ledger.GetRewards(ctx, req.Caller.ID)
		switch {
		case err != nil:
			return Message{Content: errorText(err, "", 0)}
		case !ok:
			return Message{Content: msgNotRegistered}
		}
		return Message{Content: renderRewards(req.Caller.Label(), snap)}
	})
}

func (r *Router) displayRewards(ctx context.Context, req *Request, resp Responder) error {
	target, ok := req.UserOption(optUser)
	if !ok {
		return resp.Reply(ctx, Message{Content: "Choose a `user` to show.", Ephemeral: true})
	}
	return r.deferred(ctx, resp, false, func(ctx context.Context) Message {
		snap, ok, err := r.ledger.GetRewards(ctx, target.ID)
		switch {
		case err != nil:
			return Message{Content: errorText(err, "", 0)}
		case !ok:
			return Message{Content: msgUserNotRegistered(target)}
		}
		return Message{Content: renderRewards(target.Label(), snap)}
	})
}

// adjust serves add-reward and remove-reward. The target is the handle
// option when given, otherwise the handle registered by the user option.
func (r *Router) adjust(ctx context.Context, req *Request, resp Responder, delta int) error {
	kind, err := model.ParseRewardKind(req.Option(optReward))
	if err != nil {
		return resp.Reply(ctx, Message{Content: errorText(err, "", 0), Ephemeral: true})
	}

	handle := strings.TrimSpace(req.Option(optHandle))
	target, hasUser := req.UserOption(optUser)
	if handle == "" && !hasUser {
		return resp.Reply(ctx, Message{Content: msgNeedTarget, Ephemeral: true})
	}

	return r.deferred(ctx, resp, false, func(ctx context.Context) Message {
		if handle == "" {
			h, ok, err := r.ledger.GetHandle(ctx, target.ID)
			switch {
			case err != nil:
				return Message{Content: errorText(err, "", kind)}
			case !ok:
				return Message{Content: msgUserNotRegistered(target)}
			}
			handle = h
		}

		change, err := r.apply(ctx, handle, kind, delta)
		if err != nil {
			return Message{Content: errorText(err, model.NormalizeHandle(handle), kind)}
		}

		zerolog.Ctx(ctx).Info().
			Str("handle", change.Handle).
			Stringer("kind", kind).
			Int("count", change.Count).
			Msg("reward changed by admin")
		return Message{Content: msgRewardChanged(change)}
	})
}

func (r *Router) apply(ctx context.Context, handle string, kind model.RewardKind, delta int) (*model.RewardChange, error) {
	if delta < 0 {
		return r.ledger.Decrement(ctx, handle, kind)
	}
	return r.ledger.Increment(ctx, handle, kind)
}
