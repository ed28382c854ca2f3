package bot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sakif/ledgerbot/internal/apperror"
	"github.com/sakif/ledgerbot/internal/model"
)

const (
	msgUnknownCommand = "Unknown command."
	msgBusy           = "The bot is busy right now. Please try again in a moment."
	msgUnavailable    = "The reward database is unavailable right now. Please try again later."
	msgInternal       = "Something went wrong on our side. Please try again later."
	msgNotRegistered  = "You have not registered a streaming handle yet. Use `/register` to add one."
	msgNeedTarget     = "Provide either a `user` or a `handle`."
	msgNoActivity     = "No recent activity."
)

func msgHello(u User) string   { return fmt.Sprintf("Hello, %s!", u.Mention()) }
func msgGoodbye(u User) string { return fmt.Sprintf("Goodbye, %s! See you next stream.", u.Mention()) }

// escapeText neutralizes markdown and mentions in user-supplied text before it
// is echoed back. Handles are free text: "@everyone", "<@&role>" and "**"
// all register fine.
var escapeText = strings.NewReplacer(
	`\`, `\\`,
	"*", `\*`,
	"_", `\_`,
	"~", `\~`,
	"`", "\\`",
	"|", `\|`,
	">", `\>`,
	"<", `\<`,
	"@", "@\u200b",
).Replace

func msgRegistered(reg *model.Registration) string {
	if reg.Created {
		return fmt.Sprintf("Registered your streaming handle as **%s**.", escapeText(reg.Handle))
	}
	return fmt.Sprintf("Updated your streaming handle to **%s**.", escapeText(reg.Handle))
}

func msgYourHandle(handle string) string {
	return fmt.Sprintf("Your registered streaming handle is **%s**.", escapeText(handle))
}

func msgInvalidReward(value string) string {
	names := make([]string, 0, len(model.RewardKinds()))
	for _, k := range model.RewardKinds() {
		names = append(names, k.DisplayName())
	}
	subject := "That"
	if value != "" {
		subject = fmt.Sprintf("**%s**", escapeText(value))
	}
	return fmt.Sprintf("%s is not a valid reward type. Choose one of: %s.", subject, strings.Join(names, ", "))
}

func msgUserNotRegistered(u User) string {
	return fmt.Sprintf("%s has not registered a streaming handle.", u.Mention())
}

func msgRewardChanged(change *model.RewardChange) string {
	verb, prep := "Added", "to"
	if change.Delta < 0 {
		verb, prep = "Removed", "from"
	}
	return fmt.Sprintf("%s 1 %s %s **%s**. They now have %d.",
		verb, change.Kind.DisplayName(), prep, escapeText(change.Handle), change.Count)
}

// renderRewards formats a snapshot. owner names whose rewards these are.
func renderRewards(owner string, snap *model.RewardSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Rewards for %s** (%s)\n", escapeText(owner), escapeText(snap.Handle))
	for _, k := range model.RewardKinds() {
		fmt.Fprintf(&b, "%s: %d\n", k.DisplayName(), snap.Count(k))
	}
	b.WriteString("\n**Recent activity**\n")
	if len(snap.Activity) == 0 {
		b.WriteString(msgNoActivity)
		return b.String()
	}
	b.WriteString(strings.Join(snap.Activity, "\n"))
	return b.String()
}

// renderHelp lists commands; admin-only ones are marked.
func renderHelp(defs []Definition) string {
	var b strings.Builder
	b.WriteString("**Commands**\n")
	for _, d := range defs {
		fmt.Fprintf(&b, "`/%s` %s", d.Name, d.Description)
		if d.AdminOnly {
			b.WriteString(" (admin)")
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// errorText turns a store failure into user-facing text. handle and reward
// name the subject of the failed call when known.
func errorText(err error, handle string, kind model.RewardKind) string {
	handle = escapeText(handle)
	var appErr *apperror.AppError
	errors.As(err, &appErr)

	switch {
	case errors.Is(err, apperror.ErrConnection):
		return msgUnavailable
	case errors.Is(err, apperror.ErrDuplicateHandle):
		return fmt.Sprintf("The handle **%s** is already registered to another user.", handle)
	case errors.Is(err, apperror.ErrUserNotFound):
		return fmt.Sprintf("No user is registered with the handle **%s**.", handle)
	case errors.Is(err, apperror.ErrBelowZero):
		return fmt.Sprintf("**%s** has no %s rewards to remove.", handle, kind.DisplayName())
	case errors.Is(err, apperror.ErrInvalidRewardKind):
		if appErr != nil {
			return msgInvalidReward(appErr.Value)
		}
		return msgInvalidReward("")
	case errors.Is(err, apperror.ErrForbidden), errors.Is(err, apperror.ErrValidation):
		if appErr != nil && appErr.Message != "" {
			return strings.ToUpper(appErr.Message[:1]) + appErr.Message[1:] + "."
		}
	}
	return msgInternal
}
