// Package bot is the transport-agnostic command layer. A chat adapter turns
// platform events into Requests and supplies a Responder; the Router finds the
// command and runs it.
package bot

import (
	"context"
	"strconv"
)

// User identifies a chat-platform account.
type User struct {
	ID          int64
	Name        string
	DisplayName string
}

// Mention renders the platform mention for u.
func (u User) Mention() string {
	return "<@" + strconv.FormatInt(u.ID, 10) + ">"
}

// Label is the best human-readable name for u.
func (u User) Label() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Name
}

// Request is one command invocation or form submission.
type Request struct {
	ID      string // correlation id for logs
	Command string
	Caller  User
	Options map[string]string // string and choice options by name
	Users   map[string]User   // user options by name

	ModalID string            // set for form submissions
	Fields  map[string]string // form values by field id
}

// Option returns a string option, "" when absent.
func (r *Request) Option(name string) string {
	return r.Options[name]
}

// UserOption returns a user option.
func (r *Request) UserOption(name string) (User, bool) {
	u, ok := r.Users[name]
	return u, ok
}

// Message is a reply body.
type Message struct {
	Content   string
	Ephemeral bool
}

// TextField is a single-line form input.
type TextField struct {
	ID          string
	Label       string
	Placeholder string
	Required    bool
	MinLength   int
	MaxLength   int
}

// Modal is a form presented to the caller.
type Modal struct {
	ID     string
	Title  string
	Fields []TextField
}

// Responder answers one interaction. Reply and OpenModal must be the first
// response; Defer acknowledges and is followed by exactly one FollowUp.
type Responder interface {
	Reply(ctx context.Context, msg Message) error
	Defer(ctx context.Context, ephemeral bool) error
	FollowUp(ctx context.Context, msg Message) error
	OpenModal(ctx context.Context, modal Modal) error
}

// OptionType is the kind of value an option carries.
type OptionType int

const (
	OptionString OptionType = iota + 1
	OptionUser
)

// Choice is one allowed value of a string option.
type Choice struct {
	Name  string
	Value string
}

// OptionDef describes one command option.
type OptionDef struct {
	Name        string
	Description string
	Type        OptionType
	Required    bool
	Choices     []Choice
}

// Definition describes a command for help text and platform registration.
type Definition struct {
	Name        string
	Description string
	Options     []OptionDef
	AdminOnly   bool
}

// Command handles one slash command.
type Command interface {
	Definition() Definition
	Handle(ctx context.Context, req *Request, resp Responder) error
}

// ModalCommand also handles the form it opened. The form id equals the
// command name.
type ModalCommand interface {
	Command
	HandleModal(ctx context.Context, req *Request, resp Responder) error
}
