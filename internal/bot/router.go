package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sakif/ledgerbot/internal/apperror"
	"github.com/sakif/ledgerbot/internal/model"
	"github.com/sakif/ledgerbot/internal/worker"
)

// Ledger is the store surface the commands use.
type Ledger interface {
	Register(ctx context.Context, userID int64, handle string) (*model.Registration, error)
	GetHandle(ctx context.Context, userID int64) (string, bool, error)
	GetRewards(ctx context.Context, userID int64) (*model.RewardSnapshot, bool, error)
	Increment(ctx context.Context, handle string, kind model.RewardKind) (*model.RewardChange, error)
	Decrement(ctx context.Context, handle string, kind model.RewardKind) (*model.RewardChange, error)
}

// Submitter runs a job off the caller's goroutine.
type Submitter interface {
	Submit(ctx context.Context, job worker.Job) error
}

// Config carries the Router's dependencies.
type Config struct {
	Ledger       Ledger
	Pool         Submitter
	AdminID      int64
	StoreTimeout time.Duration
	Logger       zerolog.Logger
}

// Router dispatches requests to registered commands.
type Router struct {
	ledger  Ledger
	pool    Submitter
	adminID int64
	timeout time.Duration
	logger  zerolog.Logger

	mu       sync.RWMutex
	commands map[string]Command
}

// NewRouter creates a Router with every built-in command registered.
func NewRouter(cfg Config) *Router {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 10 * time.Second
	}
	r := &Router{
		ledger:   cfg.Ledger,
		pool:     cfg.Pool,
		adminID:  cfg.AdminID,
		timeout:  cfg.StoreTimeout,
		logger:   cfg.Logger,
		commands: make(map[string]Command),
	}
	for _, c := range builtinCommands(r) {
		r.Register(c)
	}
	return r
}

// Register adds or replaces a command.
func (r *Router) Register(c Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[c.Definition().Name] = c
}

// Definitions lists registered commands sorted by name.
func (r *Router) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.commands))
	for _, c := range r.commands {
		defs = append(defs, c.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

func (r *Router) lookup(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.commands[name]
	return c, ok
}

// IsAdmin reports whether u may run admin-only commands.
func (r *Router) IsAdmin(u User) bool {
	return r.adminID != 0 && u.ID == r.adminID
}

// Dispatch runs the command or form handler named by req.
func (r *Router) Dispatch(ctx context.Context, req *Request, resp Responder) error {
	log := r.logger.With().
		Str("request_id", req.ID).
		Int64("caller", req.Caller.ID).
		Logger()

	name := req.Command
	if req.ModalID != "" {
		name = req.ModalID
	}

	cmd, ok := r.lookup(name)
	if !ok {
		log.Warn().Str("command", name).Msg("unknown command")
		return resp.Reply(ctx, Message{Content: msgUnknownCommand, Ephemeral: true})
	}

	def := cmd.Definition()
	if def.AdminOnly && !r.IsAdmin(req.Caller) {
		err := apperror.Forbidden(fmt.Sprintf("only the bot administrator can use `/%s`", def.Name))
		log.Info().Err(err).Str("command", name).Msg("rejected non-admin caller")
		return resp.Reply(ctx, Message{Content: errorText(err, "", 0), Ephemeral: true})
	}

	log.Debug().Str("command", name).Bool("modal", req.ModalID != "").Msg("dispatching")

	ctx = log.WithContext(ctx)
	if req.ModalID != "" {
		mc, ok := cmd.(ModalCommand)
		if !ok {
			return resp.Reply(ctx, Message{Content: msgUnknownCommand, Ephemeral: true})
		}
		return mc.HandleModal(ctx, req, resp)
	}
	return cmd.Handle(ctx, req, resp)
}

// ErrBusy is returned when a store job could not be scheduled.
var ErrBusy = errors.New("bot: worker pool unavailable")

// deferred acknowledges the interaction immediately, then runs work on the
// worker pool with the store timeout and sends its result as the follow-up.
//
// THE DEFERRED-ACK CONTRACT:
// Discord gives an interaction three seconds for its first response. A store
// call can take longer than that, so every store-backed command answers in
// two steps:
//  1. resp.Defer(...)     ← "thinking…", sent on the gateway goroutine
//  2. resp.FollowUp(...)  ← the real answer, sent from the worker
//
// Once step 1 has gone out, step 2 MUST happen exactly once, whatever work
// does. A full pool gets msgBusy; a panicking job gets msgInternal. Missing
// it leaves the user staring at "thinking…" until Discord gives up.
//
// The job context is detached from the gateway's ctx (WithoutCancel) and
// bounded by the store timeout instead.
func (r *Router) deferred(ctx context.Context, resp Responder, ephemeral bool, work func(ctx context.Context) Message) error {
	if err := resp.Defer(ctx, ephemeral); err != nil {
		return err
	}

	log := zerolog.Ctx(ctx)
	base := context.WithoutCancel(ctx)
	jobCtx, cancel := context.WithTimeout(base, r.timeout)

	err := r.pool.Submit(jobCtx, func(jobCtx context.Context) {
		defer cancel()
		defer func() {
			if p := recover(); p != nil {
				log.Error().Interface("panic", p).Msg("store job panicked")
				if err := resp.FollowUp(base, Message{Content: msgInternal, Ephemeral: ephemeral}); err != nil {
					log.Error().Err(err).Msg("follow-up failed")
				}
			}
		}()
		msg := work(jobCtx)
		msg.Ephemeral = ephemeral
		if err := resp.FollowUp(base, msg); err != nil {
			log.Error().Err(err).Msg("follow-up failed")
		}
	})
	if err != nil {
		cancel()
		log.Error().Err(err).Msg("could not schedule store call")
		if ferr := resp.FollowUp(base, Message{Content: msgBusy, Ephemeral: ephemeral}); ferr != nil {
			return errors.Join(ErrBusy, err, ferr)
		}
		return errors.Join(ErrBusy, err)
	}
	return nil
}
