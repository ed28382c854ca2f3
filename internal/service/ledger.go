// Package service holds the ledger's business rules.
//
// The command layer calls LedgerService with plain values (user ids, raw
// handles, reward kinds) and gets back model values or apperror-tagged
// errors. It never sees SQL, and the repository never sees raw user input.
package service

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sakif/ledgerbot/internal/apperror"
	"github.com/sakif/ledgerbot/internal/model"
	"github.com/sakif/ledgerbot/internal/repository"
)

// RepositoryProvider yields the repository to use for one call. The storage
// supervisor implements it and returns apperror.ErrConnection while the
// store is unreachable.
type RepositoryProvider interface {
	Repository() (repository.LedgerRepository, error)
}

// Static wraps a fixed repository as a RepositoryProvider.
func Static(repo repository.LedgerRepository) RepositoryProvider {
	return staticProvider{repo: repo}
}

type staticProvider struct {
	repo repository.LedgerRepository
}

func (p staticProvider) Repository() (repository.LedgerRepository, error) {
	return p.repo, nil
}

// LedgerService implements registration and reward bookkeeping.
type LedgerService struct {
	provider RepositoryProvider
	loc      *time.Location
	now      func() time.Time
	logger   zerolog.Logger
}

// Option customizes a LedgerService.
type Option func(*LedgerService)

// WithClock replaces time.Now, used to render activity timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) { s.now = now }
}

// NewLedgerService creates a LedgerService. A nil loc means UTC.
func NewLedgerService(provider RepositoryProvider, loc *time.Location, logger zerolog.Logger, opts ...Option) *LedgerService {
	if loc == nil {
		loc = time.UTC
	}
	s := &LedgerService{
		provider: provider,
		loc:      loc,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register binds handle to userID, overwriting any handle the user had.
// Another user already owning the handle (in any letter case) yields
// apperror.ErrDuplicateHandle and nothing is written.
func (s *LedgerService) Register(ctx context.Context, userID int64, handle string) (*model.Registration, error) {
	handle = model.NormalizeHandle(handle)
	if handle == "" {
		return nil, apperror.ValidationFailed("handle", "handle is required")
	}
	if model.HandleLength(handle) > model.MaxHandleLength {
		return nil, apperror.ValidationFailed("handle",
			fmt.Sprintf("handle must be %d characters or less", model.MaxHandleLength))
	}

	repo, err := s.provider.Repository()
	if err != nil {
		return nil, err
	}

	created, err := repo.Register(ctx, userID, handle)
	if err != nil {
		return nil, s.fail("register", err, func(e *zerolog.Event) {
			e.Int64("user_id", userID).Str("handle", handle)
		})
	}

	s.logger.Info().
		Int64("user_id", userID).
		Str("handle", handle).
		Bool("created", created).
		Msg("handle registered")

	return &model.Registration{ChatUserID: userID, Handle: handle, Created: created}, nil
}

// GetHandle returns the user's handle. ok is false when the user has never
// registered.
func (s *LedgerService) GetHandle(ctx context.Context, userID int64) (handle string, ok bool, err error) {
	repo, err := s.provider.Repository()
	if err != nil {
		return "", false, err
	}

	handle, err = repo.GetHandle(ctx, userID)
	if errors.Is(err, apperror.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, s.fail("get handle", err, func(e *zerolog.Event) {
			e.Int64("user_id", userID)
		})
	}
	return handle, true, nil
}

// GetRewards returns the user's counters and recent activity. ok is false
// when the user has never registered.
func (s *LedgerService) GetRewards(ctx context.Context, userID int64) (*model.RewardSnapshot, bool, error) {
	repo, err := s.provider.Repository()
	if err != nil {
		return nil, false, err
	}

	snap, err := repo.GetRewards(ctx, userID)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, s.fail("get rewards", err, func(e *zerolog.Event) {
			e.Int64("user_id", userID)
		})
	}
	return snap, true, nil
}

// Increment adds one to kind for the user registered as handle.
func (s *LedgerService) Increment(ctx context.Context, handle string, kind model.RewardKind) (*model.RewardChange, error) {
	return s.adjust(ctx, handle, kind, 1)
}

// Decrement removes one from kind for the user registered as handle. A
// counter already at zero yields apperror.ErrBelowZero.
func (s *LedgerService) Decrement(ctx context.Context, handle string, kind model.RewardKind) (*model.RewardChange, error) {
	return s.adjust(ctx, handle, kind, -1)
}

func (s *LedgerService) adjust(ctx context.Context, handle string, kind model.RewardKind, delta int) (*model.RewardChange, error) {
	if !kind.Valid() {
		return nil, apperror.InvalidRewardKind(kind.String())
	}
	handle = model.NormalizeHandle(handle)
	if handle == "" {
		return nil, apperror.ValidationFailed("handle", "handle is required")
	}

	repo, err := s.provider.Repository()
	if err != nil {
		return nil, err
	}

	entry := ActivityEntry(s.now().In(s.loc), kind, delta)
	change, err := repo.AdjustReward(ctx, handle, kind, delta, entry)
	if err != nil {
		return nil, s.fail("adjust reward", err, func(e *zerolog.Event) {
			e.Str("handle", handle).Stringer("kind", kind).Int("delta", delta)
		})
	}

	s.logger.Info().
		Str("handle", change.Handle).
		Stringer("kind", kind).
		Int("delta", delta).
		Int("count", change.Count).
		Msg("reward adjusted")

	return change, nil
}

// ActivityEntry renders one activity log line, e.g.
// "[2024-05-01 14:03 EDT] Added 1 Tier List".
func ActivityEntry(at time.Time, kind model.RewardKind, delta int) string {
	verb := "Added"
	if delta < 0 {
		verb = "Removed"
		delta = -delta
	}
	return fmt.Sprintf("[%s] %s %d %s", at.Format("2006-01-02 15:04 MST"), verb, delta, kind.DisplayName())
}

// domainErrors are passed through to callers unchanged; anything else is an
// unexpected failure.
var domainErrors = []error{
	apperror.ErrConnection,
	apperror.ErrDuplicateHandle,
	apperror.ErrUserNotFound,
	apperror.ErrInvalidRewardKind,
	apperror.ErrBelowZero,
	apperror.ErrValidation,
	apperror.ErrNotFound,
	apperror.ErrForbidden,
	apperror.ErrInternal,
}

// fail logs err with full detail and returns the error callers may see.
func (s *LedgerService) fail(op string, err error, fields func(*zerolog.Event)) error {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return err
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		ev := s.logger.Warn().Err(err).Str("op", op)
		fields(ev)
		ev.Msg("store call did not complete")
		return apperror.ConnectionFailure(op, err)
	}

	ev := s.logger.Error().Err(err).Str("op", op)
	fields(ev)
	ev.Msg("store operation failed")
	return apperror.Internal(op, err)
}
