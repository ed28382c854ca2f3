package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/sakif/ledgerbot/internal/model"
	"github.com/sakif/ledgerbot/internal/repository"
)

const keyPrefix = "ledger:"

func handleKey(userID int64) string {
	return keyPrefix + "handle:" + strconv.FormatInt(userID, 10)
}

func rewardsKey(userID int64) string {
	return keyPrefix + "rewards:" + strconv.FormatInt(userID, 10)
}

func generationKey(userID int64) string {
	return keyPrefix + "gen:" + strconv.FormatInt(userID, 10)
}

// Repository decorates a LedgerRepository with read-through caching of
// handles and reward snapshots. Writes go straight to the wrapped repository
// and then bump the affected user's generation, which drops their keys and
// voids any fill started before the write. A failing cache never fails a
// call.
type Repository struct {
	repository.LedgerRepository

	cache  Cache
	ttl    time.Duration
	logger zerolog.Logger
}

var _ repository.LedgerRepository = (*Repository)(nil)

func NewRepository(next repository.LedgerRepository, c Cache, ttl time.Duration, logger zerolog.Logger) *Repository {
	return &Repository{
		LedgerRepository: next,
		cache:            c,
		ttl:              ttl,
		logger:           logger,
	}
}

func (r *Repository) GetHandle(ctx context.Context, userID int64) (string, error) {
	key := handleKey(userID)
	var handle string
	if r.load(ctx, key, &handle) {
		return handle, nil
	}

	gen, ok := r.generation(ctx, userID)
	handle, err := r.LedgerRepository.GetHandle(ctx, userID)
	if err != nil {
		return "", err
	}
	if ok {
		r.store(ctx, userID, key, gen, handle)
	}
	return handle, nil
}

func (r *Repository) GetRewards(ctx context.Context, userID int64) (*model.RewardSnapshot, error) {
	key := rewardsKey(userID)
	var snap model.RewardSnapshot
	if r.load(ctx, key, &snap) {
		return &snap, nil
	}

	gen, ok := r.generation(ctx, userID)
	fresh, err := r.LedgerRepository.GetRewards(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ok {
		r.store(ctx, userID, key, gen, fresh)
	}
	return fresh, nil
}

func (r *Repository) Register(ctx context.Context, userID int64, handle string) (bool, error) {
	created, err := r.LedgerRepository.Register(ctx, userID, handle)
	if err != nil {
		return false, err
	}
	r.invalidate(ctx, userID)
	return created, nil
}

func (r *Repository) AdjustReward(ctx context.Context, handle string, kind model.RewardKind, delta int, entry string) (*model.RewardChange, error) {
	change, err := r.LedgerRepository.AdjustReward(ctx, handle, kind, delta, entry)
	if err != nil {
		return nil, err
	}
	r.invalidate(ctx, change.ChatUserID)
	return change, nil
}

func (r *Repository) load(ctx context.Context, key string, dst any) bool {
	b, err := r.cache.Get(ctx, key)
	if errors.Is(err, ErrMiss) {
		return false
	}
	if err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
		return false
	}
	if err := json.Unmarshal(b, dst); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("discarding undecodable cache entry")
		return false
	}
	return true
}

// generation must be read before the store is. ok is false when the cache
// is unreachable, in which case the caller skips the fill.
func (r *Repository) generation(ctx context.Context, userID int64) (int64, bool) {
	gen, err := r.cache.Generation(ctx, generationKey(userID))
	if err != nil {
		r.logger.Warn().Err(err).Int64("user_id", userID).Msg("cache generation read failed")
		return 0, false
	}
	return gen, true
}

func (r *Repository) store(ctx context.Context, userID int64, key string, gen int64, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("cache encode failed")
		return
	}
	stored, err := r.cache.SetIfGeneration(ctx, key, b, r.ttl, generationKey(userID), gen)
	if err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
		return
	}
	if !stored {
		r.logger.Debug().Str("key", key).Msg("skipped cache fill raced by a write")
	}
}

func (r *Repository) invalidate(ctx context.Context, userID int64) {
	if err := r.cache.Invalidate(ctx, generationKey(userID), handleKey(userID), rewardsKey(userID)); err != nil {
		r.logger.Warn().Err(err).Int64("user_id", userID).Msg("cache invalidation failed")
	}
}
