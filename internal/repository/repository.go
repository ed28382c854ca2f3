// Package repository declares the storage contract for the reward ledger.
//
// Implementations live in subpackages (sqlite, postgres). Callers depend on
// LedgerRepository only, so the backend is picked once at startup.
package repository

import (
	"context"
	"fmt"

	"github.com/sakif/ledgerbot/internal/apperror"
	"github.com/sakif/ledgerbot/internal/model"
)

// Table is the single table holding user records.
const Table = "user_records"

// Activity log columns, most recent first.
var LogColumns = [model.ActivityDepth]string{"log_1", "log_2", "log_3"}

// LedgerRepository persists user records.
//
// All handle arguments must already be normalized (model.NormalizeHandle).
// Mutating methods run as a single transaction; failures wrap apperror
// sentinels (ErrNotFound, ErrDuplicateHandle, ErrUserNotFound, ErrBelowZero,
// ErrInvalidRewardKind) or carry the raw driver error.
type LedgerRepository interface {
	// EnsureSchema creates the table, reward/log columns and the handle index
	// when missing. Safe to call on every start.
	EnsureSchema(ctx context.Context) error

	// Register upserts the handle for userID. created is false when an
	// existing record was overwritten.
	Register(ctx context.Context, userID int64, handle string) (created bool, err error)

	// GetHandle returns apperror.ErrNotFound when userID has no record.
	GetHandle(ctx context.Context, userID int64) (string, error)

	// GetRewards returns apperror.ErrNotFound when userID has no record.
	GetRewards(ctx context.Context, userID int64) (*model.RewardSnapshot, error)

	// AdjustReward adds delta (+1 or -1) to kind for the user owning handle
	// and pushes entry onto the activity log.
	AdjustReward(ctx context.Context, handle string, kind model.RewardKind, delta int, entry string) (*model.RewardChange, error)

	Ping(ctx context.Context) error
	Close() error
}

// RewardColumn maps a reward kind to its fixed storage column. It is the only
// way a column name reaches SQL text.
func RewardColumn(kind model.RewardKind) (string, error) {
	switch kind {
	case model.RewardTierList:
		return "tier_list_count", nil
	case model.RewardVODReview:
		return "vod_review_count", nil
	case model.RewardShoutout:
		return "shoutout_count", nil
	}
	return "", apperror.InvalidRewardKind(fmt.Sprintf("kind(%d)", int(kind)))
}

// RewardColumns lists every reward column in model.RewardKinds order.
func RewardColumns() []string {
	kinds := model.RewardKinds()
	cols := make([]string, 0, len(kinds))
	for _, k := range kinds {
		col, _ := RewardColumn(k)
		cols = append(cols, col)
	}
	return cols
}

// CheckDelta rejects anything other than a single-step change.
func CheckDelta(delta int) error {
	if delta != 1 && delta != -1 {
		return apperror.ValidationFailed("delta", fmt.Sprintf("reward delta must be +1 or -1, got %d", delta))
	}
	return nil
}

// Snapshot assembles a RewardSnapshot from scanned column values. counts must
// be in RewardColumns order; logs in LogColumns order with NULL/empty slots
// skipped.
func Snapshot(userID int64, handle string, counts []int, logs []*string) *model.RewardSnapshot {
	snap := &model.RewardSnapshot{
		ChatUserID: userID,
		Handle:     handle,
		Counts:     make(map[model.RewardKind]int, len(counts)),
		Activity:   make([]string, 0, model.ActivityDepth),
	}
	for i, k := range model.RewardKinds() {
		if i < len(counts) {
			snap.Counts[k] = counts[i]
		}
	}
	for _, l := range logs {
		if l != nil && *l != "" {
			snap.Activity = append(snap.Activity, *l)
		}
	}
	return snap
}
