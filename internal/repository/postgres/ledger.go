package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/sakif/ledgerbot/internal/apperror"
	"github.com/sakif/ledgerbot/internal/model"
	"github.com/sakif/ledgerbot/internal/repository"
)

// Register upserts the handle for userID. The handle owner row (if any) and
// the caller's own row are locked for the rest of the transaction; a racing
// insert of the same handle trips the unique index and is reported as
// DuplicateHandle.
func (db *DB) Register(ctx context.Context, userID int64, handle string) (bool, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("postgres: beginning register tx: %w", err)
	}
	defer tx.Rollback()

	var owner int64
	err = tx.QueryRowContext(ctx,
		`SELECT chat_user_id FROM user_records WHERE handle = $1 FOR UPDATE`, handle,
	).Scan(&owner)
	switch {
	case err == nil && owner != userID:
		return false, apperror.DuplicateHandle(handle)
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return false, fmt.Errorf("postgres: looking up handle owner: %w", err)
	}

	// xmax = 0 only for a freshly inserted row, which tells created from updated
	// without a second round trip.
	var created bool
	err = tx.QueryRowContext(ctx,
		`INSERT INTO user_records (chat_user_id, handle)
		 VALUES ($1, $2)
		 ON CONFLICT (chat_user_id) DO UPDATE SET
			handle = EXCLUDED.handle,
			updated_at = now()
		 RETURNING (xmax = 0)`,
		userID, handle,
	).Scan(&created)
	if err != nil {
		if isUniqueViolation(err) {
			return false, apperror.DuplicateHandle(handle)
		}
		return false, fmt.Errorf("postgres: upserting user %d: %w", userID, err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return false, apperror.DuplicateHandle(handle)
		}
		return false, fmt.Errorf("postgres: committing register: %w", err)
	}
	return created, nil
}

// GetHandle returns the handle for userID or apperror.ErrNotFound.
func (db *DB) GetHandle(ctx context.Context, userID int64) (string, error) {
	var handle string
	err := db.conn.QueryRowContext(ctx,
		`SELECT handle FROM user_records WHERE chat_user_id = $1`, userID,
	).Scan(&handle)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", apperror.NotFound("user", strconv.FormatInt(userID, 10))
		}
		return "", fmt.Errorf("postgres: getting handle for %d: %w", userID, err)
	}
	return handle, nil
}

// GetRewards reads every counter and the activity log for userID.
func (db *DB) GetRewards(ctx context.Context, userID int64) (*model.RewardSnapshot, error) {
	var handle string
	counts := make([]int, len(repository.RewardColumns()))
	logs := make([]sql.NullString, len(repository.LogColumns))

	dest := []any{&handle}
	for i := range counts {
		dest = append(dest, &counts[i])
	}
	for i := range logs {
		dest = append(dest, &logs[i])
	}

	query := fmt.Sprintf(`SELECT %s FROM user_records WHERE chat_user_id = $1`, selectColumns())
	if err := db.conn.QueryRowContext(ctx, query, userID).Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", strconv.FormatInt(userID, 10))
		}
		return nil, fmt.Errorf("postgres: getting rewards for %d: %w", userID, err)
	}

	entries := make([]*string, len(logs))
	for i := range logs {
		if logs[i].Valid {
			entries[i] = &logs[i].String
		}
	}
	return repository.Snapshot(userID, handle, counts, entries), nil
}

// AdjustReward locks the target row, checks the zero floor and applies the
// change plus log rotation in one conditional UPDATE.
func (db *DB) AdjustReward(ctx context.Context, handle string, kind model.RewardKind, delta int, entry string) (*model.RewardChange, error) {
	if err := repository.CheckDelta(delta); err != nil {
		return nil, err
	}
	col, err := repository.RewardColumn(kind)
	if err != nil {
		return nil, err
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("postgres: beginning adjust tx: %w", err)
	}
	defer tx.Rollback()

	var userID int64
	var current int
	err = tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT chat_user_id, %s FROM user_records WHERE handle = $1 FOR UPDATE`, col), handle,
	).Scan(&userID, &current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.UserNotFound(handle)
		}
		return nil, fmt.Errorf("postgres: looking up %q: %w", handle, err)
	}
	if current+delta < 0 {
		return nil, apperror.BelowZero(handle, kind.DisplayName())
	}

	var count int
	err = tx.QueryRowContext(ctx,
		fmt.Sprintf(`UPDATE user_records
			SET %[1]s = %[1]s + $1,
			    log_3 = log_2,
			    log_2 = log_1,
			    log_1 = $2,
			    updated_at = now()
			WHERE chat_user_id = $3 AND %[1]s + $1 >= 0
			RETURNING %[1]s`, col),
		delta, entry, userID,
	).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.BelowZero(handle, kind.DisplayName())
		}
		return nil, fmt.Errorf("postgres: updating %s for %q: %w", col, handle, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("postgres: committing adjust: %w", err)
	}

	return &model.RewardChange{
		ChatUserID: userID,
		Handle:     handle,
		Kind:       kind,
		Delta:      delta,
		Count:      count,
		Entry:      entry,
	}, nil
}
