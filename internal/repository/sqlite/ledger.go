package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sakif/ledgerbot/internal/apperror"
	"github.com/sakif/ledgerbot/internal/model"
	"github.com/sakif/ledgerbot/internal/repository"
)

// Register upserts the handle for userID inside one transaction.
//
// The owner lookup and the write share the transaction, and the pool has a
// single connection, so no other writer can claim the handle in between. The
// unique index is still mapped to DuplicateHandle in case the database file is
// shared with another process.
func (db *DB) Register(ctx context.Context, userID int64, handle string) (bool, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("sqlite: beginning register tx: %w", err)
	}
	defer tx.Rollback()

	var owner int64
	err = tx.QueryRowContext(ctx,
		`SELECT chat_user_id FROM user_records WHERE handle = ?`, handle,
	).Scan(&owner)
	switch {
	case err == nil && owner != userID:
		return false, apperror.DuplicateHandle(handle)
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return false, fmt.Errorf("sqlite: looking up handle owner: %w", err)
	}

	var existing int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_records WHERE chat_user_id = ?`, userID,
	).Scan(&existing); err != nil {
		return false, fmt.Errorf("sqlite: checking user %d: %w", userID, err)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO user_records (chat_user_id, handle, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(chat_user_id) DO UPDATE SET
			handle = excluded.handle,
			updated_at = excluded.updated_at`,
		userID, handle, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, apperror.DuplicateHandle(handle)
		}
		return false, fmt.Errorf("sqlite: upserting user %d: %w", userID, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("sqlite: committing register: %w", err)
	}
	return existing == 0, nil
}

// GetHandle retrieves the handle registered by userID.
// Returns apperror.ErrNotFound if no record exists.
func (db *DB) GetHandle(ctx context.Context, userID int64) (string, error) {
	var handle string
	err := db.conn.QueryRowContext(ctx,
		`SELECT handle FROM user_records WHERE chat_user_id = ?`, userID,
	).Scan(&handle)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", apperror.NotFound("user", strconv.FormatInt(userID, 10))
		}
		return "", fmt.Errorf("sqlite: getting handle for %d: %w", userID, err)
	}
	return handle, nil
}

// GetRewards reads every counter and the activity log for userID.
func (db *DB) GetRewards(ctx context.Context, userID int64) (*model.RewardSnapshot, error) {
	var handle string
	counts := make([]int, len(repository.RewardColumns()))
	logs := make([]*string, len(repository.LogColumns))

	dest := []any{&handle}
	for i := range counts {
		dest = append(dest, &counts[i])
	}
	for i := range logs {
		dest = append(dest, &logs[i])
	}

	query := fmt.Sprintf(`SELECT %s FROM user_records WHERE chat_user_id = ?`, selectColumns())
	if err := db.conn.QueryRowContext(ctx, query, userID).Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", strconv.FormatInt(userID, 10))
		}
		return nil, fmt.Errorf("sqlite: getting rewards for %d: %w", userID, err)
	}

	return repository.Snapshot(userID, handle, counts, logs), nil
}

// AdjustReward applies delta to one counter and rotates the activity log in a
// single statement: log_1 takes the new entry, older entries shift down one
// slot and the previous log_3 is dropped.
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
		return nil, fmt.Errorf("sqlite: beginning adjust tx: %w", err)
	}
	defer tx.Rollback()

	var userID int64
	var current int
	err = tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT chat_user_id, %s FROM user_records WHERE handle = ?`, col), handle,
	).Scan(&userID, &current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.UserNotFound(handle)
		}
		return nil, fmt.Errorf("sqlite: looking up %q: %w", handle, err)
	}
	if current+delta < 0 {
		return nil, apperror.BelowZero(handle, kind.DisplayName())
	}

	var count int
	err = tx.QueryRowContext(ctx,
		fmt.Sprintf(`UPDATE user_records
			SET %[1]s = %[1]s + ?,
			    log_3 = log_2,
			    log_2 = log_1,
			    log_1 = ?,
			    updated_at = ?
			WHERE chat_user_id = ? AND %[1]s + ? >= 0
			RETURNING %[1]s`, col),
		delta, entry, time.Now().UTC(), userID, delta,
	).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.BelowZero(handle, kind.DisplayName())
		}
		return nil, fmt.Errorf("sqlite: updating %s for %q: %w", col, handle, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: committing adjust: %w", err)
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
