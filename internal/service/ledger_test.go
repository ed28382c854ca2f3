package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/ledgerbot/internal/apperror"
	"github.com/sakif/ledgerbot/internal/model"
	"github.com/sakif/ledgerbot/internal/repository"
	"github.com/sakif/ledgerbot/internal/repository/sqlite"
)

// =========================================================================
// MOCK REPOSITORY
// =========================================================================

// mockLedgerRepo records calls and returns canned results. Fields left nil
// make the corresponding method return zero values.
type mockLedgerRepo struct {
	registerCalls []string
	adjustCalls   []string

	registerCreated bool
	registerErr     error
	handle          string
	handleErr       error
	snapshot        *model.RewardSnapshot
	rewardsErr      error
	adjustErr       error
}

var _ repository.LedgerRepository = (*mockLedgerRepo)(nil)

func (m *mockLedgerRepo) EnsureSchema(context.Context) error { return nil }
func (m *mockLedgerRepo) Ping(context.Context) error         { return nil }
func (m *mockLedgerRepo) Close() error                       { return nil }

func (m *mockLedgerRepo) Register(_ context.Context, _ int64, handle string) (bool, error) {
	m.registerCalls = append(m.registerCalls, handle)
	return m.registerCreated, m.registerErr
}

func (m *mockLedgerRepo) GetHandle(context.Context, int64) (string, error) {
	return m.handle, m.handleErr
}

func (m *mockLedgerRepo) GetRewards(context.Context, int64) (*model.RewardSnapshot, error) {
	return m.snapshot, m.rewardsErr
}

func (m *mockLedgerRepo) AdjustReward(_ context.Context, handle string, kind model.RewardKind, delta int, entry string) (*model.RewardChange, error) {
	m.adjustCalls = append(m.adjustCalls, fmt.Sprintf("%s %s %+d %s", handle, kind, delta, entry))
	if m.adjustErr != nil {
		return nil, m.adjustErr
	}
	return &model.RewardChange{Handle: handle, Kind: kind, Delta: delta, Count: 1, Entry: entry}, nil
}

type failingProvider struct{}

func (failingProvider) Repository() (repository.LedgerRepository, error) {
	return nil, apperror.ConnectionFailure("connect", errors.New("dial tcp: refused"))
}

// =========================================================================
// TEST HELPERS
// =========================================================================

var fixedNow = time.Date(2024, 5, 1, 18, 3, 0, 0, time.UTC)

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func newTestService(t *testing.T, repo repository.LedgerRepository) *LedgerService {
	t.Helper()
	return NewLedgerService(Static(repo), newYork(t), zerolog.New(io.Discard),
		WithClock(func() time.Time { return fixedNow }))
}

// =========================================================================
// REGISTER
// =========================================================================

func TestRegister_NormalizesHandle(t *testing.T) {
	repo := &mockLedgerRepo{registerCreated: true}
	svc := newTestService(t, repo)

	reg, err := svc.Register(context.Background(), 7, "  Shroud ")
	require.NoError(t, err)

	assert.Equal(t, []string{"shroud"}, repo.registerCalls)
	assert.Equal(t, &model.Registration{ChatUserID: 7, Handle: "shroud", Created: true}, reg)
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name   string
		handle string
	}{
		{"empty", ""},
		{"whitespace only", "   \t"},
		{"too long", strings.Repeat("é", model.MaxHandleLength+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockLedgerRepo{}
			svc := newTestService(t, repo)

			_, err := svc.Register(context.Background(), 1, tt.handle)
			assert.ErrorIs(t, err, apperror.ErrValidation)
			assert.Empty(t, repo.registerCalls, "repository must not be called")
		})
	}
}

func TestRegister_MaxLengthCountsRunes(t *testing.T) {
	repo := &mockLedgerRepo{}
	svc := newTestService(t, repo)

	_, err := svc.Register(context.Background(), 1, strings.Repeat("é", model.MaxHandleLength))
	assert.NoError(t, err)
}

func TestRegister_PassesDomainErrorsThrough(t *testing.T) {
	repo := &mockLedgerRepo{registerErr: apperror.DuplicateHandle("shroud")}
	svc := newTestService(t, repo)

	_, err := svc.Register(context.Background(), 1, "shroud")
	assert.ErrorIs(t, err, apperror.ErrDuplicateHandle)
}

func TestRegister_HidesUnexpectedErrors(t *testing.T) {
	repo := &mockLedgerRepo{registerErr: errors.New("sqlite: disk I/O error")}
	svc := newTestService(t, repo)

	_, err := svc.Register(context.Background(), 1, "shroud")
	require.ErrorIs(t, err, apperror.ErrInternal)

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.NotContains(t, appErr.Message, "disk I/O")
}

func TestRegister_DeadlineIsConnectionFailure(t *testing.T) {
	repo := &mockLedgerRepo{registerErr: fmt.Errorf("sqlite: begin: %w", context.DeadlineExceeded)}
	svc := newTestService(t, repo)

	_, err := svc.Register(context.Background(), 1, "shroud")
	assert.ErrorIs(t, err, apperror.ErrConnection)
}

// =========================================================================
// READS
// =========================================================================

func TestGetHandle(t *testing.T) {
	svc := newTestService(t, &mockLedgerRepo{handle: "shroud"})

	handle, ok, err := svc.GetHandle(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "shroud", handle)
}

func TestGetHandle_NotRegistered(t *testing.T) {
	svc := newTestService(t, &mockLedgerRepo{handleErr: apperror.NotFound("user", "1")})

	handle, ok, err := svc.GetHandle(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, handle)
}

func TestGetRewards_NotRegistered(t *testing.T) {
	svc := newTestService(t, &mockLedgerRepo{rewardsErr: apperror.NotFound("user", "1")})

	snap, ok, err := svc.GetRewards(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, snap)
}

func TestReads_Degraded(t *testing.T) {
	svc := NewLedgerService(failingProvider{}, nil, zerolog.New(io.Discard))

	_, _, err := svc.GetHandle(context.Background(), 1)
	assert.ErrorIs(t, err, apperror.ErrConnection)

	_, _, err = svc.GetRewards(context.Background(), 1)
	assert.ErrorIs(t, err, apperror.ErrConnection)

	_, err = svc.Register(context.Background(), 1, "shroud")
	assert.ErrorIs(t, err, apperror.ErrConnection)

	_, err = svc.Increment(context.Background(), "shroud", model.RewardTierList)
	assert.ErrorIs(t, err, apperror.ErrConnection)
}

// =========================================================================
// INCREMENT / DECREMENT
// =========================================================================

func TestIncrement_FormatsEntry(t *testing.T) {
	repo := &mockLedgerRepo{}
	svc := newTestService(t, repo)

	change, err := svc.Increment(context.Background(), "Shroud", model.RewardTierList)
	require.NoError(t, err)

	assert.Equal(t, "[2024-05-01 14:03 EDT] Added 1 Tier List", change.Entry)
	assert.Equal(t, []string{"shroud tier_list_count +1 [2024-05-01 14:03 EDT] Added 1 Tier List"}, repo.adjustCalls)
}

func TestDecrement_FormatsEntry(t *testing.T) {
	repo := &mockLedgerRepo{}
	svc := newTestService(t, repo)

	change, err := svc.Decrement(context.Background(), "shroud", model.RewardShoutout)
	require.NoError(t, err)
	assert.Equal(t, "[2024-05-01 14:03 EDT] Removed 1 Shoutout", change.Entry)
}

func TestAdjust_InvalidKindDoesNotTouchStore(t *testing.T) {
	repo := &mockLedgerRepo{}
	svc := newTestService(t, repo)

	_, err := svc.Increment(context.Background(), "shroud", model.RewardKind(99))
	assert.ErrorIs(t, err, apperror.ErrInvalidRewardKind)

	_, err = svc.Decrement(context.Background(), "shroud", model.RewardKind(0))
	assert.ErrorIs(t, err, apperror.ErrInvalidRewardKind)

	assert.Empty(t, repo.adjustCalls)
}

func TestAdjust_EmptyHandle(t *testing.T) {
	repo := &mockLedgerRepo{}
	svc := newTestService(t, repo)

	_, err := svc.Increment(context.Background(), "  ", model.RewardTierList)
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Empty(t, repo.adjustCalls)
}

func TestAdjust_PassesBelowZeroThrough(t *testing.T) {
	repo := &mockLedgerRepo{adjustErr: apperror.BelowZero("shroud", "Tier List")}
	svc := newTestService(t, repo)

	_, err := svc.Decrement(context.Background(), "shroud", model.RewardTierList)
	assert.ErrorIs(t, err, apperror.ErrBelowZero)
}

func TestActivityEntry(t *testing.T) {
	at := time.Date(2024, 1, 15, 9, 5, 0, 0, newYork(t))

	assert.Equal(t, "[2024-01-15 09:05 EST] Added 1 VOD Review", ActivityEntry(at, model.RewardVODReview, 1))
	assert.Equal(t, "[2024-01-15 09:05 EST] Removed 1 VOD Review", ActivityEntry(at, model.RewardVODReview, -1))
}

// =========================================================================
// INTEGRATION: service over in-memory sqlite
// =========================================================================

func newSQLiteService(t *testing.T) *LedgerService {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.EnsureSchema(context.Background()))

	clock := fixedNow
	return NewLedgerService(Static(db), newYork(t), zerolog.New(io.Discard),
		WithClock(func() time.Time {
			clock = clock.Add(time.Minute)
			return clock
		}))
}

func TestLedger_ShroudScenario(t *testing.T) {
	ctx := context.Background()
	svc := newSQLiteService(t)

	reg, err := svc.Register(ctx, 1001, "shroud")
	require.NoError(t, err)
	assert.True(t, reg.Created)

	_, err = svc.Register(ctx, 2002, "SHROUD")
	require.ErrorIs(t, err, apperror.ErrDuplicateHandle)

	handle, ok, err := svc.GetHandle(ctx, 2002)
	require.NoError(t, err)
	assert.False(t, ok, "second user must stay unregistered")
	assert.Empty(t, handle)

	change, err := svc.Increment(ctx, "Shroud", model.RewardTierList)
	require.NoError(t, err)
	assert.Equal(t, 1, change.Count)

	change, err = svc.Decrement(ctx, "shroud", model.RewardTierList)
	require.NoError(t, err)
	assert.Equal(t, 0, change.Count)

	_, err = svc.Decrement(ctx, "shroud", model.RewardTierList)
	require.ErrorIs(t, err, apperror.ErrBelowZero)

	snap, ok, err := svc.GetRewards(ctx, 1001)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, snap.Count(model.RewardTierList))
	assert.Equal(t, []string{
		"[2024-05-01 14:05 EDT] Removed 1 Tier List",
		"[2024-05-01 14:04 EDT] Added 1 Tier List",
	}, snap.Activity)
}

func TestLedger_ReRegisterOverwritesHandle(t *testing.T) {
	ctx := context.Background()
	svc := newSQLiteService(t)

	_, err := svc.Register(ctx, 1, "first")
	require.NoError(t, err)

	reg, err := svc.Register(ctx, 1, "Second")
	require.NoError(t, err)
	assert.False(t, reg.Created)

	handle, ok, err := svc.GetHandle(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", handle)

	// The released handle can be claimed by someone else.
	_, err = svc.Register(ctx, 2, "first")
	assert.NoError(t, err)
}

func TestLedger_UnknownHandle(t *testing.T) {
	svc := newSQLiteService(t)

	_, err := svc.Increment(context.Background(), "nobody", model.RewardShoutout)
	assert.ErrorIs(t, err, apperror.ErrUserNotFound)
}

func TestLedger_ConcurrentRegisterSameHandle(t *testing.T) {
	ctx := context.Background()
	svc := newSQLiteService(t)

	variants := []string{"shroud", "SHROUD", "Shroud", " shroud ", "sHrOuD", "shrouD", "ShRoUd", "SHroud"}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var winners []int64
	duplicates := 0
	for i, raw := range variants {
		wg.Add(1)
		go func(userID int64, raw string) {
			defer wg.Done()
			_, err := svc.Register(ctx, userID, raw)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, userID)
			case errors.Is(err, apperror.ErrDuplicateHandle):
				duplicates++
			default:
				t.Errorf("Register(%d, %q) unexpected error = %v", userID, raw, err)
			}
		}(int64(100+i), raw)
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, len(variants)-1, duplicates)

	for i := range variants {
		userID := int64(100 + i)
		handle, ok, err := svc.GetHandle(ctx, userID)
		require.NoError(t, err)
		if userID == winners[0] {
			assert.True(t, ok)
			assert.Equal(t, "shroud", handle)
		} else {
			assert.False(t, ok, "user %d must stay unregistered", userID)
		}
	}
}
