package gate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/akibot/game/engine/enginetest"
	"github.com/m3rciful/akibot/game/session"
	"github.com/m3rciful/akibot/game/storage"
)

var ctx = context.Background()

const (
	chat  int64 = 100
	admin int64 = 9
	user  int64 = 1
)

func admins(ids ...int64) AdminChecker {
	return AdminCheckerFunc(func(_ context.Context, _, userID int64) (bool, error) {
		for _, id := range ids {
			if id == userID {
				return true, nil
			}
		}
		return false, nil
	})
}

type flakyLocks struct {
	storage.Repository
	err error
}

func (f flakyLocks) IsChatLocked(context.Context, int64) (bool, error) { return false, f.err }
func (f flakyLocks) LockChat(context.Context, int64, int64) error      { return f.err }
func (f flakyLocks) UnlockChat(context.Context, int64) error           { return f.err }

func newGate() (*Gate, *session.Manager, *storage.Memory) {
	repo := storage.NewMemory()
	m := session.NewManager(session.NewStore(), enginetest.Factory(), session.Config{})
	return New(repo, admins(admin), m, nil), m, repo
}

func TestAdmitUnlockedChat(t *testing.T) {
	g, _, _ := newGate()
	for _, a := range []Action{ActionStart, ActionPlay, ActionCancel, ActionAnswer, ActionVerdict, ActionLock, ActionUnlock} {
		assert.NoError(t, g.Admit(ctx, chat, user, a), a)
	}
}

func TestLockedChatRejectsAllButUnlock(t *testing.T) {
	g, _, _ := newGate()
	_, err := g.Lock(ctx, chat, admin)
	require.NoError(t, err)

	for _, a := range []Action{ActionStart, ActionPlay, ActionCancel, ActionAnswer, ActionVerdict, ActionLock} {
		assert.ErrorIs(t, g.Admit(ctx, chat, admin, a), ErrChatLocked, a)
	}
	assert.NoError(t, g.Admit(ctx, chat, user, ActionUnlock))
	assert.NoError(t, g.Admit(ctx, 200, user, ActionPlay))
}

func TestLockThenCreateIsRejected(t *testing.T) {
	g, m, _ := newGate()
	_, err := g.Lock(ctx, chat, admin)
	require.NoError(t, err)

	err = g.Admit(ctx, chat, user, ActionPlay)
	require.ErrorIs(t, err, ErrChatLocked)
	_, ok := m.Get(chat)
	assert.False(t, ok)
}

func TestLockCancelsActiveSession(t *testing.T) {
	g, m, repo := newGate()
	_, err := m.Create(ctx, chat, user)
	require.NoError(t, err)

	cancelled, err := g.Lock(ctx, chat, admin)
	require.NoError(t, err)
	assert.True(t, cancelled)
	_, ok := m.Get(chat)
	assert.False(t, ok)

	locked, err := repo.IsChatLocked(ctx, chat)
	require.NoError(t, err)
	assert.True(t, locked)

	cancelled, err = g.Lock(ctx, chat, admin)
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestLockAndUnlockNeedAdmin(t *testing.T) {
	g, m, repo := newGate()
	_, err := m.Create(ctx, chat, user)
	require.NoError(t, err)

	_, err = g.Lock(ctx, chat, user)
	require.ErrorIs(t, err, ErrNotAdmin)
	_, ok := m.Get(chat)
	assert.True(t, ok)

	_, err = g.Lock(ctx, chat, admin)
	require.NoError(t, err)
	assert.ErrorIs(t, g.Unlock(ctx, chat, user), ErrNotAdmin)

	require.NoError(t, g.Unlock(ctx, chat, admin))
	locked, err := repo.IsChatLocked(ctx, chat)
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestLockLookupFailureFailsClosed(t *testing.T) {
	boom := errors.New("connection refused")
	g := New(flakyLocks{err: boom}, admins(admin), nil, nil)

	err := g.Admit(ctx, chat, user, ActionPlay)
	require.ErrorIs(t, err, ErrLockUnavailable)
	assert.ErrorIs(t, err, boom)
	var coded interface{ Code() string }
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, CodePersistenceFailure, coded.Code())

	assert.NoError(t, g.Admit(ctx, chat, admin, ActionUnlock))
	assert.ErrorIs(t, g.Unlock(ctx, chat, admin), ErrLockUnavailable)
	_, err = g.Lock(ctx, chat, admin)
	assert.ErrorIs(t, err, ErrLockUnavailable)
}

func TestOracleErrorMeansNotAdmin(t *testing.T) {
	oracle := AdminCheckerFunc(func(context.Context, int64, int64) (bool, error) {
		return true, errors.New("telegram: chat not found")
	})
	g := New(storage.NewMemory(), oracle, nil, nil)
	assert.False(t, g.IsAdmin(ctx, chat, admin))
	_, err := g.Lock(ctx, chat, admin)
	assert.ErrorIs(t, err, ErrNotAdmin)

	assert.False(t, New(storage.NewMemory(), nil, nil, nil).IsAdmin(ctx, chat, admin))
}
