package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/m3rciful/akibot/game/engine"
)

func TestStoreBasics(t *testing.T) {
	st := NewStore()
	assert.False(t, st.Contains(1))
	_, ok := st.Get(1)
	assert.False(t, ok)
	assert.False(t, st.Remove(1))

	st.Put(&Session{ChatID: 1, OwnerID: 10})
	st.Put(&Session{ChatID: 2, OwnerID: 20})
	assert.True(t, st.Contains(1))
	assert.Equal(t, 2, st.Len())

	snap, ok := st.Get(2)
	require.True(t, ok)
	assert.Equal(t, int64(20), snap.OwnerID)

	st.Put(&Session{ChatID: 2, OwnerID: 21})
	snap, _ = st.Get(2)
	assert.Equal(t, int64(21), snap.OwnerID)
	assert.Equal(t, 2, st.Len())

	assert.True(t, st.Remove(1))
	assert.False(t, st.Contains(1))
	assert.Equal(t, 1, st.Len())
}

func TestStorePutIfAbsent(t *testing.T) {
	st := NewStore()
	_, ok := st.PutIfAbsent(&Session{ChatID: 1, OwnerID: 10})
	require.True(t, ok)

	cur, ok := st.PutIfAbsent(&Session{ChatID: 1, OwnerID: 11})
	assert.False(t, ok)
	assert.Equal(t, int64(10), cur.OwnerID)
	snap, _ := st.Get(1)
	assert.Equal(t, int64(10), snap.OwnerID)
}

func TestStoreRangeAndRemoveIf(t *testing.T) {
	st := NewStore()
	for i := int64(1); i <= 5; i++ {
		st.Put(&Session{ChatID: i, OwnerID: i * 10})
	}

	seen := map[int64]int64{}
	st.Range(func(chatID int64, s Snapshot) bool {
		seen[chatID] = s.OwnerID
		return true
	})
	assert.Len(t, seen, 5)
	assert.Equal(t, int64(30), seen[3])

	count := 0
	st.Range(func(int64, Snapshot) bool {
		count++
		return false
	})
	assert.Equal(t, 1, count)

	_, ok := st.RemoveIf(3, func(s *Session) bool { return s.OwnerID == 99 })
	assert.False(t, ok)
	snap, ok := st.RemoveIf(3, func(s *Session) bool { return s.OwnerID == 30 })
	assert.True(t, ok)
	assert.Equal(t, int64(3), snap.ChatID)
	assert.False(t, st.Contains(3))

	_, ok = st.RemoveIf(42, func(*Session) bool { return true })
	assert.False(t, ok)
}

func TestStoreRangeMayMutate(t *testing.T) {
	st := NewStore()
	st.Put(&Session{ChatID: 1})
	st.Put(&Session{ChatID: 2})
	st.Range(func(chatID int64, _ Snapshot) bool {
		st.Remove(chatID)
		return true
	})
	assert.Zero(t, st.Len())
}

func TestStoreMutate(t *testing.T) {
	st := NewStore()
	assert.False(t, st.Mutate(1, func(*Session) bool { return false }))

	st.Put(&Session{ChatID: 1, QuestionIndex: 1})
	assert.True(t, st.Mutate(1, func(s *Session) bool {
		s.QuestionIndex = 5
		return false
	}))
	snap, _ := st.Get(1)
	assert.Equal(t, 5, snap.QuestionIndex)

	assert.True(t, st.Mutate(1, func(*Session) bool { return true }))
	assert.False(t, st.Contains(1))
}

func TestSnapshotCopiesProposal(t *testing.T) {
	s := &Session{ChatID: 1}
	assert.Nil(t, s.Snapshot().Proposal)

	s.Proposal = &engine.Proposal{Name: "Pelé"}
	snap := s.Snapshot()
	snap.Proposal.Name = "changed"
	assert.Equal(t, "Pelé", s.Proposal.Name)
}

func TestStoreMatchesMapModel(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		st := NewStore()
		model := map[int64]int64{}
		ops := rapid.IntRange(1, 60).Draw(t, "ops")
		for i := 0; i < ops; i++ {
			chat := rapid.Int64Range(1, 4).Draw(t, "chat")
			owner := rapid.Int64Range(1, 3).Draw(t, "owner")
			switch rapid.IntRange(0, 3).Draw(t, "op") {
			case 0:
				st.Put(&Session{ChatID: chat, OwnerID: owner})
				model[chat] = owner
			case 1:
				_, inserted := st.PutIfAbsent(&Session{ChatID: chat, OwnerID: owner})
				_, existed := model[chat]
				if inserted == existed {
					t.Fatalf("PutIfAbsent inserted=%v with existing=%v", inserted, existed)
				}
				if inserted {
					model[chat] = owner
				}
			case 2:
				_, existed := model[chat]
				if st.Remove(chat) != existed {
					t.Fatalf("Remove(%d) disagrees with model", chat)
				}
				delete(model, chat)
			case 3:
				_, removed := st.RemoveIf(chat, func(s *Session) bool { return s.OwnerID == owner })
				if want := model[chat] == owner && existsIn(model, chat); removed != want {
					t.Fatalf("RemoveIf(%d) removed=%v want %v", chat, removed, want)
				}
				if removed {
					delete(model, chat)
				}
			}

			if st.Len() != len(model) {
				t.Fatalf("len %d, model %d", st.Len(), len(model))
			}
			for c, o := range model {
				snap, ok := st.Get(c)
				if !ok || snap.OwnerID != o {
					t.Fatalf("chat %d: got owner %d present=%v, want %d", c, snap.OwnerID, ok, o)
				}
			}
		}
	})
}

func existsIn(m map[int64]int64, k int64) bool {
	_, ok := m[k]
	return ok
}
