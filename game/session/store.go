package session

import "sync"

// Store maps chat ids to live sessions. A session is live if and only if
// it is stored. All methods are safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{sessions: make(map[int64]*Session)}
}

// Put stores s under its chat id, replacing any previous session.
func (st *Store) Put(s *Session) {
	st.mu.Lock()
	st.sessions[s.ChatID] = s
	st.mu.Unlock()
}

// PutIfAbsent stores s unless the chat already has a session, in which
// case a snapshot of the existing one is returned with false.
func (st *Store) PutIfAbsent(s *Session) (Snapshot, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if cur, ok := st.sessions[s.ChatID]; ok {
		return cur.Snapshot(), false
	}
	st.sessions[s.ChatID] = s
	return Snapshot{}, true
}

// Get returns a snapshot of the chat's session.
func (st *Store) Get(chatID int64) (Snapshot, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[chatID]
	if !ok {
		return Snapshot{}, false
	}
	return s.Snapshot(), true
}

// Remove deletes the chat's session and reports whether one existed.
func (st *Store) Remove(chatID int64) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[chatID]; !ok {
		return false
	}
	delete(st.sessions, chatID)
	return true
}

// Contains reports whether the chat has a live session.
func (st *Store) Contains(chatID int64) bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	_, ok := st.sessions[chatID]
	return ok
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Range calls fn for a snapshot of every session until fn returns false.
// fn runs without the store lock held.
func (st *Store) Range(fn func(chatID int64, s Snapshot) bool) {
	st.mu.RLock()
	snaps := make([]Snapshot, 0, len(st.sessions))
	for _, s := range st.sessions {
		snaps = append(snaps, s.Snapshot())
	}
	st.mu.RUnlock()
	for _, s := range snaps {
		if !fn(s.ChatID, s) {
			return
		}
	}
}

// RemoveIf deletes the chat's session when pred, evaluated under the store
// lock, returns true. The removed session's snapshot is returned.
func (st *Store) RemoveIf(chatID int64, pred func(*Session) bool) (Snapshot, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[chatID]
	if !ok || !pred(s) {
		return Snapshot{}, false
	}
	delete(st.sessions, chatID)
	return s.Snapshot(), true
}

// Mutate runs fn on the chat's session under the store lock. When fn
// returns true the session is deleted. It reports whether a session existed.
func (st *Store) Mutate(chatID int64, fn func(*Session) (remove bool)) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[chatID]
	if !ok {
		return false
	}
	if fn(s) {
		delete(st.sessions, chatID)
	}
	return true
}
