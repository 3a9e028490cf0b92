package storage

import (
	"context"
	"sync"
)

// Memory is a process-local Repository.
type Memory struct {
	mu     sync.RWMutex
	users  map[int64]struct{}
	locks  map[int64]int64
	closed bool
}

// NewMemory returns an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{
		users: make(map[int64]struct{}),
		locks: make(map[int64]int64),
	}
}

// SaveUser implements Repository.
func (m *Memory) SaveUser(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.users[userID] = struct{}{}
	return nil
}

// CountUsers implements Repository.
func (m *Memory) CountUsers(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrClosed
	}
	return len(m.users), nil
}

// LockChat implements Repository.
func (m *Memory) LockChat(_ context.Context, chatID, lockedBy int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.locks[chatID] = lockedBy
	return nil
}

// UnlockChat implements Repository.
func (m *Memory) UnlockChat(_ context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.locks, chatID)
	return nil
}

// IsChatLocked implements Repository.
func (m *Memory) IsChatLocked(_ context.Context, chatID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false, ErrClosed
	}
	_, ok := m.locks[chatID]
	return ok, nil
}

// Close implements Repository.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
