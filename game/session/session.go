// Package session runs one guessing game per chat: the in-memory store,
// the lifecycle manager that drives the engine, and the expiry sweeper.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/akibot/game/engine"
)

// State is the phase of a live session.
type State int

const (
	// Asking means the engine is asking questions.
	Asking State = iota
	// AwaitingVerdict means a guess was shown and the owner must confirm it.
	AwaitingVerdict
)

func (s State) String() string {
	switch s {
	case Asking:
		return "asking"
	case AwaitingVerdict:
		return "awaiting_verdict"
	}
	return "unknown"
}

// Session is the record of one game in a chat. It is owned by the Store;
// fields are only read or written under the store lock.
type Session struct {
	ID      uuid.UUID
	ChatID  int64
	OwnerID int64

	StartedAt      time.Time
	LastActivityAt time.Time
	// QuestionIndex is 1 on the first question and never drops below 1.
	QuestionIndex int

	State    State
	Question string
	Progress float64
	Proposal *engine.Proposal

	engine engine.Engine
	// busy marks an engine call in flight.
	busy bool
}

// Expired reports whether the session has been idle longer than timeout.
func (s *Session) Expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastActivityAt) > timeout
}

// Snapshot copies the exported state.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		ID:             s.ID,
		ChatID:         s.ChatID,
		OwnerID:        s.OwnerID,
		StartedAt:      s.StartedAt,
		LastActivityAt: s.LastActivityAt,
		QuestionIndex:  s.QuestionIndex,
		State:          s.State,
		Question:       s.Question,
		Progress:       s.Progress,
		Busy:           s.busy,
	}
	if s.Proposal != nil {
		p := *s.Proposal
		snap.Proposal = &p
	}
	return snap
}

// Snapshot is a read-only copy of a Session.
type Snapshot struct {
	ID             uuid.UUID
	ChatID         int64
	OwnerID        int64
	StartedAt      time.Time
	LastActivityAt time.Time
	QuestionIndex  int
	State          State
	Question       string
	Progress       float64
	Proposal       *engine.Proposal
	Busy           bool
}

// Expired reports whether the snapshot was idle longer than timeout.
func (s Snapshot) Expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastActivityAt) > timeout
}
