package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/akibot/core/logger"
	"github.com/m3rciful/akibot/game/engine"
	"github.com/m3rciful/akibot/game/metrics"
)

// Defaults applied by NewManager and NewSweeper.
const (
	DefaultTimeout         = 120 * time.Second
	DefaultGuessThreshold  = 80.0
	DefaultCleanupInterval = 60 * time.Second
)

// Config holds the lifecycle parameters.
type Config struct {
	// Timeout is the idle time after which a session expires.
	Timeout time.Duration
	// GuessThreshold is the progress, in percent, at which a guess is shown.
	GuessThreshold float64
	StartOptions   engine.StartOptions
}

// Kind classifies a lifecycle result.
type Kind int

const (
	KindQuestion Kind = iota + 1
	KindGuess
	KindAlreadyFirst
	KindVictory
	KindDefeat
)

func (k Kind) String() string {
	switch k {
	case KindQuestion:
		return "question"
	case KindGuess:
		return "guess"
	case KindAlreadyFirst:
		return "already_first"
	case KindVictory:
		return "victory"
	case KindDefeat:
		return "defeat"
	}
	return "unknown"
}

// Result is what a successful lifecycle call produced. Session is the state
// after the call; for Victory and Defeat it is the state the game ended in.
type Result struct {
	Kind     Kind
	Session  Snapshot
	Proposal *engine.Proposal
}

// Option customises a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithMetrics records lifecycle metrics into mt.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// Manager applies lifecycle operations to the sessions in a Store.
// The store lock is never held across an engine call: a turn marks the
// session busy, calls the engine, then commits only if the same session is
// still stored.
type Manager struct {
	store   *Store
	factory engine.Factory
	cfg     Config
	now     func() time.Time
	metrics *metrics.Metrics
}

// NewManager builds a manager over store. Zero config values take defaults.
func NewManager(store *Store, factory engine.Factory, cfg Config, opts ...Option) *Manager {
	if store == nil {
		store = NewStore()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.GuessThreshold <= 0 {
		cfg.GuessThreshold = DefaultGuessThreshold
	}
	m := &Manager{store: store, factory: factory, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the effective configuration.
func (m *Manager) Config() Config { return m.cfg }

// Get returns a snapshot of the chat's session.
func (m *Manager) Get(chatID int64) (Snapshot, bool) { return m.store.Get(chatID) }

// Len returns the number of live sessions.
func (m *Manager) Len() int { return m.store.Len() }

// Create starts a game in chatID owned by userID. The chat slot is reserved
// before the engine is started and released again if the start fails, so a
// failed Create leaves nothing behind.
func (m *Manager) Create(ctx context.Context, chatID, userID int64) (Result, error) {
	now := m.now()
	s := &Session{
		ID:             uuid.New(),
		ChatID:         chatID,
		OwnerID:        userID,
		StartedAt:      now,
		LastActivityAt: now,
		engine:         m.factory(),
		busy:           true,
	}
	if cur, ok := m.store.PutIfAbsent(s); !ok {
		return Result{}, &ActiveError{OwnerID: cur.OwnerID}
	}
	m.metrics.SetActive(m.store.Len())
	ctx = logger.WithSessionID(ctx, s.ID.String())

	st, err := m.call(ctx, "start", func(ctx context.Context) (engine.State, error) {
		return s.engine.Start(ctx, m.cfg.StartOptions)
	})
	if err != nil {
		m.discard(ctx, s, "start", err)
		return Result{}, engineFailure("start", err)
	}

	snap, ok := m.commit(s, func(s *Session) {
		s.QuestionIndex = 1
		s.applyQuestion(st)
	})
	if !ok {
		return Result{}, ErrNoActiveSession
	}
	m.metrics.SessionStarted()
	logger.Info(ctx, logger.CompSession, "session.created", snapshotAttrs(snap)...)
	return Result{Kind: KindQuestion, Session: snap}, nil
}

// SubmitAnswer forwards a to the engine. The result is a Guess once the
// engine is ready and progress reached the threshold, otherwise the next
// Question.
func (m *Manager) SubmitAnswer(ctx context.Context, chatID, userID int64, a engine.Answer) (Result, error) {
	s, _, err := m.acquire(ctx, chatID, userID, turnAnswer)
	if err != nil {
		return Result{}, err
	}
	ctx = logger.WithSessionID(ctx, s.ID.String())
	m.metrics.Answer(string(a))

	st, err := m.call(ctx, "answer", func(ctx context.Context) (engine.State, error) {
		return s.engine.Answer(ctx, a)
	})
	if err != nil {
		m.discard(ctx, s, "answer", err)
		return Result{}, engineFailure("answer", err)
	}

	kind := KindQuestion
	snap, ok := m.commit(s, func(s *Session) {
		s.QuestionIndex++
		if m.shouldGuess(st) {
			p := *st.Proposal
			s.State = AwaitingVerdict
			s.Progress = st.Progress
			s.Proposal = &p
			kind = KindGuess
			return
		}
		s.applyQuestion(st)
	})
	if !ok {
		return Result{}, ErrNoActiveSession
	}
	attrs := append(snapshotAttrs(snap), slog.String("answer", string(a)), slog.String("result", kind.String()))
	if kind == KindGuess {
		logger.Info(ctx, logger.CompSession, "session.guess", append(attrs, slog.String("guess", snap.Proposal.Name))...)
	} else {
		logger.Debug(ctx, logger.CompSession, "session.answer", attrs...)
	}
	return Result{Kind: kind, Session: snap, Proposal: snap.Proposal}, nil
}

// GoBack returns to the previous question. On the first question it is a
// no-op that never reaches the engine.
func (m *Manager) GoBack(ctx context.Context, chatID, userID int64) (Result, error) {
	s, first, err := m.acquire(ctx, chatID, userID, turnBack)
	if err != nil {
		return Result{}, err
	}
	if s == nil {
		return Result{Kind: KindAlreadyFirst, Session: first}, nil
	}
	ctx = logger.WithSessionID(ctx, s.ID.String())

	st, err := m.call(ctx, "back", func(ctx context.Context) (engine.State, error) {
		return s.engine.Back(ctx)
	})
	if errors.Is(err, engine.ErrCannotGoBack) {
		snap, ok := m.commit(s, func(s *Session) { s.QuestionIndex = 1 })
		if !ok {
			return Result{}, ErrNoActiveSession
		}
		return Result{Kind: KindAlreadyFirst, Session: snap}, nil
	}
	if err != nil {
		m.discard(ctx, s, "back", err)
		return Result{}, engineFailure("back", err)
	}

	snap, ok := m.commit(s, func(s *Session) {
		if s.QuestionIndex > 1 {
			s.QuestionIndex--
		}
		s.applyQuestion(st)
	})
	if !ok {
		return Result{}, ErrNoActiveSession
	}
	logger.Debug(ctx, logger.CompSession, "session.back", snapshotAttrs(snap)...)
	return Result{Kind: KindQuestion, Session: snap}, nil
}

// ResolveGuess ends the game with the owner's verdict on the guess.
// The session is always removed.
func (m *Manager) ResolveGuess(ctx context.Context, chatID, userID int64, correct bool) (Result, error) {
	now := m.now()
	var (
		snap Snapshot
		err  error
	)
	found := m.store.Mutate(chatID, func(s *Session) bool {
		if s.OwnerID != userID {
			err = ErrWrongOwner
			return false
		}
		if s.Expired(now, m.cfg.Timeout) {
			err = ErrExpired
		}
		snap = s.Snapshot()
		return true
	})
	if !found {
		return Result{}, ErrNoActiveSession
	}
	ctx = logger.WithSessionID(ctx, snap.ID.String())
	switch {
	case errors.Is(err, ErrExpired):
		m.ended(ctx, snap, metrics.ReasonExpired)
		return Result{}, err
	case err != nil:
		return Result{}, err
	}

	kind, reason := KindDefeat, metrics.ReasonDefeat
	if correct {
		kind, reason = KindVictory, metrics.ReasonVictory
	}
	m.ended(ctx, snap, reason)
	return Result{Kind: kind, Session: snap, Proposal: snap.Proposal}, nil
}

// Cancel removes the chat's session. Only the owner may cancel unless the
// caller has already confirmed that userID administers the chat.
func (m *Manager) Cancel(ctx context.Context, chatID, userID int64, isAdmin bool) (Snapshot, error) {
	var (
		snap Snapshot
		err  error
	)
	found := m.store.Mutate(chatID, func(s *Session) bool {
		if s.OwnerID != userID && !isAdmin {
			err = ErrWrongOwner
			return false
		}
		snap = s.Snapshot()
		return true
	})
	if !found {
		return Snapshot{}, ErrNoActiveSession
	}
	if err != nil {
		return Snapshot{}, err
	}
	m.ended(logger.WithSessionID(ctx, snap.ID.String()), snap, metrics.ReasonCancel)
	return snap, nil
}

// Evict removes the chat's session regardless of owner and state.
func (m *Manager) Evict(ctx context.Context, chatID int64, reason string) (Snapshot, bool) {
	snap, ok := m.store.RemoveIf(chatID, func(*Session) bool { return true })
	if ok {
		m.ended(logger.WithSessionID(ctx, snap.ID.String()), snap, reason)
	}
	return snap, ok
}

type turn int

const (
	turnAnswer turn = iota
	turnBack
)

// acquire validates a turn and marks the session busy. For a back turn on
// the first question it returns a nil session and the refreshed snapshot.
func (m *Manager) acquire(ctx context.Context, chatID, userID int64, t turn) (*Session, Snapshot, error) {
	now := m.now()
	var (
		held *Session
		snap Snapshot
		err  error
	)
	found := m.store.Mutate(chatID, func(s *Session) bool {
		switch {
		case s.OwnerID != userID:
			err = ErrWrongOwner
		case s.Expired(now, m.cfg.Timeout):
			err = ErrExpired
			snap = s.Snapshot()
			return true
		case s.busy:
			err = ErrBusy
		case s.State == AwaitingVerdict:
			err = ErrGuessPending
		case t == turnBack && s.QuestionIndex <= 1:
			s.LastActivityAt = now
			snap = s.Snapshot()
		default:
			s.busy = true
			s.LastActivityAt = now
			held = s
		}
		return false
	})
	if !found {
		return nil, Snapshot{}, ErrNoActiveSession
	}
	if errors.Is(err, ErrExpired) {
		m.ended(logger.WithSessionID(ctx, snap.ID.String()), snap, metrics.ReasonExpired)
		return nil, Snapshot{}, err
	}
	return held, snap, err
}

// commit applies fn to s when s is still the stored session, then releases
// the busy mark and refreshes activity.
func (m *Manager) commit(s *Session, fn func(*Session)) (Snapshot, bool) {
	var (
		snap Snapshot
		ok   bool
	)
	m.store.Mutate(s.ChatID, func(cur *Session) bool {
		if cur != s {
			return false
		}
		fn(cur)
		cur.busy = false
		cur.LastActivityAt = m.now()
		snap, ok = cur.Snapshot(), true
		return false
	})
	return snap, ok
}

// discard removes s after a failed engine call unless it was already replaced.
func (m *Manager) discard(ctx context.Context, s *Session, op string, cause error) {
	snap, ok := m.store.RemoveIf(s.ChatID, func(cur *Session) bool { return cur == s })
	if !ok {
		return
	}
	logger.Error(ctx, logger.CompSession, "session.engine_error",
		append(snapshotAttrs(snap),
			slog.String("status", "fail"),
			slog.String("op", op),
			slog.String("err_code", CodeEngineFailure),
			logger.Err(cause),
		)...,
	)
	m.ended(ctx, snap, metrics.ReasonEngineError)
}

func (m *Manager) ended(ctx context.Context, snap Snapshot, reason string) {
	m.metrics.SessionEnded(reason)
	m.metrics.SetActive(m.store.Len())
	attrs := append(snapshotAttrs(snap),
		slog.String("reason", reason),
		slog.Duration("age", m.now().Sub(snap.StartedAt)),
	)
	logger.Info(ctx, logger.CompSession, "session.ended", attrs...)
}

func (m *Manager) call(ctx context.Context, op string, fn func(context.Context) (engine.State, error)) (engine.State, error) {
	start := time.Now()
	st, err := guarded(ctx, fn)
	took := time.Since(start)
	m.metrics.EngineCall(op, err, took)
	if logger.ShouldSampleDebug() {
		logger.Debug(ctx, logger.CompEngine, "engine.call",
			slog.String("op", op),
			slog.Float64("progress", st.Progress),
			slog.Bool("ready", st.ReadyToGuess),
			slog.Duration("duration", took),
			logger.Err(err),
		)
	}
	return st, err
}

// guarded runs fn and reports a panic as an error so the caller still
// discards the session.
func guarded(ctx context.Context, fn func(context.Context) (engine.State, error)) (st engine.State, err error) {
	defer func() {
		if r := recover(); r != nil {
			st, err = engine.State{}, fmt.Errorf("engine panic: %v", r)
		}
	}()
	return fn(ctx)
}

func (m *Manager) shouldGuess(st engine.State) bool {
	return st.ReadyToGuess && st.Proposal != nil && st.Progress >= m.cfg.GuessThreshold
}

func (s *Session) applyQuestion(st engine.State) {
	if st.Question != "" {
		s.Question = st.Question
	}
	s.Progress = st.Progress
}

func snapshotAttrs(s Snapshot) []slog.Attr {
	return []slog.Attr{
		slog.String("session_id", s.ID.String()),
		slog.Int64("chat_id", s.ChatID),
		slog.Int64("owner_id", s.OwnerID),
		slog.Int("question_index", s.QuestionIndex),
		slog.Float64("progress", s.Progress),
		slog.String("state", s.State.String()),
	}
}
