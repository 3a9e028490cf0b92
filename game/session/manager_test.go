package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/akibot/game/engine"
	"github.com/m3rciful/akibot/game/engine/enginetest"
	"github.com/m3rciful/akibot/game/metrics"
)

var ctx = context.Background()

func TestCreateStartsFirstQuestion(t *testing.T) {
	eng := &enginetest.Engine{StartStep: enginetest.Step{State: enginetest.Question("Seu personagem é real?", 0)}}
	m, clk := newTestManager(eng)

	res, err := m.Create(ctx, 100, 1)
	require.NoError(t, err)
	assert.Equal(t, KindQuestion, res.Kind)
	assert.Equal(t, 1, res.Session.QuestionIndex)
	assert.Equal(t, "Seu personagem é real?", res.Session.Question)
	assert.Equal(t, int64(1), res.Session.OwnerID)
	assert.Equal(t, clk.Now(), res.Session.LastActivityAt)
	assert.False(t, res.Session.Busy)
	assert.NotEqual(t, uuid.Nil, res.Session.ID)
	assert.Equal(t, []string{"start:pt:c"}, eng.Calls())
	assert.Equal(t, 1, m.Len())
}

func TestCreateWhileActiveFailsAndKeepsOwner(t *testing.T) {
	m, _ := newTestManager()
	_, err := m.Create(ctx, 100, 1)
	require.NoError(t, err)
	before, _ := m.Get(100)

	_, err = m.Create(ctx, 100, 2)
	require.ErrorIs(t, err, ErrAlreadyActive)
	var active *ActiveError
	require.ErrorAs(t, err, &active)
	assert.Equal(t, int64(1), active.OwnerID)

	after, ok := m.Get(100)
	require.True(t, ok)
	assert.Equal(t, before, after)
	assert.Equal(t, int64(1), after.OwnerID)
}

func TestCreateEngineFailureLeavesStoreEmpty(t *testing.T) {
	boom := errors.New("akinator down")
	eng := &enginetest.Engine{StartStep: enginetest.Step{Err: boom}}
	m, _ := newTestManager(eng)

	_, err := m.Create(ctx, 100, 1)
	require.ErrorIs(t, err, ErrEngineFailure)
	assert.ErrorIs(t, err, boom)
	_, ok := m.Get(100)
	assert.False(t, ok)
	assert.Zero(t, m.Len())

	_, err = m.Create(ctx, 100, 1)
	assert.NoError(t, err)
}

func TestGuessAfterThresholdAndReadiness(t *testing.T) {
	eng := &enginetest.Engine{
		StartStep: enginetest.Step{State: enginetest.Question("q1", 0)},
		Answers: append(questions(20, 45, 70),
			enginetest.Step{State: enginetest.Guess("Ayrton Senna", 85)},
		),
	}
	m, _ := newTestManager(eng)
	_, err := m.Create(ctx, 100, 1)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		res, err := m.SubmitAnswer(ctx, 100, 1, engine.Yes)
		require.NoError(t, err)
		assert.Equal(t, KindQuestion, res.Kind)
		assert.Equal(t, i+2, res.Session.QuestionIndex)
		assert.Equal(t, Asking, res.Session.State)
	}

	res, err := m.SubmitAnswer(ctx, 100, 1, engine.Probably)
	require.NoError(t, err)
	assert.Equal(t, KindGuess, res.Kind)
	require.NotNil(t, res.Proposal)
	assert.Equal(t, "Ayrton Senna", res.Proposal.Name)
	assert.Equal(t, 5, res.Session.QuestionIndex)

	snap, ok := m.Get(100)
	require.True(t, ok)
	assert.Equal(t, AwaitingVerdict, snap.State)
	assert.Equal(t, 85.0, snap.Progress)
	assert.Equal(t, []string{"start:pt:c", "answer:yes", "answer:yes", "answer:yes", "answer:probably"}, eng.Calls())
}

func TestGuessFallsBackToQuestion(t *testing.T) {
	tests := []struct {
		name  string
		state engine.State
	}{
		{"ready below threshold", enginetest.Guess("Pelé", 79.9)},
		{"not ready above threshold", enginetest.Question("q2", 95)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &enginetest.Engine{
				StartStep: enginetest.Step{State: enginetest.Question("q1", 0)},
				Answers:   []enginetest.Step{{State: tt.state}},
			}
			m, _ := newTestManager(eng)
			_, err := m.Create(ctx, 100, 1)
			require.NoError(t, err)

			res, err := m.SubmitAnswer(ctx, 100, 1, engine.No)
			require.NoError(t, err)
			assert.Equal(t, KindQuestion, res.Kind)
			assert.Equal(t, Asking, res.Session.State)
			assert.Nil(t, res.Session.Proposal)
			assert.Equal(t, 2, res.Session.QuestionIndex)
		})
	}
}

func TestSubmitAnswerWrongOwnerChangesNothing(t *testing.T) {
	eng := &enginetest.Engine{
		StartStep: enginetest.Step{State: enginetest.Question("q1", 0)},
		Answers:   questions(10),
	}
	m, clk := newTestManager(eng)
	_, err := m.Create(ctx, 100, 1)
	require.NoError(t, err)
	before, _ := m.Get(100)

	clk.Advance(30 * time.Second)
	_, err = m.SubmitAnswer(ctx, 100, 2, engine.Yes)
	require.ErrorIs(t, err, ErrWrongOwner)
	_, err = m.GoBack(ctx, 100, 2)
	require.ErrorIs(t, err, ErrWrongOwner)

	after, _ := m.Get(100)
	assert.Equal(t, before, after)
	assert.Equal(t, []string{"start:pt:c"}, eng.Calls())
}

func TestSubmitAnswerAfterTimeoutExpires(t *testing.T) {
	eng := &enginetest.Engine{
		StartStep: enginetest.Step{State: enginetest.Question("q1", 0)},
		Answers:   questions(10),
	}
	m, clk := newTestManager(eng)
	_, err := m.Create(ctx, 100, 1)
	require.NoError(t, err)

	clk.Advance(m.Config().Timeout + time.Second)
	_, err = m.SubmitAnswer(ctx, 100, 1, engine.Yes)
	require.ErrorIs(t, err, ErrExpired)
	_, ok := m.Get(100)
	assert.False(t, ok)
	assert.Equal(t, []string{"start:pt:c"}, eng.Calls())
}

func TestActivityAtTimeoutBoundaryIsLive(t *testing.T) {
	eng := &enginetest.Engine{
		StartStep: enginetest.Step{State: enginetest.Question("q1", 0)},
		Answers:   questions(10),
	}
	m, clk := newTestManager(eng)
	_, err := m.Create(ctx, 100, 1)
	require.NoError(t, err)

	clk.Advance(m.Config().Timeout)
	res, err := m.SubmitAnswer(ctx, 100, 1, engine.Yes)
	require.NoError(t, err)
	assert.Equal(t, clk.Now(), res.Session.LastActivityAt)
}

func TestSubmitAnswerNoSession(t *testing.T) {
	m, _ := newTestManager()
	_, err := m.SubmitAnswer(ctx, 100, 1, engine.Yes)
	assert.ErrorIs(t, err, ErrNoActiveSession)
	_, err = m.GoBack(ctx, 100, 1)
	assert.ErrorIs(t, err, ErrNoActiveSession)
	_, err = m.ResolveGuess(ctx, 100, 1, true)
	assert.ErrorIs(t, err, ErrNoActiveSession)
	_, err = m.Cancel(ctx, 100, 1, true)
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestSubmitAnswerEngineFailureDeletesSession(t *testing.T) {
	boom := errors.New("timeout")
	eng := &enginetest.Engine{
		StartStep: enginetest.Step{State: enginetest.Question("q1", 0)},
		Answers:   []enginetest.Step{{Err: boom}},
	}
	m, _ := newTestManager(eng)
	_, err := m.Create(ctx, 100, 1)
	require.NoError(t, err)

	_, err = m.SubmitAnswer(ctx, 100, 1, engine.IDK)
	require.ErrorIs(t, err, ErrEngineFailure)
	assert.ErrorIs(t, err, boom)
	var coded interface{ Code() string }
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, CodeEngineFailure, coded.Code())
	_, ok := m.Get(100)
	assert.False(t, ok)
}

type panickyEngine struct {
	*enginetest.Engine
}

func (panickyEngine) Answer(context.Context, engine.Answer) (engine.State, error) {
	panic("nil map write")
}

func TestEnginePanicDeletesSession(t *testing.T) {
	clk := newClock()
	eng := panickyEngine{&enginetest.Engine{StartStep: enginetest.Step{State: enginetest.Question("q1", 0)}}}
	m := NewManager(NewStore(), func() engine.Engine { return eng }, Config{StartOptions: testStart}, WithClock(clk.Now))
	_, err := m.Create(ctx, 100, 1)
	require.NoError(t, err)

	_, err = m.SubmitAnswer(ctx, 100, 1, engine.Yes)
	require.ErrorIs(t, err, ErrEngineFailure)
	assert.Contains(t, err.Error(), "nil map write")
	_, ok := m.Get(100)
	assert.False(t, ok)

	_, err = m.Create(ctx, 100, 2)
	assert.NoError(t, err, "the chat is free for a new game")
}

func TestCreateEnginePanicFreesChat(t *testing.T) {
	m, _ := newTestManager()
	m.factory = func() engine.Engine { return nil }

	_, err := m.Create(ctx, 100, 1)
	require.ErrorIs(t, err, ErrEngineFailure)
	assert.Zero(t, m.Len())
}

func TestGoBackOnFirstQuestionSkipsEngine(t *testing.T) {
	eng := &enginetest.Engine{StartStep: enginetest.Step{State: enginetest.Question("q1", 0)}}
	m, clk := newTestManager(eng)
	_, err := m.Create(ctx, 100, 1)
	require.NoError(t, err)

	clk.Advance(10 * time.Second)
	res, err := m.GoBack(ctx, 100, 1)
	require.NoError(t, err)
	assert.Equal(t, KindAlreadyFirst, res.Kind)
	assert.Equal(t, 1, res.Session.QuestionIndex)
	assert.Equal(t, clk.Now(), res.Session.LastActivityAt)
	assert.False(t, res.Session.Busy)
	assert.Equal(t, []string{"start:pt:c"}, eng.Calls())
}

func TestGoBackReturnsPreviousQuestion(t *testing.T) {
	eng := &enginetest.Engine{
		StartStep: enginetest.Step{State: enginetest.Question("q1", 0)},
		Answers:   questions(10, 20),
	}
	m, _ := newTestManager(eng)
	_, err := m.Create(ctx, 100, 1)
	require.NoError(t, err)
	_, err = m.SubmitAnswer(ctx, 100, 1, engine.Yes)
	require.NoError(t, err)
	_, err = m.SubmitAnswer(ctx, 100, 1, engine.No)
	require.NoError(t, err)

	res, err := m.GoBack(ctx, 100, 1)
	require.NoError(t, err)
	assert.Equal(t, KindQuestion, res.Kind)
	assert.Equal(t, 2, res.Session.QuestionIndex)
	assert.Equal(t, questionText(2), res.Session.Question)

	res, err = m.GoBack(ctx, 100, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Session.QuestionIndex)
	assert.Equal(t, "q1", res.Session.Question)

	res, err = m.GoBack(ctx, 100, 1)
	require.NoError(t, err)
	assert.Equal(t, KindAlreadyFirst, res.Kind)
	assert.Equal(t, []string{"start:pt:c", "answer:yes", "answer:no", "back", "back"}, eng.Calls())
}

func TestGoBackEngineRefusalKeepsSession(t *testing.T) {
	eng := &enginetest.Engine{
		StartStep: enginetest.Step{State: enginetest.Question("q1", 0)},
		Answers:   questions(10),
		BackErr:   engine.ErrCannotGoBack,
	}
	m, _ := newTestManager(eng)
	_, err := m.Create(ctx, 100, 1)
	require.NoError(t, err)
	_, err = m.SubmitAnswer(ctx, 100, 1, engine.Yes)
	require.NoError(t, err)

	res, err := m.GoBack(ctx, 100, 1)
	require.NoError(t, err)
	assert.Equal(t, KindAlreadyFirst, res.Kind)
	assert.Equal(t, 1, res.Session.QuestionIndex)
	assert.True(t, m.store.Contains(100))
}

func TestGoBackEngineFailureDeletesSession(t *testing.T) {
	eng := &enginetest.Engine{
		StartStep: enginetest.Step{State: enginetest.Question("q1", 0)},
		Answers:   questions(10),
		BackErr:   errors.New("bad gateway"),
	}
	m, _ := newTestManager(eng)
	_, err := m.Create(ctx, 100, 1)
	require.NoError(t, err)
	_, err = m.SubmitAnswer(ctx, 100, 1, engine.Yes)
	require.NoError(t, err)

	_, err = m.GoBack(ctx, 100, 1)
	require.ErrorIs(t, err, ErrEngineFailure)
	assert.False(t, m.store.Contains(100))
}

func guessingManager(t *testing.T) (*Manager, *fakeClock, *enginetest.Engine) {
	t.Helper()
	eng := &enginetest.Engine{
		StartStep: enginetest.Step{State: enginetest.Question("q1", 0)},
		Answers:   []enginetest.Step{{State: enginetest.Guess("Xuxa", 92)}},
	}
	m, clk := newTestManager(eng)
	_, err := m.Create(ctx, 100, 1)
	require.NoError(t, err)
	res, err := m.SubmitAnswer(ctx, 100, 1, engine.Yes)
	require.NoError(t, err)
	require.Equal(t, KindGuess, res.Kind)
	return m, clk, eng
}

func TestTurnsRejectedWhileGuessPending(t *testing.T) {
	m, _, eng := guessingManager(t)
	before, _ := m.Get(100)

	_, err := m.SubmitAnswer(ctx, 100, 1, engine.Yes)
	assert.ErrorIs(t, err, ErrGuessPending)
	_, err = m.GoBack(ctx, 100, 1)
	assert.ErrorIs(t, err, ErrGuessPending)

	after, _ := m.Get(100)
	assert.Equal(t, before, after)
	assert.Len(t, eng.Calls(), 2)
}

func TestResolveGuessAlwaysDeletes(t *testing.T) {
	for _, correct := range []bool{true, false} {
		m, _, _ := guessingManager(t)
		res, err := m.ResolveGuess(ctx, 100, 1, correct)
		require.NoError(t, err)
		if correct {
			assert.Equal(t, KindVictory, res.Kind)
		} else {
			assert.Equal(t, KindDefeat, res.Kind)
		}
		require.NotNil(t, res.Proposal)
		assert.Equal(t, "Xuxa", res.Proposal.Name)
		assert.False(t, m.store.Contains(100))
	}
}

func TestResolveGuessChecks(t *testing.T) {
	m, clk, _ := guessingManager(t)

	_, err := m.ResolveGuess(ctx, 100, 2, true)
	require.ErrorIs(t, err, ErrWrongOwner)
	assert.True(t, m.store.Contains(100))

	clk.Advance(3 * time.Minute)
	_, err = m.ResolveGuess(ctx, 100, 1, true)
	require.ErrorIs(t, err, ErrExpired)
	assert.False(t, m.store.Contains(100))
}

func TestResolveGuessWhileAsking(t *testing.T) {
	m, _ := newTestManager()
	_, err := m.Create(ctx, 100, 1)
	require.NoError(t, err)

	res, err := m.ResolveGuess(ctx, 100, 1, false)
	require.NoError(t, err)
	assert.Equal(t, KindDefeat, res.Kind)
	assert.Nil(t, res.Proposal)
	assert.False(t, m.store.Contains(100))
}

func TestCancel(t *testing.T) {
	m, _ := newTestManager()
	_, err := m.Create(ctx, 100, 1)
	require.NoError(t, err)

	_, err = m.Cancel(ctx, 100, 2, false)
	require.ErrorIs(t, err, ErrWrongOwner)
	assert.True(t, m.store.Contains(100))

	snap, err := m.Cancel(ctx, 100, 2, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.OwnerID)
	assert.False(t, m.store.Contains(100))

	_, err = m.Create(ctx, 100, 1)
	require.NoError(t, err)
	_, err = m.Cancel(ctx, 100, 1, false)
	require.NoError(t, err)
	assert.Zero(t, m.Len())
}

func TestEvict(t *testing.T) {
	m, _ := newTestManager()
	_, ok := m.Evict(ctx, 100, metrics.ReasonLock)
	assert.False(t, ok)

	_, err := m.Create(ctx, 100, 1)
	require.NoError(t, err)
	snap, ok := m.Evict(ctx, 100, metrics.ReasonLock)
	assert.True(t, ok)
	assert.Equal(t, int64(1), snap.OwnerID)
	assert.False(t, m.store.Contains(100))
}

func TestConcurrentTurnIsBusy(t *testing.T) {
	eng := &enginetest.Engine{
		StartStep: enginetest.Step{State: enginetest.Question("q1", 0)},
		Answers:   questions(10, 20),
	}
	m, _ := newTestManager(eng)
	_, err := m.Create(ctx, 100, 1)
	require.NoError(t, err)

	block := make(chan struct{})
	eng.Block = block
	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := m.SubmitAnswer(ctx, 100, 1, engine.Yes)
		done <- outcome{res, err}
	}()
	require.Eventually(t, func() bool {
		s, _ := m.Get(100)
		return s.Busy
	}, time.Second, time.Millisecond)

	_, err = m.SubmitAnswer(ctx, 100, 1, engine.No)
	assert.ErrorIs(t, err, ErrBusy)
	_, err = m.GoBack(ctx, 100, 1)
	assert.ErrorIs(t, err, ErrBusy)
	_, err = m.Create(ctx, 100, 2)
	assert.ErrorIs(t, err, ErrAlreadyActive)

	close(block)
	out := <-done
	require.NoError(t, out.err)
	assert.Equal(t, 2, out.res.Session.QuestionIndex)
	assert.False(t, out.res.Session.Busy)
}

func TestCancelDuringEngineCallWins(t *testing.T) {
	eng := &enginetest.Engine{
		StartStep: enginetest.Step{State: enginetest.Question("q1", 0)},
		Answers:   questions(10),
	}
	m, _ := newTestManager(eng)
	_, err := m.Create(ctx, 100, 1)
	require.NoError(t, err)

	block := make(chan struct{})
	eng.Block = block
	done := make(chan error, 1)
	go func() {
		_, err := m.SubmitAnswer(ctx, 100, 1, engine.Yes)
		done <- err
	}()
	require.Eventually(t, func() bool {
		s, _ := m.Get(100)
		return s.Busy
	}, time.Second, time.Millisecond)

	_, err = m.Cancel(ctx, 100, 1, false)
	require.NoError(t, err)
	close(block)

	assert.ErrorIs(t, <-done, ErrNoActiveSession)
	assert.False(t, m.store.Contains(100))
}

func TestNewManagerDefaults(t *testing.T) {
	m := NewManager(nil, enginetest.Factory(), Config{})
	assert.Equal(t, DefaultTimeout, m.Config().Timeout)
	assert.Equal(t, DefaultGuessThreshold, m.Config().GuessThreshold)
	assert.Zero(t, m.Len())
}

func TestManagerRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	clk := newClock()
	m := NewManager(NewStore(), enginetest.Factory(), Config{}, WithClock(clk.Now), WithMetrics(metrics.New(reg)))

	_, err := m.Create(ctx, 100, 1)
	require.NoError(t, err)
	_, err = m.Create(ctx, 200, 2)
	require.NoError(t, err)
	_, err = m.Cancel(ctx, 200, 2, false)
	require.NoError(t, err)

	expected := `
# HELP akibot_sessions_active Number of live game sessions.
# TYPE akibot_sessions_active gauge
akibot_sessions_active 1
# HELP akibot_sessions_ended_total Game sessions removed, by reason.
# TYPE akibot_sessions_ended_total counter
akibot_sessions_ended_total{reason="cancel"} 1
# HELP akibot_sessions_started_total Game sessions created.
# TYPE akibot_sessions_started_total counter
akibot_sessions_started_total 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"akibot_sessions_active", "akibot_sessions_ended_total", "akibot_sessions_started_total"))
}

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{ErrAlreadyActive, CodeAlreadyActive},
		{&ActiveError{OwnerID: 7}, CodeAlreadyActive},
		{ErrNoActiveSession, CodeNoActiveSession},
		{ErrWrongOwner, CodeWrongOwner},
		{ErrExpired, CodeExpired},
		{engineFailure("answer", errors.New("x")), CodeEngineFailure},
		{ErrGuessPending, CodeGuessPending},
		{ErrBusy, CodeBusy},
	}
	for _, tt := range tests {
		var coded interface{ Code() string }
		require.ErrorAs(t, tt.err, &coded)
		assert.Equal(t, tt.code, coded.Code())
		assert.True(t, strings.HasPrefix(tt.err.Error(), "session: "), tt.err.Error())
	}
	assert.NotErrorIs(t, ErrBusy, ErrExpired)
	assert.ErrorIs(t, engineFailure("start", errors.New("x")), ErrEngineFailure)
	assert.Contains(t, (&ActiveError{OwnerID: 7}).Error(), "owner 7")
}
