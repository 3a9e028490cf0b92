// Package enginetest provides a scripted engine.Engine for tests.
package enginetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/m3rciful/akibot/game/engine"
)

// Step scripts the reply to one engine call.
type Step struct {
	State engine.State
	Err   error
}

// Engine replays scripted steps and records every call it receives.
// Start consumes StartStep, Answer consumes Answers in order and Back pops
// the answer history, replaying the state that preceded the last answer.
type Engine struct {
	StartStep Step
	Answers   []Step
	// BackErr, when set, fails every Back call.
	BackErr error
	// Block, when set, is received from before each call returns.
	Block chan struct{}

	mu      sync.Mutex
	calls   []string
	history []engine.State
	next    int
}

// Start implements engine.Engine.
func (e *Engine) Start(ctx context.Context, opts engine.StartOptions) (engine.State, error) {
	e.wait(ctx)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, "start:"+opts.Language+":"+string(opts.Theme))
	if e.StartStep.Err != nil {
		return engine.State{}, e.StartStep.Err
	}
	e.history = []engine.State{e.StartStep.State}
	return e.StartStep.State, nil
}

// Answer implements engine.Engine.
func (e *Engine) Answer(ctx context.Context, a engine.Answer) (engine.State, error) {
	e.wait(ctx)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, "answer:"+string(a))
	if e.next >= len(e.Answers) {
		return engine.State{}, fmt.Errorf("enginetest: no scripted answer %d", e.next+1)
	}
	step := e.Answers[e.next]
	e.next++
	if step.Err != nil {
		return engine.State{}, step.Err
	}
	e.history = append(e.history, step.State)
	return step.State, nil
}

// Back implements engine.Engine.
func (e *Engine) Back(ctx context.Context) (engine.State, error) {
	e.wait(ctx)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, "back")
	if e.BackErr != nil {
		return engine.State{}, e.BackErr
	}
	if len(e.history) < 2 {
		return engine.State{}, engine.ErrCannotGoBack
	}
	e.history = e.history[:len(e.history)-1]
	return e.history[len(e.history)-1], nil
}

func (e *Engine) wait(ctx context.Context) {
	if e.Block == nil {
		return
	}
	select {
	case <-e.Block:
	case <-ctx.Done():
	}
}

// Calls returns the calls received so far, such as "answer:yes" or "back".
func (e *Engine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// Question returns a State asking q at the given progress.
func Question(q string, progress float64) engine.State {
	return engine.State{Question: q, Progress: progress}
}

// Guess returns a State proposing name at the given progress.
func Guess(name string, progress float64) engine.State {
	return engine.State{
		Question:     "?",
		Progress:     progress,
		ReadyToGuess: true,
		Proposal:     &engine.Proposal{ID: name, Name: name, Description: "scripted"},
	}
}

// Factory returns an engine.Factory handing out the given engines in order
// and a fresh empty Engine once they run out.
func Factory(engines ...*Engine) engine.Factory {
	var mu sync.Mutex
	return func() engine.Engine {
		mu.Lock()
		defer mu.Unlock()
		if len(engines) == 0 {
			return &Engine{}
		}
		e := engines[0]
		engines = engines[1:]
		return e
	}
}
