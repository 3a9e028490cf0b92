// Package engine describes the question/guess oracle a game session drives.
package engine

import (
	"context"
	"errors"
	"fmt"
)

// Answer is one of the five replies a player can give to a question.
type Answer string

const (
	Yes         Answer = "yes"
	No          Answer = "no"
	IDK         Answer = "idk"
	Probably    Answer = "probably"
	ProbablyNot Answer = "probably_not"
)

// Answers lists the vocabulary in keyboard order.
var Answers = []Answer{Yes, No, IDK, Probably, ProbablyNot}

// ErrUnknownAnswer is returned by ParseAnswer for values outside the vocabulary.
var ErrUnknownAnswer = errors.New("engine: unknown answer")

// ErrCannotGoBack is returned by Back on the first question.
var ErrCannotGoBack = errors.New("engine: already at the first question")

// ParseAnswer maps a callback payload to an Answer.
func ParseAnswer(s string) (Answer, error) {
	for _, a := range Answers {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAnswer, s)
}

// Theme selects the kind of entity the engine guesses.
type Theme string

const (
	ThemeCharacters Theme = "c"
	ThemeAnimals    Theme = "a"
	ThemeObjects    Theme = "o"
)

// StartOptions configure a new game.
type StartOptions struct {
	Language  string
	ChildMode bool
	Theme     Theme
}

// Proposal is the engine's guess.
type Proposal struct {
	ID          string
	Name        string
	Description string
	PhotoURL    string
}

// State is the engine's view after a call.
type State struct {
	Question string
	// Progress is the engine's confidence in percent, 0 to 100.
	Progress float64
	// Step is the engine's zero-based question step.
	Step int
	// ReadyToGuess is set when the engine commits to Proposal.
	ReadyToGuess bool
	Proposal     *Proposal
}

// Engine is one game's handle on the oracle. Handles are not shared
// between sessions and are not safe for concurrent use.
type Engine interface {
	Start(ctx context.Context, opts StartOptions) (State, error)
	Answer(ctx context.Context, a Answer) (State, error)
	Back(ctx context.Context) (State, error)
}

// Factory creates a fresh Engine for each session.
type Factory func() Engine
