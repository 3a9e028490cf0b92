package session

import (
	"sync"
	"time"

	"github.com/m3rciful/akibot/game/engine"
	"github.com/m3rciful/akibot/game/engine/enginetest"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var testStart = engine.StartOptions{Language: "pt", Theme: engine.ThemeCharacters}

func newTestManager(engines ...*enginetest.Engine) (*Manager, *fakeClock) {
	clk := newClock()
	m := NewManager(NewStore(), enginetest.Factory(engines...), Config{
		Timeout:        120 * time.Second,
		GuessThreshold: 80,
		StartOptions:   testStart,
	}, WithClock(clk.Now))
	return m, clk
}

func questions(progress ...float64) []enginetest.Step {
	steps := make([]enginetest.Step, 0, len(progress))
	for i, p := range progress {
		steps = append(steps, enginetest.Step{State: enginetest.Question(questionText(i+2), p)})
	}
	return steps
}

func questionText(n int) string {
	return "question " + string(rune('0'+n))
}
