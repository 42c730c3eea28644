package service

import (
	"time"

	"github.com/benbjohnson/clock"
)

type durationTimer struct {
	ticker *clock.Ticker
	done   chan struct{}
}

func (t *durationTimer) stop() {
	t.ticker.Stop()
	close(t.done)
}

// startTimerLocked begins counting from the connected callback. The count is
// derived from the start time, so a dropped tick never loses a second.
func (c *CallController) startTimerLocked(s *callSession) {
	t := &durationTimer{
		ticker: c.clock.Ticker(time.Second),
		done:   make(chan struct{}),
	}
	s.timer = t
	s.startedAt = c.clock.Now()
	s.duration = 0

	go func() {
		for {
			select {
			case <-t.done:
				return
			case <-t.ticker.C:
				c.tick(s, t)
			}
		}
	}()
}

func (c *CallController) tick(s *callSession, t *durationTimer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// A tick that lost the race against teardown.
	if c.session != s || s.timer != t {
		return
	}
	s.duration = int(c.clock.Since(s.startedAt) / time.Second)
	c.emitLocked()
}
