package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AttemptClock drives the per-attempt countdown. Each tracked attempt gets
// a ticker goroutine that recomputes the remaining time from the absolute
// deadline on every tick, never from a local countdown, so suspended
// processes or delayed ticks cannot stretch an attempt's window. When the
// deadline passes, the expiry callback fires at most once per attempt.
type AttemptClock struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*clockEntry
	tick    time.Duration
	expire  func(attemptID uuid.UUID)
	log     zerolog.Logger
}

type clockEntry struct {
	deadline time.Time
	stop     chan struct{}
	stopOnce sync.Once
	fireOnce sync.Once
}

// NewAttemptClock creates a clock firing expire for every tracked attempt
// whose deadline passes. tick is the recomputation period (~1s in production,
// shorter in tests).
func NewAttemptClock(tick time.Duration, expire func(attemptID uuid.UUID), log zerolog.Logger) *AttemptClock {
	return &AttemptClock{
		entries: make(map[uuid.UUID]*clockEntry),
		tick:    tick,
		expire:  expire,
		log:     log.With().Str("component", "attempt_clock").Logger(),
	}
}

// Track starts (or keeps) the countdown for an attempt. Tracking an already
// tracked attempt is a no-op, so reconnecting clients never spawn a second
// timer.
func (c *AttemptClock) Track(attemptID uuid.UUID, deadline time.Time) {
	c.mu.Lock()
	if _, ok := c.entries[attemptID]; ok {
		c.mu.Unlock()
		return
	}

	entry := &clockEntry{
		deadline: deadline,
		stop:     make(chan struct{}),
	}
	c.entries[attemptID] = entry
	c.mu.Unlock()

	go c.run(attemptID, entry)
}

func (c *AttemptClock) run(attemptID uuid.UUID, entry *clockEntry) {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		select {
		case <-entry.stop:
			return
		case <-ticker.C:
			if time.Until(entry.deadline) > 0 {
				continue
			}
			entry.fireOnce.Do(func() {
				c.log.Info().Str("attempt_id", attemptID.String()).Msg("Attempt deadline reached")
				c.expire(attemptID)
			})
			c.Stop(attemptID)
			return
		}
	}
}

// Stop cancels the countdown for an attempt. Safe to call repeatedly and
// for untracked attempts.
func (c *AttemptClock) Stop(attemptID uuid.UUID) {
	c.mu.Lock()
	entry, ok := c.entries[attemptID]
	if ok {
		delete(c.entries, attemptID)
	}
	c.mu.Unlock()

	if ok {
		entry.stopOnce.Do(func() { close(entry.stop) })
	}
}

// StopAll cancels every countdown. Called on shutdown so no timer submits
// after the server stopped serving.
func (c *AttemptClock) StopAll() {
	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[uuid.UUID]*clockEntry)
	c.mu.Unlock()

	for _, entry := range entries {
		entry.stopOnce.Do(func() { close(entry.stop) })
	}
}

// Tracked reports whether an attempt currently has a running countdown.
func (c *AttemptClock) Tracked(attemptID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[attemptID]
	return ok
}
