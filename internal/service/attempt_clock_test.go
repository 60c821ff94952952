package service

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestAttemptClock_FiresOnceAfterDeadline(t *testing.T) {
	var fired int32
	done := make(chan struct{})
	clock := NewAttemptClock(time.Millisecond, func(uuid.UUID) {
		if atomic.AddInt32(&fired, 1) == 1 {
			close(done)
		}
	}, zerolog.Nop())
	defer clock.StopAll()

	id := uuid.New()
	clock.Track(id, time.Now().Add(10*time.Millisecond))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expiry never fired")
	}

	time.Sleep(20 * time.Millisecond)
	if n := atomic.LoadInt32(&fired); n != 1 {
		t.Fatalf("expire fired %d times, want 1", n)
	}
	if clock.Tracked(id) {
		t.Fatal("attempt still tracked after expiry")
	}
}

func TestAttemptClock_TrackIsIdempotent(t *testing.T) {
	var fired int32
	clock := NewAttemptClock(time.Millisecond, func(uuid.UUID) {
		atomic.AddInt32(&fired, 1)
	}, zerolog.Nop())
	defer clock.StopAll()

	id := uuid.New()
	deadline := time.Now().Add(15 * time.Millisecond)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Track(id, deadline)
		}()
	}
	wg.Wait()

	time.Sleep(50 * time.Millisecond)
	if n := atomic.LoadInt32(&fired); n != 1 {
		t.Fatalf("expire fired %d times, want 1", n)
	}
}

func TestAttemptClock_StopPreventsExpiry(t *testing.T) {
	var fired int32
	clock := NewAttemptClock(time.Millisecond, func(uuid.UUID) {
		atomic.AddInt32(&fired, 1)
	}, zerolog.Nop())
	defer clock.StopAll()

	id := uuid.New()
	clock.Track(id, time.Now().Add(30*time.Millisecond))
	clock.Stop(id)
	clock.Stop(id) // repeat stop is safe

	time.Sleep(60 * time.Millisecond)
	if n := atomic.LoadInt32(&fired); n != 0 {
		t.Fatalf("expire fired %d times after Stop, want 0", n)
	}
	if clock.Tracked(id) {
		t.Fatal("attempt still tracked after Stop")
	}
}

func TestAttemptClock_StopAll(t *testing.T) {
	clock := NewAttemptClock(time.Millisecond, func(uuid.UUID) {}, zerolog.Nop())

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		clock.Track(id, time.Now().Add(time.Hour))
	}
	clock.StopAll()

	for _, id := range ids {
		if clock.Tracked(id) {
			t.Fatalf("attempt %s still tracked after StopAll", id)
		}
	}
}
