package main

import (
	"sync"
	"time"
)

// countdown is the single per-room phase clock.
type countdown struct {
	stop chan struct{}
	once sync.Once
}

func (c *countdown) cancel() {
	c.once.Do(func() { close(c.stop) })
}

// cancelTimersLocked stops the phase clock and every deferred task, and bumps
// seq so callbacks already in flight become no-ops.
func (r *Room) cancelTimersLocked() {
	r.seq++
	if r.countdown != nil {
		r.countdown.cancel()
		r.countdown = nil
	}
	for _, t := range r.timers {
		t.Stop()
	}
	r.timers = nil
}

// startCountdownLocked ticks timeLeft down once per cfg.Tick, broadcasting each
// value, and calls expire under the room lock when it reaches zero.
func (r *Room) startCountdownLocked(seconds int, expire func()) {
	c := &countdown{stop: make(chan struct{})}
	r.countdown = c
	r.timeLeft = seconds
	seq := r.seq
	tick := r.cfg.Tick

	go func() {
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
			}
			if r.tick(seq, expire) {
				return
			}
		}
	}()
}

// tick advances the clock by one step. Returns true once the countdown is finished
// or stale.
func (r *Room) tick(seq uint64, expire func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.seq != seq {
		return true
	}
	if r.timeLeft > 0 {
		r.timeLeft--
	}
	r.emit.Broadcast(r.Code, Event{Type: EventTimerUpdate, Payload: TimerPayload{TimeLeft: r.timeLeft}})

	if r.timeLeft == 0 {
		r.countdown = nil
		expire()
		return true
	}
	if r.votingCanCloseEarlyLocked() {
		r.countdown = nil
		r.endVotingLocked()
		return true
	}
	return false
}

// afterLocked runs fn under the room lock after d, unless the room's timers
// were cancelled in the meantime.
func (r *Room) afterLocked(d time.Duration, fn func()) {
	seq := r.seq
	t := time.AfterFunc(d, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed || r.seq != seq {
			return
		}
		fn()
	})
	r.timers = append(r.timers, t)
}

// closeLocked marks the room as torn down; pending callbacks will not fire.
func (r *Room) closeLocked() {
	r.closed = true
	r.cancelTimersLocked()
}
