// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"sync"
	"time"
)

// FakeClock is a Clock whose time moves only when Advance is called.
// Safe for concurrent use.
type FakeClock struct {
	mutex   sync.Mutex
	current time.Time
	pending []*pendingTimer

	// registered is broadcast whenever a timer is added so that
	// WaitForTimers can block without polling.
	registered *sync.Cond
}

type pendingTimer struct {
	deadline time.Time
	channel  chan time.Time
	interval time.Duration // non-zero for tickers
	stopped  bool
}

// Fake returns a FakeClock frozen at initial.
func Fake(initial time.Time) *FakeClock {
	fake := &FakeClock{current: initial}
	fake.registered = sync.NewCond(&fake.mutex)
	return fake
}

// Now returns the fake current time.
func (c *FakeClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.current
}

// After registers a one-shot timer.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.current
		return channel
	}
	c.pending = append(c.pending, &pendingTimer{deadline: c.current.Add(d), channel: channel})
	c.registered.Broadcast()
	return channel
}

// NewTicker registers a repeating timer.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	timer := &pendingTimer{
		deadline: c.current.Add(d),
		channel:  make(chan time.Time, 1),
		interval: d,
	}
	c.pending = append(c.pending, timer)
	c.registered.Broadcast()

	return &Ticker{
		C: timer.channel,
		stop: func() {
			c.mutex.Lock()
			defer c.mutex.Unlock()
			timer.stopped = true
		},
	}
}

// Advance moves time forward by d and fires every timer whose
// deadline has been reached, earliest first. A ticker fires at most
// once per Advance no matter how many intervals elapsed, matching the
// drop-if-full behavior of time.Ticker's one-slot channel.
func (c *FakeClock) Advance(d time.Duration) {
	c.mutex.Lock()
	c.current = c.current.Add(d)
	target := c.current

	type firing struct {
		deadline time.Time
		channel  chan time.Time
	}
	var due []firing
	var remaining []*pendingTimer
	for _, timer := range c.pending {
		if timer.stopped {
			continue
		}
		if timer.deadline.After(target) {
			remaining = append(remaining, timer)
			continue
		}
		due = append(due, firing{deadline: timer.deadline, channel: timer.channel})
		if timer.interval > 0 {
			for !timer.deadline.After(target) {
				timer.deadline = timer.deadline.Add(timer.interval)
			}
			remaining = append(remaining, timer)
		}
	}
	c.pending = remaining
	c.mutex.Unlock()

	slices.SortStableFunc(due, func(a, b firing) int {
		return a.deadline.Compare(b.deadline)
	})
	for _, timer := range due {
		select {
		case timer.channel <- target:
		default:
		}
	}
}

// WaitForTimers blocks until at least n timers or tickers are
// pending. Use it to close the race between a goroutine registering a
// timer and the test calling Advance.
func (c *FakeClock) WaitForTimers(n int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for c.pendingCountLocked() < n {
		c.registered.Wait()
	}
}

// PendingCount returns the number of live timers and tickers.
func (c *FakeClock) PendingCount() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.pendingCountLocked()
}

func (c *FakeClock) pendingCountLocked() int {
	count := 0
	for _, timer := range c.pending {
		if !timer.stopped {
			count++
		}
	}
	return count
}
