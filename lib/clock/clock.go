// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the injectable time source for the console.
//
// Everything that stamps a bulk mutation, defaults a malformed
// submission timestamp, backs off a dropped subscription, or paces
// heartbeats on a feed takes a Clock rather than calling the time
// package. Production wiring uses Real; tests use Fake and move time
// explicitly with Advance:
//
//	fake := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
//	go client.run(ctx)       // registers a backoff timer
//	fake.WaitForTimers(1)
//	fake.Advance(time.Second) // reconnect fires deterministically
package clock

import "time"

// Clock is the subset of the time package the console depends on.
type Clock interface {
	// Now returns the current instant.
	Now() time.Time

	// After delivers the current time on the returned channel once d
	// has elapsed. Non-positive durations deliver immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker firing every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Ticker delivers periodic ticks on C. The channel holds one pending
// tick; a slow reader misses ticks rather than queueing them.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns the ticker off. C is not closed.
func (t *Ticker) Stop() { t.stop() }

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) NewTicker(d time.Duration) *Ticker {
	ticker := time.NewTicker(d)
	return &Ticker{C: ticker.C, stop: ticker.Stop}
}
