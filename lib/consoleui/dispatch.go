// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package consoleui

import (
	"context"
	"sync"
)

// dispatcher runs view model operations one at a time, in the order
// they were pushed, on a goroutine of its own. push never blocks, so
// Update can enqueue while a render from an earlier operation waits
// for the event loop.
type dispatcher struct {
	mutex   sync.Mutex
	pending []func()
	wake    chan struct{}
}

func newDispatcher(ctx context.Context) *dispatcher {
	d := &dispatcher{wake: make(chan struct{}, 1)}
	go d.run(ctx)
	return d
}

func (d *dispatcher) push(operation func()) {
	d.mutex.Lock()
	d.pending = append(d.pending, operation)
	d.mutex.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.wake:
		}
		for {
			d.mutex.Lock()
			if len(d.pending) == 0 {
				d.mutex.Unlock()
				break
			}
			operation := d.pending[0]
			d.pending = d.pending[1:]
			d.mutex.Unlock()
			operation()
		}
	}
}
