// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package collection

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// subscriberChannelSize is the number of undelivered snapshots a
// subscriber may queue. On overflow the newest snapshot is dropped and
// the subscriber is marked for resync: once it catches up it discards
// whatever is still queued and reloads the collection instead. Since
// every snapshot is complete, skipping intermediate ones never shows a
// state older than one already delivered.
const subscriberChannelSize = 64

// Broadcaster fans collection snapshots out to subscribers. Stores
// embed one and call Publish after every committed write. Each
// subscriber gets its own delivery goroutine, so a slow handler delays
// only itself, and its snapshots arrive in publish order.
//
// Broadcaster is safe for concurrent use. Stores must serialize their
// own Publish calls per collection (typically under their write lock)
// so publish order matches commit order.
type Broadcaster struct {
	mutex       sync.Mutex
	subscribers map[string][]*subscriber
	closed      bool
	logger      *slog.Logger
}

// LoadFunc reloads the current contents of a collection. Used by a
// subscriber recovering from overflow.
type LoadFunc func() ([]Record, error)

type subscriber struct {
	query   Query
	handler Handler
	load    LoadFunc
	channel chan []Record
	resync  atomic.Bool
	done    chan struct{}
	once    sync.Once
}

// NewBroadcaster returns an empty Broadcaster. A nil logger discards.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Broadcaster{
		subscribers: make(map[string][]*subscriber),
		logger:      logger,
	}
}

// Add registers a subscriber and queues initial as its first
// snapshot. The caller must hold whatever lock orders its Publish
// calls, so that no write can land between reading initial and
// registering. Returns the idempotent unsubscribe function.
func (b *Broadcaster) Add(query Query, handler Handler, initial []Record, load LoadFunc) func() {
	sub := &subscriber{
		query:   query,
		handler: handler,
		load:    load,
		channel: make(chan []Record, subscriberChannelSize),
		done:    make(chan struct{}),
	}
	sub.channel <- initial

	b.mutex.Lock()
	if b.closed {
		b.mutex.Unlock()
		sub.stop()
		return func() {}
	}
	b.subscribers[query.Collection] = append(b.subscribers[query.Collection], sub)
	b.mutex.Unlock()

	go b.deliver(sub)

	return func() {
		sub.stop()
		b.remove(sub)
	}
}

// Publish queues snapshot for every subscriber of collection. Never
// blocks: a full subscriber is marked for resync instead.
func (b *Broadcaster) Publish(collection string, snapshot []Record) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	subscribers := b.subscribers[collection]
	// Reverse so removals don't shift unvisited elements.
	for index := len(subscribers) - 1; index >= 0; index-- {
		sub := subscribers[index]
		select {
		case <-sub.done:
			subscribers = append(subscribers[:index], subscribers[index+1:]...)
			continue
		default:
		}

		select {
		case sub.channel <- snapshot:
		default:
			if !sub.resync.Swap(true) {
				b.logger.Warn("subscriber overflowed, will resync",
					"collection", collection,
				)
			}
		}
	}

	if len(subscribers) == 0 {
		delete(b.subscribers, collection)
	} else {
		b.subscribers[collection] = subscribers
	}
}

// Fail reports err to every subscriber of collection without ending
// their subscriptions.
func (b *Broadcaster) Fail(collection string, err error) {
	b.mutex.Lock()
	subscribers := append([]*subscriber(nil), b.subscribers[collection]...)
	b.mutex.Unlock()

	for _, sub := range subscribers {
		if sub.handler.OnError != nil && !sub.stopped() {
			sub.handler.OnError(err)
		}
	}
}

// Count returns the number of live subscribers for collection.
func (b *Broadcaster) Count(collection string) int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.subscribers[collection])
}

// Close stops every subscriber. Later Add calls return inert
// subscriptions.
func (b *Broadcaster) Close() {
	b.mutex.Lock()
	all := b.subscribers
	b.subscribers = make(map[string][]*subscriber)
	b.closed = true
	b.mutex.Unlock()

	for _, subscribers := range all {
		for _, sub := range subscribers {
			sub.stop()
		}
	}
}

func (b *Broadcaster) remove(target *subscriber) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	subscribers := b.subscribers[target.query.Collection]
	for index, existing := range subscribers {
		if existing == target {
			subscribers = append(subscribers[:index], subscribers[index+1:]...)
			break
		}
	}
	if len(subscribers) == 0 {
		delete(b.subscribers, target.query.Collection)
	} else {
		b.subscribers[target.query.Collection] = subscribers
	}
}

// deliver runs one subscriber's callbacks until it is stopped.
func (b *Broadcaster) deliver(sub *subscriber) {
	for {
		var snapshot []Record
		select {
		case <-sub.done:
			return
		case snapshot = <-sub.channel:
		}

		if sub.resync.CompareAndSwap(true, false) {
			for len(sub.channel) > 0 {
				<-sub.channel
			}
			reloaded, err := sub.load()
			if err != nil {
				if sub.handler.OnError != nil && !sub.stopped() {
					sub.handler.OnError(err)
				}
				continue
			}
			snapshot = reloaded
		}

		ordered := CloneRecords(snapshot)
		SortRecords(ordered, sub.query.OrderField, sub.query.Direction)

		if sub.stopped() {
			return
		}
		sub.handler.OnChange(ordered)
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscriber) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
