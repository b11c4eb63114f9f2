// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

// Package broadcast is the Broadcaster Registry (C5): a process-wide
// topic subscription table used by internal/wsproxy to wake connection
// goroutines when session state or presence changes.
//
// Grounded on lib/forgesub.Manager's mutex-guarded subscriber-map
// idiom (map[key][]*subscription behind one sync.RWMutex, dispatch
// snapshotting the handler slice under the lock then invoking outside
// it).
package broadcast

import (
	"log/slog"
	"sync"
)

type subscription struct {
	id      uint64
	handler func()
}

// Registry is a process-wide topic-keyed subscriber table.
type Registry struct {
	mu     sync.Mutex
	logger *slog.Logger

	topics map[string][]*subscription
	nextID uint64
}

// NewRegistry returns an empty Registry. logger may be nil, in which
// case handler panics are recovered but not logged.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		topics: make(map[string][]*subscription),
		logger: logger,
	}
}

// Subscribe registers handler under topic and returns an unsubscribe
// closure. The subscription is inserted under the lock before
// Subscribe returns, so a Notify racing with a concurrent Subscribe
// never loses a notification the caller was already positioned to
// receive: Subscribe happens-before any Notify call the caller
// issues afterward.
func (r *Registry) Subscribe(topic string, handler func()) (unsubscribe func()) {
	r.mu.Lock()
	r.nextID++
	sub := &subscription{id: r.nextID, handler: handler}
	r.topics[topic] = append(r.topics[topic], sub)
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(topic, sub.id) })
	}
}

func (r *Registry) remove(topic string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.topics[topic]
	for i, sub := range subs {
		if sub.id == id {
			r.topics[topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(r.topics[topic]) == 0 {
		delete(r.topics, topic)
	}
}

// Notify invokes every current handler subscribed to topic,
// synchronously and outside the registry lock. A handler that panics
// is recovered and logged so it never prevents the remaining handlers
// from running.
func (r *Registry) Notify(topic string) {
	r.mu.Lock()
	subs := append([]*subscription(nil), r.topics[topic]...)
	r.mu.Unlock()

	for _, sub := range subs {
		r.invoke(topic, sub)
	}
}

func (r *Registry) invoke(topic string, sub *subscription) {
	defer func() {
		if v := recover(); v != nil && r.logger != nil {
			r.logger.Error("broadcast handler panicked", "topic", topic, "recovered", v)
		}
	}()
	sub.handler()
}

// SubscriberCount reports how many handlers are currently registered
// for topic, for tests and diagnostics.
func (r *Registry) SubscriberCount(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.topics[topic])
}
