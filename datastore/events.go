/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"log/slog"
	"sync"

	"github.com/suparena/docstore/storagemodels"
)

// Wildcard subscribes a listener to every event.
const Wildcard = "*"

// Lifecycle event suffixes. Full names are "{entity}.{suffix}".
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// EventName returns the full name of a lifecycle event for entity.
func EventName(entity, suffix string) string {
	return entity + "." + suffix
}

// Notifier receives lifecycle events. Notify must not block the caller.
type Notifier interface {
	Notify(event string, data storagemodels.EventData)
}

// Listener handles one event.
type Listener func(event string, data storagemodels.EventData)

// EmitterOption configures an Emitter.
type EmitterOption func(*Emitter)

// WithSyncDispatch runs listeners inline in Notify.
func WithSyncDispatch() EmitterOption {
	return func(e *Emitter) {
		e.sync = true
	}
}

// WithEmitterLogger sets the logger used to report listener panics.
func WithEmitterLogger(logger *slog.Logger) EmitterOption {
	return func(e *Emitter) {
		e.logger = logger
	}
}

type subscription struct {
	id       uint64
	listener Listener
}

type emission struct {
	event   string
	data    storagemodels.EventData
	targets []Listener
}

// Emitter is an in-process observer list. Listeners subscribed to a specific
// event run before wildcard listeners; a panicking listener is logged and the
// rest still run. Asynchronous emissions are delivered in Notify order by a
// single worker.
type Emitter struct {
	mu        sync.RWMutex
	listeners map[string][]subscription
	nextID    uint64
	sync      bool
	logger    *slog.Logger

	qmu     sync.Mutex
	queue   []emission
	running bool
	wg      sync.WaitGroup
}

// NewEmitter creates an Emitter that dispatches off the caller's goroutine.
func NewEmitter(opts ...EmitterOption) *Emitter {
	e := &Emitter{listeners: make(map[string][]subscription)}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default().With("component", "events")
	}
	return e
}

// On subscribes listener to event ("*" for every event) and returns a
// function that removes the subscription.
func (e *Emitter) On(event string, listener Listener) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	e.listeners[event] = append(e.listeners[event], subscription{id: id, listener: listener})

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		subs := e.listeners[event]
		for i, s := range subs {
			if s.id == id {
				e.listeners[event] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Notify delivers data to the listeners of event and to wildcard listeners.
func (e *Emitter) Notify(event string, data storagemodels.EventData) {
	e.mu.RLock()
	targets := make([]Listener, 0, len(e.listeners[event])+len(e.listeners[Wildcard]))
	for _, s := range e.listeners[event] {
		targets = append(targets, s.listener)
	}
	if event != Wildcard {
		for _, s := range e.listeners[Wildcard] {
			targets = append(targets, s.listener)
		}
	}
	e.mu.RUnlock()

	if len(targets) == 0 {
		return
	}
	if e.sync {
		e.dispatch(event, data, targets)
		return
	}

	e.qmu.Lock()
	defer e.qmu.Unlock()
	e.wg.Add(1)
	e.queue = append(e.queue, emission{event: event, data: data, targets: targets})
	if !e.running {
		e.running = true
		go e.drain()
	}
}

// drain delivers queued emissions one at a time and exits once the queue is
// empty; the next Notify starts a new worker.
func (e *Emitter) drain() {
	for {
		e.qmu.Lock()
		if len(e.queue) == 0 {
			e.running = false
			e.queue = nil
			e.qmu.Unlock()
			return
		}
		next := e.queue[0]
		e.queue = e.queue[1:]
		e.qmu.Unlock()

		e.dispatch(next.event, next.data, next.targets)
		e.wg.Done()
	}
}

// Wait blocks until every asynchronous emission queued so far has been delivered.
func (e *Emitter) Wait() {
	e.wg.Wait()
}

func (e *Emitter) dispatch(event string, data storagemodels.EventData, targets []Listener) {
	for _, l := range targets {
		e.call(event, data, l)
	}
}

func (e *Emitter) call(event string, data storagemodels.EventData, l Listener) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("event listener panicked", "event", event, "recover", r)
		}
	}()
	l(event, data)
}
