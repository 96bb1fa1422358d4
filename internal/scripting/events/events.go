// Package events implements the scripting host's event bus (§4.9.2): a
// process-wide registry of named events and their subscribers.
package events

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gmp-go/core/internal/errs"
)

// Listener receives a TriggerEvent payload. A non-nil return is logged,
// never propagated to other listeners or the caller.
type Listener func(payload any) error

// Subscription is the handle returned by SubscribeToEvent, usable to
// unsubscribe later.
type Subscription struct {
	event string
	id    uint64
}

type subscriber struct {
	id       uint64
	listener Listener
}

// Manager is the event bus. The zero value is not usable; use New.
type Manager struct {
	mu        sync.Mutex
	declared  map[string]bool
	listeners map[string][]subscriber
	nextID    uint64
}

// New creates an empty Manager.
func New() *Manager {
	return &Manager{
		declared:  make(map[string]bool),
		listeners: make(map[string][]subscriber),
	}
}

// RegisterEvent declares name as a valid subscription target. Idempotent.
func (m *Manager) RegisterEvent(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.declared[name] = true
}

// SubscribeToEvent appends listener to name's subscriber list, in
// registration order, and returns a handle usable with Unsubscribe.
func (m *Manager) SubscribeToEvent(name string, listener Listener) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.declared[name] {
		return Subscription{}, fmt.Errorf("%w: %s", errs.ErrUnknownEvent, name)
	}

	m.nextID++
	id := m.nextID
	m.listeners[name] = append(m.listeners[name], subscriber{id: id, listener: listener})
	return Subscription{event: name, id: id}, nil
}

// Unsubscribe removes the listener sub identifies, if still present.
func (m *Manager) Unsubscribe(sub Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := m.listeners[sub.event]
	for i, s := range subs {
		if s.id == sub.id {
			m.listeners[sub.event] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// TriggerEvent synchronously dispatches payload to every subscriber of
// name, in registration order. No lock is held during dispatch, so a
// listener may legally subscribe or unsubscribe reentrantly (§5). A
// listener's error is logged and does not stop later listeners.
func (m *Manager) TriggerEvent(name string, payload any) {
	m.mu.Lock()
	subs := append([]subscriber(nil), m.listeners[name]...)
	m.mu.Unlock()

	for _, s := range subs {
		if err := safeCall(s.listener, payload); err != nil {
			slog.Error("event listener failed", "event", name, "error", err)
		}
	}
}

func safeCall(listener Listener, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panicked: %v", r)
		}
	}()
	return listener(payload)
}
