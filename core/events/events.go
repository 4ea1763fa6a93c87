// Package events is the in-process publish/subscribe bus the services use to announce changes.
package events

import (
	"sync"
)

// Event names
const (
	DataUpdated      = "dataUpdated"
	SchoolCreated    = "school:created"
	SchoolUpdated    = "school:updated"
	SchoolDeleted    = "school:deleted"
	AuthLogin        = "auth:login"
	AuthLogout       = "auth:logout"
	AuthLockout      = "auth:lockout"
	SessionRefreshed = "sessionRefreshed"
	SyncCompleted    = "sync:completed"
)

// Change kinds of a DataUpdated event.
const (
	Insert = "INSERT"
	Update = "UPDATE"
	Delete = "DELETE"
)

// DataChange is the payload of DataUpdated: a row changed in one of the remote tables.
type DataChange struct {
	Table     string                 `json:"table"`
	EventType string                 `json:"eventType"`
	Record    map[string]interface{} `json:"record,omitempty"`
}

// SchoolID returns the school the changed row belongs to, if the row carries one.
func (dc DataChange) SchoolID() string {
	if dc.Table == "schools" {
		id, _ := dc.Record["id"].(string)
		return id
	}
	id, _ := dc.Record["school_id"].(string)
	return id
}

type Handler func(payload interface{})

type subscription struct {
	id      uint64
	handler Handler
}

// Bus dispatches events synchronously, in subscription order.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string][]subscription
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string][]subscription)}
}

// On subscribes handler to name and returns the func that unsubscribes it.
func (b *Bus) On(name string, handler Handler) (off func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[name] = append(b.subs[name], subscription{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(name, id) })
	}
}

// Off removes every handler of name.
func (b *Bus) Off(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, name)
}

func (b *Bus) remove(name string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[name]
	for i, sub := range subs {
		if sub.id == id {
			b.subs[name] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[name]) == 0 {
		delete(b.subs, name)
	}
}

// Emit calls the handlers of name with payload. A panicking handler does not stop the others.
func (b *Bus) Emit(name string, payload interface{}) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs[name]))
	copy(subs, b.subs[name])
	b.mu.RUnlock()

	for _, sub := range subs {
		call(sub.handler, payload)
	}
}

func call(h Handler, payload interface{}) {
	defer func() { _ = recover() }()
	h(payload)
}

// Count returns the number of handlers subscribed to name.
func (b *Bus) Count(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[name])
}
