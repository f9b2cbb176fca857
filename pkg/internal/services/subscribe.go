package services

import "sync"

// SessionID -> live subscription
type subscriptionRegistry struct {
	lock  sync.Mutex
	items map[string]*Subscription
}

func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{items: make(map[string]*Subscription)}
}

func (v *subscriptionRegistry) get(sessionID string) *Subscription {
	v.lock.Lock()
	defer v.lock.Unlock()
	return v.items[sessionID]
}

func (v *subscriptionRegistry) put(handle *Subscription) {
	v.lock.Lock()
	defer v.lock.Unlock()
	v.items[handle.sessionID] = handle
}

// remove only drops the entry if it still points at this handle,
// a newer attach of the same session keeps its slot.
func (v *subscriptionRegistry) remove(handle *Subscription) {
	v.lock.Lock()
	defer v.lock.Unlock()
	if v.items[handle.sessionID] == handle {
		delete(v.items, handle.sessionID)
	}
}

func (v *subscriptionRegistry) count() int {
	v.lock.Lock()
	defer v.lock.Unlock()
	return len(v.items)
}
