package authservice

import "sync"

// Notifier holds the single authenticated and pending subscribers, registering a callback replaces the previous one.
type Notifier struct {
	lock          sync.RWMutex
	authenticated func(bool)
	pending       func(bool)
}

func (n *Notifier) SetAuthenticatedCallback(fn func(bool)) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.authenticated = fn
}

func (n *Notifier) SetPendingCallback(fn func(bool)) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.pending = fn
}

func (n *Notifier) InvokeAuthenticatedCallback(authenticated bool) {
	n.lock.RLock()
	fn := n.authenticated
	n.lock.RUnlock()
	if fn != nil {
		fn(authenticated)
	}
}

func (n *Notifier) InvokePendingCallback(pending bool) {
	n.lock.RLock()
	fn := n.pending
	n.lock.RUnlock()
	if fn != nil {
		fn(pending)
	}
}
