package provider

import (
	"sync"
)

// Subscription delivers chain-change notifications. Only the most recent
// undelivered chain id is kept: a consumer that falls behind sees the latest
// chain, never a stale one.
type Subscription struct {
	changes chan ChainID
	quit    chan struct{}

	closeOnce sync.Once
	onClose   func()
}

// newSubscription creates a subscription. onClose is invoked once on Close.
func newSubscription(onClose func()) *Subscription {
	return &Subscription{
		changes: make(chan ChainID, 1),
		quit:    make(chan struct{}),
		onClose: onClose,
	}
}

// Changes returns the notification channel.
func (s *Subscription) Changes() <-chan ChainID {
	return s.changes
}

// Done is closed once the subscription is closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.quit
}

// Close tears the subscription down. It is safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
		if s.onClose != nil {
			s.onClose()
		}
	})
}

// notify delivers id without blocking, replacing an undelivered value.
func (s *Subscription) notify(id ChainID) {
	for {
		select {
		case <-s.quit:
			return
		default:
		}

		select {
		case s.changes <- id:
			return
		default:
		}

		// Drop the stale pending value and try again.
		select {
		case <-s.changes:
		default:
		}
	}
}

// Notifier fans chain-change events out to subscribers. Providers embed it to
// implement SubscribeChainChanged.
type Notifier struct {
	subs map[*Subscription]struct{}
	mu   sync.Mutex
}

// NewNotifier creates a Notifier.
func NewNotifier() *Notifier {
	return &Notifier{
		subs: make(map[*Subscription]struct{}),
	}
}

// Subscribe registers a new subscription.
func (n *Notifier) Subscribe() *Subscription {
	var sub *Subscription
	sub = newSubscription(func() {
		n.mu.Lock()
		delete(n.subs, sub)
		n.mu.Unlock()
	})

	n.mu.Lock()
	n.subs[sub] = struct{}{}
	n.mu.Unlock()

	return sub
}

// Broadcast notifies every live subscription of a chain change.
func (n *Notifier) Broadcast(id ChainID) {
	n.mu.Lock()
	subs := make([]*Subscription, 0, len(n.subs))
	for sub := range n.subs {
		subs = append(subs, sub)
	}
	n.mu.Unlock()

	for _, sub := range subs {
		sub.notify(id)
	}
}

// NumSubscribers returns the number of live subscriptions.
func (n *Notifier) NumSubscribers() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	return len(n.subs)
}

// CloseAll closes every live subscription.
func (n *Notifier) CloseAll() {
	n.mu.Lock()
	subs := make([]*Subscription, 0, len(n.subs))
	for sub := range n.subs {
		subs = append(subs, sub)
	}
	n.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}
