package notify

import (
	"context"
	"sync"
)

// InAppNotifier keeps the most recent notifications in a ring buffer
// for operator UIs to poll. Delivery is synchronous and never fails.
type InAppNotifier struct {
	mu       sync.RWMutex
	payloads []*Payload
	next     int
	full     bool
}

const defaultInAppCapacity = 100

// NewInAppNotifier creates an in-app notifier holding up to capacity
// recent notifications.
func NewInAppNotifier(capacity int) *InAppNotifier {
	if capacity <= 0 {
		capacity = defaultInAppCapacity
	}
	return &InAppNotifier{
		payloads: make([]*Payload, capacity),
	}
}

// Name returns "in_app".
func (n *InAppNotifier) Name() string {
	return "in_app"
}

// Send records the payload, overwriting the oldest entry when full.
func (n *InAppNotifier) Send(_ context.Context, payload *Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.payloads[n.next] = payload
	n.next++
	if n.next == len(n.payloads) {
		n.next = 0
		n.full = true
	}
	return nil
}

// Recent returns up to limit notifications, newest first.
func (n *InAppNotifier) Recent(limit int) []*Payload {
	n.mu.RLock()
	defer n.mu.RUnlock()

	size := n.next
	if n.full {
		size = len(n.payloads)
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]*Payload, 0, limit)
	idx := n.next - 1
	for len(out) < limit {
		if idx < 0 {
			idx = len(n.payloads) - 1
		}
		out = append(out, n.payloads[idx])
		idx--
	}
	return out
}

// Close is a no-op for the in-app notifier.
func (n *InAppNotifier) Close() error {
	return nil
}
