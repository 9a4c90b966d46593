// Package notify provides notification dispatching for alerts.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/calm-red-fox/aitrail/internal/metrics"
	"github.com/calm-red-fox/aitrail/internal/models"
)

// Payload is the flat notification body every channel receives. It is
// deliberately denormalized so channel implementations never reach back
// into the store.
type Payload struct {
	AlertID   string            `json:"alert_id"`
	Type      models.AlertType  `json:"type"`
	Severity  models.Severity   `json:"severity"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	ModelName string            `json:"model_name,omitempty"`
	Timestamp string            `json:"timestamp"` // RFC3339
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// PayloadFromAlert builds the wire payload for an alert.
func PayloadFromAlert(alert *models.Alert) *Payload {
	return &Payload{
		AlertID:   alert.ID,
		Type:      alert.Type,
		Severity:  alert.Severity,
		Title:     alert.Title,
		Message:   alert.Message,
		ModelName: alert.ModelName,
		Timestamp: alert.CreatedAt.UTC().Format(time.RFC3339),
		Metadata:  alert.Metadata,
	}
}

// Notifier is the interface for all notification channels.
type Notifier interface {
	// Name returns the channel name (e.g. "email", "webhook").
	Name() string
	// Send delivers one notification.
	Send(ctx context.Context, payload *Payload) error
	// Close releases any resources.
	Close() error
}

// ErrRateLimited is returned when a notification is dropped because the
// dispatcher's rate limit was exceeded.
var ErrRateLimited = fmt.Errorf("notification rate limited")

// Dispatcher fans notifications out to registered channels. A failing
// channel never prevents delivery to the others; per-channel errors are
// collected and returned together.
type Dispatcher struct {
	mu          sync.RWMutex
	notifiers   map[string]Notifier
	rateLimiter *RateLimiter
}

// NewDispatcher creates a dispatcher with default rate limiting.
func NewDispatcher() *Dispatcher {
	return NewDispatcherWithRateLimit(DefaultRateLimitConfig())
}

// NewDispatcherWithRateLimit creates a dispatcher with a custom rate
// limit configuration.
func NewDispatcherWithRateLimit(config RateLimitConfig) *Dispatcher {
	return &Dispatcher{
		notifiers:   make(map[string]Notifier),
		rateLimiter: NewRateLimiter(config),
	}
}

// Register adds a notifier to the dispatcher.
func (d *Dispatcher) Register(n Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifiers[n.Name()] = n
}

// Unregister removes a notifier from the dispatcher.
func (d *Dispatcher) Unregister(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.notifiers, name)
}

// Get returns a notifier by name.
func (d *Dispatcher) Get(name string) (Notifier, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.notifiers[name]
	return n, ok
}

// Dispatch sends the payload to the named channels. Unknown channel
// names are recorded as errors; registered channels are all attempted
// regardless of individual failures. Returns the number of successful
// deliveries plus one error per failed channel.
func (d *Dispatcher) Dispatch(ctx context.Context, channels []string, payload *Payload) (int, []error) {
	if len(channels) == 0 {
		return 0, nil
	}

	if d.rateLimiter != nil && !d.rateLimiter.Allow() {
		return 0, []error{ErrRateLimited}
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var sent int
	var errs []error
	for _, name := range channels {
		n, ok := d.notifiers[name]
		if !ok {
			errs = append(errs, fmt.Errorf("%s: channel not registered", name))
			continue
		}
		if err := n.Send(ctx, payload); err != nil {
			metrics.NotificationsSent.WithLabelValues(name, "error").Inc()
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		metrics.NotificationsSent.WithLabelValues(name, "success").Inc()
		sent++
	}
	return sent, errs
}

// RateLimitStats returns the rate limiter statistics.
func (d *Dispatcher) RateLimitStats() RateLimitStats {
	if d.rateLimiter == nil {
		return RateLimitStats{}
	}
	return d.rateLimiter.Stats()
}

// Close closes all registered notifiers.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for name, n := range d.notifiers {
		if err := n.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	d.notifiers = make(map[string]Notifier)

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
