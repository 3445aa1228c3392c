// Package notify carries recoverable task failures to whoever is watching:
// the terminal log, connected browsers, or a test recorder.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/conneroisu/sitesmith/internal/logging"
)

// Notification is a titled message about a task failure the pipeline
// survived.
type Notification struct {
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Task    string    `json:"task"`
	Time    time.Time `json:"time"`
}

// Notifier receives notifications. Implementations must be safe for
// concurrent use; parallel tasks notify concurrently.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Func adapts a function to the Notifier interface.
type Func func(ctx context.Context, n Notification)

// Notify calls f.
func (f Func) Notify(ctx context.Context, n Notification) {
	f(ctx, n)
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(context.Context, Notification) {}

// Multi fans a notification out to several notifiers in order.
type Multi []Notifier

// Notify forwards n to every notifier.
func (m Multi) Notify(ctx context.Context, n Notification) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(ctx, n)
		}
	}
}

// LogNotifier writes notifications to a logger at warn level.
type LogNotifier struct {
	Logger logging.Logger
}

// Notify logs n.
func (l LogNotifier) Notify(ctx context.Context, n Notification) {
	l.Logger.Warn(ctx, nil, n.Title,
		"task", n.Task,
		"message", n.Message,
	)
}

// Recorder keeps every notification it receives.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

// Notify records n.
func (r *Recorder) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

// Notifications returns a copy of what has been recorded so far.
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}
