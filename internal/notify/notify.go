// Package notify delivers success and error messages ("toasts") to the user.
package notify

import (
	"context"
	"sync"

	"github.com/ff-monheim/ams-console/internal/session"
)

// Kind classifies a notification.
type Kind string

const (
	KindSuccess Kind = session.FlashSuccess
	KindError   Kind = session.FlashError
)

// Notification is one user-facing message.
type Notification struct {
	Kind    Kind
	Message string
}

// Success returns a success notification.
func Success(message string) Notification {
	return Notification{Kind: KindSuccess, Message: message}
}

// Error returns an error notification.
func Error(message string) Notification {
	return Notification{Kind: KindError, Message: message}
}

// Notifier delivers notifications for the user behind ctx.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// SessionNotifier queues notifications as flash messages on the request's
// session; the next rendered page shows them.
type SessionNotifier struct{}

// Notify implements Notifier. Without a session the message is dropped.
func (SessionNotifier) Notify(ctx context.Context, n Notification) {
	if n.Message == "" {
		return
	}
	if sess := session.FromContext(ctx); sess != nil {
		sess.AddFlash(session.Flash{Kind: string(n.Kind), Message: n.Message})
	}
}

// Discard drops every notification.
type Discard struct{}

// Notify implements Notifier.
func (Discard) Notify(context.Context, Notification) {}

// Recorder keeps notifications in memory.
type Recorder struct {
	mu  sync.Mutex
	all []Notification
}

// Notify implements Notifier.
func (r *Recorder) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = append(r.all, n)
}

// All returns the notifications received so far.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.all...)
}

// Last returns the most recent notification.
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.all) == 0 {
		return Notification{}, false
	}
	return r.all[len(r.all)-1], true
}
