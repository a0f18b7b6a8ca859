// Package session keeps browser-session state on the server.
//
// The browser only holds an opaque session ID in a cookie without expiry, so
// the session ends when the browser closes. Server-side entries expire after
// an idle TTL. Values are plain strings; callers encode richer state
// themselves.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound is returned by stores for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// Flash kinds.
const (
	FlashSuccess = "success"
	FlashError   = "error"
)

// Flash is a one-time message shown on the next rendered page.
type Flash struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Session is the server-side state of one browser session.
type Session struct {
	mu      sync.Mutex
	id      string
	values  map[string]string
	flashes []Flash

	isNew     bool
	dirty     bool
	destroyed bool
	// previousID is deleted from the store on commit after Renew.
	previousID string
}

// record is the persisted form of a Session.
type record struct {
	ID      string            `json:"id"`
	Values  map[string]string `json:"values,omitempty"`
	Flashes []Flash           `json:"flashes,omitempty"`
}

// New returns an empty, unsaved session with a fresh ID.
func New() *Session {
	return &Session{
		id:     uuid.NewString(),
		values: map[string]string{},
		isNew:  true,
	}
}

func fromRecord(rec record) *Session {
	values := make(map[string]string, len(rec.Values))
	for k, v := range rec.Values {
		values[k] = v
	}
	return &Session{
		id:      rec.ID,
		values:  values,
		flashes: append([]Flash(nil), rec.Flashes...),
	}
}

func (s *Session) record() record {
	s.mu.Lock()
	defer s.mu.Unlock()
	values := make(map[string]string, len(s.values))
	for k, v := range s.values {
		values[k] = v
	}
	return record{
		ID:      s.id,
		Values:  values,
		Flashes: append([]Flash(nil), s.flashes...),
	}
}

// ID returns the session ID.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Get returns the value stored under key, or "".
func (s *Session) Get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

// Set stores value under key.
func (s *Session) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	s.dirty = true
}

// Delete removes key.
func (s *Session) Delete(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		if _, ok := s.values[key]; ok {
			delete(s.values, key)
			s.dirty = true
		}
	}
}

// AddFlash queues a message for the next rendered page.
func (s *Session) AddFlash(f Flash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flashes = append(s.flashes, f)
	s.dirty = true
}

// PopFlashes returns and clears queued messages.
func (s *Session) PopFlashes() []Flash {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.flashes) == 0 {
		return nil
	}
	out := s.flashes
	s.flashes = nil
	s.dirty = true
	return out
}

// Renew moves the session to a fresh ID. The old ID is removed from the
// store when the response is committed.
func (s *Session) Renew() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isNew && s.previousID == "" {
		s.previousID = s.id
	}
	s.id = uuid.NewString()
	s.isNew = true
	s.dirty = true
}

// Destroy marks the session for deletion on commit.
func (s *Session) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed = true
	s.values = map[string]string{}
	s.flashes = nil
}

type contextKey struct{}

// NewContext returns a context carrying sess.
func NewContext(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, sess)
}

// FromContext returns the request's session, or nil outside the middleware.
func FromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(contextKey{}).(*Session)
	return sess
}
