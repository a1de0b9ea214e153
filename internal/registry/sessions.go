// Package registry keeps the live directory of connected users and of the
// groups they belong to. Each registry guards its own state with its own lock,
// so routing a message to one user never waits on an unrelated group edit.
package registry

import (
	"errors"
	"strings"
	"sync"
)

var (
	// ErrNameTaken is returned when a display name is already online.
	ErrNameTaken = errors.New("name already online")
	// ErrInvalidName is returned for blank user or group names.
	ErrInvalidName = errors.New("invalid name")
	// ErrNotFound is returned when no session or group has the given name.
	ErrNotFound = errors.New("not found")
)

// Endpoint is the outbound side of a live connection.
type Endpoint interface {
	// Send queues an encoded record for delivery and reports whether it was
	// accepted. It must not block.
	Send(record []byte) bool
}

// Session is a registered, connected user.
type Session struct {
	name     string
	endpoint Endpoint

	// guarded by the owning Sessions lock
	profileImage string
}

// Name returns the session's display name.
func (s *Session) Name() string { return s.name }

// Endpoint returns the connection records for this session are sent to.
func (s *Session) Endpoint() Endpoint { return s.endpoint }

// Entry is one session as seen by a directory snapshot.
type Entry struct {
	Name         string
	ProfileImage string
	Endpoint     Endpoint
}

// Sessions maps display names to live sessions, remembering the order in
// which they registered.
type Sessions struct {
	mu     sync.RWMutex
	byName map[string]*Session
	order  []string
}

// NewSessions creates an empty session registry.
func NewSessions() *Sessions {
	return &Sessions{byName: make(map[string]*Session)}
}

// Register adds a session for name. It fails with ErrNameTaken if the name is
// already online; the existing session is left untouched.
func (r *Sessions) Register(name string, endpoint Endpoint, profileImage string) (*Session, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrInvalidName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[name]; ok {
		return nil, ErrNameTaken
	}
	s := &Session{name: name, endpoint: endpoint, profileImage: profileImage}
	r.byName[name] = s
	r.order = append(r.order, name)
	return s, nil
}

// Lookup returns the session registered under name, or ErrNotFound.
func (r *Sessions) Lookup(name string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byName[name]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Contains reports whether name is currently online.
func (r *Sessions) Contains(name string) bool {
	_, err := r.Lookup(name)
	return err == nil
}

// SetProfileImage replaces the profile image of an online session.
func (r *Sessions) SetProfileImage(name, image string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byName[name]
	if !ok {
		return ErrNotFound
	}
	s.profileImage = image
	return nil
}

// Remove is the only way a session stops being reachable. Lookups that start
// after it returns never see the session.
func (r *Sessions) Remove(name string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byName[name]
	if !ok {
		return nil, ErrNotFound
	}
	delete(r.byName, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return s, nil
}

// Snapshot returns every session in registration order.
func (r *Sessions) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.order))
	for _, name := range r.order {
		s := r.byName[name]
		entries = append(entries, Entry{Name: s.name, ProfileImage: s.profileImage, Endpoint: s.endpoint})
	}
	return entries
}

// Len returns the number of online sessions.
func (r *Sessions) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}
