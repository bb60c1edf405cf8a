package quiz

import (
	"sync"
	"time"
)

// Registry tracks the active attempt per portal session. An attempt lives
// only while the student is on the quiz pages; starting a new quiz or
// navigating away discards the old one, and settled attempts are swept
// periodically so a long-lived server does not accumulate them.
type Registry struct {
	mu       sync.Mutex
	attempts map[string]*Attempt
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{attempts: make(map[string]*Attempt)}
}

// Put installs the session's active attempt, discarding any previous one.
func (r *Registry) Put(sessionID string, a *Attempt) {
	r.mu.Lock()
	prev := r.attempts[sessionID]
	r.attempts[sessionID] = a
	r.mu.Unlock()
	if prev != nil {
		prev.Discard()
	}
}

// Get returns the session's active attempt, or nil.
func (r *Registry) Get(sessionID string) *Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts[sessionID]
}

// Sweep drops attempts that settled before cutoff and returns how many went.
// In-progress and submitting attempts are never touched.
func (r *Registry) Sweep(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, a := range r.attempts {
		if at, ok := a.SettledSince(); ok && at.Before(cutoff) {
			delete(r.attempts, id)
			n++
		}
	}
	return n
}

// Discard removes and tears down the session's active attempt.
func (r *Registry) Discard(sessionID string) {
	r.mu.Lock()
	a := r.attempts[sessionID]
	delete(r.attempts, sessionID)
	r.mu.Unlock()
	if a != nil {
		a.Discard()
	}
}
