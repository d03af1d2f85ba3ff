package realtime

import (
	"sort"
	"sync"
)

// Registry maps a user to its single live connection.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Conn
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]Conn)}
}

// Register installs conn as the live session for userID and returns the
// connection it replaced, if any. The caller closes the returned connection.
func (r *Registry) Register(userID string, conn Conn) Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.sessions[userID]
	r.sessions[userID] = conn
	if !ok || sameConn(prev, conn) {
		return nil
	}
	return prev
}

// Unregister removes the session only while conn is still the one on record,
// so a late disconnect from a superseded connection cannot evict its successor.
func (r *Registry) Unregister(userID string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.sessions[userID]
	if !ok || !sameConn(cur, conn) {
		return false
	}
	delete(r.sessions, userID)
	return true
}

func (r *Registry) Lookup(userID string) Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[userID]
}

func (r *Registry) IsOnline(userID string) bool {
	return r.Lookup(userID) != nil
}

// AllOnline returns the online user ids in sorted order.
func (r *Registry) AllOnline() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
