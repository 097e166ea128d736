package relay

import (
	"slices"
	"sync"
)

// Registry maps each user id to at most one connection and each connection
// back to its user id. Every method is a short critical section that never
// calls out to collaborators.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]Conn
	byConn map[Conn]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]Conn),
		byConn: make(map[Conn]string),
	}
}

// Register binds userID to c, superseding any earlier connection for userID.
// The superseded connection is left open. If c was bound to a different user
// id, that binding is dropped and the old id is returned.
func (r *Registry) Register(userID string, c Conn) (displaced string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byConn[c]; ok && prev != userID {
		if r.byUser[prev] == c {
			delete(r.byUser, prev)
		}
		displaced = prev
	}
	if old, ok := r.byUser[userID]; ok && old != c {
		delete(r.byConn, old)
	}
	r.byUser[userID] = c
	r.byConn[c] = userID
	return displaced
}

// Unregister removes whichever entry holds c and returns its user id.
func (r *Registry) Unregister(c Conn) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byConn[c]
	if !ok {
		return "", false
	}
	delete(r.byConn, c)
	if r.byUser[userID] == c {
		delete(r.byUser, userID)
	}
	return userID, true
}

// Lookup returns the connection registered for userID.
func (r *Registry) Lookup(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byUser[userID]
	return c, ok
}

// UserOf returns the user id bound to c.
func (r *Registry) UserOf(c Conn) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.byConn[c]
	return userID, ok
}

// Connections returns a snapshot of every registered connection.
func (r *Registry) Connections() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Conn, 0, len(r.byUser))
	for _, c := range r.byUser {
		out = append(out, c)
	}
	return out
}

// Users returns the registered user ids in sorted order.
func (r *Registry) Users() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.byUser))
	for id := range r.byUser {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Len returns the number of registered users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
