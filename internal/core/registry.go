package core

import "sync"

// Registry maps users to their live connections. It is owned by one Hub;
// only the hub loop writes to it, routers read concurrently.
type Registry struct {
	mu     sync.RWMutex
	byUser map[int64]map[*Client]struct{}
	count  int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byUser: make(map[int64]map[*Client]struct{})}
}

// Register adds c under its user. Returns false if already registered.
func (r *Registry) Register(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.byUser[c.UserID]
	if !ok {
		conns = make(map[*Client]struct{})
		r.byUser[c.UserID] = conns
	}
	if _, exists := conns[c]; exists {
		return false
	}
	conns[c] = struct{}{}
	r.count++
	return true
}

// Unregister removes exactly c, leaving the user's other connections in
// place. Returns false if c was not registered.
func (r *Registry) Unregister(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.byUser[c.UserID]
	if !ok {
		return false
	}
	if _, exists := conns[c]; !exists {
		return false
	}
	delete(conns, c)
	r.count--
	if len(conns) == 0 {
		delete(r.byUser, c.UserID)
	}
	return true
}

// ConnectionsFor returns a snapshot of the user's live connections.
func (r *Registry) ConnectionsFor(userID int64) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.byUser[userID]
	out := make([]*Client, 0, len(conns))
	for c := range conns {
		out = append(out, c)
	}
	return out
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Users returns the number of users with at least one connection.
func (r *Registry) Users() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// drain removes and returns every connection.
func (r *Registry) drain() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Client, 0, r.count)
	for _, conns := range r.byUser {
		for c := range conns {
			out = append(out, c)
		}
	}
	r.byUser = make(map[int64]map[*Client]struct{})
	r.count = 0
	return out
}
