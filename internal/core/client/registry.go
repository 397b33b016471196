package client

import "sync"

// Registry is the concurrency-safe collection of live sessions. It is owned
// by the controller and injected into every component that needs it, so
// tests can instantiate isolated server instances.
//
// Visit pairings live here rather than on the sessions themselves: keeping
// both directions in one map under one lock makes the symmetry invariant
// structural instead of something every caller has to maintain.
type Registry struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	pairs   map[*Client]*Client
	max     int
}

func NewRegistry(maxPlayers int) *Registry {
	return &Registry{
		clients: make(map[*Client]struct{}),
		pairs:   make(map[*Client]*Client),
		max:     maxPlayers,
	}
}

// Add registers the session. It returns false when the registry is at
// capacity, in which case the caller owes the client a "server full" reply.
func (r *Registry) Add(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.max > 0 && len(r.clients) >= r.max {
		return false
	}
	r.clients[c] = struct{}{}
	return true
}

// Remove evicts the session and tears down any visit pairing it held,
// returning the former peer (if any) so the caller can notify it.
func (r *Registry) Remove(c *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, c)
	return r.unpairLocked(c)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// All returns a snapshot of the live sessions.
func (r *Registry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clients := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		clients = append(clients, c)
	}
	return clients
}

// FindByUsername returns the live session logged in under the username, or
// nil if that player is offline.
func (r *Registry) FindByUsername(username string) *Client {
	if username == "" {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for c := range r.clients {
		if c.Username() == username {
			return c
		}
	}
	return nil
}

// Pair establishes a symmetric visit pairing between the two sessions. Both
// directions are set atomically from the caller's perspective. It returns
// false if either session is already paired.
func (r *Registry) Pair(a, b *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pairs[a]; ok {
		return false
	}
	if _, ok := r.pairs[b]; ok {
		return false
	}
	r.pairs[a] = b
	r.pairs[b] = a
	return true
}

// PeerOf returns the session's visit partner, or nil if it has none.
func (r *Registry) PeerOf(c *Client) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pairs[c]
}

// Unpair tears down the session's pairing from both sides and returns the
// former peer, or nil if the session was not paired. Tolerates one-sided
// state by construction: both directions always leave the map together.
func (r *Registry) Unpair(c *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unpairLocked(c)
}

func (r *Registry) unpairLocked(c *Client) *Client {
	peer, ok := r.pairs[c]
	if !ok {
		return nil
	}
	delete(r.pairs, c)
	delete(r.pairs, peer)
	return peer
}
