package server

import (
	"chat_relay/internal/model"
	"sort"
	"sync"
)

type (
	// Registry is the single source of truth for which connections are live
	// and which identity each one belongs to. Every mutation and read goes
	// through one mutex; nothing blocking happens under it.
	Registry struct {
		mu     sync.Mutex
		byUser map[string]*connSet
	}

	connSet struct {
		name  string
		conns map[*Conn]struct{}
	}
)

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]*connSet),
	}
}

// Admit registers the connection under its identity. An identity may hold
// several connections at once (multi-device).
func (r *Registry) Admit(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.byUser[c.identity.ID]
	if !ok {
		set = &connSet{
			name:  c.identity.DisplayName,
			conns: make(map[*Conn]struct{}),
		}
		r.byUser[c.identity.ID] = set
	}
	set.conns[c] = struct{}{}
}

// Evict removes the connection and reports whether it was still registered.
// Evicting twice is a no-op, which keeps the close paths free to overlap.
func (r *Registry) Evict(c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.byUser[c.identity.ID]
	if !ok {
		return false
	}
	if _, ok := set.conns[c]; !ok {
		return false
	}

	delete(set.conns, c)
	if len(set.conns) == 0 {
		delete(r.byUser, c.identity.ID)
	}
	return true
}

// Snapshot returns the distinct identities with at least one live
// connection, sorted by user id so repeated snapshots compare stably.
func (r *Registry) Snapshot() []model.PresenceEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]model.PresenceEntry, 0, len(r.byUser))
	for id, set := range r.byUser {
		entries = append(entries, model.PresenceEntry{
			UserID:   id,
			Username: set.name,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].UserID < entries[j].UserID
	})
	return entries
}

// ConnectionsFor returns the live connections of one identity, possibly none.
func (r *Registry) ConnectionsFor(identityID string) []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.byUser[identityID]
	if !ok {
		return nil
	}
	conns := make([]*Conn, 0, len(set.conns))
	for c := range set.conns {
		conns = append(conns, c)
	}
	return conns
}

// Conns returns every live connection across all identities.
func (r *Registry) Conns() []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	var conns []*Conn
	for _, set := range r.byUser {
		for c := range set.conns {
			conns = append(conns, c)
		}
	}
	return conns
}
