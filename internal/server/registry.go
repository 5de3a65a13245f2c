package server

import (
	"sync"

	"github.com/samber/lo"
)

// Registry maps room ids to the set of live connections joined to them.
// It is the only owner of that mapping. The lock guards map access only and
// is never held across network I/O.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*Connection
	// index maps a connection id to the room it is registered under
	index map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]map[string]*Connection),
		index: make(map[string]string),
	}
}

// Add registers c under roomId. Adding a connection that is already present
// is a no-op. A connection recorded under another room is moved, so it is
// never visible in two rooms at once.
func (r *Registry) Add(roomId string, c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.index[c.id]; ok {
		if prev == roomId {
			return
		}
		r.removeLocked(prev, c.id)
	}

	set, ok := r.rooms[roomId]
	if !ok {
		set = make(map[string]*Connection)
		r.rooms[roomId] = set
	}

	set[c.id] = c
	r.index[c.id] = roomId
}

// Remove unregisters c from roomId and drops the room entry once it is
// empty. Removing an absent connection or room is a no-op.
func (r *Registry) Remove(roomId string, c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(roomId, c.id)
}

func (r *Registry) removeLocked(roomId, connId string) {
	set, ok := r.rooms[roomId]
	if !ok {
		return
	}

	if _, ok := set[connId]; !ok {
		return
	}

	delete(set, connId)
	if r.index[connId] == roomId {
		delete(r.index, connId)
	}

	if len(set) == 0 {
		delete(r.rooms, roomId)
	}
}

// Snapshot returns a copy of the connections in roomId. The slice does not
// track later membership changes.
func (r *Registry) Snapshot(roomId string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Values(r.rooms[roomId])
}

func (r *Registry) Count(roomId string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms[roomId])
}

// roomOf returns the room a connection id is registered under.
func (r *Registry) roomOf(connId string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roomId, ok := r.index[connId]
	return roomId, ok
}

// Rooms returns the ids of rooms with at least one connection.
func (r *Registry) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Keys(r.rooms)
}

func (r *Registry) All() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Connection, 0, len(r.index))
	for _, set := range r.rooms {
		for _, c := range set {
			conns = append(conns, c)
		}
	}

	return conns
}
