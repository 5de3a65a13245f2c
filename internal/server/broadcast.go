package server

import (
	"log"
	"sync"
	"time"

	"github.com/npezzotti/go-chatrooms/internal/stats"
)

// roomLocks hands out one mutex per room, created on demand and discarded
// when no goroutine holds or waits for it.
type roomLocks struct {
	mu    sync.Mutex
	locks map[string]*roomLock
}

type roomLock struct {
	sync.Mutex
	refs int
}

func newRoomLocks() *roomLocks {
	return &roomLocks{locks: make(map[string]*roomLock)}
}

func (l *roomLocks) lock(roomId string) (unlock func()) {
	l.mu.Lock()
	rl, ok := l.locks[roomId]
	if !ok {
		rl = &roomLock{}
		l.locks[roomId] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.Lock()
	return func() {
		rl.Unlock()

		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, roomId)
		}
		l.mu.Unlock()
	}
}

func (l *roomLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// Broadcaster fans events out to the connections of a room. Events for the
// same room are processed one at a time; different rooms never contend.
type Broadcaster struct {
	registry *Registry
	locks    *roomLocks
	log      *log.Logger
	stats    stats.StatsProvider
}

func NewBroadcaster(registry *Registry, l *log.Logger, su stats.StatsProvider) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		locks:    newRoomLocks(),
		log:      l,
		stats:    su,
	}
}

// Deliver sends ev to every connection in roomId except exclude. A recipient
// that cannot accept the frame is removed from the room and its departure is
// announced to the others.
func (b *Broadcaster) Deliver(roomId string, ev *Event, exclude *Connection) {
	b.deliver(roomId, ev, exclude, true)
}

func (b *Broadcaster) deliver(roomId string, ev *Event, exclude *Connection, announce bool) {
	frame, err := serializeEvent(ev)
	if err != nil {
		b.log.Printf("serialize %s event for room %q: %v", ev.Type, roomId, err)
		return
	}

	var departed []*Connection

	unlock := b.locks.lock(roomId)
	for _, c := range b.registry.Snapshot(roomId) {
		if c == exclude {
			continue
		}

		if err := c.queue(frame); err != nil {
			b.stats.Incr(statDeliveryFailures)
			b.log.Printf("deliver to %q in room %q: %v", c.user.Username, roomId, err)
			if b.detach(c) && announce {
				departed = append(departed, c)
			}
		}
	}
	unlock()

	// departures of failed recipients are best effort: failures while
	// announcing them only detach, they are never announced in turn
	for _, c := range departed {
		b.deliver(roomId, LeaveEvent(c), nil, false)
	}
}

// withRoom runs fn while holding the room's delivery lock, so no broadcast
// for roomId interleaves with it.
func (b *Broadcaster) withRoom(roomId string, fn func()) {
	unlock := b.locks.lock(roomId)
	defer unlock()
	fn()
}

// Depart removes c from its room, closes it and announces the departure. Only
// the first call for a connection has any effect.
func (b *Broadcaster) Depart(c *Connection) {
	if b.detach(c) {
		b.deliver(c.roomId, LeaveEvent(c), nil, false)
	}
}

// detach reports whether this call removed and closed c.
func (b *Broadcaster) detach(c *Connection) bool {
	detached := false
	c.departOnce.Do(func() {
		b.registry.Remove(c.roomId, c)
		c.close()
		b.stats.Decr(statActiveConnections)
		b.log.Printf("%q left room %q (connection %s, online %s)", c.user.Username, c.roomId, c.id,
			time.Since(c.connectedAt).Round(time.Second))
		detached = true
	})

	return detached
}
