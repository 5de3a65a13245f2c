package server

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/npezzotti/go-chatrooms/internal/stats"
	"github.com/npezzotti/go-chatrooms/internal/types"
)

// IdentityResolver resolves an opaque token to a user. Invalid or unknown
// tokens must be reported with an error wrapping ErrUnauthenticated.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, token string) (types.User, error)
}

type RoomLookup interface {
	RoomExists(ctx context.Context, roomId string) (bool, error)
}

// Gate checks a connecting peer before it is admitted to a room.
type Gate struct {
	identities IdentityResolver
	rooms      RoomLookup
	registry   *Registry
	bc         *Broadcaster
	log        *log.Logger
	stats      stats.StatsProvider
}

func NewGate(identities IdentityResolver, rooms RoomLookup, registry *Registry, bc *Broadcaster, l *log.Logger, su stats.StatsProvider) *Gate {
	return &Gate{
		identities: identities,
		rooms:      rooms,
		registry:   registry,
		bc:         bc,
		log:        l,
		stats:      su,
	}
}

// Authorize resolves token and confirms that roomId exists. It never
// touches the registry.
func (g *Gate) Authorize(ctx context.Context, token, roomId string) (types.User, error) {
	if token == "" {
		return types.User{}, fmt.Errorf("%w: missing token", ErrUnauthenticated)
	}

	user, err := g.identities.ResolveIdentity(ctx, token)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return types.User{}, err
		}
		return types.User{}, fmt.Errorf("resolve identity: %w", err)
	}

	ok, err := g.rooms.RoomExists(ctx, roomId)
	if err != nil {
		return types.User{}, fmt.Errorf("room lookup: %w", err)
	}
	if !ok {
		return types.User{}, fmt.Errorf("%w: %q", ErrRoomNotFound, roomId)
	}

	return user, nil
}

// Admit registers c, sends it a private welcome and announces the join to
// everyone else in the room. The welcome is queued before any other room
// event can reach c.
func (g *Gate) Admit(c *Connection) {
	g.bc.withRoom(c.roomId, func() {
		g.registry.Add(c.roomId, c)

		frame, err := serializeEvent(WelcomeEvent(c, g.registry.Count(c.roomId)))
		if err != nil {
			g.log.Printf("serialize welcome event: %v", err)
			return
		}
		if err := c.queue(frame); err != nil {
			g.log.Printf("queue welcome for %q: %v", c.user.Username, err)
		}
	})

	g.stats.Incr(statActiveConnections)
	g.log.Printf("%q joined room %q (connection %s)", c.user.Username, c.roomId, c.id)

	g.bc.Deliver(c.roomId, JoinEvent(c), c)
}
