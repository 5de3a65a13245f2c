package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-chatrooms/internal/config"
	"github.com/npezzotti/go-chatrooms/internal/database"
	"github.com/npezzotti/go-chatrooms/internal/stats"
	"github.com/npezzotti/go-chatrooms/internal/types"
)

const (
	statActiveConnections  = "ActiveConnections"
	statMessagesIngested   = "MessagesIngested"
	statDeliveryFailures   = "DeliveryFailures"
	statRejectedHandshakes = "RejectedHandshakes"
)

type ChatServer struct {
	log         *log.Logger
	stats       stats.StatsProvider
	opts        config.ChatOptions
	registry    *Registry
	broadcaster *Broadcaster
	pipeline    *Pipeline
	gate        *Gate
	ctx         context.Context
	cancel      context.CancelFunc
	mu          sync.Mutex
	closing     bool
	conns       sync.WaitGroup
}

func NewChatServer(logger *log.Logger, db database.GoChatRepository, identities IdentityResolver, su stats.StatsProvider, opts config.ChatOptions) (*ChatServer, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("chat options: %w", err)
	}

	for _, name := range []string{statActiveConnections, statMessagesIngested, statDeliveryFailures, statRejectedHandshakes} {
		su.RegisterMetric(name)
	}

	registry := NewRegistry()
	bc := NewBroadcaster(registry, logger, su)
	ctx, cancel := context.WithCancel(context.Background())

	return &ChatServer{
		log:         logger,
		stats:       su,
		opts:        opts,
		registry:    registry,
		broadcaster: bc,
		pipeline:    NewPipeline(db, bc, logger, su),
		gate:        NewGate(identities, db, registry, bc, logger, su),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Run sweeps idle connections until Shutdown is called. Without an idle
// timeout it only waits. Shutdown does not report success while Run is
// still sweeping.
func (cs *ChatServer) Run() {
	if !cs.track() {
		return
	}
	defer cs.conns.Done()

	if cs.opts.IdleTimeout <= 0 {
		<-cs.ctx.Done()
		return
	}

	ticker := time.NewTicker(sweepInterval(cs.opts.IdleTimeout))
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			if n := cs.sweepIdle(now); n > 0 {
				cs.log.Printf("closed %d idle connections", n)
			}
		case <-cs.ctx.Done():
			return
		}
	}
}

func sweepInterval(idle time.Duration) time.Duration {
	interval := idle / 2
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}

func (cs *ChatServer) sweepIdle(now time.Time) int {
	var n int
	for _, c := range cs.registry.All() {
		if now.Sub(c.LastActiveAt()) <= cs.opts.IdleTimeout {
			continue
		}

		cs.log.Printf("connection %s of %q idle since %s", c.id, c.user.Username, c.LastActiveAt().Format(time.RFC3339))
		c.closeWithCode(websocket.CloseGoingAway, "idle timeout")
		cs.broadcaster.Depart(c)
		n++
	}

	return n
}

// ServeConn runs an upgraded websocket until it disconnects. Peers failing
// authorization are closed with a policy violation before they are admitted.
func (cs *ChatServer) ServeConn(ws *websocket.Conn, token, roomId string) {
	if !cs.track() {
		rejectTransport(ws, websocket.CloseGoingAway, "server shutting down")
		return
	}
	defer cs.conns.Done()

	user, err := cs.gate.Authorize(cs.ctx, token, roomId)
	if err != nil {
		cs.stats.Incr(statRejectedHandshakes)
		cs.log.Printf("reject connection to room %q: %v", roomId, err)

		code, reason := websocket.CloseInternalServerErr, "internal error"
		switch {
		case errors.Is(err, ErrUnauthenticated):
			code, reason = websocket.ClosePolicyViolation, "unauthenticated"
		case errors.Is(err, ErrRoomNotFound):
			code, reason = websocket.ClosePolicyViolation, "room not found"
		}

		rejectTransport(ws, code, reason)
		return
	}

	c := NewConnection(user, roomId, ws, cs.log, cs.opts)
	cs.gate.Admit(c)
	if cs.ctx.Err() != nil {
		c.closeWithCode(websocket.CloseGoingAway, "server shutting down")
	}

	defer cs.broadcaster.Depart(c)
	defer func() {
		if r := recover(); r != nil {
			cs.log.Printf("panic serving connection %s: %v", c.id, r)
			c.closeWithCode(websocket.CloseInternalServerErr, "internal error")
		}
	}()

	go c.writePump()
	c.readPump(func(raw string, oversized bool) {
		var err error
		if oversized {
			err = cs.pipeline.RejectOversized(c)
		} else {
			err = cs.pipeline.Ingest(cs.ctx, c, raw)
		}
		if err != nil {
			cs.log.Printf("ingest from %q: %v", c.user.Username, err)
		}
	})
}

// track registers a running connection handler or sweeper unless the
// server is shutting down.
func (cs *ChatServer) track() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.closing {
		return false
	}

	cs.conns.Add(1)
	return true
}

func rejectTransport(ws *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait))
	ws.Close()
}

// ActiveUsers returns the number of connections in roomId.
func (cs *ChatServer) ActiveUsers(roomId string) int {
	return cs.registry.Count(roomId)
}

// Present returns the distinct users connected to roomId.
func (cs *ChatServer) Present(roomId string) []types.User {
	seen := make(map[string]struct{})
	users := make([]types.User, 0)
	for _, c := range cs.registry.Snapshot(roomId) {
		if _, ok := seen[c.user.Id.String()]; ok {
			continue
		}
		seen[c.user.Id.String()] = struct{}{}
		users = append(users, c.user)
	}

	return users
}

// Shutdown closes every connection and waits for their handlers and the
// idle sweeper to finish or for ctx to expire.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("shutting down chat server")

	cs.mu.Lock()
	cs.closing = true
	cs.mu.Unlock()

	cs.cancel()

	for _, c := range cs.registry.All() {
		c.closeWithCode(websocket.CloseGoingAway, "server shutting down")
	}

	finished := make(chan struct{})
	go func() {
		cs.conns.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for connections: %w", ctx.Err())
	}
}
