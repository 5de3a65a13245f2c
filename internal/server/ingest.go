package server

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/npezzotti/go-chatrooms/internal/database"
	"github.com/npezzotti/go-chatrooms/internal/stats"
)

const (
	// MaxContentLength is the maximum message length in characters after trimming.
	MaxContentLength = 1000

	heartbeatPing  = "PING"
	heartbeatPong  = "PONG"
	persistTimeout = 5 * time.Second
)

type MessageStore interface {
	AppendMessage(ctx context.Context, roomId string, userId uuid.UUID, content string) (database.Message, error)
}

type Deliverer interface {
	Deliver(roomId string, ev *Event, exclude *Connection)
}

// Pipeline turns inbound frames into persisted messages and room broadcasts.
// Nothing is broadcast unless it was stored first.
type Pipeline struct {
	store MessageStore
	out   Deliverer
	log   *log.Logger
	stats stats.StatsProvider
}

func NewPipeline(store MessageStore, out Deliverer, l *log.Logger, su stats.StatsProvider) *Pipeline {
	return &Pipeline{
		store: store,
		out:   out,
		log:   l,
		stats: su,
	}
}

// Ingest handles one inbound text frame from c. Heartbeats are answered
// directly. Validation and persistence failures are reported to the sender
// only and returned; the connection stays open either way.
func (p *Pipeline) Ingest(ctx context.Context, c *Connection, raw string) error {
	c.touch()

	if raw == heartbeatPing {
		if err := c.queue([]byte(heartbeatPong)); err != nil {
			return fmt.Errorf("queue pong: %w", err)
		}
		return nil
	}

	content, err := validateContent(raw)
	if err != nil {
		p.reply(c, ErrorEvent(CodeValidationFailed, err.Error()))
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	msg, err := p.store.AppendMessage(ctx, c.roomId, c.user.Id, content)
	if err != nil {
		p.log.Printf("append message from %q to room %q: %v", c.user.Username, c.roomId, err)
		p.reply(c, ErrorEvent(CodePersistenceFailed, "message could not be saved"))
		return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}

	p.stats.Incr(statMessagesIngested)
	p.out.Deliver(c.roomId, MessageEvent(msg, c), nil)

	return nil
}

// RejectOversized answers a frame that was too large to buffer with a
// validation failure. The connection stays open.
func (p *Pipeline) RejectOversized(c *Connection) error {
	c.touch()

	err := fmt.Errorf("%w: message exceeds %d characters", ErrValidationFailed, MaxContentLength)
	p.reply(c, ErrorEvent(CodeValidationFailed, err.Error()))
	return err
}

func (p *Pipeline) reply(c *Connection, ev *Event) {
	frame, err := serializeEvent(ev)
	if err != nil {
		p.log.Printf("serialize %s event: %v", ev.Type, err)
		return
	}

	if err := c.queue(frame); err != nil {
		p.log.Printf("reply to %q: %v", c.user.Username, err)
	}
}

func validateContent(raw string) (string, error) {
	content := strings.TrimSpace(raw)
	if content == "" {
		return "", fmt.Errorf("%w: message is empty", ErrValidationFailed)
	}

	if utf8.RuneCountInString(content) > MaxContentLength {
		return "", fmt.Errorf("%w: message exceeds %d characters", ErrValidationFailed, MaxContentLength)
	}

	return content, nil
}
