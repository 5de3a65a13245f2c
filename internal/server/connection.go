package server

import (
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-chatrooms/internal/config"
	"github.com/npezzotti/go-chatrooms/internal/types"
	"github.com/teris-io/shortid"
)

const (
	// maxFrameSize is the hard limit for one inbound frame. Larger frames fail
	// the transport with 1009.
	maxFrameSize = 1 << 20
	// maxBufferedFrame is how much of a frame is kept in memory. The rest of
	// a longer frame is discarded and the frame is reported as oversized.
	maxBufferedFrame = 64 << 10
	closeWait        = time.Second
)

// Connection is one live websocket session bound to a single room for its
// whole lifetime.
type Connection struct {
	id          string
	roomId      string
	user        types.User
	conn        *websocket.Conn
	log         *log.Logger
	send        chan []byte
	done        chan struct{}
	closeOnce   sync.Once
	departOnce  sync.Once
	connectedAt time.Time
	lastActive  atomic.Int64
	writeWait   time.Duration
	pongWait    time.Duration
}

func NewConnection(user types.User, roomId string, conn *websocket.Conn, l *log.Logger, opts config.ChatOptions) *Connection {
	id, err := shortid.Generate()
	if err != nil {
		id = uuid.NewString()
	}

	now := time.Now()
	c := &Connection{
		id:          id,
		roomId:      roomId,
		user:        user,
		conn:        conn,
		log:         l,
		send:        make(chan []byte, opts.SendBufferSize),
		done:        make(chan struct{}),
		connectedAt: now,
		writeWait:   opts.WriteWait,
		pongWait:    opts.PongWait,
	}
	c.lastActive.Store(now.UnixNano())

	return c
}

func (c *Connection) LastActiveAt() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

func (c *Connection) touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

// queue hands a frame to the write pump without blocking. A full queue
// means the peer is not keeping up and is reported as a delivery failure.
func (c *Connection) queue(frame []byte) error {
	select {
	case <-c.done:
		return ErrTransportClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	default:
		return ErrDeliveryFailed
	}
}

func (c *Connection) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// close stops the write pump and closes the transport, which unblocks the
// read pump. It is safe to call more than once.
func (c *Connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

func (c *Connection) closeWithCode(code int, reason string) {
	if c.conn != nil && !c.closed() {
		msg := websocket.FormatCloseMessage(code, reason)
		if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait)); err != nil {
			c.log.Printf("write close frame to %q: %v", c.id, err)
		}
	}
	c.close()
}

func (c *Connection) pingInterval() time.Duration {
	return (c.pongWait * 9) / 10
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.pingInterval())
	defer func() {
		ticker.Stop()
		if r := recover(); r != nil {
			c.log.Printf("panic writing to connection %s: %v", c.id, r)
			c.closeWithCode(websocket.CloseInternalServerErr, "internal error")
			return
		}
		c.close()
	}()

	for {
		select {
		case frame := <-c.send:
			if !c.write(websocket.TextMessage, frame) {
				return
			}
		case <-ticker.C:
			if !c.write(websocket.PingMessage, nil) {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Connection) write(msgType int, frame []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))

	if err := c.conn.WriteMessage(msgType, frame); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write to %q: %v", c.id, err)
		}
		return false
	}

	return true
}

// readPump blocks reading text frames and passes each one to handle along
// with whether it was cut at maxBufferedFrame. It returns when the transport
// fails or is closed.
func (c *Connection) readPump(handle func(raw string, oversized bool)) {
	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.touch()
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		msgType, r, err := c.conn.NextReader()
		if err != nil {
			c.logReadError(err)
			return
		}

		c.touch()
		c.conn.SetReadDeadline(time.Now().Add(c.pongWait))

		if msgType != websocket.TextMessage {
			continue
		}

		raw, oversized, err := readFrame(r, maxBufferedFrame)
		if err != nil {
			c.logReadError(err)
			return
		}

		handle(string(raw), oversized)
	}
}

func (c *Connection) logReadError(err error) {
	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
		websocket.CloseNormalClosure) {
		c.log.Printf("read from %q: %v", c.id, err)
	}
}

// readFrame reads at most limit bytes of r and discards the remainder.
func readFrame(r io.Reader, limit int64) ([]byte, bool, error) {
	raw, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(raw)) <= limit {
		return raw, false, nil
	}

	if _, err := io.Copy(io.Discard, r); err != nil {
		return nil, false, err
	}

	return raw[:limit], true, nil
}
