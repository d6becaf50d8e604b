package session

import (
	"bufio"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/sudoqu/sudoqu/internal/wire"
)

const (
	outboxSize    = 64
	writeTimeout  = 5 * time.Second
	maxLineLength = 64 * 1024
)

// Conn wraps one player's socket. The coordinator loop never writes to the
// socket directly: it queues messages on the outbox and a writer goroutine
// drains them. Closing the outbox is the teardown signal; the writer closes
// the socket only after the queue is flushed, which is what guarantees the
// disconnect acknowledgment reaches a departing client.
type Conn struct {
	raw net.Conn
	out chan *wire.Message
	log *zap.Logger
}

func newConn(raw net.Conn, log *zap.Logger) *Conn {
	return &Conn{
		raw: raw,
		out: make(chan *wire.Message, outboxSize),
		log: log.With(zap.String("remote", raw.RemoteAddr().String())),
	}
}

// send queues a message without blocking the coordinator loop. A full outbox
// means the client stopped draining; the caller drops the connection.
func (c *Conn) send(msg *wire.Message) bool {
	select {
	case c.out <- msg:
		return true
	default:
		return false
	}
}

// writeLoop runs until the outbox is closed. After a write error the
// remaining queue is discarded so senders are never blocked on a dead
// socket.
func (c *Conn) writeLoop() {
	defer c.raw.Close()
	failed := false
	for msg := range c.out {
		if failed {
			continue
		}
		c.raw.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := wire.Encode(c.raw, msg); err != nil {
			c.log.Debug("write failed", zap.Error(err))
			failed = true
		}
	}
}

// readLines scans newline-delimited messages and hands them to deliver.
// Malformed lines are dropped without comment. Returns when the socket
// fails, the peer closes, or deliver reports the coordinator is gone.
func (c *Conn) readLines(deliver func(*wire.Message) bool) {
	scanner := bufio.NewScanner(c.raw)
	scanner.Buffer(make([]byte, 0, 4096), maxLineLength)
	for scanner.Scan() {
		msg, err := wire.Decode(scanner.Bytes())
		if err != nil {
			continue
		}
		if !deliver(msg) {
			return
		}
	}
}
