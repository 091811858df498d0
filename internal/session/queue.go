// Package session — queue.go
//
// Per-connection output queue: each connection has exactly one goroutine
// performing protocol.WriteMessage on its socket; every other goroutine
// hands it messages through this bounded queue instead of writing
// directly. A connection that can't keep up with its own outbound queue
// is disconnected rather than left to buffer unboundedly.
package session

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Hyunwoo2267/ComNetProject/internal/observability"
	"github.com/Hyunwoo2267/ComNetProject/internal/protocol"
	"github.com/Hyunwoo2267/ComNetProject/internal/ratelimit"
)

// OutboundQueueCapacity is the bound on a connection's pending-write
// queue. A write that would exceed it disconnects the client rather
// than blocking the sender or growing without limit.
const OutboundQueueCapacity = 64

// ErrQueueFull is returned by Connection.Send when the outbound queue is
// saturated.
var errQueueFull = &queueFullError{}

type queueFullError struct{}

func (*queueFullError) Error() string { return "session: outbound queue full" }

// Connection wraps one accepted TCP socket: a dedicated writer goroutine
// draining a bounded queue, a rate-limited reader, and the player identity
// bound to it after a successful CONNECT handshake.
type Connection struct {
	conn    net.Conn
	reader  *bufio.Reader
	log     *zap.Logger
	metrics *observability.Metrics

	limiter *ratelimit.Bucket

	out       chan any
	closed    chan struct{}
	closeOnce sync.Once

	SessionID string
	PlayerID  string
	Host      string
}

// RateLimit bundles the inbound token-bucket parameters a Server applies
// to every accepted connection.
type RateLimit struct {
	Capacity     int
	RefillPeriod time.Duration
}

// DefaultRateLimit mirrors internal/ratelimit's documented defaults.
var DefaultRateLimit = RateLimit{
	Capacity:     ratelimit.DefaultCapacity,
	RefillPeriod: ratelimit.DefaultRefillPeriod,
}

// newConnection wraps an accepted socket. A session id is minted here and
// attached to every log line this connection's goroutines emit for the
// rest of its lifetime. The writer goroutine is started immediately;
// callers must call Close when done.
func newConnection(c net.Conn, log *zap.Logger, rl RateLimit, metrics *observability.Metrics) *Connection {
	host, _, _ := net.SplitHostPort(c.RemoteAddr().String())
	sessionID := uuid.NewString()
	conn := &Connection{
		conn:      c,
		reader:    bufio.NewReader(c),
		log:       log.With(zap.String("session_id", sessionID)),
		metrics:   metrics,
		limiter:   ratelimit.New(rl.Capacity, rl.RefillPeriod),
		out:       make(chan any, OutboundQueueCapacity),
		closed:    make(chan struct{}),
		SessionID: sessionID,
		Host:      host,
	}
	go conn.writeLoop()
	return conn
}

func (c *Connection) writeLoop() {
	for {
		select {
		case msg, ok := <-c.out:
			if !ok {
				return
			}
			if err := protocol.WriteMessage(c.conn, msg); err != nil {
				c.log.Debug("write failed, closing connection", zap.String("player_id", c.PlayerID), zap.Error(err))
				c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

// Send enqueues v for delivery. Implements player.Outbound. A full queue
// closes the connection and returns an error — a slow client backs up
// the whole match otherwise.
func (c *Connection) Send(v any) error {
	select {
	case c.out <- v:
		return nil
	default:
		c.log.Warn("outbound queue full, disconnecting", zap.String("player_id", c.PlayerID))
		if c.metrics != nil {
			c.metrics.OutboundQueueOverflowsTotal.Inc()
		}
		c.Close()
		return errQueueFull
	}
}

// AllowMessage consumes one token from the connection's inbound rate
// limiter. False means the caller should drop the message or disconnect.
func (c *Connection) AllowMessage() bool {
	return c.limiter.Allow()
}

// Close shuts down the connection exactly once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.limiter.Close()
		_ = c.conn.Close()
	})
}
